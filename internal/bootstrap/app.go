// Package bootstrap seeds the rows a fresh broker needs before the first
// request. Apps are administered out-of-band in production; for dev and e2e
// setups a default app can be created from the environment.
package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/isleoflan/sso-server/internal/config"
	"github.com/isleoflan/sso-server/internal/domain"
	"github.com/isleoflan/sso-server/internal/repository"
)

const insertAppSQL = `INSERT INTO apps (id, title, description, base_url, created_at)
VALUES ($1, $2, $3, $4, $5)`

// EnsureApp creates the default app row for dev/e2e if configured and
// missing. With no DEFAULT_APP_TOKEN set, nothing happens.
func EnsureApp(lc fx.Lifecycle, cfg config.Config, apps repository.AppRepository, pool *pgxpool.Pool, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureApp(ctx, cfg, apps, pool, logger)
		},
	})
}

func ensureApp(ctx context.Context, cfg config.Config, apps repository.AppRepository, pool *pgxpool.Pool, logger *zap.Logger) error {
	if cfg.DefaultAppToken == "" || cfg.DefaultAppBaseURL == "" {
		return nil
	}

	if _, err := apps.GetByID(ctx, cfg.DefaultAppToken); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	_, err := pool.Exec(ctx, insertAppSQL,
		cfg.DefaultAppToken,
		cfg.DefaultAppTitle,
		"Seeded default app",
		cfg.DefaultAppBaseURL,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	logger.Info("seeded default app",
		zap.String("title", cfg.DefaultAppTitle),
		zap.String("base_url", cfg.DefaultAppBaseURL),
	)
	return nil
}
