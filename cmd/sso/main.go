package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/isleoflan/sso-server/internal/adapter/cache"
	"github.com/isleoflan/sso-server/internal/bootstrap"
	"github.com/isleoflan/sso-server/internal/config"
	httptransport "github.com/isleoflan/sso-server/internal/http"
	"github.com/isleoflan/sso-server/internal/http/handler"
	httpmiddleware "github.com/isleoflan/sso-server/internal/http/middleware"
	"github.com/isleoflan/sso-server/internal/intermediate"
	"github.com/isleoflan/sso-server/internal/jwt"
	apimiddleware "github.com/isleoflan/sso-server/internal/middleware"
	"github.com/isleoflan/sso-server/internal/queue"
	"github.com/isleoflan/sso-server/internal/repository"
	"github.com/isleoflan/sso-server/internal/server"
	"github.com/isleoflan/sso-server/internal/service"
	"github.com/isleoflan/sso-server/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newAppRepository,
			newUserRepository,
			newLoginRequestRepository,
			newGlobalSessionRepository,
			newSessionRepository,
			newRefreshTokenRepository,
			newResetRepository,
			newRedisClient,
			newTokenStore,
			newPublisher,
			newHandoffCodec,
			newJWTCodec,
			newRateLimiter,
			service.NewAuthService,
			service.NewRegisterService,
			service.NewResetService,
			handler.NewAuthHandler,
			handler.NewRegisterHandler,
			handler.NewResetHandler,
			newAuthMiddleware,
			newAppMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureApp, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Tracing, error) {
	tracing, err := telemetry.Setup(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return tracing.Shutdown(stopCtx)
		},
	})

	return tracing, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newAppRepository(pool *pgxpool.Pool) repository.AppRepository {
	return repository.NewPostgresAppRepo(pool)
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newLoginRequestRepository(pool *pgxpool.Pool) repository.LoginRequestRepository {
	return repository.NewPostgresLoginRequestRepo(pool)
}

func newGlobalSessionRepository(pool *pgxpool.Pool) repository.GlobalSessionRepository {
	return repository.NewPostgresGlobalSessionRepo(pool)
}

func newSessionRepository(pool *pgxpool.Pool) repository.SessionRepository {
	return repository.NewPostgresSessionRepo(pool)
}

func newRefreshTokenRepository(pool *pgxpool.Pool) repository.RefreshTokenRepository {
	return repository.NewPostgresRefreshTokenRepo(pool)
}

func newResetRepository(pool *pgxpool.Pool) repository.ResetRepository {
	return repository.NewPostgresResetRepo(pool)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newTokenStore(client redis.UniversalClient) repository.IntermediateTokenStore {
	return cacheadapter.NewRedisTokenStore(client)
}

func newPublisher(lc fx.Lifecycle, cfg config.Config, node *snowflake.Node, logger *zap.Logger) (queue.Publisher, error) {
	publisher, err := queue.Dial(cfg.AMQPURL, node, logger)
	if err != nil {
		return nil, fmt.Errorf("amqp connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

func newHandoffCodec(cfg config.Config) (*intermediate.Codec, error) {
	return intermediate.Load(cfg.HandoffKeyPath, cfg.HandoffPublicKeyPath)
}

func newJWTCodec(cfg config.Config) (*jwt.Codec, error) {
	return jwt.Load(cfg.AuthPrivateKeyPath, cfg.AuthPublicKeyPath)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAuthMiddleware(authService *service.AuthService) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{AuthService: authService}
}

func newAppMiddleware(apps repository.AppRepository) *httpmiddleware.App {
	return &httpmiddleware.App{Apps: apps}
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Tracing) {}
