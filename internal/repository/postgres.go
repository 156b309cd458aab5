package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/isleoflan/sso-server/internal/domain"
)

// Compile-time interface assertions.
var (
	_ AppRepository           = (*PostgresAppRepo)(nil)
	_ UserRepository          = (*PostgresUserRepo)(nil)
	_ LoginRequestRepository  = (*PostgresLoginRequestRepo)(nil)
	_ GlobalSessionRepository = (*PostgresGlobalSessionRepo)(nil)
	_ SessionRepository       = (*PostgresSessionRepo)(nil)
	_ RefreshTokenRepository  = (*PostgresRefreshTokenRepo)(nil)
	_ ResetRepository         = (*PostgresResetRepo)(nil)
)

func notFoundOr(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, op)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func existsQuery(ctx context.Context, db *pgxpool.Pool, query, value string) (bool, error) {
	var exists bool
	if err := db.QueryRow(ctx, query, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("existence probe: %w", err)
	}
	return exists, nil
}

// PostgresAppRepo implements AppRepository.
type PostgresAppRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAppRepo(pool *pgxpool.Pool) *PostgresAppRepo {
	return &PostgresAppRepo{db: pool}
}

func (r *PostgresAppRepo) GetByID(ctx context.Context, id string) (domain.App, error) {
	const query = `SELECT id, title, description, base_url, created_at FROM apps WHERE id = $1`
	var app domain.App
	if err := r.db.QueryRow(ctx, query, id).Scan(&app.ID, &app.Title, &app.Description, &app.BaseURL, &app.CreatedAt); err != nil {
		return domain.App{}, notFoundOr(err, "get app")
	}
	return app, nil
}

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const userColumns = `id, username, password_hash, activated_at, blocked_at, gender, forename, lastname, address, zip_code, city, birth_date, email, phone, scope, created_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.ActivatedAt,
		&u.BlockedAt,
		&u.Gender,
		&u.Forename,
		&u.Lastname,
		&u.Address,
		&u.ZipCode,
		&u.City,
		&u.BirthDate,
		&u.Email,
		&u.Phone,
		&u.Scope,
		&u.CreatedAt,
	)
	return u, err
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return domain.User{}, notFoundOr(err, "get user")
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByUsernameOrEmail(ctx context.Context, input string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR email = $1 LIMIT 1`
	user, err := scanUser(r.db.QueryRow(ctx, query, input))
	if err != nil {
		return domain.User{}, notFoundOr(err, "get user by username or email")
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByConfirmationHash(ctx context.Context, hash, salt string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE MD5(username || $2) = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, hash, salt))
	if err != nil {
		return domain.User{}, notFoundOr(err, "get user by confirmation hash")
	}
	return user, nil
}

const insertUserSQL = `INSERT INTO users (id, username, password_hash, activated_at, blocked_at, gender, forename, lastname, address, zip_code, city, birth_date, email, phone, scope, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) error {
	_, err := r.db.Exec(ctx, insertUserSQL,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.ActivatedAt,
		user.BlockedAt,
		user.Gender,
		user.Forename,
		user.Lastname,
		user.Address,
		user.ZipCode,
		user.City,
		user.BirthDate,
		user.Email,
		user.Phone,
		user.Scope,
		user.CreatedAt,
	)
	if err != nil {
		// Unique violations on username or email race the frontend's
		// availability probes; surface them as a conflict.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: user already exists", domain.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) Activate(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE users SET activated_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("activate user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if _, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	return existsQuery(ctx, r.db, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username)
}

func (r *PostgresUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	return existsQuery(ctx, r.db, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email)
}

func (r *PostgresUserRepo) IDExists(ctx context.Context, id string) (bool, error) {
	return existsQuery(ctx, r.db, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id)
}

// PostgresLoginRequestRepo implements LoginRequestRepository.
type PostgresLoginRequestRepo struct {
	db *pgxpool.Pool
}

func NewPostgresLoginRequestRepo(pool *pgxpool.Pool) *PostgresLoginRequestRepo {
	return &PostgresLoginRequestRepo{db: pool}
}

func (r *PostgresLoginRequestRepo) Create(ctx context.Context, request domain.LoginRequest) error {
	const query = `INSERT INTO login_requests (id, app_id, redirect_url, scope, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.Exec(ctx, query, request.ID, request.AppID, request.RedirectURL, request.Scope, request.CreatedAt); err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	return nil
}

func (r *PostgresLoginRequestRepo) GetByID(ctx context.Context, id string) (domain.LoginRequest, error) {
	const query = `SELECT id, app_id, redirect_url, scope, created_at FROM login_requests WHERE id = $1`
	var req domain.LoginRequest
	if err := r.db.QueryRow(ctx, query, id).Scan(&req.ID, &req.AppID, &req.RedirectURL, &req.Scope, &req.CreatedAt); err != nil {
		return domain.LoginRequest{}, notFoundOr(err, "get login request")
	}
	return req, nil
}

func (r *PostgresLoginRequestRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM login_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete login request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: login request already redeemed", domain.ErrNotFound)
	}
	return nil
}

func (r *PostgresLoginRequestRepo) Allocate(ctx context.Context, requestID, userID string) error {
	const query = `INSERT INTO login_request_allocations (login_request_id, user_id) VALUES ($1, $2)
ON CONFLICT (login_request_id) DO UPDATE SET user_id = EXCLUDED.user_id`
	if _, err := r.db.Exec(ctx, query, requestID, userID); err != nil {
		return fmt.Errorf("allocate login request: %w", err)
	}
	return nil
}

func (r *PostgresLoginRequestRepo) GetAllocated(ctx context.Context, userID string) (domain.LoginRequest, error) {
	const query = `SELECT lr.id, lr.app_id, lr.redirect_url, lr.scope, lr.created_at
FROM login_requests lr
JOIN login_request_allocations a ON a.login_request_id = lr.id
WHERE a.user_id = $1`
	var req domain.LoginRequest
	if err := r.db.QueryRow(ctx, query, userID).Scan(&req.ID, &req.AppID, &req.RedirectURL, &req.Scope, &req.CreatedAt); err != nil {
		return domain.LoginRequest{}, notFoundOr(err, "get allocated login request")
	}
	return req, nil
}

func (r *PostgresLoginRequestRepo) IDExists(ctx context.Context, id string) (bool, error) {
	return existsQuery(ctx, r.db, `SELECT EXISTS (SELECT 1 FROM login_requests WHERE id = $1)`, id)
}

// PostgresGlobalSessionRepo implements GlobalSessionRepository.
type PostgresGlobalSessionRepo struct {
	db *pgxpool.Pool
}

func NewPostgresGlobalSessionRepo(pool *pgxpool.Pool) *PostgresGlobalSessionRepo {
	return &PostgresGlobalSessionRepo{db: pool}
}

// Create revokes all live sessions of the user and inserts the new one in a
// single transaction, so two concurrent logins cannot both end up valid.
func (r *PostgresGlobalSessionRepo) Create(ctx context.Context, session domain.GlobalSession) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin global session tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	revoked := time.Now().Add(-domain.RevocationBackdate)
	const revokeSQL = `UPDATE global_sessions SET expires_at = $2 WHERE user_id = $1 AND expires_at > $2`
	if _, err := tx.Exec(ctx, revokeSQL, session.UserID, revoked); err != nil {
		return fmt.Errorf("revoke prior global sessions: %w", err)
	}

	const insertSQL = `INSERT INTO global_sessions (id, user_id, created_at, last_seen_at, expires_at, ip, user_agent)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.Exec(ctx, insertSQL,
		session.ID,
		session.UserID,
		session.CreatedAt,
		session.LastSeenAt,
		session.ExpiresAt,
		session.IP,
		session.UserAgent,
	); err != nil {
		return fmt.Errorf("insert global session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit global session tx: %w", err)
	}
	return nil
}

func (r *PostgresGlobalSessionRepo) GetByID(ctx context.Context, id string) (domain.GlobalSession, error) {
	const query = `SELECT id, user_id, created_at, last_seen_at, expires_at, ip, user_agent FROM global_sessions WHERE id = $1`
	var gs domain.GlobalSession
	if err := r.db.QueryRow(ctx, query, id).Scan(&gs.ID, &gs.UserID, &gs.CreatedAt, &gs.LastSeenAt, &gs.ExpiresAt, &gs.IP, &gs.UserAgent); err != nil {
		return domain.GlobalSession{}, notFoundOr(err, "get global session")
	}
	return gs, nil
}

func (r *PostgresGlobalSessionRepo) SetExpiration(ctx context.Context, id string, expiresAt time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE global_sessions SET expires_at = $2 WHERE id = $1`, id, expiresAt); err != nil {
		return fmt.Errorf("set global session expiration: %w", err)
	}
	return nil
}

func (r *PostgresGlobalSessionRepo) Touch(ctx context.Context, id string, lastSeenAt time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE global_sessions SET last_seen_at = $2 WHERE id = $1`, id, lastSeenAt); err != nil {
		return fmt.Errorf("touch global session: %w", err)
	}
	return nil
}

func (r *PostgresGlobalSessionRepo) IDExists(ctx context.Context, id string) (bool, error) {
	return existsQuery(ctx, r.db, `SELECT EXISTS (SELECT 1 FROM global_sessions WHERE id = $1)`, id)
}

// PostgresSessionRepo implements SessionRepository.
type PostgresSessionRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSessionRepo(pool *pgxpool.Pool) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: pool}
}

func (r *PostgresSessionRepo) Create(ctx context.Context, session domain.Session) error {
	const query = `INSERT INTO sessions (id, global_session_id, app_id, created_at, expires_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.Exec(ctx, query, session.ID, session.GlobalSessionID, session.AppID, session.CreatedAt, session.ExpiresAt); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepo) GetByID(ctx context.Context, id string) (domain.Session, error) {
	const query = `SELECT id, global_session_id, app_id, created_at, expires_at FROM sessions WHERE id = $1`
	var s domain.Session
	if err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.GlobalSessionID, &s.AppID, &s.CreatedAt, &s.ExpiresAt); err != nil {
		return domain.Session{}, notFoundOr(err, "get session")
	}
	return s, nil
}

func (r *PostgresSessionRepo) Exists(ctx context.Context, id string) (bool, error) {
	return existsQuery(ctx, r.db, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id)
}

func (r *PostgresSessionRepo) SetExpiration(ctx context.Context, id string, expiresAt time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE sessions SET expires_at = $2 WHERE id = $1`, id, expiresAt); err != nil {
		return fmt.Errorf("set session expiration: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepo) IDExists(ctx context.Context, id string) (bool, error) {
	return r.Exists(ctx, id)
}

// PostgresRefreshTokenRepo implements RefreshTokenRepository.
type PostgresRefreshTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRefreshTokenRepo(pool *pgxpool.Pool) *PostgresRefreshTokenRepo {
	return &PostgresRefreshTokenRepo{db: pool}
}

func (r *PostgresRefreshTokenRepo) Create(ctx context.Context, token domain.RefreshToken) error {
	const query = `INSERT INTO refresh_tokens (token, session_id) VALUES ($1, $2)`
	if _, err := r.db.Exec(ctx, query, token.Token, token.SessionID); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

func (r *PostgresRefreshTokenRepo) GetByToken(ctx context.Context, token string) (domain.RefreshToken, error) {
	const query = `SELECT token, session_id FROM refresh_tokens WHERE token = $1`
	var rt domain.RefreshToken
	if err := r.db.QueryRow(ctx, query, token).Scan(&rt.Token, &rt.SessionID); err != nil {
		return domain.RefreshToken{}, notFoundOr(err, "get refresh token")
	}
	return rt, nil
}

func (r *PostgresRefreshTokenRepo) TokenExists(ctx context.Context, token string) (bool, error) {
	return existsQuery(ctx, r.db, `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token = $1)`, token)
}

// PostgresResetRepo implements ResetRepository.
type PostgresResetRepo struct {
	db *pgxpool.Pool
}

func NewPostgresResetRepo(pool *pgxpool.Pool) *PostgresResetRepo {
	return &PostgresResetRepo{db: pool}
}

func (r *PostgresResetRepo) Create(ctx context.Context, reset domain.Reset) error {
	const query = `INSERT INTO user_resets (id, user_id, login_request_id, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.Exec(ctx, query, reset.ID, reset.UserID, reset.LoginRequestID, reset.CreatedAt); err != nil {
		return fmt.Errorf("create reset: %w", err)
	}
	return nil
}

func (r *PostgresResetRepo) GetByID(ctx context.Context, id string) (domain.Reset, error) {
	const query = `SELECT id, user_id, login_request_id, created_at FROM user_resets WHERE id = $1`
	var reset domain.Reset
	if err := r.db.QueryRow(ctx, query, id).Scan(&reset.ID, &reset.UserID, &reset.LoginRequestID, &reset.CreatedAt); err != nil {
		return domain.Reset{}, notFoundOr(err, "get reset")
	}
	return reset, nil
}

func (r *PostgresResetRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM user_resets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete reset: %w", err)
	}
	return nil
}

func (r *PostgresResetRepo) IDExists(ctx context.Context, id string) (bool, error) {
	return existsQuery(ctx, r.db, `SELECT EXISTS (SELECT 1 FROM user_resets WHERE id = $1)`, id)
}
