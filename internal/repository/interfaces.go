package repository

import (
	"context"
	"time"

	"github.com/isleoflan/sso-server/internal/domain"
)

// AppRepository reads relying-party rows. Apps are administered out-of-band.
type AppRepository interface {
	GetByID(ctx context.Context, id string) (domain.App, error)
}

// UserRepository exposes persistence for broker users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByUsernameOrEmail(ctx context.Context, input string) (domain.User, error)
	GetByConfirmationHash(ctx context.Context, hash, salt string) (domain.User, error)
	Create(ctx context.Context, user domain.User) error
	Activate(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	IDExists(ctx context.Context, id string) (bool, error)
}

// LoginRequestRepository manages the single-use login request rows and their
// user allocations.
type LoginRequestRepository interface {
	Create(ctx context.Context, request domain.LoginRequest) error
	GetByID(ctx context.Context, id string) (domain.LoginRequest, error)
	// Delete redeems the request. It returns ErrNotFound when no row was
	// deleted, which callers must treat as a replay attempt.
	Delete(ctx context.Context, id string) error
	Allocate(ctx context.Context, requestID, userID string) error
	GetAllocated(ctx context.Context, userID string) (domain.LoginRequest, error)
	IDExists(ctx context.Context, id string) (bool, error)
}

// GlobalSessionRepository manages the long-lived identity sessions.
type GlobalSessionRepository interface {
	// Create revokes every prior session of the same user and inserts the
	// new row in one transaction, upholding the single-active-session rule
	// under concurrent logins.
	Create(ctx context.Context, session domain.GlobalSession) error
	GetByID(ctx context.Context, id string) (domain.GlobalSession, error)
	SetExpiration(ctx context.Context, id string, expiresAt time.Time) error
	Touch(ctx context.Context, id string, lastSeenAt time.Time) error
	IDExists(ctx context.Context, id string) (bool, error)
}

// SessionRepository manages the short-lived per-app sessions.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByID(ctx context.Context, id string) (domain.Session, error)
	Exists(ctx context.Context, id string) (bool, error)
	SetExpiration(ctx context.Context, id string, expiresAt time.Time) error
	IDExists(ctx context.Context, id string) (bool, error)
}

// RefreshTokenRepository maps opaque refresh tokens to sessions.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token domain.RefreshToken) error
	GetByToken(ctx context.Context, token string) (domain.RefreshToken, error)
	TokenExists(ctx context.Context, token string) (bool, error)
}

// ResetRepository manages pending password resets.
type ResetRepository interface {
	Create(ctx context.Context, reset domain.Reset) error
	GetByID(ctx context.Context, id string) (domain.Reset, error)
	Delete(ctx context.Context, id string) error
	IDExists(ctx context.Context, id string) (bool, error)
}

// IntermediateTokenRecord is the latest-wins record of a minted handoff
// token, kept only for audit and takeover of a newer login by the same app.
type IntermediateTokenRecord struct {
	AppID           string    `json:"appId"`
	GlobalSessionID string    `json:"globalSessionId"`
	Token           string    `json:"token"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// IntermediateTokenStore persists the latest minted token per app with a
// TTL matching the token lifetime.
type IntermediateTokenStore interface {
	Save(ctx context.Context, record IntermediateTokenRecord, ttl time.Duration) error
	Get(ctx context.Context, appID string) (*IntermediateTokenRecord, error)
}
