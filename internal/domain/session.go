package domain

import "time"

// Expiration windows. Any session is considered gone after its interval plus
// the leeway; revocation backdates the expiry by leeway+10s so a revoked
// session is invalid even under clock skew.
const (
	// GlobalSessionInterval is how long a global session lives without
	// being refreshed.
	GlobalSessionInterval = 30 * 24 * time.Hour

	// SessionInterval is how long a per-app session lives without being
	// renewed.
	SessionInterval = 1800 * time.Second

	// ExpirationLeeway is the wiggle room before invalidation really takes
	// place. A renewal request sent on the last possible second over a slow
	// connection is still given a chance to prolong the session.
	ExpirationLeeway = 10 * time.Second

	// RevocationBackdate is subtracted from now when revoking, so the new
	// expiry is in the past even for a reader applying the leeway.
	RevocationBackdate = ExpirationLeeway + 10*time.Second
)

// GlobalSession is the long-lived, app-independent authenticated identity of
// a user. At most one global session per user is valid at a time; creating a
// new one revokes all prior ones.
type GlobalSession struct {
	ID         string
	UserID     string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
	IP         string
	UserAgent  string
}

// IsValid reports whether the session has not expired, leeway included.
func (g GlobalSession) IsValid() bool {
	return !time.Now().After(g.ExpiresAt.Add(ExpirationLeeway))
}

// Session is a short-lived per-app authorization context derived from a
// global session. Access tokens reference sessions by id; expiry is enforced
// here, never inside the signed token.
type Session struct {
	ID              string
	GlobalSessionID string
	AppID           string
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// IsExpired reports whether the session has expired, leeway included.
func (s Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt.Add(ExpirationLeeway))
}

// RefreshToken maps an opaque 80-character secret 1:1 to a session. It is
// returned unchanged on every renewal; revoking the session (or its global
// session) is what ends its usefulness.
type RefreshToken struct {
	Token     string
	SessionID string
}
