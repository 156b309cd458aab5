package domain

import "time"

// LoginRequest is the ephemeral handle binding an app's redirect intent to a
// single authentication attempt. It is deleted exactly once on redeem; a
// second redeem surfaces as ErrNotFound and must be treated as replay.
type LoginRequest struct {
	ID          string
	AppID       string
	RedirectURL string
	Scope       Scope
	CreatedAt   time.Time
}
