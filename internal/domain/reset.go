package domain

import "time"

// ResetExpiration is how long a password reset stays redeemable.
const ResetExpiration = 1800 * time.Second

// Reset is a pending password reset, bound to the login request that
// triggered it so the flow can resume after the password change.
type Reset struct {
	ID             string
	UserID         string
	LoginRequestID string
	CreatedAt      time.Time
}

// IsExpired reports whether the reset window has closed.
func (r Reset) IsExpired() bool {
	return time.Now().After(r.CreatedAt.Add(ResetExpiration))
}
