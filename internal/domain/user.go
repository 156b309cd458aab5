package domain

import "time"

// User is an end user of the broker. The password is only ever stored as a
// bcrypt hash; activation and blocking are represented by nullable
// timestamps, matching the persistence model.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	ActivatedAt  *time.Time
	BlockedAt    *time.Time
	Gender       Gender
	Forename     string
	Lastname     string
	Address      string
	ZipCode      int
	City         string
	BirthDate    *time.Time
	Email        string
	Phone        string
	Scope        Scope
	CreatedAt    time.Time
}

// IsActivated reports whether the user completed the double-opt-in flow.
func (u User) IsActivated() bool {
	return u.ActivatedAt != nil
}

// IsBlocked reports whether logins are forbidden for this user.
func (u User) IsBlocked() bool {
	return u.BlockedAt != nil
}

// AvatarURL returns the generated avatar for the user.
func (u User) AvatarURL() string {
	return "https://avatars.dicebear.com/api/gridy/" + u.Username + ".svg"
}
