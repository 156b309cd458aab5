package service

import "time"

// HandoffResponse is returned by every flow that ends in a redirect back to
// the app, with the intermediate token appended to the redirect URL. The
// global session id is only present when a new global session was created,
// so the frontend can keep it for silent re-auth.
type HandoffResponse struct {
	Redirect        string `json:"redirect"`
	GlobalSessionID string `json:"globalSessionId,omitempty"`
}

// LoginRequestResponse points the app at the frontend URL where the user
// completes the login.
type LoginRequestResponse struct {
	Redirect string `json:"redirect"`
}

// TokenResponse is the session credential triple handed to app backends.
type TokenResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Expiration   time.Time `json:"expiration"`
}

// AppInfo is the public description of an app, shown by the frontend on the
// login page.
type AppInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// GlobalSessionInfo is displayed by the frontend for silent re-auth
// ("continue as ...").
type GlobalSessionInfo struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Email    string `json:"email"`
}

// UserInfo is the serialized user returned by the user info endpoint.
type UserInfo struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Gender    string  `json:"gender"`
	Forename  string  `json:"forename"`
	Lastname  string  `json:"lastname"`
	Address   string  `json:"address"`
	ZipCode   int     `json:"zipCode"`
	City      string  `json:"city"`
	BirthDate *string `json:"birthDate"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone"`
	Scope     uint64  `json:"scope"`
	Avatar    string  `json:"avatar"`
}
