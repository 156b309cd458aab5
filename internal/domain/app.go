package domain

import (
	"strings"
	"time"
)

// AppTokenHeader identifies the calling app on broker-facing endpoints.
const AppTokenHeader = "Iol-App-Token"

// App is a relying party registered with the broker. Rows are created
// out-of-band by an administrator; the core only reads them.
type App struct {
	ID          string
	Title       string
	Description string
	BaseURL     string
	CreatedAt   time.Time
}

// CheckRedirectURL reports whether redirectURL may be used as a handoff
// target for this app. The scheme is stripped on both sides before the
// prefix comparison, so http/https variants of the same base match.
func (a App) CheckRedirectURL(redirectURL string) bool {
	return strings.HasPrefix(stripScheme(redirectURL), stripScheme(a.BaseURL))
}

func stripScheme(url string) string {
	url = strings.TrimPrefix(url, "https://")
	return strings.TrimPrefix(url, "http://")
}
