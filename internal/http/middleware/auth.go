package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/isleoflan/sso-server/internal/domain"
	"github.com/isleoflan/sso-server/internal/service"
)

const (
	userContextKey    = "authUser"
	sessionContextKey = "authSession"
)

// Auth guards endpoints behind a bearer access token. The token signature is
// only the first gate; the referenced session must exist and be live.
type Auth struct {
	AuthService *service.AuthService
}

// RequireAuth validates the Authorization header and attaches the resolved
// user and session to the request context.
func (m *Auth) RequireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	bearer := ""
	if strings.HasPrefix(header, "Bearer ") {
		bearer = strings.TrimPrefix(header, "Bearer ")
	}

	user, session, err := m.AuthService.Authenticate(c.Request.Context(), bearer)
	if err != nil {
		var apiErr *service.APIError
		if errors.As(err, &apiErr) {
			c.AbortWithStatusJSON(apiErr.Status, gin.H{"errors": []gin.H{
				{"errorCode": apiErr.Code, "message": apiErr.Description},
			}})
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"errors": []gin.H{
			{"errorCode": service.CodeInvalidAuthToken, "message": "The provided authentication token is not valid."},
		}})
		return
	}

	c.Set(userContextKey, user)
	c.Set(sessionContextKey, session)
	c.Next()
}

// GetUser returns the authenticated user attached by RequireAuth.
func GetUser(c *gin.Context) (domain.User, bool) {
	value, ok := c.Get(userContextKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := value.(domain.User)
	return user, ok
}

// GetSession returns the session attached by RequireAuth.
func GetSession(c *gin.Context) (domain.Session, bool) {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return domain.Session{}, false
	}
	session, ok := value.(domain.Session)
	return session, ok
}
