package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/isleoflan/sso-server/internal/domain"
	"github.com/isleoflan/sso-server/internal/repository"
)

const appContextKey = "callingApp"

// App identifies the calling relying party by its token header. Endpoints
// that scope redirect validation to an app sit behind this.
type App struct {
	Apps repository.AppRepository
}

// RequireApp resolves the app token header to an App row.
func (m *App) RequireApp(c *gin.Context) {
	token := c.GetHeader(domain.AppTokenHeader)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"errors": []gin.H{
			{"errorCode": http.StatusUnauthorized, "message": "No app token has been provided."},
		}})
		return
	}

	app, err := m.Apps.GetByID(c.Request.Context(), token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"errors": []gin.H{
			{"errorCode": http.StatusUnauthorized, "message": "The provided app token is not valid."},
		}})
		return
	}

	c.Set(appContextKey, app)
	c.Next()
}

// GetApp returns the app attached by RequireApp.
func GetApp(c *gin.Context) (domain.App, bool) {
	value, ok := c.Get(appContextKey)
	if !ok {
		return domain.App{}, false
	}
	app, ok := value.(domain.App)
	return app, ok
}
