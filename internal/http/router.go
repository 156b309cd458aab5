package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/isleoflan/sso-server/internal/config"
	"github.com/isleoflan/sso-server/internal/http/handler"
	httpmiddleware "github.com/isleoflan/sso-server/internal/http/middleware"
	"github.com/isleoflan/sso-server/internal/middleware"
)

// NewRouter wires Gin routes and middleware. The route layout mirrors the
// public API version prefix the deployed app backends already use.
func NewRouter(
	cfg config.Config,
	authHandler *handler.AuthHandler,
	registerHandler *handler.RegisterHandler,
	resetHandler *handler.ResetHandler,
	authMiddleware *httpmiddleware.Auth,
	appMiddleware *httpmiddleware.App,
	rateLimiter *middleware.RateLimiter,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/request", appMiddleware.RequireApp, authHandler.CreateRequest)
			auth.GET("/request/info", authHandler.RequestInfo)
			auth.POST("/login", authHandler.Login)
			auth.GET("/verify", authMiddleware.RequireAuth, authHandler.Verify)
			auth.GET("/session/info", authHandler.SessionInfo)
			auth.POST("/logout", authMiddleware.RequireAuth, authHandler.Logout)
		}

		key := v1.Group("/key")
		{
			key.POST("/exchange", authHandler.Exchange)
			key.POST("/renew", authHandler.Renew)
		}

		register := v1.Group("/register")
		{
			register.POST("/new", registerHandler.New)
			register.GET("/check/username", registerHandler.CheckUsername)
			register.GET("/check/email", registerHandler.CheckEmail)
			register.PATCH("/verify/email", registerHandler.VerifyEmail)
		}

		reset := v1.Group("/reset")
		{
			reset.POST("/request", resetHandler.Request)
			reset.GET("/verify", resetHandler.Verify)
			reset.POST("/execute", resetHandler.Execute)
		}

		v1.GET("/user/info", authMiddleware.RequireAuth, authHandler.UserInfo)
	}

	return r
}
