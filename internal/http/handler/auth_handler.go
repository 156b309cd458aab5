package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/isleoflan/sso-server/internal/http/middleware"
	"github.com/isleoflan/sso-server/internal/service"
)

// AuthHandler exposes the handoff endpoints: login request creation, login,
// token exchange and renewal, session introspection.
type AuthHandler struct {
	Auth *service.AuthService
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

// CreateRequest starts a handoff for the calling app.
func (h *AuthHandler) CreateRequest(c *gin.Context) {
	app, ok := middleware.GetApp(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	var req struct {
		RedirectURL string `json:"redirectURL"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RedirectURL == "" {
		respondError(c, &service.APIError{Code: service.CodeInvalidRedirectURL, Description: "No redirect URL has been provided.", Status: http.StatusBadRequest})
		return
	}

	resp, err := h.Auth.CreateLoginRequest(c.Request.Context(), app, req.RedirectURL)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, resp)
}

// RequestInfo describes the app behind a login request.
func (h *AuthHandler) RequestInfo(c *gin.Context) {
	loginRequestID := c.Query("loginRequestId")
	if loginRequestID == "" {
		respondError(c, &service.APIError{Code: service.CodeExpiredGlobalSess, Description: "No login request id has been provided.", Status: http.StatusBadRequest})
		return
	}

	info, err := h.Auth.RequestInfo(c.Request.Context(), loginRequestID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, info)
}

// Login authenticates the user, either with credentials or with a still
// valid global session id, and returns the redirect carrying the
// intermediate token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		LoginRequestID  string `json:"loginRequestId"`
		GlobalSessionID string `json:"globalSessionId"`
		Username        string `json:"username"`
		Password        string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.LoginRequestID == "" {
		respondError(c, &service.APIError{Code: service.CodeInvalidLoginReq, Description: "No login request id has been provided.", Status: http.StatusBadRequest})
		return
	}

	resp, err := h.Auth.Login(c.Request.Context(), service.LoginInput{
		LoginRequestID:  req.LoginRequestID,
		Username:        req.Username,
		Password:        req.Password,
		GlobalSessionID: req.GlobalSessionID,
		IP:              c.ClientIP(),
		UserAgent:       c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, resp)
}

// Verify confirms that the bearer token authorizes a live session.
func (h *AuthHandler) Verify(c *gin.Context) {
	user, ok := middleware.GetUser(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	respond(c, gin.H{"userId": user.ID})
}

// SessionInfo describes the user behind a global session, for the
// frontend's silent re-auth prompt.
func (h *AuthHandler) SessionInfo(c *gin.Context) {
	globalSessionID := c.Query("globalSessionId")
	if globalSessionID == "" {
		respondError(c, &service.APIError{Code: service.CodeInvalidGlobalSess, Description: "No global session id has been provided.", Status: http.StatusBadRequest})
		return
	}

	info, err := h.Auth.SessionInfo(c.Request.Context(), globalSessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, info)
}

// Exchange redeems an intermediate token for the session credential pair.
func (h *AuthHandler) Exchange(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		respondError(c, &service.APIError{Code: service.CodeInvalidExchange, Description: "No token has been provided.", Status: http.StatusBadRequest})
		return
	}

	resp, err := h.Auth.Exchange(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, resp)
}

// Renew extends a session via its refresh token.
func (h *AuthHandler) Renew(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		respondError(c, &service.APIError{Code: service.CodeInvalidExchange, Description: "No token has been provided.", Status: http.StatusBadRequest})
		return
	}

	resp, err := h.Auth.Renew(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, resp)
}

// Logout revokes the current session and its global session.
func (h *AuthHandler) Logout(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if err := h.Auth.Logout(c.Request.Context(), session); err != nil {
		respondError(c, err)
		return
	}
	respond(c, gin.H{"loggedOut": true})
}

// UserInfo serializes the current user, or an arbitrary user when a userId
// query parameter is given.
func (h *AuthHandler) UserInfo(c *gin.Context) {
	if userID := c.Query("userId"); userID != "" {
		info, err := h.Auth.UserInfo(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		respond(c, info)
		return
	}

	user, ok := middleware.GetUser(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	info, err := h.Auth.UserInfo(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, info)
}
