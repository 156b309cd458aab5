package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/isleoflan/sso-server/internal/service"
)

// ResetHandler exposes the password reset flow.
type ResetHandler struct {
	Reset *service.ResetService
}

// NewResetHandler creates the handler set.
func NewResetHandler(reset *service.ResetService) *ResetHandler {
	return &ResetHandler{Reset: reset}
}

// Request starts a reset. The response does not reveal whether the account
// exists.
func (h *ResetHandler) Request(c *gin.Context) {
	var req struct {
		Username       string `json:"username"`
		LoginRequestID string `json:"loginRequestId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.LoginRequestID == "" {
		respondError(c, &service.APIError{Code: service.CodeInvalidLoginReq, Description: "Username and login request id are required.", Status: http.StatusBadRequest})
		return
	}

	if err := h.Reset.RequestReset(c.Request.Context(), req.Username, req.LoginRequestID); err != nil {
		respondError(c, err)
		return
	}
	respond(c, gin.H{"requested": true})
}

// Verify confirms that a reset id is still redeemable.
func (h *ResetHandler) Verify(c *gin.Context) {
	resetID := c.Query("resetId")
	if resetID == "" {
		respondError(c, &service.APIError{Code: service.CodeInvalidReset, Description: "No reset id has been provided.", Status: http.StatusBadRequest})
		return
	}
	if err := h.Reset.ResetInfo(c.Request.Context(), resetID); err != nil {
		respondError(c, err)
		return
	}
	respond(c, gin.H{"valid": true})
}

// Execute sets the new password and resumes the interrupted handoff.
func (h *ResetHandler) Execute(c *gin.Context) {
	var req struct {
		ResetID  string `json:"resetId"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ResetID == "" || req.Password == "" {
		respondError(c, &service.APIError{Code: service.CodeInvalidReset, Description: "Reset id and password are required.", Status: http.StatusBadRequest})
		return
	}

	resp, err := h.Reset.ExecuteReset(c.Request.Context(), req.ResetID, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, resp)
}
