package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/isleoflan/sso-server/internal/service"
)

// RegisterHandler exposes account creation, availability checks and the
// double-opt-in activation.
type RegisterHandler struct {
	Register *service.RegisterService
}

// NewRegisterHandler creates the handler set.
func NewRegisterHandler(register *service.RegisterService) *RegisterHandler {
	return &RegisterHandler{Register: register}
}

// New creates a deactivated account and sends the confirmation mail.
func (h *RegisterHandler) New(c *gin.Context) {
	var req struct {
		LoginRequestID string `json:"loginRequestId"`
		Username       string `json:"username"`
		Password       string `json:"password"`
		Gender         string `json:"gender"`
		Forename       string `json:"forename"`
		Lastname       string `json:"lastname"`
		Address        string `json:"address"`
		ZipCode        int    `json:"zipCode"`
		City           string `json:"city"`
		BirthDate      string `json:"birthDate"`
		Email          string `json:"email"`
		Phone          string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &service.APIError{Code: service.CodeInvalidUsername, Description: "The request body is not valid.", Status: http.StatusBadRequest})
		return
	}

	var fieldErrors service.ValidationErrors
	requireField := func(value string, code int) {
		if value == "" {
			fieldErrors = append(fieldErrors, &service.APIError{Code: code, Description: "This field is required.", Status: http.StatusBadRequest})
		}
	}
	requireField(req.LoginRequestID, service.CodeExpiredGlobalSess)
	requireField(req.Username, service.CodeInvalidUsername)
	requireField(req.Password, service.CodeInvalidPassword)
	requireField(req.Gender, service.CodeInvalidGender)
	requireField(req.Forename, service.CodeInvalidForename)
	requireField(req.Lastname, service.CodeInvalidLastname)
	if len(fieldErrors) > 0 {
		respondError(c, fieldErrors)
		return
	}

	err := h.Register.Register(c.Request.Context(), service.RegisterInput{
		LoginRequestID: req.LoginRequestID,
		Username:       req.Username,
		Password:       req.Password,
		Gender:         req.Gender,
		Forename:       req.Forename,
		Lastname:       req.Lastname,
		Address:        req.Address,
		ZipCode:        req.ZipCode,
		City:           req.City,
		BirthDate:      req.BirthDate,
		Email:          req.Email,
		Phone:          req.Phone,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, gin.H{"registered": true})
}

// CheckUsername probes username availability.
func (h *RegisterHandler) CheckUsername(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		respondError(c, &service.APIError{Code: service.CodeInvalidUsername, Description: "No username has been provided.", Status: http.StatusBadRequest})
		return
	}
	taken, err := h.Register.UsernameTaken(c.Request.Context(), username)
	if err != nil {
		respondError(c, err)
		return
	}
	if taken {
		respondError(c, &service.APIError{Code: service.CodeUsernameTaken, Description: "This username is already taken.", Status: http.StatusConflict})
		return
	}
	respond(c, gin.H{"available": true})
}

// CheckEmail probes email availability.
func (h *RegisterHandler) CheckEmail(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		respondError(c, &service.APIError{Code: service.CodeInvalidEmail, Description: "No email address has been provided.", Status: http.StatusBadRequest})
		return
	}
	taken, err := h.Register.EmailTaken(c.Request.Context(), email)
	if err != nil {
		respondError(c, err)
		return
	}
	if taken {
		respondError(c, &service.APIError{Code: service.CodeEmailTaken, Description: "This email address is already taken.", Status: http.StatusConflict})
		return
	}
	respond(c, gin.H{"available": true})
}

// VerifyEmail completes the double-opt-in and resumes the pending handoff.
func (h *RegisterHandler) VerifyEmail(c *gin.Context) {
	var req struct {
		Hash string `json:"hash"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Hash == "" {
		respondError(c, &service.APIError{Code: service.CodeInvalidDOIHash, Description: "No confirmation hash has been provided.", Status: http.StatusBadRequest})
		return
	}

	resp, err := h.Register.Activate(c.Request.Context(), req.Hash)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, resp)
}
