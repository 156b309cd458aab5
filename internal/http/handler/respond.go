package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/isleoflan/sso-server/internal/service"
)

// apiErrorBody is the wire shape of one public error.
type apiErrorBody struct {
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message"`
}

func respond(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// respondError translates service errors into the public envelope. Anything
// that is not a typed APIError is a server fault: it is logged with full
// detail and answered with a generic message, never with its text.
func respondError(c *gin.Context, err error) {
	var validation service.ValidationErrors
	if errors.As(err, &validation) {
		bodies := make([]apiErrorBody, 0, len(validation))
		for _, e := range validation {
			bodies = append(bodies, apiErrorBody{ErrorCode: e.Code, Message: e.Description})
		}
		c.AbortWithStatusJSON(validation.Status(), gin.H{"errors": bodies})
		return
	}

	var apiErr *service.APIError
	if errors.As(err, &apiErr) {
		c.AbortWithStatusJSON(apiErr.Status, gin.H{"errors": []apiErrorBody{
			{ErrorCode: apiErr.Code, Message: apiErr.Description},
		}})
		return
	}

	zap.L().Error("request failed",
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"errors": []apiErrorBody{
		{ErrorCode: http.StatusInternalServerError, Message: "An internal error occurred."},
	}})
}
