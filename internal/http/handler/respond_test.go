package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/isleoflan/sso-server/internal/service"
)

type errorEnvelope struct {
	Errors []apiErrorBody `json:"errors"`
}

func testContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	return c, w
}

func TestRespondWrapsData(t *testing.T) {
	c, w := testContext(t)
	respond(c, gin.H{"redirect": "https://shop.example.com/cb"})

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"redirect":"https://shop.example.com/cb"}}`, w.Body.String())
}

func TestRespondErrorMapsAPIError(t *testing.T) {
	c, w := testContext(t)
	respondError(c, &service.APIError{Code: service.CodeWrongCredentials, Description: "Wrong username or password.", Status: http.StatusUnauthorized})

	require.Equal(t, http.StatusUnauthorized, w.Code)
	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Errors, 1)
	require.Equal(t, service.CodeWrongCredentials, envelope.Errors[0].ErrorCode)
	require.NotEmpty(t, envelope.Errors[0].Message)
}

func TestRespondErrorListsValidationErrors(t *testing.T) {
	c, w := testContext(t)
	respondError(c, service.ValidationErrors{
		{Code: service.CodeInvalidGender, Description: "The gender is missing or not valid.", Status: http.StatusBadRequest},
		{Code: service.CodeInvalidEmail, Description: "The email address is missing or not valid.", Status: http.StatusBadRequest},
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Errors, 2)
	require.Equal(t, service.CodeInvalidGender, envelope.Errors[0].ErrorCode)
	require.Equal(t, service.CodeInvalidEmail, envelope.Errors[1].ErrorCode)
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	c, w := testContext(t)
	respondError(c, errPlainBoom{})

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "boom with secrets")
	require.Contains(t, w.Body.String(), "An internal error occurred.")
}

type errPlainBoom struct{}

func (errPlainBoom) Error() string { return "boom with secrets" }
