package service

import (
	"fmt"
	"net/http"
)

// APIError is a public, numeric-coded error returned to clients. The codes
// are part of the external contract; app backends and the frontend match on
// them, so they must not change.
type APIError struct {
	Code        int
	Description string
	Status      int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Description)
}

// Public error codes.
const (
	CodeSessionExpired     = 100001
	CodeInvalidAuthToken   = 100002
	CodeMissingAuthToken   = 100003
	CodeInvalidRedirectURL = 101001
	CodeInvalidLoginReq    = 101002
	CodeInvalidGlobalSess  = 102001
	CodeExpiredGlobalSess  = 102002
	CodeMissingUsername    = 103001
	CodeMissingPassword    = 103002
	CodeMissingLoginData   = 103003
	CodeEmailTaken         = 105001
	CodeUsernameTaken      = 105002
	CodeInvalidBirthDate   = 105003
	CodeInvalidUsername    = 105101
	CodeInvalidPassword    = 105102
	CodeInvalidGender      = 105103
	CodeInvalidForename    = 105104
	CodeInvalidLastname    = 105105
	CodeInvalidAddress     = 105106
	CodeInvalidZipCode     = 105107
	CodeInvalidCity        = 105108
	CodeInvalidBirthInput  = 105109
	CodeInvalidEmail       = 105110
	CodeInvalidPhone       = 105111
	CodeInvalidDOIHash     = 105201
	CodeNoAllocation       = 105202
	CodeInvalidExchange    = 401001
	CodeInvalidReset       = 501001
	CodeWrongCredentials   = 901001
	CodeNotActivated       = 901002
	CodeUserBlocked        = 901003
	CodeUserNotFound       = 901004
	CodeEncryptionFailure  = 999104
)

var errorTable = map[int]struct {
	description string
	status      int
}{
	CodeSessionExpired:     {"The session has expired.", http.StatusUnauthorized},
	CodeInvalidAuthToken:   {"The provided authentication token is not valid.", http.StatusUnauthorized},
	CodeMissingAuthToken:   {"No authentication token has been provided.", http.StatusUnauthorized},
	CodeInvalidRedirectURL: {"The redirect URL is not allowed for this app.", http.StatusBadRequest},
	CodeInvalidLoginReq:    {"The login request is not valid.", http.StatusNotFound},
	CodeInvalidGlobalSess:  {"The global session is not valid.", http.StatusBadRequest},
	CodeExpiredGlobalSess:  {"The session or login request has expired.", http.StatusUnauthorized},
	CodeMissingUsername:    {"No username has been provided.", http.StatusBadRequest},
	CodeMissingPassword:    {"No password has been provided.", http.StatusBadRequest},
	CodeMissingLoginData:   {"No login data has been provided.", http.StatusBadRequest},
	CodeEmailTaken:         {"This email address is already taken.", http.StatusConflict},
	CodeUsernameTaken:      {"This username is already taken.", http.StatusConflict},
	CodeInvalidBirthDate:   {"The birth date is not valid.", http.StatusBadRequest},
	CodeInvalidUsername:    {"The username is missing or not valid.", http.StatusBadRequest},
	CodeInvalidPassword:    {"The password is missing or not valid.", http.StatusBadRequest},
	CodeInvalidGender:      {"The gender is missing or not valid.", http.StatusBadRequest},
	CodeInvalidForename:    {"The forename is missing or not valid.", http.StatusBadRequest},
	CodeInvalidLastname:    {"The lastname is missing or not valid.", http.StatusBadRequest},
	CodeInvalidAddress:     {"The address is not valid.", http.StatusBadRequest},
	CodeInvalidZipCode:     {"The zip code is not valid.", http.StatusBadRequest},
	CodeInvalidCity:        {"The city is not valid.", http.StatusBadRequest},
	CodeInvalidBirthInput:  {"The birth date is missing or not valid.", http.StatusBadRequest},
	CodeInvalidEmail:       {"The email address is missing or not valid.", http.StatusBadRequest},
	CodeInvalidPhone:       {"The phone number is not valid.", http.StatusBadRequest},
	CodeInvalidDOIHash:     {"The confirmation link is not valid.", http.StatusNotFound},
	CodeNoAllocation:       {"No login request is allocated to this user.", http.StatusBadRequest},
	CodeInvalidExchange:    {"The provided token is not valid.", http.StatusUnauthorized},
	CodeInvalidReset:       {"The password reset is not valid or has expired.", http.StatusNotFound},
	CodeWrongCredentials:   {"Wrong username or password.", http.StatusUnauthorized},
	CodeNotActivated:       {"This account has not been activated yet.", http.StatusForbidden},
	CodeUserBlocked:        {"This account has been blocked.", http.StatusForbidden},
	CodeUserNotFound:       {"This user could not be found.", http.StatusNotFound},
	CodeEncryptionFailure:  {"The token could not be created.", http.StatusInternalServerError},
}

// apiError looks up a public error by code.
func apiError(code int) *APIError {
	entry, ok := errorTable[code]
	if !ok {
		return &APIError{Code: code, Description: "Unknown error.", Status: http.StatusInternalServerError}
	}
	return &APIError{Code: code, Description: entry.description, Status: entry.status}
}

// ValidationErrors carries every field error of a request at once, so the
// frontend can mark all offending fields in a single round trip.
type ValidationErrors []*APIError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	return v[0].Error()
}

// Status returns the HTTP status of the first error.
func (v ValidationErrors) Status() int {
	if len(v) == 0 {
		return http.StatusBadRequest
	}
	return v[0].Status
}
