package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the API in the error envelope.
const (
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailNotConfirmed  = "email_not_confirmed"
	CodeInvalidArgument    = "invalid_argument"
	CodeConflict           = "conflict"
	CodeTooManyRequests    = "too_many_requests"
)

// APIError is a non-2xx API response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("sanctus: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("sanctus: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

func codeOf(err error) (string, int) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.StatusCode
	}
	return "", 0
}

// IsEmailNotConfirmed reports whether login failed only because the account
// email is unconfirmed, in which case a new confirmation link can be offered.
func IsEmailNotConfirmed(err error) bool {
	code, _ := codeOf(err)
	return code == CodeEmailNotConfirmed
}

func IsInvalidCredentials(err error) bool {
	code, _ := codeOf(err)
	return code == CodeInvalidCredentials
}

// IsUnauthorized reports a 401 of any kind.
func IsUnauthorized(err error) bool {
	_, status := codeOf(err)
	return status == http.StatusUnauthorized
}

func IsForbidden(err error) bool {
	_, status := codeOf(err)
	return status == http.StatusForbidden
}
