package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/aliuyar1234/sanctus/internal/apperrors"
)

const (
	// CSRFCookieName is readable by the SPA, which echoes it in CSRFHeaderName.
	CSRFCookieName = "XSRF-TOKEN"
	CSRFHeaderName = "X-XSRF-TOKEN"

	// CSRFTokenBytes is the number of random bytes for CSRF tokens
	CSRFTokenBytes = 32
)

var (
	errMissingCSRFCookie = errors.New("missing CSRF cookie")
	errMissingCSRFHeader = errors.New("missing CSRF header")
	errCSRFMismatch      = errors.New("CSRF token mismatch")
)

// GenerateCSRFToken generates a cryptographically secure CSRF token
// Returns a base64url-encoded 32-byte random token
func GenerateCSRFToken() (string, error) {
	bytes := make([]byte, CSRFTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// SetCSRFCookie sets the CSRF token in a cookie
// Uses double-submit cookie pattern for CSRF protection
func SetCSRFCookie(w http.ResponseWriter, token string, secure bool) {
	cookie := &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false, // Must be accessible to JavaScript
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, cookie)
}

// GetCSRFCookie reads the CSRF token from the cookie
func GetCSRFCookie(r *http.Request) string {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// ValidateCSRF compares the header token with the cookie token.
func ValidateCSRF(r *http.Request) error {
	cookieToken := GetCSRFCookie(r)
	if cookieToken == "" {
		return errMissingCSRFCookie
	}

	headerToken := r.Header.Get(CSRFHeaderName)
	if headerToken == "" {
		return errMissingCSRFHeader
	}

	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) != 1 {
		return errCSRFMismatch
	}
	return nil
}

// HandleCSRF handles GET /api/v1/auth/csrf.
// It keeps an existing token so parallel tabs do not invalidate each other.
func HandleCSRF(secure bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := GetCSRFCookie(r)
		if token == "" {
			var err error
			token, err = GenerateCSRFToken()
			if err != nil {
				apperrors.WriteErr(w, r, err)
				return
			}
		}
		SetCSRFCookie(w, token, secure)

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"token": token,
		})
	}
}
