package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aliuyar1234/sanctus/internal/accounts"
	"github.com/aliuyar1234/sanctus/internal/apperrors"
	"github.com/aliuyar1234/sanctus/internal/audit"
	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/aliuyar1234/sanctus/internal/metrics"
	"github.com/aliuyar1234/sanctus/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SessionConfig controls how session cookies are minted.
type SessionConfig struct {
	Secret      string
	SessionDays int
	Secure      bool
}

// CurrentUserResponse is the shape of the signed-in user.
type CurrentUserResponse struct {
	ID        uuid.UUID   `json:"id"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
}

func currentUser(u *domain.User) CurrentUserResponse {
	return CurrentUserResponse{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      u.Role,
	}
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// HandleLogin handles POST /api/v1/auth/login
func HandleLogin(svc *accounts.Service, auditor *audit.Writer, m *metrics.Metrics, sess SessionConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		email := validation.NormalizeEmail(req.Email)

		user, err := svc.Login(ctx, email, req.Password)
		if err != nil {
			outcome := metrics.OutcomeError
			switch {
			case errors.Is(err, accounts.ErrInvalidCredentials):
				outcome = metrics.OutcomeInvalidCredentials
			case errors.Is(err, accounts.ErrEmailNotConfirmed):
				outcome = metrics.OutcomeEmailNotConfirmed
			default:
				log.Error().Err(err).Msg("Login failed")
			}
			m.Login(outcome)

			if outcome != metrics.OutcomeError {
				log.Debug().Str("reason", outcome).Msg("Login rejected")
				if auditErr := auditor.LogLoginFailed(ctx, email, r.RemoteAddr, outcome); auditErr != nil {
					log.Error().Err(auditErr).Msg("Failed to log audit event")
				}
			}

			apperrors.WriteErr(w, r, err)
			return
		}

		token, err := CreateToken(user.ID, sess.Secret, sess.SessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}

		maxAge := 0
		if req.RememberMe {
			maxAge = sess.SessionDays * 24 * 60 * 60
		}
		SetSessionCookie(w, token, maxAge, sess.Secure)

		m.Login(metrics.OutcomeSuccess)
		if err := auditor.LogLogin(ctx, user.ID, r.RemoteAddr); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		log.Info().
			Str("user_id", user.ID.String()).
			Bool("remember_me", req.RememberMe).
			Msg("User logged in successfully")

		apperrors.WriteSuccess(w, r, http.StatusOK, currentUser(user))
	}
}

// HandleLogout handles POST /api/v1/auth/logout. Logging out without a
// session succeeds.
func HandleLogout(sess SessionConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ClearSessionCookie(w, sess.Secure)

		if userID := GetUserID(r.Context()); userID != uuid.Nil {
			log.Info().Str("user_id", userID.String()).Msg("User logged out")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "logged_out",
		})
	}
}

// HandleMe handles GET /api/v1/account/me
func HandleMe(svc *accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := loadUser(w, r, svc)
		if !ok {
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, currentUser(user))
	}
}

// HandleRole handles GET /api/v1/account/role
func HandleRole(svc *accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := loadUser(w, r, svc)
		if !ok {
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]domain.Role{
			"role": user.Role,
		})
	}
}

// loadUser resolves the session user. A valid token for a deleted user is
// treated as no session.
func loadUser(w http.ResponseWriter, r *http.Request, svc *accounts.Service) (*domain.User, bool) {
	userID := GetUserID(r.Context())
	if userID == uuid.Nil {
		apperrors.WriteUnauthorized(w, r, "Authentication required")
		return nil, false
	}

	user, err := svc.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, accounts.ErrUserNotFound) {
			apperrors.WriteUnauthorized(w, r, "Authentication required")
			return nil, false
		}
		apperrors.WriteErr(w, r, err)
		return nil, false
	}
	return user, true
}

// HandleRegister handles POST /api/v1/auth/register
func HandleRegister(svc *accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req accounts.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		user, err := svc.Register(r.Context(), req)
		if err != nil {
			apperrors.WriteErr(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"user":                 currentUser(user),
			"confirmationRequired": !user.IsEmailConfirmed(),
		})
	}
}

type tokenRequest struct {
	Token string `json:"token"`
}

// HandleConfirmEmail handles POST /api/v1/auth/confirm-email
func HandleConfirmEmail(svc *accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		if err := svc.ConfirmEmail(r.Context(), req.Token); err != nil {
			apperrors.WriteErr(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]bool{
			"confirmed": true,
		})
	}
}

type emailRequest struct {
	Email string `json:"email"`
}

// HandleResendConfirmation handles POST /api/v1/auth/resend-confirmation.
// The response is identical for known and unknown addresses.
func HandleResendConfirmation(svc *accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req emailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		if err := svc.ResendConfirmation(r.Context(), req.Email); err != nil {
			apperrors.WriteErr(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusAccepted, map[string]string{
			"status": "accepted",
		})
	}
}
