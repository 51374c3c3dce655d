package invites

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aliuyar1234/sanctus/internal/apperrors"
	"github.com/aliuyar1234/sanctus/internal/auth"
	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/aliuyar1234/sanctus/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type CreateRequest struct {
	Role          domain.Role `json:"role" validate:"required,oneof=Admin SuperAdmin"`
	LifetimeHours int         `json:"lifetimeHours,omitempty" validate:"gte=0,lte=8760"`
	IssuedTo      string      `json:"issuedTo,omitempty" validate:"max=320"`
	Purpose       string      `json:"purpose,omitempty" validate:"max=500"`
}

type CreateResponse struct {
	ID          uuid.UUID   `json:"id"`
	Token       string      `json:"token"`
	Role        domain.Role `json:"role"`
	ExpiresAt   string      `json:"expiresAt"`
	RegisterURL string      `json:"registerUrl"`
}

// RegisterURL is the SPA page an invitee opens to register with token.
func RegisterURL(baseURL, token string) string {
	return baseURL + "/account/register?token=" + url.QueryEscape(token)
}

// HandleCreate handles POST /api/v1/invites
func HandleCreate(svc *Service, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if err := validation.Default().Validate(req); err != nil {
			apperrors.WriteErr(w, r, err)
			return
		}

		params := GenerateInviteParams{
			Role:      req.Role,
			Lifetime:  time.Duration(req.LifetimeHours) * time.Hour,
			IssuedTo:  req.IssuedTo,
			Purpose:   req.Purpose,
			CreatedBy: &userID,
		}

		invite, token, err := svc.GenerateInvite(ctx, params)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to create invite")
			apperrors.WriteErr(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, CreateResponse{
			ID:          invite.ID,
			Token:       token,
			Role:        invite.Role,
			ExpiresAt:   invite.ExpiresAt.Format(time.RFC3339),
			RegisterURL: RegisterURL(baseURL, token),
		})
	}
}

// HandleList handles GET /api/v1/invites
func HandleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit := 0
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "limit must be an integer")
				return
			}
			limit = n
		}

		invites, err := svc.List(r.Context(), q.Get("status"), limit)
		if err != nil {
			apperrors.WriteErr(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invites": invites,
		})
	}
}

// HandleValidate handles GET /api/v1/invites/validate?token=...
// It only answers valid or not, never why.
func HandleValidate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		valid, err := svc.Validate(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			log.Error().Err(err).Msg("Failed to validate invite")
			apperrors.WriteInternalError(w, r, "Failed to validate invitation")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]bool{
			"valid": valid,
		})
	}
}
