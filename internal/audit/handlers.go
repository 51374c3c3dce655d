package audit

import (
	"net/http"
	"strconv"

	"github.com/aliuyar1234/sanctus/internal/apperrors"
	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/rs/zerolog/log"
)

// HandleList handles GET /api/v1/audit
func HandleList(writer *Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "limit must be an integer")
				return
			}
			limit = n
		}

		events, err := writer.List(r.Context(), limit)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list audit events")
			apperrors.WriteInternalError(w, r, "Failed to list audit events")
			return
		}
		if events == nil {
			events = []domain.AuditEvent{}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"events": events,
		})
	}
}
