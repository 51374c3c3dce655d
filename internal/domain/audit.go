package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditEvent is one append-only audit log row.
type AuditEvent struct {
	ID          uuid.UUID      `json:"id"`
	ActorUserID *uuid.UUID     `json:"actorUserId,omitempty"`
	Action      string         `json:"action"`
	Meta        map[string]any `json:"meta"`
	CreatedAt   time.Time      `json:"createdAt"`
}
