package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/aliuyar1234/sanctus/internal/store"
	"github.com/google/uuid"
)

type auditRepo struct {
	q querier
}

func (r *auditRepo) Append(ctx context.Context, e *domain.AuditEvent) error {
	meta := []byte("{}")
	if e.Meta != nil {
		b, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("marshal audit meta: %w", err)
		}
		meta = b
	}

	var actor uuid.NullUUID
	if e.ActorUserID != nil {
		actor = uuid.NullUUID{UUID: *e.ActorUserID, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_user_id, action, meta, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID.String(), actor, e.Action, string(meta), formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *auditRepo) List(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, actor_user_id, action, meta, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT ?
	`, store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEvent
	for rows.Next() {
		var (
			e         domain.AuditEvent
			actor     uuid.NullUUID
			meta      string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &actor, &e.Action, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		if actor.Valid {
			id := actor.UUID
			e.ActorUserID = &id
		}
		e.Meta = map[string]any{}
		_ = json.Unmarshal([]byte(meta), &e.Meta)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
