package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/aliuyar1234/sanctus/internal/store"
	"github.com/jackc/pgx/v5"
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

	_, err := r.q.Exec(ctx, `
		INSERT INTO audit_log (id, actor_user_id, action, meta, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.ActorUserID, e.Action, meta, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *auditRepo) List(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, actor_user_id, action, meta, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1
	`, store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuditEvent, error) {
		var (
			e       domain.AuditEvent
			metaRaw []byte
		)
		if err := row.Scan(&e.ID, &e.ActorUserID, &e.Action, &metaRaw, &e.CreatedAt); err != nil {
			return e, err
		}
		e.Meta = map[string]any{}
		if len(metaRaw) > 0 {
			_ = json.Unmarshal(metaRaw, &e.Meta)
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan audit rows: %w", err)
	}
	return out, nil
}
