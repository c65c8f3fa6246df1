package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/apparel-catalog/internal/audit"
)

const insertAuditEventSQL = `INSERT INTO audit_events (id, action, owner_id, design_id, payload, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO NOTHING`

var _ audit.Sink = (*AuditSink)(nil)

// AuditSink stores audit events with their payload in a JSONB column.
type AuditSink struct {
	pool *pgxpool.Pool
}

// NewAuditSink returns an AuditSink that uses the given pool.
func NewAuditSink(pool *pgxpool.Pool) *AuditSink {
	return &AuditSink{pool: pool}
}

func (s *AuditSink) Write(ctx context.Context, ev audit.Event) error {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling audit payload: %w", err)
	}

	if _, err := s.pool.Exec(ctx, insertAuditEventSQL,
		ev.ID, ev.Action, ev.OwnerID, ev.DesignID, payloadJSON, ev.At,
	); err != nil {
		return fmt.Errorf("writing audit event %q: %w", ev.ID, err)
	}
	return nil
}
