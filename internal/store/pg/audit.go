package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"tiergate.dev/internal/audit"
)

var _ audit.Sink = (*AuditSink)(nil)

// AuditSink appends entries to auth_audit_log. It never updates or deletes.
type AuditSink struct {
	db *sqlx.DB
}

func (s *Store) AuditSink() *AuditSink { return &AuditSink{db: s.db} }

func (s *AuditSink) Write(ctx context.Context, e audit.Entry) error {
	details := []byte("{}")
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
		details = b
	}
	_, err := s.db.ExecContext(ctx, `
		insert into auth_audit_log
			(id, event_type, user_id, email, token_id, ip_address, user_agent, request_id, details, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, string(e.Event), nullIfEmpty(e.UserID), nullIfEmpty(e.Email), nullIfEmpty(e.TokenID),
		nullIfEmpty(e.IP), nullIfEmpty(e.UserAgent), nullIfEmpty(e.RequestID), details, e.Timestamp)
	return err
}
