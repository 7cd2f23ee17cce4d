package audit

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{`
CREATE TABLE IF NOT EXISTS session_audit_events (
  id           UUID PRIMARY KEY,
  session_id   TEXT NOT NULL,
  type         TEXT NOT NULL,
  user_id      TEXT NOT NULL DEFAULT '',
  workspace_id TEXT NOT NULL DEFAULT '',
  ip_address   TEXT NOT NULL DEFAULT '',
  message      TEXT NOT NULL DEFAULT '',
  metadata     JSONB,
  created_at   TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS session_audit_events_session_idx ON session_audit_events (session_id, created_at)`,
}

// PostgresRepo appends events to session_audit_events. It only ever INSERTs.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("audit: ensure schema: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO session_audit_events
  (id, session_id, type, user_id, workspace_id, ip_address, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	var metadata any
	if e.Metadata != "" {
		metadata = e.Metadata
	}
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.SessionID, string(e.Type), e.UserID, e.WorkspaceID,
		e.IPAddress, e.Message, metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}
