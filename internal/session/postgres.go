package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"club-dashboard/pkg/utils"
)

// NOTE: PostgresStore assumes the dashboard_sessions table created by
// EnsureSchema. Every write bumps updated_at so Sweep can expire idle rows.

var schemaStatements = []string{`
CREATE TABLE IF NOT EXISTS dashboard_sessions (
  session_id    TEXT PRIMARY KEY,
  access_token  TEXT NOT NULL DEFAULT '',
  refresh_token TEXT NOT NULL DEFAULT '',
  user_json     JSONB,
  workspace_id  TEXT NOT NULL DEFAULT '',
  updated_at    TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS dashboard_sessions_updated_at_idx ON dashboard_sessions (updated_at)`,
}

// PostgresStore keeps one browser session in one dashboard_sessions row.
type PostgresStore struct {
	db    *sql.DB
	sid   string
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB, sessionID string) *PostgresStore {
	return &PostgresStore{db: db, sid: sessionID, clock: time.Now}
}

func (s *PostgresStore) Credentials(ctx context.Context) (Credentials, error) {
	const q = `
SELECT access_token, refresh_token
FROM dashboard_sessions
WHERE session_id = $1
`
	var c Credentials
	if err := s.db.QueryRowContext(ctx, q, s.sid).Scan(&c.AccessToken, &c.RefreshToken); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credentials{}, nil
		}
		return Credentials{}, fmt.Errorf("session: read tokens: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) SetTokens(ctx context.Context, c Credentials) error {
	if !c.Valid() {
		c = Credentials{}
	}
	const q = `
INSERT INTO dashboard_sessions (session_id, access_token, refresh_token, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (session_id)
DO UPDATE SET access_token = EXCLUDED.access_token,
              refresh_token = EXCLUDED.refresh_token,
              updated_at = EXCLUDED.updated_at
`
	if _, err := s.db.ExecContext(ctx, q, s.sid, c.AccessToken, c.RefreshToken, s.clock().UTC()); err != nil {
		return fmt.Errorf("session: write tokens: %w", err)
	}
	return nil
}

func (s *PostgresStore) User(ctx context.Context) (*Identity, error) {
	const q = `
SELECT user_json
FROM dashboard_sessions
WHERE session_id = $1
`
	var raw []byte
	if err := s.db.QueryRowContext(ctx, q, s.sid).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: read user: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var u Identity
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("session: decode user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) SetUser(ctx context.Context, u Identity) error {
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("session: encode user: %w", err)
	}
	const q = `
INSERT INTO dashboard_sessions (session_id, user_json, updated_at)
VALUES ($1,$2,$3)
ON CONFLICT (session_id)
DO UPDATE SET user_json = EXCLUDED.user_json,
              updated_at = EXCLUDED.updated_at
`
	if _, err := s.db.ExecContext(ctx, q, s.sid, string(b), s.clock().UTC()); err != nil {
		return fmt.Errorf("session: write user: %w", err)
	}
	return nil
}

func (s *PostgresStore) WorkspaceID(ctx context.Context) (string, error) {
	const q = `
SELECT workspace_id
FROM dashboard_sessions
WHERE session_id = $1
`
	var id string
	if err := s.db.QueryRowContext(ctx, q, s.sid).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("session: read workspace: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) SetWorkspaceID(ctx context.Context, id string) error {
	const q = `
INSERT INTO dashboard_sessions (session_id, workspace_id, updated_at)
VALUES ($1,$2,$3)
ON CONFLICT (session_id)
DO UPDATE SET workspace_id = EXCLUDED.workspace_id,
              updated_at = EXCLUDED.updated_at
`
	if _, err := s.db.ExecContext(ctx, q, s.sid, id, s.clock().UTC()); err != nil {
		return fmt.Errorf("session: write workspace: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	const q = `DELETE FROM dashboard_sessions WHERE session_id = $1`
	if _, err := s.db.ExecContext(ctx, q, s.sid); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

// PostgresBackend opens PostgresStores over a shared pool.
type PostgresBackend struct {
	db *sql.DB
}

func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Open(sessionID string) (Store, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	return NewPostgresStore(b.db, sessionID), nil
}

// EnsureSchema creates the sessions table if missing.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	return utils.WithTx(ctx, b.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("session: ensure schema: %w", err)
			}
		}
		return nil
	})
}

// Sweep deletes sessions idle since before cutoff and reports how many went away.
func (b *PostgresBackend) Sweep(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM dashboard_sessions WHERE updated_at < $1`
	res, err := b.db.ExecContext(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("session: sweep: %w", err)
	}
	return res.RowsAffected()
}
