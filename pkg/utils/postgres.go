package utils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Session rows are small and hot: many short queries, few long ones.
const (
	defaultPGMaxConns     = 20
	defaultPGConnLifetime = 30 * time.Minute
	defaultPGConnIdle     = 5 * time.Minute
	defaultPGPingTimeout  = 5 * time.Second
)

type pgSettings struct {
	maxConns     int
	connLifetime time.Duration
	connIdle     time.Duration
	pingTimeout  time.Duration
}

// PostgresOption tunes the pool opened by OpenPostgres.
type PostgresOption func(*pgSettings)

// WithMaxConns caps open connections; idle connections use the same cap.
func WithMaxConns(n int) PostgresOption {
	return func(s *pgSettings) {
		if n > 0 {
			s.maxConns = n
		}
	}
}

func WithConnLifetime(d time.Duration) PostgresOption {
	return func(s *pgSettings) {
		if d > 0 {
			s.connLifetime = d
		}
	}
}

func WithPingTimeout(d time.Duration) PostgresOption {
	return func(s *pgSettings) {
		if d > 0 {
			s.pingTimeout = d
		}
	}
}

// OpenPostgres opens a pgx-backed *sql.DB and verifies it with a ping.
// dsn must not be logged; it contains secrets.
func OpenPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	s := pgSettings{
		maxConns:     defaultPGMaxConns,
		connLifetime: defaultPGConnLifetime,
		connIdle:     defaultPGConnIdle,
		pingTimeout:  defaultPGPingTimeout,
	}
	for _, o := range opts {
		o(&s)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(s.maxConns)
	db.SetMaxIdleConns(s.maxConns)
	db.SetConnMaxLifetime(s.connLifetime)
	db.SetConnMaxIdleTime(s.connIdle)

	if err := Ping(ctx, db, s.pingTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Ping checks the database within timeout.
func Ping(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// WithTx runs fn in a transaction, committing when fn returns nil.
// A failed or panicking fn rolls back; a panic is re-raised after rollback.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	committed = true
	return tx.Commit()
}
