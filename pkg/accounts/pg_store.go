package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists accounts in PostgreSQL
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects, verifies the connection and creates the schema.
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	s := &PGStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

func (s *PGStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PGStore) Save(ctx context.Context, a Account) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (username, password) VALUES ($1, $2) ON CONFLICT (username) DO NOTHING`,
		a.Username, a.Password)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAccountExists, a.Username)
	}
	return nil
}

func (s *PGStore) FindByUsername(ctx context.Context, username string) (Account, error) {
	var a Account
	err := s.pool.QueryRow(ctx,
		`SELECT username, password FROM accounts WHERE username = $1`, username).
		Scan(&a.Username, &a.Password)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, username)
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (s *PGStore) Delete(ctx context.Context, username string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, username)
	}
	return nil
}

func (s *PGStore) ListAll(ctx context.Context) ([]Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT username, password FROM accounts ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Account, error) {
		var a Account
		err := row.Scan(&a.Username, &a.Password)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan accounts: %w", err)
	}
	return out, nil
}

// Ping checks database connectivity
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PGStore)(nil)
