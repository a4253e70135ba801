// Package postgres provides a Postgres-backed account store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/bluemap-render/internal/account"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for account rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Store reads accounts from Postgres.
type Store struct {
	pool  querier
	table string
}

// NewStore creates a Postgres-backed Store using the provided config.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(pool querier, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "accounts"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the accounts table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id         BIGINT PRIMARY KEY,
	username   TEXT NOT NULL UNIQUE,
	token      TEXT NOT NULL UNIQUE,
	verified   BOOLEAN NOT NULL DEFAULT FALSE,
	services   TEXT[] NOT NULL DEFAULT '{}',
	limit_name TEXT,
	access     JSONB NOT NULL DEFAULT '{}'
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// ByToken implements account.Store.
func (s *Store) ByToken(ctx context.Context, token string) (account.Account, error) {
	if token == "" {
		return account.Account{}, account.ErrNotFound
	}
	return s.selectOne(ctx, "token = $1", token)
}

// ByUsername implements account.Store. Usernames match case-insensitively.
func (s *Store) ByUsername(ctx context.Context, username string) (account.Account, error) {
	return s.selectOne(ctx, "lower(username) = lower($1)", username)
}

// EnableService implements account.Store.
func (s *Store) EnableService(ctx context.Context, accountID int64, service string) error {
	query := fmt.Sprintf(`
UPDATE %s
SET services = array_append(services, $2)
WHERE id = $1 AND NOT ($2 = ANY(services))`, s.table)
	if _, err := s.pool.Exec(ctx, query, accountID, service); err != nil {
		return fmt.Errorf("enable service %s: %w", service, err)
	}
	return nil
}

func (s *Store) selectOne(ctx context.Context, where string, arg any) (account.Account, error) {
	query := fmt.Sprintf(`
SELECT id, username, token, verified, services, COALESCE(limit_name, ''), access
FROM %s
WHERE %s
LIMIT 1`, s.table, where)

	var (
		a         account.Account
		accessRaw []byte
	)
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&a.ID,
		&a.Username,
		&a.Token,
		&a.Verified,
		&a.Services,
		&a.Limit,
		&accessRaw,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.Account{}, account.ErrNotFound
	}
	if err != nil {
		return account.Account{}, fmt.Errorf("select account: %w", err)
	}
	if len(accessRaw) > 0 {
		if err := json.Unmarshal(accessRaw, &a.Access); err != nil {
			return account.Account{}, fmt.Errorf("decode access for %d: %w", a.ID, err)
		}
	}
	return a, nil
}
