// Package postgres provides a PostgreSQL-backed gateway.QuotaStore: one row
// per provider in a usage_counters table, upserted on every Save.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds PostgreSQL storage configuration.
type Config struct {
	ConnectionString string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Store implements gateway.QuotaStore over a Postgres connection pool.
type Store struct {
	pool *pgxpool.Pool
	ctx  context.Context
}

// New opens a connection pool and verifies it, creating the backing table
// if it does not already exist.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{pool: pool, ctx: ctx}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS usage_counters (
			provider   TEXT PRIMARY KEY,
			used_units INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to ensure usage_counters schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Load reads every provider's counter.
func (s *Store) Load() (map[string]int, error) {
	rows, err := s.pool.Query(s.ctx, `SELECT provider, used_units FROM usage_counters`)
	if err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}
	defer rows.Close()

	counters := make(map[string]int)
	for rows.Next() {
		var provider string
		var used int
		if err := rows.Scan(&provider, &used); err != nil {
			return nil, fmt.Errorf("failed to scan counter row: %w", err)
		}
		counters[provider] = used
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate counter rows: %w", err)
	}
	return counters, nil
}

// Save upserts each provider's counter in a single transaction and deletes
// rows no longer present in counters, so Save fully replaces prior state.
func (s *Store) Save(counters map[string]int) error {
	tx, err := s.pool.Begin(s.ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(s.ctx)
	}()

	if _, err := tx.Exec(s.ctx, `DELETE FROM usage_counters`); err != nil {
		return fmt.Errorf("failed to clear counters: %w", err)
	}

	for provider, used := range counters {
		_, err := tx.Exec(s.ctx, `
			INSERT INTO usage_counters (provider, used_units, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (provider) DO UPDATE SET
				used_units = EXCLUDED.used_units,
				updated_at = EXCLUDED.updated_at`,
			provider, used)
		if err != nil {
			return fmt.Errorf("failed to upsert counter for %s: %w", provider, err)
		}
	}

	if err := tx.Commit(s.ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

