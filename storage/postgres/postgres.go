// Package postgres provides the durable side of the subsystem: the per-user
// profile store and the processed-webhook-event ledger, both on pgx. The
// ledger's primary key is the idempotency enforcement mechanism - the insert
// is the serialization point for concurrent deliveries of the same event.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moemoe9876/ingestio-sub002/pkg/billing"
	"github.com/moemoe9876/ingestio-sub002/pkg/entitlements"
)

const uniqueViolationCode = "23505"

// Config holds PostgreSQL storage configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
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

// Store implements entitlements.ProfileStore and billing.EventLedger on a
// shared connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a PostgreSQL store.
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

	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool. The caller keeps ownership of the pool.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Schema is the DDL for the tables this store uses. Applied by the
// deployment's migration step, exposed here so tests and examples can
// bootstrap a database.
const Schema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id            TEXT PRIMARY KEY,
	stripe_customer_id TEXT,
	membership         TEXT NOT NULL DEFAULT 'starter',
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS processed_webhook_events (
	event_id     TEXT PRIMARY KEY,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// InitSchema creates the tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetByUserID implements entitlements.ProfileStore.
func (s *Store) GetByUserID(ctx context.Context, userID string) (*entitlements.Profile, error) {
	var (
		profile    entitlements.Profile
		customerID *string
	)

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, stripe_customer_id, membership, updated_at
		 FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&profile.UserID, &customerID, &profile.Membership, &profile.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entitlements.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if customerID != nil {
		profile.StripeCustomerID = *customerID
	}
	return &profile, nil
}

// UpdateCustomerID implements entitlements.ProfileStore with upsert semantics.
func (s *Store) UpdateCustomerID(ctx context.Context, userID, customerID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, stripe_customer_id, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			updated_at = now()`,
		userID, customerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update customer id: %w", err)
	}
	return nil
}

// UpdateMembership persists the tier label on a user's profile. Unknown
// tier labels are rejected before they reach the database.
func (s *Store) UpdateMembership(ctx context.Context, userID string, membership entitlements.Tier) error {
	if !entitlements.ValidTier(membership) {
		return fmt.Errorf("%w: %q", entitlements.ErrInvalidTier, membership)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, membership, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET
			membership = EXCLUDED.membership,
			updated_at = now()`,
		userID, string(membership),
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	return nil
}

// HasProcessed implements billing.EventLedger.
func (s *Store) HasProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_webhook_events WHERE event_id = $1)`,
		eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return exists, nil
}

// MarkProcessed implements billing.EventLedger. The primary-key collision on
// event_id, not an application-level check, is what makes the second call fail.
func (s *Store) MarkProcessed(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO processed_webhook_events (event_id, processed_at)
		 VALUES ($1, now())`,
		eventID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return billing.ErrDuplicateEvent
		}
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}
