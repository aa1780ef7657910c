package store

import (
	"context"
	"fmt"
	"time"

	"order-ingest/internal/models"
	"order-ingest/internal/util"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// New wraps an existing connection
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListConnectedAccounts returns the tenant's connected accounts for a channel
func (s *Store) ListConnectedAccounts(ctx context.Context, tenantID, channel string) ([]models.Account, error) {
	ctx, span := util.StartTenantSpan(ctx, "Store.ListConnectedAccounts", tenantID)
	defer span.End()

	var accounts []models.Account
	err := s.db.SelectContext(ctx, &accounts, `
		SELECT id, tenant_id, channel, status, auth_json
		FROM channel_accounts
		WHERE tenant_id = $1 AND channel = $2 AND status = $3
		ORDER BY id`,
		tenantID, channel, models.AccountStatusConnected)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// ListTenants returns every tenant with at least one connected account for a channel
func (s *Store) ListTenants(ctx context.Context, channel string) ([]string, error) {
	var tenants []string
	err := s.db.SelectContext(ctx, &tenants, `
		SELECT DISTINCT tenant_id
		FROM channel_accounts
		WHERE channel = $1 AND status = $2
		ORDER BY tenant_id`,
		channel, models.AccountStatusConnected)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}
