package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"order-ingest/internal/models"
	"order-ingest/internal/util"
)

const upsertOrderQuery = `
	INSERT INTO orders (
		tenant_id, channel, account_id, external_order_id, order_date, currency,
		financial_status, fulfillment_status, gross_amount, discount_amount,
		net_sales_amount, created_at, state, state_code, pincode
	) VALUES (
		:tenant_id, :channel, :account_id, :external_order_id, :order_date, :currency,
		:financial_status, :fulfillment_status, :gross_amount, :discount_amount,
		:net_sales_amount, :created_at, :state, :state_code, :pincode
	)
	ON CONFLICT (tenant_id, channel, external_order_id) DO UPDATE SET
		account_id = EXCLUDED.account_id,
		order_date = EXCLUDED.order_date,
		currency = EXCLUDED.currency,
		financial_status = EXCLUDED.financial_status,
		fulfillment_status = EXCLUDED.fulfillment_status,
		gross_amount = EXCLUDED.gross_amount,
		discount_amount = EXCLUDED.discount_amount,
		net_sales_amount = EXCLUDED.net_sales_amount,
		created_at = EXCLUDED.created_at,
		state = EXCLUDED.state,
		state_code = EXCLUDED.state_code,
		pincode = EXCLUDED.pincode,
		ingested_at = NOW()`

// UpsertOrder inserts the order or replaces every column of the existing
// row with the same (tenant_id, channel, external_order_id)
func (s *Store) UpsertOrder(ctx context.Context, order *models.Order) error {
	if _, err := s.db.NamedExecContext(ctx, upsertOrderQuery, order); err != nil {
		return fmt.Errorf("failed to upsert order %s: %w", order.ExternalOrderID, err)
	}
	return nil
}

// GetOrder retrieves an order by its conflict key
func (s *Store) GetOrder(ctx context.Context, tenantID, channel, externalOrderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, `
		SELECT tenant_id, channel, account_id, external_order_id, order_date, currency,
			financial_status, fulfillment_status, gross_amount, discount_amount,
			net_sales_amount, created_at, state, state_code, pincode
		FROM orders
		WHERE tenant_id = $1 AND channel = $2 AND external_order_id = $3`,
		tenantID, channel, externalOrderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order not found: %s", externalOrderID)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetWatermark returns the last synced updated_at, or nil when the account
// has never completed a sync
func (s *Store) GetWatermark(ctx context.Context, tenantID, channel, accountID string) (*time.Time, error) {
	ctx, span := util.StartTenantSpan(ctx, "Store.GetWatermark", tenantID)
	defer span.End()

	var ts sql.NullTime
	err := s.db.GetContext(ctx, &ts, `
		SELECT last_updated_at FROM sync_state
		WHERE tenant_id = $1 AND channel = $2 AND account_id = $3`,
		tenantID, channel, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark: %w", err)
	}
	if !ts.Valid {
		return nil, nil
	}
	return &ts.Time, nil
}

// SetWatermark records at as the account's watermark. The stored value never
// moves backwards.
func (s *Store) SetWatermark(ctx context.Context, tenantID, channel, accountID string, at time.Time) error {
	ctx, span := util.StartTenantSpan(ctx, "Store.SetWatermark", tenantID)
	defer span.End()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (tenant_id, channel, account_id, last_updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, channel, account_id) DO UPDATE SET
			last_updated_at = GREATEST(sync_state.last_updated_at, EXCLUDED.last_updated_at),
			updated_at = NOW()`,
		tenantID, channel, accountID, at)
	if err != nil {
		return fmt.Errorf("failed to write watermark: %w", err)
	}
	return nil
}

// RefreshMetrics triggers the downstream aggregate refresh
func (s *Store) RefreshMetrics(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "Store.RefreshMetrics")
	defer span.End()

	if _, err := s.db.ExecContext(ctx, "SELECT refresh_metrics()"); err != nil {
		return fmt.Errorf("failed to refresh metrics: %w", err)
	}
	return nil
}
