package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Channels
const (
	ChannelShopify = "shopify"
)

// Account statuses
const (
	AccountStatusConnected    = "connected"
	AccountStatusDisconnected = "disconnected"
)

// ShopAuth holds the credentials stored in channel_accounts.auth_json
type ShopAuth struct {
	StoreDomain string `json:"store_domain"`
	APIVersion  string `json:"api_version"`
	AccessToken string `json:"access_token"`
}

// Scan implements sql.Scanner for the jsonb column
func (a *ShopAuth) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = ShopAuth{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported auth_json type %T", src)
	}
	return json.Unmarshal(raw, a)
}

// Value implements driver.Valuer
func (a ShopAuth) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Account is one connected channel credential of a tenant
type Account struct {
	ID       string   `db:"id" json:"id"`
	TenantID string   `db:"tenant_id" json:"tenant_id"`
	Channel  string   `db:"channel" json:"channel"`
	Status   string   `db:"status" json:"status"`
	Auth     ShopAuth `db:"auth_json" json:"-"`
}

// SyncState is the watermark row for a (tenant, channel, account)
type SyncState struct {
	TenantID      string     `db:"tenant_id" json:"tenant_id"`
	Channel       string     `db:"channel" json:"channel"`
	AccountID     string     `db:"account_id" json:"account_id"`
	LastUpdatedAt *time.Time `db:"last_updated_at" json:"last_updated_at"`
}

// Order is the normalized order row, unique on (tenant_id, channel, external_order_id)
type Order struct {
	TenantID          string              `db:"tenant_id" json:"tenant_id"`
	Channel           string              `db:"channel" json:"channel"`
	AccountID         string              `db:"account_id" json:"account_id"`
	ExternalOrderID   string              `db:"external_order_id" json:"external_order_id"`
	OrderDate         *time.Time          `db:"order_date" json:"order_date"`
	Currency          *string             `db:"currency" json:"currency"`
	FinancialStatus   *string             `db:"financial_status" json:"financial_status"`
	FulfillmentStatus *string             `db:"fulfillment_status" json:"fulfillment_status"`
	GrossAmount       decimal.NullDecimal `db:"gross_amount" json:"gross_amount"`
	DiscountAmount    decimal.NullDecimal `db:"discount_amount" json:"discount_amount"`
	NetSalesAmount    decimal.NullDecimal `db:"net_sales_amount" json:"net_sales_amount"`
	CreatedAt         *time.Time          `db:"created_at" json:"created_at"`
	State             *string             `db:"state" json:"state"`
	StateCode         *string             `db:"state_code" json:"state_code"`
	Pincode           *string             `db:"pincode" json:"pincode"`
}
