package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Money decodes the amount shapes the Admin API uses: "12.50", 12.5 or {"amount": "12.50"}
type Money struct {
	decimal.NullDecimal
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" || string(b) == `""` {
		m.NullDecimal = decimal.NullDecimal{}
		return nil
	}

	if b[0] == '{' {
		var obj struct {
			Amount Money `json:"amount"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*m = obj.Amount
		return nil
	}

	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	m.NullDecimal = decimal.NewNullDecimal(d)
	return nil
}

// PriceSet is the multi-currency price wrapper
type PriceSet struct {
	ShopMoney Money `json:"shop_money"`
}

// Address is a shipping or billing address as returned by the Admin API
type Address struct {
	Zip          string `json:"zip"`
	PostalCode   string `json:"postal_code"`
	Postcode     string `json:"postcode"`
	ZipCode      string `json:"zip_code"`
	PinCode      string `json:"pincode"`
	Province     string `json:"province"`
	State        string `json:"state"`
	Region       string `json:"region"`
	ProvinceCode string `json:"province_code"`
	StateCode    string `json:"state_code"`
}

// Pincode returns the first non-empty postal code field
func (a *Address) Pincode() string {
	return firstNonEmpty(a.Zip, a.PostalCode, a.Postcode, a.ZipCode, a.PinCode)
}

// RawState returns the first non-empty state name field
func (a *Address) RawState() string {
	return firstNonEmpty(a.Province, a.State, a.Region)
}

// RawStateCode returns the first non-empty state code field
func (a *Address) RawStateCode() string {
	return firstNonEmpty(a.ProvinceCode, a.StateCode)
}

// ShopifyOrder is an order entry in orders.json or orders/{id}.json
type ShopifyOrder struct {
	ID                json.Number `json:"id"`
	Name              string      `json:"name"`
	CreatedAt         *time.Time  `json:"created_at"`
	UpdatedAt         *time.Time  `json:"updated_at"`
	Currency          string      `json:"currency"`
	CurrencyCode      string      `json:"currency_code"`
	FinancialStatus   *string     `json:"financial_status"`
	FulfillmentStatus *string     `json:"fulfillment_status"`
	TotalPrice        Money       `json:"total_price"`
	TotalPriceSet     *PriceSet   `json:"total_price_set"`
	TotalDiscounts    Money       `json:"total_discounts"`
	TotalDiscount     Money       `json:"total_discount"`
	CurrentTotalPrice Money       `json:"current_total_price"`
	ShippingAddress   *Address    `json:"shipping_address"`
	BillingAddress    *Address    `json:"billing_address"`
}

// Address returns the shipping address, falling back to billing
func (o *ShopifyOrder) Address() *Address {
	if o.ShippingAddress != nil {
		return o.ShippingAddress
	}
	return o.BillingAddress
}

// HasAddress reports whether the entry carries any address
func (o *ShopifyOrder) HasAddress() bool {
	return o.Address() != nil
}

// ExternalID is the id as a string, or the order name when the id is missing
func (o *ShopifyOrder) ExternalID() string {
	if id := o.ID.String(); id != "" {
		return id
	}
	return o.Name
}

// OrdersPage is the body of orders.json
type OrdersPage struct {
	Orders []ShopifyOrder `json:"orders"`
}

// OrderEnvelope is the body of orders/{id}.json
type OrderEnvelope struct {
	Order *ShopifyOrder `json:"order"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
