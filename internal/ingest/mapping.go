package ingest

import (
	"order-ingest/internal/models"
	"order-ingest/internal/normalize"

	"github.com/shopspring/decimal"
)

// toOrder maps an Admin API order onto the persisted row, normalizing the
// shipping (or billing) address state
func toOrder(tenantID, channel, accountID string, o *models.ShopifyOrder, states *normalize.StateTable) *models.Order {
	order := &models.Order{
		TenantID:          tenantID,
		Channel:           channel,
		AccountID:         accountID,
		ExternalOrderID:   o.ExternalID(),
		OrderDate:         o.CreatedAt,
		CreatedAt:         o.CreatedAt,
		Currency:          optional(firstNonEmpty(o.Currency, o.CurrencyCode)),
		FinancialStatus:   o.FinancialStatus,
		FulfillmentStatus: o.FulfillmentStatus,
		GrossAmount:       grossAmount(o),
		DiscountAmount:    discountAmount(o),
		NetSalesAmount:    netSalesAmount(o),
	}

	if addr := o.Address(); addr != nil {
		pincode := addr.Pincode()
		norm := states.Normalize(addr.RawState(), addr.RawStateCode(), pincode)
		order.State = norm.State
		order.StateCode = norm.StateCode
		order.Pincode = optional(pincode)
	}
	return order
}

func grossAmount(o *models.ShopifyOrder) decimal.NullDecimal {
	if o.TotalPrice.Valid {
		return o.TotalPrice.NullDecimal
	}
	if o.TotalPriceSet != nil && o.TotalPriceSet.ShopMoney.Valid {
		return o.TotalPriceSet.ShopMoney.NullDecimal
	}
	return decimal.NullDecimal{}
}

func discountAmount(o *models.ShopifyOrder) decimal.NullDecimal {
	if o.TotalDiscounts.Valid {
		return o.TotalDiscounts.NullDecimal
	}
	if o.TotalDiscount.Valid {
		return o.TotalDiscount.NullDecimal
	}
	return decimal.NewNullDecimal(decimal.Zero)
}

func netSalesAmount(o *models.ShopifyOrder) decimal.NullDecimal {
	if o.CurrentTotalPrice.Valid {
		return o.CurrentTotalPrice.NullDecimal
	}
	if o.TotalPrice.Valid {
		net := o.TotalPrice.Decimal
		if o.TotalDiscounts.Valid {
			net = net.Sub(o.TotalDiscounts.Decimal)
		}
		return decimal.NewNullDecimal(net)
	}
	return decimal.NullDecimal{}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
