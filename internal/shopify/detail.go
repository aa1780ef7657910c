package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"order-ingest/internal/models"
	"order-ingest/internal/util"

	"go.uber.org/zap"
)

// Outcome tags a DetailResult
type Outcome int

const (
	// OutcomeSuccess carries the full order
	OutcomeSuccess Outcome = iota
	// OutcomeDegraded means no detail is available; callers fall back to the list entry
	OutcomeDegraded
	// OutcomeFatal means the caller must stop (the context ended)
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

var errEmptyDetail = errors.New("detail response has no order")

// DetailResult is the result of FetchDetail. Order is set only on success;
// Err explains a degraded or fatal outcome.
type DetailResult struct {
	Outcome Outcome
	Order   *models.ShopifyOrder
	Err     error
}

// DetailURL builds the single-order URL
func (c *Client) DetailURL(auth models.ShopAuth, orderID string) string {
	return c.baseURL(auth) + "/orders/" + url.PathEscape(orderID) + ".json"
}

// FetchDetail fetches one order under the detail retry policy. Exhausted
// retries and terminal statuses degrade instead of failing. The fixed detail
// pause follows every fetch whatever its outcome.
func (c *Client) FetchDetail(ctx context.Context, account models.Account, orderID string) DetailResult {
	ctx, span := util.StartTenantSpan(ctx, "shopify.FetchDetail", account.TenantID)
	defer span.End()

	result := c.fetchDetail(ctx, account, orderID)
	if result.Outcome != OutcomeFatal {
		if err := c.retry.Pause(ctx); err != nil {
			result = DetailResult{Outcome: OutcomeFatal, Err: err}
		}
	}

	util.DetailFetchesTotal.WithLabelValues(result.Outcome.String()).Inc()
	return result
}

func (c *Client) fetchDetail(ctx context.Context, account models.Account, orderID string) DetailResult {
	target := c.DetailURL(account.Auth, orderID)

	var body models.OrderEnvelope
	err := c.retry.Do(ctx, c.detailPolicy, func(ctx context.Context) error {
		body = models.OrderEnvelope{}
		_, err := c.get(ctx, account.Auth, target, "detail", &body)
		return err
	})

	switch {
	case err == nil && body.Order != nil:
		return DetailResult{Outcome: OutcomeSuccess, Order: body.Order}
	case ctx.Err() != nil:
		return DetailResult{Outcome: OutcomeFatal, Err: ctx.Err()}
	case err == nil:
		err = errEmptyDetail
	}

	c.logger.Warn("Order detail unavailable, continuing without it",
		zap.String("tenant_id", account.TenantID),
		zap.String("account_id", account.ID),
		zap.String("order_id", orderID),
		zap.Error(err))
	return DetailResult{Outcome: OutcomeDegraded, Err: err}
}
