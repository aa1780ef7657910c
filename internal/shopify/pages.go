package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"order-ingest/internal/models"
	"order-ingest/internal/retry"
	"order-ingest/internal/util"

	"go.uber.org/zap"
)

var (
	linkEntryRE = regexp.MustCompile(`<([^>]*)>([^<]*)`)
	relParamRE  = regexp.MustCompile(`(?i)rel\s*=\s*"?([^";]+)"?`)
)

// CallBudget is the used/total request quota reported by the remote
type CallBudget struct {
	Used  int
	Total int
}

// Ratio returns Used/Total, or 0 when the budget is unknown
func (b CallBudget) Ratio() float64 {
	if b.Total <= 0 {
		return 0
	}
	return float64(b.Used) / float64(b.Total)
}

// ParseCallBudget parses a "used/total" header value
func ParseCallBudget(value string) (CallBudget, bool) {
	used, total, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok {
		return CallBudget{}, false
	}
	u, err := strconv.Atoi(strings.TrimSpace(used))
	if err != nil {
		return CallBudget{}, false
	}
	t, err := strconv.Atoi(strings.TrimSpace(total))
	if err != nil || t <= 0 {
		return CallBudget{}, false
	}
	return CallBudget{Used: u, Total: t}, true
}

// NextLink returns the URL tagged rel="next" in a Link header, or "" when there is none
func NextLink(header string) string {
	for _, m := range linkEntryRE.FindAllStringSubmatch(header, -1) {
		rel := relParamRE.FindStringSubmatch(m[2])
		if rel == nil {
			continue
		}
		for _, r := range strings.Fields(rel[1]) {
			if strings.EqualFold(r, "next") {
				return m[1]
			}
		}
	}
	return ""
}

// Page is one list response
type Page struct {
	Orders     []models.ShopifyOrder
	NextCursor string
	Budget     CallBudget
}

// ListURL builds the first-page URL: every status, one full page, and the
// watermark as updated_at_min when there is one.
func (c *Client) ListURL(auth models.ShopAuth, since *time.Time) string {
	q := url.Values{}
	q.Set("status", "any")
	q.Set("limit", strconv.Itoa(c.pageSize))
	if since != nil {
		q.Set("updated_at_min", since.UTC().Format(time.RFC3339))
	}
	return c.baseURL(auth) + "/orders.json?" + q.Encode()
}

// FetchPage fetches one list page. A non-empty cursor is requested verbatim.
// Any failure left after the list policy is returned as an error.
func (c *Client) FetchPage(ctx context.Context, account models.Account, since *time.Time, cursor string) (*Page, error) {
	ctx, span := util.StartTenantSpan(ctx, "shopify.FetchPage", account.TenantID)
	var err error
	defer func() { util.EndSpan(span, err) }()

	target := cursor
	if target == "" {
		target = c.ListURL(account.Auth, since)
	}

	var body models.OrdersPage
	var header http.Header
	err = c.retry.Do(ctx, c.listPolicy, func(ctx context.Context) error {
		body = models.OrdersPage{}
		h, err := c.get(ctx, account.Auth, target, "list", &body)
		header = h
		return err
	})
	util.ListFetchesTotal.WithLabelValues(statusLabel(err)).Inc()
	if err != nil {
		c.logger.Error("Order list fetch failed",
			zap.String("tenant_id", account.TenantID),
			zap.String("account_id", account.ID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to fetch orders page for account %s: %w", account.ID, err)
	}

	page := &Page{
		Orders:     body.Orders,
		NextCursor: NextLink(header.Get(HeaderLink)),
	}
	page.Budget, _ = ParseCallBudget(header.Get(HeaderCallLimit))
	return page, nil
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var statusErr *retry.StatusError
	if errors.As(err, &statusErr) {
		return strconv.Itoa(statusErr.StatusCode)
	}
	return "error"
}

// PageFetcher fetches one page
type PageFetcher interface {
	FetchPage(ctx context.Context, account models.Account, since *time.Time, cursor string) (*Page, error)
}

// Throttler paces list requests by call budget
type Throttler interface {
	Throttle(ctx context.Context, ratio float64) (bool, error)
}

// PageIterator walks the page sequence of one account. It can be started
// from any cursor, and Cursor reports where to resume.
//
//	it := client.Pages(account, since, "")
//	for it.Next(ctx) {
//		page := it.Page()
//	}
//	if err := it.Err(); err != nil { ... }
type PageIterator struct {
	fetcher   PageFetcher
	throttler Throttler
	account   models.Account
	since     *time.Time
	cursor    string
	page      *Page
	fetches   int
	done      bool
	err       error
}

// NewPageIterator creates an iterator that starts at cursor, or at the first page when cursor is empty
func NewPageIterator(fetcher PageFetcher, throttler Throttler, account models.Account, since *time.Time, cursor string) *PageIterator {
	return &PageIterator{
		fetcher:   fetcher,
		throttler: throttler,
		account:   account,
		since:     since,
		cursor:    cursor,
	}
}

// Pages returns an iterator over the account's pages using the client's throttle
func (c *Client) Pages(account models.Account, since *time.Time, cursor string) *PageIterator {
	return NewPageIterator(c, c.retry, account, since, cursor)
}

// Next fetches the next page. Before every fetch after the first, the
// previous page's call budget goes through the throttler.
func (it *PageIterator) Next(ctx context.Context) bool {
	if it.done {
		return false
	}

	if it.page != nil && it.throttler != nil {
		if _, err := it.throttler.Throttle(ctx, it.page.Budget.Ratio()); err != nil {
			it.err = err
			it.done = true
			return false
		}
	}

	page, err := it.fetcher.FetchPage(ctx, it.account, it.since, it.cursor)
	if err != nil {
		it.err = err
		it.done = true
		return false
	}

	it.fetches++
	it.page = page
	it.cursor = page.NextCursor
	if it.cursor == "" {
		it.done = true
	}
	return true
}

// Page returns the page fetched by the last successful Next
func (it *PageIterator) Page() *Page {
	return it.page
}

// Err returns the error that stopped the iteration, if any
func (it *PageIterator) Err() error {
	return it.err
}

// Cursor returns the cursor of the next page to fetch; empty once the sequence is exhausted
func (it *PageIterator) Cursor() string {
	return it.cursor
}

// Fetches returns how many pages were fetched
func (it *PageIterator) Fetches() int {
	return it.fetches
}
