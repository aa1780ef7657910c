package shopify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"order-ingest/internal/models"
	"order-ingest/internal/retry"
	"order-ingest/internal/retry/retrytest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVersion = "2024-01"

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *retrytest.Clock, models.Account) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	clock := &retrytest.Clock{}
	client := NewClient(retry.NewController(clock, retry.DefaultThrottle()), WithScheme("http"))

	account := models.Account{
		ID:       "acc-1",
		TenantID: "tenant-1",
		Channel:  models.ChannelShopify,
		Status:   models.AccountStatusConnected,
		Auth: models.ShopAuth{
			StoreDomain: strings.TrimPrefix(srv.URL, "http://"),
			APIVersion:  testVersion,
			AccessToken: "shpat_test",
		},
	}
	return client, clock, account
}

func pageURL(r *http.Request, pageInfo string) string {
	return fmt.Sprintf("http://%s/admin/api/%s/orders.json?limit=250&page_info=%s", r.Host, testVersion, pageInfo)
}

func TestNextLink(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"empty", "", ""},
		{"next only", `<https://shop.example/orders.json?page_info=abc>; rel="next"`, "https://shop.example/orders.json?page_info=abc"},
		{"previous and next", `<https://s/o.json?page_info=p>; rel="previous", <https://s/o.json?page_info=n>; rel="next"`, "https://s/o.json?page_info=n"},
		{"previous only", `<https://s/o.json?page_info=p>; rel="previous"`, ""},
		{"unquoted rel", `<https://s/o.json?page_info=n>; rel=next`, "https://s/o.json?page_info=n"},
		{"multiple rel values", `<https://s/o.json?page_info=n>; rel="last next"`, "https://s/o.json?page_info=n"},
		{"garbage", `not a link header`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextLink(tt.header))
		})
	}
}

func TestParseCallBudget(t *testing.T) {
	b, ok := ParseCallBudget("41/50")
	require.True(t, ok)
	assert.InDelta(t, 0.82, b.Ratio(), 0.0001)

	b, ok = ParseCallBudget(" 30 / 50 ")
	require.True(t, ok)
	assert.InDelta(t, 0.6, b.Ratio(), 0.0001)

	for _, bad := range []string{"", "41", "a/50", "41/0", "41/b"} {
		_, ok := ParseCallBudget(bad)
		assert.False(t, ok, bad)
	}

	assert.Equal(t, 0.0, CallBudget{}.Ratio())
}

func TestListURL(t *testing.T) {
	c := NewClient(retry.NewController(&retrytest.Clock{}, retry.DefaultThrottle()))
	auth := models.ShopAuth{StoreDomain: "demo.myshopify.com", APIVersion: testVersion}

	assert.Equal(t,
		"https://demo.myshopify.com/admin/api/2024-01/orders.json?limit=250&status=any",
		c.ListURL(auth, nil))

	since := time.Date(2024, 3, 1, 10, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
	assert.Equal(t,
		"https://demo.myshopify.com/admin/api/2024-01/orders.json?limit=250&status=any&updated_at_min=2024-03-01T05%3A00%3A00Z",
		c.ListURL(auth, &since))

	assert.Equal(t,
		"https://demo.myshopify.com/admin/api/2024-01/orders/42.json",
		c.DetailURL(auth, "42"))
}

func TestFetchPage(t *testing.T) {
	client, _, account := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shpat_test", r.Header.Get(HeaderAccessToken))
		assert.Equal(t, "/admin/api/2024-01/orders.json", r.URL.Path)
		assert.Equal(t, "any", r.URL.Query().Get("status"))
		assert.Equal(t, "250", r.URL.Query().Get("limit"))
		assert.Equal(t, "2024-01-01T00:00:00Z", r.URL.Query().Get("updated_at_min"))

		w.Header().Set(HeaderLink, fmt.Sprintf(`<%s>; rel="next"`, pageURL(r, "p2")))
		w.Header().Set(HeaderCallLimit, "41/50")
		fmt.Fprint(w, `{"orders":[{"id":1001,"updated_at":"2024-01-02T10:00:00+05:30","total_price":"99.50"}]}`)
	})

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	page, err := client.FetchPage(context.Background(), account, &since, "")
	require.NoError(t, err)

	require.Len(t, page.Orders, 1)
	assert.Equal(t, "1001", page.Orders[0].ExternalID())
	assert.Contains(t, page.NextCursor, "page_info=p2")
	assert.Equal(t, CallBudget{Used: 41, Total: 50}, page.Budget)
}

func TestFetchPageFailureIsNotRetried(t *testing.T) {
	var calls int32
	client, clock, account := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.FetchPage(context.Background(), account, nil, "")

	require.Error(t, err)
	var statusErr *retry.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, clock.Sleeps())
}

func TestFetchPageListRetriesAreTunable(t *testing.T) {
	var calls int32
	client, clock, account := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"orders":[]}`)
	})
	WithListPolicy(retry.Policy{Name: "list", BaseDelay: 200 * time.Millisecond, MaxRetries: 2})(client)

	page, err := client.FetchPage(context.Background(), account, nil, "")
	require.NoError(t, err)
	assert.Empty(t, page.Orders)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, clock.Sleeps())
}

func TestPageIteratorTerminates(t *testing.T) {
	var calls int32
	client, clock, account := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		switch r.URL.Query().Get("page_info") {
		case "":
			w.Header().Set(HeaderLink, fmt.Sprintf(`<%s>; rel="next"`, pageURL(r, "p2")))
		case "p2":
			w.Header().Set(HeaderLink, fmt.Sprintf(`<%s>; rel="previous", <%s>; rel="next"`, pageURL(r, "p1"), pageURL(r, "p3")))
		case "p3":
			w.Header().Set(HeaderLink, fmt.Sprintf(`<%s>; rel="previous"`, pageURL(r, "p2")))
		}
		fmt.Fprintf(w, `{"orders":[{"id":%d}]}`, n)
	})

	it := client.Pages(account, nil, "")
	var ids []string
	for it.Next(context.Background()) {
		for _, o := range it.Page().Orders {
			ids = append(ids, o.ExternalID())
		}
	}

	require.NoError(t, it.Err())
	assert.Equal(t, 3, it.Fetches())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []string{"1", "2", "3"}, ids)
	assert.Empty(t, it.Cursor())
	assert.False(t, it.Next(context.Background()))
	assert.Empty(t, clock.Sleeps())
}

func TestPageIteratorThrottlesOnHighBudget(t *testing.T) {
	client, clock, account := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page_info") {
		case "":
			w.Header().Set(HeaderCallLimit, "41/50")
			w.Header().Set(HeaderLink, fmt.Sprintf(`<%s>; rel="next"`, pageURL(r, "p2")))
		case "p2":
			w.Header().Set(HeaderCallLimit, "30/50")
			w.Header().Set(HeaderLink, fmt.Sprintf(`<%s>; rel="next"`, pageURL(r, "p3")))
		case "p3":
			w.Header().Set(HeaderCallLimit, "45/50")
		}
		fmt.Fprint(w, `{"orders":[]}`)
	})

	it := client.Pages(account, nil, "")
	pages := 0
	for it.Next(context.Background()) {
		pages++
	}

	require.NoError(t, it.Err())
	assert.Equal(t, 3, pages)
	assert.Equal(t, []time.Duration{600 * time.Millisecond}, clock.Sleeps())
}

func TestPageIteratorResumesFromCursor(t *testing.T) {
	var seen []string
	client, _, account := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Query().Get("page_info"))
		fmt.Fprint(w, `{"orders":[]}`)
	})

	cursor := fmt.Sprintf("http://%s/admin/api/%s/orders.json?limit=250&page_info=p7", account.Auth.StoreDomain, testVersion)
	it := client.Pages(account, nil, cursor)
	for it.Next(context.Background()) {
	}

	require.NoError(t, it.Err())
	assert.Equal(t, []string{"p7"}, seen)
}

func TestPageIteratorKeepsCursorOnFailure(t *testing.T) {
	client, _, account := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page_info") == "p2" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set(HeaderLink, fmt.Sprintf(`<%s>; rel="next"`, pageURL(r, "p2")))
		fmt.Fprint(w, `{"orders":[]}`)
	})

	it := client.Pages(account, nil, "")
	assert.True(t, it.Next(context.Background()))
	assert.False(t, it.Next(context.Background()))
	assert.Error(t, it.Err())
	assert.Contains(t, it.Cursor(), "page_info=p2")
}

func TestFetchDetailBackoffThenDegrade(t *testing.T) {
	var calls int32
	client, clock, account := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/admin/api/2024-01/orders/77.json", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	})

	result := client.FetchDetail(context.Background(), account, "77")

	assert.Equal(t, OutcomeDegraded, result.Outcome)
	assert.Nil(t, result.Order)
	assert.ErrorIs(t, result.Err, retry.ErrExhausted)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		150 * time.Millisecond,
	}, clock.Sleeps())
}

func TestFetchDetailHonorsRetryAfter(t *testing.T) {
	var calls int32
	client, clock, account := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set(HeaderRetryAfter, "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"order":{"id":77,"shipping_address":{"province":"Karnataka","zip":"560001"}}}`)
	})

	result := client.FetchDetail(context.Background(), account, "77")

	require.Equal(t, OutcomeSuccess, result.Outcome)
	require.NotNil(t, result.Order)
	assert.Equal(t, "Karnataka", result.Order.Address().RawState())
	assert.Equal(t, []time.Duration{2 * time.Second, 150 * time.Millisecond}, clock.Sleeps())
}

func TestFetchDetailTerminalStatusDegrades(t *testing.T) {
	var calls int32
	client, clock, account := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	result := client.FetchDetail(context.Background(), account, "77")

	assert.Equal(t, OutcomeDegraded, result.Outcome)
	var statusErr *retry.StatusError
	require.ErrorAs(t, result.Err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{150 * time.Millisecond}, clock.Sleeps())
}

func TestFetchDetailEmptyBodyDegrades(t *testing.T) {
	client, _, account := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})

	result := client.FetchDetail(context.Background(), account, "77")
	assert.Equal(t, OutcomeDegraded, result.Outcome)
	assert.Error(t, result.Err)
}

func TestFetchDetailCancelledIsFatal(t *testing.T) {
	client, _, account := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := client.FetchDetail(ctx, account, "77")
	assert.Equal(t, OutcomeFatal, result.Outcome)
	assert.ErrorIs(t, result.Err, context.Canceled)
}
