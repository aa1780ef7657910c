package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"order-ingest/config"
	"order-ingest/internal/models"
	"order-ingest/internal/retry/retrytest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Shopify.HTTPTimeout = 5 * time.Second
	cfg.Shopify.PageSize = 50
	cfg.Retry.BaseDelay = 100 * time.Millisecond
	cfg.Retry.DetailMaxRetries = 1
	cfg.Retry.ListMaxRetries = 2
	cfg.Retry.ThrottleRatio = 0.8
	cfg.Retry.ThrottleCooldown = 600 * time.Millisecond
	cfg.Retry.DetailPause = 150 * time.Millisecond
	return cfg
}

func TestNewShopifyClientAppliesConfig(t *testing.T) {
	var calls int
	var limit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		limit = r.URL.Query().Get("limit")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	clock := &retrytest.Clock{}
	client := NewShopifyClient(testConfig(), clock)

	account := models.Account{
		ID:       "acc-1",
		TenantID: "t",
		Auth:     models.ShopAuth{StoreDomain: strings.TrimPrefix(srv.URL, "http://"), APIVersion: "2024-01"},
	}

	url := strings.Replace(client.ListURL(account.Auth, nil), "https://", "http://", 1)
	_, err := client.FetchPage(context.Background(), account, nil, url)
	require.Error(t, err)

	assert.Equal(t, 3, calls, "list retries follow LIST_MAX_RETRIES")
	assert.Equal(t, "50", limit)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, clock.Sleeps())
}

func TestLoadStatesOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.yaml")
	require.NoError(t, os.WriteFile(path, []byte("states:\n  - name: Atlantis\n    code: AT\n"), 0o600))

	states, err := loadStates(path)
	require.NoError(t, err)
	e, ok := states.Lookup("at")
	require.True(t, ok)
	assert.Equal(t, "Atlantis", e.Name)

	_, err = loadStates(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	def, err := loadStates("")
	require.NoError(t, err)
	assert.Greater(t, def.Len(), 36)
}

func TestCloseRunsInReverse(t *testing.T) {
	var order []string
	a := &App{}
	for _, name := range []string{"db", "redis", "kafka"} {
		a.closers = append(a.closers, func() error {
			order = append(order, name)
			return fmt.Errorf("close %s", name)
		})
	}

	a.Close()
	a.Close()
	assert.Equal(t, []string{"kafka", "redis", "db"}, order)
}
