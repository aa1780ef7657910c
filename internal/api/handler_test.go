package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"order-ingest/internal/ingest"
	"order-ingest/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngester struct {
	tenants []string
	err     error
}

func (f *fakeIngester) Ingest(ctx context.Context, tenantID string) (*ingest.Result, error) {
	f.tenants = append(f.tenants, tenantID)
	if f.err != nil {
		return nil, f.err
	}
	return &ingest.Result{TenantID: tenantID, Accounts: []ingest.AccountResult{{AccountID: "acc-1"}}}, nil
}

type fakePool struct {
	outcomes []worker.TenantOutcome
	err      error
}

func (f fakePool) RunAll(ctx context.Context) ([]worker.TenantOutcome, error) {
	return f.outcomes, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

const secret = "s3cret"

func setupRouter(ing Ingester, pool AllTenantsRunner, db Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(ing, pool, db, secret).SetupRoutes(router)
	return router
}

func post(router *gin.Engine, path, secretHeader, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secretHeader != "" {
		req.Header.Set(HeaderCronSecret, secretHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIngestRequiresSecret(t *testing.T) {
	ing := &fakeIngester{}
	router := setupRouter(ing, fakePool{}, fakePinger{})

	for _, header := range []string{"", "wrong"} {
		w := post(router, "/api/v1/ingest/shopify", header, `{"tenant_id":"t1"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
	}
	assert.Empty(t, ing.tenants)
}

func TestIngestWithEmptyConfiguredSecretIsForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(&fakeIngester{}, fakePool{}, fakePinger{}, "").SetupRoutes(router)

	w := post(router, "/api/v1/ingest/shopify", "", `{"tenant_id":"t1"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestIngestRequiresTenant(t *testing.T) {
	router := setupRouter(&fakeIngester{}, fakePool{}, fakePinger{})

	w := post(router, "/api/v1/ingest/shopify", secret, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(router, "/api/v1/ingest/shopify", secret, `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestSuccess(t *testing.T) {
	ing := &fakeIngester{}
	router := setupRouter(ing, fakePool{}, fakePinger{})

	w := post(router, "/api/v1/ingest/shopify", secret, `{"tenant_id":"t1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, []string{"t1"}, ing.tenants)
}

func TestIngestFailure(t *testing.T) {
	router := setupRouter(&fakeIngester{err: fmt.Errorf("%w: tenant t1", ingest.ErrNoAccounts)}, fakePool{}, fakePinger{})

	w := post(router, "/api/v1/ingest/shopify", secret, `{"tenant_id":"t1"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "no connected accounts")
}

func TestIngestLockHeld(t *testing.T) {
	router := setupRouter(&fakeIngester{err: ingest.ErrLockHeld}, fakePool{}, fakePinger{})

	w := post(router, "/api/v1/ingest/shopify", secret, `{"tenant_id":"t1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIngestAll(t *testing.T) {
	pool := fakePool{outcomes: []worker.TenantOutcome{{TenantID: "a"}, {TenantID: "b"}}}
	router := setupRouter(&fakeIngester{}, pool, fakePinger{})

	w := post(router, "/api/v1/ingest/shopify/all", secret, ``)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		OK      bool          `json:"ok"`
		Tenants int           `json:"tenants"`
		Failed  []interface{} `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Equal(t, 2, body.Tenants)
	assert.Empty(t, body.Failed)
}

func TestIngestAllPartialFailure(t *testing.T) {
	boom := errors.New("boom")
	pool := fakePool{
		outcomes: []worker.TenantOutcome{{TenantID: "a"}, {TenantID: "b", Err: boom}},
		err:      fmt.Errorf("tenant b: %w", boom),
	}
	router := setupRouter(&fakeIngester{}, pool, fakePinger{})

	w := post(router, "/api/v1/ingest/shopify/all", secret, ``)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"tenant_id":"b"`)
}

func TestHealthAndReadiness(t *testing.T) {
	router := setupRouter(&fakeIngester{}, fakePool{}, fakePinger{})

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestReadinessFailsWithoutDatabase(t *testing.T) {
	router := setupRouter(&fakeIngester{}, fakePool{}, fakePinger{err: errors.New("refused")})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
