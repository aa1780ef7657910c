// Package ingest drives incremental order ingestion for a tenant: read each
// connected account's watermark, walk its order pages, resolve missing
// addresses, normalize and upsert every order, then advance the watermark and
// trigger the metrics refresh.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-ingest/internal/models"
	"order-ingest/internal/normalize"
	"order-ingest/internal/shopify"
	"order-ingest/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNoAccounts means the tenant has no connected account for the channel
	ErrNoAccounts = errors.New("no connected accounts")
	// ErrLockHeld means another ingest for the tenant is running
	ErrLockHeld = errors.New("ingest already running for tenant")
)

const (
	DefaultLookback = 7 * 24 * time.Hour
	DefaultLockTTL  = 30 * time.Minute
)

// AccountDirectory lists a tenant's connected accounts
type AccountDirectory interface {
	ListConnectedAccounts(ctx context.Context, tenantID, channel string) ([]models.Account, error)
}

// WatermarkStore reads and writes per-account watermarks
type WatermarkStore interface {
	GetWatermark(ctx context.Context, tenantID, channel, accountID string) (*time.Time, error)
	SetWatermark(ctx context.Context, tenantID, channel, accountID string, at time.Time) error
}

// OrderSink persists orders idempotently
type OrderSink interface {
	UpsertOrder(ctx context.Context, order *models.Order) error
}

// MetricsRefresher triggers the downstream aggregate refresh
type MetricsRefresher interface {
	RefreshMetrics(ctx context.Context) error
}

// Repository is everything the service needs from the database
type Repository interface {
	AccountDirectory
	WatermarkStore
	OrderSink
	MetricsRefresher
}

// OrderSource is the commerce API
type OrderSource interface {
	Pages(account models.Account, since *time.Time, cursor string) *shopify.PageIterator
	FetchDetail(ctx context.Context, account models.Account, orderID string) shopify.DetailResult
}

// EventPublisher announces ingest progress
type EventPublisher interface {
	PublishAccountSynced(ctx context.Context, event *models.AccountSyncedEvent) error
	PublishTenantSynced(ctx context.Context, event *models.TenantSyncedEvent) error
	PublishTenantSyncFailed(ctx context.Context, event *models.TenantSyncFailedEvent) error
}

// Locker is a TTL lock
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// AccountResult summarizes one account's sync
type AccountResult struct {
	AccountID     string
	Pages         int
	Orders        int
	Skipped       int
	DetailFetches int
	Degraded      int
	Watermark     *time.Time
}

// Result summarizes a tenant ingest
type Result struct {
	TenantID string
	Accounts []AccountResult
}

// Service is the sync orchestrator
type Service struct {
	repo     Repository
	source   OrderSource
	states   *normalize.StateTable
	channel  string
	lookback time.Duration
	now      func() time.Time
	events   EventPublisher
	locker   Locker
	lockTTL  time.Duration
	logger   *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithLookback sets the window used when an account has no watermark
func WithLookback(d time.Duration) Option {
	return func(s *Service) { s.lookback = d }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEvents publishes account and tenant events
func WithEvents(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithTenantLock serializes ingests of the same tenant across processes
func WithTenantLock(l Locker, ttl time.Duration) Option {
	return func(s *Service) {
		s.locker = l
		s.lockTTL = ttl
	}
}

// NewService creates a new ingest service for the Shopify channel
func NewService(repo Repository, source OrderSource, states *normalize.StateTable, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		source:   source,
		states:   states,
		channel:  models.ChannelShopify,
		lookback: DefaultLookback,
		now:      time.Now,
		lockTTL:  DefaultLockTTL,
		logger:   util.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Channel returns the channel this service ingests
func (s *Service) Channel() string {
	return s.channel
}

// Ingest syncs every connected account of the tenant, one after another, and
// then refreshes the metrics once. The first account failure aborts the run;
// orders already upserted stay, and that account's watermark is untouched.
func (s *Service) Ingest(ctx context.Context, tenantID string) (result *Result, err error) {
	ctx, span := util.StartTenantSpan(ctx, "IngestService.Ingest", tenantID)
	defer func() {
		util.EndSpan(span, err)
		if err != nil {
			util.TenantIngestsTotal.WithLabelValues("failed").Inc()
			s.publishTenantFailed(ctx, tenantID, err)
			return
		}
		util.TenantIngestsTotal.WithLabelValues("ok").Inc()
	}()

	if s.locker != nil {
		release, err := s.lock(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	accounts, err := s.repo.ListConnectedAccounts(ctx, tenantID, s.channel)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: tenant %s, channel %s", ErrNoAccounts, tenantID, s.channel)
	}

	result = &Result{TenantID: tenantID}
	for _, account := range accounts {
		s.logger.Info("Ingesting account",
			zap.String("tenant_id", tenantID),
			zap.String("account_id", account.ID))

		accResult, err := s.SyncAccount(ctx, account)
		if err != nil {
			return result, fmt.Errorf("failed to sync account %s: %w", account.ID, err)
		}
		result.Accounts = append(result.Accounts, accResult)
	}

	if err := s.repo.RefreshMetrics(ctx); err != nil {
		return result, err
	}

	s.publish(models.EventTypeTenantSynced, func() error {
		return s.events.PublishTenantSynced(ctx, &models.TenantSyncedEvent{
			BaseEvent: newBaseEvent(models.EventTypeTenantSynced),
			TenantID:  tenantID,
			Channel:   s.channel,
			Accounts:  len(result.Accounts),
		})
	})

	s.logger.Info("Tenant ingest completed",
		zap.String("tenant_id", tenantID),
		zap.Int("accounts", len(result.Accounts)))
	return result, nil
}

// SyncAccount runs one account from watermark read to watermark write
func (s *Service) SyncAccount(ctx context.Context, account models.Account) (res AccountResult, err error) {
	ctx, span := util.StartTenantSpan(ctx, "IngestService.SyncAccount", account.TenantID)
	start := time.Now()
	defer func() {
		util.EndSpan(span, err)
		util.AccountSyncDuration.Observe(time.Since(start).Seconds())
	}()

	res.AccountID = account.ID

	since, err := s.repo.GetWatermark(ctx, account.TenantID, s.channel, account.ID)
	if err != nil {
		util.AccountSyncsFailed.WithLabelValues("watermark_read").Inc()
		return res, err
	}
	if since == nil {
		d := s.now().Add(-s.lookback)
		since = &d
	}

	var candidate *time.Time
	it := s.source.Pages(account, since, "")
	for it.Next(ctx) {
		for i := range it.Page().Orders {
			entry := &it.Page().Orders[i]

			updatedAt, err := s.syncOrder(ctx, account, entry, &res)
			if err != nil {
				return res, err
			}
			if updatedAt != nil && (candidate == nil || updatedAt.After(*candidate)) {
				u := *updatedAt
				candidate = &u
			}
		}
	}
	res.Pages = it.Fetches()
	if err := it.Err(); err != nil {
		util.AccountSyncsFailed.WithLabelValues("list_fetch").Inc()
		return res, err
	}

	if candidate != nil {
		if err := s.repo.SetWatermark(ctx, account.TenantID, s.channel, account.ID, *candidate); err != nil {
			util.AccountSyncsFailed.WithLabelValues("watermark_write").Inc()
			return res, err
		}
		res.Watermark = candidate
	}

	s.logger.Info("Account synced",
		zap.String("tenant_id", account.TenantID),
		zap.String("account_id", account.ID),
		zap.Int("pages", res.Pages),
		zap.Int("orders", res.Orders),
		zap.Int("detail_fetches", res.DetailFetches),
		zap.Int("degraded", res.Degraded))

	s.publish(models.EventTypeAccountSynced, func() error {
		return s.events.PublishAccountSynced(ctx, &models.AccountSyncedEvent{
			BaseEvent:     newBaseEvent(models.EventTypeAccountSynced),
			TenantID:      account.TenantID,
			Channel:       s.channel,
			AccountID:     account.ID,
			Pages:         res.Pages,
			Orders:        res.Orders,
			DetailFetches: res.DetailFetches,
			Watermark:     res.Watermark,
		})
	})
	return res, nil
}

// syncOrder resolves, normalizes and upserts one list entry. It returns the
// updated_at of the payload that was persisted.
func (s *Service) syncOrder(ctx context.Context, account models.Account, entry *models.ShopifyOrder, res *AccountResult) (*time.Time, error) {
	resolved, err := s.resolve(ctx, account, entry, res)
	if err != nil {
		return nil, err
	}

	order := toOrder(account.TenantID, s.channel, account.ID, resolved, s.states)
	if order.ExternalOrderID == "" {
		s.logger.Warn("Skipping order without id or name",
			zap.String("tenant_id", account.TenantID),
			zap.String("account_id", account.ID))
		res.Skipped++
		return nil, nil
	}

	if err := s.repo.UpsertOrder(ctx, order); err != nil {
		util.AccountSyncsFailed.WithLabelValues("persist").Inc()
		return nil, err
	}
	util.OrdersUpsertedTotal.Inc()
	res.Orders++

	return resolved.UpdatedAt, nil
}

// resolve returns the entry itself when it has an address, otherwise the
// detail payload, falling back to the entry when the detail is unavailable
func (s *Service) resolve(ctx context.Context, account models.Account, entry *models.ShopifyOrder, res *AccountResult) (*models.ShopifyOrder, error) {
	if entry.HasAddress() {
		return entry, nil
	}

	id := entry.ID.String()
	if id == "" {
		res.Degraded++
		return entry, nil
	}

	res.DetailFetches++
	detail := s.source.FetchDetail(ctx, account, id)
	switch detail.Outcome {
	case shopify.OutcomeSuccess:
		return detail.Order, nil
	case shopify.OutcomeDegraded:
		res.Degraded++
		return entry, nil
	default:
		return nil, fmt.Errorf("failed to resolve order %s: %w", id, detail.Err)
	}
}

func (s *Service) lock(ctx context.Context, tenantID string) (func(), error) {
	key := fmt.Sprintf("ingest:%s:%s", s.channel, tenantID)

	ok, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire ingest lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, tenantID)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.locker.ReleaseLock(releaseCtx, key); err != nil {
			s.logger.Error("Failed to release ingest lock",
				zap.String("tenant_id", tenantID),
				zap.Error(err))
		}
	}, nil
}

func (s *Service) publishTenantFailed(ctx context.Context, tenantID string, cause error) {
	s.logger.Error("Tenant ingest failed",
		zap.String("tenant_id", tenantID),
		zap.Error(cause))

	s.publish(models.EventTypeTenantSyncFailed, func() error {
		return s.events.PublishTenantSyncFailed(context.WithoutCancel(ctx), &models.TenantSyncFailedEvent{
			BaseEvent: newBaseEvent(models.EventTypeTenantSyncFailed),
			TenantID:  tenantID,
			Channel:   s.channel,
			Reason:    cause.Error(),
		})
	})
}

// publish runs fn when events are enabled; failures are logged and counted only
func (s *Service) publish(eventType string, fn func() error) {
	if s.events == nil {
		return
	}
	if err := fn(); err != nil {
		util.EventsPublishFailed.WithLabelValues(eventType).Inc()
		s.logger.Error("Failed to publish event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
