// Package app wires the ingest components from configuration. Both the
// server and the CLI start from here.
package app

import (
	"fmt"

	"order-ingest/config"
	"order-ingest/internal/broker"
	"order-ingest/internal/ingest"
	"order-ingest/internal/models"
	"order-ingest/internal/normalize"
	"order-ingest/internal/redisclient"
	"order-ingest/internal/retry"
	"order-ingest/internal/shopify"
	"order-ingest/internal/store"
	"order-ingest/internal/util"
	"order-ingest/internal/worker"

	"go.uber.org/zap"
)

// App holds the wired components. Redis and Producer are nil when disabled.
type App struct {
	Config   *config.Config
	Store    *store.Store
	Ingest   *ingest.Service
	Pool     *worker.TenantPool
	Redis    *redisclient.Client
	Producer *broker.Producer

	closers []func() error
}

// New connects to the database and the optional Redis and Kafka, and builds
// the ingest service
func New(cfg *config.Config) (*App, error) {
	logger := util.GetLogger()
	a := &App{Config: cfg}

	states, err := loadStates(cfg.Ingest.StateTablePath)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(cfg.Database.URL); err != nil {
			return nil, err
		}
		logger.Info("Migrations applied")
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	a.Store = db
	a.closers = append(a.closers, db.Close)
	logger.Info("Database connected")

	opts := []ingest.Option{ingest.WithLookback(cfg.Ingest.Lookback)}

	if cfg.Redis.Enabled {
		rc, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = rc
		a.closers = append(a.closers, rc.Close)
		opts = append(opts, ingest.WithTenantLock(rc, cfg.Redis.LockTTL))
		logger.Info("Redis connected")
	}

	if cfg.Kafka.Enabled {
		a.Producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicIngestEvents)
		a.closers = append(a.closers, a.Producer.Close)
		opts = append(opts, ingest.WithEvents(broker.NewEventPublisher(a.Producer)))
		logger.Info("Kafka producer initialized")
	}

	a.Ingest = ingest.NewService(db, NewShopifyClient(cfg, nil), states, opts...)
	a.Pool = worker.NewTenantPool(a.Ingest, db, models.ChannelShopify, cfg.Ingest.TenantConcurrency)
	return a, nil
}

// NewShopifyClient builds the Admin API client from the retry and Shopify
// settings. A nil clock sleeps on the wall clock.
func NewShopifyClient(cfg *config.Config, clock retry.Clock) *shopify.Client {
	controller := retry.NewController(clock, retry.ThrottleConfig{
		Ratio:       cfg.Retry.ThrottleRatio,
		Cooldown:    cfg.Retry.ThrottleCooldown,
		DetailPause: cfg.Retry.DetailPause,
	})

	return shopify.NewClient(controller,
		shopify.WithTimeout(cfg.Shopify.HTTPTimeout),
		shopify.WithPageSize(cfg.Shopify.PageSize),
		shopify.WithListPolicy(retry.Policy{
			Name:       "list",
			BaseDelay:  cfg.Retry.BaseDelay,
			MaxRetries: cfg.Retry.ListMaxRetries,
		}),
		shopify.WithDetailPolicy(retry.Policy{
			Name:       "detail",
			BaseDelay:  cfg.Retry.BaseDelay,
			MaxRetries: cfg.Retry.DetailMaxRetries,
		}),
	)
}

func loadStates(path string) (*normalize.StateTable, error) {
	if path == "" {
		return normalize.Default()
	}
	states, err := normalize.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load state table %s: %w", path, err)
	}
	return states, nil
}

// Close releases connections in reverse order of opening
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			util.GetLogger().Error("Failed to close resource", zap.Error(err))
		}
	}
	a.closers = nil
}
