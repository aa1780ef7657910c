package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"order-ingest/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TenantLister enumerates tenants that have a connected account on a channel
type TenantLister interface {
	ListTenants(ctx context.Context, channel string) ([]string, error)
}

// TenantOutcome is the result of one tenant in an all-tenant run
type TenantOutcome struct {
	TenantID string
	Err      error
}

// TenantPool ingests many tenants with bounded parallelism. Each tenant runs
// in a single goroutine, so its accounts stay sequential.
type TenantPool struct {
	ingester    Ingester
	lister      TenantLister
	channel     string
	concurrency int
	logger      *zap.Logger
}

// NewTenantPool creates a pool running at most concurrency tenants at once
func NewTenantPool(ingester Ingester, lister TenantLister, channel string, concurrency int) *TenantPool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &TenantPool{
		ingester:    ingester,
		lister:      lister,
		channel:     channel,
		concurrency: concurrency,
		logger:      util.GetLogger(),
	}
}

// RunAll ingests every tenant. A failing tenant does not stop the others; the
// returned error joins every tenant failure.
func (p *TenantPool) RunAll(ctx context.Context) ([]TenantOutcome, error) {
	tenants, err := p.lister.ListTenants(ctx, p.channel)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return p.Run(ctx, tenants)
}

// Run ingests the given tenants
func (p *TenantPool) Run(ctx context.Context, tenants []string) ([]TenantOutcome, error) {
	outcomes := make([]TenantOutcome, len(tenants))

	var mu sync.Mutex
	var errs []error

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, tenantID := range tenants {
		g.Go(func() error {
			_, err := p.ingester.Ingest(ctx, tenantID)
			outcomes[i] = TenantOutcome{TenantID: tenantID, Err: err}
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("tenant %s: %w", tenantID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("All-tenant ingest finished",
		zap.Int("tenants", len(tenants)),
		zap.Int("failed", len(errs)))
	return outcomes, errors.Join(errs...)
}
