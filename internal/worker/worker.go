package worker

import (
	"context"
	"fmt"

	"order-ingest/internal/broker"
	"order-ingest/internal/ingest"
	"order-ingest/internal/models"
	"order-ingest/internal/util"

	"go.uber.org/zap"
)

// Ingester runs one tenant ingest
type Ingester interface {
	Ingest(ctx context.Context, tenantID string) (*ingest.Result, error)
}

// IngestWorker runs ingests requested over Kafka
type IngestWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	ingester     Ingester
	logger       *zap.Logger
}

// NewIngestWorker creates a new ingest worker
func NewIngestWorker(consumer *broker.Consumer, ingester Ingester) *IngestWorker {
	w := &IngestWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		ingester:     ingester,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnIngestRequested(w.HandleIngestRequested)
	return w
}

// HandleIngestRequested runs the requested tenant ingest
func (w *IngestWorker) HandleIngestRequested(ctx context.Context, event *models.IngestRequestedEvent) error {
	w.logger.Info("Processing ingest request",
		zap.String("tenant_id", event.TenantID),
		zap.String("event_id", event.EventID))

	if _, err := w.ingester.Ingest(ctx, event.TenantID); err != nil {
		return fmt.Errorf("failed to ingest tenant %s: %w", event.TenantID, err)
	}
	return nil
}

// Start starts the worker
func (w *IngestWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting ingest worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *IngestWorker) Stop() error {
	w.logger.Info("Stopping ingest worker")
	return w.consumer.Close()
}
