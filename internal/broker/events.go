package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"order-ingest/internal/models"
	"order-ingest/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes ingest events keyed by tenant so a tenant's
// events stay ordered within a partition
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func tenantKey(tenantID string) string {
	return fmt.Sprintf("tenant-%s", tenantID)
}

// PublishAccountSynced publishes AccountSynced event
func (ep *EventPublisher) PublishAccountSynced(ctx context.Context, event *models.AccountSyncedEvent) error {
	return ep.producer.PublishEvent(ctx, tenantKey(event.TenantID), event)
}

// PublishTenantSynced publishes TenantSynced event
func (ep *EventPublisher) PublishTenantSynced(ctx context.Context, event *models.TenantSyncedEvent) error {
	return ep.producer.PublishEvent(ctx, tenantKey(event.TenantID), event)
}

// PublishTenantSyncFailed publishes TenantSyncFailed event
func (ep *EventPublisher) PublishTenantSyncFailed(ctx context.Context, event *models.TenantSyncFailedEvent) error {
	return ep.producer.PublishEvent(ctx, tenantKey(event.TenantID), event)
}

// PublishIngestRequested publishes IngestRequested event
func (ep *EventPublisher) PublishIngestRequested(ctx context.Context, event *models.IngestRequestedEvent) error {
	return ep.producer.PublishEvent(ctx, tenantKey(event.TenantID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onIngestRequested func(context.Context, *models.IngestRequestedEvent) error
	logger            *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnIngestRequested registers a handler for IngestRequested events
func (eh *EventHandler) OnIngestRequested(handler func(context.Context, *models.IngestRequestedEvent) error) {
	eh.onIngestRequested = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Info("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeIngestRequested:
		if eh.onIngestRequested != nil {
			var event models.IngestRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal IngestRequested event: %w", err)
			}
			if event.TenantID == "" {
				return fmt.Errorf("IngestRequested event %s has no tenant_id", event.EventID)
			}
			return eh.onIngestRequested(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
