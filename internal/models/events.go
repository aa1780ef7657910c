package models

import "time"

// Event types
const (
	EventTypeIngestRequested  = "INGEST_REQUESTED"
	EventTypeAccountSynced    = "ACCOUNT_SYNCED"
	EventTypeTenantSynced     = "TENANT_SYNCED"
	EventTypeTenantSyncFailed = "TENANT_SYNC_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// IngestRequestedEvent asks the worker to ingest one tenant
type IngestRequestedEvent struct {
	BaseEvent
	TenantID string `json:"tenant_id"`
}

// AccountSyncedEvent published after an account's page walk completes
type AccountSyncedEvent struct {
	BaseEvent
	TenantID      string     `json:"tenant_id"`
	Channel       string     `json:"channel"`
	AccountID     string     `json:"account_id"`
	Pages         int        `json:"pages"`
	Orders        int        `json:"orders"`
	DetailFetches int        `json:"detail_fetches"`
	Watermark     *time.Time `json:"watermark,omitempty"`
}

// TenantSyncedEvent published after all accounts and the metrics refresh succeed
type TenantSyncedEvent struct {
	BaseEvent
	TenantID string `json:"tenant_id"`
	Channel  string `json:"channel"`
	Accounts int    `json:"accounts"`
}

// TenantSyncFailedEvent published when an ingest invocation fails
type TenantSyncFailedEvent struct {
	BaseEvent
	TenantID string `json:"tenant_id"`
	Channel  string `json:"channel"`
	Reason   string `json:"reason"`
}
