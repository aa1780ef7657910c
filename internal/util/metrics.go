package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TenantIngestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_tenant_runs_total",
		Help: "Total number of tenant ingest invocations",
	}, []string{"result"})

	AccountSyncsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_account_syncs_failed_total",
		Help: "Total number of account syncs aborted",
	}, []string{"reason"})

	AccountSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_account_sync_duration_seconds",
		Help:    "Duration of a full account page walk",
		Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	})

	OrdersUpsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_orders_upserted_total",
		Help: "Total number of orders upserted",
	})

	ListFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_list_fetches_total",
		Help: "Total number of order list page requests",
	}, []string{"status"})

	DetailFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_detail_fetches_total",
		Help: "Total number of single order fetches by outcome",
	}, []string{"outcome"})

	RemoteCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_remote_call_latency_seconds",
		Help:    "Latency of commerce API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_retries_total",
		Help: "Total number of retried remote calls",
	}, []string{"operation"})

	ThrottleSleepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_throttle_sleeps_total",
		Help: "Total number of proactive call budget cool-downs",
	})

	EventsPublishFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_events_publish_failed_total",
		Help: "Total number of ingestion events that could not be published",
	}, []string{"event_type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
