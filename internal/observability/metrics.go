package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncDocuments counts reconciled CMS documents by type and outcome.
	SyncDocuments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parks_sync_documents_total",
		Help: "CMS documents reconciled into the content store by type and outcome",
	}, []string{"doc_type", "outcome"})

	// SyncDuration records how long a sync run takes by mode.
	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "parks_sync_duration_seconds",
		Help:    "Sync run duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	// WebhookRequests counts webhook deliveries by result.
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parks_webhook_requests_total",
		Help: "Webhook deliveries by result",
	}, []string{"result"})

	// CMSRequestLatency records outbound CMS API latency by operation.
	CMSRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "parks_cms_request_latency_seconds",
		Help:    "CMS API request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// TagInvalidations counts invalidated cache tags by dispatch mode.
	TagInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parks_cache_tag_invalidations_total",
		Help: "Cache tags invalidated by mode (eventual or immediate)",
	}, []string{"mode"})

	// CacheLookups counts tagged cache reads by result.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parks_cache_lookups_total",
		Help: "Tagged cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	// FeedConnections is the gauge of open live feed connections.
	FeedConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parks_feed_connections",
		Help: "Number of open live invalidation feed connections",
	})

	// FeedDrops counts feed messages dropped due to backpressure by reason.
	FeedDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parks_feed_backpressure_drops_total",
		Help: "Live feed messages dropped due to backpressure",
	}, []string{"reason"})
)

// RecordSyncOutcome increments the document counter.
func RecordSyncOutcome(docType, outcome string) {
	SyncDocuments.WithLabelValues(docType, outcome).Inc()
}

// TrackSync returns a function that records the sync duration when called (e.g. defer).
func TrackSync(mode string) func() {
	start := time.Now()
	return func() {
		SyncDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}
}

// TrackCMSRequest returns a function that records CMS latency when called.
func TrackCMSRequest(operation string) func() {
	start := time.Now()
	return func() {
		CMSRequestLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
