// Package metrics provides Prometheus metrics for the archivist server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Interaction metrics
	interactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archivist_interactions_total",
			Help: "Total chat interactions processed",
		},
		[]string{"kind"},
	)

	interactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archivist_interaction_duration_seconds",
			Help:    "Chat interaction handling duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	interactionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archivist_interaction_failures_total",
			Help: "Total chat interactions that ended in a failure reply",
		},
		[]string{"reason"},
	)

	securityViolationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archivist_security_violations_total",
			Help: "Total rejected path-containment violations",
		},
	)

	// File tree metrics
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archivist_uploads_total",
			Help: "Total committed uploads",
		},
		[]string{"status"},
	)

	uploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archivist_upload_bytes_total",
			Help: "Total bytes committed to the file tree",
		},
	)

	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archivist_downloads_total",
			Help: "Total file downloads sent through the chat transport",
		},
		[]string{"status"},
	)

	treeSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "archivist_tree_size",
			Help: "Number of file and folder records in the tree store",
		},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archivist_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "archivist_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	// Broadcast metrics
	broadcastDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archivist_broadcast_deliveries_total",
			Help: "Total broadcast message deliveries",
		},
		[]string{"status"},
	)

	// Share link metrics
	shareLinksIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archivist_share_links_issued_total",
			Help: "Total share links issued",
		},
	)

	shareDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archivist_share_downloads_total",
			Help: "Total downloads via share links",
		},
		[]string{"status"},
	)

	// SSE metrics
	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "archivist_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archivist_sse_events_total",
			Help: "Total SSE events published",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordInteraction records a handled chat interaction.
func RecordInteraction(kind string, duration time.Duration) {
	interactionsTotal.WithLabelValues(kind).Inc()
	interactionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordInteractionFailure records an interaction that ended in a failure reply.
func RecordInteractionFailure(reason string) {
	interactionFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordSecurityViolation records a rejected containment violation.
func RecordSecurityViolation() {
	securityViolationsTotal.Inc()
}

// RecordUpload records a committed (or failed) upload.
func RecordUpload(bytes int64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	uploadsTotal.WithLabelValues(status).Inc()
	if success {
		uploadBytesTotal.Add(float64(bytes))
	}
}

// RecordDownload records a chat-transport download.
func RecordDownload(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	downloadsTotal.WithLabelValues(status).Inc()
}

// SetTreeSize sets the current tree store record count.
func SetTreeSize(size int64) {
	treeSize.Set(float64(size))
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(query string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// SetDBConnectionsOpen sets the open connection count.
func SetDBConnectionsOpen(n int) {
	dbConnectionsOpen.Set(float64(n))
}

// RecordBroadcastDelivery records one broadcast delivery attempt.
func RecordBroadcastDelivery(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	broadcastDeliveriesTotal.WithLabelValues(status).Inc()
}

// RecordShareLinkIssued records an issued share link.
func RecordShareLinkIssued() {
	shareLinksIssuedTotal.Inc()
}

// RecordShareDownload records a share-link download attempt.
func RecordShareDownload(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	shareDownloadsTotal.WithLabelValues(status).Inc()
}

// SetSSEConnectionsActive sets the active SSE connection count.
func SetSSEConnectionsActive(n int64) {
	sseConnectionsActive.Set(float64(n))
}

// RecordSSEEvent records a published SSE event.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}
