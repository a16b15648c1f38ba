package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for one SDK instance. Each instance
// owns its registry so several SDKs (or tests) can coexist in a process.
type Metrics struct {
	registry *prometheus.Registry

	// Event queue metrics
	EventsQueued   *prometheus.CounterVec
	QueueSizeBytes prometheus.Gauge
	Flushes        *prometheus.CounterVec
	FlushLatency   prometheus.Histogram
	EventsSent     prometheus.Counter

	// Campaign metrics
	TriggerChecks      *prometheus.CounterVec
	CampaignRejections *prometheus.CounterVec
	Impressions        *prometheus.CounterVec
	CampaignsLoaded    prometheus.Gauge
	AssetDownloads     *prometheus.CounterVec

	// Identity and transport metrics
	IdentifyCalls *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	HTTPLatency   *prometheus.HistogramVec

	// System metrics
	StorageErrors *prometheus.CounterVec
	ArchiveWrites *prometheus.CounterVec
	RateLimitHits *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		EventsQueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_queued_total",
				Help:      "Events appended to the outgoing queue",
			},
			[]string{"type"},
		),
		QueueSizeBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_size_bytes",
				Help:      "Estimated size of the in-memory event queue",
			},
		),
		Flushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flushes_total",
				Help:      "Batch flush attempts by result",
			},
			[]string{"result"},
		),
		FlushLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "flush_latency_seconds",
				Help:      "Time spent posting a batch",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		EventsSent: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_sent_total",
				Help:      "Events delivered to the backend",
			},
		),

		TriggerChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trigger_checks_total",
				Help:      "Trigger evaluations by resulting status code",
			},
			[]string{"status"},
		),
		CampaignRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "campaign_rejections_total",
				Help:      "Candidates removed by per-campaign rules",
			},
			[]string{"campaign_id", "reason"},
		),
		Impressions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "impressions_total",
				Help:      "Messages recorded as shown",
			},
			[]string{"campaign_id"},
		),
		CampaignsLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "campaigns_loaded",
				Help:      "Campaigns currently known to the store",
			},
		),
		AssetDownloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "asset_downloads_total",
				Help:      "Campaign asset downloads by result",
			},
			[]string{"result"},
		),

		IdentifyCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "identify_calls_total",
				Help:      "Identify calls by resolved status",
			},
			[]string{"status"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Requests to the backend by endpoint and status code",
			},
			[]string{"endpoint", "code"},
		),
		HTTPLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Backend request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),

		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Durable storage failures by operation",
			},
			[]string{"op"},
		),
		ArchiveWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_writes_total",
				Help:      "Delivered batch archive writes by result",
			},
			[]string{"result"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Diagnostics requests rejected by the rate limiter",
			},
			[]string{"endpoint"},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEventQueued records an enqueued event and the new queue size.
func (m *Metrics) RecordEventQueued(eventType string, queueSize int) {
	m.EventsQueued.WithLabelValues(eventType).Inc()
	m.QueueSizeBytes.Set(float64(queueSize))
}

// RecordFlush records a flush attempt.
func (m *Metrics) RecordFlush(ok bool, events int, latency time.Duration) {
	result := "failed"
	if ok {
		result = "ok"
		m.EventsSent.Add(float64(events))
	}
	m.Flushes.WithLabelValues(result).Inc()
	m.FlushLatency.Observe(latency.Seconds())
	m.QueueSizeBytes.Set(0)
}

// RecordTriggerCheck records the outcome status of a trigger evaluation.
func (m *Metrics) RecordTriggerCheck(status int) {
	m.TriggerChecks.WithLabelValues(strconv.Itoa(status)).Inc()
}

// RecordCampaignRejection records a candidate removed by campaign rules.
func (m *Metrics) RecordCampaignRejection(campaignID int, reason string) {
	m.CampaignRejections.WithLabelValues(strconv.Itoa(campaignID), reason).Inc()
}

// RecordImpression records a message shown for a campaign.
func (m *Metrics) RecordImpression(campaignID int) {
	m.Impressions.WithLabelValues(strconv.Itoa(campaignID)).Inc()
}

// UpdateCampaignCount sets the number of loaded campaigns.
func (m *Metrics) UpdateCampaignCount(n int) {
	m.CampaignsLoaded.Set(float64(n))
}

// RecordAssetDownload records an asset download.
func (m *Metrics) RecordAssetDownload(ok bool) {
	if ok {
		m.AssetDownloads.WithLabelValues("ok").Inc()
		return
	}
	m.AssetDownloads.WithLabelValues("failed").Inc()
}

// RecordIdentify records an identify call by resolved status or "error".
func (m *Metrics) RecordIdentify(status string) {
	m.IdentifyCalls.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records a backend request. code is 0 for transport errors.
func (m *Metrics) RecordHTTPRequest(endpoint string, code int, latency time.Duration) {
	m.HTTPRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	m.HTTPLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// RecordStorageError records a failed storage operation.
func (m *Metrics) RecordStorageError(op string) {
	m.StorageErrors.WithLabelValues(op).Inc()
}

// RecordArchiveWrite records an archive write.
func (m *Metrics) RecordArchiveWrite(ok bool) {
	if ok {
		m.ArchiveWrites.WithLabelValues("ok").Inc()
		return
	}
	m.ArchiveWrites.WithLabelValues("failed").Inc()
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}
