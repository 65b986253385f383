// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal            *prometheus.CounterVec
	crawlJobsTotal             *prometheus.CounterVec
	changefeedRecordsTotal     *prometheus.CounterVec
	notifyDeliveriesTotal      *prometheus.CounterVec
	keyphraseMatchesTotal      *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	liveConnections            prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitewatch_crawl_pages_total",
				Help: "Total pages visited by the frontier controller, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitewatch_crawl_jobs_total",
				Help: "Total crawl jobs processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		changefeedRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitewatch_changefeed_records_total",
				Help: "Change records processed by the propagation adapter, labeled by disposition.",
			},
			[]string{"disposition"},
		)

		notifyDeliveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitewatch_notify_deliveries_total",
				Help: "Fan-out delivery attempts, labeled by result (delivered, gone, failed).",
			},
			[]string{"result"},
		)

		keyphraseMatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitewatch_keyphrase_matches_total",
				Help: "Keyphrase matches counted by the aggregator, labeled by site.",
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitewatch_http_requests_total",
				Help: "Total HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitewatch_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		liveConnections = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitewatch_live_connections",
				Help: "Currently registered live subscriber connections.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawlPage increments the per-site page counter.
func ObserveCrawlPage(site, outcome string) {
	if crawlPagesTotal != nil {
		crawlPagesTotal.WithLabelValues(site, outcome).Inc()
	}
}

// ObserveCrawlJob increments the job counter for the given outcome.
func ObserveCrawlJob(outcome string) {
	if crawlJobsTotal != nil {
		crawlJobsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveChangefeed adds n records with the given disposition
// (published, rejected, skipped).
func ObserveChangefeed(disposition string, n int) {
	if changefeedRecordsTotal != nil && n > 0 {
		changefeedRecordsTotal.WithLabelValues(disposition).Add(float64(n))
	}
}

// ObserveDelivery increments the fan-out delivery counter.
func ObserveDelivery(result string) {
	if notifyDeliveriesTotal != nil {
		notifyDeliveriesTotal.WithLabelValues(result).Inc()
	}
}

// ObserveKeyphraseMatches adds counted matches for a site.
func ObserveKeyphraseMatches(site string, n int) {
	if keyphraseMatchesTotal != nil && n > 0 {
		keyphraseMatchesTotal.WithLabelValues(site).Add(float64(n))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal != nil {
		httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
		httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
	}
}

// IncLiveConnections increments the live connection gauge.
func IncLiveConnections() {
	if liveConnections != nil {
		liveConnections.Inc()
	}
}

// DecLiveConnections decrements the live connection gauge.
func DecLiveConnections() {
	if liveConnections != nil {
		liveConnections.Dec()
	}
}
