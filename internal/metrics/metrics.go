// Package metrics exposes Prometheus collectors for the import service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	importPagesTotal           *prometheus.CounterVec
	importBytesTotal           *prometheus.CounterVec
	importRobotsBlockedTotal   *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	importJobsTotal            *prometheus.CounterVec
	importActiveJobs           prometheus.Gauge
	importRateLimitDelays      *prometheus.HistogramVec
	importItemsTotal           *prometheus.CounterVec
	importMatchScores          prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		importPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "import_pages_total",
				Help: "Total number of supplier pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		importBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "import_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		importRobotsBlockedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "import_robots_blocked_total",
				Help: "Total number of fetches refused by robots.txt, labeled by site.",
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		importJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "import_jobs_total",
				Help: "Total number of import jobs, labeled by final status.",
			},
			[]string{"status"},
		)

		importActiveJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "import_active_jobs",
				Help: "Number of import jobs currently running.",
			},
		)

		importRateLimitDelays = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "import_rate_limit_delay_seconds",
				Help:    "Histogram of per-origin rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		importItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "import_items_total",
				Help: "Total number of normalized items, labeled by outcome (created, skipped, error).",
			},
			[]string{"outcome"},
		)

		importMatchScores = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "import_match_score",
				Help:    "Histogram of accepted fuzzy match scores.",
				Buckets: []float64{0.45, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one page fetch.
func ObserveFetch(site string, status string, bytesFetched int) {
	sanitized := SanitizeSite(site)
	importPagesTotal.WithLabelValues(sanitized, status).Inc()
	if bytesFetched > 0 {
		importBytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveRobotsBlocked records a fetch refused by robots.txt.
func ObserveRobotsBlocked(site string) {
	importRobotsBlockedTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	importJobsTotal.WithLabelValues(status).Inc()
}

// IncActiveJobs increments the running jobs gauge.
func IncActiveJobs() {
	importActiveJobs.Inc()
}

// DecActiveJobs decrements the running jobs gauge.
func DecActiveJobs() {
	importActiveJobs.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	importRateLimitDelays.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveItem records the outcome for one normalized item.
func ObserveItem(outcome string) {
	importItemsTotal.WithLabelValues(outcome).Inc()
}

// ObserveMatchScore records an accepted fuzzy match score.
func ObserveMatchScore(score float64) {
	importMatchScores.Observe(score)
}
