package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for outbound API traffic and pass
// progress. A nil *Collector is valid and records nothing, so tests can wire
// components without a registry.
type Collector struct {
	registry         *prometheus.Registry
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	retriesTotal     prometheus.Counter
	rateLimitedTotal prometheus.Counter
	accountsTotal    *prometheus.CounterVec
	passesTotal      prometheus.Counter
}

// NewCollector constructs a collector with default histograms/counters.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "spheron",
		Subsystem: "client",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for outbound API requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spheron",
		Subsystem: "client",
		Name:      "requests_total",
		Help:      "Total number of outbound API request attempts.",
	}, []string{"method", "status"})

	retriesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "spheron",
		Subsystem: "client",
		Name:      "retries_total",
		Help:      "Total number of retried request attempts.",
	})

	rateLimitedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "spheron",
		Subsystem: "client",
		Name:      "rate_limited_total",
		Help:      "Total number of 429 responses observed.",
	})

	accountsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spheron",
		Subsystem: "engine",
		Name:      "accounts_total",
		Help:      "Accounts processed, labelled by result.",
	}, []string{"result"})

	passesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "spheron",
		Subsystem: "engine",
		Name:      "passes_total",
		Help:      "Completed passes over the full account list.",
	})

	for _, c := range []prometheus.Collector{
		requestDuration, requestTotal, retriesTotal, rateLimitedTotal, accountsTotal, passesTotal,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:         registry,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		retriesTotal:     retriesTotal,
		rateLimitedTotal: rateLimitedTotal,
		accountsTotal:    accountsTotal,
		passesTotal:      passesTotal,
	}, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one outbound request attempt. A status of 0 marks a
// transport-level failure.
func (c *Collector) ObserveRequest(method string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	label := statusLabel(status)
	c.requestTotal.WithLabelValues(method, label).Inc()
	c.requestDuration.WithLabelValues(method, label).Observe(duration.Seconds())
}

// IncRetry counts one retried attempt.
func (c *Collector) IncRetry() {
	if c == nil {
		return
	}
	c.retriesTotal.Inc()
}

// IncRateLimited counts one 429 response.
func (c *Collector) IncRateLimited() {
	if c == nil {
		return
	}
	c.rateLimitedTotal.Inc()
}

// AccountResult counts one finished account, result is "ok" or "error".
func (c *Collector) AccountResult(result string) {
	if c == nil {
		return
	}
	c.accountsTotal.WithLabelValues(result).Inc()
}

// IncPass counts one completed pass over the account list.
func (c *Collector) IncPass() {
	if c == nil {
		return
	}
	c.passesTotal.Inc()
}

func statusLabel(status int) string {
	if status == 0 {
		return "transport_error"
	}
	return strconv.Itoa(status)
}
