package statusapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors on a private registry so the
// listener never inherits collectors registered elsewhere in the process.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimited     prometheus.Counter
}

func newMetrics(sources Sources) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamsync",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests received by the status listener",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "streamsync",
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of status listener request durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamsync",
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by per-IP rate limiting",
		}),
	}

	registry.MustRegister(m.requestsTotal, m.requestDuration, m.rateLimited)

	// Pipeline gauges read their sources on scrape so the values are
	// always current without a collection goroutine.
	if sources.Queue != nil {
		q := sources.Queue
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "streamsync",
			Name:      "display_queue_depth",
			Help:      "Items currently waiting in the display queue",
		}, func() float64 { return float64(q.Snapshot().Depth) }))
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "streamsync",
			Name:      "display_items_total",
			Help:      "Items displayed on an overlay surface",
		}, func() float64 { return float64(q.Snapshot().Displayed) }))
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "streamsync",
			Name:      "display_rpc_errors_total",
			Help:      "Overlay RPC failures during display",
		}, func() float64 { return float64(q.Snapshot().RPCErrors) }))
	}
	if sources.Viewers != nil {
		v := sources.Viewers
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "streamsync",
			Name:      "viewers_total",
			Help:      "Combined live viewer count across platforms",
		}, func() float64 { return float64(v.Total()) }))
	}
	if sources.Notify != nil {
		n := sources.Notify
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "streamsync",
			Name:      "notifications_total",
			Help:      "Notifications enqueued for display",
		}, func() float64 { return float64(n.Snapshot().Notified) }))
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "streamsync",
			Name:      "notifications_deduped_total",
			Help:      "Platform events dropped as duplicates",
		}, func() float64 { return float64(n.Snapshot().Deduped) }))
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "streamsync",
			Name:      "notifications_suppressed_total",
			Help:      "Notifications dropped by per-user suppression",
		}, func() float64 { return float64(n.Snapshot().Suppressed) }))
	}
	if sources.Bus != nil {
		b := sources.Bus
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "streamsync",
			Name:      "bus_handler_panics_total",
			Help:      "Recovered panics in event bus handlers",
		}, func() float64 { return float64(b.Snapshot().HandlerPanics) }))
	}

	return m
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRequest(route, method string, status int, dur time.Duration) {
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(dur.Seconds())
}
