// Package metrics provides Prometheus metrics for token refreshes and
// outbound requests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/florianilch/servicecall/internal/servicecall"
	"github.com/florianilch/servicecall/internal/transport"
)

const namespace = "servicecall"

// Result labels for metrics.
const (
	ResultSuccess        = "success"
	ResultFailure        = "failure"
	ResultTransportError = "transport_error"
)

// Metrics collects servicecall metrics on a private registry. It implements
// servicecall.Observer.
type Metrics struct {
	registry *prometheus.Registry

	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	requestsTotal   *prometheus.CounterVec
}

var _ servicecall.Observer = (*Metrics)(nil)

// New creates the metric set and registers it, together with the Go runtime
// and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refresh_total",
				Help:      "Total number of token endpoint requests",
			},
			[]string{"result"},
		),
		refreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "token_refresh_duration_seconds",
				Help:      "Duration of token endpoint requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbound_requests_total",
				Help:      "Total number of outbound calls, uploads and downloads",
			},
			[]string{"operation", "result"},
		),
	}

	m.registry.MustRegister(
		m.refreshTotal,
		m.refreshDuration,
		m.requestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// TrackRegistry exports the number of registered tokens as a gauge.
func (m *Metrics) TrackRegistry(r *servicecall.Registry) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tokens",
			Help:      "Number of registered tokens",
		},
		func() float64 { return float64(r.Len()) },
	))
}

// TokenRefreshed implements servicecall.Observer.
func (m *Metrics) TokenRefreshed(ok bool, elapsed time.Duration) {
	result := ResultSuccess
	if !ok {
		result = ResultFailure
	}
	m.refreshTotal.WithLabelValues(result).Inc()
	m.refreshDuration.Observe(elapsed.Seconds())
}

// RequestCompleted implements servicecall.Observer.
func (m *Metrics) RequestCompleted(operation string, res *transport.Result) {
	m.requestsTotal.WithLabelValues(operation, resultLabel(res)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func resultLabel(res *transport.Result) string {
	switch {
	case res == nil || res.StatusCode == transport.StatusTransportError:
		return ResultTransportError
	case res.Success():
		return ResultSuccess
	default:
		return ResultFailure
	}
}
