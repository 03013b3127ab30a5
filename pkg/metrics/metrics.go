// Package metrics exposes process-lifetime Prometheus instruments for an
// unattended pathscout run: total requests issued, the number of scans
// currently active, and error counts broken down by category. It is
// additive to the scanning engine itself: pkg/engine/bus's Stats handler
// updates a Registry from its own counters when one is attached, and the
// CLI layer constructs and attaches the Registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every Prometheus instrument pathscout exports, along with
// the prometheus.Registry they were registered against.
type Registry struct {
	reg *prometheus.Registry

	RequestsTotal prometheus.Counter
	ScansActive   prometheus.Gauge
	ErrorsTotal   *prometheus.CounterVec
}

// NewRegistry constructs a Registry and registers its instruments with reg.
// Passing nil uses prometheus.NewRegistry(), isolating pathscout's metrics
// from the global default registry so tests can construct independent
// Registries without collector-already-registered panics.
func NewRegistry(reg *prometheus.Registry) *Registry {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		RequestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "pathscout_requests_total",
			Help: "Total number of HTTP requests issued by the Requester.",
		}),
		ScansActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pathscout_scans_active",
			Help: "Number of directory scans currently Running.",
		}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pathscout_errors_total",
			Help: "Total number of per-request errors, by category.",
		}, []string{"kind"}),
	}
}

// Handler returns the HTTP handler to serve on --metrics-addr.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
