// Package metrics owns the Prometheus registry the process exports.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is a private registry carrying the Go runtime and process
// collectors plus every component's metrics.
type Registry struct {
	*prometheus.Registry
	Up prometheus.Gauge
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	up := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sdc_up",
		Help: "Set to 1 once the catalogue finished starting",
	})
	reg.MustRegister(up)
	return &Registry{Registry: reg, Up: up}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{Registry: r.Registry})
}
