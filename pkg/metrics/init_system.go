package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSystemMetrics() {
	r.StoredFiles = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "filestore_stored_files",
			Help: "Files tracked in local metadata",
		},
	)

	r.StoredBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "filestore_stored_bytes",
			Help: "Sum of file sizes tracked in local metadata",
		},
	)

	r.UptimeSeconds = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "filestore_uptime_seconds",
			Help: "Time since the process started in seconds",
		},
	)

	r.GoRoutines = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "filestore_goroutines",
			Help: "Number of goroutines",
		},
	)
}
