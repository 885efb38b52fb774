package monitoring

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lapexport"

// ExportMetrics carries the export counters on a private registry so a CLI
// run can dump them to a node_exporter textfile when it finishes.
type ExportMetrics struct {
	registry *prometheus.Registry

	rowsWritten  prometheus.Counter
	lapsWritten  prometheus.Counter
	failures     *prometheus.CounterVec
	lapRows      prometheus.Histogram
	lastDuration prometheus.Gauge
}

// NewExportMetrics registers the export metrics on a fresh registry.
func NewExportMetrics() *ExportMetrics {
	m := &ExportMetrics{
		registry: prometheus.NewRegistry(),
		rowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Data rows written to export tables.",
		}),
		lapsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "laps_written_total",
			Help:      "Laps whose table was fully written.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_failures_total",
			Help:      "Exports aborted by a fatal error, by reason.",
		}, []string{"reason"}),
		lapRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lap_rows",
			Help:      "Rows per exported lap.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		}),
		lastDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_export_duration_seconds",
			Help:      "Wall time of the most recent export.",
		}),
	}
	m.registry.MustRegister(m.rowsWritten, m.lapsWritten, m.failures, m.lapRows, m.lastDuration)
	return m
}

// Registry exposes the underlying registry.
func (m *ExportMetrics) Registry() *prometheus.Registry { return m.registry }

// LapWritten records one completed lap table.
func (m *ExportMetrics) LapWritten(rows int) {
	if m == nil {
		return
	}
	m.lapsWritten.Inc()
	m.rowsWritten.Add(float64(rows))
	m.lapRows.Observe(float64(rows))
}

// ExportFailed records an aborted export.
func (m *ExportMetrics) ExportFailed(reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
}

// ExportFinished records the wall time of an export.
func (m *ExportMetrics) ExportFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.lastDuration.Set(d.Seconds())
}

// WriteTextfile writes the current metric values in the Prometheus text
// format, atomically replacing path.
func (m *ExportMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
