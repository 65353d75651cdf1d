// Package prometheus provides Prometheus-backed implementations of the
// metrics interfaces.
package prometheus

import (
	"time"

	"github.com/marmos91/framefs/pkg/metrics"
	"github.com/marmos91/framefs/pkg/vfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// dispatchMetrics is the Prometheus implementation of metrics.DispatchMetrics.
type dispatchMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	openHandles       prometheus.Gauge
	fileCount         prometheus.Gauge
}

// NewDispatchMetrics creates Prometheus-backed dispatch metrics.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewDispatchMetrics() metrics.DispatchMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopDispatchMetrics()
	}
	return newDispatchMetrics(metrics.GetRegistry())
}

func newDispatchMetrics(reg prometheus.Registerer) *dispatchMetrics {
	return &dispatchMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "framefs_operations_total",
				Help: "Total number of dispatched operations by operation, serving tier and status",
			},
			[]string{"operation", "tier", "status", "error_code"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "framefs_operation_duration_seconds",
				Help: "Duration of dispatched operations in seconds",
				Buckets: []float64{
					0.00001, // 10µs
					0.0001,  // 100µs
					0.001,   // 1ms
					0.01,    // 10ms
					0.1,     // 100ms
					1,       // 1s
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "framefs_bytes_transferred_total",
				Help: "Total bytes read from or written to files",
			},
			[]string{"direction"},
		),
		openHandles: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "framefs_open_handles",
				Help: "Current number of open file and directory handles",
			},
		),
		fileCount: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "framefs_inserted_entries",
				Help: "Number of entries inserted into the namespace since mount",
			},
		),
	}
}

func (m *dispatchMetrics) RecordOperation(op string, tier string, duration time.Duration, err error) {
	status := "success"
	errorCode := ""
	if err != nil {
		status = "error"
		if code, ok := vfs.CodeOf(err); ok {
			errorCode = code.String()
		} else {
			errorCode = "internal"
		}
	}

	m.operationsTotal.WithLabelValues(op, tier, status, errorCode).Inc()
	m.operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *dispatchMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *dispatchMetrics) SetOpenHandles(count int) {
	m.openHandles.Set(float64(count))
}

func (m *dispatchMetrics) SetFileCount(count uint64) {
	m.fileCount.Set(float64(count))
}
