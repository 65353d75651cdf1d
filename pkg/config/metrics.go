package config

import (
	"github.com/marmos91/framefs/pkg/metrics"
	promMetrics "github.com/marmos91/framefs/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Dispatch observes filesystem operations (never nil, no-op if disabled)
	Dispatch metrics.DispatchMetrics

	// S3 observes the S3 mirror (never nil, no-op if disabled)
	S3 metrics.S3Metrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled, the global Prometheus registry is initialized
// and Prometheus-backed collectors are returned together with the HTTP
// server. Otherwise the server is nil and every collector is a no-op.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Dispatch: metrics.NewNoopDispatchMetrics(),
			S3:       metrics.NewNoopS3Metrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server:   metrics.NewServer(metrics.ServerConfig{Port: cfg.Metrics.Port}),
		Dispatch: promMetrics.NewDispatchMetrics(),
		S3:       promMetrics.NewS3Metrics(),
	}
}
