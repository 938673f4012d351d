package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/fuelsync/fuelsync/internal/metrics"
)

// NewMetrics returns the recorder and gatherer for a process. When disabled the
// recorder discards everything and the gatherer is nil.
func NewMetrics(enabled bool) (metrics.Recorder, prometheus.Gatherer) {
	if !enabled {
		return metrics.NewNoop(), nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewPrometheus(reg), reg
}
