package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler returns the Prometheus exposition endpoint for gatherer.
// A nil gatherer yields 503.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusServiceUnavailable, "METRICS_DISABLED", "metrics are disabled")
		})
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
