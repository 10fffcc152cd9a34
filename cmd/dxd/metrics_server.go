package main

import (
	"net/http"

	"github.com/dxhq/dx/internal/logging"
	"github.com/dxhq/dx/internal/metrics"
)

// serveMetrics exposes Prometheus and JSON metrics endpoints on addr. It
// runs for the lifetime of the daemon process; a bind failure is logged
// rather than fatal, since metrics are an optional ambient concern.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.PrometheusHandler())
	mux.Handle("/metrics.json", metrics.Global().JSONHandler())
	mux.Handle("/metrics/timeseries", metrics.Global().TimeSeriesHandler())

	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.Op().Warn("metrics server stopped", "addr", addr, "error", err)
	}
}
