// Package metrics exposes Prometheus instrumentation for the feed and the
// scanner, plus a small /metrics HTTP server.
package metrics

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuotesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "polyarb_quotes_written_total", Help: "Quotes normalized and written to the store"},
		[]string{"side"},
	)
	MalformedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "polyarb_feed_malformed_messages_total", Help: "Inbound feed messages dropped as undecodable"},
	)
	FeedReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "polyarb_feed_reconnects_total", Help: "WebSocket reconnect attempts"},
	)
	ScanCycles = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "polyarb_scan_cycles_total", Help: "Completed detection scan cycles"},
	)
	OpportunitiesFound = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "polyarb_opportunities_found_total", Help: "Opportunities passing all calculator filters"},
	)
	OpportunitiesNotified = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "polyarb_opportunities_notified_total", Help: "Opportunities approved by the cooldown gate"},
	)
)

func init() {
	prometheus.MustRegister(
		QuotesWritten,
		MalformedMessages,
		FeedReconnects,
		ScanCycles,
		OpportunitiesFound,
		OpportunitiesNotified,
	)
}

// Serve starts the /metrics endpoint in the background and returns the
// server so the caller can shut it down.
func Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed",
				slog.String("addr", addr),
				slog.String("error", err.Error()),
			)
		}
	}()
	return srv
}
