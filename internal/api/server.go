package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fossiljourney/pkg/version"
)

// NewServer creates and configures the HTTP server.
// It accepts handlers for all API endpoints and a shutdownFunc for graceful shutdown.
func NewServer(addr string, rec *ReconstructHandler, coast *CoastlineHandler, pre *PrefetchHandler, occ *OccurrenceHandler, stats *StatsHandler, events *EventHub, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health Endpoint
	mux.HandleFunc("GET /health", handleHealth)

	// 2. Version Endpoint
	mux.HandleFunc("GET /api/version", handleVersion)

	// 3. Reconstruction Endpoints
	mux.HandleFunc("GET /api/reconstruct", rec.Handle)
	mux.HandleFunc("GET /api/coastlines", coast.Handle)

	// 4. Prefetch / Grid Endpoints
	mux.HandleFunc("POST /api/prefetch", pre.HandlePrefetch)
	mux.HandleFunc("GET /api/grid/status", pre.HandleStatus)

	// 5. Occurrence Endpoints
	mux.HandleFunc("POST /api/occurrences", occ.HandleIngest)
	mux.HandleFunc("GET /api/occurrences", occ.HandleQuery)

	// 6. Timescale Endpoint
	mux.HandleFunc("GET /api/timescale", handleTimescale)

	// 7. Stats and Metrics Endpoints
	mux.Handle("GET /api/stats", stats)
	mux.Handle("GET /metrics", promhttp.Handler())

	// 8. Event Stream
	if events != nil {
		mux.HandleFunc("GET /api/events", events.Handle)
	}

	// 9. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
