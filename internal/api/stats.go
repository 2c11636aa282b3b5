package api

import (
	"encoding/json"
	"net/http"

	"fossiljourney/pkg/gridstore"
	"fossiljourney/pkg/prefetch"
	"fossiljourney/pkg/tracker"
)

type StatsHandler struct {
	tracker    *tracker.Tracker
	grid       *gridstore.Store
	prefetcher *prefetch.Prefetcher
}

func NewStatsHandler(t *tracker.Tracker, grid *gridstore.Store, pf *prefetch.Prefetcher) *StatsHandler {
	return &StatsHandler{tracker: t, grid: grid, prefetcher: pf}
}

type ProviderStatsDTO struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	APISuccess  int64 `json:"api_success"`
	APIFailures int64 `json:"api_errors"`
	HitRate     int64 `json:"hit_rate"`
}

type GridStats struct {
	Samples    int `json:"samples"`
	Layers     int `json:"layers"`
	QueueDepth int `json:"queue_depth"`
}

type StatsResponse struct {
	Grid      GridStats                   `json:"grid"`
	Providers map[string]ProviderStatsDTO `json:"providers"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	resp := StatsResponse{
		Grid: GridStats{
			Samples:    h.grid.Len(),
			Layers:     len(h.grid.Layers()),
			QueueDepth: h.prefetcher.QueueDepth(),
		},
		Providers: make(map[string]ProviderStatsDTO),
	}

	for provider, stats := range snapshot {
		totalCache := stats.CacheHits + stats.CacheMisses
		hitRate := int64(0)
		if totalCache > 0 {
			hitRate = (stats.CacheHits * 100) / totalCache
		}
		resp.Providers[provider] = ProviderStatsDTO{
			CacheHits:   stats.CacheHits,
			CacheMisses: stats.CacheMisses,
			APISuccess:  stats.APISuccess,
			APIFailures: stats.APIFailures,
			HitRate:     hitRate,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
