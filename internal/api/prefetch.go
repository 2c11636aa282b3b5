package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"fossiljourney/pkg/gridstore"
	"fossiljourney/pkg/model"
	"fossiljourney/pkg/prefetch"
	"fossiljourney/pkg/store"
)

// coastlineCachePrefix matches the keys the fetcher caches coastline
// responses under.
const coastlineCachePrefix = "gplates/coastlines/"

type PrefetchHandler struct {
	grid       *gridstore.Store
	prefetcher *prefetch.Prefetcher
	cache      store.CacheStore
}

func NewPrefetchHandler(grid *gridstore.Store, pf *prefetch.Prefetcher, cache store.CacheStore) *PrefetchHandler {
	return &PrefetchHandler{grid: grid, prefetcher: pf, cache: cache}
}

type PrefetchRequest struct {
	AgeMa int    `json:"age_ma"`
	Model string `json:"model"`
}

type PrefetchResponse struct {
	Layer  string `json:"layer"`
	Queued int    `json:"queued"`
}

// HandlePrefetch queues a full layer for background loading. It returns
// immediately; progress shows up under /api/grid/status.
func (h *PrefetchHandler) HandlePrefetch(w http.ResponseWriter, r *http.Request) {
	var req PrefetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	m, err := model.ParseModel(req.Model)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.AgeMa < 0 || req.AgeMa > m.MaxAgeMa() {
		http.Error(w, "Age outside model range", http.StatusUnprocessableEntity)
		return
	}

	layer := model.LayerKey{AgeMa: req.AgeMa, Model: m}
	queued := h.prefetcher.EnqueueLayer(layer)
	slog.Info("Layer prefetch requested", "layer", layer, "queued", queued)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(PrefetchResponse{Layer: layer.String(), Queued: queued}); err != nil {
		slog.Error("Failed to encode prefetch response", "error", err)
	}
}

type GridStatusResponse struct {
	Samples    int            `json:"samples"`
	QueueDepth int            `json:"queue_depth"`
	Layers     map[string]int `json:"layers"`
	// CoastlineLayers lists the layers whose coastline geometry is
	// already cached and serves offline.
	CoastlineLayers []string `json:"coastline_layers"`
}

// HandleStatus reports how full the grid is, per layer.
func (h *PrefetchHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	layers := make(map[string]int)
	for layer, count := range h.grid.Layers() {
		layers[layer.String()] = count
	}

	coastlines := []string{}
	if h.cache != nil {
		keys, err := h.cache.ListCacheKeys(r.Context(), coastlineCachePrefix)
		if err != nil {
			slog.Warn("Failed to list cached coastline layers", "error", err)
		}
		for _, k := range keys {
			coastlines = append(coastlines, strings.TrimPrefix(k, coastlineCachePrefix))
		}
	}

	resp := GridStatusResponse{
		Samples:         h.grid.Len(),
		QueueDepth:      h.prefetcher.QueueDepth(),
		Layers:          layers,
		CoastlineLayers: coastlines,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode grid status", "error", err)
	}
}
