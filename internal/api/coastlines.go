package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"fossiljourney/pkg/gplates"
	"fossiljourney/pkg/model"
)

type CoastlineHandler struct {
	fetcher *gplates.Fetcher
}

func NewCoastlineHandler(f *gplates.Fetcher) *CoastlineHandler {
	return &CoastlineHandler{fetcher: f}
}

// Handle answers GET /api/coastlines?age=..&model=.. with a GeoJSON
// FeatureCollection. Unlike reconstruction queries this endpoint is an
// explicit request for one layer, so it may wait on the upstream service.
func (h *CoastlineHandler) Handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	age, err := strconv.Atoi(q.Get("age"))
	if err != nil {
		http.Error(w, "Invalid age", http.StatusBadRequest)
		return
	}
	m := model.ModelMuller2022
	if name := q.Get("model"); name != "" {
		parsed, err := model.ParseModel(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		m = parsed
	}

	lines, err := h.fetcher.LoadCoastlines(r.Context(), age, m)
	if err != nil {
		switch {
		case errors.Is(err, gplates.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case gplates.IsTransient(err):
			http.Error(w, "Upstream service unavailable", http.StatusBadGateway)
		default:
			slog.Error("Coastline load failed", "age", age, "model", m, "error", err)
			http.Error(w, "Internal error", http.StatusInternalServerError)
		}
		return
	}

	fc := geojson.NewFeatureCollection()
	feat := geojson.NewFeature(lines)
	feat.Properties["age_ma"] = age
	feat.Properties["model"] = string(m)
	fc.Append(feat)

	body, err := fc.MarshalJSON()
	if err != nil {
		slog.Error("Failed to encode coastline collection", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if _, err := w.Write(body); err != nil {
		slog.Error("Failed to write coastline response", "error", err)
	}
}
