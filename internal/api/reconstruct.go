package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"fossiljourney/pkg/interp"
	"fossiljourney/pkg/model"
	"fossiljourney/pkg/prefetch"
	"fossiljourney/pkg/timescale"
)

type ReconstructHandler struct {
	interp     *interp.Interpolator
	prefetcher *prefetch.Prefetcher
}

func NewReconstructHandler(ip *interp.Interpolator, pf *prefetch.Prefetcher) *ReconstructHandler {
	return &ReconstructHandler{interp: ip, prefetcher: pf}
}

type ReconstructResponse struct {
	model.InterpolationResult
	AgeLabel string `json:"age_label"`
}

// Handle answers GET /api/reconstruct?lat=..&lon=..&age=..&model=..
// The answer comes from the in-memory grid alone; misses return
// valid=false and kick off background fills for next time.
func (h *ReconstructHandler) Handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	age, err3 := strconv.ParseFloat(q.Get("age"), 64)
	if err1 != nil || err2 != nil || err3 != nil {
		http.Error(w, "Invalid lat/lon/age", http.StatusBadRequest)
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

	result, err := h.interp.Interpolate(lat, lon, age, m)
	if err != nil {
		if errors.Is(err, interp.ErrOutOfRange) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		slog.Error("Interpolation failed", "lat", lat, "lon", lon, "age", age, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	// Warm the neighborhood regardless of hit or miss; the viewer tends
	// to keep moving in the same direction. dir=-1 means the client is
	// scrubbing back toward the present.
	dir := 1
	if d, err := strconv.Atoi(q.Get("dir")); err == nil && d < 0 {
		dir = -1
	}
	if h.prefetcher != nil {
		h.prefetcher.Advance(lat, lon, age, dir, m)
	}

	resp := ReconstructResponse{
		InterpolationResult: result,
		AgeLabel:            timescale.Label(float64(result.AgeMa)),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode reconstruct response", "error", err)
	}
}
