package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"fossiljourney/pkg/interp"
	"fossiljourney/pkg/model"
	"fossiljourney/pkg/occurrence"
)

type OccurrenceHandler struct {
	svc    *occurrence.Service
	interp *interp.Interpolator
}

func NewOccurrenceHandler(svc *occurrence.Service, ip *interp.Interpolator) *OccurrenceHandler {
	return &OccurrenceHandler{svc: svc, interp: ip}
}

// OccurrenceRecord is one queried occurrence with its reconstructed
// position attached. Paleo is nil when the record's age is outside the
// requested model's range; valid=false means the grid only partially
// covers the record's cell so far.
type OccurrenceRecord struct {
	*model.Occurrence
	Paleo *model.InterpolationResult `json:"paleo,omitempty"`
}

// HandleIngest accepts one occurrence record as JSON and persists it.
func (h *OccurrenceHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var o model.Occurrence
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.svc.Ingest(r.Context(), &o); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(o); err != nil {
		slog.Error("Failed to encode occurrence response", "error", err)
	}
}

// HandleQuery answers a nearby query (lat, lon, optional ring), a direct
// cell query (cell=<h3 index>), or a bounding box query (min_lat, max_lat,
// min_lon, max_lon). Each match carries its paleo-position looked up
// against the grid at the record's own age.
func (h *OccurrenceHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		records []*model.Occurrence
		err     error
	)
	switch {
	case q.Has("cell"):
		records, err = h.svc.ByCell(r.Context(), q.Get("cell"))

	case q.Has("lat") && q.Has("lon"):
		lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
		lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
		if err1 != nil || err2 != nil {
			http.Error(w, "Invalid lat/lon", http.StatusBadRequest)
			return
		}
		ring := 1
		if q.Has("ring") {
			ring, err = strconv.Atoi(q.Get("ring"))
			if err != nil || ring < 0 {
				http.Error(w, "Invalid ring", http.StatusBadRequest)
				return
			}
		}
		records, err = h.svc.Nearby(r.Context(), lat, lon, ring)

	case q.Has("min_lat"):
		minLat, err1 := strconv.ParseFloat(q.Get("min_lat"), 64)
		maxLat, err2 := strconv.ParseFloat(q.Get("max_lat"), 64)
		minLon, err3 := strconv.ParseFloat(q.Get("min_lon"), 64)
		maxLon, err4 := strconv.ParseFloat(q.Get("max_lon"), 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			http.Error(w, "Invalid bounds", http.StatusBadRequest)
			return
		}
		records, err = h.svc.InBounds(r.Context(), minLat, maxLat, minLon, maxLon)

	default:
		http.Error(w, "Query needs cell, lat/lon, or min_lat/max_lat/min_lon/max_lon", http.StatusBadRequest)
		return
	}

	if err != nil {
		slog.Error("Occurrence query failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m := model.ModelMuller2022
	if name := q.Get("model"); name != "" {
		parsed, perr := model.ParseModel(name)
		if perr != nil {
			http.Error(w, perr.Error(), http.StatusBadRequest)
			return
		}
		m = parsed
	}

	out := make([]OccurrenceRecord, 0, len(records))
	for _, o := range records {
		out = append(out, OccurrenceRecord{Occurrence: o, Paleo: h.paleo(o, m)})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		slog.Error("Failed to encode occurrence list", "error", err)
	}
}

// paleo reconstructs one record's position at its own age. Returns nil
// when the age falls outside the model's range; list payloads skip the
// coastline geometry, which the consumer fetches per layer instead.
func (h *OccurrenceHandler) paleo(o *model.Occurrence, m model.RotationModel) *model.InterpolationResult {
	if h.interp == nil {
		return nil
	}
	res, err := h.interp.Interpolate(o.Lat, o.Lon, o.AgeMa, m)
	if err != nil {
		return nil
	}
	res.Coastlines = nil
	return &res
}
