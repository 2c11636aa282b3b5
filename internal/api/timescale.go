package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"fossiljourney/pkg/timescale"
)

type TimescaleResponse struct {
	Units []timescale.Unit `json:"units"`
	// Label and the At* fields are only set when an age was queried.
	AgeMa    float64         `json:"age_ma,omitempty"`
	Label    string          `json:"label,omitempty"`
	AtPeriod *timescale.Unit `json:"at_period,omitempty"`
	AtEra    *timescale.Unit `json:"at_era,omitempty"`
	AtEon    *timescale.Unit `json:"at_eon,omitempty"`
}

// handleTimescale serves the chronostratigraphic chart, optionally
// resolved at a specific age via ?age=.
func handleTimescale(w http.ResponseWriter, r *http.Request) {
	resp := TimescaleResponse{Units: timescale.Chart()}

	if ageStr := r.URL.Query().Get("age"); ageStr != "" {
		age, err := strconv.ParseFloat(ageStr, 64)
		if err != nil || age < 0 {
			http.Error(w, "Invalid age", http.StatusBadRequest)
			return
		}
		resp.AgeMa = age
		resp.Label = timescale.Label(age)
		if u, ok := timescale.PeriodAt(age); ok {
			resp.AtPeriod = &u
		}
		if u, ok := timescale.EraAt(age); ok {
			resp.AtEra = &u
		}
		if u, ok := timescale.EonAt(age); ok {
			resp.AtEon = &u
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode timescale response", "error", err)
	}
}
