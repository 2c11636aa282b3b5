package model

import (
	"time"
)

// Occurrence is a point record from the external classification feed:
// a fossil specimen with its find coordinates and dated age. The core
// treats it as opaque positional input; only position and age feed the
// reconstruction lookup.
type Occurrence struct {
	ID         string    `json:"id"`
	Species    string    `json:"species"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	AgeMa      float64   `json:"age_ma"`
	Confidence float64   `json:"confidence"`
	RecordedAt time.Time `json:"recorded_at"`

	// Cell is the H3 index the record was bucketed into on ingest.
	Cell string `json:"cell,omitempty"`
}
