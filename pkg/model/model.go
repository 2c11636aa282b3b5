package model

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// RotationModel identifies a plate reconstruction model on the GPlates
// Web Service. Different research groups publish competing rotations,
// so the same (lat, lon, age) maps to different paleo-positions per model.
type RotationModel string

const (
	ModelMuller2022  RotationModel = "MULLER2022"
	ModelMerdith2021 RotationModel = "MERDITH2021"
	ModelSeton2012   RotationModel = "SETON2012"
)

// maxAgeMa holds the oldest reconstructable age per model.
var maxAgeMa = map[RotationModel]int{
	ModelMuller2022:  1000,
	ModelMerdith2021: 1000,
	ModelSeton2012:   200,
}

// Models returns all supported rotation models.
func Models() []RotationModel {
	return []RotationModel{ModelMuller2022, ModelMerdith2021, ModelSeton2012}
}

// ParseModel validates a model name.
func ParseModel(s string) (RotationModel, error) {
	m := RotationModel(s)
	if _, ok := maxAgeMa[m]; !ok {
		return "", fmt.Errorf("unknown rotation model: %q", s)
	}
	return m, nil
}

// MaxAgeMa returns the oldest age (Ma) the model covers.
func (m RotationModel) MaxAgeMa() int {
	return maxAgeMa[m]
}

// Valid reports whether the model is one of the supported models.
func (m RotationModel) Valid() bool {
	_, ok := maxAgeMa[m]
	return ok
}

// GridKey identifies one precomputed sample: a grid-aligned present-day
// coordinate at an integer age under a specific rotation model.
// Lat/Lon are multiples of the grid step.
type GridKey struct {
	AgeMa int
	Model RotationModel
	Lat   float64
	Lon   float64
}

// String renders a stable key usable for cache lookups and logs.
func (k GridKey) String() string {
	return fmt.Sprintf("%s/%d/%.4f/%.4f", k.Model, k.AgeMa, k.Lat, k.Lon)
}

// LayerKey identifies a full (age, model) layer, the unit of prefetching.
type LayerKey struct {
	AgeMa int
	Model RotationModel
}

func (k LayerKey) String() string {
	return fmt.Sprintf("%s/%d", k.Model, k.AgeMa)
}

// Layer returns the layer the grid key belongs to.
func (k GridKey) Layer() LayerKey {
	return LayerKey{AgeMa: k.AgeMa, Model: k.Model}
}

// Sample is the immutable payload stored per grid point: the reconstructed
// paleo-position of the grid corner, optionally with the coastline polylines
// reconstructed for the corner's layer.
type Sample struct {
	// Location is the paleo-position (lon, lat order, orb convention).
	Location orb.Point `json:"location"`
	// Coastlines holds reconstructed coastline segments, may be empty.
	Coastlines orb.MultiLineString `json:"coastlines,omitempty"`
}

// Equal reports whether two samples carry identical data.
func (s Sample) Equal(o Sample) bool {
	return s.Location.Equal(o.Location) && s.Coastlines.Equal(o.Coastlines)
}

// InterpolationResult is the outcome of a bilinear grid query. Valid is
// false when one or more of the four corners was absent from the store;
// partial coverage is an expected steady state, not an error.
type InterpolationResult struct {
	Valid      bool                `json:"valid"`
	Location   orb.Point           `json:"location"`
	Coastlines orb.MultiLineString `json:"coastlines,omitempty"`
	AgeMa      int                 `json:"age_ma"`
	Model      RotationModel       `json:"model"`
}

// SnapDown returns the largest multiple of step that is <= v.
func SnapDown(v, step float64) float64 {
	return math.Floor(v/step) * step
}

// SnapAge rounds an arbitrary age to the nearest multiple of stepMa,
// matching the ages the layers are cached at.
func SnapAge(ageMa float64, stepMa int) int {
	if stepMa <= 0 {
		stepMa = 1
	}
	return int(math.Round(ageMa/float64(stepMa))) * stepMa
}

// NormalizeLon wraps a longitude into [-180, 180).
func NormalizeLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
