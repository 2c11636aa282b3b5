// Package interp answers paleo-position queries from cached grid samples.
// Lookups are pure reads: a query never blocks on the network, it either
// interpolates from the four surrounding corners or reports the gap.
package interp

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"fossiljourney/pkg/gridstore"
	"fossiljourney/pkg/model"
)

// ErrOutOfRange is returned when a query falls outside the supported
// coordinate or age domain. Missing cache entries are NOT out of range;
// they yield a result with Valid set to false.
var ErrOutOfRange = errors.New("query out of range")

// Interpolator resolves arbitrary (lat, lon, age) queries against the
// grid store by bilinear interpolation over the enclosing cell.
type Interpolator struct {
	grid      *gridstore.Store
	stepDeg   float64
	ageStepMa int

	// onMiss is invoked for every absent corner, fire-and-forget.
	// The scheduler uses it to queue fills; queries never wait on it.
	onMiss func(model.GridKey)
}

// New creates an Interpolator over grid with the given spacing.
func New(grid *gridstore.Store, stepDeg float64, ageStepMa int) *Interpolator {
	return &Interpolator{grid: grid, stepDeg: stepDeg, ageStepMa: ageStepMa}
}

// SetMissHandler registers the callback fired for missing corners.
func (ip *Interpolator) SetMissHandler(fn func(model.GridKey)) {
	ip.onMiss = fn
}

// StepDeg returns the grid spacing in degrees.
func (ip *Interpolator) StepDeg() float64 { return ip.stepDeg }

// AgeStepMa returns the layer spacing in Ma.
func (ip *Interpolator) AgeStepMa() int { return ip.ageStepMa }

// corner is one vertex of the enclosing grid cell with its bilinear weight.
type corner struct {
	key    model.GridKey
	weight float64
}

// Corners returns the four grid keys enclosing (lat, lon) at the snapped
// age, with bilinear weights summing to 1. Longitude wraps at the
// antimeridian; on-grid-line queries collapse to duplicate corners with
// zero weight on the far side.
func (ip *Interpolator) Corners(lat, lon float64, ageMa float64, m model.RotationModel) []corner {
	age := model.SnapAge(ageMa, ip.ageStepMa)
	lon = model.NormalizeLon(lon)

	lat0 := model.SnapDown(lat, ip.stepDeg)
	lon0 := model.SnapDown(lon, ip.stepDeg)
	ty := (lat - lat0) / ip.stepDeg
	tx := (lon - lon0) / ip.stepDeg

	lat1 := lat0 + ip.stepDeg
	if ty == 0 || lat1 > 90 {
		lat1 = lat0
		ty = 0
	}
	lon1 := model.NormalizeLon(lon0 + ip.stepDeg)
	if tx == 0 {
		lon1 = lon0
	}

	mk := func(la, lo float64) model.GridKey {
		return model.GridKey{AgeMa: age, Model: m, Lat: la, Lon: lo}
	}
	return []corner{
		{mk(lat0, lon0), (1 - tx) * (1 - ty)},
		{mk(lat0, lon1), tx * (1 - ty)},
		{mk(lat1, lon0), (1 - tx) * ty},
		{mk(lat1, lon1), tx * ty},
	}
}

// Interpolate resolves the paleo-position for an arbitrary present-day
// coordinate and age. It returns ErrOutOfRange for queries outside the
// valid domain, and a result with Valid=false when corners are missing
// from the store. It never performs network or disk I/O.
func (ip *Interpolator) Interpolate(lat, lon, ageMa float64, m model.RotationModel) (model.InterpolationResult, error) {
	if lat < -90 || lat > 90 {
		return model.InterpolationResult{}, fmt.Errorf("latitude %.4f: %w", lat, ErrOutOfRange)
	}
	if !m.Valid() {
		return model.InterpolationResult{}, fmt.Errorf("model %q: %w", m, ErrOutOfRange)
	}
	if ageMa < 0 || ageMa > float64(m.MaxAgeMa()) {
		return model.InterpolationResult{}, fmt.Errorf("age %.1f Ma exceeds %s range [0, %d]: %w",
			ageMa, m, m.MaxAgeMa(), ErrOutOfRange)
	}

	corners := ip.Corners(lat, lon, ageMa, m)
	result := model.InterpolationResult{
		AgeMa: corners[0].key.AgeMa,
		Model: m,
	}

	samples := make([]model.Sample, len(corners))
	complete := true
	seen := make(map[model.GridKey]bool, len(corners))
	for i, c := range corners {
		s, ok := ip.grid.Get(c.key)
		if !ok {
			complete = false
			if ip.onMiss != nil && !seen[c.key] {
				ip.onMiss(c.key)
			}
			seen[c.key] = true
			continue
		}
		samples[i] = s
		seen[c.key] = true
	}
	if !complete {
		return result, nil
	}

	result.Valid = true
	result.Location = blendLocations(corners, samples)
	result.Coastlines = blendCoastlines(corners, samples)
	return result, nil
}

// blendLocations computes the weighted paleo-position. Paleo longitudes
// are unwrapped relative to the heaviest corner so a cell whose corners
// straddle the antimeridian blends along the short way around.
func blendLocations(corners []corner, samples []model.Sample) orb.Point {
	ref := samples[heaviest(corners)].Location.Lon()

	var lat, lon float64
	for i, c := range corners {
		if c.weight == 0 {
			continue
		}
		lat += c.weight * samples[i].Location.Lat()
		lon += c.weight * unwrapLon(samples[i].Location.Lon(), ref)
	}
	return orb.Point{model.NormalizeLon(lon), lat}
}

// blendCoastlines interpolates coastline geometry vertex-wise when all
// four corners carry structurally identical polylines. Corners fetched at
// the same age and model usually do, since the upstream geometry is a
// function of the layer alone. Otherwise the heaviest corner's coastlines
// are returned as-is.
func blendCoastlines(corners []corner, samples []model.Sample) orb.MultiLineString {
	h := heaviest(corners)
	base := samples[h].Coastlines
	if len(base) == 0 {
		return nil
	}

	for i := range samples {
		if corners[i].weight == 0 {
			continue
		}
		if !sameShape(base, samples[i].Coastlines) {
			return cloneMLS(base)
		}
	}

	out := make(orb.MultiLineString, len(base))
	for li, line := range base {
		out[li] = make(orb.LineString, len(line))
		for vi := range line {
			var lat, lon float64
			ref := line[vi].Lon()
			for si, c := range corners {
				if c.weight == 0 {
					continue
				}
				p := samples[si].Coastlines[li][vi]
				lat += c.weight * p.Lat()
				lon += c.weight * unwrapLon(p.Lon(), ref)
			}
			out[li][vi] = orb.Point{model.NormalizeLon(lon), lat}
		}
	}
	return out
}

func heaviest(corners []corner) int {
	best := 0
	for i, c := range corners {
		if c.weight > corners[best].weight {
			best = i
		}
	}
	return best
}

func sameShape(a, b orb.MultiLineString) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
	}
	return true
}

func cloneMLS(m orb.MultiLineString) orb.MultiLineString {
	out := make(orb.MultiLineString, len(m))
	for i, line := range m {
		out[i] = make(orb.LineString, len(line))
		copy(out[i], line)
	}
	return out
}

// unwrapLon shifts lon by full turns until it lies within 180 degrees
// of ref, so linear blending does not cross the long way around.
func unwrapLon(lon, ref float64) float64 {
	for lon-ref > 180 {
		lon -= 360
	}
	for ref-lon > 180 {
		lon += 360
	}
	return lon
}

// ClampPolarLat pulls latitudes near the poles onto the last usable grid
// row. The upstream service returns no reconstruction for points at the
// poles themselves.
func ClampPolarLat(lat float64) float64 {
	return math.Max(-85, math.Min(85, lat))
}
