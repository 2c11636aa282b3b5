package gplates

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// parsePointResponse extracts the first coordinate pair from a
// reconstruct_points response. The service answers with a bare MultiPoint
// geometry and encodes "no reconstruction" as null coordinates, so the
// coordinates are decoded leniently before handing anything to orb.
func parsePointResponse(body []byte) (orb.Point, error) {
	var resp struct {
		Type        string       `json:"type"`
		Coordinates [][]*float64 `json:"coordinates"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return orb.Point{}, fmt.Errorf("failed to decode point response: %w", err)
	}
	if len(resp.Coordinates) == 0 {
		return orb.Point{}, fmt.Errorf("empty point response: %w", ErrNotFound)
	}
	pair := resp.Coordinates[0]
	if len(pair) < 2 || pair[0] == nil || pair[1] == nil {
		return orb.Point{}, fmt.Errorf("point not reconstructable: %w", ErrNotFound)
	}
	return orb.Point{*pair[0], *pair[1]}, nil
}

// parseCoastlineResponse flattens a coastlines FeatureCollection into a
// single MultiLineString. Polygon features are kept as their rings; the
// renderer only draws outlines anyway.
func parseCoastlineResponse(body []byte) (orb.MultiLineString, error) {
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode coastline response: %w", err)
	}

	var out orb.MultiLineString
	for _, feat := range fc.Features {
		if feat == nil || feat.Geometry == nil {
			continue
		}
		out = append(out, flattenGeometry(feat.Geometry)...)
	}
	return out, nil
}

func flattenGeometry(g orb.Geometry) []orb.LineString {
	switch geom := g.(type) {
	case orb.LineString:
		return []orb.LineString{geom}
	case orb.MultiLineString:
		return geom
	case orb.Polygon:
		lines := make([]orb.LineString, 0, len(geom))
		for _, ring := range geom {
			lines = append(lines, orb.LineString(ring))
		}
		return lines
	case orb.MultiPolygon:
		var lines []orb.LineString
		for _, poly := range geom {
			for _, ring := range poly {
				lines = append(lines, orb.LineString(ring))
			}
		}
		return lines
	case orb.Collection:
		var lines []orb.LineString
		for _, sub := range geom {
			lines = append(lines, flattenGeometry(sub)...)
		}
		return lines
	default:
		return nil
	}
}
