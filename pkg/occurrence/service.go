// Package occurrence ingests fossil occurrence records and answers
// spatial queries over them. Records are bucketed into H3 cells on
// ingest so nearby-lookups stay cheap.
package occurrence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uber/h3-go/v4"

	"fossiljourney/pkg/model"
	"fossiljourney/pkg/store"
)

// DefaultResolution is the H3 resolution used for bucketing. Resolution 3
// cells average roughly 100 km across, matching the coarseness of most
// fossil find coordinates.
const DefaultResolution = 3

// Service validates, buckets and persists occurrence records.
type Service struct {
	store      store.OccurrenceStore
	resolution int
}

// New creates a Service. resolution <= 0 selects DefaultResolution.
func New(st store.OccurrenceStore, resolution int) *Service {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &Service{store: st, resolution: resolution}
}

// Ingest validates and persists a record, assigning an ID, timestamp and
// H3 cell where missing. The record is mutated in place.
func (s *Service) Ingest(ctx context.Context, o *model.Occurrence) error {
	if o.Species == "" {
		return fmt.Errorf("occurrence missing species")
	}
	if o.Lat < -90 || o.Lat > 90 {
		return fmt.Errorf("occurrence latitude %.4f out of range", o.Lat)
	}
	if o.AgeMa < 0 {
		return fmt.Errorf("occurrence age %.1f Ma is negative", o.AgeMa)
	}
	o.Lon = model.NormalizeLon(o.Lon)

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.RecordedAt.IsZero() {
		o.RecordedAt = time.Now().UTC()
	}

	cell, err := h3.LatLngToCell(h3.NewLatLng(o.Lat, o.Lon), s.resolution)
	if err != nil {
		return fmt.Errorf("failed to bucket occurrence: %w", err)
	}
	o.Cell = cell.String()

	if err := s.store.SaveOccurrence(ctx, o); err != nil {
		return fmt.Errorf("failed to save occurrence: %w", err)
	}
	return nil
}

// Nearby returns records bucketed into the cell containing (lat, lon) or
// any cell within ringK rings of it.
func (s *Service) Nearby(ctx context.Context, lat, lon float64, ringK int) ([]*model.Occurrence, error) {
	origin, err := h3.LatLngToCell(h3.NewLatLng(lat, model.NormalizeLon(lon)), s.resolution)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve query cell: %w", err)
	}
	cells, err := h3.GridDisk(origin, ringK)
	if err != nil {
		return nil, fmt.Errorf("failed to expand query ring: %w", err)
	}

	var out []*model.Occurrence
	for _, c := range cells {
		recs, err := s.store.GetOccurrencesByCell(ctx, c.String())
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// ByCell returns records bucketed into one H3 cell, addressed by its
// hex index as reported in the record's cell field.
func (s *Service) ByCell(ctx context.Context, cell string) ([]*model.Occurrence, error) {
	if cell == "" {
		return nil, fmt.Errorf("cell index is required")
	}
	return s.store.GetOccurrencesByCell(ctx, cell)
}

// InBounds returns records inside a lat/lon bounding box.
func (s *Service) InBounds(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]*model.Occurrence, error) {
	if minLat > maxLat {
		return nil, fmt.Errorf("bounds: minLat %.4f > maxLat %.4f", minLat, maxLat)
	}
	return s.store.GetOccurrencesInBounds(ctx, minLat, maxLat, minLon, maxLon)
}
