package occurrence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fossiljourney/pkg/db"
	"fossiljourney/pkg/model"
	"fossiljourney/pkg/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	database, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(store.NewSQLiteStore(database), 0)
}

func TestIngestAssignsIDAndCell(t *testing.T) {
	s := newTestService(t)

	o := &model.Occurrence{Species: "Tyrannosaurus rex", Lat: 47.5, Lon: -106.9, AgeMa: 67}
	require.NoError(t, s.Ingest(context.Background(), o))

	assert.NotEmpty(t, o.ID)
	assert.NotEmpty(t, o.Cell)
	assert.False(t, o.RecordedAt.IsZero())
}

func TestIngestRejectsBadRecords(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	assert.Error(t, s.Ingest(ctx, &model.Occurrence{Lat: 0, Lon: 0, AgeMa: 1}))
	assert.Error(t, s.Ingest(ctx, &model.Occurrence{Species: "x", Lat: 95, Lon: 0, AgeMa: 1}))
	assert.Error(t, s.Ingest(ctx, &model.Occurrence{Species: "x", Lat: 0, Lon: 0, AgeMa: -1}))
}

func TestIngestNormalizesLongitude(t *testing.T) {
	s := newTestService(t)

	o := &model.Occurrence{Species: "Ammonite", Lat: 10, Lon: 190, AgeMa: 80}
	require.NoError(t, s.Ingest(context.Background(), o))
	assert.Equal(t, -170.0, o.Lon)
}

func TestNearbyFindsSameCell(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	o := &model.Occurrence{Species: "Trilobite", Lat: 40.0, Lon: -75.0, AgeMa: 480}
	require.NoError(t, s.Ingest(ctx, o))

	// A point a few hundred meters away lands in the same resolution-3 cell.
	got, err := s.Nearby(ctx, 40.001, -75.001, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, o.ID, got[0].ID)

	// A point on the other side of the planet does not.
	far, err := s.Nearby(ctx, -40, 105, 0)
	require.NoError(t, err)
	assert.Empty(t, far)
}

func TestNearbyRingExpandsSearch(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.Ingest(ctx, &model.Occurrence{Species: "Ichthyosaur", Lat: 51.0, Lon: -1.3, AgeMa: 190}))

	// Roughly 220 km away: outside the origin cell, inside a 3-ring disk.
	none, err := s.Nearby(ctx, 53.0, -1.3, 0)
	require.NoError(t, err)
	ring, err := s.Nearby(ctx, 53.0, -1.3, 3)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Len(t, ring, 1)
}

func TestInBounds(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.Ingest(ctx, &model.Occurrence{Species: "Mosasaur", Lat: 35, Lon: 5, AgeMa: 75}))
	require.NoError(t, s.Ingest(ctx, &model.Occurrence{Species: "Plesiosaur", Lat: -35, Lon: 5, AgeMa: 150}))

	got, err := s.InBounds(ctx, 30, 40, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Mosasaur", got[0].Species)

	_, err = s.InBounds(ctx, 40, 30, 0, 10)
	assert.Error(t, err)
}
