package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fossiljourney/pkg/db"
	"fossiljourney/pkg/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return NewSQLiteStore(d)
}

func TestCacheRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload := []byte(`{"type":"FeatureCollection","features":[]}`)
	require.NoError(t, s.SetCache(ctx, "gplates/coastlines/MULLER2022/100", payload))

	got, hit := s.GetCache(ctx, "gplates/coastlines/MULLER2022/100")
	require.True(t, hit)
	assert.Equal(t, payload, got)

	_, miss := s.GetCache(ctx, "gplates/coastlines/MULLER2022/9999")
	assert.False(t, miss)

	has, err := s.HasCache(ctx, "gplates/coastlines/MULLER2022/100")
	require.NoError(t, err)
	assert.True(t, has)

	keys, err := s.ListCacheKeys(ctx, "gplates/coastlines/")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestSampleRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key := model.GridKey{AgeMa: 100, Model: model.ModelMuller2022, Lat: -30, Lon: -50}
	sample := model.Sample{
		Location: orb.Point{-38.2, -25.1},
		Coastlines: orb.MultiLineString{
			{{-40, -20}, {-39, -21}, {-38, -22}},
		},
	}

	require.NoError(t, s.SaveSample(ctx, key, sample))

	got, found, err := s.GetSample(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, sample.Equal(got), "sample should round-trip exactly")

	_, found, err = s.GetSample(ctx, model.GridKey{AgeMa: 200, Model: model.ModelMuller2022})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListLayerKeysAndCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	layer := model.LayerKey{AgeMa: 50, Model: model.ModelSeton2012}
	for _, lon := range []float64{-50, -45, -40} {
		key := model.GridKey{AgeMa: 50, Model: model.ModelSeton2012, Lat: -30, Lon: lon}
		require.NoError(t, s.SaveSample(ctx, key, model.Sample{Location: orb.Point{lon, -30}}))
	}
	// A different layer must not leak in.
	other := model.GridKey{AgeMa: 60, Model: model.ModelSeton2012, Lat: -30, Lon: -50}
	require.NoError(t, s.SaveSample(ctx, other, model.Sample{Location: orb.Point{-50, -30}}))

	keys, err := s.ListLayerKeys(ctx, layer)
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	counts, err := s.CountByLayer(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[layer])
	assert.Equal(t, 1, counts[model.LayerKey{AgeMa: 60, Model: model.ModelSeton2012}])
}

func TestOccurrenceStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := &model.Occurrence{
		ID:         "b2f1a0e4-0000-0000-0000-000000000001",
		Species:    "Mesosaurus brasiliensis",
		Lat:        -29.75,
		Lon:        -51.15,
		AgeMa:      278,
		Confidence: 0.92,
		Cell:       "85a8a73ffffffff",
		RecordedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveOccurrence(ctx, o))

	byCell, err := s.GetOccurrencesByCell(ctx, o.Cell)
	require.NoError(t, err)
	require.Len(t, byCell, 1)
	assert.Equal(t, o.Species, byCell[0].Species)
	assert.Equal(t, o.RecordedAt.Unix(), byCell[0].RecordedAt.Unix())

	inBounds, err := s.GetOccurrencesInBounds(ctx, -35, -25, -55, -45)
	require.NoError(t, err)
	assert.Len(t, inBounds, 1)

	empty, err := s.GetOccurrencesInBounds(ctx, 0, 10, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStateStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok := s.GetState(ctx, "last_age"); ok {
		t.Fatal("unexpected state before set")
	}
	require.NoError(t, s.SetState(ctx, "last_age", "120"))

	val, ok := s.GetState(ctx, "last_age")
	assert.True(t, ok)
	assert.Equal(t, "120", val)
}
