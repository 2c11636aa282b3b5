package gridstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/paulmach/orb"

	"fossiljourney/pkg/db"
	"fossiljourney/pkg/model"
	"fossiljourney/pkg/store"
)

func testKey(age int, lat, lon float64) model.GridKey {
	return model.GridKey{AgeMa: age, Model: model.ModelMuller2022, Lat: lat, Lon: lon}
}

func TestPutGet(t *testing.T) {
	s := New(nil)

	key := testKey(60, 45, -120)
	sample := model.Sample{Location: orb.Point{-95.2, 41.7}}

	if _, ok := s.Get(key); ok {
		t.Fatal("expected miss on empty store")
	}

	s.Put(context.Background(), key, sample)

	got, ok := s.Get(key)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if !got.Equal(sample) {
		t.Errorf("got %v, want %v", got, sample)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestPutIdempotentAndOverwrite(t *testing.T) {
	s := New(nil)
	key := testKey(60, 45, -120)

	var notified []model.GridKey
	s.SetNotify(func(k model.GridKey) { notified = append(notified, k) })

	s.Put(context.Background(), key, model.Sample{Location: orb.Point{1, 2}})
	s.Put(context.Background(), key, model.Sample{Location: orb.Point{1, 2}})

	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
	if len(notified) != 1 {
		t.Errorf("notified %d times, want 1 (first insert only)", len(notified))
	}

	// Different payload for the same key overwrites.
	s.Put(context.Background(), key, model.Sample{Location: orb.Point{3, 4}})
	got, _ := s.Get(key)
	if got.Location != (orb.Point{3, 4}) {
		t.Errorf("expected overwrite, got %v", got.Location)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d after overwrite, want 1", s.Len())
	}
}

func TestLayerCounts(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	s.Put(ctx, testKey(60, 45, -120), model.Sample{})
	s.Put(ctx, testKey(60, 45, -115), model.Sample{})
	s.Put(ctx, testKey(70, 45, -120), model.Sample{})

	layer60 := model.LayerKey{AgeMa: 60, Model: model.ModelMuller2022}
	if n := s.LayerCount(layer60); n != 2 {
		t.Errorf("LayerCount(60) = %d, want 2", n)
	}

	layers := s.Layers()
	if len(layers) != 2 {
		t.Errorf("Layers() has %d entries, want 2", len(layers))
	}
}

func TestConcurrentPuts(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Put(ctx, testKey(60, float64(i), 0), model.Sample{Location: orb.Point{0, float64(i)}})
		}(i)
	}
	wg.Wait()

	if s.Len() != 50 {
		t.Errorf("Len() = %d, want 50", s.Len())
	}
}

// Concurrent overwrites of one key must leave disk agreeing with memory,
// whichever writer wins.
func TestConcurrentOverwritesPersistConsistently(t *testing.T) {
	ctx := context.Background()
	database, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	defer database.Close()
	st := store.NewSQLiteStore(database)

	s := New(st)
	key := testKey(60, 45, -120)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Put(ctx, key, model.Sample{Location: orb.Point{float64(i), float64(i)}})
		}(i)
	}
	wg.Wait()

	inMemory, ok := s.Get(key)
	if !ok {
		t.Fatal("expected the key in memory")
	}
	onDisk, found, err := st.GetSample(ctx, key)
	if err != nil || !found {
		t.Fatalf("GetSample: found=%v err=%v", found, err)
	}
	if !onDisk.Equal(inMemory) {
		t.Errorf("persisted sample %v diverged from in-memory %v", onDisk, inMemory)
	}
}

func TestHydrateRoundTrip(t *testing.T) {
	ctx := context.Background()
	database, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	defer database.Close()
	st := store.NewSQLiteStore(database)

	first := New(st)
	key := testKey(60, 45, -120)
	sample := model.Sample{Location: orb.Point{-95.2, 41.7}}
	first.Put(ctx, key, sample)

	second := New(st)
	n, err := second.Hydrate(ctx)
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if n != 1 {
		t.Errorf("Hydrate loaded %d samples, want 1", n)
	}
	got, ok := second.Get(key)
	if !ok || !got.Equal(sample) {
		t.Errorf("rehydrated sample = %v (ok=%v), want %v", got, ok, sample)
	}
}
