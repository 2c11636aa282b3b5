// Package gridstore holds the session's reconstructed grid samples in
// memory. The store is append-only: historical data never goes stale, so
// there is no eviction and entries are never mutated after insertion.
package gridstore

import (
	"context"
	"log/slog"
	"sync"

	"fossiljourney/pkg/model"
	"fossiljourney/pkg/store"
)

// Store maps grid keys to immutable samples. All methods are safe for
// concurrent use; writes for distinct keys are commutative.
type Store struct {
	mu      sync.RWMutex
	samples map[model.GridKey]model.Sample
	layers  map[model.LayerKey]int

	persist store.SampleStore // optional write-through, may be nil
	notify  func(model.GridKey)
}

// New creates an empty Store. persist may be nil; when set, every Put is
// written through so the next session can rehydrate without the network.
func New(persist store.SampleStore) *Store {
	return &Store{
		samples: make(map[model.GridKey]model.Sample),
		layers:  make(map[model.LayerKey]int),
		persist: persist,
	}
}

// SetNotify registers a callback invoked (outside the lock) whenever a key
// is inserted for the first time. Used to announce layer population.
func (s *Store) SetNotify(fn func(model.GridKey)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// Get returns the sample for key if present.
func (s *Store) Get(key model.GridKey) (model.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sample, ok := s.samples[key]
	return sample, ok
}

// Put inserts a sample. Re-putting the same key with identical data is a
// no-op; putting different data overwrites the entry. Overwrite-wins is a
// deliberate policy: upstream corrections should replace stale samples
// rather than be silently dropped. The write-through happens under the
// lock so memory and disk see concurrent overwrites in the same order.
func (s *Store) Put(ctx context.Context, key model.GridKey, sample model.Sample) {
	s.mu.Lock()
	prev, existed := s.samples[key]
	if existed && prev.Equal(sample) {
		s.mu.Unlock()
		return
	}
	s.samples[key] = sample
	if !existed {
		s.layers[key.Layer()]++
	}
	notify := s.notify

	if s.persist != nil {
		if err := s.persist.SaveSample(ctx, key, sample); err != nil {
			slog.Warn("Failed to persist grid sample", "key", key, "error", err)
		}
	}
	s.mu.Unlock()

	if !existed && notify != nil {
		notify(key)
	}
}

// Len returns the number of stored samples.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// LayerCount returns how many samples the given layer holds.
func (s *Store) LayerCount(layer model.LayerKey) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layers[layer]
}

// Layers returns a snapshot of per-layer sample counts.
func (s *Store) Layers() map[model.LayerKey]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.LayerKey]int, len(s.layers))
	for k, v := range s.layers {
		out[k] = v
	}
	return out
}

// Hydrate loads all persisted samples into memory. Called once at startup,
// before any consumer runs, so it takes the write path without notifying.
func (s *Store) Hydrate(ctx context.Context) (int, error) {
	if s.persist == nil {
		return 0, nil
	}

	counts, err := s.persist.CountByLayer(ctx)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for layer := range counts {
		keys, err := s.persist.ListLayerKeys(ctx, layer)
		if err != nil {
			return loaded, err
		}
		for _, key := range keys {
			sample, found, err := s.persist.GetSample(ctx, key)
			if err != nil {
				return loaded, err
			}
			if !found {
				continue
			}
			s.mu.Lock()
			if _, existed := s.samples[key]; !existed {
				s.samples[key] = sample
				s.layers[key.Layer()]++
				loaded++
			}
			s.mu.Unlock()
		}
	}
	return loaded, nil
}
