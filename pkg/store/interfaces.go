package store

import (
	"context"

	"fossiljourney/pkg/model"
)

// CacheStore handles generic key-value caching of upstream responses.
type CacheStore interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	HasCache(ctx context.Context, key string) (bool, error)
	SetCache(ctx context.Context, key string, val []byte) error
	ListCacheKeys(ctx context.Context, prefix string) ([]string, error)
}

// SampleStore persists grid samples so the Grid Store can be rehydrated
// across sessions without touching the network.
type SampleStore interface {
	GetSample(ctx context.Context, key model.GridKey) (model.Sample, bool, error)
	SaveSample(ctx context.Context, key model.GridKey, s model.Sample) error
	ListLayerKeys(ctx context.Context, layer model.LayerKey) ([]model.GridKey, error)
	CountByLayer(ctx context.Context) (map[model.LayerKey]int, error)
}

// OccurrenceStore handles fossil occurrence persistence.
type OccurrenceStore interface {
	SaveOccurrence(ctx context.Context, o *model.Occurrence) error
	GetOccurrencesByCell(ctx context.Context, cell string) ([]*model.Occurrence, error)
	GetOccurrencesInBounds(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]*model.Occurrence, error)
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
}

// Store composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	CacheStore
	SampleStore
	OccurrenceStore
	StateStore

	// Close closes the store connection.
	Close() error
}
