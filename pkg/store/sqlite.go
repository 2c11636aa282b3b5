package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"fossiljourney/pkg/db"
	"fossiljourney/pkg/model"
)

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(d *db.DB) *SQLiteStore {
	return &SQLiteStore{db: d}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Cache ---

func (s *SQLiteStore) GetCache(ctx context.Context, key string) ([]byte, bool) {
	var val []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM cache WHERE key = ?", key).Scan(&val)
	if err != nil {
		// Cache errors degrade to a miss.
		return nil, false
	}

	// Transparent decompression
	if len(val) > 2 && val[0] == 0x1f && val[1] == 0x8b {
		if decompressed, err := decompress(val); err == nil {
			return decompressed, true
		}
	}

	return val, true
}

func (s *SQLiteStore) HasCache(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM cache WHERE key = ?", key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) SetCache(ctx context.Context, key string, val []byte) error {
	// Transparent compression
	if compressed, err := compress(val); err == nil {
		val = compressed
	}

	query := `INSERT OR REPLACE INTO cache (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now())
	return err
}

func (s *SQLiteStore) ListCacheKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM cache WHERE key LIKE ? ORDER BY key", prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- Grid samples ---

func (s *SQLiteStore) GetSample(ctx context.Context, key model.GridKey) (model.Sample, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT paleo_lat, paleo_lon, coastlines FROM grid_samples WHERE key = ?`, key.String())

	var paleoLat, paleoLon float64
	var coastBlob []byte
	err := row.Scan(&paleoLat, &paleoLon, &coastBlob)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Sample{}, false, nil
	}
	if err != nil {
		return model.Sample{}, false, err
	}

	sample := model.Sample{Location: orb.Point{paleoLon, paleoLat}}
	if len(coastBlob) > 0 {
		if err := json.Unmarshal(coastBlob, &sample.Coastlines); err != nil {
			return model.Sample{}, false, fmt.Errorf("corrupt coastline blob for %s: %w", key, err)
		}
	}
	return sample, true, nil
}

func (s *SQLiteStore) SaveSample(ctx context.Context, key model.GridKey, sample model.Sample) error {
	var coastBlob []byte
	if len(sample.Coastlines) > 0 {
		var err error
		coastBlob, err = json.Marshal(sample.Coastlines)
		if err != nil {
			return fmt.Errorf("failed to encode coastlines for %s: %w", key, err)
		}
	}

	query := `INSERT OR REPLACE INTO grid_samples
		(key, model, age_ma, lat, lon, paleo_lat, paleo_lon, coastlines, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		key.String(), string(key.Model), key.AgeMa, key.Lat, key.Lon,
		sample.Location.Lat(), sample.Location.Lon(), coastBlob, time.Now())
	return err
}

func (s *SQLiteStore) ListLayerKeys(ctx context.Context, layer model.LayerKey) ([]model.GridKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lat, lon FROM grid_samples WHERE model = ? AND age_ma = ?`,
		string(layer.Model), layer.AgeMa)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []model.GridKey
	for rows.Next() {
		k := model.GridKey{AgeMa: layer.AgeMa, Model: layer.Model}
		if err := rows.Scan(&k.Lat, &k.Lon); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) CountByLayer(ctx context.Context) (map[model.LayerKey]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, age_ma, count(*) FROM grid_samples GROUP BY model, age_ma`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.LayerKey]int)
	for rows.Next() {
		var m string
		var age, n int
		if err := rows.Scan(&m, &age, &n); err != nil {
			return nil, err
		}
		counts[model.LayerKey{AgeMa: age, Model: model.RotationModel(m)}] = n
	}
	return counts, rows.Err()
}

// --- Occurrences ---

func (s *SQLiteStore) SaveOccurrence(ctx context.Context, o *model.Occurrence) error {
	query := `INSERT OR REPLACE INTO occurrences
		(id, species, lat, lon, age_ma, confidence, cell, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		o.ID, o.Species, o.Lat, o.Lon, o.AgeMa, o.Confidence, o.Cell, o.RecordedAt)
	return err
}

func (s *SQLiteStore) GetOccurrencesByCell(ctx context.Context, cell string) ([]*model.Occurrence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, species, lat, lon, age_ma, confidence, cell, recorded_at
		 FROM occurrences WHERE cell = ? ORDER BY recorded_at`, cell)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOccurrences(rows)
}

func (s *SQLiteStore) GetOccurrencesInBounds(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]*model.Occurrence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, species, lat, lon, age_ma, confidence, cell, recorded_at
		 FROM occurrences
		 WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?
		 ORDER BY recorded_at`,
		minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOccurrences(rows)
}

func scanOccurrences(rows *sql.Rows) ([]*model.Occurrence, error) {
	var out []*model.Occurrence
	for rows.Next() {
		var o model.Occurrence
		var recordedAt sql.NullTime
		if err := rows.Scan(&o.ID, &o.Species, &o.Lat, &o.Lon, &o.AgeMa, &o.Confidence, &o.Cell, &recordedAt); err != nil {
			return nil, err
		}
		if recordedAt.Valid {
			o.RecordedAt = recordedAt.Time
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now())
	return err
}

// --- Compression helpers ---

var bufferPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

var gzipWriterPool = sync.Pool{
	New: func() interface{} { return gzip.NewWriter(io.Discard) },
}

func compress(data []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	w := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)
	w.Reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	// Must copy because buf is returned to pool
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
