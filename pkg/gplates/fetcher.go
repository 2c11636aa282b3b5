// Package gplates loads paleo-reconstructions from the GPlates Web
// Service. Concurrent requests for the same grid key are collapsed into
// a single upstream call; all callers share the result.
package gplates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/paulmach/orb"

	"fossiljourney/pkg/model"
	"fossiljourney/pkg/request"
)

// ErrNotFound means the service has no reconstruction for the requested
// point, age or model. Retrying will not help.
var ErrNotFound = errors.New("no reconstruction available")

// TransientError wraps failures worth retrying later: network trouble,
// rate limiting, upstream 5xx.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient upstream failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Getter is the slice of the request client the fetcher needs.
type Getter interface {
	Get(ctx context.Context, u, cacheKey string) ([]byte, error)
}

// Fetcher resolves grid keys to samples via the GPlates Web Service.
type Fetcher struct {
	client  Getter
	baseURL string

	mu       sync.Mutex
	inflight map[string]*call
}

// call tracks one in-flight upstream request. Joiners block on done and
// then read the leader's result.
type call struct {
	done       chan struct{}
	sample     model.Sample
	coastlines orb.MultiLineString
	err        error
}

// New creates a Fetcher against the given service base URL,
// e.g. "https://gws.gplates.org".
func New(client Getter, baseURL string) *Fetcher {
	return &Fetcher{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		inflight: make(map[string]*call),
	}
}

// Load fetches the paleo-position for one grid key. If an identical load
// is already in flight, Load waits for it instead of issuing a second
// upstream request.
func (f *Fetcher) Load(ctx context.Context, key model.GridKey) (model.Sample, error) {
	if !key.Model.Valid() {
		return model.Sample{}, fmt.Errorf("model %q: %w", key.Model, ErrNotFound)
	}
	if key.AgeMa < 0 || key.AgeMa > key.Model.MaxAgeMa() {
		return model.Sample{}, fmt.Errorf("age %d Ma outside %s range: %w", key.AgeMa, key.Model, ErrNotFound)
	}

	c, leader := f.join("point/" + key.String())
	if !leader {
		return f.waitSample(ctx, c)
	}

	c.sample, c.err = f.fetchPoint(ctx, key)
	f.finish("point/"+key.String(), c)
	return c.sample, c.err
}

// LoadCoastlines fetches the reconstructed coastline geometry for one
// layer. Single-flighted per layer like Load is per key.
func (f *Fetcher) LoadCoastlines(ctx context.Context, ageMa int, m model.RotationModel) (orb.MultiLineString, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("model %q: %w", m, ErrNotFound)
	}
	if ageMa < 0 || ageMa > m.MaxAgeMa() {
		return nil, fmt.Errorf("age %d Ma outside %s range: %w", ageMa, m, ErrNotFound)
	}

	layer := model.LayerKey{AgeMa: ageMa, Model: m}
	c, leader := f.join("coastlines/" + layer.String())
	if !leader {
		return f.waitCoastlines(ctx, c)
	}

	c.coastlines, c.err = f.fetchCoastlines(ctx, ageMa, m)
	f.finish("coastlines/"+layer.String(), c)
	return c.coastlines, c.err
}

// join registers interest in an in-flight call, creating it if absent.
// The second return value is true for the caller that must do the work.
func (f *Fetcher) join(id string) (*call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.inflight[id]; ok {
		return c, false
	}
	c := &call{done: make(chan struct{})}
	f.inflight[id] = c
	return c, true
}

// finish publishes the leader's result and retires the call.
func (f *Fetcher) finish(id string, c *call) {
	f.mu.Lock()
	delete(f.inflight, id)
	f.mu.Unlock()
	close(c.done)
}

func (f *Fetcher) waitSample(ctx context.Context, c *call) (model.Sample, error) {
	select {
	case <-ctx.Done():
		return model.Sample{}, ctx.Err()
	case <-c.done:
		return c.sample, c.err
	}
}

func (f *Fetcher) waitCoastlines(ctx context.Context, c *call) (orb.MultiLineString, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return c.coastlines, c.err
	}
}

func (f *Fetcher) fetchPoint(ctx context.Context, key model.GridKey) (model.Sample, error) {
	u := f.pointURL(key)
	body, err := f.client.Get(ctx, u, "gplates/point/"+key.String())
	if err != nil {
		return model.Sample{}, classify(err)
	}

	point, err := parsePointResponse(body)
	if err != nil {
		return model.Sample{}, fmt.Errorf("key %s: %w", key, err)
	}
	return model.Sample{Location: point}, nil
}

func (f *Fetcher) fetchCoastlines(ctx context.Context, ageMa int, m model.RotationModel) (orb.MultiLineString, error) {
	layer := model.LayerKey{AgeMa: ageMa, Model: m}
	u := fmt.Sprintf("%s/reconstruct/coastlines/?time=%d&model=%s", f.baseURL, ageMa, m)
	body, err := f.client.Get(ctx, u, "gplates/coastlines/"+layer.String())
	if err != nil {
		return nil, classify(err)
	}

	lines, err := parseCoastlineResponse(body)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", layer, err)
	}
	if len(lines) == 0 {
		slog.Debug("Coastline response carried no geometry", "layer", layer)
	}
	return lines, nil
}

// pointURL builds the reconstruct_points request. Latitudes are pulled
// inside +/-85 because the service has no rotation data at the poles.
func (f *Fetcher) pointURL(key model.GridKey) string {
	lat := math.Max(-85, math.Min(85, key.Lat))
	q := url.Values{}
	q.Set("points", fmt.Sprintf("%.4f,%.4f", key.Lon, lat))
	q.Set("time", fmt.Sprintf("%d", key.AgeMa))
	q.Set("model", string(key.Model))
	return f.baseURL + "/reconstruct/reconstruct_points/?" + q.Encode()
}

// classify maps transport errors to the fetcher's error vocabulary.
// 404 and 400 mean the service cannot reconstruct the request at all;
// everything else is assumed to be temporary.
func classify(err error) error {
	var se *request.StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusNotFound, http.StatusBadRequest:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
	}
	return &TransientError{Err: err}
}
