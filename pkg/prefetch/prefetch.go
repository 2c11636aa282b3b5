// Package prefetch fills the grid store ahead of demand. It reacts to
// viewer movement and interpolation misses, queuing upstream loads onto a
// bounded worker pool. Enqueueing never blocks the caller; when the queue
// is full, requests are dropped and will be re-requested on the next miss.
package prefetch

import (
	"context"
	"log/slog"
	"sync"

	"fossiljourney/pkg/gplates"
	"fossiljourney/pkg/gridstore"
	"fossiljourney/pkg/model"
	"fossiljourney/pkg/tracker"
)

const queueCapacity = 4096

// Config controls the prefetcher's reach and parallelism.
type Config struct {
	StepDeg   float64
	AgeStepMa int
	// Horizon is how many ladder steps ahead in time to warm up.
	Horizon int
	Workers int
}

// Prefetcher owns the fill queue and its workers.
type Prefetcher struct {
	grid    *gridstore.Store
	fetcher *gplates.Fetcher
	tracker *tracker.Tracker
	cfg     Config

	work chan model.GridKey

	mu     sync.Mutex
	queued map[model.GridKey]bool

	wg sync.WaitGroup
}

// New creates a Prefetcher. Call Start before issuing requests.
func New(grid *gridstore.Store, fetcher *gplates.Fetcher, trk *tracker.Tracker, cfg Config) *Prefetcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 3
	}
	return &Prefetcher{
		grid:    grid,
		fetcher: fetcher,
		tracker: trk,
		cfg:     cfg,
		work:    make(chan model.GridKey, queueCapacity),
		queued:  make(map[model.GridKey]bool),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (p *Prefetcher) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Wait blocks until all workers have exited.
func (p *Prefetcher) Wait() {
	p.wg.Wait()
}

// Request queues a single grid key for filling. Safe to call from the
// interpolation path; it returns immediately.
func (p *Prefetcher) Request(key model.GridKey) {
	p.enqueue(key)
}

// Advance reacts to the viewer moving to (lat, lon, ageMa). It warms the
// 3x3 cell neighborhood at the current age and walks the age ladder
// Horizon steps in the travel direction: dir >= 0 goes deeper in time,
// dir < 0 back toward the present. The stride is taken from the current
// rung, so recent ages stay densely sampled either way.
func (p *Prefetcher) Advance(lat, lon, ageMa float64, dir int, m model.RotationModel) {
	if !m.Valid() || lat < -90 || lat > 90 {
		return
	}

	ages := make([]int, 0, p.cfg.Horizon+1)
	age := model.SnapAge(ageMa, p.cfg.AgeStepMa)
	ages = append(ages, age)
	for i := 0; i < p.cfg.Horizon; i++ {
		if dir < 0 {
			age = model.SnapAge(float64(age-LadderStep(age)), p.cfg.AgeStepMa)
			if age < 0 {
				break
			}
		} else {
			age = model.SnapAge(float64(age+LadderStep(age)), p.cfg.AgeStepMa)
			if age > m.MaxAgeMa() {
				break
			}
		}
		ages = append(ages, age)
	}

	lat0 := model.SnapDown(lat, p.cfg.StepDeg)
	lon0 := model.SnapDown(model.NormalizeLon(lon), p.cfg.StepDeg)

	for _, a := range ages {
		for dy := -1; dy <= 2; dy++ {
			cellLat := lat0 + float64(dy)*p.cfg.StepDeg
			if cellLat < -90 || cellLat > 90 {
				continue
			}
			for dx := -1; dx <= 2; dx++ {
				cellLon := model.NormalizeLon(lon0 + float64(dx)*p.cfg.StepDeg)
				p.enqueue(model.GridKey{AgeMa: a, Model: m, Lat: cellLat, Lon: cellLon})
			}
		}
	}
}

// EnqueueLayer queues every missing key of a full global layer. Returns
// how many keys were actually queued. Ages beyond the model's range queue
// nothing.
func (p *Prefetcher) EnqueueLayer(layer model.LayerKey) int {
	if !layer.Model.Valid() || layer.AgeMa < 0 || layer.AgeMa > layer.Model.MaxAgeMa() {
		return 0
	}
	n := 0
	for _, key := range LayerKeys(layer, p.cfg.StepDeg) {
		if p.enqueue(key) {
			n++
		}
	}
	return n
}

// LayerKeys enumerates all grid keys of one layer at the given spacing.
func LayerKeys(layer model.LayerKey, stepDeg float64) []model.GridKey {
	var keys []model.GridKey
	for lat := -90.0; lat <= 90; lat += stepDeg {
		for lon := -180.0; lon < 180; lon += stepDeg {
			keys = append(keys, model.GridKey{
				AgeMa: layer.AgeMa,
				Model: layer.Model,
				Lat:   lat,
				Lon:   lon,
			})
		}
	}
	return keys
}

// LadderStep returns the age stride used when walking deeper in time.
// Recent history is sampled densely; the deep past coarsely.
func LadderStep(ageMa int) int {
	switch {
	case ageMa < 100:
		return 10
	case ageMa < 200:
		return 20
	default:
		return 50
	}
}

// enqueue adds a key to the work queue unless it is already stored,
// already queued, or the queue is full.
func (p *Prefetcher) enqueue(key model.GridKey) bool {
	if _, ok := p.grid.Get(key); ok {
		return false
	}

	p.mu.Lock()
	if p.queued[key] {
		p.mu.Unlock()
		return false
	}
	p.queued[key] = true
	p.mu.Unlock()

	select {
	case p.work <- key:
		return true
	default:
		p.dequeue(key)
		p.tracker.TrackPrefetch("dropped")
		slog.Debug("Prefetch queue full, dropping", "key", key)
		return false
	}
}

func (p *Prefetcher) dequeue(key model.GridKey) {
	p.mu.Lock()
	delete(p.queued, key)
	p.mu.Unlock()
}

// QueueDepth returns how many keys are waiting or being fetched.
func (p *Prefetcher) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queued)
}

func (p *Prefetcher) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case key := <-p.work:
			p.fill(ctx, key)
		}
	}
}

// fill loads one key and stores the result. Failures are logged and
// counted, never surfaced; the key stays absent and a later miss will
// request it again.
func (p *Prefetcher) fill(ctx context.Context, key model.GridKey) {
	defer p.dequeue(key)

	sample, err := p.fetcher.Load(ctx, key)
	switch {
	case err == nil:
		p.grid.Put(ctx, key, sample)
		p.tracker.TrackPrefetch("ok")
		p.tracker.SetGridSize(p.grid.Len())
	case gplates.IsTransient(err):
		p.tracker.TrackPrefetch("transient")
		slog.Warn("Prefetch failed, will retry on next miss", "key", key, "error", err)
	default:
		p.tracker.TrackPrefetch("not_found")
		slog.Debug("Prefetch target not reconstructable", "key", key, "error", err)
	}
}
