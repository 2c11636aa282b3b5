// Command preload bulk-downloads reconstruction layers into the local
// database, so the tracker can run fully offline afterwards. Ages follow
// the same ladder the prefetcher walks: every 10 Ma up to 100, every
// 20 Ma up to 200, every 50 Ma beyond.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"fossiljourney/pkg/config"
	"fossiljourney/pkg/db"
	"fossiljourney/pkg/gplates"
	"fossiljourney/pkg/gridstore"
	"fossiljourney/pkg/model"
	"fossiljourney/pkg/prefetch"
	"fossiljourney/pkg/request"
	"fossiljourney/pkg/store"
	"fossiljourney/pkg/tracker"
)

var (
	configPath = flag.String("config", "configs/fossiljourney.yaml", "Path to config file")
	modelName  = flag.String("model", string(model.ModelMuller2022), "Rotation model to preload")
	maxAge     = flag.Int("max-age", 200, "Oldest age (Ma) to preload")
	coastlines = flag.Bool("coastlines", true, "Also preload coastline geometry per layer")
	restart    = flag.Bool("restart", false, "Ignore the saved checkpoint and start from 0 Ma")
)

func main() {
	flag.Parse()
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Preload failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	m, err := model.ParseModel(*modelName)
	if err != nil {
		return err
	}
	oldest := *maxAge
	if oldest > m.MaxAgeMa() {
		slog.Warn("Clipping to model range", "model", m, "max_age_ma", m.MaxAgeMa())
		oldest = m.MaxAgeMa()
	}

	appCfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbConn.Close()
	st := store.NewSQLiteStore(dbConn)

	tr := tracker.New()
	reqClient := request.New(st, tr, request.ClientConfig{
		Retries:   appCfg.Request.Retries,
		Timeout:   time.Duration(appCfg.Request.Timeout),
		BaseDelay: time.Duration(appCfg.Request.Backoff.BaseDelay),
		MaxDelay:  time.Duration(appCfg.Request.Backoff.MaxDelay),
	})
	reqClient.SetUserAgentContact(appCfg.GPlates.Contact)

	grid := gridstore.New(st)
	if _, err := grid.Hydrate(ctx); err != nil {
		return fmt.Errorf("failed to hydrate grid store: %w", err)
	}

	fetcher := gplates.New(reqClient, appCfg.GPlates.BaseURL)
	prefetcher := prefetch.New(grid, fetcher, tr, prefetch.Config{
		StepDeg:   appCfg.Grid.StepDeg,
		AgeStepMa: appCfg.Grid.AgeStepMa,
		Workers:   appCfg.Prefetch.Workers,
	})
	prefetcher.Start(ctx)

	// An interrupted run resumes where it left off; the checkpoint holds
	// the oldest age whose layer finished.
	stateKey := "preload_checkpoint/" + string(m)
	ages := ladderAges(oldest)
	if !*restart {
		if v, ok := st.GetState(ctx, stateKey); ok {
			if done, err := strconv.Atoi(v); err == nil {
				slog.Info("Resuming from checkpoint", "model", m, "done_through_ma", done)
				ages = resumeFrom(ages, done)
			}
		}
	}

	start := time.Now()
	for _, age := range ages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		layer := model.LayerKey{AgeMa: age, Model: m}

		queued := prefetcher.EnqueueLayer(layer)
		slog.Info("Preloading layer", "layer", layer, "queued", queued,
			"cached", grid.LayerCount(layer))
		waitForQueue(ctx, prefetcher)

		if *coastlines {
			if _, err := fetcher.LoadCoastlines(ctx, age, m); err != nil {
				slog.Warn("Coastline preload failed", "layer", layer, "error", err)
			}
		}

		if ctx.Err() == nil {
			if err := st.SetState(ctx, stateKey, strconv.Itoa(age)); err != nil {
				slog.Warn("Failed to save checkpoint", "error", err)
			}
		}
	}

	slog.Info("Preload complete", "model", m, "samples", grid.Len(),
		"elapsed", time.Since(start).Round(time.Second))
	return nil
}

// resumeFrom drops the ages a previous run already finished.
func resumeFrom(ages []int, done int) []int {
	for i, age := range ages {
		if age > done {
			return ages[i:]
		}
	}
	return nil
}

// ladderAges lists the ages to preload, youngest first, always including 0.
func ladderAges(oldest int) []int {
	ages := []int{0}
	for age := 0; age < oldest; {
		age += prefetch.LadderStep(age)
		if age > oldest {
			break
		}
		ages = append(ages, age)
	}
	return ages
}

func waitForQueue(ctx context.Context, p *prefetch.Prefetcher) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.QueueDepth() == 0 {
				return
			}
		}
	}
}
