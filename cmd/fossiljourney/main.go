package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fossiljourney/internal/api"
	"fossiljourney/pkg/config"
	"fossiljourney/pkg/db"
	"fossiljourney/pkg/gplates"
	"fossiljourney/pkg/gridstore"
	"fossiljourney/pkg/interp"
	"fossiljourney/pkg/logging"
	"fossiljourney/pkg/model"
	"fossiljourney/pkg/occurrence"
	"fossiljourney/pkg/prefetch"
	"fossiljourney/pkg/request"
	"fossiljourney/pkg/store"
	"fossiljourney/pkg/tracker"
	"fossiljourney/pkg/version"
)

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", "configs/fossiljourney.yaml", "Path to config file")
)

func main() {
	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file generated: %s\n", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Local deployments keep overrides like the GPlates contact address
	// in a .env file; a missing file is fine.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if contact := os.Getenv("FOSSILJOURNEY_CONTACT"); contact != "" {
		appCfg.GPlates.Contact = contact
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Fossil Journey Tracker started", "version", version.Version)

	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbConn.Close()
	st := store.NewSQLiteStore(dbConn)

	if retention := time.Duration(appCfg.DB.CacheRetention); retention > 0 {
		if err := dbConn.PruneCache(retention); err != nil {
			slog.Warn("Cache pruning failed", "error", err)
		}
	}

	tr := tracker.New()

	reqClient := request.New(st, tr, request.ClientConfig{
		Retries:   appCfg.Request.Retries,
		Timeout:   time.Duration(appCfg.Request.Timeout),
		BaseDelay: time.Duration(appCfg.Request.Backoff.BaseDelay),
		MaxDelay:  time.Duration(appCfg.Request.Backoff.MaxDelay),
	})
	reqClient.SetUserAgentContact(appCfg.GPlates.Contact)

	grid := gridstore.New(st)
	loaded, err := grid.Hydrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to hydrate grid store: %w", err)
	}
	tr.SetGridSize(grid.Len())
	slog.Info("Grid store hydrated", "samples", loaded)

	fetcher := gplates.New(reqClient, appCfg.GPlates.BaseURL)

	prefetcher := prefetch.New(grid, fetcher, tr, prefetch.Config{
		StepDeg:   appCfg.Grid.StepDeg,
		AgeStepMa: appCfg.Grid.AgeStepMa,
		Horizon:   appCfg.Prefetch.Horizon,
		Workers:   appCfg.Prefetch.Workers,
	})
	prefetcher.Start(ctx)

	ip := interp.New(grid, appCfg.Grid.StepDeg, appCfg.Grid.AgeStepMa)
	ip.SetMissHandler(prefetcher.Request)

	events := api.NewEventHub()
	defer events.Close()
	grid.SetNotify(func(key model.GridKey) {
		layer := key.Layer()
		events.Broadcast(api.Event{
			Type:    "layer_progress",
			Layer:   layer.String(),
			Samples: grid.LayerCount(layer),
		})
	})

	occSvc := occurrence.New(st, 0)

	return runServer(ctx, appCfg, ip, fetcher, grid, prefetcher, occSvc, st, tr, events)
}

func runServer(ctx context.Context, cfg *config.Config, ip *interp.Interpolator, fetcher *gplates.Fetcher, grid *gridstore.Store, prefetcher *prefetch.Prefetcher, occSvc *occurrence.Service, st store.Store, tr *tracker.Tracker, events *api.EventHub) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address,
		api.NewReconstructHandler(ip, prefetcher),
		api.NewCoastlineHandler(fetcher),
		api.NewPrefetchHandler(grid, prefetcher, st),
		api.NewOccurrenceHandler(occSvc, ip),
		api.NewStatsHandler(tr, grid, prefetcher),
		events,
		shutdownFunc,
	)

	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
