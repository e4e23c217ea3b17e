package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ghodss/yaml"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	agentpkg "github.com/visiondrive/agent"
	"github.com/visiondrive/agent/cmd/agent/api"
	"github.com/visiondrive/agent/cmd/config"
	"github.com/visiondrive/agent/lib/engine"
	"github.com/visiondrive/agent/lib/ingest"
	"github.com/visiondrive/agent/lib/logger"
	"github.com/visiondrive/agent/lib/recorder"
	"github.com/visiondrive/agent/lib/region"
	"github.com/visiondrive/agent/lib/store"
	"github.com/visiondrive/agent/lib/syncer"
	"github.com/visiondrive/agent/lib/vision"
)

func main() {
	slogger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Load configuration from environment variables
	config, err := config.Load()
	if err != nil {
		slogger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	slogger.Info("agent configuration", "config", config)

	// context cancellation on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.AddToContext(ctx, slogger)

	policy := region.Default()
	if config.RegionPolicyPath != "" {
		policy, err = region.Load(config.RegionPolicyPath)
		if err != nil {
			slogger.Error("failed to load region policy", "path", config.RegionPolicyPath, "err", err)
			os.Exit(1)
		}
	}

	catalog, err := store.Open(config.CatalogPath)
	if err != nil {
		slogger.Error("failed to open recording catalog", "path", config.CatalogPath, "err", err)
		os.Exit(1)
	}
	defer catalog.Close()

	captureParams := recorder.CaptureParams{
		SensorID:    &config.SensorID,
		SampleHz:    &config.SampleHz,
		MaxSizeInMB: &config.MaxSizeInMB,
		OutputRoot:  &config.OutputDir,
	}
	captureRecorder, err := recorder.NewCaptureRecorder(config.PathToCapture, captureParams, catalog)
	if err != nil {
		slogger.Error("invalid capture parameters", "err", err)
		os.Exit(1)
	}

	pipeline, err := engine.New(config.ScratchDir)
	if err != nil {
		slogger.Error("failed to initialize pipeline engine", "err", err)
		os.Exit(1)
	}

	events := syncer.NewBroadcaster()
	httpSyncer := syncer.NewHTTPSyncer(catalog, events, syncer.Options{Attempts: config.SyncAttempts})
	manager := vision.New(policy, captureRecorder, httpSyncer, pipeline)

	r := chi.NewRouter()
	r.Use(
		chiMiddleware.Logger,
		chiMiddleware.Recoverer,
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxWithLogger := logger.AddToContext(r.Context(), slogger)
				next.ServeHTTP(w, r.WithContext(ctxWithLogger))
			})
		},
	)

	apiService := api.New(manager, catalog, events)
	apiService.Register(r)

	// endpoints to expose the spec
	r.Get("/spec.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.oai.openapi")
		w.Write(agentpkg.OpenAPIYAML)
	})
	r.Get("/spec.json", func(w http.ResponseWriter, r *http.Request) {
		jsonData, err := yaml.YAMLToJSON(agentpkg.OpenAPIYAML)
		if err != nil {
			http.Error(w, "failed to convert YAML to JSON", http.StatusInternalServerError)
			logger.FromContext(r.Context()).Error("failed to convert YAML to JSON", "err", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(jsonData)
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: r,
	}

	// watch the drop dir for recordings produced by external tooling
	dropWatcher := ingest.New(config.DropDir, "external", catalog, 0)
	go func() {
		if err := dropWatcher.Run(ctx); err != nil {
			slogger.Error("ingest watcher failed", "err", err)
		}
	}()

	go func() {
		slogger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slogger.Error("http server failed", "err", err)
			stop()
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	slogger.Info("shutdown signal received")

	shutdownCtx := logger.AddToContext(context.Background(), slogger)
	g, _ := errgroup.WithContext(shutdownCtx)

	g.Go(func() error {
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return apiService.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slogger.Error("agent failed to shutdown", "err", err)
	}
}
