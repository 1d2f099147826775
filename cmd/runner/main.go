// Command runner loads a suite of runnables from a JSON file and drives
// it to completion. Turning user-visible test references into runnables
// is explicitly out of scope for this core (an external resolver's
// job); this entry point accepts the already-resolved list directly.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/corewright/taskrunner/internal/api"
	"github.com/corewright/taskrunner/internal/api/websocket"
	"github.com/corewright/taskrunner/internal/archive"
	"github.com/corewright/taskrunner/internal/config"
	"github.com/corewright/taskrunner/internal/logger"
	"github.com/corewright/taskrunner/internal/runnable"
	"github.com/corewright/taskrunner/internal/runner"
	"github.com/corewright/taskrunner/internal/spawner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()

	if len(os.Args) < 2 {
		log.Fatal().Msg("usage: runner <suite.json>")
	}

	runnables, err := loadSuite(os.Args[1])
	if err != nil {
		log.Fatal().Err(err).Str("path", os.Args[1]).Msg("failed to load suite")
	}

	ar, err := archive.New(cfg.Archive.RedisAddr, cfg.Archive.RedisDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to run archive")
	}
	defer ar.Close()

	registry := buildRegistry(cfg.Runner.Spawner, cfg.Runner.LogDir)

	live := runner.NewLiveRegistry()
	hub := websocket.NewHub()
	r := runner.New(cfg, registry, hub).WithLive(live)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var adminServer *http.Server
	if cfg.Admin.Addr != "" {
		srv := api.NewServer(cfg, live, ar, hub)
		srv.Start(ctx)
		adminServer = &http.Server{Addr: cfg.Admin.Addr, Handler: srv}
		go func() {
			log.Info().Str("addr", cfg.Admin.Addr).Msg("admin server listening")
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("admin server error")
			}
		}()
		defer srv.Stop()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("received shutdown signal, interrupting run")
		cancel()
	}()

	summary, err := r.RunSuite(ctx, runID(), runner.Suite{Name: "suite", Runnables: runnables})
	if err != nil {
		log.Fatal().Err(err).Msg("run failed")
	}

	if ar.Enabled() {
		if err := ar.Store(context.Background(), summary.RunID, summary); err != nil {
			log.Error().Err(err).Msg("failed to archive run summary")
		}
	}

	if adminServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = adminServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	if err := json.NewEncoder(os.Stdout).Encode(summary); err != nil {
		log.Error().Err(err).Msg("failed to encode run summary")
	}

	if summary.Outcome != runner.OutcomeCompleted {
		os.Exit(1)
	}
	for _, tr := range summary.Tasks {
		if tr.Label != "" {
			os.Exit(1)
		}
	}
}

func loadSuite(path string) ([]*runnable.Runnable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var runnables []*runnable.Runnable
	if err := json.Unmarshal(data, &runnables); err != nil {
		return nil, err
	}
	return runnables, nil
}

func buildRegistry(name, logDir string) *spawner.Registry {
	switch name {
	case "in-process":
		return spawner.NewRegistry(spawner.NewInProcessSpawner(nil))
	default:
		// Captured stdout/stderr must land in the same per-task output
		// directory collate.go writes data/debug into, <LogDir>/test-results/<fs-id>/.
		return spawner.NewRegistry(spawner.NewProcessSpawner(filepath.Join(logDir, "test-results")))
	}
}

func runID() string {
	return fmt.Sprintf("run-%d", time.Now().UnixNano())
}
