// Command sinkrond runs the sinkron sync server: the websocket sync
// endpoint, the admin HTTP API, and the Prometheus metrics endpoint.
// Bootstrap sequence mirrors the teacher's main.go (config -> logger ->
// dependencies -> listen -> signal-driven graceful shutdown).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/sunflowerdeath/sinkron/internal/actors"
	"github.com/sunflowerdeath/sinkron/internal/authhook"
	"github.com/sunflowerdeath/sinkron/internal/config"
	"github.com/sunflowerdeath/sinkron/internal/groups"
	"github.com/sunflowerdeath/sinkron/internal/httpapi"
	"github.com/sunflowerdeath/sinkron/internal/logging"
	"github.com/sunflowerdeath/sinkron/internal/ratelimit"
	"github.com/sunflowerdeath/sinkron/internal/resources"
	"github.com/sunflowerdeath/sinkron/internal/store"
	"github.com/sunflowerdeath/sinkron/internal/workerpool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sinkrond:", err)
		os.Exit(1)
	}
}

func run() error {
	logger := logging.New("info", "json")

	cfg, err := config.LoadConfig(&logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	cfg.Print()
	cfg.LogConfig(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := store.Connect(ctx, store.Config{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Database,
		MaxConns: cfg.DBPoolMaxConns,
	}, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	groupsAPI, err := groups.New(db, logger)
	if err != nil {
		return fmt.Errorf("creating groups api: %w", err)
	}

	pool := workerpool.New(cfg.MergeWorkers, cfg.MergeQueueSize, logger)
	pool.Start(ctx)
	defer pool.Stop()

	guard := resources.NewGuard(cfg.CPURejectThreshold, logger)
	go guard.StartMonitoring(ctx, 5*time.Second)

	limiter := ratelimit.New(cfg.ClientRateLimit, cfg.ClientRateBurst)

	root := actors.NewRoot(ctx, db, pool, limiter, cfg.MergeTimeout, cfg.HeartbeatTimeout, logger)
	auth := authhook.New(cfg.SyncAuthUrl)

	server := httpapi.NewServer(root, db, groupsAPI, auth, guard, cfg.APIToken, logger)

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: server.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr()).Msg("sinkron listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
