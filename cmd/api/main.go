package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/artho/internal/api/handlers"
	"github.com/dvloznov/artho/internal/api/middleware"
	"github.com/dvloznov/artho/internal/app"
	"github.com/dvloznov/artho/internal/config"
	"github.com/dvloznov/artho/internal/jobs"
	"github.com/dvloznov/artho/internal/jobs/inmemory"
	"github.com/dvloznov/artho/internal/logger"
	"github.com/dvloznov/artho/internal/reconcile"
	"github.com/dvloznov/artho/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var (
		port         = flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
		reloadPeriod = flag.Duration("reload-interval", 5*time.Second, "How often to pick up changes written by other processes (0 disables)")
	)
	flag.Parse()

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := context.Background()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore, log.With().Str("component", "jobs").Logger())

	a, err := app.Open(ctx, cfg, log, jobQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracker")
	}
	defer a.Close()

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Msg("Starting job worker")
	if err := jobQueue.Start(workerCtx, a.Tracker.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	// A nil *Reconciler must not become a non-nil Syncer.
	var syncer handlers.Syncer
	if a.Reconciler != nil {
		syncer = a.Reconciler
		restoreSession(ctx, a, log)
	} else {
		log.Warn().Msg("No remote backend configured - cloud sync is disabled")
	}

	if *reloadPeriod > 0 {
		go watchStore(workerCtx, a, *reloadPeriod, log)
	}

	gate := session.NewGate(cfg.PIN)
	if cfg.PIN == session.DefaultPIN {
		log.Warn().Msg("Using the default PIN, set ARTHO_PIN to change it")
	}

	mux := http.NewServeMux()
	handlers.Register(mux, handlers.Handlers{
		Transactions: handlers.NewTransactionsHandler(a.Tracker, log),
		Sync:         handlers.NewSyncHandler(syncer, a.Tracker, log),
		Backup:       handlers.NewBackupHandler(a.Tracker, log),
		Session:      handlers.NewSessionHandler(gate, log),
		Jobs:         handlers.NewJobsHandler(jobStore, log),
	})

	handler := middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS,
		middleware.Auth(gate),
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	cancelWorker()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}

// restoreSession resumes cloud sync left connected by a previous run.
func restoreSession(ctx context.Context, a *app.App, log zerolog.Logger) {
	if !a.Reconciler.State().IsConnected {
		return
	}
	outcome, err := a.Reconciler.RestoreSession(ctx)
	switch {
	case errors.Is(err, reconcile.ErrSessionExpired):
		log.Warn().Msg("Cloud session expired. Please reconnect.")
	case err != nil:
		log.Error().Err(err).Msg("Failed to resume cloud sync")
	default:
		if outcome == reconcile.PulledRemote {
			a.Tracker.Changed(ctx, jobs.TriggerSynced)
		}
		log.Info().Str("outcome", string(outcome)).Msg("Cloud sync resumed")
	}
}

// watchStore reloads the ledger when another process (usually the CLI) has
// written to the same database.
func watchStore(ctx context.Context, a *app.App, every time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := a.Ledger.ReloadIfChanged(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to check store for outside changes")
				continue
			}
			if changed {
				a.Tracker.Changed(ctx, jobs.TriggerReloaded)
			}
		}
	}
}
