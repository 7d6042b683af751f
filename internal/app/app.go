// Package app wires the tracker's components from a Config. Both binaries
// share it so the API server and the CLI see the same store.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/artho/internal/appstate"
	"github.com/dvloznov/artho/internal/auth"
	"github.com/dvloznov/artho/internal/config"
	"github.com/dvloznov/artho/internal/extract"
	"github.com/dvloznov/artho/internal/gemini"
	"github.com/dvloznov/artho/internal/insight"
	"github.com/dvloznov/artho/internal/jobs"
	"github.com/dvloznov/artho/internal/kv"
	"github.com/dvloznov/artho/internal/ledger"
	"github.com/dvloznov/artho/internal/reconcile"
	"github.com/dvloznov/artho/internal/remote"
	"github.com/dvloznov/artho/internal/tracker"
)

// App holds the wired components. Reconciler is nil when no remote backend
// is configured.
type App struct {
	Config     config.Config
	Store      *kv.SQLite
	Ledger     *ledger.Ledger
	Tracker    *tracker.Tracker
	Reconciler *reconcile.Reconciler
	Log        zerolog.Logger

	closers []func() error
}

// Open builds an App. pub may be nil; insight refreshes then happen lazily.
func Open(ctx context.Context, cfg config.Config, log zerolog.Logger, pub jobs.Publisher) (*App, error) {
	store, err := kv.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	a := &App{Config: cfg, Store: store, Log: log, closers: []func() error{store.Close}}

	var opts []ledger.Option
	if cfg.DemoData {
		opts = append(opts, ledger.WithDemoData())
	}
	a.Ledger, err = ledger.Open(ctx, store, log.With().Str("component", "ledger").Logger(), opts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}

	// A nil interface, not a typed nil, makes the extractor and advisor
	// run without a model.
	var gen gemini.Generator
	if cfg.GeminiAPIKey != "" {
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.ModelName, log.With().Str("component", "gemini").Logger())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("Open: %w", err)
		}
		gen = client
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, extraction disabled and insights use local fallback")
	}

	var trackerOpts []tracker.Option
	if pub != nil {
		trackerOpts = append(trackerOpts, tracker.WithPublisher(pub))
	}
	a.Tracker = tracker.New(
		a.Ledger,
		extract.NewGemini(gen, log.With().Str("component", "extract").Logger()),
		insight.NewAdvisor(gen, log.With().Str("component", "insight").Logger()),
		log,
		trackerOpts...,
	)

	if cfg.SyncEnabled() {
		if err := a.openReconciler(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("Open: %w", err)
		}
	}
	return a, nil
}

func (a *App) openReconciler(ctx context.Context) error {
	syncLog := a.Log.With().Str("component", "sync").Str("remote", a.Config.Remote).Logger()

	var (
		blob   remote.Blob
		tokens auth.Authenticator
	)
	switch a.Config.Remote {
	case config.RemoteGCS:
		gcs, err := remote.NewGCS(ctx, a.Config.GCSBucket, a.Config.RemoteObject(), syncLog)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, gcs.Close)
		blob, tokens = gcs, auth.Ambient{}
	case config.RemoteDrive:
		store := auth.NewStore(a.Store, syncLog, auth.WithSealKey(a.Config.TokenKey))
		blob = remote.NewDrive(store, a.Config.RemoteFolder, a.Config.RemoteFile, syncLog)
		tokens = store
	default:
		return fmt.Errorf("unknown remote %q", a.Config.Remote)
	}

	r, err := reconcile.New(ctx, a.Ledger, blob, tokens, appstate.NewKV(a.Store), syncLog)
	if err != nil {
		return err
	}
	a.Reconciler = r
	return nil
}

// Close releases every opened resource, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Error().Err(err).Msg("Failed to close resource")
		}
	}
	a.closers = nil
}
