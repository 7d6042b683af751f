// Package reconcile decides, per invocation, whether the local ledger or the
// remote blob wins. The model is whole-document replace, last writer wins by
// mutation timestamp: a newer remote copy is pulled, a newer local copy is a
// conflict the user must resolve, and a missing remote copy is bootstrapped
// from local data.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/artho/internal/appstate"
	"github.com/dvloznov/artho/internal/auth"
	"github.com/dvloznov/artho/internal/domain"
	"github.com/dvloznov/artho/internal/remote"
)

var (
	// ErrSyncInProgress is returned when another sync or resolution is running.
	ErrSyncInProgress = errors.New("reconcile: sync already in progress")
	// ErrNoConflict is returned by ResolveConflict when nothing is pending.
	ErrNoConflict = errors.New("reconcile: no pending conflict")
	// ErrSessionExpired is returned when sync was connected but the stored
	// token is gone or expired. The state is demoted to disconnected.
	ErrSessionExpired = errors.New("reconcile: cloud session expired, reconnect")
	// ErrNotConnected is returned when sync has not been connected.
	ErrNotConnected = errors.New("reconcile: cloud sync not connected")
)

// Outcome is the terminal state of one sync invocation.
type Outcome string

const (
	PushedLocal     Outcome = "pushed_local"
	PulledRemote    Outcome = "pulled_remote"
	NoChange        Outcome = "no_change"
	ConflictPending Outcome = "conflict_pending"
)

// Choice is the user's answer to a pending conflict.
type Choice string

const (
	KeepLocal Choice = "local"
	UseRemote Choice = "remote"
)

// ParseChoice accepts "local"/"keep-local" or "remote"/"use-remote".
func ParseChoice(s string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "keep-local", "keep_local":
		return KeepLocal, nil
	case "remote", "use-remote", "use_remote", "cloud":
		return UseRemote, nil
	}
	return "", fmt.Errorf("ParseChoice: unknown choice %q (want local or remote)", s)
}

// Ledger is the part of the Record Store reconciliation reads and writes.
type Ledger interface {
	Snapshot() domain.Snapshot
	Replace(ctx context.Context, txs []domain.Transaction, accounts []domain.Account) error
	Touch(ctx context.Context, mutation time.Time) error
}

// Reconciler runs sync against one remote blob. It is safe for concurrent
// use; overlapping calls fail fast with ErrSyncInProgress.
type Reconciler struct {
	ledger Ledger
	blob   remote.Blob
	tokens auth.Authenticator
	states appstate.Repository
	now    func() time.Time
	log    zerolog.Logger

	busy atomic.Bool

	mu       sync.RWMutex
	state    domain.SyncState
	conflict *domain.Snapshot
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New loads the saved sync state and returns a Reconciler.
func New(ctx context.Context, ledger Ledger, blob remote.Blob, tokens auth.Authenticator, states appstate.Repository, log zerolog.Logger, opts ...Option) (*Reconciler, error) {
	r := &Reconciler{
		ledger: ledger,
		blob:   blob,
		tokens: tokens,
		states: states,
		now:    time.Now,
		log:    log,
	}
	for _, opt := range opts {
		opt(r)
	}

	state, err := states.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	r.state = state
	return r, nil
}

// State returns the current sync state.
func (r *Reconciler) State() domain.SyncState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyState(r.state)
}

// Conflict returns the pending remote snapshot, or nil.
func (r *Reconciler) Conflict() *domain.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.conflict == nil {
		return nil
	}
	c := *r.conflict
	c.Transactions = domain.CloneTransactions(c.Transactions)
	if c.Accounts != nil {
		c.Accounts = domain.CloneAccounts(c.Accounts)
	}
	return &c
}

// Sync compares local and remote mutation timestamps and acts on the result.
func (r *Reconciler) Sync(ctx context.Context) (Outcome, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return "", ErrSyncInProgress
	}
	defer r.busy.Store(false)

	if err := r.checkSession(ctx); err != nil {
		return "", fmt.Errorf("Sync: %w", err)
	}
	return r.sync(ctx)
}

func (r *Reconciler) sync(ctx context.Context) (Outcome, error) {
	r.update(ctx, func(s *domain.SyncState) {
		s.IsSyncing = true
		s.Error = nil
	})

	remoteSnap, err := r.blob.Download(ctx)
	if err != nil {
		return "", r.fail(ctx, "Sync: downloading remote copy", err)
	}
	local := r.ledger.Snapshot()

	if remoteSnap == nil {
		if err := r.blob.Upload(ctx, local); err != nil {
			return "", r.fail(ctx, "Sync: creating initial remote copy", err)
		}
		r.succeed(ctx, PushedLocal, local.LastUpdated, local.LastUpdated)
		return PushedLocal, nil
	}

	switch domain.CompareInstants(remoteSnap.LastUpdated, local.LastUpdated) {
	case 1:
		if err := r.ledger.Replace(ctx, remoteSnap.Transactions, remoteSnap.Accounts); err != nil {
			return "", r.fail(ctx, "Sync: applying remote copy", err)
		}
		r.succeed(ctx, PulledRemote, local.LastUpdated, remoteSnap.LastUpdated)
		return PulledRemote, nil

	case -1:
		r.mu.Lock()
		r.conflict = remoteSnap
		r.mu.Unlock()
		r.update(ctx, func(s *domain.SyncState) { s.IsSyncing = false })
		r.log.Warn().
			Str("local_ts", domain.FormatTimestamp(local.LastUpdated)).
			Str("remote_ts", domain.FormatTimestamp(remoteSnap.LastUpdated)).
			Str("outcome", string(ConflictPending)).
			Msg("Local copy is newer than remote, waiting for user choice")
		return ConflictPending, nil
	}

	r.update(ctx, func(s *domain.SyncState) { s.IsSyncing = false })
	r.log.Info().Str("outcome", string(NoChange)).Msg("Data is already up to date")
	return NoChange, nil
}

// ResolveConflict applies the user's choice to the pending conflict. On
// failure the conflict stays pending so the choice can be retried.
func (r *Reconciler) ResolveConflict(ctx context.Context, choice Choice) (Outcome, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return "", ErrSyncInProgress
	}
	defer r.busy.Store(false)

	r.mu.RLock()
	pending := r.conflict
	r.mu.RUnlock()
	if pending == nil {
		return "", ErrNoConflict
	}

	r.update(ctx, func(s *domain.SyncState) {
		s.IsSyncing = true
		s.Error = nil
	})

	var outcome Outcome
	switch choice {
	case KeepLocal:
		now := r.now().UTC().Truncate(time.Millisecond)
		snap := r.ledger.Snapshot()
		snap.LastUpdated = now
		if err := r.blob.Upload(ctx, snap); err != nil {
			return "", r.fail(ctx, "ResolveConflict: uploading local copy", err)
		}
		// Both sides now carry the same timestamp. A failure here leaves the
		// conflict pending; retrying re-uploads the same data.
		if err := r.ledger.Touch(ctx, now); err != nil {
			return "", r.fail(ctx, "ResolveConflict: recording local mutation after upload", err)
		}
		outcome = PushedLocal

	case UseRemote:
		if err := r.ledger.Replace(ctx, pending.Transactions, pending.Accounts); err != nil {
			return "", r.fail(ctx, "ResolveConflict: applying remote copy", err)
		}
		outcome = PulledRemote

	default:
		r.update(ctx, func(s *domain.SyncState) { s.IsSyncing = false })
		return "", fmt.Errorf("ResolveConflict: unknown choice %q", choice)
	}

	r.succeed(ctx, outcome, time.Time{}, pending.LastUpdated)
	return outcome, nil
}

// Connect stores a freshly obtained token, marks sync connected and runs a
// first sync.
func (r *Reconciler) Connect(ctx context.Context, token string, expiresIn time.Duration) (Outcome, error) {
	if err := r.tokens.Save(ctx, token, expiresIn); err != nil {
		return "", fmt.Errorf("Connect: %w", err)
	}
	r.update(ctx, func(s *domain.SyncState) {
		s.IsConnected = true
		s.Error = nil
	})
	r.log.Info().Msg("Cloud sync connected")
	return r.Sync(ctx)
}

// Disconnect forgets the token and resets the sync state. Local data is kept.
func (r *Reconciler) Disconnect(ctx context.Context) error {
	if err := r.tokens.Clear(ctx); err != nil {
		return fmt.Errorf("Disconnect: %w", err)
	}
	r.mu.Lock()
	r.conflict = nil
	r.mu.Unlock()
	r.update(ctx, func(s *domain.SyncState) { *s = domain.SyncState{} })
	r.log.Info().Msg("Cloud sync disconnected")
	return nil
}

// RestoreSession resumes sync at start-up. A connected state without a
// valid token is demoted to disconnected and ErrSessionExpired returned;
// local data is untouched.
func (r *Reconciler) RestoreSession(ctx context.Context) (Outcome, error) {
	return r.Sync(ctx)
}

// checkSession verifies the state is connected and a valid token exists.
func (r *Reconciler) checkSession(ctx context.Context) error {
	if !r.State().IsConnected {
		return ErrNotConnected
	}
	if _, ok := r.tokens.Valid(ctx); !ok {
		r.update(ctx, func(s *domain.SyncState) {
			s.IsConnected = false
			s.IsSyncing = false
		})
		r.log.Warn().Msg("Cloud session expired. Please reconnect.")
		return ErrSessionExpired
	}
	return nil
}

func (r *Reconciler) succeed(ctx context.Context, outcome Outcome, localTS, remoteTS time.Time) {
	now := r.now().UTC()
	r.mu.Lock()
	r.conflict = nil
	r.mu.Unlock()
	r.update(ctx, func(s *domain.SyncState) {
		s.IsSyncing = false
		s.Error = nil
		s.LastSync = &now
	})

	ev := r.log.Info().Str("outcome", string(outcome))
	if !localTS.IsZero() {
		ev = ev.Str("local_ts", domain.FormatTimestamp(localTS))
	}
	if !remoteTS.IsZero() {
		ev = ev.Str("remote_ts", domain.FormatTimestamp(remoteTS))
	}
	ev.Msg("Sync finished")
}

// fail records err in the sync state and returns it wrapped with op.
func (r *Reconciler) fail(ctx context.Context, op string, err error) error {
	msg := err.Error()
	r.update(ctx, func(s *domain.SyncState) {
		s.IsSyncing = false
		s.Error = &msg
	})
	r.log.Error().Err(err).Msg(op)
	return fmt.Errorf("%s: %w", op, err)
}

// update mutates the state and persists it. Persistence failures are logged;
// the in-memory state is authoritative for the running process.
func (r *Reconciler) update(ctx context.Context, fn func(*domain.SyncState)) {
	r.mu.Lock()
	fn(&r.state)
	state := copyState(r.state)
	r.mu.Unlock()

	if err := r.states.Save(ctx, state); err != nil {
		r.log.Error().Err(err).Msg("Failed to persist sync state")
	}
}

func copyState(s domain.SyncState) domain.SyncState {
	out := s
	if s.LastSync != nil {
		t := *s.LastSync
		out.LastSync = &t
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	return out
}
