// Package appstate loads and saves the cloud sync status. It is read once at
// start and written on every sync-state transition.
package appstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dvloznov/artho/internal/domain"
	"github.com/dvloznov/artho/internal/kv"
)

// Repository persists domain.SyncState.
type Repository interface {
	Load(ctx context.Context) (domain.SyncState, error)
	Save(ctx context.Context, state domain.SyncState) error
}

// KV stores the sync state under kv.KeySyncState.
type KV struct {
	store kv.Store
}

// NewKV creates a Repository on top of store.
func NewKV(store kv.Store) *KV {
	return &KV{store: store}
}

// Load returns the saved state, or the disconnected default. A syncing flag
// left over from an interrupted run is cleared.
func (r *KV) Load(ctx context.Context) (domain.SyncState, error) {
	raw, err := r.store.Get(ctx, kv.KeySyncState)
	if errors.Is(err, kv.ErrNotFound) {
		return domain.SyncState{}, nil
	}
	if err != nil {
		return domain.SyncState{}, fmt.Errorf("Load: %w", err)
	}

	var state domain.SyncState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return domain.SyncState{}, fmt.Errorf("Load: decoding sync state: %w", err)
	}
	state.IsSyncing = false
	return state, nil
}

// Save writes state.
func (r *KV) Save(ctx context.Context, state domain.SyncState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("Save: encoding sync state: %w", err)
	}
	if err := r.store.PutBatch(ctx, map[string]string{kv.KeySyncState: string(data)}); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}
