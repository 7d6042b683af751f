// Package kv is the local durable key-value store the tracker persists its
// state in. Values are opaque strings; callers own the encoding.
package kv

import (
	"context"
	"errors"
)

// Storage keys used by the tracker.
const (
	KeyTransactions = "artho_finance_v4_data"
	KeyAccounts     = "artho_accounts_v4"
	KeySyncState    = "artho_sync_state"
	KeyLastMutation = "artho_last_mutation"
	KeyDriveToken   = "artho_drive_token"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("kv: key not found")

// Store persists string values by key.
//
// PutBatch applies every write and delete in one atomic step: either all of
// them become visible or none do.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	PutBatch(ctx context.Context, values map[string]string, deletes ...string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
