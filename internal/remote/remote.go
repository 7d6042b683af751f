// Package remote stores the backup document in a cloud blob: a single JSON
// document {transactions, accounts, lastUpdated} overwritten wholesale on
// every push.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dvloznov/artho/internal/domain"
)

// ErrNoToken is returned by backends that need a user token when none is
// stored or it has expired.
var ErrNoToken = errors.New("remote: no valid access token")

// Blob is the remote copy of the ledger.
type Blob interface {
	// Download returns the remote snapshot, or nil with no error when no
	// remote copy exists yet.
	Download(ctx context.Context) (*domain.Snapshot, error)
	// Upload replaces the remote document. A failed upload leaves the
	// previous document in place.
	Upload(ctx context.Context, snap domain.Snapshot) error
}

// document is the wire form. Timestamps are written the way browsers do so
// documents stay readable by the web client.
type document struct {
	Transactions []domain.Transaction `json:"transactions"`
	Accounts     []domain.Account     `json:"accounts,omitempty"`
	LastUpdated  string               `json:"lastUpdated"`
}

// Encode writes snap as the backup document.
func Encode(w io.Writer, snap domain.Snapshot) error {
	doc := document{
		Transactions: domain.CloneTransactions(snap.Transactions),
		Accounts:     snap.Accounts,
		LastUpdated:  domain.FormatTimestamp(snap.LastUpdated),
	}
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

// Decode reads a backup document. A missing or unparsable lastUpdated is an
// error; a missing accounts list decodes as nil.
func Decode(r io.Reader) (*domain.Snapshot, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("Decode: %w", err)
	}
	if doc.LastUpdated == "" {
		return nil, fmt.Errorf("Decode: document has no lastUpdated")
	}
	ts, err := domain.ParseTimestamp(doc.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("Decode: lastUpdated: %w", err)
	}
	return &domain.Snapshot{
		Transactions: domain.CloneTransactions(doc.Transactions),
		Accounts:     doc.Accounts,
		LastUpdated:  ts,
	}, nil
}
