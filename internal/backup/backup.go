// Package backup produces and consumes the two manual backup formats: the
// pretty-printed export file and the base64 recovery key. Both carry the
// transaction array only.
package backup

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dvloznov/artho/internal/domain"
)

var (
	// ErrMalformed is returned when a document or key is not a transaction array.
	ErrMalformed = errors.New("backup: malformed backup")
	// ErrDeclined is returned by Restore when the user does not confirm.
	ErrDeclined = errors.New("backup: restore declined")
)

// ExportFilename names the export file for the given day.
func ExportFilename(now time.Time) string {
	return "artho-backup-" + now.Format("2006-01-02") + ".json"
}

// Export writes txs as an indented JSON array.
func Export(w io.Writer, txs []domain.Transaction) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(domain.CloneTransactions(txs)); err != nil {
		return fmt.Errorf("Export: %w", err)
	}
	return nil
}

// Import reads a document written by Export.
func Import(r io.Reader) ([]domain.Transaction, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Import: reading document: %w", err)
	}
	txs, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("Import: %w", err)
	}
	return txs, nil
}

// RecoveryKey encodes txs as base64 of their JSON array.
func RecoveryKey(txs []domain.Transaction) (string, error) {
	data, err := json.Marshal(domain.CloneTransactions(txs))
	if err != nil {
		return "", fmt.Errorf("RecoveryKey: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeRecoveryKey reverses RecoveryKey. Surrounding whitespace and line
// breaks from copy-paste are ignored.
func DecodeRecoveryKey(key string) ([]domain.Transaction, error) {
	key = strings.Join(strings.Fields(key), "")
	data, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(key)
	}
	if err != nil {
		return nil, fmt.Errorf("DecodeRecoveryKey: %w: %v", ErrMalformed, err)
	}
	txs, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("DecodeRecoveryKey: %w", err)
	}
	return txs, nil
}

func decode(data []byte) ([]domain.Transaction, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrMalformed)
	}
	var txs []domain.Transaction
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return domain.CloneTransactions(txs), nil
}

// Target is the store a restore replaces.
type Target interface {
	Replace(ctx context.Context, txs []domain.Transaction, accounts []domain.Account) error
}

// Restore replaces the whole transaction list of target with txs once
// confirm approves. confirm receives the number of records to be restored;
// a nil confirm declines. Accounts are left as they are.
func Restore(ctx context.Context, target Target, txs []domain.Transaction, confirm func(n int) bool) error {
	if confirm == nil || !confirm(len(txs)) {
		return ErrDeclined
	}
	if err := target.Replace(ctx, txs, nil); err != nil {
		return fmt.Errorf("Restore: %w", err)
	}
	return nil
}
