package backup

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/artho/internal/domain"
)

func sample() []domain.Transaction {
	return domain.DemoTransactions(time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC))
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "artho-backup-2024-03-07.json", ExportFilename(time.Date(2024, 3, 7, 23, 59, 0, 0, time.UTC)))
}

func TestExport_PrettyPrinted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sample()[:1]))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "[\n  {\n    \"id\": \"d1\""), out)
	assert.Contains(t, out, `"rawInput": `)
}

func TestExport_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestExportImport_RoundTrip(t *testing.T) {
	txs := sample()
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, txs))

	got, err := Import(&buf)
	require.NoError(t, err)
	assert.Equal(t, txs, got)
}

func TestRecoveryKey_RoundTrip(t *testing.T) {
	txs := sample()
	txs[0].Note = "চা & সিঙ্গারা"

	key, err := RecoveryKey(txs)
	require.NoError(t, err)
	assert.NotContains(t, key, "{")

	got, err := DecodeRecoveryKey("  " + key[:10] + "\n" + key[10:] + "\n")
	require.NoError(t, err)
	assert.Equal(t, txs, got)
}

func TestMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"object", `{"transactions":[]}`},
		{"null", `null`},
		{"broken", `[{"id":`},
		{"wrong field type", `[{"id":"a","amount":"ten"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import(strings.NewReader(tt.doc))
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}

	_, err := DecodeRecoveryKey("not base64 !!")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeRecoveryKey("eyJhIjoxfQ==") // {"a":1}
	assert.ErrorIs(t, err, ErrMalformed)
}

type mockTarget struct {
	ReplaceFunc func(ctx context.Context, txs []domain.Transaction, accounts []domain.Account) error
	replaced    [][]domain.Transaction
}

func (m *mockTarget) Replace(ctx context.Context, txs []domain.Transaction, accounts []domain.Account) error {
	m.replaced = append(m.replaced, txs)
	if m.ReplaceFunc != nil {
		return m.ReplaceFunc(ctx, txs, accounts)
	}
	return nil
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	txs := sample()

	t.Run("confirmed", func(t *testing.T) {
		target := &mockTarget{ReplaceFunc: func(_ context.Context, _ []domain.Transaction, accounts []domain.Account) error {
			assert.Nil(t, accounts, "accounts are kept")
			return nil
		}}
		var asked int
		err := Restore(ctx, target, txs, func(n int) bool { asked = n; return true })
		require.NoError(t, err)
		assert.Equal(t, 16, asked)
		require.Len(t, target.replaced, 1)
		assert.Equal(t, txs, target.replaced[0])
	})

	t.Run("declined", func(t *testing.T) {
		target := &mockTarget{}
		err := Restore(ctx, target, txs, func(int) bool { return false })
		assert.ErrorIs(t, err, ErrDeclined)
		assert.Empty(t, target.replaced)
	})

	t.Run("no confirmation", func(t *testing.T) {
		target := &mockTarget{}
		assert.ErrorIs(t, Restore(ctx, target, txs, nil), ErrDeclined)
		assert.Empty(t, target.replaced)
	})

	t.Run("store failure", func(t *testing.T) {
		target := &mockTarget{ReplaceFunc: func(context.Context, []domain.Transaction, []domain.Account) error {
			return errors.New("disk full")
		}}
		err := Restore(ctx, target, txs, func(int) bool { return true })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
	})
}
