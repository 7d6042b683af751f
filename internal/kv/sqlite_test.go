package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "artho.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_GetMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), KeyTransactions)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_PutBatchUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.PutBatch(ctx, map[string]string{
		KeyTransactions: "[]",
		KeyLastMutation: "2024-01-10T10:00:00.000Z",
	}))
	require.NoError(t, s.PutBatch(ctx, map[string]string{
		KeyTransactions: `[{"id":"t1"}]`,
	}, KeyLastMutation))

	got, err := s.Get(ctx, KeyTransactions)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"t1"}]`, got)

	_, err = s.Get(ctx, KeyLastMutation)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "artho.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.PutBatch(ctx, map[string]string{KeyAccounts: "[]"}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, KeyAccounts)
	require.NoError(t, err)
	assert.Equal(t, "[]", got)
}

func TestSQLite_DeleteMissingKey(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Delete(context.Background(), "never-written"))
}

func TestMemory_FailWritesLeavesContents(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.PutBatch(ctx, map[string]string{"a": "1"}))

	m.FailWrites = errors.New("disk full")
	err := m.PutBatch(ctx, map[string]string{"a": "2", "b": "3"})
	assert.Error(t, err)

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", got)
	_, err = m.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
}
