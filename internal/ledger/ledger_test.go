package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/artho/internal/domain"
	"github.com/dvloznov/artho/internal/kv"
	"github.com/dvloznov/artho/internal/logger"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLedger(t *testing.T, store kv.Store, opts ...Option) (*Ledger, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)}
	l, err := Open(context.Background(), store, logger.Nop(), append([]Option{WithClock(c.now)}, opts...)...)
	require.NoError(t, err)
	return l, c
}

func sampleTx(id string, amount float64, typ domain.TxType) domain.Transaction {
	return domain.Transaction{
		ID:       id,
		Amount:   amount,
		Category: domain.CategoryFood,
		Type:     typ,
		Date:     time.Date(2024, 1, 9, 8, 0, 0, 0, time.UTC),
		Source:   "CASH",
		Note:     "note " + id,
		RawInput: "raw " + id,
	}
}

func TestOpen_Defaults(t *testing.T) {
	l, c := newTestLedger(t, kv.NewMemory())

	assert.Empty(t, l.Transactions())
	assert.Equal(t, domain.DefaultAccounts(), l.Accounts())
	assert.True(t, l.Mutation().Equal(c.t), "mutation defaults to load time")
}

func TestOpen_DemoData(t *testing.T) {
	l, _ := newTestLedger(t, kv.NewMemory(), WithDemoData())
	assert.Len(t, l.Transactions(), 16)
}

func TestOpen_LoadTimeNotPersisted(t *testing.T) {
	store := kv.NewMemory()
	newTestLedger(t, store)

	_, err := store.Get(context.Background(), kv.KeyLastMutation)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestAppend_PersistsDataAndMutation(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	l, c := newTestLedger(t, store)

	c.advance(time.Hour)
	require.NoError(t, l.Append(ctx, sampleTx("t1", 100, domain.TypeExpense), sampleTx("t2", 50, domain.TypeIncome)))

	assert.Len(t, l.Transactions(), 2)
	assert.True(t, l.Mutation().Equal(c.t))

	raw, err := store.Get(ctx, kv.KeyLastMutation)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-10T11:00:00.000Z", raw)

	reopened, _ := newTestLedger(t, store)
	assert.Equal(t, l.Transactions(), reopened.Transactions())
	assert.True(t, reopened.Mutation().Equal(l.Mutation()))
}

func TestAppend_FailedWriteLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	l, c := newTestLedger(t, store)
	require.NoError(t, l.Append(ctx, sampleTx("t1", 100, domain.TypeExpense)))
	before := l.Mutation()

	store.FailWrites = errors.New("disk full")
	c.advance(time.Minute)
	err := l.Append(ctx, sampleTx("t2", 5, domain.TypeExpense))

	assert.Error(t, err)
	assert.Len(t, l.Transactions(), 1)
	assert.True(t, l.Mutation().Equal(before))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, kv.NewMemory())
	require.NoError(t, l.Append(ctx, sampleTx("t1", 1, domain.TypeExpense), sampleTx("t2", 2, domain.TypeExpense)))

	require.NoError(t, l.Delete(ctx, "t1"))
	txs := l.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "t2", txs[0].ID)

	assert.ErrorIs(t, l.Delete(ctx, "missing"), ErrNotFound)
}

func TestWipeKeepsAccounts(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, kv.NewMemory(), WithDemoData())

	require.NoError(t, l.Wipe(ctx))
	assert.Empty(t, l.Transactions())
	assert.Len(t, l.Accounts(), 4)
}

func TestReplace_NilAccountsKeepsList(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, kv.NewMemory())

	require.NoError(t, l.Replace(ctx, []domain.Transaction{sampleTx("r1", 9, domain.TypeIncome)}, nil))
	assert.Equal(t, domain.DefaultAccounts(), l.Accounts())

	accounts := []domain.Account{{ID: "x", Name: "WALLET"}}
	require.NoError(t, l.Replace(ctx, nil, accounts))
	assert.Equal(t, accounts, l.Accounts())
	assert.NotNil(t, l.Transactions())
	assert.Empty(t, l.Transactions())
}

func TestTouchUsesGivenTimestamp(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	l, _ := newTestLedger(t, store)
	ts := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.Append(ctx, sampleTx("a", 1, domain.TypeIncome)))
	require.NoError(t, l.Touch(ctx, ts))
	assert.True(t, l.Mutation().Equal(ts))
	assert.Len(t, l.Transactions(), 1)

	reopened, _ := newTestLedger(t, store)
	assert.True(t, reopened.Mutation().Equal(ts), "timestamp is persisted")
	assert.Len(t, reopened.Transactions(), 1)
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, kv.NewMemory())

	acc, err := l.AddAccount(ctx, "  Nagad ", "📱", "#F7941D")
	require.NoError(t, err)
	assert.Equal(t, "Nagad", acc.Name)
	assert.NotEmpty(t, acc.ID)
	assert.Contains(t, l.AccountNames(), "Nagad")

	_, err = l.AddAccount(ctx, "cash", "", "")
	assert.ErrorIs(t, err, ErrInvalidAccount)
	_, err = l.AddAccount(ctx, "   ", "", "")
	assert.ErrorIs(t, err, ErrInvalidAccount)

	require.NoError(t, l.RemoveAccount(ctx, acc.ID))
	assert.NotContains(t, l.AccountNames(), "Nagad")
	assert.ErrorIs(t, l.RemoveAccount(ctx, acc.ID), ErrNotFound)

	require.NoError(t, l.SetAccounts(ctx, []domain.Account{{Name: "ONLY"}}))
	accounts := l.Accounts()
	require.Len(t, accounts, 1)
	assert.NotEmpty(t, accounts[0].ID)
}

func TestReloadIfChanged(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	first, c := newTestLedger(t, store)
	second, _ := newTestLedger(t, store)

	changed, err := first.ReloadIfChanged(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "nothing written yet")

	c.advance(time.Minute)
	require.NoError(t, second.Append(ctx, sampleTx("t1", 10, domain.TypeExpense)))

	changed, err = first.ReloadIfChanged(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, first.Transactions(), 1)

	changed, err = first.ReloadIfChanged(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSnapshotDoesNotAlias(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, kv.NewMemory())
	require.NoError(t, l.Append(ctx, sampleTx("t1", 10, domain.TypeExpense)))

	snap := l.Snapshot()
	snap.Transactions[0].Amount = 999
	snap.Accounts[0].Name = "CHANGED"

	assert.Equal(t, 10.0, l.Transactions()[0].Amount)
	assert.Equal(t, "BRAC BANK", l.Accounts()[0].Name)
	assert.True(t, snap.LastUpdated.Equal(l.Mutation()))
}
