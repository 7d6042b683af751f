// Package ledger is the Record Store: the ordered transaction list and the
// account list, persisted together with the mutation timestamp.
//
// Every write persists data and timestamp in one kv batch before the
// in-memory view changes. A failed write leaves both untouched.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/artho/internal/domain"
	"github.com/dvloznov/artho/internal/kv"
)

var (
	// ErrNotFound is returned when no record or account has the given id.
	ErrNotFound = errors.New("ledger: not found")
	// ErrInvalidAccount is returned for blank or duplicate account names.
	ErrInvalidAccount = errors.New("ledger: invalid account")
)

// Ledger holds the in-memory view of the Record Store.
type Ledger struct {
	store kv.Store
	log   zerolog.Logger
	now   func() time.Time
	demo  bool

	mu       sync.RWMutex
	txs      []domain.Transaction
	accounts []domain.Account
	mutation time.Time
	stored   bool // mutation timestamp came from the store
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithDemoData seeds the sample transactions in memory when the stored list
// is empty. They are persisted by the first write.
func WithDemoData() Option {
	return func(l *Ledger) { l.demo = true }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Open loads the ledger from store.
func Open(ctx context.Context, store kv.Store, log zerolog.Logger, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store: store,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.load(ctx); err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	return l, nil
}

// load replaces the in-memory view with what the store holds. Caller holds mu.
func (l *Ledger) load(ctx context.Context) error {
	txs, err := readJSON[[]domain.Transaction](ctx, l.store, kv.KeyTransactions)
	if err != nil {
		return err
	}
	if len(txs) == 0 && l.demo {
		txs = domain.DemoTransactions(l.now())
	}

	accounts, err := readJSON[[]domain.Account](ctx, l.store, kv.KeyAccounts)
	if err != nil {
		return err
	}
	if accounts == nil {
		accounts = domain.DefaultAccounts()
	}

	mutation, stored, err := l.readMutation(ctx)
	if err != nil {
		return err
	}

	l.txs = domain.CloneTransactions(txs)
	l.accounts = accounts
	l.mutation = mutation
	l.stored = stored
	return nil
}

func (l *Ledger) readMutation(ctx context.Context) (time.Time, bool, error) {
	raw, err := l.store.Get(ctx, kv.KeyLastMutation)
	if errors.Is(err, kv.ErrNotFound) {
		// Nothing recorded yet: treat the load itself as the last write.
		return l.now().UTC(), false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading mutation timestamp: %w", err)
	}
	ts, err := domain.ParseTimestamp(raw)
	if err != nil {
		l.log.Warn().Str("value", raw).Msg("Ignoring unparsable mutation timestamp")
		return l.now().UTC(), false, nil
	}
	return ts, true, nil
}

func readJSON[T any](ctx context.Context, store kv.Store, key string) (T, error) {
	var out T
	raw, err := store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("decoding %s: %w", key, err)
	}
	return out, nil
}

// ReloadIfChanged reloads from the store when another session wrote a
// different mutation timestamp. Last writer wins; nothing is merged.
func (l *Ledger) ReloadIfChanged(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	mutation, stored, err := l.readMutation(ctx)
	if err != nil {
		return false, fmt.Errorf("ReloadIfChanged: %w", err)
	}
	if !stored || (l.stored && domain.CompareInstants(mutation, l.mutation) == 0) {
		return false, nil
	}
	if err := l.load(ctx); err != nil {
		return false, fmt.Errorf("ReloadIfChanged: %w", err)
	}
	l.log.Info().Str("mutation", domain.FormatTimestamp(mutation)).Msg("Reloaded ledger after external change")
	return true, nil
}

// Transactions returns a copy of the record list in insertion order.
func (l *Ledger) Transactions() []domain.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return domain.CloneTransactions(l.txs)
}

// Accounts returns a copy of the account list.
func (l *Ledger) Accounts() []domain.Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return domain.CloneAccounts(l.accounts)
}

// AccountNames returns the account names in list order.
func (l *Ledger) AccountNames() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return domain.AccountNames(l.accounts)
}

// Mutation returns the local mutation timestamp.
func (l *Ledger) Mutation() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.mutation
}

// Snapshot returns the whole document as it would be pushed to the remote.
func (l *Ledger) Snapshot() domain.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return domain.Snapshot{
		Transactions: domain.CloneTransactions(l.txs),
		Accounts:     domain.CloneAccounts(l.accounts),
		LastUpdated:  l.mutation,
	}
}

// Append adds records to the end of the list.
func (l *Ledger) Append(ctx context.Context, txs ...domain.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]domain.Transaction, 0, len(l.txs)+len(txs))
	next = append(next, l.txs...)
	next = append(next, txs...)
	if err := l.commit(ctx, next, nil, l.now()); err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

// Replace swaps the whole record list. A nil accounts slice keeps the
// current account list.
func (l *Ledger) Replace(ctx context.Context, txs []domain.Transaction, accounts []domain.Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.commit(ctx, domain.CloneTransactions(txs), cloneOrNil(accounts), l.now()); err != nil {
		return fmt.Errorf("Replace: %w", err)
	}
	return nil
}

// Touch records mutation as the local mutation timestamp without changing data.
func (l *Ledger) Touch(ctx context.Context, mutation time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.commit(ctx, l.txs, nil, mutation); err != nil {
		return fmt.Errorf("Touch: %w", err)
	}
	return nil
}

// Delete removes the record with id.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]domain.Transaction, 0, len(l.txs))
	for _, tx := range l.txs {
		if tx.ID != id {
			next = append(next, tx)
		}
	}
	if len(next) == len(l.txs) {
		return fmt.Errorf("Delete: transaction %s: %w", id, ErrNotFound)
	}
	if err := l.commit(ctx, next, nil, l.now()); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// Wipe removes every record. Accounts are kept.
func (l *Ledger) Wipe(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.commit(ctx, []domain.Transaction{}, nil, l.now()); err != nil {
		return fmt.Errorf("Wipe: %w", err)
	}
	return nil
}

// SetAccounts replaces the account list. Names must be non-blank and unique
// ignoring case; missing ids are generated.
func (l *Ledger) SetAccounts(ctx context.Context, accounts []domain.Account) error {
	next, err := normalizeAccounts(accounts)
	if err != nil {
		return fmt.Errorf("SetAccounts: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.commit(ctx, l.txs, next, l.now()); err != nil {
		return fmt.Errorf("SetAccounts: %w", err)
	}
	return nil
}

// AddAccount appends a new account and returns it.
func (l *Ledger) AddAccount(ctx context.Context, name, icon, color string) (domain.Account, error) {
	acc := domain.Account{ID: uuid.NewString(), Name: strings.TrimSpace(name), Icon: icon, Color: color}

	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := normalizeAccounts(append(domain.CloneAccounts(l.accounts), acc))
	if err != nil {
		return domain.Account{}, fmt.Errorf("AddAccount: %w", err)
	}
	if err := l.commit(ctx, l.txs, next, l.now()); err != nil {
		return domain.Account{}, fmt.Errorf("AddAccount: %w", err)
	}
	return acc, nil
}

// RemoveAccount drops the account with id. Records that reference it keep
// their source name.
func (l *Ledger) RemoveAccount(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]domain.Account, 0, len(l.accounts))
	for _, a := range l.accounts {
		if a.ID != id {
			next = append(next, a)
		}
	}
	if len(next) == len(l.accounts) {
		return fmt.Errorf("RemoveAccount: account %s: %w", id, ErrNotFound)
	}
	if err := l.commit(ctx, l.txs, next, l.now()); err != nil {
		return fmt.Errorf("RemoveAccount: %w", err)
	}
	return nil
}

// commit persists txs, accounts (nil keeps the current list) and mutation
// in one batch, then swaps the in-memory view. Caller holds mu.
func (l *Ledger) commit(ctx context.Context, txs []domain.Transaction, accounts []domain.Account, mutation time.Time) error {
	if txs == nil {
		txs = []domain.Transaction{}
	}
	mutation = mutation.UTC().Truncate(time.Millisecond)

	txData, err := json.Marshal(txs)
	if err != nil {
		return fmt.Errorf("encoding transactions: %w", err)
	}
	values := map[string]string{
		kv.KeyTransactions: string(txData),
		kv.KeyLastMutation: domain.FormatTimestamp(mutation),
	}
	if accounts != nil {
		accData, err := json.Marshal(accounts)
		if err != nil {
			return fmt.Errorf("encoding accounts: %w", err)
		}
		values[kv.KeyAccounts] = string(accData)
	}

	if err := l.store.PutBatch(ctx, values); err != nil {
		return fmt.Errorf("persisting ledger: %w", err)
	}

	l.txs = txs
	if accounts != nil {
		l.accounts = accounts
	}
	l.mutation = mutation
	l.stored = true

	l.log.Debug().
		Int("transactions", len(l.txs)).
		Int("accounts", len(l.accounts)).
		Str("mutation", domain.FormatTimestamp(mutation)).
		Msg("Ledger committed")
	return nil
}

func cloneOrNil(accounts []domain.Account) []domain.Account {
	if accounts == nil {
		return nil
	}
	return domain.CloneAccounts(accounts)
}

func normalizeAccounts(accounts []domain.Account) ([]domain.Account, error) {
	out := make([]domain.Account, 0, len(accounts))
	seen := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			return nil, fmt.Errorf("blank account name: %w", ErrInvalidAccount)
		}
		key := strings.ToUpper(a.Name)
		if seen[key] {
			return nil, fmt.Errorf("duplicate account %q: %w", a.Name, ErrInvalidAccount)
		}
		seen[key] = true
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		out = append(out, a)
	}
	return out, nil
}
