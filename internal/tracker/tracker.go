// Package tracker ties the ledger, extraction and insight clients together
// into the operations the API and CLI expose.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/artho/internal/aggregate"
	"github.com/dvloznov/artho/internal/backup"
	"github.com/dvloznov/artho/internal/domain"
	"github.com/dvloznov/artho/internal/extract"
	"github.com/dvloznov/artho/internal/filter"
	"github.com/dvloznov/artho/internal/jobs"
)

// ErrNotUnderstood is returned when no transaction could be extracted.
var ErrNotUnderstood = errors.New("tracker: input not understood")

// Store is the Record Store surface the tracker writes through.
type Store interface {
	Transactions() []domain.Transaction
	Accounts() []domain.Account
	AccountNames() []string
	Append(ctx context.Context, txs ...domain.Transaction) error
	Replace(ctx context.Context, txs []domain.Transaction, accounts []domain.Account) error
	Delete(ctx context.Context, id string) error
	Wipe(ctx context.Context) error
	SetAccounts(ctx context.Context, accounts []domain.Account) error
}

// Advisor produces insights for a transaction list.
type Advisor interface {
	Insights(ctx context.Context, txs []domain.Transaction) []domain.SpendingInsight
}

// Tracker is safe for concurrent use.
type Tracker struct {
	store     Store
	extractor extract.Extractor
	advisor   Advisor
	publisher jobs.Publisher
	log       zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	insights []domain.SpendingInsight
	version  uint64 // bumped on every ledger change
	computed uint64 // version the cached insights were computed at
	cached   bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithPublisher publishes an insight refresh job after every ledger change.
// Without one, insights are recomputed lazily on the next read.
func WithPublisher(p jobs.Publisher) Option {
	return func(t *Tracker) { t.publisher = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New returns a Tracker.
func New(store Store, extractor extract.Extractor, advisor Advisor, log zerolog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:     store,
		extractor: extractor,
		advisor:   advisor,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ProcessInput extracts transactions from text and stores them. Every record
// created from one input shares the raw text and the creation time.
func (t *Tracker) ProcessInput(ctx context.Context, text string) ([]domain.Transaction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNotUnderstood
	}

	proposals := t.extractor.Extract(ctx, text, t.store.AccountNames())
	if len(proposals) == 0 {
		t.log.Info().Str("input", text).Msg("Could not understand input")
		return nil, ErrNotUnderstood
	}

	created := t.now().UTC()
	txs := make([]domain.Transaction, 0, len(proposals))
	for _, p := range proposals {
		txs = append(txs, newTransaction(p, text, created))
	}
	if err := t.store.Append(ctx, txs...); err != nil {
		return nil, fmt.Errorf("ProcessInput: %w", err)
	}

	t.log.Info().Int("count", len(txs)).Msg("Transactions recorded")
	t.Changed(ctx, jobs.TriggerAdded)
	return txs, nil
}

func newTransaction(p extract.Proposal, raw string, created time.Time) domain.Transaction {
	return domain.Transaction{
		ID:       uuid.NewString(),
		Amount:   p.Amount,
		Category: p.Category,
		Type:     p.Type,
		Date:     created,
		Source:   p.Source,
		Note:     p.Note,
		RawInput: raw,
	}
}

// Transactions returns every stored record in insertion order.
func (t *Tracker) Transactions() []domain.Transaction {
	return t.store.Transactions()
}

// Accounts returns the account list.
func (t *Tracker) Accounts() []domain.Account {
	return t.store.Accounts()
}

// Delete removes one record.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	if err := t.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	t.log.Info().Str("transaction_id", id).Msg("Transaction deleted")
	t.Changed(ctx, jobs.TriggerDeleted)
	return nil
}

// Wipe removes every record.
func (t *Tracker) Wipe(ctx context.Context) error {
	if err := t.store.Wipe(ctx); err != nil {
		return fmt.Errorf("Wipe: %w", err)
	}
	t.log.Warn().Msg("All transactions wiped")
	t.Changed(ctx, jobs.TriggerWiped)
	return nil
}

// SetAccounts replaces the account list.
func (t *Tracker) SetAccounts(ctx context.Context, accounts []domain.Account) error {
	if err := t.store.SetAccounts(ctx, accounts); err != nil {
		return fmt.Errorf("SetAccounts: %w", err)
	}
	t.Changed(ctx, jobs.TriggerAccounts)
	return nil
}

// Restore replaces every record with txs once confirm approves.
func (t *Tracker) Restore(ctx context.Context, txs []domain.Transaction, confirm func(n int) bool) error {
	if err := backup.Restore(ctx, t.store, txs, confirm); err != nil {
		return fmt.Errorf("Restore: %w", err)
	}
	t.log.Info().Int("count", len(txs)).Msg("Backup restored")
	t.Changed(ctx, jobs.TriggerRestored)
	return nil
}

// Dashboard is the filtered view with its aggregates.
type Dashboard struct {
	Criteria     filter.Criteria
	Transactions []domain.Transaction // newest first
	Report       aggregate.Report
}

// Dashboard filters the records by c. Summary and categories cover the
// filtered list; balances always cover every record.
func (t *Tracker) Dashboard(c filter.Criteria, now time.Time) Dashboard {
	all := t.store.Transactions()
	filtered := filter.Apply(all, c, now)
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Date.After(filtered[j].Date)
	})

	return Dashboard{
		Criteria:     c,
		Transactions: filtered,
		Report: aggregate.Report{
			Summary:    aggregate.Totals(filtered),
			Balances:   aggregate.Balances(all, t.store.Accounts()),
			Categories: aggregate.CategoryTotals(filtered),
		},
	}
}

// Insights returns the cached insights, computing them first when the
// ledger changed since the last computation.
func (t *Tracker) Insights(ctx context.Context) []domain.SpendingInsight {
	t.mu.Lock()
	fresh := t.cached && t.computed == t.version
	out := cloneInsights(t.insights)
	t.mu.Unlock()
	if fresh {
		return out
	}
	return t.RefreshInsights(ctx)
}

// RefreshInsights recomputes the insights over the current records.
func (t *Tracker) RefreshInsights(ctx context.Context) []domain.SpendingInsight {
	t.mu.Lock()
	version := t.version
	t.mu.Unlock()

	insights := t.advisor.Insights(ctx, t.store.Transactions())

	t.mu.Lock()
	// A change that landed while computing keeps the cache stale.
	if !t.cached || version >= t.computed {
		t.insights = insights
		t.computed = version
		t.cached = true
	}
	t.mu.Unlock()
	return cloneInsights(insights)
}

// HandleJob is the jobs.JobHandler that refreshes insights.
func (t *Tracker) HandleJob(ctx context.Context, job jobs.Job) error {
	if job.GetType() != jobs.JobTypeRefreshInsights {
		return fmt.Errorf("HandleJob: unsupported job type %q", job.GetType())
	}
	t.RefreshInsights(ctx)
	return ctx.Err()
}

// Changed marks the cached insights stale and, with a publisher, queues a
// refresh. Callers that mutate the ledger directly, such as sync, report
// their changes here.
func (t *Tracker) Changed(ctx context.Context, trigger jobs.Trigger) {
	t.mu.Lock()
	t.version++
	t.mu.Unlock()

	if t.publisher == nil {
		return
	}
	job := &jobs.InsightJob{Trigger: trigger}
	if err := t.publisher.PublishRefresh(ctx, job); err != nil {
		t.log.Warn().Err(err).Str("trigger", string(trigger)).Msg("Failed to queue insight refresh")
		return
	}
	t.log.Debug().Str("job_id", job.JobID).Str("trigger", string(trigger)).Msg("Insight refresh queued")
}

func cloneInsights(in []domain.SpendingInsight) []domain.SpendingInsight {
	if in == nil {
		return nil
	}
	out := make([]domain.SpendingInsight, len(in))
	copy(out, in)
	return out
}
