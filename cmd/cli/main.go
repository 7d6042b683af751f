package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/artho/internal/app"
	"github.com/dvloznov/artho/internal/backup"
	"github.com/dvloznov/artho/internal/config"
	"github.com/dvloznov/artho/internal/domain"
	"github.com/dvloznov/artho/internal/filter"
	infraBQ "github.com/dvloznov/artho/internal/infra/bigquery"
	"github.com/dvloznov/artho/internal/jobs"
	"github.com/dvloznov/artho/internal/logger"
	"github.com/dvloznov/artho/internal/notionsync"
	"github.com/dvloznov/artho/internal/reconcile"
	"github.com/dvloznov/artho/internal/tracker"
)

// Globals holds options shared by every command and the lazily opened app.
type Globals struct {
	DB       string `help:"SQLite database path (defaults to ARTHO_DB_PATH)." type:"path"`
	LogLevel string `name:"log-level" help:"Log level." default:"warn" enum:"debug,info,warn,error"`

	cfg config.Config
	out io.Writer
	in  io.Reader
	app *app.App
}

func (g *Globals) logger() zerolog.Logger {
	return logger.NewWithWriter(os.Stderr).Level(logger.ParseLevel(g.LogLevel))
}

func (g *Globals) open(ctx context.Context) (*app.App, error) {
	if g.app != nil {
		return g.app, nil
	}
	cfg := g.cfg
	if g.DB != "" {
		cfg.DBPath = g.DB
	}
	a, err := app.Open(ctx, cfg, g.logger(), nil)
	if err != nil {
		return nil, err
	}
	g.app = a
	return a, nil
}

func (g *Globals) close() {
	if g.app != nil {
		g.app.Close()
		g.app = nil
	}
}

func (g *Globals) reconciler(ctx context.Context) (*app.App, error) {
	a, err := g.open(ctx)
	if err != nil {
		return nil, err
	}
	if a.Reconciler == nil {
		return nil, errors.New("cloud sync is not configured, set ARTHO_REMOTE to drive or gcs")
	}
	return a, nil
}

// confirm asks on the terminal unless yes is already set.
func (g *Globals) confirm(yes bool, question string) bool {
	if yes {
		return true
	}
	fmt.Fprintf(g.out, "%s [y/N] ", question)
	line, _ := bufio.NewReader(g.in).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// CLI is the command tree.
type CLI struct {
	Globals `embed:""`

	Add         addCmd         `cmd:"" help:"Record transactions described in free text."`
	List        listCmd        `cmd:"" help:"List transactions, newest first."`
	Summary     summaryCmd     `cmd:"" help:"Show inbound, outbound, balances and category totals."`
	Insights    insightsCmd    `cmd:"" help:"Generate spending insights."`
	Delete      deleteCmd      `cmd:"" help:"Delete one transaction by id."`
	Wipe        wipeCmd        `cmd:"" help:"Delete every transaction."`
	Accounts    accountsCmd    `cmd:"" help:"Show or edit accounts."`
	Sync        syncCmd        `cmd:"" help:"Reconcile with the cloud backup."`
	Resolve     resolveCmd     `cmd:"" help:"Resolve a sync conflict by keeping local or using remote data."`
	Connect     connectCmd     `cmd:"" help:"Store an access token and run a first sync."`
	Disconnect  disconnectCmd  `cmd:"" help:"Forget the access token. Local data is kept."`
	Export      exportCmd      `cmd:"" help:"Write all transactions to a JSON backup file."`
	RecoveryKey recoveryKeyCmd `cmd:"" name:"recovery-key" help:"Print a text recovery key holding all transactions."`
	Import      importCmd      `cmd:"" help:"Replace all transactions from a backup file or recovery key."`
	BigQuery    bigQueryCmd    `cmd:"" name:"export-bigquery" help:"Mirror transactions into a BigQuery table."`
	Notion      notionCmd      `cmd:"" name:"notion-sync" help:"Mirror transactions into a Notion database."`
}

type addCmd struct {
	Text []string `arg:"" help:"Free text, e.g. \"lunch 250 from bkash\"."`
}

func (c *addCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	created, err := a.Tracker.ProcessInput(ctx, strings.Join(c.Text, " "))
	if errors.Is(err, tracker.ErrNotUnderstood) {
		return errors.New("could not find any transactions in that text")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(g.out, "Recorded %d transaction(s)\n", len(created))
	printTransactions(g.out, created)
	return nil
}

type filterFlags struct {
	Category string `help:"Category filter (All, Food, Transport, ...)." default:"All"`
	Source   string `help:"Account filter." default:"All"`
	Period   string `help:"Time window." default:"All" enum:"All,Today,Week,Month,all,today,week,month"`
}

func (f filterFlags) criteria() (filter.Criteria, error) {
	return filter.ParseCriteria(f.Category, f.Source, f.Period)
}

type listCmd struct {
	Filter filterFlags `embed:""`
}

func (c *listCmd) Run(g *Globals) error {
	crit, err := c.Filter.criteria()
	if err != nil {
		return err
	}
	a, err := g.open(context.Background())
	if err != nil {
		return err
	}
	d := a.Tracker.Dashboard(crit, time.Now())
	printTransactions(g.out, d.Transactions)
	fmt.Fprintf(g.out, "%d transaction(s)\n", len(d.Transactions))
	return nil
}

type summaryCmd struct {
	Filter filterFlags `embed:""`
}

func (c *summaryCmd) Run(g *Globals) error {
	crit, err := c.Filter.criteria()
	if err != nil {
		return err
	}
	a, err := g.open(context.Background())
	if err != nil {
		return err
	}
	d := a.Tracker.Dashboard(crit, time.Now())
	r := d.Report

	tw := tabwriter.NewWriter(g.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Inbound\t%s\n", money(r.Summary.Inbound))
	fmt.Fprintf(tw, "Outbound\t%s\n", money(r.Summary.Outbound))
	fmt.Fprintf(tw, "Net\t%s\n", money(r.Summary.Net))
	fmt.Fprintln(tw)
	for _, acc := range a.Tracker.Accounts() {
		fmt.Fprintf(tw, "%s\t%s\n", acc.Name, money(r.Balances[acc.Name]))
	}
	if len(r.Categories) > 0 {
		fmt.Fprintln(tw)
		for _, ct := range r.Categories {
			fmt.Fprintf(tw, "%s\t%s\t%s%%\n", ct.Category, money(ct.Total), r.Share(ct.Category).String())
		}
	}
	return tw.Flush()
}

type insightsCmd struct{}

func (c *insightsCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	insights := a.Tracker.RefreshInsights(ctx)
	if len(insights) == 0 {
		fmt.Fprintln(g.out, "No transactions yet, nothing to analyse.")
		return nil
	}
	for _, in := range insights {
		fmt.Fprintf(g.out, "[%s] %s\n  %s\n", in.Type, in.Title, in.Message)
	}
	return nil
}

type deleteCmd struct {
	ID string `arg:"" help:"Transaction id."`
}

func (c *deleteCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	if err := a.Tracker.Delete(ctx, c.ID); err != nil {
		return err
	}
	fmt.Fprintf(g.out, "Deleted %s\n", c.ID)
	return nil
}

type wipeCmd struct {
	Yes bool `short:"y" help:"Do not ask for confirmation."`
}

func (c *wipeCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	n := len(a.Tracker.Transactions())
	if !g.confirm(c.Yes, fmt.Sprintf("Delete all %d transactions?", n)) {
		fmt.Fprintln(g.out, "Aborted")
		return nil
	}
	if err := a.Tracker.Wipe(ctx); err != nil {
		return err
	}
	fmt.Fprintf(g.out, "Deleted %d transaction(s)\n", n)
	return nil
}

type accountsCmd struct {
	List   accountsListCmd   `cmd:"" default:"1" help:"List accounts with balances."`
	Add    accountsAddCmd    `cmd:"" help:"Add an account."`
	Remove accountsRemoveCmd `cmd:"" help:"Remove an account by id. Its transactions are kept."`
}

type accountsListCmd struct{}

func (c *accountsListCmd) Run(g *Globals) error {
	a, err := g.open(context.Background())
	if err != nil {
		return err
	}
	d := a.Tracker.Dashboard(filter.Everything, time.Now())
	tw := tabwriter.NewWriter(g.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBALANCE")
	for _, acc := range a.Tracker.Accounts() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", acc.ID, acc.Name, money(d.Report.Balances[acc.Name]))
	}
	return tw.Flush()
}

type accountsAddCmd struct {
	Name  string `arg:"" help:"Account name."`
	Icon  string `help:"Icon name." default:"wallet"`
	Color string `help:"Display color." default:"#64748b"`
}

func (c *accountsAddCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	acc, err := a.Ledger.AddAccount(ctx, c.Name, c.Icon, c.Color)
	if err != nil {
		return err
	}
	a.Tracker.Changed(ctx, jobs.TriggerAccounts)
	fmt.Fprintf(g.out, "Added %s (%s)\n", acc.Name, acc.ID)
	return nil
}

type accountsRemoveCmd struct {
	ID string `arg:"" help:"Account id."`
}

func (c *accountsRemoveCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	if err := a.Ledger.RemoveAccount(ctx, c.ID); err != nil {
		return err
	}
	a.Tracker.Changed(ctx, jobs.TriggerAccounts)
	fmt.Fprintf(g.out, "Removed %s\n", c.ID)
	return nil
}

type syncCmd struct{}

func (c *syncCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.reconciler(ctx)
	if err != nil {
		return err
	}
	outcome, err := a.Reconciler.Sync(ctx)
	if err != nil {
		return err
	}
	return reportOutcome(ctx, g, a, outcome)
}

type resolveCmd struct {
	Choice string `arg:"" help:"local keeps this device's data, remote uses the cloud copy." enum:"local,remote"`
}

func (c *resolveCmd) Run(g *Globals) error {
	choice, err := reconcile.ParseChoice(c.Choice)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := g.reconciler(ctx)
	if err != nil {
		return err
	}

	// Conflicts live in memory, so detect it again in this process first.
	outcome, err := a.Reconciler.Sync(ctx)
	if err != nil {
		return err
	}
	if outcome != reconcile.ConflictPending {
		return reportOutcome(ctx, g, a, outcome)
	}
	outcome, err = a.Reconciler.ResolveConflict(ctx, choice)
	if err != nil {
		return err
	}
	return reportOutcome(ctx, g, a, outcome)
}

type connectCmd struct {
	Token     string        `required:"" help:"Access token for the cloud backend." env:"ARTHO_ACCESS_TOKEN"`
	ExpiresIn time.Duration `name:"expires-in" default:"1h" help:"Token lifetime."`
}

func (c *connectCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.reconciler(ctx)
	if err != nil {
		return err
	}
	outcome, err := a.Reconciler.Connect(ctx, c.Token, c.ExpiresIn)
	if err != nil {
		return err
	}
	return reportOutcome(ctx, g, a, outcome)
}

type disconnectCmd struct{}

func (c *disconnectCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.reconciler(ctx)
	if err != nil {
		return err
	}
	if err := a.Reconciler.Disconnect(ctx); err != nil {
		return err
	}
	fmt.Fprintln(g.out, "Disconnected. Local data is unchanged.")
	return nil
}

func reportOutcome(ctx context.Context, g *Globals, a *app.App, outcome reconcile.Outcome) error {
	switch outcome {
	case reconcile.PushedLocal:
		fmt.Fprintln(g.out, "Uploaded local data to the cloud.")
	case reconcile.PulledRemote:
		a.Tracker.Changed(ctx, jobs.TriggerSynced)
		fmt.Fprintf(g.out, "Downloaded %d transaction(s) from the cloud.\n", len(a.Tracker.Transactions()))
	case reconcile.NoChange:
		fmt.Fprintln(g.out, "Already up to date.")
	case reconcile.ConflictPending:
		c := a.Reconciler.Conflict()
		fmt.Fprintf(g.out, "Conflict: local data is newer than the cloud copy from %s (%d transactions).\n",
			domain.FormatTimestamp(c.LastUpdated), len(c.Transactions))
		fmt.Fprintln(g.out, "Run 'resolve local' or 'resolve remote'.")
	}
	return nil
}

type exportCmd struct {
	Out string `short:"o" help:"Output file (defaults to artho-backup-<date>.json)." type:"path"`
}

func (c *exportCmd) Run(g *Globals) error {
	a, err := g.open(context.Background())
	if err != nil {
		return err
	}
	path := c.Out
	if path == "" {
		path = backup.ExportFilename(time.Now())
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	txs := a.Tracker.Transactions()
	if err := backup.Export(f, txs); err != nil {
		return err
	}
	fmt.Fprintf(g.out, "Exported %d transaction(s) to %s\n", len(txs), filepath.Clean(path))
	return nil
}

type recoveryKeyCmd struct{}

func (c *recoveryKeyCmd) Run(g *Globals) error {
	a, err := g.open(context.Background())
	if err != nil {
		return err
	}
	key, err := backup.RecoveryKey(a.Tracker.Transactions())
	if err != nil {
		return err
	}
	fmt.Fprintln(g.out, key)
	return nil
}

type importCmd struct {
	File string `arg:"" optional:"" help:"Backup file written by export." type:"existingfile"`
	Key  string `help:"Recovery key instead of a file."`
	Yes  bool   `short:"y" help:"Do not ask for confirmation."`
}

func (c *importCmd) Run(g *Globals) error {
	var (
		txs []domain.Transaction
		err error
	)
	switch {
	case c.File != "":
		f, openErr := os.Open(c.File)
		if openErr != nil {
			return openErr
		}
		txs, err = backup.Import(f)
		f.Close()
	case c.Key != "":
		txs, err = backup.DecodeRecoveryKey(c.Key)
	default:
		return errors.New("give a backup file or --key")
	}
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	err = a.Tracker.Restore(ctx, txs, func(n int) bool {
		return g.confirm(c.Yes, fmt.Sprintf("Replace all local transactions with %d from the backup?", n))
	})
	if errors.Is(err, backup.ErrDeclined) {
		fmt.Fprintln(g.out, "Aborted")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(g.out, "Restored %d transaction(s)\n", len(txs))
	return nil
}

type bigQueryCmd struct {
	Project string `help:"GCP project (defaults to BIGQUERY_PROJECT)."`
	Dataset string `help:"Dataset (defaults to BIGQUERY_DATASET)."`
	Table   string `help:"Table (defaults to BIGQUERY_TABLE)."`
	Prune   bool   `help:"Delete rows whose transaction no longer exists locally."`
}

func (c *bigQueryCmd) Run(g *Globals) error {
	project := firstNonEmpty(c.Project, g.cfg.BigQueryProject)
	if project == "" {
		return errors.New("a project is required, pass --project or set BIGQUERY_PROJECT")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}

	exp, err := infraBQ.NewExporter(ctx, project,
		firstNonEmpty(c.Dataset, g.cfg.BigQueryDataset),
		firstNonEmpty(c.Table, g.cfg.BigQueryTable),
		g.logger())
	if err != nil {
		return err
	}
	defer exp.Close()

	if err := exp.EnsureTable(ctx); err != nil {
		return err
	}
	txs := a.Tracker.Transactions()
	n, err := exp.Export(ctx, txs)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.out, "Exported %d row(s)\n", n)

	if c.Prune {
		removed, err := exp.Prune(ctx, infraBQ.IDs(txs))
		if err != nil {
			return err
		}
		fmt.Fprintf(g.out, "Pruned %d row(s)\n", removed)
	}
	return nil
}

type notionCmd struct {
	Token    string `help:"Notion integration token (defaults to NOTION_TOKEN)."`
	Database string `help:"Notion database id (defaults to NOTION_TRANSACTIONS_DB)."`
	DryRun   bool   `name:"dry-run" help:"Report what would change without writing."`
}

func (c *notionCmd) Run(g *Globals) error {
	token := firstNonEmpty(c.Token, g.cfg.NotionToken)
	dbID := firstNonEmpty(c.Database, g.cfg.NotionTransactionsDB)
	if token == "" || dbID == "" {
		return errors.New("a Notion token and database id are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	ctx = logger.WithContext(ctx, g.logger())

	res, err := notionsync.Mirror(ctx, notionsync.NewNotionClient(token), dbID, a.Tracker.Transactions(), c.DryRun)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.out, "Created %d, archived %d, unchanged %d, failed %d\n", res.Created, res.Archived, res.Skipped, res.Failed)
	return nil
}

func printTransactions(w io.Writer, txs []domain.Transaction) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, tx := range txs {
		sign := "-"
		if tx.Type == domain.TypeIncome {
			sign = "+"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s%s\t%s\t%s\t%s\n",
			tx.ID, tx.Date.Local().Format("2006-01-02 15:04"), sign,
			money(decimal.NewFromFloat(tx.Amount)), tx.Category, tx.Source, tx.Note)
	}
	tw.Flush()
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("artho"),
		kong.Description("Artho personal finance tracker."),
		kong.UsageOnError(),
	)
	cli.Globals.cfg = cfg
	cli.Globals.out = os.Stdout
	cli.Globals.in = os.Stdin

	err = ctx.Run(&cli.Globals)
	cli.Globals.close()
	ctx.FatalIfErrorf(err)
}
