// Package bigquery exports the ledger to a BigQuery table for analysis
// outside the app.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"

	"github.com/dvloznov/artho/internal/domain"
)

const batchSize = 500

// Exporter streams ledger records into one table.
type Exporter struct {
	client  *bigquery.Client
	dataset string
	table   string
	loc     *time.Location
	now     func() time.Time
	log     zerolog.Logger
}

// NewExporter connects to BigQuery in projectID.
func NewExporter(ctx context.Context, projectID, dataset, table string, log zerolog.Logger) (*Exporter, error) {
	if projectID == "" {
		return nil, fmt.Errorf("NewExporter: project id is required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewExporter: creating client: %w", err)
	}
	return &Exporter{
		client:  client,
		dataset: dataset,
		table:   table,
		loc:     time.Local,
		now:     time.Now,
		log:     log,
	}, nil
}

// Close closes the BigQuery client connection.
func (e *Exporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

func (e *Exporter) tableRef() *bigquery.Table {
	return e.client.Dataset(e.dataset).Table(e.table)
}

// EnsureTable creates the table, day-partitioned on transaction_date, when
// it does not exist yet.
func (e *Exporter) EnsureTable(ctx context.Context) error {
	schema, err := bigquery.InferSchema(TransactionRow{})
	if err != nil {
		return fmt.Errorf("EnsureTable: inferring schema: %w", err)
	}
	meta := &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "transaction_date",
		},
	}
	err = e.tableRef().Create(ctx, meta)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		return nil
	}
	if err != nil {
		return fmt.Errorf("EnsureTable: creating %s.%s: %w", e.dataset, e.table, err)
	}
	e.log.Info().Str("dataset", e.dataset).Str("table", e.table).Msg("Created export table")
	return nil
}

// Export streams txs into the table and returns the number of rows sent.
// Rows carry the transaction id as insert id so a repeated export within
// the streaming dedupe window does not duplicate them.
func (e *Exporter) Export(ctx context.Context, txs []domain.Transaction) (int, error) {
	savers := Savers(txs, e.loc, e.now())
	if len(savers) == 0 {
		return 0, nil
	}

	inserter := e.tableRef().Inserter()
	for start := 0; start < len(savers); start += batchSize {
		end := min(start+batchSize, len(savers))
		if err := inserter.Put(ctx, savers[start:end]); err != nil {
			return start, fmt.Errorf("Export: inserting rows %d-%d: %w", start, end, err)
		}
	}
	e.log.Info().Int("rows", len(savers)).Str("table", e.table).Msg("Exported transactions to BigQuery")
	return len(savers), nil
}

// Savers builds one StructSaver per record.
func Savers(txs []domain.Transaction, loc *time.Location, exported time.Time) []*bigquery.StructSaver {
	out := make([]*bigquery.StructSaver, 0, len(txs))
	for _, tx := range txs {
		out = append(out, &bigquery.StructSaver{
			Struct:   NewTransactionRow(tx, loc, exported),
			InsertID: tx.ID,
		})
	}
	return out
}

// Prune deletes exported rows whose id is not in keep, so deletions in the
// ledger reach the table. Rows still in the streaming buffer cannot be
// deleted yet; BigQuery reports that as an error and a later run catches up.
func (e *Exporter) Prune(ctx context.Context, keep []string) (int64, error) {
	q := e.client.Query(fmt.Sprintf(`
		DELETE FROM %s.%s
		WHERE transaction_id NOT IN UNNEST(@keep)
	`, "`"+e.dataset+"`", "`"+e.table+"`"))
	if keep == nil {
		keep = []string{}
	}
	q.Parameters = []bigquery.QueryParameter{
		{Name: "keep", Value: keep},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("Prune: run query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("Prune: wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("Prune: job failed: %w", err)
	}

	var deleted int64
	if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		deleted = qs.NumDMLAffectedRows
	}
	e.log.Info().Int64("deleted", deleted).Msg("Pruned exported transactions")
	return deleted, nil
}

// IDs returns the ids of txs, the keep list for Prune.
func IDs(txs []domain.Transaction) []string {
	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	return ids
}
