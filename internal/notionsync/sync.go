// Package notionsync mirrors the ledger into a Notion database, one page
// per transaction keyed by the Transaction ID property.
package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/artho/internal/domain"
	"github.com/dvloznov/artho/internal/logger"
)

// Result counts what a mirror run did, or would do in a dry run.
type Result struct {
	Created  int `json:"created"`
	Archived int `json:"archived"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Mirror makes the database reflect txs. It archives pages whose
// transaction is no longer in the ledger and pages without an id, then
// creates pages for transactions not yet mirrored. Records are immutable so
// existing pages are left as they are. Single page failures are logged and
// counted; only a failing database query aborts the run.
func Mirror(ctx context.Context, svc NotionService, databaseID string, txs []domain.Transaction, dryRun bool) (Result, error) {
	log := logger.FromContext(ctx)
	var res Result

	log.Info().
		Int("transaction_count", len(txs)).
		Bool("dry_run", dryRun).
		Msg("Starting transaction mirror to Notion")

	pages, err := queryAllPages(ctx, svc, databaseID)
	if err != nil {
		return res, fmt.Errorf("Mirror: %w", err)
	}
	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	valid := make(map[string]bool, len(txs))
	for _, tx := range txs {
		valid[tx.ID] = true
	}

	mirrored := make(map[string]bool, len(pages))
	for _, page := range pages {
		txID := transactionID(page)
		if txID != "" && valid[txID] && !mirrored[txID] {
			mirrored[txID] = true
			continue
		}

		// Stale, duplicate or id-less page.
		pageLog := log.With().Str("transaction_id", txID).Str("page_id", string(page.ID)).Logger()
		if dryRun {
			pageLog.Info().Msg("[DRY RUN] Would archive stale Notion page")
			res.Archived++
			continue
		}
		if err := svc.ArchivePage(ctx, string(page.ID)); err != nil {
			pageLog.Warn().Err(err).Msg("Failed to archive stale Notion page")
			res.Failed++
			continue
		}
		pageLog.Info().Msg("Archived stale Notion page")
		res.Archived++
	}

	for _, tx := range txs {
		if mirrored[tx.ID] {
			res.Skipped++
			continue
		}
		if dryRun {
			log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would create Notion page")
			res.Created++
			continue
		}

		page, err := svc.CreatePage(ctx, databaseID, TransactionProperties(tx))
		if err != nil {
			log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to create Notion page")
			res.Failed++
			continue
		}
		mirrored[tx.ID] = true
		log.Debug().Str("transaction_id", tx.ID).Str("page_id", string(page.ID)).Msg("Created Notion page")
		res.Created++
	}

	log.Info().
		Int("created", res.Created).
		Int("archived", res.Archived).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Transaction mirror completed")
	return res, nil
}

// queryAllPages returns every page of a database, following cursors.
func queryAllPages(ctx context.Context, svc NotionService, databaseID string) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := svc.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllPages: %w", err)
		}
		all = append(all, resp.Results...)

		if !resp.HasMore {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}
