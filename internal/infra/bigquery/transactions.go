package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/artho/internal/domain"
)

// Currency is the single currency the ledger records.
const Currency = "BDT"

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED, partition column

	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC, positive
	Currency string   `bigquery:"currency"` // REQUIRED STRING

	Direction string `bigquery:"direction"` // REQUIRED income|expense
	Category  string `bigquery:"category"`  // REQUIRED
	Source    string `bigquery:"source"`    // REQUIRED account name

	Note     bigquery.NullString `bigquery:"note"`      // NULLABLE
	RawInput bigquery.NullString `bigquery:"raw_input"` // NULLABLE

	RecordedTS time.Time `bigquery:"recorded_ts"` // REQUIRED
	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
}

// NewTransactionRow maps a ledger record to its export row. The transaction
// date is the record's calendar day in loc.
func NewTransactionRow(tx domain.Transaction, loc *time.Location, exported time.Time) *TransactionRow {
	if loc == nil {
		loc = time.UTC
	}
	return &TransactionRow{
		TransactionID:   tx.ID,
		TransactionDate: civil.DateOf(tx.Date.In(loc)),
		Amount:          decimal.NewFromFloat(tx.Amount).Rat(),
		Currency:        Currency,
		Direction:       string(tx.Type),
		Category:        string(tx.Category),
		Source:          tx.Source,
		Note:            nullString(tx.Note),
		RawInput:        nullString(tx.RawInput),
		RecordedTS:      tx.Date.UTC(),
		ExportedTS:      exported.UTC(),
	}
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
