package domain

import (
	"strings"
	"time"
)

// Category is one of the fixed spending/earning buckets a transaction falls into.
type Category string

const (
	CategoryFood          Category = "Food"
	CategoryTransport     Category = "Transport"
	CategoryBills         Category = "Bills"
	CategoryShopping      Category = "Shopping"
	CategoryEntertainment Category = "Entertainment"
	CategoryEducation     Category = "Education"
	CategoryHealth        Category = "Health"
	CategoryIncome        Category = "Income"
	CategoryOthers        Category = "Others"
)

var categories = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryBills,
	CategoryShopping,
	CategoryEntertainment,
	CategoryEducation,
	CategoryHealth,
	CategoryIncome,
	CategoryOthers,
}

// Categories returns the closed category set in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory matches s against the category set ignoring case and
// surrounding whitespace. Unknown values map to Others with ok=false.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range categories {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return CategoryOthers, false
}

// TxType tells whether money came in or went out.
type TxType string

const (
	TypeIncome  TxType = "income"
	TypeExpense TxType = "expense"
)

// ParseTxType accepts "income" or "expense" in any case.
func ParseTxType(s string) (TxType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(TypeIncome):
		return TypeIncome, true
	case string(TypeExpense):
		return TypeExpense, true
	}
	return "", false
}

// Transaction is one recorded income or expense. Records are never edited in
// place; they are created, deleted, or replaced wholesale during sync.
//
// The JSON shape matches the remote backup document so snapshots written by
// older clients decode unchanged.
type Transaction struct {
	ID       string    `json:"id"`
	Amount   float64   `json:"amount"` // positive magnitude, Type carries the sign
	Category Category  `json:"category"`
	Type     TxType    `json:"type"`
	Date     time.Time `json:"date"`   // creation time
	Source   string    `json:"source"` // account name
	Note     string    `json:"note"`
	RawInput string    `json:"rawInput"` // text the record was extracted from
}


// CloneTransactions returns a copy of txs that never aliases the input.
// A nil input yields an empty, non-nil slice so it encodes as [].
func CloneTransactions(txs []Transaction) []Transaction {
	out := make([]Transaction, len(txs))
	copy(out, txs)
	return out
}
