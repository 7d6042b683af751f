// Package aggregate derives totals, per-account balances and per-category
// expense sums from a transaction list. Sums are exact decimals so the
// identities inbound-outbound=net and sum(balances)=net hold for any input.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/artho/internal/domain"
)

// Summary holds the inbound/outbound/net totals.
type Summary struct {
	Inbound  decimal.Decimal
	Outbound decimal.Decimal
	Net      decimal.Decimal
}

// CategoryTotal is the expense sum of one category.
type CategoryTotal struct {
	Category domain.Category
	Total    decimal.Decimal
}

// Report bundles everything the dashboard shows.
type Report struct {
	Summary    Summary
	Balances   map[string]decimal.Decimal
	Categories []CategoryTotal
}

func amount(tx domain.Transaction) decimal.Decimal {
	return decimal.NewFromFloat(tx.Amount)
}

// Totals sums income and expense amounts.
func Totals(txs []domain.Transaction) Summary {
	in, out := decimal.Zero, decimal.Zero
	for _, tx := range txs {
		switch tx.Type {
		case domain.TypeIncome:
			in = in.Add(amount(tx))
		case domain.TypeExpense:
			out = out.Add(amount(tx))
		}
	}
	return Summary{Inbound: in, Outbound: out, Net: in.Sub(out)}
}

// Balances returns the running balance per source account. Every account in
// accounts appears, starting at zero. Sources outside the list still
// accumulate under their own name.
func Balances(txs []domain.Transaction, accounts []domain.Account) map[string]decimal.Decimal {
	balances := make(map[string]decimal.Decimal, len(accounts))
	for _, a := range accounts {
		balances[a.Name] = decimal.Zero
	}
	for _, tx := range txs {
		cur := balances[tx.Source]
		switch tx.Type {
		case domain.TypeIncome:
			balances[tx.Source] = cur.Add(amount(tx))
		case domain.TypeExpense:
			balances[tx.Source] = cur.Sub(amount(tx))
		}
	}
	return balances
}

// CategoryTotals sums expenses per category, largest first. Ties are broken
// by category name so the order is deterministic.
func CategoryTotals(txs []domain.Transaction) []CategoryTotal {
	sums := make(map[domain.Category]decimal.Decimal)
	for _, tx := range txs {
		if tx.Type != domain.TypeExpense {
			continue
		}
		sums[tx.Category] = sums[tx.Category].Add(amount(tx))
	}

	out := make([]CategoryTotal, 0, len(sums))
	for c, total := range sums {
		out = append(out, CategoryTotal{Category: c, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if cmp := out[i].Total.Cmp(out[j].Total); cmp != 0 {
			return cmp > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Summarize computes the full report in one pass over the inputs.
func Summarize(txs []domain.Transaction, accounts []domain.Account) Report {
	return Report{
		Summary:    Totals(txs),
		Balances:   Balances(txs, accounts),
		Categories: CategoryTotals(txs),
	}
}

// Share returns the category's fraction of total expenses as a percentage
// rounded to one decimal. Zero when there are no expenses.
func (r Report) Share(c domain.Category) decimal.Decimal {
	if r.Summary.Outbound.IsZero() {
		return decimal.Zero
	}
	for _, ct := range r.Categories {
		if ct.Category == c {
			return ct.Total.Mul(decimal.NewFromInt(100)).Div(r.Summary.Outbound).Round(1)
		}
	}
	return decimal.Zero
}

// Top returns the highest expense category, if any.
func (r Report) Top() (CategoryTotal, bool) {
	if len(r.Categories) == 0 {
		return CategoryTotal{}, false
	}
	return r.Categories[0], true
}
