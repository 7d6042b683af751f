package insight

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/artho/internal/aggregate"
	"github.com/dvloznov/artho/internal/domain"
)

// spendingRatio is the outbound/inbound share above which spending is flagged.
var spendingRatio = decimal.RequireFromString("0.8")

// Fallback computes the local insight pair: a health message and a
// top-category message.
func Fallback(txs []domain.Transaction) []domain.SpendingInsight {
	report := aggregate.Summarize(txs, nil)
	return []domain.SpendingInsight{health(report.Summary), topCategory(report)}
}

func health(s aggregate.Summary) domain.SpendingInsight {
	switch {
	case s.Net.IsNegative():
		return domain.SpendingInsight{
			Title:   "Spending exceeds income",
			Message: fmt.Sprintf("You have spent %s more than you earned. Review your expenses to get back on track.", money(s.Net.Abs())),
			Type:    domain.InsightWarning,
		}
	case s.Inbound.IsPositive() && s.Outbound.GreaterThan(s.Inbound.Mul(spendingRatio)):
		pct := s.Outbound.Mul(decimal.NewFromInt(100)).Div(s.Inbound).Round(0)
		return domain.SpendingInsight{
			Title:   "High spending ratio",
			Message: fmt.Sprintf("You have spent %s%% of your income. Your balance is %s; try to keep spending under 80%%.", pct.String(), money(s.Net)),
			Type:    domain.InsightWarning,
		}
	}
	return domain.SpendingInsight{
		Title:   "Healthy balance",
		Message: fmt.Sprintf("Your net balance is %s. Keep it up.", money(s.Net)),
		Type:    domain.InsightPositive,
	}
}

func topCategory(r aggregate.Report) domain.SpendingInsight {
	top, ok := r.Top()
	if !ok {
		return domain.SpendingInsight{
			Title:   "Start a savings habit",
			Message: "No expenses recorded yet. Set aside a fixed part of every income as savings.",
			Type:    domain.InsightInfo,
		}
	}
	return domain.SpendingInsight{
		Title: fmt.Sprintf("Top spending: %s", top.Category),
		Message: fmt.Sprintf("%s is your largest expense at %s (%s%% of spending).",
			top.Category, money(top.Total), r.Share(top.Category).String()),
		Type: domain.InsightInfo,
	}
}

func money(d decimal.Decimal) string {
	return "৳" + d.StringFixed(2)
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
