// Package filter selects transactions by category, source account and a
// relative time window. Everything here is pure.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/artho/internal/domain"
)

// All disables the category or source predicate.
const All = "All"

// Period is a relative time window anchored at "now".
type Period string

const (
	PeriodAll   Period = "All"
	PeriodToday Period = "Today"
	PeriodWeek  Period = "Week"
	PeriodMonth Period = "Month"
)

// Criteria combines the three independent predicates. Empty strings are
// treated as All.
type Criteria struct {
	Category string
	Source   string
	Period   Period
}

// Everything matches every transaction.
var Everything = Criteria{Category: All, Source: All, Period: PeriodAll}

// ParseCriteria validates raw filter values from the API or CLI.
func ParseCriteria(category, source, period string) (Criteria, error) {
	c := Everything

	if category = strings.TrimSpace(category); category != "" && !strings.EqualFold(category, All) {
		cat, ok := domain.ParseCategory(category)
		if !ok {
			return Criteria{}, fmt.Errorf("ParseCriteria: unknown category %q", category)
		}
		c.Category = string(cat)
	}

	if source = strings.TrimSpace(source); source != "" && !strings.EqualFold(source, All) {
		c.Source = source
	}

	switch p := strings.ToLower(strings.TrimSpace(period)); p {
	case "", "all":
	case "today":
		c.Period = PeriodToday
	case "week":
		c.Period = PeriodWeek
	case "month":
		c.Period = PeriodMonth
	default:
		return Criteria{}, fmt.Errorf("ParseCriteria: unknown period %q", period)
	}
	return c, nil
}

// Apply returns the transactions matching all predicates, in input order.
// Calendar comparisons use now's location.
func Apply(txs []domain.Transaction, c Criteria, now time.Time) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if Match(tx, c, now) {
			out = append(out, tx)
		}
	}
	return out
}

// Match reports whether tx satisfies c.
func Match(tx domain.Transaction, c Criteria, now time.Time) bool {
	if c.Category != "" && c.Category != All && string(tx.Category) != c.Category {
		return false
	}
	if c.Source != "" && c.Source != All && tx.Source != c.Source {
		return false
	}
	return inPeriod(tx.Date, c.Period, now)
}

func inPeriod(date time.Time, p Period, now time.Time) bool {
	d := date.In(now.Location())
	switch p {
	case PeriodToday:
		y1, m1, d1 := d.Date()
		y2, m2, d2 := now.Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	case PeriodWeek:
		return !d.Before(now.Add(-7 * 24 * time.Hour))
	case PeriodMonth:
		return d.Year() == now.Year() && d.Month() == now.Month()
	}
	return true
}
