package domain

import "time"

type demoRow struct {
	id       string
	amount   float64
	category Category
	daysAgo  int
	txType   TxType
	source   string
	note     string
	raw      string
}

var demoRows = []demoRow{
	{"d1", 75000, CategoryIncome, 15, TypeIncome, "BRAC BANK", "Monthly Salary Received", "Salary 75000"},
	{"d2", 15000, CategoryBills, 14, TypeExpense, "BRAC BANK", "House Rent Payment", "Rent 15000"},
	{"d3", 500, CategoryTransport, 13, TypeExpense, "CASH", "Rickshaw fare for office", "Rickshaw 500"},
	{"d4", 2500, CategoryFood, 12, TypeExpense, "BKASH", "Dinner at Sultans Dine", "Sultans dine 2500"},
	{"d5", 1200, CategoryBills, 11, TypeExpense, "BKASH", "Internet Bill (AmberIT)", "Internet 1200"},
	{"d6", 3500, CategoryShopping, 10, TypeExpense, "DBBL", "New Shirt from Yellow", "Yellow shirt 3500"},
	{"d7", 450, CategoryFood, 9, TypeExpense, "CASH", "Evening Snacks & Tea", "Snacks 450"},
	{"d8", 5000, CategoryOthers, 8, TypeExpense, "BKASH", "Sent money to parents", "Parents 5000"},
	{"d9", 800, CategoryTransport, 7, TypeExpense, "DBBL", "Uber ride to Banani", "Uber 800"},
	{"d10", 1500, CategoryFood, 6, TypeExpense, "CASH", "Weekly Grocery Bazaar", "Bazaar 1500"},
	{"d11", 200, CategoryBills, 5, TypeExpense, "BKASH", "Mobile Recharge (Grameenphone)", "GP recharge 200"},
	{"d12", 12000, CategoryIncome, 4, TypeIncome, "BKASH", "Freelance Project Payment", "Freelance 12000"},
	{"d13", 3200, CategoryHealth, 3, TypeExpense, "DBBL", "Pharmacy Medicines", "Medicine 3200"},
	{"d14", 650, CategoryEntertainment, 2, TypeExpense, "CASH", "Cineplex Movie Ticket", "Movie 650"},
	{"d15", 120, CategoryFood, 1, TypeExpense, "CASH", "Coffee at street side", "Coffee 120"},
	{"d16", 4500, CategoryShopping, 0, TypeExpense, "BKASH", "Groceries from Shwapno", "Shwapno 4500"},
}

// DemoTransactions returns the sample ledger shown on first launch, dated
// backwards from now one record per day.
func DemoTransactions(now time.Time) []Transaction {
	out := make([]Transaction, 0, len(demoRows))
	for _, r := range demoRows {
		out = append(out, Transaction{
			ID:       r.id,
			Amount:   r.amount,
			Category: r.category,
			Type:     r.txType,
			Date:     now.Add(-time.Duration(r.daysAgo) * 24 * time.Hour).UTC(),
			Source:   r.source,
			Note:     r.note,
			RawInput: r.raw,
		})
	}
	return out
}
