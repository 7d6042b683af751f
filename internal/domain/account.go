package domain

// Account is a user-managed money source. Transactions reference it by Name.
type Account struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// DefaultAccountName is used when the extractor cannot tell where money moved.
const DefaultAccountName = "CASH"

// DefaultAccounts is the account list a fresh install starts with.
func DefaultAccounts() []Account {
	return []Account{
		{ID: "1", Name: "BRAC BANK", Icon: "🏦", Color: "#005DAA"},
		{ID: "2", Name: "DBBL", Icon: "💳", Color: "#004A2F"},
		{ID: "3", Name: "BKASH", Icon: "📱", Color: "#D12053"},
		{ID: "4", Name: DefaultAccountName, Icon: "💵", Color: "#059669"},
	}
}

// AccountNames lists the names of accounts in order.
func AccountNames(accounts []Account) []string {
	names := make([]string, 0, len(accounts))
	for _, a := range accounts {
		names = append(names, a.Name)
	}
	return names
}

// CloneAccounts returns a copy of accounts that never aliases the input.
func CloneAccounts(accounts []Account) []Account {
	out := make([]Account, len(accounts))
	copy(out, accounts)
	return out
}
