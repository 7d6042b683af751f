package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/dvloznov/artho/internal/domain"
)

// rawProposal mirrors the model output loosely so bad fields can be
// rejected item by item instead of failing the whole document.
type rawProposal struct {
	Amount     *float64 `json:"amount"`
	Category   string   `json:"category"`
	Type       string   `json:"type"`
	Source     string   `json:"source"`
	Note       string   `json:"note"`
	Confidence *float64 `json:"confidence"`
}

// Parse validates a model answer. It accepts a JSON array of proposals or a
// single proposal object. Items with a non-positive amount or an unknown
// type are dropped; unknown categories become Others and unknown sources the
// default account.
func Parse(raw string, accounts []string) ([]Proposal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("Parse: empty document")
	}

	var items []rawProposal
	switch raw[0] {
	case '[':
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fmt.Errorf("Parse: decoding array: %w", err)
		}
	case '{':
		var one rawProposal
		if err := json.Unmarshal([]byte(raw), &one); err != nil {
			return nil, fmt.Errorf("Parse: decoding object: %w", err)
		}
		items = []rawProposal{one}
	default:
		return nil, fmt.Errorf("Parse: expected JSON array or object")
	}

	out := make([]Proposal, 0, len(items))
	for _, it := range items {
		p, ok := validate(it, accounts)
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func validate(it rawProposal, accounts []string) (Proposal, bool) {
	if it.Amount == nil || *it.Amount <= 0 || math.IsNaN(*it.Amount) || math.IsInf(*it.Amount, 0) {
		return Proposal{}, false
	}
	typ, ok := domain.ParseTxType(it.Type)
	if !ok {
		return Proposal{}, false
	}
	cat, _ := domain.ParseCategory(it.Category)

	confidence := 1.0
	if it.Confidence != nil {
		confidence = math.Max(0, math.Min(1, *it.Confidence))
	}

	return Proposal{
		Amount:     *it.Amount,
		Category:   cat,
		Type:       typ,
		Source:     matchAccount(it.Source, accounts),
		Note:       strings.TrimSpace(it.Note),
		Confidence: confidence,
	}, true
}

// matchAccount maps a model-supplied source onto an account name, ignoring
// case and surrounding whitespace.
func matchAccount(source string, accounts []string) string {
	source = strings.TrimSpace(source)
	for _, name := range accounts {
		if strings.EqualFold(name, source) {
			return name
		}
	}
	return defaultAccount(accounts)
}

// defaultAccount is CASH when present, else the first account.
func defaultAccount(accounts []string) string {
	for _, name := range accounts {
		if strings.EqualFold(name, domain.DefaultAccountName) {
			return name
		}
	}
	if len(accounts) > 0 {
		return accounts[0]
	}
	return domain.DefaultAccountName
}
