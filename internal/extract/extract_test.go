package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/artho/internal/domain"
	"github.com/dvloznov/artho/internal/gemini"
	"github.com/dvloznov/artho/internal/logger"
)

// MockGenerator is a mock implementation of gemini.Generator for testing.
type MockGenerator struct {
	GenerateJSONFunc func(ctx context.Context, req gemini.Request) (string, error)
	calls            []gemini.Request
}

func (m *MockGenerator) GenerateJSON(ctx context.Context, req gemini.Request) (string, error) {
	m.calls = append(m.calls, req)
	if m.GenerateJSONFunc != nil {
		return m.GenerateJSONFunc(ctx, req)
	}
	return "[]", nil
}

var accounts = []string{"BRAC BANK", "DBBL", "BKASH", "CASH"}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []Proposal
		wantErr bool
	}{
		{
			name: "array with two items",
			raw: `[{"amount":120,"category":"Food","type":"expense","source":"bkash","note":"Coffee","confidence":0.9},
			       {"amount":75000,"category":"Income","type":"income","source":"BRAC BANK","note":"Salary"}]`,
			want: []Proposal{
				{Amount: 120, Category: domain.CategoryFood, Type: domain.TypeExpense, Source: "BKASH", Note: "Coffee", Confidence: 0.9},
				{Amount: 75000, Category: domain.CategoryIncome, Type: domain.TypeIncome, Source: "BRAC BANK", Note: "Salary", Confidence: 1},
			},
		},
		{
			name: "single object",
			raw:  `{"amount":500,"category":"transport","type":"Expense","source":"","note":"Rickshaw"}`,
			want: []Proposal{
				{Amount: 500, Category: domain.CategoryTransport, Type: domain.TypeExpense, Source: "CASH", Note: "Rickshaw", Confidence: 1},
			},
		},
		{
			name: "unknown category and source coerced",
			raw:  `[{"amount":10,"category":"Gifts","type":"expense","source":"Nagad","note":"x"}]`,
			want: []Proposal{
				{Amount: 10, Category: domain.CategoryOthers, Type: domain.TypeExpense, Source: "CASH", Note: "x", Confidence: 1},
			},
		},
		{
			name: "invalid items dropped",
			raw: `[{"amount":0,"category":"Food","type":"expense","source":"CASH","note":"zero"},
			       {"amount":-5,"category":"Food","type":"expense","source":"CASH","note":"negative"},
			       {"category":"Food","type":"expense","source":"CASH","note":"missing"},
			       {"amount":5,"category":"Food","type":"transfer","source":"CASH","note":"bad type"},
			       {"amount":7,"category":"Food","type":"expense","source":"CASH","note":"ok","confidence":3}]`,
			want: []Proposal{
				{Amount: 7, Category: domain.CategoryFood, Type: domain.TypeExpense, Source: "CASH", Note: "ok", Confidence: 1},
			},
		},
		{name: "empty array", raw: `[]`, want: []Proposal{}},
		{name: "not json", raw: `I could not parse that`, wantErr: true},
		{name: "broken json", raw: `[{"amount":`, wantErr: true},
		{name: "wrong shape", raw: `"hello"`, wantErr: true},
		{name: "empty", raw: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw, accounts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultAccount(t *testing.T) {
	assert.Equal(t, "CASH", defaultAccount(accounts))
	assert.Equal(t, "WALLET", defaultAccount([]string{"WALLET", "BANK"}))
	assert.Equal(t, "CASH", defaultAccount(nil))
}

func TestExtract_Success(t *testing.T) {
	gen := &MockGenerator{
		GenerateJSONFunc: func(ctx context.Context, req gemini.Request) (string, error) {
			return `[{"amount":2500,"category":"Food","type":"expense","source":"BKASH","note":"Dinner"}]`, nil
		},
	}
	ex := NewGemini(gen, logger.Nop())

	got := ex.Extract(context.Background(), "dinner 2500 bkash", accounts)

	require.Len(t, got, 1)
	assert.Equal(t, 2500.0, got[0].Amount)
	require.Len(t, gen.calls, 1)
	assert.Equal(t, "dinner 2500 bkash", gen.calls[0].Prompt)
	assert.True(t, strings.Contains(gen.calls[0].System, "'BKASH'"), "prompt lists account names")
	assert.NotNil(t, gen.calls[0].Schema)
}

func TestExtract_FailuresYieldEmpty(t *testing.T) {
	tests := []struct {
		name string
		gen  *MockGenerator
	}{
		{"transport error", &MockGenerator{GenerateJSONFunc: func(context.Context, gemini.Request) (string, error) {
			return "", errors.New("connection reset")
		}}},
		{"rate limited", &MockGenerator{GenerateJSONFunc: func(context.Context, gemini.Request) (string, error) {
			return "", gemini.ErrRateLimited
		}}},
		{"bad document", &MockGenerator{GenerateJSONFunc: func(context.Context, gemini.Request) (string, error) {
			return "not json", nil
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewGemini(tt.gen, logger.Nop()).Extract(context.Background(), "coffee 120", accounts)
			assert.Empty(t, got)
		})
	}
}

func TestExtract_BlankInputSkipsModel(t *testing.T) {
	gen := &MockGenerator{}
	got := NewGemini(gen, logger.Nop()).Extract(context.Background(), "   ", accounts)
	assert.Empty(t, got)
	assert.Empty(t, gen.calls)
}

func TestExtract_NoGenerator(t *testing.T) {
	assert.Empty(t, NewGemini(nil, logger.Nop()).Extract(context.Background(), "coffee 120", accounts))
}

func TestResponseSchema(t *testing.T) {
	s := responseSchema(accounts)
	require.NotNil(t, s.Items)
	assert.Equal(t, accounts, s.Items.Properties["source"].Enum)
	assert.Contains(t, s.Items.Properties["category"].Enum, "Income")
	assert.ElementsMatch(t, []string{"amount", "category", "type", "note", "source"}, s.Items.Required)
}
