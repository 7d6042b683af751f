package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/dvloznov/artho/internal/domain"
	"github.com/dvloznov/artho/internal/gemini"
	"github.com/dvloznov/artho/internal/logger"
)

// MockGenerator is a mock implementation of gemini.Generator for testing.
type MockGenerator struct {
	GenerateJSONFunc func(ctx context.Context, req gemini.Request) (string, error)
	calls            int
	lastPrompt       string
}

func (m *MockGenerator) GenerateJSON(ctx context.Context, req gemini.Request) (string, error) {
	m.calls++
	m.lastPrompt = req.Prompt
	if m.GenerateJSONFunc != nil {
		return m.GenerateJSONFunc(ctx, req)
	}
	return "", errors.New("not configured")
}

func tx(typ domain.TxType, cat domain.Category, amount float64) domain.Transaction {
	return domain.Transaction{
		ID:       fmt.Sprintf("%s-%v", cat, amount),
		Amount:   amount,
		Category: cat,
		Type:     typ,
		Date:     time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC),
		Source:   "CASH",
		Note:     "note",
	}
}

func TestInsights_EmptyHistorySkipsModel(t *testing.T) {
	gen := &MockGenerator{}
	got := NewAdvisor(gen, logger.Nop()).Insights(context.Background(), nil)

	assert.Empty(t, got)
	assert.NotNil(t, got)
	assert.Equal(t, 0, gen.calls)
}

func TestInsights_ModelAnswer(t *testing.T) {
	gen := &MockGenerator{GenerateJSONFunc: func(context.Context, gemini.Request) (string, error) {
		return `[{"title":"অবস্থা","message":"ভালো","type":"positive"},{"title":"পরামর্শ","message":"সঞ্চয় করুন","type":"nudge"}]`, nil
	}}

	got := NewAdvisor(gen, logger.Nop()).Insights(context.Background(), []domain.Transaction{tx(domain.TypeIncome, domain.CategoryIncome, 100)})

	require.Len(t, got, 2)
	assert.Equal(t, domain.InsightPositive, got[0].Type)
	assert.Equal(t, domain.InsightInfo, got[1].Type, "unknown type becomes info")
	assert.Equal(t, 1, gen.calls)
}

func TestInsights_RateLimitFallsBack(t *testing.T) {
	gen := &MockGenerator{GenerateJSONFunc: func(context.Context, gemini.Request) (string, error) {
		return "", fmt.Errorf("GenerateJSON: %w", gemini.ErrRateLimited)
	}}
	txs := []domain.Transaction{
		tx(domain.TypeIncome, domain.CategoryIncome, 50000),
		tx(domain.TypeExpense, domain.CategoryBills, 45000),
	}

	got := NewAdvisor(gen, logger.Nop()).Insights(context.Background(), txs)

	require.Len(t, got, 2)
	assert.Equal(t, domain.InsightWarning, got[0].Type)
	assert.Equal(t, domain.InsightInfo, got[1].Type)
	assert.Contains(t, got[1].Title, "Bills")
}

func TestInsights_APIError429FallsBack(t *testing.T) {
	gen := &MockGenerator{GenerateJSONFunc: func(context.Context, gemini.Request) (string, error) {
		return "", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}
	}}
	got := NewAdvisor(gen, logger.Nop()).Insights(context.Background(), []domain.Transaction{tx(domain.TypeIncome, domain.CategoryIncome, 10)})
	require.Len(t, got, 2)
	assert.Equal(t, domain.InsightPositive, got[0].Type)
}

func TestInsights_BadShapeFallsBack(t *testing.T) {
	answers := []string{
		`not json`,
		`[{"title":"only one","message":"m","type":"info"}]`,
		`[{"title":"a","message":"b","type":"info"},{"title":"","message":"x","type":"info"}]`,
		`{"title":"a","message":"b","type":"info"}`,
	}
	for _, answer := range answers {
		answer := answer
		gen := &MockGenerator{GenerateJSONFunc: func(context.Context, gemini.Request) (string, error) { return answer, nil }}
		got := NewAdvisor(gen, logger.Nop()).Insights(context.Background(), []domain.Transaction{tx(domain.TypeExpense, domain.CategoryFood, 10)})
		require.Len(t, got, 2, answer)
		assert.Equal(t, domain.InsightWarning, got[0].Type, answer)
	}
}

func TestInsights_NilGenerator(t *testing.T) {
	got := NewAdvisor(nil, logger.Nop()).Insights(context.Background(), []domain.Transaction{tx(domain.TypeIncome, domain.CategoryIncome, 10)})
	assert.Len(t, got, 2)
}

func TestFallback_Health(t *testing.T) {
	tests := []struct {
		name string
		txs  []domain.Transaction
		want domain.InsightType
	}{
		{"negative net", []domain.Transaction{tx(domain.TypeIncome, domain.CategoryIncome, 100), tx(domain.TypeExpense, domain.CategoryFood, 200)}, domain.InsightWarning},
		{"over eighty percent", []domain.Transaction{tx(domain.TypeIncome, domain.CategoryIncome, 50000), tx(domain.TypeExpense, domain.CategoryFood, 45000)}, domain.InsightWarning},
		{"exactly eighty percent", []domain.Transaction{tx(domain.TypeIncome, domain.CategoryIncome, 1000), tx(domain.TypeExpense, domain.CategoryFood, 800)}, domain.InsightPositive},
		{"healthy", []domain.Transaction{tx(domain.TypeIncome, domain.CategoryIncome, 1000), tx(domain.TypeExpense, domain.CategoryFood, 100)}, domain.InsightPositive},
		{"income only", []domain.Transaction{tx(domain.TypeIncome, domain.CategoryIncome, 1000)}, domain.InsightPositive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fallback(tt.txs)
			require.Len(t, got, 2)
			assert.Equal(t, tt.want, got[0].Type, got[0].Message)
		})
	}
}

func TestFallback_TopCategory(t *testing.T) {
	got := Fallback([]domain.Transaction{
		tx(domain.TypeExpense, domain.CategoryFood, 300),
		tx(domain.TypeExpense, domain.CategoryTransport, 100),
	})
	assert.Equal(t, "Top spending: Food", got[1].Title)
	assert.Contains(t, got[1].Message, "75")

	none := Fallback([]domain.Transaction{tx(domain.TypeIncome, domain.CategoryIncome, 10)})
	assert.Equal(t, domain.InsightInfo, none[1].Type)
	assert.Contains(t, none[1].Message, "savings")
}

func TestHistory_LastThirty(t *testing.T) {
	txs := make([]domain.Transaction, 0, 40)
	for i := 0; i < 40; i++ {
		txs = append(txs, tx(domain.TypeExpense, domain.CategoryFood, float64(i+1)))
	}

	lines := strings.Split(History(txs), "\n")
	require.Len(t, lines, HistoryLimit)
	assert.Equal(t, "2024-01-10T10:00:00.000Z: expense of 11 from CASH for Food (note)", lines[0])
	assert.True(t, strings.HasPrefix(lines[29], "2024-01-10T10:00:00.000Z: expense of 40 "))
}
