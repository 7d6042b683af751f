// Package insight produces the two advisory messages shown on the dashboard.
// The model is asked first; on any failure a deterministic local pair is
// computed instead.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/dvloznov/artho/internal/domain"
	"github.com/dvloznov/artho/internal/gemini"
)

// HistoryLimit is how many of the most recent records are sent to the model.
const HistoryLimit = 30

const systemInstruction = "You are 'Artho Advisor'. You are calm and brilliant. You focus on wealth growth. " +
	"Provide exactly 2 distinct insights in Bengali (Bangla) language in JSON format."

// Advisor generates insights.
type Advisor struct {
	gen gemini.Generator
	log zerolog.Logger
}

// NewAdvisor creates an Advisor. A nil generator always uses the fallback.
func NewAdvisor(gen gemini.Generator, log zerolog.Logger) *Advisor {
	return &Advisor{gen: gen, log: log}
}

// Insights returns exactly two insights for a non-empty history, and none
// for an empty one. The model is not called for an empty history.
func (a *Advisor) Insights(ctx context.Context, txs []domain.Transaction) []domain.SpendingInsight {
	if len(txs) == 0 {
		return []domain.SpendingInsight{}
	}
	if a.gen == nil {
		return Fallback(txs)
	}

	raw, err := a.gen.GenerateJSON(ctx, gemini.Request{
		System: systemInstruction,
		Prompt: prompt(txs),
		Schema: responseSchema(),
	})
	if err != nil {
		ev := a.log.Warn().Err(err)
		if gemini.IsRateLimit(err) {
			ev = a.log.Info().Err(err)
		}
		ev.Bool("rate_limited", gemini.IsRateLimit(err)).Msg("Insight call failed, using local fallback")
		return Fallback(txs)
	}

	out, err := parse(raw)
	if err != nil {
		a.log.Warn().Err(err).Str("raw_response", raw).Msg("Insight response rejected, using local fallback")
		return Fallback(txs)
	}
	return out
}

// History formats the most recent records one per line.
func History(txs []domain.Transaction) string {
	if len(txs) > HistoryLimit {
		txs = txs[len(txs)-HistoryLimit:]
	}
	lines := make([]string, 0, len(txs))
	for _, t := range txs {
		lines = append(lines, fmt.Sprintf("%s: %s of %s from %s for %s (%s)",
			domain.FormatTimestamp(t.Date), t.Type, formatAmount(t.Amount), t.Source, t.Category, t.Note))
	}
	return strings.Join(lines, "\n")
}

func prompt(txs []domain.Transaction) string {
	return "Analyze these transactions as a World-Class Financial Advisor.\n" +
		"You MUST return exactly TWO insights written in Bengali (Bangla) language:\n" +
		"1. STATUS ANALYSIS: A deep look at their current balance and trends in Bengali.\n" +
		"2. STRATEGIC NUDGE: Concrete advice in Bengali.\n\n" +
		"Transactions:\n" + History(txs)
}

func responseSchema() *genai.Schema {
	two := int64(2)
	return &genai.Schema{
		Type:     genai.TypeArray,
		MinItems: &two,
		MaxItems: &two,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title":   {Type: genai.TypeString, Description: "Clear Section Title in Bengali."},
				"message": {Type: genai.TypeString, Description: "The detailed analysis or advice in Bengali."},
				"type": {
					Type:        genai.TypeString,
					Description: "warning, info or positive",
					Enum:        []string{string(domain.InsightWarning), string(domain.InsightInfo), string(domain.InsightPositive)},
				},
			},
			Required: []string{"title", "message", "type"},
		},
	}
}

// parse accepts exactly two insights with a title and a message. Unknown
// types are reported as info.
func parse(raw string) ([]domain.SpendingInsight, error) {
	var items []domain.SpendingInsight
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("parse: decoding insights: %w", err)
	}
	if len(items) != 2 {
		return nil, fmt.Errorf("parse: expected 2 insights, got %d", len(items))
	}
	for i := range items {
		items[i].Title = strings.TrimSpace(items[i].Title)
		items[i].Message = strings.TrimSpace(items[i].Message)
		if items[i].Title == "" || items[i].Message == "" {
			return nil, fmt.Errorf("parse: insight %d missing title or message", i)
		}
		switch items[i].Type {
		case domain.InsightWarning, domain.InsightInfo, domain.InsightPositive:
		default:
			items[i].Type = domain.InsightInfo
		}
	}
	return items, nil
}
