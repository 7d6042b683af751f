// Package extract turns free-form text into transaction proposals using the
// model. It never fails: an empty result means the input was not understood.
package extract

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/artho/internal/domain"
	"github.com/dvloznov/artho/internal/gemini"
)

// Proposal is one structured transaction suggested by the model.
type Proposal struct {
	Amount     float64         `json:"amount"`
	Category   domain.Category `json:"category"`
	Type       domain.TxType   `json:"type"`
	Source     string          `json:"source"`
	Note       string          `json:"note"`
	Confidence float64         `json:"confidence"`
}

// Extractor converts text into zero or more proposals.
type Extractor interface {
	Extract(ctx context.Context, text string, accounts []string) []Proposal
}

// Gemini is the Extractor backed by a gemini.Generator.
type Gemini struct {
	gen gemini.Generator
	log zerolog.Logger
}

// NewGemini creates an extractor. A nil generator yields an extractor that
// understands nothing.
func NewGemini(gen gemini.Generator, log zerolog.Logger) *Gemini {
	return &Gemini{gen: gen, log: log}
}

// Extract sends text to the model and validates its answer.
func (g *Gemini) Extract(ctx context.Context, text string, accounts []string) []Proposal {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if g.gen == nil {
		g.log.Warn().Msg("No model configured, cannot extract transactions")
		return nil
	}

	raw, err := g.gen.GenerateJSON(ctx, gemini.Request{
		System: systemPrompt(accounts),
		Prompt: text,
		Schema: responseSchema(accounts),
	})
	if err != nil {
		g.log.Warn().Err(err).Bool("rate_limited", gemini.IsRateLimit(err)).Msg("Extraction call failed")
		return nil
	}

	proposals, err := Parse(raw, accounts)
	if err != nil {
		g.log.Warn().Err(err).Str("raw_response", raw).Msg("Extraction response rejected")
		return nil
	}
	g.log.Debug().Int("proposals", len(proposals)).Msg("Extracted transactions")
	return proposals
}
