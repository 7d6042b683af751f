// Package gemini is the thin adapter to the Gemini API shared by extraction
// and insight generation. Callers get raw JSON text back and own parsing.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// DefaultModelName is used when no model is configured.
const DefaultModelName = "gemini-2.5-flash"

var (
	// ErrRateLimited marks quota and rate-limit rejections (HTTP 429).
	ErrRateLimited = errors.New("gemini: rate limited")
	// ErrEmptyResponse is returned when the model answers with no text.
	ErrEmptyResponse = errors.New("gemini: empty response")
)

// Request is one schema-constrained completion.
type Request struct {
	System string
	Prompt string
	Schema *genai.Schema
}

// Generator produces JSON text for a request.
type Generator interface {
	GenerateJSON(ctx context.Context, req Request) (string, error)
}

// Client is the Generator backed by the genai SDK.
type Client struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

// NewClient creates a Gemini API client. An empty model selects
// DefaultModelName.
func NewClient(ctx context.Context, apiKey, model string, log zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("NewClient: missing API key")
	}
	if model == "" {
		model = DefaultModelName
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewClient: create genai client: %w", err)
	}
	return &Client{client: c, model: model, log: log}, nil
}

// GenerateJSON asks the model for an application/json answer and returns it
// with Markdown fences removed.
func (c *Client) GenerateJSON(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   req.Schema,
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("GenerateJSON: generate content: %w", classify(err))
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("GenerateJSON: %w", ErrEmptyResponse)
	}
	c.log.Debug().Str("model", c.model).Int("response_bytes", len(text)).Msg("Model responded")
	return CleanJSON(text), nil
}

// classify wraps quota errors with ErrRateLimited, keeping the original.
func classify(err error) error {
	if IsRateLimit(err) {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return err
}

// IsRateLimit reports whether err is a 429 / RESOURCE_EXHAUSTED rejection.
func IsRateLimit(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED"
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code == http.StatusTooManyRequests || apiErrPtr.Status == "RESOURCE_EXHAUSTED"
	}
	return false
}
