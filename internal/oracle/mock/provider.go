// Package mock provides a canned oracle provider for testing and development.
package mock

import (
	"context"
	"log/slog"
	"time"

	"github.com/rooftophq/rooftop/internal/oracle"
)

// Provider is a mock oracle for testing and development. It returns a fixed
// strict-JSON verification payload unless a custom response or error is set.
type Provider struct {
	logger *slog.Logger

	// Configurable behavior for testing
	GenerateResponse string
	GenerateError    error

	// GenerateFunc, when set, takes precedence over the canned fields.
	// Useful for per-call scripting in orchestrator tests.
	GenerateFunc func(ctx context.Context, params oracle.GenerateParams) (*oracle.GenerateResult, error)

	// Call tracking for testing
	GenerateCalls int
}

// New creates a new mock oracle provider.
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// defaultResponse mirrors the shape the real oracle is instructed to return.
const defaultResponse = `{
  "sample_id": "",
  "qc_status": "VERIFIABLE",
  "has_solar": true,
  "confidence": 0.92,
  "panel_count_est": 12,
  "capacity_kw_est": 5,
  "pv_area_sqm_est": 48,
  "panel_type_est": "Mono-Si",
  "qc_notes": ["Mock: verified successfully"],
  "image_metadata": {"source": "Mock AI Verification", "capture_date": ""}
}`

// Generate returns the configured or canned response.
func (p *Provider) Generate(ctx context.Context, params oracle.GenerateParams) (*oracle.GenerateResult, error) {
	p.GenerateCalls++

	if p.GenerateFunc != nil {
		return p.GenerateFunc(ctx, params)
	}
	if p.GenerateError != nil {
		return nil, p.GenerateError
	}

	text := p.GenerateResponse
	if text == "" {
		text = defaultResponse
	}

	return &oracle.GenerateResult{
		Text: text,
		Usage: oracle.UsageInfo{
			Model:        "mock-oracle-v1",
			InputTokens:  1250,
			OutputTokens: 180,
			Duration:     250 * time.Millisecond,
		},
	}, nil
}

// Reset clears call counters and custom responses for testing.
func (p *Provider) Reset() {
	p.GenerateCalls = 0
	p.GenerateResponse = ""
	p.GenerateError = nil
	p.GenerateFunc = nil
}
