// Package oracle defines the boundary to the external generative-AI
// inference service. The oracle is treated as untrusted and unreliable:
// callers must validate whatever text it returns.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider is the single capability the verification pipeline needs from an
// inference service. Implementations hold no per-call state and are safe to
// share across batches.
type Provider interface {
	// Generate sends one prompt (optionally with an inline image) and
	// returns the raw response text. The text is not guaranteed to be
	// valid JSON; parsing and validation are the caller's job.
	Generate(ctx context.Context, params GenerateParams) (*GenerateResult, error)
}

// GenerateParams contains the input for one oracle invocation.
type GenerateParams struct {
	Prompt string      // Natural-language request with the output contract
	Image  *ImageInput // Optional inline image payload
}

// ImageInput is an inline image attached to a prompt.
type ImageInput struct {
	Data     []byte // Raw image bytes
	MimeType string // e.g. "image/jpeg"
}

// GenerateResult contains the oracle's raw output plus usage accounting.
type GenerateResult struct {
	Text  string    // Raw response text, unvalidated
	Usage UsageInfo // Token usage and timing
}

// UsageInfo tracks per-call usage for monitoring.
type UsageInfo struct {
	Model        string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// ProviderConfig contains common configuration for oracle providers.
type ProviderConfig struct {
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for oracle operations
var (
	// ERateLimit indicates the API rate limit has been exceeded
	ERateLimit = errors.New("oracle rate limit exceeded")

	// ETimeout indicates the request timed out
	ETimeout = errors.New("oracle request timed out")

	// EUnavailable indicates the service is unreachable or failing
	EUnavailable = errors.New("oracle temporarily unavailable")

	// EUnauthorized indicates invalid API credentials
	EUnauthorized = errors.New("oracle authentication failed")

	// EInvalidInput indicates the request payload was rejected
	EInvalidInput = errors.New("oracle rejected the input")
)

// IsRetryable returns true if the error is transient and a retry may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ERateLimit) ||
		errors.Is(err, ETimeout) ||
		errors.Is(err, EUnavailable)
}

// WrapError wraps an error with context about the oracle operation.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("oracle %s: %w", operation, err)
}
