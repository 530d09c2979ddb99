// Package gemini implements the oracle.Provider interface against the Google
// Gemini generateContent REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rooftophq/rooftop/internal/oracle"
	"github.com/sony/gobreaker/v2"
)

const (
	// APIBaseURL is the base URL for the Gemini API
	APIBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is the default Gemini model to use
	DefaultModel = "gemini-2.5-flash"

	// MaxImageSize is the maximum inline image size in bytes (20MB)
	MaxImageSize = 20 * 1024 * 1024

	// maxOutputTokens bounds the response; the output contract is a small
	// fixed-shape JSON object, so this is generous.
	maxOutputTokens = 2048
)

// Config contains configuration for the Gemini provider.
type Config struct {
	APIKey         string
	Model          string
	BaseURL        string // Overridable for tests
	ProviderConfig oracle.ProviderConfig
}

// Provider implements oracle.Provider using Gemini's generateContent API.
// All outbound calls pass through a circuit breaker so a failing upstream
// fast-fails instead of tying up a running batch.
type Provider struct {
	config  Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*apiResponse]
	logger  *slog.Logger
}

// New creates a new Gemini oracle provider.
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = APIBaseURL
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[*apiResponse](gobreaker.Settings{
		Name:     "gemini",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			// Only transport-level trouble should trip the breaker;
			// a rejected payload says nothing about upstream health.
			return err == nil || !oracle.IsRetryable(err)
		},
	})

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.ProviderConfig.RequestTimeout,
		},
		breaker: breaker,
		logger:  logger,
	}, nil
}

// Generate sends one prompt to Gemini and returns the raw response text.
// There is no retry here: retry policy belongs to the batch orchestrator.
func (p *Provider) Generate(ctx context.Context, params oracle.GenerateParams) (*oracle.GenerateResult, error) {
	startTime := time.Now()

	if err := p.validateParams(params); err != nil {
		return nil, oracle.WrapError("generate", err)
	}

	req, err := p.buildRequest(ctx, params)
	if err != nil {
		return nil, oracle.WrapError("build request", err)
	}

	resp, err := p.breaker.Execute(func() (*apiResponse, error) {
		return p.executeRequest(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, oracle.WrapError("generate", oracle.EUnavailable)
		}
		return nil, oracle.WrapError("generate", err)
	}

	text, err := extractText(resp)
	if err != nil {
		return nil, oracle.WrapError("parse response", err)
	}

	return &oracle.GenerateResult{
		Text: text,
		Usage: oracle.UsageInfo{
			Model:        p.config.Model,
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			Duration:     time.Since(startTime),
		},
	}, nil
}

// validateParams rejects requests Gemini would refuse anyway.
func (p *Provider) validateParams(params oracle.GenerateParams) error {
	if params.Prompt == "" {
		return fmt.Errorf("%w: prompt is empty", oracle.EInvalidInput)
	}
	if params.Image != nil {
		if len(params.Image.Data) == 0 {
			return fmt.Errorf("%w: image payload is empty", oracle.EInvalidInput)
		}
		if len(params.Image.Data) > MaxImageSize {
			return fmt.Errorf("%w: image size %d exceeds maximum %d",
				oracle.EInvalidInput, len(params.Image.Data), MaxImageSize)
		}
		if params.Image.MimeType == "" {
			return fmt.Errorf("%w: image mime type is required", oracle.EInvalidInput)
		}
	}
	return nil
}

// buildRequest builds the generateContent HTTP request.
func (p *Provider) buildRequest(ctx context.Context, params oracle.GenerateParams) (*http.Request, error) {
	parts := []apiPart{}
	if params.Image != nil {
		parts = append(parts, apiPart{
			InlineData: &apiInlineData{
				MimeType: params.Image.MimeType,
				Data:     base64.StdEncoding.EncodeToString(params.Image.Data),
			},
		})
	}
	parts = append(parts, apiPart{Text: params.Prompt})

	reqBody := apiRequest{
		Contents: []apiContent{
			{Role: "user", Parts: parts},
		},
		GenerationConfig: &apiGenerationConfig{
			MaxOutputTokens:  maxOutputTokens,
			ResponseMimeType: "application/json",
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.config.BaseURL, p.config.Model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.config.APIKey)

	return req, nil
}

// executeRequest executes a single HTTP request.
func (p *Provider) executeRequest(ctx context.Context, req *http.Request) (*apiResponse, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return nil, oracle.ETimeout
		}
		// Network errors surface as unavailable, not as raw transport noise.
		return nil, oracle.EUnavailable
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, oracle.EUnavailable
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.mapHTTPError(resp.StatusCode, bodyBytes)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &apiResp, nil
}

// mapHTTPError maps HTTP status codes to oracle errors.
func (p *Provider) mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return oracle.EUnauthorized
	case http.StatusTooManyRequests:
		return oracle.ERateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return oracle.ETimeout
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", oracle.EInvalidInput, errResp.Error.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusInternalServerError:
		return oracle.EUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Error.Message)
	}
}

// extractText pulls the first text part out of the first candidate.
func extractText(resp *apiResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response: no candidates")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			return part.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}

// API request/response types

type apiRequest struct {
	Contents         []apiContent         `json:"contents"`
	GenerationConfig *apiGenerationConfig `json:"generationConfig,omitempty"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type apiPart struct {
	Text       string         `json:"text,omitempty"`
	InlineData *apiInlineData `json:"inline_data,omitempty"`
}

type apiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type apiGenerationConfig struct {
	MaxOutputTokens  int    `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type apiResponse struct {
	Candidates    []apiCandidate   `json:"candidates"`
	UsageMetadata apiUsageMetadata `json:"usageMetadata"`
}

type apiCandidate struct {
	Content      apiContent `json:"content"`
	FinishReason string     `json:"finishReason"`
}

type apiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}
