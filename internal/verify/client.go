// Package verify implements the verification client: it turns one site
// record or one image into a canonical VerificationResult by way of the
// inference oracle.
//
// The oracle is untrusted. Its response text is parsed against the expected
// schema and normalized before anything is returned to a caller; the
// mutual-exclusivity invariant between present-system and potential
// estimates always holds on returned results.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rooftophq/rooftop/internal/domain"
	"github.com/rooftophq/rooftop/internal/metrics"
	"github.com/rooftophq/rooftop/internal/oracle"
)

// Failure surface of a verification call. All three are recoverable at the
// batch level: the orchestrator converts them into degraded results.
var (
	// ErrOracleUnavailable covers transport failures, timeouts, and
	// rate limiting: anything where the oracle never gave a usable answer.
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrMalformedResponse indicates the oracle answered with text that is
	// not valid JSON against the expected schema.
	ErrMalformedResponse = errors.New("malformed oracle response")

	// ErrInvalidInput indicates the input itself was unusable.
	ErrInvalidInput = errors.New("invalid verification input")
)

const (
	// maxInlineImageBytes is the threshold above which an image is
	// downscaled before being sent to the oracle.
	maxInlineImageBytes = 4 * 1024 * 1024

	sourceCoordinate = "Gemini Coordinate Verification"
	sourceImage      = "Direct Image Upload"
)

// Client is the verification client. It is stateless between calls and safe
// to share across batches.
type Client struct {
	provider oracle.Provider
	logger   *slog.Logger
	now      func() time.Time // injectable for tests
}

// NewClient creates a verification client backed by the given oracle
// provider. The provider is an explicit dependency; there is no ambient
// client state.
func NewClient(provider oracle.Provider, logger *slog.Logger) *Client {
	return &Client{
		provider: provider,
		logger:   logger,
		now:      time.Now,
	}
}

// VerifyCoordinate verifies one site record by its coordinates.
func (c *Client) VerifyCoordinate(ctx context.Context, site domain.SiteRecord) (*domain.VerificationResult, error) {
	if err := site.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	prompt := buildCoordinatePrompt(site.SampleID, site.Latitude, site.Longitude)
	result, err := c.invoke(ctx, oracle.GenerateParams{Prompt: prompt}, site.SampleID, sourceCoordinate)
	if err != nil {
		return nil, err
	}

	// Echo the input coordinates; never trust the oracle's copy.
	lat, lon := site.Latitude, site.Longitude
	result.Latitude = &lat
	result.Longitude = &lon
	if site.CaptureDate != "" {
		result.ImageMetadata.CaptureDate = site.CaptureDate
	}
	return result, nil
}

// VerifyImage verifies one uploaded image. The sample id is synthesized
// since image uploads carry no id of their own.
func (c *Client) VerifyImage(ctx context.Context, img domain.ImagePayload) (*domain.VerificationResult, error) {
	if err := img.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	prepared, err := c.prepareImage(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	sampleID := fmt.Sprintf("IMG-%d", c.now().UnixMilli())
	params := oracle.GenerateParams{
		Prompt: buildImagePrompt(sampleID),
		Image: &oracle.ImageInput{
			Data:     prepared.Bytes,
			MimeType: prepared.MimeType,
		},
	}
	return c.invoke(ctx, params, sampleID, sourceImage)
}

// invoke performs one oracle round trip and normalizes the outcome.
func (c *Client) invoke(ctx context.Context, params oracle.GenerateParams, sampleID, source string) (*domain.VerificationResult, error) {
	gen, err := c.provider.Generate(ctx, params)
	if err != nil {
		metrics.OracleCalls.WithLabelValues("error").Inc()
		return nil, c.mapOracleError(sampleID, err)
	}
	metrics.OracleCalls.WithLabelValues("ok").Inc()

	result, err := parseResult(gen.Text)
	if err != nil {
		c.logger.Warn("Oracle returned unparseable text",
			"sample_id", sampleID,
			"error", err,
		)
		metrics.OracleResponsesMalformed.Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	// Canonical identity and provenance win over whatever came back.
	result.SampleID = sampleID
	result.ImageMetadata.Source = source
	if result.ImageMetadata.CaptureDate == "" {
		result.ImageMetadata.CaptureDate = c.now().Format("2006-01-02")
	}
	if result.QCNotes == nil {
		result.QCNotes = []string{}
	}
	result.EnforceConsistency()

	c.logger.Debug("Verification completed",
		"sample_id", sampleID,
		"qc_status", result.QCStatus,
		"has_solar", result.HasSolar,
		"confidence", result.Confidence,
		"input_tokens", gen.Usage.InputTokens,
		"output_tokens", gen.Usage.OutputTokens,
	)

	return result, nil
}

// mapOracleError folds the oracle error taxonomy into the verification
// failure surface.
func (c *Client) mapOracleError(sampleID string, err error) error {
	if errors.Is(err, oracle.EInvalidInput) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	c.logger.Warn("Oracle call failed", "sample_id", sampleID, "error", err)
	return fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
}

// parseResult decodes the oracle's text into a VerificationResult. Markdown
// code fences around the JSON are tolerated and stripped.
func parseResult(text string) (*domain.VerificationResult, error) {
	clean := stripCodeFences(text)
	if clean == "" {
		return nil, fmt.Errorf("empty response text")
	}

	var result domain.VerificationResult
	dec := json.NewDecoder(strings.NewReader(clean))
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &result, nil
}

// stripCodeFences removes a surrounding ```json ... ``` block if present.
func stripCodeFences(text string) string {
	clean := strings.TrimSpace(text)
	if !strings.HasPrefix(clean, "```") {
		return clean
	}
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(strings.TrimSpace(clean), "```")
	return strings.TrimSpace(clean)
}
