package batch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rooftophq/rooftop/internal/domain"
	"github.com/rooftophq/rooftop/internal/metrics"
	"github.com/rooftophq/rooftop/internal/verify"
)

// Verifier is the slice of the verification client the orchestrator needs.
type Verifier interface {
	VerifyCoordinate(ctx context.Context, site domain.SiteRecord) (*domain.VerificationResult, error)
}

// ProgressUpdate is published to the observer after every appended result.
type ProgressUpdate struct {
	BatchID   string
	Completed int
	Total     int
	Percent   int
}

// Config holds the orchestrator's pacing and retry policy.
type Config struct {
	// PaceDelay is inserted between verification calls (after the first)
	// to respect the oracle's rate limits. Deliberate backpressure, not an
	// incidental delay.
	PaceDelay time.Duration

	// TransientRetries is how many extra attempts a single item gets when
	// the oracle was unavailable, before the item degrades.
	TransientRetries int

	// OnProgress, when set, is called after each result is appended.
	OnProgress func(ProgressUpdate)
}

// DefaultConfig returns the production pacing policy.
func DefaultConfig() Config {
	return Config{
		PaceDelay:        800 * time.Millisecond,
		TransientRetries: 1,
	}
}

// Orchestrator runs verification batches strictly sequentially: one oracle
// call at a time, paced. One item's failure never aborts the batch; the item
// degrades to a NOT_VERIFIABLE result and the loop continues.
type Orchestrator struct {
	verifier Verifier
	config   Config
	logger   *slog.Logger
}

// NewOrchestrator creates a batch orchestrator.
func NewOrchestrator(verifier Verifier, config Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		verifier: verifier,
		config:   config,
		logger:   logger,
	}
}

// Run executes the batch to a terminal phase. It returns nil on normal
// completion and on cancellation; cancellation is a lifecycle outcome, not
// an error. A State that already ran is rejected.
func (o *Orchestrator) Run(ctx context.Context, state *State) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !state.start(cancel) {
		if state.Phase() == PhaseCancelled {
			o.logger.Info("Batch cancelled before start", "batch_id", state.ID)
			metrics.BatchesFinished.WithLabelValues("cancelled").Inc()
			return nil
		}
		return domain.Conflict("batch.run", "batch has already run")
	}

	metrics.BatchesStarted.Inc()
	startTime := time.Now()
	records := state.pending()

	o.logger.Info("Batch started",
		"batch_id", state.ID,
		"selected", len(records),
		"pace_delay", o.config.PaceDelay,
	)

	cancelled := false
	for i, site := range records {
		if i > 0 && !o.pace(runCtx) {
			cancelled = true
			break
		}
		if runCtx.Err() != nil {
			cancelled = true
			break
		}

		result, ok := o.verifyOne(runCtx, site)
		if !ok {
			cancelled = true
			break
		}
		metrics.BatchItems.WithLabelValues(string(Classify(result))).Inc()

		progress := state.append(result)
		if o.config.OnProgress != nil {
			o.config.OnProgress(ProgressUpdate{
				BatchID:   state.ID.String(),
				Completed: i + 1,
				Total:     len(records),
				Percent:   progress,
			})
		}
	}

	state.finish(cancelled)
	outcome := "done"
	if cancelled {
		outcome = "cancelled"
	}
	metrics.BatchesFinished.WithLabelValues(outcome).Inc()
	metrics.BatchDuration.Observe(time.Since(startTime).Seconds())

	o.logger.Info("Batch finished",
		"batch_id", state.ID,
		"outcome", outcome,
		"completed", len(state.Snapshot().Results),
		"duration", time.Since(startTime),
	)

	return nil
}

// pace waits out the inter-call delay. Returns false if the run was
// cancelled while waiting.
func (o *Orchestrator) pace(ctx context.Context) bool {
	if o.config.PaceDelay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(o.config.PaceDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// verifyOne verifies a single record, retrying transient oracle failures per
// policy and degrading to a placeholder result on persistent failure. The
// second return is false when the failure was really the run being cancelled
// mid-call; such an item is dropped, not recorded as an oracle failure.
func (o *Orchestrator) verifyOne(ctx context.Context, site domain.SiteRecord) (domain.VerificationResult, bool) {
	var lastErr error

	for attempt := 0; attempt <= o.config.TransientRetries; attempt++ {
		if attempt > 0 {
			metrics.BatchItemRetries.Inc()
			o.logger.Info("Retrying verification",
				"sample_id", site.SampleID,
				"attempt", attempt+1,
				"error", lastErr,
			)
			if !o.pace(ctx) {
				break
			}
		}

		result, err := o.verifier.VerifyCoordinate(ctx, site)
		if err == nil {
			return *result, true
		}
		lastErr = err

		// Only unavailability is worth a second attempt; malformed output
		// and bad input would just fail the same way again.
		if !errors.Is(err, verify.ErrOracleUnavailable) {
			break
		}
	}

	if ctx.Err() != nil {
		return domain.VerificationResult{}, false
	}

	o.logger.Warn("Verification failed, degrading result",
		"sample_id", site.SampleID,
		"error", lastErr,
	)
	return degradedResult(site, lastErr), true
}

// degradedResult converts a per-item failure into a placeholder result so
// downstream aggregation and display handle it uniformly.
func degradedResult(site domain.SiteRecord, err error) domain.VerificationResult {
	lat, lon := site.Latitude, site.Longitude
	result := domain.VerificationResult{
		SampleID:   site.SampleID,
		QCStatus:   domain.QCNotVerifiable,
		HasSolar:   false,
		Confidence: 0,
		Latitude:   &lat,
		Longitude:  &lon,
		QCNotes:    []string{failureNote(err)},
		ImageMetadata: domain.ImageMetadata{
			Source:      "Batch Verification",
			CaptureDate: time.Now().Format("2006-01-02"),
		},
	}
	result.EnforceConsistency()
	return result
}

// failureNote renders a human-readable audit note for the failure category.
func failureNote(err error) string {
	switch {
	case errors.Is(err, verify.ErrOracleUnavailable):
		return "Verification failed: oracle unavailable after retry"
	case errors.Is(err, verify.ErrMalformedResponse):
		return "Verification failed: oracle returned a malformed response"
	case errors.Is(err, verify.ErrInvalidInput):
		return "Verification failed: input rejected as invalid"
	case err == nil:
		return "Verification failed"
	default:
		return "Verification failed: " + err.Error()
	}
}
