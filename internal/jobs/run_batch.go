// Package jobs contains background job handlers.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/rooftophq/rooftop/internal/batch"
	"github.com/rooftophq/rooftop/internal/worker"
)

// RunBatchPayload identifies the batch a run_batch job should execute.
type RunBatchPayload struct {
	BatchID uuid.UUID `json:"batch_id"`
}

// RunBatchHandler processes jobs that execute a verification batch. The
// batch state lives in the registry; this handler just drives the
// orchestrator over it.
type RunBatchHandler struct {
	registry     *batch.Registry
	orchestrator *batch.Orchestrator
	logger       *slog.Logger
}

// NewRunBatchHandler creates a new handler for batch execution jobs.
func NewRunBatchHandler(registry *batch.Registry, orchestrator *batch.Orchestrator, logger *slog.Logger) *RunBatchHandler {
	return &RunBatchHandler{
		registry:     registry,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// Type returns the job type identifier.
func (h *RunBatchHandler) Type() string {
	return worker.JobTypeRunBatch
}

// Handle executes the batch run job.
func (h *RunBatchHandler) Handle(ctx context.Context, payload []byte) error {
	var p RunBatchPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	state, ok := h.registry.Get(p.BatchID)
	if !ok {
		return worker.NewPermanentError(fmt.Errorf("batch %s not found", p.BatchID))
	}

	h.logger.Info("Running batch", "batch_id", p.BatchID)

	if err := h.orchestrator.Run(ctx, state); err != nil {
		// A batch that already ran will not succeed on re-delivery.
		return worker.NewPermanentError(fmt.Errorf("run batch %s: %w", p.BatchID, err))
	}
	return nil
}
