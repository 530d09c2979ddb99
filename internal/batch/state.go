// Package batch drives verification over a selected subset of site records:
// sequencing paced oracle calls, absorbing per-item failures, tracking
// progress, and summarizing the accumulated results.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rooftophq/rooftop/internal/domain"
)

// Phase is the lifecycle stage of one verification batch.
type Phase string

const (
	// PhaseIdle is the zero value; a State is never observed here.
	PhaseIdle Phase = "idle"

	// PhasePreviewing means the batch is created and queued but not started.
	PhasePreviewing Phase = "previewing"

	// PhaseRunning means verification calls are in flight.
	PhaseRunning Phase = "running"

	// PhaseDone means every selected record produced a result.
	PhaseDone Phase = "done"

	// PhaseCancelled means the run stopped early; partial results are valid.
	PhaseCancelled Phase = "cancelled"
)

// Terminal returns true once no further mutation of the batch can occur.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseCancelled
}

// State is the run-time record for one verification batch. It is owned by
// the orchestrator for the duration of a run; concurrent readers (the HTTP
// layer) observe it only through Snapshot.
//
// A State is single-use: once terminal it never runs again.
type State struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu        sync.RWMutex
	phase     Phase
	selected  []domain.SiteRecord // selected records, original relative order
	completed []domain.VerificationResult
	cancelReq bool
	cancel    context.CancelFunc
}

// NewState builds a batch over the selected subset of records. Selection is
// by id with set semantics; iteration order is the records' original order,
// not selection order. An empty selection is rejected.
func NewState(records []domain.SiteRecord, selectedIDs []string) (*State, error) {
	idSet := make(map[string]bool, len(selectedIDs))
	for _, id := range selectedIDs {
		idSet[id] = true
	}

	var selected []domain.SiteRecord
	for _, rec := range records {
		if idSet[rec.SampleID] {
			selected = append(selected, rec)
			// Set semantics: a duplicate id in records is taken once.
			delete(idSet, rec.SampleID)
		}
	}

	if len(selected) == 0 {
		return nil, domain.Invalid("batch.new", "selection matches no records")
	}

	return &State{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		phase:     PhasePreviewing,
		selected:  selected,
	}, nil
}

// Cancel requests that the batch stop issuing new verification calls. It is
// idempotent and a no-op on terminal batches. Partial results are kept.
func (s *State) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.Terminal() {
		return
	}
	s.cancelReq = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Snapshot is a read-only view of a batch for presentation.
type Snapshot struct {
	ID              uuid.UUID                   `json:"id"`
	Phase           Phase                       `json:"phase"`
	SelectedCount   int                         `json:"selected_count"`
	ProgressPercent int                         `json:"progress_percent"`
	Results         []domain.VerificationResult `json:"results"`
	Summary         domain.Summary              `json:"summary"`
	CreatedAt       time.Time                   `json:"created_at"`
}

// Snapshot returns a consistent copy of the batch's observable state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]domain.VerificationResult, len(s.completed))
	copy(results, s.completed)

	return Snapshot{
		ID:              s.ID,
		Phase:           s.phase,
		SelectedCount:   len(s.selected),
		ProgressPercent: s.progressLocked(),
		Results:         results,
		Summary:         Summarize(results),
		CreatedAt:       s.CreatedAt,
	}
}

// progressLocked computes floor(completed/selected*100). Callers hold mu.
func (s *State) progressLocked() int {
	if len(s.selected) == 0 {
		return 0
	}
	return len(s.completed) * 100 / len(s.selected)
}

// start transitions to RUNNING and binds the run's cancel func. It reports
// whether the run may proceed: false when the batch was already started or
// cancelled before starting.
func (s *State) start(cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhasePreviewing {
		return false
	}
	if s.cancelReq {
		s.phase = PhaseCancelled
		return false
	}
	s.phase = PhaseRunning
	s.cancel = cancel
	return true
}

// append records one result, in submission order, and returns the updated
// progress percentage.
func (s *State) append(result domain.VerificationResult) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, result)
	return s.progressLocked()
}

// finish moves the batch to its terminal phase.
func (s *State) finish(cancelled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancelled {
		s.phase = PhaseCancelled
	} else {
		s.phase = PhaseDone
	}
	s.cancel = nil
}

// pending returns the ordered records still to verify.
func (s *State) pending() []domain.SiteRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rest := make([]domain.SiteRecord, len(s.selected)-len(s.completed))
	copy(rest, s.selected[len(s.completed):])
	return rest
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}
