package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rooftophq/rooftop/internal/batch"
	"github.com/rooftophq/rooftop/internal/domain"
	"github.com/rooftophq/rooftop/internal/ingest"
	"github.com/rooftophq/rooftop/internal/jobs"
	"github.com/rooftophq/rooftop/internal/verify"
	"github.com/rooftophq/rooftop/internal/worker"
)

// VerifyHandler serves the verification API: parsing uploads, single
// verifications, and batch lifecycle.
type VerifyHandler struct {
	client   *verify.Client
	registry *batch.Registry
	worker   *worker.Worker
	validate *validator.Validate
	logger   *slog.Logger
}

// NewVerifyHandler creates the verification API handler.
func NewVerifyHandler(client *verify.Client, registry *batch.Registry, w *worker.Worker, logger *slog.Logger) *VerifyHandler {
	return &VerifyHandler{
		client:   client,
		registry: registry,
		worker:   w,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// RegisterRoutes mounts the API routes.
func (h *VerifyHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/sites/parse", h.ParseSites)
	r.Post("/api/verify", h.VerifyCoordinate)
	r.Post("/api/verify-image", h.VerifyImage)
	r.Post("/api/batches", h.CreateBatch)
	r.Get("/api/batches/{batchID}", h.GetBatch)
	r.Delete("/api/batches/{batchID}", h.CancelBatch)
}

// parseSitesRequest is the upload DTO for CSV/JSON site lists.
type parseSitesRequest struct {
	Format  string `json:"format" validate:"required,oneof=csv json"`
	Content string `json:"content" validate:"required"`
}

type parseSitesResponse struct {
	Records []domain.SiteRecord `json:"records"`
	Count   int                 `json:"count"`
}

// ParseSites parses uploaded CSV or JSON content into site records for
// preview and selection. A rejected upload starts no batch.
func (h *VerifyHandler) ParseSites(w http.ResponseWriter, r *http.Request) {
	var req parseSitesRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, h.logger, domain.Invalid("handler.parse_sites", err.Error()))
		return
	}

	records, err := ingest.Parse(req.Content, ingest.Format(req.Format))
	if err != nil {
		respondError(w, h.logger, domain.Wrap(err, domain.EINVALID, "handler.parse_sites", parseErrorMessage(err)))
		return
	}

	respondJSON(w, http.StatusOK, parseSitesResponse{
		Records: records,
		Count:   len(records),
	})
}

// parseErrorMessage keeps parse rejections actionable for the uploader.
func parseErrorMessage(err error) string {
	switch {
	case errors.Is(err, ingest.ErrRootNotArray):
		return "JSON root must be an array of objects"
	case errors.Is(err, ingest.ErrNoValidRecords):
		return "no valid entries found; required fields: sample_id, latitude, longitude"
	default:
		return "file could not be parsed"
	}
}

// verifyCoordinateRequest is the DTO for a single coordinate verification.
type verifyCoordinateRequest struct {
	SampleID    string  `json:"sample_id" validate:"required"`
	Latitude    float64 `json:"latitude" validate:"latitude"`
	Longitude   float64 `json:"longitude" validate:"longitude"`
	CaptureDate string  `json:"capture_date"`
}

// VerifyCoordinate verifies one site synchronously.
func (h *VerifyHandler) VerifyCoordinate(w http.ResponseWriter, r *http.Request) {
	var req verifyCoordinateRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, h.logger, domain.Invalid("handler.verify", err.Error()))
		return
	}

	result, err := h.client.VerifyCoordinate(r.Context(), domain.SiteRecord{
		SampleID:    req.SampleID,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		CaptureDate: req.CaptureDate,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// verifyImageRequest is the DTO for single-image verification.
type verifyImageRequest struct {
	ImageBase64 string `json:"image_base64" validate:"required"`
	MimeType    string `json:"mime_type" validate:"required"`
}

// VerifyImage verifies one uploaded image synchronously.
func (h *VerifyHandler) VerifyImage(w http.ResponseWriter, r *http.Request) {
	var req verifyImageRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, h.logger, domain.Invalid("handler.verify_image", err.Error()))
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		respondError(w, h.logger, domain.Invalid("handler.verify_image", "image_base64 is not valid base64"))
		return
	}

	result, err := h.client.VerifyImage(r.Context(), domain.ImagePayload{
		Bytes:    data,
		MimeType: req.MimeType,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// createBatchRequest starts a batch over previously parsed records. An empty
// selection means all records.
type createBatchRequest struct {
	Records     []domain.SiteRecord `json:"records" validate:"required,min=1,dive"`
	SelectedIDs []string            `json:"selected_ids"`
}

type createBatchResponse struct {
	BatchID       uuid.UUID `json:"batch_id"`
	SelectedCount int       `json:"selected_count"`
}

// CreateBatch registers a batch and enqueues it for background execution.
func (h *VerifyHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, h.logger, domain.Invalid("handler.create_batch", err.Error()))
		return
	}

	selected := req.SelectedIDs
	if len(selected) == 0 {
		for _, rec := range req.Records {
			selected = append(selected, rec.SampleID)
		}
	}

	state, err := batch.NewState(req.Records, selected)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.registry.Add(state)

	payload, err := json.Marshal(jobs.RunBatchPayload{BatchID: state.ID})
	if err != nil {
		respondError(w, h.logger, domain.Internal(err, "handler.create_batch", "failed to enqueue batch"))
		return
	}
	if err := h.worker.Enqueue(worker.Job{Type: worker.JobTypeRunBatch, Payload: payload}); err != nil {
		respondError(w, h.logger, domain.Wrap(err, domain.ERATELIMIT, "handler.create_batch", "server is busy; try again later"))
		return
	}

	snap := state.Snapshot()
	respondJSON(w, http.StatusAccepted, createBatchResponse{
		BatchID:       state.ID,
		SelectedCount: snap.SelectedCount,
	})
}

// GetBatch reports a batch's phase, progress, partial results, and summary.
func (h *VerifyHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	state, ok := h.lookupBatch(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, state.Snapshot())
}

// CancelBatch requests cancellation. Idempotent; terminal batches are
// unaffected and partial results stay available.
func (h *VerifyHandler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	state, ok := h.lookupBatch(w, r)
	if !ok {
		return
	}
	state.Cancel()
	respondJSON(w, http.StatusAccepted, state.Snapshot())
}

// lookupBatch resolves the {batchID} path parameter.
func (h *VerifyHandler) lookupBatch(w http.ResponseWriter, r *http.Request) (*batch.State, bool) {
	raw := chi.URLParam(r, "batchID")
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(w, h.logger, domain.Invalid("handler.batch", "batch id must be a UUID"))
		return nil, false
	}
	state, ok := h.registry.Get(id)
	if !ok {
		respondError(w, h.logger, domain.NotFound("handler.batch", "batch", raw))
		return nil, false
	}
	return state, true
}
