package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rooftophq/rooftop/internal/batch"
	"github.com/rooftophq/rooftop/internal/jobs"
	"github.com/rooftophq/rooftop/internal/oracle/mock"
	"github.com/rooftophq/rooftop/internal/verify"
	"github.com/rooftophq/rooftop/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAPI wires the full pipeline behind an httptest server: mock oracle,
// verification client, batch registry, and a running worker.
type testAPI struct {
	server   *httptest.Server
	provider *mock.Provider
	registry *batch.Registry
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	provider := mock.New(logger)
	client := verify.NewClient(provider, logger)
	registry := batch.NewRegistry()
	orchestrator := batch.NewOrchestrator(client, batch.Config{PaceDelay: 0, TransientRetries: 1}, logger)

	w, err := worker.New(worker.Config{
		Concurrency:     1,
		QueueSize:       8,
		JobTimeout:      time.Minute,
		ShutdownTimeout: time.Second,
	}, logger)
	require.NoError(t, err)
	w.Register(jobs.NewRunBatchHandler(registry, orchestrator, logger))
	w.Start(context.Background())
	t.Cleanup(w.Stop)

	r := chi.NewRouter()
	NewVerifyHandler(client, registry, w, logger).RegisterRoutes(r)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &testAPI{server: server, provider: provider, registry: registry}
}

func (a *testAPI) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(a.server.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func (a *testAPI) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(a.server.URL + path)
	require.NoError(t, err)
	return resp
}

func (a *testAPI) delete(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, a.server.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeData(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func decodeError(t *testing.T, resp *http.Response) ErrorDetail {
	t.Helper()
	defer resp.Body.Close()
	var envelope APIErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Error
}

func sampleRecords() []map[string]any {
	return []map[string]any{
		{"sample_id": "S1", "latitude": 28.61, "longitude": 77.21},
		{"sample_id": "S2", "latitude": 19.07, "longitude": 72.88},
		{"sample_id": "S3", "latitude": 13.08, "longitude": 80.27},
	}
}

func TestParseSites_CSV(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post(t, "/api/sites/parse", map[string]any{
		"format":  "csv",
		"content": "id,lat,lon\nS1,28.61,77.21\nS2,19.07,72.88\nbroken line\n",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Records []struct {
			SampleID string `json:"sample_id"`
		} `json:"records"`
		Count int `json:"count"`
	}
	decodeData(t, resp, &got)
	assert.Equal(t, 2, got.Count)
	require.Len(t, got.Records, 2)
	assert.Equal(t, "S1", got.Records[0].SampleID)
}

func TestParseSites_Rejections(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"unknown format", map[string]any{"format": "xml", "content": "<sites/>"}},
		{"missing content", map[string]any{"format": "csv"}},
		{"json root not array", map[string]any{"format": "json", "content": "{}"}},
		{"no valid rows", map[string]any{"format": "csv", "content": "id,lat,lon\nbad\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.post(t, "/api/sites/parse", tt.body)
			require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
			detail := decodeError(t, resp)
			assert.Equal(t, "invalid", detail.Code)
		})
	}
}

func TestVerifyCoordinate_Endpoint(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post(t, "/api/verify", map[string]any{
		"sample_id": "S1",
		"latitude":  28.61,
		"longitude": 77.21,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		SampleID   string  `json:"sample_id"`
		QCStatus   string  `json:"qc_status"`
		HasSolar   bool    `json:"has_solar"`
		Confidence float64 `json:"confidence"`
	}
	decodeData(t, resp, &got)
	assert.Equal(t, "S1", got.SampleID)
	assert.Equal(t, "VERIFIABLE", got.QCStatus)
	assert.True(t, got.HasSolar)
	assert.InDelta(t, 0.92, got.Confidence, 1e-9)
}

func TestVerifyCoordinate_OutOfRange(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post(t, "/api/verify", map[string]any{
		"sample_id": "S1",
		"latitude":  91.2,
		"longitude": 77.21,
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Zero(t, api.provider.GenerateCalls)
}

func TestVerifyCoordinate_OracleDown(t *testing.T) {
	api := newTestAPI(t)
	api.provider.GenerateError = fmt.Errorf("connect: connection refused")

	resp := api.post(t, "/api/verify", map[string]any{
		"sample_id": "S1",
		"latitude":  28.61,
		"longitude": 77.21,
	})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	detail := decodeError(t, resp)
	assert.Equal(t, "unavailable", detail.Code)
}

func TestVerifyImage_Endpoint(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post(t, "/api/verify-image", map[string]any{
		"image_base64": base64.StdEncoding.EncodeToString([]byte("fake jpeg bytes")),
		"mime_type":    "image/jpeg",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		SampleID string `json:"sample_id"`
		Metadata struct {
			Source string `json:"source"`
		} `json:"image_metadata"`
	}
	decodeData(t, resp, &got)
	assert.Contains(t, got.SampleID, "IMG-")
	assert.Equal(t, "Direct Image Upload", got.Metadata.Source)
}

func TestVerifyImage_BadBase64(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post(t, "/api/verify-image", map[string]any{
		"image_base64": "not base64!!",
		"mime_type":    "image/jpeg",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestBatchLifecycle(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post(t, "/api/batches", map[string]any{
		"records":      sampleRecords(),
		"selected_ids": []string{"S1", "S3"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var created struct {
		BatchID       string `json:"batch_id"`
		SelectedCount int    `json:"selected_count"`
	}
	decodeData(t, resp, &created)
	assert.Equal(t, 2, created.SelectedCount)

	var snap struct {
		Phase           string `json:"phase"`
		ProgressPercent int    `json:"progress_percent"`
		Results         []struct {
			SampleID string `json:"sample_id"`
		} `json:"results"`
		Summary struct {
			Total         int `json:"total"`
			VerifiedCount int `json:"verified_count"`
		} `json:"summary"`
	}
	require.Eventually(t, func() bool {
		getResp := api.get(t, "/api/batches/"+created.BatchID)
		if getResp.StatusCode != http.StatusOK {
			getResp.Body.Close()
			return false
		}
		decodeData(t, getResp, &snap)
		return snap.Phase == "done"
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 100, snap.ProgressPercent)
	require.Len(t, snap.Results, 2)
	assert.Equal(t, "S1", snap.Results[0].SampleID)
	assert.Equal(t, "S3", snap.Results[1].SampleID)
	assert.Equal(t, 2, snap.Summary.Total)
	assert.Equal(t, 2, snap.Summary.VerifiedCount)
}

func TestCreateBatch_EmptySelectionMeansAll(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post(t, "/api/batches", map[string]any{
		"records": sampleRecords(),
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var created struct {
		SelectedCount int `json:"selected_count"`
	}
	decodeData(t, resp, &created)
	assert.Equal(t, 3, created.SelectedCount)
}

func TestCreateBatch_NoRecords(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post(t, "/api/batches", map[string]any{
		"records": []map[string]any{},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestGetBatch_Lookup(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get(t, "/api/batches/not-a-uuid")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	resp = api.get(t, "/api/batches/0d9974b2-21b6-4b5f-8f94-1b7b0a3a3a11")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	detail := decodeError(t, resp)
	assert.Equal(t, "not_found", detail.Code)
}

func TestCancelBatch_Idempotent(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post(t, "/api/batches", map[string]any{
		"records": sampleRecords(),
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var created struct {
		BatchID string `json:"batch_id"`
	}
	decodeData(t, resp, &created)

	for i := 0; i < 2; i++ {
		cancelResp := api.delete(t, "/api/batches/"+created.BatchID)
		require.Equal(t, http.StatusAccepted, cancelResp.StatusCode)
		cancelResp.Body.Close()
	}

	var snap struct {
		Phase string `json:"phase"`
	}
	require.Eventually(t, func() bool {
		getResp := api.get(t, "/api/batches/"+created.BatchID)
		decodeData(t, getResp, &snap)
		return snap.Phase == "cancelled" || snap.Phase == "done"
	}, 5*time.Second, 10*time.Millisecond)
}
