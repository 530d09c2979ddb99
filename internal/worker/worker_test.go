package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler collects payloads it was handed.
type recordingHandler struct {
	jobType string
	err     error

	mu       sync.Mutex
	payloads [][]byte
	done     chan struct{}
}

func newRecordingHandler(jobType string) *recordingHandler {
	return &recordingHandler{jobType: jobType, done: make(chan struct{}, 16)}
}

func (h *recordingHandler) Type() string { return h.jobType }

func (h *recordingHandler) Handle(ctx context.Context, payload []byte) error {
	h.mu.Lock()
	h.payloads = append(h.payloads, payload)
	h.mu.Unlock()
	h.done <- struct{}{}
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.payloads)
}

func testConfig() Config {
	return Config{
		Concurrency:     2,
		QueueSize:       4,
		JobTimeout:      time.Minute,
		ShutdownTimeout: time.Second,
	}
}

func newTestWorker(t *testing.T, handlers ...JobHandler) *Worker {
	t.Helper()
	w, err := New(testConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	for _, h := range handlers {
		w.Register(h)
	}
	return w
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"excessive concurrency", func(c *Config) { c.Concurrency = 500 }},
		{"zero queue size", func(c *Config) { c.QueueSize = 0 }},
		{"tiny job timeout", func(c *Config) { c.JobTimeout = time.Millisecond }},
		{"tiny shutdown timeout", func(c *Config) { c.ShutdownTimeout = time.Millisecond }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, slog.New(slog.DiscardHandler))
			require.Error(t, err)
		})
	}
}

func TestWorker_ExecutesEnqueuedJobs(t *testing.T) {
	handler := newRecordingHandler("test_job")
	w := newTestWorker(t, handler)
	w.Start(context.Background())
	defer w.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Enqueue(Job{Type: "test_job", Payload: []byte(fmt.Sprintf("p%d", i))}))
	}

	for i := 0; i < 3; i++ {
		select {
		case <-handler.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("job %d was not executed", i)
		}
	}
	assert.Equal(t, 3, handler.count())
}

func TestWorker_EnqueueUnknownType(t *testing.T) {
	w := newTestWorker(t, newRecordingHandler("known"))

	err := w.Enqueue(Job{Type: "unknown"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no handler registered")
}

func TestWorker_EnqueueFailsWhenQueueFull(t *testing.T) {
	handler := newRecordingHandler("test_job")
	w := newTestWorker(t, handler)
	// Not started: jobs stay queued.

	for i := 0; i < testConfig().QueueSize; i++ {
		require.NoError(t, w.Enqueue(Job{Type: "test_job"}))
	}
	err := w.Enqueue(Job{Type: "test_job"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue is full")
}

func TestWorker_PermanentFailureStillDrainsQueue(t *testing.T) {
	failing := newRecordingHandler("test_job")
	failing.err = NewPermanentError(errors.New("bad payload"))
	w := newTestWorker(t, failing)
	w.Start(context.Background())
	defer w.Stop()

	require.NoError(t, w.Enqueue(Job{Type: "test_job", Payload: []byte("a")}))
	require.NoError(t, w.Enqueue(Job{Type: "test_job", Payload: []byte("b")}))

	for i := 0; i < 2; i++ {
		select {
		case <-failing.done:
		case <-time.After(2 * time.Second):
			t.Fatal("job was not executed after a permanent failure")
		}
	}
	assert.Equal(t, 2, failing.count())
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	w := newTestWorker(t, newRecordingHandler("test_job"))
	w.Start(context.Background())
	w.Stop()
	w.Stop()
}

func TestPermanentError(t *testing.T) {
	base := errors.New("underlying cause")
	perm := NewPermanentError(base)

	assert.True(t, IsPermanent(perm))
	assert.True(t, IsPermanent(fmt.Errorf("wrapped: %w", perm)))
	assert.False(t, IsPermanent(base))
	assert.True(t, errors.Is(perm, base))
	assert.Equal(t, "underlying cause", perm.Error())
}
