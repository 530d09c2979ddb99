package main

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rooftophq/rooftop/internal"
	"github.com/rooftophq/rooftop/internal/batch"
	"github.com/rooftophq/rooftop/internal/handler"
	"github.com/rooftophq/rooftop/internal/jobs"
	"github.com/rooftophq/rooftop/internal/middleware"
	"github.com/rooftophq/rooftop/internal/oracle"
	"github.com/rooftophq/rooftop/internal/oracle/gemini"
	"github.com/rooftophq/rooftop/internal/oracle/mock"
	"github.com/rooftophq/rooftop/internal/verify"
	"github.com/rooftophq/rooftop/internal/worker"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Select the oracle provider
	var provider oracle.Provider
	switch cfg.OracleProvider {
	case "gemini":
		provider, err = gemini.New(gemini.Config{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
			ProviderConfig: oracle.ProviderConfig{
				RequestTimeout: cfg.OracleRequestTimeout,
			},
		}, logger)
		if err != nil {
			return fmt.Errorf("gemini provider initialization failed: %w", err)
		}
	default:
		provider = mock.New(logger)
	}
	logger.Info("Oracle provider ready", "provider", cfg.OracleProvider)

	// Verification pipeline
	client := verify.NewClient(provider, logger)
	registry := batch.NewRegistry()

	orchConfig := batch.DefaultConfig()
	orchConfig.PaceDelay = cfg.BatchPaceDelay
	orchConfig.TransientRetries = cfg.BatchTransientRetries
	orchestrator := batch.NewOrchestrator(client, orchConfig, logger)

	// Background worker for batch execution
	workerCfg := worker.DefaultConfig()
	workerCfg.Concurrency = cfg.WorkerConcurrency
	workerCfg.QueueSize = cfg.WorkerQueueSize
	workerCfg.JobTimeout = cfg.WorkerJobTimeout
	workerCfg.ShutdownTimeout = cfg.WorkerShutdownTimeout

	w, err := worker.New(workerCfg, logger)
	if err != nil {
		return fmt.Errorf("worker initialization failed: %w", err)
	}
	w.Register(jobs.NewRunBatchHandler(registry, orchestrator, logger))
	w.Start(ctx)
	defer w.Stop()

	// Router
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Metrics)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Method("GET", "/metrics", metricsHandler(cfg))

	verifyHandler := handler.NewVerifyHandler(client, registry, w, logger)
	verifyHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}

// metricsHandler wraps the Prometheus handler with optional basic auth.
func metricsHandler(cfg *internal.Config) http.Handler {
	prom := promhttp.Handler()
	if cfg.MetricsUsername == "" && cfg.MetricsPassword == "" {
		return prom
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(cfg.MetricsUsername)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(cfg.MetricsPassword)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		prom.ServeHTTP(w, r)
	})
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
