// Package main is the entry point for the Gestri BFF server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/gestri/gestri-bff/internal/config"
	"github.com/gestri/gestri-bff/internal/gateway"
	"github.com/gestri/gestri-bff/internal/observability"
	"github.com/gestri/gestri-bff/internal/openapi"
	"github.com/gestri/gestri-bff/internal/saga"
	"github.com/gestri/gestri-bff/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "gestri-bff", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	gw := gateway.New(cfg, logger, metrics)
	composite := saga.NewCompositeMezzo(gw, logger, metrics)

	checkSpecDrift(cfg, logger)

	readiness := observability.ReadinessChecks{
		Backend:      gw,
		BreakerState: func() string { return gw.Breaker().State().String() },
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:    cfg,
		Backend:   gw,
		Composite: composite,
		Logger:    logger,
		Metrics:   metrics,
		Readiness: readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("backend", cfg.APIEndpoint()),
		zap.String("version", version),
		zap.String("commit", commit),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// checkSpecDrift compares the proxy's outbound route inventory against the
// backend's OpenAPI document, when one is configured. Drift only warns; the
// backend document regularly lags behind its deployments.
func checkSpecDrift(cfg *config.Config, logger *zap.Logger) {
	specFile := cfg.Backend.SpecFile
	if specFile == "" {
		return
	}

	idx, err := openapi.Load(specFile)
	if err != nil {
		logger.Warn("backend spec check skipped", zap.Error(err))
		return
	}

	missing := idx.Missing(transport.BackendRoutes())
	for _, route := range missing {
		logger.Warn("backend spec does not declare a proxied route",
			zap.String("method", route.Method),
			zap.String("path", route.Path),
		)
	}
	if len(missing) == 0 {
		logger.Info("backend spec covers all proxied routes",
			zap.String("spec_file", specFile),
		)
	}
}
