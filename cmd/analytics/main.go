package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"analytics/internal/api"
	"analytics/internal/config"
	"analytics/internal/forward"
	"analytics/internal/ingest"
	"analytics/internal/logger"
	"analytics/internal/models"
	"analytics/internal/observability"
	"analytics/internal/ratelimit"
	"analytics/internal/version"
)

var (
	configFile    = flag.String("config", "", "Path to configuration file")
	exampleConfig = flag.String("example-config", "", "Write an example configuration file to this path and exit")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	ver := version.GetInfo()

	if *showVersion {
		fmt.Println(ver.String())
		return
	}

	if *exampleConfig != "" {
		if err := config.SaveExample(*exampleConfig); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	limiter, forwarder, ingestOpts, err := buildPipeline(cfg, ver)
	if err != nil {
		slog.Error("Failed to initialize ingestion pipeline", "error", err)
		os.Exit(1)
	}
	defer limiter.Close()

	if cfg.Upstream.Enabled() {
		slog.Info("Event forwarding enabled", "host", cfg.Upstream.Host)
	} else {
		slog.Warn("Event forwarding disabled: no collector API key configured")
	}

	ingestService := ingest.NewService(limiter, forwarder, ingestOpts...)

	handlers := api.NewHandlers(ingestService,
		api.WithForwarder(forwarder),
		api.WithVersion(ver),
	)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Starting server", "addr", server.Addr, "version", ver.Version)

		var err error
		if cfg.Server.TLSEnabled {
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

// buildPipeline creates the rate limiter and forwarder from configuration and
// wraps them with instrumentation when metrics are enabled.
func buildPipeline(cfg *models.Config, ver version.Info) (ratelimit.Limiter, forward.Forwarder, []ingest.Option, error) {
	rl := cfg.RateLimit
	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter(rl.Capacity, rl.RefillPerSecond, rl.IdleTTL, rl.CleanupInterval)

	fwdOpts := []forward.Option{}
	if libVersion, ok := ver.SemVer(); ok {
		fwdOpts = append(fwdOpts, forward.WithLibVersion(libVersion))
	}
	forwarder := forward.FromConfig(cfg.Upstream, fwdOpts...)

	opts := []ingest.Option{ingest.WithMaxBodyBytes(cfg.Server.MaxBodyBytes)}

	if !cfg.Metrics.Enabled && !cfg.Observability.Tracing.Enabled {
		return limiter, forwarder, opts, nil
	}

	instrumentedLimiter, err := observability.NewInstrumentedLimiter(limiter)
	if err != nil {
		limiter.Close()
		return nil, nil, nil, fmt.Errorf("instrument rate limiter: %w", err)
	}

	instrumentedForwarder, err := observability.NewInstrumentedForwarder(forwarder)
	if err != nil {
		instrumentedLimiter.Close()
		return nil, nil, nil, fmt.Errorf("instrument forwarder: %w", err)
	}

	ingestMetrics, err := observability.NewIngestMetrics()
	if err != nil {
		instrumentedLimiter.Close()
		return nil, nil, nil, fmt.Errorf("instrument ingestion: %w", err)
	}
	opts = append(opts, ingest.WithObserver(ingestMetrics))

	return instrumentedLimiter, instrumentedForwarder, opts, nil
}
