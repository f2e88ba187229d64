package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Commandability/commandability-web-sub001/internal/adapter/inbound/http"
	"github.com/Commandability/commandability-web-sub001/internal/adapter/outbound/memory"
	"github.com/Commandability/commandability-web-sub001/internal/config"
	"github.com/Commandability/commandability-web-sub001/internal/service"
	"github.com/Commandability/commandability-web-sub001/internal/telemetry"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Commandability server",
	Long: `Start the Commandability server.

The server tracks the member session, streams the member's profile and
reports as one aggregate, and deletes reports together with their stored
objects.

Examples:
  # Start with config file settings
  commandability start

  # Start in development mode with a dev account and seed data
  commandability start --dev --seed testdata/station7.yaml

  # Start with a specific config file
  commandability --config /path/to/config.yaml start`,
	RunE: runStart,
}

var (
	devMode  bool
	seedFile string
)

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, dev account)")
	startCmd.Flags().StringVar(&seedFile, "seed", "", "load a fixture into the stores before serving")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load without validation so CLI flags can override first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := newLogger(cfg)
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "dev_mode", cfg.DevMode)

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, seedFile, logger); err != nil {
		return err
	}

	logger.Info("commandability stopped")
	return nil
}

// run wires every component together and serves until ctx is done or the
// session is rejected. A rejected session is returned as an error so the
// process exits non-zero.
func run(ctx context.Context, cfg *config.Config, seedPath string, logger *slog.Logger) error {
	shutdownTimeout := config.ParseDuration(cfg.Server.ShutdownTimeout, 10*time.Second)

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:     "commandability",
		Version:         Version,
		Traces:          cfg.Telemetry.Traces,
		Metrics:         cfg.Telemetry.Metrics,
		MetricsInterval: config.ParseDuration(cfg.Telemetry.MetricsInterval, 30*time.Second),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics(reg)

	limiter := memory.NewRateLimiter(logger,
		memory.WithCleanup(config.ParseDuration(cfg.Auth.CleanupInterval, 5*time.Minute), time.Hour))
	limiter.StartCleanup(ctx)
	defer limiter.Stop()

	authProvider := memory.NewAuthProvider(cfg.Auth.AuthAccounts(), logger,
		memory.WithAttemptLimit(limiter, cfg.Auth.AttemptLimit()))
	defer authProvider.Close()
	logger.Info("auth provider ready", "accounts", len(cfg.Auth.Accounts))

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("failed to close stores", "error", err)
		}
	}()

	if seedPath != "" {
		fx, err := loadFixture(seedPath)
		if err != nil {
			return err
		}
		stats, err := fx.apply(ctx, b.docs, b.objects, nil)
		if err != nil {
			return fmt.Errorf("failed to seed stores: %w", err)
		}
		logger.Info("fixture loaded", "file", seedPath, "documents", stats.Documents, "objects", stats.Objects)
	}

	deletionOpts := []service.DeletionOption{
		service.WithDeletionMetrics(metrics),
		service.WithTracerProvider(tel.TracerProvider),
		service.WithMeterProvider(tel.MeterProvider),
	}
	deletionJournal, err := openJournal(cfg.Journal, logger)
	if err != nil {
		return err
	}
	if deletionJournal != nil {
		defer deletionJournal.Close()
		deletionOpts = append(deletionOpts, service.WithJournal(deletionJournal))
		logger.Info("deletion journal ready", "dir", cfg.Journal.Dir)
	}

	deleter := service.NewDeletionService(authProvider, b.docs, b.objects, logger, deletionOpts...)
	syncService := service.NewSyncService(authProvider, b.docs, deleter, logger, metrics)
	if err := syncService.Start(); err != nil {
		return fmt.Errorf("failed to start sync service: %w", err)
	}
	defer syncService.Close()

	healthChecker := http.NewHealthChecker(syncService, Version)
	for _, p := range b.probes {
		healthChecker.AddProbe(p.name, p.check)
	}

	transport := http.NewHTTPTransport(syncService, authProvider,
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		http.WithLogger(logger),
		http.WithRegistry(reg),
		http.WithHealthChecker(healthChecker),
		http.WithStreamBuffer(cfg.Server.StreamBuffer),
		http.WithShutdownTimeout(shutdownTimeout),
	)

	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- transport.Start(serveCtx)
	}()

	printBanner(Version, cfg.Server.HTTPAddr, cfg.DevMode, len(cfg.Auth.Accounts), cfg.Documents.Driver, cfg.Objects.Driver)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http transport: %w", err)
		}
		return nil
	case fatal := <-syncService.Fatal():
		logger.Error("session rejected, shutting down", "error", fatal)
		cancelServe()
		if err := <-serveErr; err != nil {
			logger.Warn("http transport shutdown failed", "error", err)
		}
		return fatal
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := <-serveErr; err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http transport: %w", err)
		}
		return nil
	}
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printBanner prints a startup banner to stderr.
func printBanner(version, httpAddr string, devMode bool, accounts int, docDriver, objectDriver string) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		dim    = "\033[2m"
	)

	baseURL := "http://" + httpAddr
	if strings.HasPrefix(httpAddr, ":") {
		baseURL = "http://localhost" + httpAddr
	}

	modeStr := green + "production" + reset
	if devMode {
		modeStr = yellow + "development" + reset + dim + fmt.Sprintf(" (dev secret %q)", config.DevAccountSecret) + reset
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  %s%s Commandability %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "  %-14s %s/v1/session\n", "API:", baseURL)
	fmt.Fprintf(os.Stderr, "  %-14s %s/v1/sync/stream\n", "Stream:", baseURL)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Mode:", modeStr)
	fmt.Fprintf(os.Stderr, "  %-14s %d configured\n", "Accounts:", accounts)
	fmt.Fprintf(os.Stderr, "  %-14s documents=%s objects=%s\n", "Storage:", docDriver, objectDriver)
	fmt.Fprintf(os.Stderr, "\n")
}
