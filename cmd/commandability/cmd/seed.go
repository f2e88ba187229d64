package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Commandability/commandability-web-sub001/internal/config"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Load a fixture into the configured stores",
	Long: `Load a YAML fixture of documents, reports, and stored objects into the
document and object stores selected by the config.

Only persistent drivers can be seeded this way. For the memory drivers use
"commandability start --seed <fixture.yaml>" instead.

Example:
  commandability seed testdata/station7.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := requirePersistentDrivers(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fx, err := loadFixture(args[0])
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	stats, err := fx.apply(ctx, b.docs, b.objects, nil)
	if err != nil {
		return fmt.Errorf("seed failed after %d documents, %d objects: %w", stats.Documents, stats.Objects, err)
	}
	logger.Info("fixture loaded", "file", args[0], "documents", stats.Documents, "objects", stats.Objects)
	return nil
}

// requirePersistentDrivers refuses configs whose data would vanish when
// this process exits.
func requirePersistentDrivers(cfg *config.Config) error {
	if cfg.Documents.Driver == config.DriverMemory || cfg.Documents.Driver == "" {
		return fmt.Errorf("document driver %q does not persist; use start --seed", config.DriverMemory)
	}
	if cfg.Objects.Driver == config.DriverMemory || cfg.Objects.Driver == "" {
		return fmt.Errorf("object driver %q does not persist; use start --seed", config.DriverMemory)
	}
	return nil
}

// newLogger builds the stderr logger for cfg. Dev mode forces debug.
func newLogger(cfg *config.Config) *slog.Logger {
	level := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
