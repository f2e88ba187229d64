package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Commandability/commandability-web-sub001/internal/adapter/outbound/journal"
	"github.com/Commandability/commandability-web-sub001/internal/config"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Print recent entries of the deletion journal",
	Long: `Print the most recent committed deletions recorded in the journal,
newest first, one JSON object per line.

Entries with "outcome": "partial" list stored objects that could not be
deleted; those objects are orphaned and need manual cleanup.

Example:
  commandability journal --limit 50`,
	Args: cobra.NoArgs,
	RunE: runJournal,
}

var journalLimit int

func init() {
	journalCmd.Flags().IntVar(&journalLimit, "limit", 20, "number of entries to print")
	rootCmd.AddCommand(journalCmd)
}

func runJournal(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	j, err := openJournal(cfg.Journal, newLogger(cfg))
	if err != nil {
		return err
	}
	if j == nil {
		return errors.New("journal is disabled; set journal.dir")
	}
	defer j.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, entry := range j.Recent(journalLimit) {
		if err := enc.Encode(entry); err != nil {
			return err
		}
	}
	return nil
}

// openJournal opens the deletion journal, or returns nil when cfg leaves
// it disabled.
func openJournal(cfg config.JournalConfig, logger *slog.Logger) (*journal.FileJournal, error) {
	if cfg.Dir == "" {
		return nil, nil
	}
	j, err := journal.Open(journal.Config{
		Dir:           cfg.Dir,
		RetentionDays: cfg.RetentionDays,
		MaxFileSizeMB: cfg.MaxFileSizeMB,
		CacheSize:     cfg.CacheSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open deletion journal: %w", err)
	}
	return j, nil
}
