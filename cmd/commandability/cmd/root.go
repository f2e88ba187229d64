// Package cmd provides the CLI commands for Commandability.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Commandability/commandability-web-sub001/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "commandability",
	Short: "Commandability - member data sync server",
	Long: `Commandability tracks the member session, keeps the member's profile
and reports in sync over a realtime stream, and deletes reports together
with their stored objects.

Quick start:
  1. Create a config file: commandability.yaml
  2. Run: commandability start

Configuration:
  Config is loaded from commandability.yaml in the current directory,
  $HOME/.commandability/, or /etc/commandability/.

  Environment variables can override config values with the COMMANDABILITY_ prefix.
  Example: COMMANDABILITY_SERVER_HTTP_ADDR=:9090

Commands:
  start           Start the server
  stop            Stop the running server
  seed            Load a fixture into the configured stores
  delete-reports  Delete reports and their stored objects for an account
  journal         Print recent entries of the deletion journal
  hash-secret     Generate an argon2id hash for an account secret
  version         Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./commandability.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
