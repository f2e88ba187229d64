package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Commandability/commandability-web-sub001/internal/adapter/outbound/memory"
	"github.com/Commandability/commandability-web-sub001/internal/config"
	"github.com/Commandability/commandability-web-sub001/internal/domain/deletion"
	"github.com/Commandability/commandability-web-sub001/internal/port/inbound"
	"github.com/Commandability/commandability-web-sub001/internal/service"
)

var deleteReportsCmd = &cobra.Command{
	Use:   "delete-reports --email <email> (--id <report-id>... | --all)",
	Short: "Delete reports and their stored objects for an account",
	Long: `Delete report records and their stored objects on behalf of an account.

The account secret is required, exactly as for a member-initiated deletion.
It is read from the COMMANDABILITY_SECRET environment variable, or from the
first line of stdin when the variable is unset.

The result is printed as JSON. The command exits non-zero when the secret
is rejected or when some stored objects could not be deleted.

Examples:
  # Delete two reports
  printf '%s' "$SECRET" | commandability delete-reports --email chief@station7.org --id r1 --id r2

  # Delete every report of the account
  COMMANDABILITY_SECRET=... commandability delete-reports --email chief@station7.org --all`,
	Args: cobra.NoArgs,
	RunE: runDeleteReports,
}

var (
	deleteEmail string
	deleteIDs   []string
	deleteAll   bool
)

func init() {
	deleteReportsCmd.Flags().StringVar(&deleteEmail, "email", "", "account email")
	deleteReportsCmd.Flags().StringSliceVar(&deleteIDs, "id", nil, "report id to delete (repeatable)")
	deleteReportsCmd.Flags().BoolVar(&deleteAll, "all", false, "delete every report of the account")
	_ = deleteReportsCmd.MarkFlagRequired("email")
	deleteReportsCmd.MarkFlagsMutuallyExclusive("id", "all")
	deleteReportsCmd.MarkFlagsOneRequired("id", "all")
	rootCmd.AddCommand(deleteReportsCmd)
}

func runDeleteReports(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	secret := os.Getenv("COMMANDABILITY_SECRET")
	if secret == "" {
		if secret, err = readSecret(cmd.InOrStdin()); err != nil {
			return err
		}
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

	authProvider := memory.NewAuthProvider(cfg.Auth.AuthAccounts(), logger)
	defer authProvider.Close()

	var deletionOpts []service.DeletionOption
	deletionJournal, err := openJournal(cfg.Journal, logger)
	if err != nil {
		return err
	}
	if deletionJournal != nil {
		defer deletionJournal.Close()
		deletionOpts = append(deletionOpts, service.WithJournal(deletionJournal))
	}

	deleter := service.NewDeletionService(authProvider, b.docs, b.objects, logger, deletionOpts...)
	result, err := deleteReports(ctx, authProvider, deleter, deleteEmail, secret, deleteIDs, deleteAll)
	if err != nil {
		return err
	}
	return reportDeletion(cmd.OutOrStdout(), result)
}

// reportDeleter is the part of the deletion service the command needs.
type reportDeleter interface {
	Delete(ctx context.Context, req deletion.Request) (*deletion.Result, error)
}

// deleteReports signs in as email and runs the deletion as that identity.
func deleteReports(ctx context.Context, control inbound.SessionControl, deleter reportDeleter, email, secret string, ids []string, all bool) (*deletion.Result, error) {
	identity, err := control.SignIn(ctx, email, secret)
	if err != nil {
		return nil, fmt.Errorf("sign-in failed: %w", err)
	}
	defer control.SignOut()

	return deleter.Delete(ctx, deletion.Request{
		Identity:  identity,
		Secret:    secret,
		TargetIDs: ids,
		All:       all,
	})
}

// reportDeletion prints result and turns a rejected or partial outcome
// into an error.
func reportDeletion(w io.Writer, result *deletion.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	switch {
	case result.Rejected():
		return fmt.Errorf("reauthentication rejected: %s", result.FieldErrors[deletion.PasswordField])
	case result.Partial():
		return fmt.Errorf("%d stored objects could not be deleted", len(result.FailedObjects))
	}
	return nil
}
