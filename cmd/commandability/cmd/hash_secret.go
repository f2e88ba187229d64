package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Commandability/commandability-web-sub001/internal/domain/auth"
)

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret [secret]",
	Short: "Generate an argon2id hash for an account secret",
	Long: `Generate an argon2id hash of an account secret for use in config.

The output is a PHC string ("$argon2id$v=19$...") which can be used
directly in the auth.accounts[].secret_hash field.

When no argument is given the secret is read from the first line of stdin,
which keeps it out of shell history:
  printf '%s' "$SECRET" | commandability hash-secret

Example:
  commandability hash-secret "correct horse battery staple"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := secretFromArgs(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		hash, err := auth.HashSecret(secret)
		if err != nil {
			return fmt.Errorf("failed to hash secret: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashSecretCmd)
}

// secretFromArgs returns args[0] when present, otherwise the first line
// of in.
func secretFromArgs(args []string, in io.Reader) (string, error) {
	if len(args) > 0 {
		if args[0] == "" {
			return "", errors.New("secret must not be empty")
		}
		return args[0], nil
	}
	return readSecret(in)
}

// readSecret reads one line from in, without its line terminator.
func readSecret(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", errors.New("secret must not be empty")
	}
	return secret, nil
}
