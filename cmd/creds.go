// -- cmd/creds.go --
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/xkilldash9x/igpilot/internal/creds"
)

// newCredsCmd builds the `creds` command group for managing the account
// password in the OS keyring.
func newCredsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "creds",
		Short: "Manage the account password in the OS keyring",
	}
	cmd.AddCommand(newCredsSetCmd())
	return cmd
}

func newCredsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [username]",
		Short: "Store the account password in the OS keyring",
		Long: `Prompts for the password and stores it in the OS keyring, so runs
never need it in a config file or on the command line. The username
defaults to account.username from the config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := viper.GetString("account.username")
			if len(args) == 1 {
				username = args[0]
			}
			if username == "" {
				return errors.New("no username given and account.username is not configured")
			}

			password, err := promptPassword(fmt.Sprintf("Password for %s: ", username))
			if err != nil {
				return err
			}
			if err := creds.StorePassword(username, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored password for %q in the OS keyring.\n", username)
			return nil
		},
	}
}

// promptPassword reads a password without echoing when stdin is a terminal,
// and falls back to a plain line read when it is piped.
func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
