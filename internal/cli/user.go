package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage password accounts",
		Long: `Password accounts can sign in through POST /users/login/.
Kakao accounts are created by the login flow and have no password.`,
	}

	cmd.AddCommand(newUserCreateCmd(a))
	cmd.AddCommand(newUserSetPasswordCmd(a))

	return cmd
}

type passwordFlags struct {
	password string
	stdin    bool
}

func (f *passwordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "Password")
	cmd.Flags().BoolVar(&f.stdin, "password-stdin", false, "Read the password from stdin")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
}

// resolve returns the password from the flag or the first line of stdin.
func (f *passwordFlags) resolve(stdin io.Reader) (string, error) {
	if f.stdin {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading password: %w", err)
		}
		f.password = strings.TrimRight(line, "\r\n")
	}
	if f.password == "" {
		return "", errors.New("a password is required (--password or --password-stdin)")
	}
	return f.password, nil
}

func newUserCreateCmd(a *app) *cobra.Command {
	var pw passwordFlags

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a password account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := pw.resolve(cmd.InOrStdin())
			if err != nil {
				return err
			}

			user, err := a.auth.CreateUser(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}

			a.printer.print(user)
			return nil
		},
	}
	pw.register(cmd)

	return cmd
}

func newUserSetPasswordCmd(a *app) *cobra.Command {
	var pw passwordFlags

	cmd := &cobra.Command{
		Use:   "set-password <username>",
		Short: "Replace the password of an existing account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := pw.resolve(cmd.InOrStdin())
			if err != nil {
				return err
			}

			if err := a.auth.SetPassword(cmd.Context(), args[0], password); err != nil {
				return err
			}

			a.printer.message(fmt.Sprintf("password updated for %s", args[0]))
			return nil
		},
	}
	pw.register(cmd)

	return cmd
}
