package cli

import (
	"github.com/spf13/cobra"
)

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage login state",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired login sessions and blacklist entries",
		Long: `Deletes Kakao login sessions older than AUTH_SESSION_TTL and, for the
SQLite blacklist, revoked refresh tokens that have expired anyway. The
Redis blacklist expires its keys by itself.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.auth.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			a.printer.print(res)
			return nil
		},
	})

	return cmd
}
