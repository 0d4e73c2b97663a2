// Package cli implements ecocityctl, the operator tool that works directly
// on the server's database: password accounts for the token login endpoint
// and cleanup of expired login state.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/ecocity-backend/internal/config"
	sqliteRepo "github.com/sakif/ecocity-backend/internal/repository/sqlite"
	"github.com/sakif/ecocity-backend/internal/server"
	"github.com/sakif/ecocity-backend/internal/service"
)

// app is what every subcommand runs against. It is filled in by the root
// command's PersistentPreRunE and released by whoever executes the command,
// since cobra skips post-run hooks when RunE fails.
type app struct {
	dbPath string
	output string

	db      *sqliteRepo.DB
	closer  io.Closer
	auth    *service.AuthService
	printer *printer
}

// newRootCmd creates the root command. The caller must close the returned app
// once Execute returns, whatever the outcome.
func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "ecocityctl",
		Short: "Administer the EcoCity backend database",
		Long: `ecocityctl manages the EcoCity backend's SQLite database directly.

It reads the same environment (and .env file) as the server, so JWT_SECRET
must be set. Use --db to point at a database other than DB_PATH.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context(), cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (default: DB_PATH)")
	rootCmd.PersistentFlags().StringVarP(&a.output, "output", "o", "text", "Output format: text, json")

	rootCmd.AddCommand(newUserCmd(a))
	rootCmd.AddCommand(newSessionsCmd(a))

	return rootCmd, a
}

func (a *app) open(ctx context.Context, out io.Writer) error {
	if a.output != "text" && a.output != "json" {
		return fmt.Errorf("unknown output format %q", a.output)
	}
	a.printer = newPrinter(out, a.output)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", cfg.DBPath, err)
	}

	deps, closer, err := server.AuthDeps(ctx, cfg, db)
	if err != nil {
		db.Close()
		return err
	}

	// CLI output is the result; logs would only get in the way.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a.db = db
	a.closer = closer
	a.auth = service.NewAuthService(deps, logger)
	return nil
}

func (a *app) close() error {
	if a.closer != nil {
		a.closer.Close()
		a.closer = nil
	}
	if a.db != nil {
		err := a.db.Close()
		a.db = nil
		return err
	}
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := execute(); err != nil {
		os.Exit(1)
	}
}

func execute() error {
	cmd, a := newRootCmd()
	defer a.close()
	return cmd.Execute()
}
