package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lherron/dirsync/internal/cli/appctx"
	"github.com/lherron/dirsync/internal/db"
)

type migrateOptions struct {
	dryRun bool
	status bool
}

func newMigrateCmd() *cobra.Command {
	opts := &migrateOptions{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update a local sqlite3 target schema",
		Long: `Migrate applies any pending SQL migrations to a sqlite3 target.

The sqlite3 target mirrors the admin system's sys_dept, sys_user and
sys_user_role tables for local runs and rehearsals. Migrations are embedded
in the binary and tracked in the schema_migrations table. Each migration is
applied exactly once, so the command is safe to run repeatedly.

MySQL targets belong to the admin system and are never migrated here.

Use --dry-run to see which migrations would be applied without running them.
Use --status to show the current migration status.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: appctx.WithApp(appctx.Options{NeedsDB: true, SkipMigrationCheck: true}, func(app *appctx.App, cmd *cobra.Command, args []string) error {
			return runMigrate(app, cmd, opts)
		}),
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Show which migrations would be applied without running them")
	cmd.Flags().BoolVar(&opts.status, "status", false, "Show current migration status")
	return cmd
}

func runMigrate(app *appctx.App, cmd *cobra.Command, opts *migrateOptions) error {
	out := cmd.OutOrStdout()

	if opts.status {
		return showMigrationStatus(out, app.DB)
	}
	if opts.dryRun {
		return showPendingMigrations(out, app.DB)
	}

	applied, err := app.DB.MigrateWithInfo()
	if err != nil {
		return migrateError("failed to run migrations", err)
	}

	if len(applied) == 0 {
		fmt.Fprintln(out, "Database is up to date. No migrations to apply.")
		return nil
	}
	for _, m := range applied {
		app.Log.WithField("migration", m).Info("migration applied")
		fmt.Fprintf(out, "✓ Applied migration: %s\n", m)
	}
	fmt.Fprintf(out, "\nApplied %d migration(s).\n", len(applied))
	return nil
}

func migrateError(msg string, err error) error {
	if errors.Is(err, db.ErrUnmanagedSchema) {
		return withCode(exitUsage, err)
	}
	return withCode(exitDB, fmt.Errorf("%s: %w", msg, err))
}

func showMigrationStatus(out io.Writer, database *db.DB) error {
	applied, pending, err := database.MigrationStatus()
	if err != nil {
		return migrateError("failed to get migration status", err)
	}

	if len(applied) == 0 && len(pending) == 0 {
		fmt.Fprintln(out, "No migrations found.")
		return nil
	}

	if len(applied) > 0 {
		fmt.Fprintln(out, "Applied migrations:")
		for _, m := range applied {
			fmt.Fprintf(out, "  ✓ %s\n", m)
		}
	}

	if len(pending) > 0 {
		if len(applied) > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, "Pending migrations:")
		for _, m := range pending {
			fmt.Fprintf(out, "  ○ %s\n", m)
		}
	}

	return nil
}

func showPendingMigrations(out io.Writer, database *db.DB) error {
	_, pending, err := database.MigrationStatus()
	if err != nil {
		return migrateError("failed to get migration status", err)
	}

	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending migrations. Database is up to date.")
		return nil
	}

	fmt.Fprintln(out, "Pending migrations (would be applied):")
	for _, m := range pending {
		fmt.Fprintf(out, "  ○ %s\n", m)
	}
	fmt.Fprintf(out, "\nTotal: %d migration(s) would be applied.\n", len(pending))

	return nil
}
