package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dirsync",
		Short: "Reconcile a directory snapshot into the admin system's department and user tables",
		Long: `dirsync reads a Feishu directory snapshot (feishu_departments.csv and
feishu_users.csv) and brings the admin system's sys_dept, sys_user and
sys_user_role tables in line with it. Departments are matched by their
directory id, users by login name. Runs are idempotent: a second run over
the same snapshot changes nothing.

Exit codes:
  0  success
  2  fatal snapshot problem (duplicate ids, parent cycle, unreadable files, plan mismatch)
  3  usage or configuration error
  4  target database unavailable
  5  one or more writes failed`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default ~/.config/dirsync/config.yaml)")
	cmd.PersistentFlags().String("driver", "", "Target driver: mysql or sqlite3 (overrides DIRSYNC_DRIVER)")
	cmd.PersistentFlags().String("dsn", "", "Target data source name (overrides DIRSYNC_DSN)")
	cmd.PersistentFlags().String("log-level", "", "Log level: silent, error, warn, info, debug")
	cmd.PersistentFlags().String("log-format", "", "Log format: text or json")
	cmd.PersistentFlags().StringP("output", "o", "", "Output format: table, json, yaml, markdown")

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return withCode(exitUsage, err)
	})

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command and exits with the mapped exit code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
