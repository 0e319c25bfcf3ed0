package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/dirsync/internal/plan"
)

var errPlansDiffer = errors.New("plans differ")

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect saved plans",
	}
	cmd.AddCommand(newPlanDiffCmd())
	return cmd
}

func newPlanDiffCmd() *cobra.Command {
	var exitOnDiff bool
	cmd := &cobra.Command{
		Use:   "diff <from> <to>",
		Short: "Compare two saved plans",
		Long: `Compare two plans saved with 'dirsync sync --dry-run --plan-out <file>' and
print a unified diff of their decisions. Each action and warning is one
canonical JSON line, so the diff shows exactly which departments and users
would be treated differently.

Examples:
  dirsync plan diff monday.json tuesday.json
  dirsync plan diff --exit-code reviewed.json current.json`,
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlanDiff(cmd, args[0], args[1], exitOnDiff)
		},
	}
	cmd.Flags().BoolVar(&exitOnDiff, "exit-code", false, "Exit with status 1 when the plans differ")
	return cmd
}

func runPlanDiff(cmd *cobra.Command, fromPath, toPath string, exitOnDiff bool) error {
	from, err := plan.Load(fromPath)
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("%s: %w", fromPath, err))
	}
	to, err := plan.Load(toPath)
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("%s: %w", toPath, err))
	}

	diff, err := plan.Diff(from, to, fromPath, toPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if diff == "" {
		fmt.Fprintf(out, "Plans are identical (%s).\n", to.Rev)
		return nil
	}
	fmt.Fprintf(out, "rev %s -> %s\n", from.Rev, to.Rev)
	fmt.Fprint(out, diff)
	if exitOnDiff {
		return withCode(1, errPlansDiffer)
	}
	return nil
}
