package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/lherron/dirsync/internal/cli/appctx"
	"github.com/lherron/dirsync/internal/config"
	"github.com/lherron/dirsync/internal/events"
	"github.com/lherron/dirsync/internal/metrics"
	"github.com/lherron/dirsync/internal/plan"
	"github.com/lherron/dirsync/internal/reconcile"
	"github.com/lherron/dirsync/internal/render"
	"github.com/lherron/dirsync/internal/source"
	"github.com/lherron/dirsync/internal/store"
	"github.com/lherron/dirsync/internal/webhooks"
)

type syncOptions struct {
	dryRun      bool
	yes         bool
	verbose     bool
	porcelain   bool
	snapshotDir string
	workers     int
	anchor      int64
	role        int64
	planOut     string
	ifPlan      string
	eventsOut   string
	manifestDir string
	metricsFile string
	webhooks    []string
}

func newSyncCmd() *cobra.Command {
	o := &syncOptions{}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the directory snapshot into the target",
		Long: `Sync reads the snapshot in --snapshot-dir and creates or updates departments,
users and default role grants so the target matches it.

Departments are processed parents first; a department whose parent cannot be
found is skipped with a warning and picked up on a later run. A duplicate
department id or a parent cycle aborts the department phase; users are still
synced against the departments already linked in the target.

Without --yes the plan is previewed and confirmation is requested on stdin.
--if-plan applies only when the previewed plan revision matches the one given,
so a plan reviewed with --dry-run --plan-out is exactly what gets applied.

Examples:
  dirsync sync --dry-run --plan-out plan.json
  dirsync sync --yes --if-plan sha256:4f2c...
  dirsync sync --driver sqlite3 --dsn ./target.db --snapshot-dir ./export -o json --yes`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return appctx.WithApp(o.appOptions(cmd), func(app *appctx.App, cmd *cobra.Command, args []string) error {
				return runSync(cmd.Context(), app, cmd, o)
			})(cmd, args)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&o.dryRun, "dry-run", false, "Compute the plan without writing to the target")
	f.BoolVarP(&o.yes, "yes", "y", false, "Skip the confirmation prompt")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "Include the action log in table output")
	f.BoolVar(&o.porcelain, "porcelain", false, "Tab-separated tables and compact JSON for scripts")
	f.StringVar(&o.snapshotDir, "snapshot-dir", "", "Directory holding the snapshot CSV files")
	f.IntVar(&o.workers, "workers", 0, "Parallel user writes")
	f.Int64Var(&o.anchor, "anchor", 0, "Target department that snapshot roots are attached under (0 keeps roots at the top)")
	f.Int64Var(&o.role, "role", 0, "Role granted to created users")
	f.StringVar(&o.planOut, "plan-out", "", "Save the run's plan to this file")
	f.StringVar(&o.ifPlan, "if-plan", "", "Apply only if the plan revision matches")
	f.StringVar(&o.eventsOut, "events-out", "", "Append NDJSON audit events of applied writes to this file")
	f.StringVar(&o.manifestDir, "manifest-dir", "", "Directory for the run manifest (default: snapshot dir)")
	f.StringVar(&o.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")
	f.StringSliceVar(&o.webhooks, "webhook", nil, "Notification webhook URL (repeatable)")
	return cmd
}

// appOptions applies the sync flags that were set on top of the loaded config.
func (o *syncOptions) appOptions(cmd *cobra.Command) appctx.Options {
	opts := appctx.DefaultOptions()
	f := cmd.Flags()
	opts.Override = func(cfg *config.Config) {
		if f.Changed("snapshot-dir") {
			cfg.SnapshotDir = o.snapshotDir
		}
		if f.Changed("workers") {
			cfg.Workers = o.workers
		}
		if f.Changed("anchor") {
			cfg.AnchorID = o.anchor
		}
		if f.Changed("role") {
			cfg.DefaultRoleID = o.role
		}
		if f.Changed("events-out") {
			cfg.EventsFile = o.eventsOut
		}
		if f.Changed("manifest-dir") {
			cfg.ManifestDir = o.manifestDir
		}
		if f.Changed("metrics-file") {
			cfg.MetricsFile = o.metricsFile
		}
		if f.Changed("webhook") {
			cfg.WebhookURLs = o.webhooks
		}
	}
	return opts
}

type syncRunner struct {
	app    *appctx.App
	source *source.CSV
	target *store.Store
	runID  string
}

func (r *syncRunner) engine(dryRun bool, ev *events.Writer) *reconcile.Engine {
	cfg := r.app.Config
	return reconcile.New(r.source, r.target, reconcile.Options{
		DryRun:          dryRun,
		RunID:           r.runID,
		DefaultRoleID:   cfg.DefaultRoleID,
		PasswordHash:    cfg.PasswordHash,
		Provenance:      cfg.Provenance,
		AnchorID:        cfg.Anchor(),
		ProtectedLogins: cfg.ProtectedLogins,
		Workers:         cfg.Workers,
		Logger:          r.app.Log,
		Events:          ev,
	})
}

func runSync(ctx context.Context, app *appctx.App, cmd *cobra.Command, o *syncOptions) error {
	cfg := app.Config
	r := &syncRunner{
		app:    app,
		source: source.NewCSV(cfg.SnapshotDir, app.Log),
		target: store.New(app.DB, cfg.Provenance),
		runID:  uuid.NewString(),
	}

	if o.dryRun {
		summary, err := r.engine(true, nil).Run(ctx)
		if summary == nil {
			return runError(err)
		}
		if o.ifPlan != "" && summary.PlanRev != o.ifPlan {
			err = multierror.Append(err, &plan.RevMismatchError{Expected: o.ifPlan, Actual: summary.PlanRev})
		}
		return finishSync(ctx, app, cmd, o, summary, err)
	}

	if !o.yes || o.ifPlan != "" {
		preview, err := r.engine(true, nil).Run(ctx)
		if preview == nil {
			return runError(err)
		}
		if o.ifPlan != "" && preview.PlanRev != o.ifPlan {
			return runError(&plan.RevMismatchError{Expected: o.ifPlan, Actual: preview.PlanRev})
		}
		if !o.yes {
			stderr := cmd.ErrOrStderr()
			fmt.Fprintf(stderr, "Plan %s\n%s\n", preview.PlanRev, plan.FormatText(preview))
			if preview.Fatal != nil {
				fmt.Fprintf(stderr, "FATAL: %s\n", preview.Fatal.Message)
			}
			if !preview.HasChanges() {
				fmt.Fprintln(stderr, "Target already matches the snapshot.")
				return finishSync(ctx, app, cmd, o, preview, err)
			}
			if !confirm(cmd, fmt.Sprintf("Apply these changes to %s?", app.DB.Path())) {
				return errAborted
			}
		}
	}

	var ev *events.Writer
	if cfg.EventsFile != "" {
		f, err := os.OpenFile(cfg.EventsFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return withCode(exitUsage, fmt.Errorf("failed to open events file: %w", err))
		}
		defer f.Close()
		ev = events.NewWriter(f, r.runID)
	}

	summary, err := r.engine(false, ev).Run(ctx)
	if summary == nil {
		return runError(err)
	}
	return finishSync(ctx, app, cmd, o, summary, err)
}

// finishSync renders the summary and runs the post-run outputs. Failures of
// the outputs are logged; only the plan file can fail an otherwise clean run.
func finishSync(ctx context.Context, app *appctx.App, cmd *cobra.Command, o *syncOptions, s *plan.Summary, runErr error) error {
	cfg := app.Config
	log := app.Log.WithField("run_id", s.RunID)

	renderer := render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: app.Format, Verbose: o.verbose, Porcelain: o.porcelain})
	if err := renderer.RenderSummary(s); err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}

	var outErr error
	if o.planOut != "" {
		if err := plan.FromSummary(s).Save(o.planOut); err != nil {
			outErr = err
		} else {
			log.WithField("path", o.planOut).Info("plan saved")
		}
	}

	if cfg.MetricsFile != "" {
		rec := metrics.New()
		rec.Observe(s)
		if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
			log.WithError(err).Warn("metrics not written")
		}
	}

	if s.Mode == plan.ModeApply {
		dir := cfg.ManifestDir
		if dir == "" {
			dir = cfg.SnapshotDir
		}
		m := newSyncManifest(s, app.DB.Driver(), app.DB.Path(), absPath(cfg.SnapshotDir))
		if path, err := writeManifest(dir, m); err != nil {
			log.WithError(err).Error("manifest not written")
		} else {
			log.WithField("path", path).Info("manifest written")
		}
	}

	if len(cfg.WebhookURLs) > 0 {
		webhooks.New(cfg.WebhookURLs, log).Notify(ctx, s)
	}

	if runErr != nil {
		return runError(runErr)
	}
	return outErr
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
