// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, flag overrides, logger construction and
// target database opening to reduce boilerplate across commands.
package appctx

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lherron/dirsync/internal/config"
	"github.com/lherron/dirsync/internal/db"
	"github.com/lherron/dirsync/internal/logging"
	"github.com/lherron/dirsync/internal/render"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration with flag overrides applied
	Config *config.Config

	// DB is the opened target database (nil if NeedsDB is false)
	DB *db.DB

	// Log writes to the command's stderr at the configured level
	Log *logrus.Logger

	// Format is the validated output format
	Format render.Format
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
	}
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsDB indicates whether to open the target database.
	NeedsDB bool

	// SkipMigrationCheck lets commands that manage the schema open a
	// sqlite target with pending migrations.
	SkipMigrationCheck bool

	// CheckSchema verifies the admin tables and columns exist.
	CheckSchema bool

	// Override applies command-specific flags before validation.
	Override func(cfg *config.Config)
}

// DefaultOptions returns default options (DB required, schema checked).
func DefaultOptions() Options {
	return Options{
		NeedsDB:     true,
		CheckSchema: true,
	}
}

// ConfigError means the configuration or a flag is unusable.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// DatabaseError means the target database could not be opened or is not
// in a usable state.
type DatabaseError struct {
	Err error
}

func (e *DatabaseError) Error() string { return e.Err.Error() }
func (e *DatabaseError) Unwrap() error { return e.Err }

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// The database is closed automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	app := &App{}

	cfg, err := config.Load(flagString(cmd, "config"))
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to load config: %w", err)}
	}
	applyRootFlags(cmd, cfg)
	if opts.Override != nil {
		opts.Override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("invalid config: %w", err)}
	}
	app.Config = cfg

	app.Format, err = render.ParseFormat(cfg.Output)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	app.Log, err = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	if !opts.NeedsDB {
		return app, nil
	}

	dsn, err := cfg.DataSource()
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	database, err := db.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, &DatabaseError{Err: err}
	}
	app.DB = database
	app.Log.WithFields(logrus.Fields{"driver": database.Driver(), "target": database.Path()}).Debug("target opened")

	if !opts.SkipMigrationCheck {
		if err := database.RequiresMigrationError(); err != nil {
			app.Close()
			return nil, &DatabaseError{Err: err}
		}
	}
	if opts.CheckSchema {
		if err := database.CheckSchema(cmd.Context()); err != nil {
			app.Close()
			return nil, &DatabaseError{Err: err}
		}
	}

	return app, nil
}

// applyRootFlags copies explicitly set global flags over the loaded config.
func applyRootFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, ok := changedString(cmd, "driver"); ok {
		cfg.Driver = v
	}
	if v, ok := changedString(cmd, "dsn"); ok {
		cfg.DSN = v
	}
	if v, ok := changedString(cmd, "log-level"); ok {
		cfg.LogLevel = v
	}
	if v, ok := changedString(cmd, "log-format"); ok {
		cfg.LogFormat = v
	}
	if v, ok := changedString(cmd, "output"); ok {
		cfg.Output = v
	}
}

func flagString(cmd *cobra.Command, name string) string {
	f := cmd.Flag(name)
	if f == nil {
		return ""
	}
	return f.Value.String()
}

func changedString(cmd *cobra.Command, name string) (string, bool) {
	f := cmd.Flag(name)
	if f == nil || !f.Changed {
		return "", false
	}
	return f.Value.String(), true
}
