package appctx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lherron/dirsync/internal/config"
	"github.com/lherron/dirsync/internal/db"
	"github.com/lherron/dirsync/internal/render"
	"github.com/lherron/dirsync/internal/testutil"
)

// newTestCmd builds a command carrying the root's global flags and
// isolates config lookup from the developer's home directory.
func newTestCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(home)

	cmd := &cobra.Command{Use: "test"}
	for _, name := range []string{"config", "driver", "dsn", "log-level", "log-format", "output"} {
		cmd.Flags().String(name, "", name)
	}
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	cmd.SetContext(context.Background())
	return cmd
}

func TestBootstrap_ConfigOnly(t *testing.T) {
	cmd := newTestCmd(t, "--driver", "sqlite3", "--output", "json", "--log-level", "debug")

	app, err := Bootstrap(cmd, Options{NeedsDB: false})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.DB != nil {
		t.Error("DB should be nil when NeedsDB is false")
	}
	if app.Config.Driver != db.DriverSQLite {
		t.Errorf("expected driver flag to override config, got %q", app.Config.Driver)
	}
	if app.Format != render.FormatJSON {
		t.Errorf("expected json format, got %q", app.Format)
	}
	if app.Log == nil || !app.Log.IsLevelEnabled(logrus.DebugLevel) {
		t.Error("expected debug logger")
	}
}

func TestBootstrap_UnsetFlagsKeepConfig(t *testing.T) {
	cmd := newTestCmd(t)
	home, _ := os.UserHomeDir()
	configDir := filepath.Join(home, ".config", "dirsync")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatal(err)
	}
	testutil.WriteFile(t, configDir, "config.yaml", "driver: sqlite3\noutput: yaml\n")

	app, err := Bootstrap(cmd, Options{})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if app.Config.Driver != db.DriverSQLite {
		t.Errorf("expected driver from config file, got %q", app.Config.Driver)
	}
	if app.Format != render.FormatYAML {
		t.Errorf("expected yaml format from config file, got %q", app.Format)
	}
}

func TestBootstrap_WithDB(t *testing.T) {
	_, dbPath := testutil.TempDB(t)
	cmd := newTestCmd(t, "--driver", "sqlite3", "--dsn", dbPath, "--log-level", "silent")

	app, err := Bootstrap(cmd, DefaultOptions())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if app.DB == nil {
		t.Fatal("DB should be opened")
	}
	if app.DB.Path() != dbPath {
		t.Errorf("expected target %s, got %s", dbPath, app.DB.Path())
	}

	app.Close()
	app.Close()
	if app.DB != nil {
		t.Error("DB should be nil after Close")
	}
}

func TestBootstrap_Override(t *testing.T) {
	cmd := newTestCmd(t, "--driver", "sqlite3")

	app, err := Bootstrap(cmd, Options{Override: func(cfg *config.Config) {
		cfg.Workers = 9
	}})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if app.Config.Workers != 9 {
		t.Errorf("expected override to apply, got %d workers", app.Config.Workers)
	}

	_, err = Bootstrap(cmd, Options{Override: func(cfg *config.Config) {
		cfg.Workers = -1
	}})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError for invalid override, got %v", err)
	}
}

func TestBootstrap_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		opts    Options
		wantCfg bool
	}{
		{"unknown driver", []string{"--driver", "oracle"}, Options{}, true},
		{"unknown format", []string{"--output", "csv"}, Options{}, true},
		{"unknown log level", []string{"--log-level", "loud"}, Options{}, true},
		{"missing explicit config", []string{"--config", "/nonexistent/dirsync.yaml"}, Options{}, true},
		{"mysql without database", []string{"--driver", "mysql"}, Options{NeedsDB: true}, true},
		{"unmigrated sqlite", []string{"--driver", "sqlite3", "--dsn", "fresh.db"}, Options{NeedsDB: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_NAME", "")
			cmd := newTestCmd(t, tt.args...)
			_, err := Bootstrap(cmd, tt.opts)
			if err == nil {
				t.Fatal("expected error")
			}
			var cfgErr *ConfigError
			var dbErr *DatabaseError
			if tt.wantCfg && !errors.As(err, &cfgErr) {
				t.Errorf("expected ConfigError, got %T: %v", err, err)
			}
			if !tt.wantCfg && !errors.As(err, &dbErr) {
				t.Errorf("expected DatabaseError, got %T: %v", err, err)
			}
		})
	}
}

func TestBootstrap_SkipMigrationCheck(t *testing.T) {
	cmd := newTestCmd(t, "--driver", "sqlite3", "--dsn", "fresh.db")

	app, err := Bootstrap(cmd, Options{NeedsDB: true, SkipMigrationCheck: true})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if _, pending, err := app.DB.MigrationStatus(); err != nil || len(pending) == 0 {
		t.Errorf("expected pending migrations, got %v (err %v)", pending, err)
	}
}

func TestWithApp_ClosesDB(t *testing.T) {
	_, dbPath := testutil.TempDB(t)
	cmd := newTestCmd(t, "--driver", "sqlite3", "--dsn", dbPath, "--log-level", "silent")

	var seen *App
	run := WithApp(DefaultOptions(), func(app *App, cmd *cobra.Command, args []string) error {
		seen = app
		if app.DB == nil {
			t.Error("DB should be open inside the run function")
		}
		return nil
	})
	if err := run(cmd, nil); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if seen == nil || seen.DB != nil {
		t.Error("DB should be closed after the run function returns")
	}
}
