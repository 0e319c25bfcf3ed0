package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// isolate points HOME and cwd at a fresh directory and clears the given
// variables for the duration of the test, including values godotenv sets.
func isolate(t *testing.T, keys ...string) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	keys = append(keys,
		"DIRSYNC_DRIVER", "DIRSYNC_DSN", "DIRSYNC_WORKERS", "DIRSYNC_LOG_LEVEL", "DIRSYNC_ANCHOR_ID",
		"DIRSYNC_PROTECTED_LOGINS", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_PASSWORD_FILE",
		"DB_NAME", "DEFAULT_USER_PASSWORD_HASH", "DEFAULT_USER_PASSWORD_HASH_FILE",
	)
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	oldCwd, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(oldCwd) })
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}
	return tmpDir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Driver != "mysql" {
		t.Errorf("expected driver mysql, got %q", cfg.Driver)
	}
	if cfg.Workers != 4 || cfg.DefaultRoleID != 2 || cfg.AnchorID != 100 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.ProtectedLogins) != 1 || cfg.ProtectedLogins[0] != "admin" {
		t.Errorf("expected protected logins [admin], got %v", cfg.ProtectedLogins)
	}
	if cfg.PasswordHash != DefaultPasswordHash {
		t.Errorf("expected default password hash, got %q", cfg.PasswordHash)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_Precedence(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".config", "dirsync", "config.yaml"), `
driver: sqlite3
workers: 8
log_level: debug
anchor_id: 0
db:
  host: yaml-host
`)
	writeFile(t, filepath.Join(home, ".env"), "DIRSYNC_WORKERS=6\nDB_HOST=dotenv-host\nDB_NAME=from-env-file\n")
	writeFile(t, filepath.Join(home, ".env.local"), "DB_HOST=local-host\n")
	t.Setenv("DIRSYNC_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Driver != "sqlite3" {
		t.Errorf("expected YAML driver, got %q", cfg.Driver)
	}
	if cfg.Workers != 6 {
		t.Errorf("expected .env to override YAML workers, got %d", cfg.Workers)
	}
	if cfg.DB.Host != "local-host" {
		t.Errorf("expected .env.local to win over .env, got %q", cfg.DB.Host)
	}
	if cfg.DB.Name != "from-env-file" {
		t.Errorf("expected DB_NAME from .env, got %q", cfg.DB.Name)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected environment to override YAML log level, got %q", cfg.LogLevel)
	}
	if cfg.Anchor() != nil {
		t.Errorf("expected anchor disabled, got %d", *cfg.Anchor())
	}
}

func TestLoad_SecretFiles(t *testing.T) {
	home := isolate(t)
	secret := filepath.Join(home, "db_password")
	writeFile(t, secret, "s3cret\n")
	hash := filepath.Join(home, "hash")
	writeFile(t, hash, "$2a$10$fromfile\n")
	t.Setenv("DB_PASSWORD_FILE", secret)
	t.Setenv("DEFAULT_USER_PASSWORD_HASH_FILE", hash)
	t.Setenv("DIRSYNC_PROTECTED_LOGINS", "admin,ry")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DB.Password != "s3cret" {
		t.Errorf("expected password from file, got %q", cfg.DB.Password)
	}
	if cfg.PasswordHash != "$2a$10$fromfile" {
		t.Errorf("expected hash from file, got %q", cfg.PasswordHash)
	}
	if len(cfg.ProtectedLogins) != 2 || cfg.ProtectedLogins[1] != "ry" {
		t.Errorf("expected [admin ry], got %v", cfg.ProtectedLogins)
	}
}

func TestLoad_ExplicitConfigMustExist(t *testing.T) {
	home := isolate(t)
	if _, err := Load(filepath.Join(home, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}

	bad := filepath.Join(home, "bad.yaml")
	writeFile(t, bad, "workers: [")
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), "failed to parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Driver = "postgres" }, "invalid driver"},
		{"negative workers", func(c *Config) { c.Workers = -1 }, "invalid workers"},
		{"empty sentinel", func(c *Config) { c.PasswordHash = " " }, "password hash"},
		{"bad role", func(c *Config) { c.DefaultRoleID = 0 }, "invalid default role id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDataSource(t *testing.T) {
	cfg := Defaults()
	if _, err := cfg.DataSource(); err == nil {
		t.Error("expected error without DB_NAME or DSN")
	}

	cfg.DB = DBConfig{Host: "db.example", Port: "3306", User: "sync", Password: "pw", Name: "ruoyi"}
	dsn, err := cfg.DataSource()
	if err != nil {
		t.Fatalf("DataSource failed: %v", err)
	}
	if !strings.HasPrefix(dsn, "sync:pw@tcp(db.example:3306)/ruoyi") {
		t.Errorf("unexpected dsn %q", dsn)
	}

	cfg.DSN = "explicit"
	if dsn, _ := cfg.DataSource(); dsn != "explicit" {
		t.Errorf("expected explicit DSN to win, got %q", dsn)
	}
}

func TestFindEnvFile_InParentDir(t *testing.T) {
	home := isolate(t)
	childDir := filepath.Join(home, "parent", "child")
	if err := os.MkdirAll(childDir, 0755); err != nil {
		t.Fatal(err)
	}
	parentEnv := filepath.Join(home, "parent", ".env.local")
	writeFile(t, filepath.Join(home, ".env.local"), "TEST=home")
	writeFile(t, parentEnv, "TEST=parent")
	if err := os.Chdir(childDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvFile(".env.local")
	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedResolved, _ := filepath.EvalSymlinks(parentEnv)
	resultResolved, _ := filepath.EvalSymlinks(result)
	if resultResolved != expectedResolved {
		t.Errorf("expected closest .env.local (%s), got %s", expectedResolved, resultResolved)
	}
}

func TestFindEnvFile_NotFound(t *testing.T) {
	isolate(t)
	if result := findEnvFile(".env.local"); result != "" {
		t.Errorf("expected empty string when no .env.local found, got %s", result)
	}
}
