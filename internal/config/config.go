package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lherron/dirsync/internal/db"
	"github.com/lherron/dirsync/internal/domain"
)

// DefaultPasswordHash is the admin system's stock bcrypt hash. Synced users
// get it as a must-reset sentinel unless DEFAULT_USER_PASSWORD_HASH is set.
const DefaultPasswordHash = "$2a$10$7JB720yubVSZvUI0rEqK/.VqGOZTH.ulu33dHOiBE8ByOhJIrdAu2"

// Config represents the application configuration
type Config struct {
	Driver string   `yaml:"driver" env:"DIRSYNC_DRIVER"`
	DSN    string   `yaml:"dsn" env:"DIRSYNC_DSN"`
	DB     DBConfig `yaml:"db"`

	SnapshotDir string `yaml:"snapshot_dir" env:"DIRSYNC_SNAPSHOT_DIR"`

	DefaultRoleID    int64    `yaml:"default_role_id" env:"DIRSYNC_DEFAULT_ROLE_ID"`
	PasswordHash     string   `yaml:"password_hash" env:"DEFAULT_USER_PASSWORD_HASH"`
	PasswordHashFile string   `yaml:"-" env:"DEFAULT_USER_PASSWORD_HASH_FILE,file"`
	Provenance       string   `yaml:"provenance" env:"DIRSYNC_PROVENANCE"`
	AnchorID         int64    `yaml:"anchor_id" env:"DIRSYNC_ANCHOR_ID"`
	ProtectedLogins  []string `yaml:"protected_logins" env:"DIRSYNC_PROTECTED_LOGINS" envSeparator:","`
	Workers          int      `yaml:"workers" env:"DIRSYNC_WORKERS"`

	LogLevel  string `yaml:"log_level" env:"DIRSYNC_LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"DIRSYNC_LOG_FORMAT"`
	Output    string `yaml:"output" env:"DIRSYNC_OUTPUT"`

	WebhookURLs []string `yaml:"webhook_urls" env:"DIRSYNC_WEBHOOK_URLS" envSeparator:","`
	MetricsFile string   `yaml:"metrics_file" env:"DIRSYNC_METRICS_FILE"`
	ManifestDir string   `yaml:"manifest_dir" env:"DIRSYNC_MANIFEST_DIR"`
	EventsFile  string   `yaml:"events_file" env:"DIRSYNC_EVENTS_FILE"`
}

// DBConfig holds the MySQL connection pieces used when no DSN is given.
type DBConfig struct {
	Host         string `yaml:"host" env:"DB_HOST"`
	Port         string `yaml:"port" env:"DB_PORT"`
	User         string `yaml:"user" env:"DB_USER"`
	Password     string `yaml:"password" env:"DB_PASSWORD"`
	PasswordFile string `yaml:"-" env:"DB_PASSWORD_FILE,file"`
	Name         string `yaml:"name" env:"DB_NAME"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Driver:          db.DriverMySQL,
		DB:              DBConfig{Host: "localhost", Port: "3306"},
		SnapshotDir:     ".",
		DefaultRoleID:   2,
		PasswordHash:    DefaultPasswordHash,
		Provenance:      "dirsync",
		AnchorID:        100,
		ProtectedLogins: []string{"admin"},
		Workers:         4,
		LogLevel:        "info",
		LogFormat:       "text",
		Output:          "table",
	}
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables (DIRSYNC_*, DB_*, *_FILE variants)
// 2. .env.local then .env (dotenv), walking up parent directories
// 3. configPath, or ~/.config/dirsync/config.yaml when empty (YAML)
// 4. Built-in defaults
// Flags are applied by the CLI on top of the result.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAMLConfig(cfg, configPath); err != nil {
		return nil, err
	}

	// godotenv never overrides variables that are already set, so the
	// more specific file is loaded first.
	for _, name := range []string{".env.local", ".env"} {
		if envPath := findEnvFile(name); envPath != "" {
			if err := godotenv.Load(envPath); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.DB.PasswordFile != "" && cfg.DB.Password == "" {
		cfg.DB.Password = strings.TrimSpace(cfg.DB.PasswordFile)
	}
	if cfg.PasswordHashFile != "" {
		cfg.PasswordHash = strings.TrimSpace(cfg.PasswordHashFile)
	}
	cfg.PasswordHashFile, cfg.DB.PasswordFile = "", ""

	return cfg, nil
}

// loadYAMLConfig merges a YAML file into cfg. A missing default file is not
// an error; a missing explicit file is.
func loadYAMLConfig(cfg *Config, configPath string) error {
	explicit := configPath != ""
	if !explicit {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		configPath = filepath.Join(homeDir, ".config", "dirsync", "config.yaml")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", configPath, err)
	}
	return nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if err := domain.ValidateDriver(c.Driver); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid workers: %d (must be >= 0)", c.Workers)
	}
	if strings.TrimSpace(c.PasswordHash) == "" {
		return errors.New("password hash sentinel must not be empty")
	}
	if c.DefaultRoleID <= 0 {
		return fmt.Errorf("invalid default role id: %d", c.DefaultRoleID)
	}
	if c.AnchorID < 0 {
		return fmt.Errorf("invalid anchor department id: %d", c.AnchorID)
	}
	return nil
}

// DataSource returns the DSN for the configured driver. For mysql without
// an explicit DSN it is assembled from the DB_* pieces.
func (c *Config) DataSource() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	switch c.Driver {
	case db.DriverMySQL:
		if c.DB.Name == "" {
			return "", errors.New("no database configured: set DIRSYNC_DSN or DB_NAME")
		}
		mc := mysql.NewConfig()
		mc.User = c.DB.User
		mc.Passwd = c.DB.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.DB.Host, c.DB.Port)
		mc.DBName = c.DB.Name
		return mc.FormatDSN(), nil
	case db.DriverSQLite:
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, ".local", "share", "dirsync", "target.db"), nil
	default:
		return "", domain.ValidateDriver(c.Driver)
	}
}

// Anchor returns the anchor department id, or nil when roots stay at the top.
func (c *Config) Anchor() *int64 {
	if c.AnchorID == 0 {
		return nil
	}
	id := c.AnchorID
	return &id
}

// findEnvFile searches for name starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path if found, empty string otherwise.
func findEnvFile(name string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		if _, err := os.Stat(name); err == nil {
			return name
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, name)
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		if dir == homeDir {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}
