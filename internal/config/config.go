package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket"`
}

// Remote contains configuration for the remote task-list service.
type Remote struct {
	BaseURL               string   `toml:"base_url"`
	Account               string   `toml:"account"`
	AuthToken             string   `toml:"auth_token"`
	TokenFile             string   `toml:"token_file"`
	PrimaryDomains        []string `toml:"primary_domains"`
	TimeoutSeconds        int      `toml:"timeout_seconds"`
	ConnectTimeoutSeconds int      `toml:"connect_timeout_seconds"`
	UserAgent             string   `toml:"user_agent"`
}

// Sync contains configuration for sync scheduling and session locking.
type Sync struct {
	IntervalMinutes int    `toml:"interval_minutes"`
	LockFile        string `toml:"lock_file"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	SyncSuccess    bool   `toml:"sync_success"`
	SyncErrors     bool   `toml:"sync_errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Config encapsulates all configuration values for notesync.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and socket locations
//   - Remote: task-list service endpoint and account credentials
//   - Sync: scheduling interval and session lock
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and rotation
type Config struct {
	Paths         Paths         `toml:"paths"`
	Remote        Remote        `toml:"remote"`
	Sync          Sync          `toml:"sync"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("notesync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the local note store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "notes.db")
}

// DaemonLockPath returns the lock file guarding a single daemon instance.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.DataDir, "notesyncd.lock")
}

// SyncLockPath returns the lock file guarding a single sync session per store.
func (c *Config) SyncLockPath() string {
	if strings.TrimSpace(c.Sync.LockFile) != "" {
		return c.Sync.LockFile
	}
	return filepath.Join(c.Paths.DataDir, "sync.lock")
}

// SyncInterval returns the automatic sync period, or zero when disabled.
func (c *Config) SyncInterval() time.Duration {
	if c.Sync.IntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Sync.IntervalMinutes) * time.Minute
}

// RemoteTimeout returns the per-request timeout for the remote service.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// RemoteConnectTimeout returns the dial timeout for the remote service.
func (c *Config) RemoteConnectTimeout() time.Duration {
	return time.Duration(c.Remote.ConnectTimeoutSeconds) * time.Second
}

// HasCredentials reports whether an account and a token source are configured.
func (c *Config) HasCredentials() bool {
	if strings.TrimSpace(c.Remote.Account) == "" {
		return false
	}
	return strings.TrimSpace(c.Remote.AuthToken) != "" || strings.TrimSpace(c.Remote.TokenFile) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
