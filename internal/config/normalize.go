package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeRemote(); err != nil {
		return err
	}
	if err := c.normalizeSync(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	socket := strings.TrimSpace(c.Paths.SocketPath)
	if socket == "" {
		socket = filepath.Join(c.Paths.DataDir, socketFileName)
	}
	if c.Paths.SocketPath, err = expandPath(socket); err != nil {
		return fmt.Errorf("paths.socket: %w", err)
	}
	return nil
}

func (c *Config) normalizeRemote() error {
	if value, ok := os.LookupEnv(envAuthToken); ok && strings.TrimSpace(value) != "" && strings.TrimSpace(c.Remote.TokenFile) == "" {
		c.Remote.AuthToken = value
	}
	if value, ok := os.LookupEnv(envAccount); ok && strings.TrimSpace(value) != "" {
		c.Remote.Account = value
	}
	c.Remote.AuthToken = strings.TrimSpace(c.Remote.AuthToken)
	c.Remote.Account = strings.ToLower(strings.TrimSpace(c.Remote.Account))

	c.Remote.BaseURL = strings.TrimSpace(c.Remote.BaseURL)
	if c.Remote.BaseURL == "" {
		c.Remote.BaseURL = defaultRemoteBaseURL
	}
	if !strings.HasSuffix(c.Remote.BaseURL, "/") {
		c.Remote.BaseURL += "/"
	}

	if tokenFile := strings.TrimSpace(c.Remote.TokenFile); tokenFile != "" {
		expanded, err := expandPath(tokenFile)
		if err != nil {
			return fmt.Errorf("remote.token_file: %w", err)
		}
		c.Remote.TokenFile = expanded
	}

	domains := make([]string, 0, len(c.Remote.PrimaryDomains))
	seen := make(map[string]struct{}, len(c.Remote.PrimaryDomains))
	for _, domain := range c.Remote.PrimaryDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if _, ok := seen[domain]; ok {
			continue
		}
		seen[domain] = struct{}{}
		domains = append(domains, domain)
	}
	if len(domains) == 0 {
		domains = defaultPrimaryDomains()
	}
	c.Remote.PrimaryDomains = domains

	c.Remote.UserAgent = strings.TrimSpace(c.Remote.UserAgent)
	if c.Remote.UserAgent == "" {
		c.Remote.UserAgent = defaultRemoteUserAgent
	}
	return nil
}

func (c *Config) normalizeSync() error {
	lockFile := strings.TrimSpace(c.Sync.LockFile)
	if lockFile == "" {
		c.Sync.LockFile = ""
		return nil
	}
	expanded, err := expandPath(lockFile)
	if err != nil {
		return fmt.Errorf("sync.lock_file: %w", err)
	}
	c.Sync.LockFile = expanded
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
	if c.Logging.MaxAgeDays < 0 {
		c.Logging.MaxAgeDays = 0
	}
}
