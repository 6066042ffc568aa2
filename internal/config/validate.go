package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRemote() error {
	parsed, err := url.Parse(c.Remote.BaseURL)
	if err != nil {
		return fmt.Errorf("remote.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("remote.base_url must use http or https, got %q", c.Remote.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("remote.base_url must include a host, got %q", c.Remote.BaseURL)
	}
	if account := c.Remote.Account; account != "" && !strings.Contains(account, "@") {
		return fmt.Errorf("remote.account must be an email address, got %q", account)
	}
	if c.Remote.AuthToken != "" && c.Remote.TokenFile != "" {
		return errors.New("remote.auth_token and remote.token_file are mutually exclusive")
	}
	if err := ensureRange("remote.timeout_seconds", c.Remote.TimeoutSeconds, 1, maxRemoteTimeoutSeconds); err != nil {
		return err
	}
	if err := ensureRange("remote.connect_timeout_seconds", c.Remote.ConnectTimeoutSeconds, 1, maxRemoteTimeoutSeconds); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.IntervalMinutes < 0 {
		return errors.New("sync.interval_minutes must be zero (disabled) or positive")
	}
	if c.Sync.IntervalMinutes > maxSyncIntervalMinutes {
		return fmt.Errorf("sync.interval_minutes must be at most %d", maxSyncIntervalMinutes)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	return ensureRange("notifications.request_timeout", c.Notifications.RequestTimeout, 1, maxNotificationTimeoutSecond)
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensureRange(key string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", key, min, max, value)
	}
	return nil
}
