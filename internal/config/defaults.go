package config

const (
	defaultConfigPath            = "~/.config/notesync/config.toml"
	defaultDataDir               = "~/.local/share/notesync"
	defaultLogDir                = "~/.local/share/notesync/logs"
	defaultRemoteBaseURL         = "https://mail.google.com/tasks/"
	defaultRemoteTimeoutSeconds  = 15
	defaultRemoteConnectSeconds  = 10
	defaultRemoteUserAgent       = "notesync/dev"
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogMaxSizeMB          = 20
	defaultLogMaxBackups         = 5
	defaultLogMaxAgeDays         = 30
	envAuthToken                 = "NOTESYNC_AUTH_TOKEN"
	envAccount                   = "NOTESYNC_ACCOUNT"
	socketFileName               = "notesync.sock"
	maxSyncIntervalMinutes       = 7 * 24 * 60
	maxRemoteTimeoutSeconds      = 600
	maxNotificationTimeoutSecond = 120
)

func defaultPrimaryDomains() []string {
	return []string{"gmail.com", "googlemail.com"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Remote: Remote{
			BaseURL:               defaultRemoteBaseURL,
			PrimaryDomains:        defaultPrimaryDomains(),
			TimeoutSeconds:        defaultRemoteTimeoutSeconds,
			ConnectTimeoutSeconds: defaultRemoteConnectSeconds,
			UserAgent:             defaultRemoteUserAgent,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			SyncSuccess:    false,
			SyncErrors:     true,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}
