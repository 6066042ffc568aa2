package testsupport

import (
	"path/filepath"
	"testing"

	"notesync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SocketPath = filepath.Join(base, "notesync.sock")
	cfgVal.Remote.Account = "tester@gmail.com"
	cfgVal.Remote.AuthToken = "test-token"
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithRemote points the config at a fake remote service.
func WithRemote(fake *FakeRemote) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Remote.BaseURL = fake.BaseURL()
		b.cfg.Remote.AuthToken = fake.Token()
	}
}

// WithAccount overrides the remote account.
func WithAccount(account string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Remote.Account = account
	}
}

// WithNtfyTopic enables notifications against the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
