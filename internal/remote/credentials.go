package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"notesync/internal/config"
	"notesync/internal/services"
)

// CredentialsProvider supplies the account and its auth token. Token is
// called with invalidate set after the service rejected the previous token.
type CredentialsProvider interface {
	Account() string
	Token(ctx context.Context, invalidate bool) (string, error)
}

// StaticCredentials serves a fixed token.
type StaticCredentials struct {
	account string
	token   string
}

// NewStaticCredentials returns credentials backed by a fixed token.
func NewStaticCredentials(account, token string) StaticCredentials {
	return StaticCredentials{account: strings.TrimSpace(account), token: strings.TrimSpace(token)}
}

// Account returns the account name.
func (c StaticCredentials) Account() string { return c.account }

// Token returns the fixed token.
func (c StaticCredentials) Token(context.Context, bool) (string, error) {
	if c.token == "" {
		return "", services.Wrap(services.ErrConfiguration, "credentials", "read token", "auth token is empty", nil)
	}
	return c.token, nil
}

// FileCredentials reads the token from a file. The token is cached until it
// is invalidated, so an external refresher can rotate the file between syncs.
type FileCredentials struct {
	account string
	path    string

	mu     sync.Mutex
	cached string
}

// NewFileCredentials returns credentials backed by a token file.
func NewFileCredentials(account, path string) *FileCredentials {
	return &FileCredentials{account: strings.TrimSpace(account), path: path}
}

// Account returns the account name.
func (c *FileCredentials) Account() string { return c.account }

// Token returns the cached token, re-reading the file when invalidated.
func (c *FileCredentials) Token(_ context.Context, invalidate bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != "" && !invalidate {
		return c.cached, nil
	}
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "credentials", "read token file", c.path, err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", services.Wrap(services.ErrConfiguration, "credentials", "read token file", c.path+" is empty", nil)
	}
	c.cached = token
	return token, nil
}

// CredentialsFromConfig selects the credentials source configured for the
// remote section.
func CredentialsFromConfig(cfg *config.Config) (CredentialsProvider, error) {
	if cfg == nil {
		return nil, errors.New("credentials: config is nil")
	}
	account := cfg.Remote.Account
	if strings.TrimSpace(account) == "" {
		return nil, fmt.Errorf("%w: remote.account is not set", services.ErrConfiguration)
	}
	if cfg.Remote.TokenFile != "" {
		return NewFileCredentials(account, cfg.Remote.TokenFile), nil
	}
	if cfg.Remote.AuthToken != "" {
		return NewStaticCredentials(account, cfg.Remote.AuthToken), nil
	}
	return nil, fmt.Errorf("%w: set remote.auth_token, remote.token_file or NOTESYNC_AUTH_TOKEN", services.ErrConfiguration)
}
