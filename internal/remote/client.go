package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"notesync/internal/config"
	"notesync/internal/entity"
	"notesync/internal/logging"
	"notesync/internal/services"
)

const (
	defaultBaseURL        = "https://mail.google.com/tasks/"
	defaultUserAgent      = "notesync/dev"
	defaultTimeout        = 15 * time.Second
	defaultConnectTimeout = 10 * time.Second

	// MaxPendingActions is the largest batch the client queues before it
	// flushes on its own.
	MaxPendingActions = 10

	reloginAfter = 5 * time.Minute
)

// Config describes the remote client configuration.
type Config struct {
	BaseURL        string
	UserAgent      string
	PrimaryDomains []string
	HTTPClient     *http.Client
	Logger         *slog.Logger
	Now            func() time.Time
}

// Client is one protocol session against the task-list service. It is not
// safe for concurrent use; the sync runner owns it for the duration of a run.
type Client struct {
	baseURL        string
	userAgent      string
	primaryDomains map[string]struct{}
	http           *http.Client
	logger         *slog.Logger
	now            func() time.Time

	authenticated bool
	lastAuthAt    time.Time
	account       string
	actionID      int64
	clientVersion int64
	getURL        string
	postURL       string
	pending       []entity.Action
	lastLoginErr  error
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("remote: base url %q needs a scheme and host", base)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	domains := make(map[string]struct{}, len(cfg.PrimaryDomains))
	for _, domain := range cfg.PrimaryDomains {
		if domain = strings.ToLower(strings.TrimSpace(domain)); domain != "" {
			domains[domain] = struct{}{}
		}
	}

	var httpClient http.Client
	if cfg.HTTPClient != nil {
		httpClient = *cfg.HTTPClient
	} else {
		httpClient = http.Client{Timeout: defaultTimeout, Transport: newTransport(defaultConnectTimeout)}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:        base,
		userAgent:      userAgent,
		primaryDomains: domains,
		http:           &httpClient,
		logger:         logging.NewComponentLogger(cfg.Logger, "remote"),
		now:            now,
		actionID:       1,
	}, nil
}

// NewFromConfig builds a Client using the remote section of cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("remote: config is nil")
	}
	httpClient := &http.Client{
		Timeout:   cfg.RemoteTimeout(),
		Transport: newTransport(cfg.RemoteConnectTimeout()),
	}
	return New(Config{
		BaseURL:        cfg.Remote.BaseURL,
		UserAgent:      cfg.Remote.UserAgent,
		PrimaryDomains: cfg.Remote.PrimaryDomains,
		HTTPClient:     httpClient,
		Logger:         logger,
	})
}

func newTransport(connectTimeout time.Duration) http.RoundTripper {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	return transport
}

// Login authenticates the session. It reuses a session younger than five
// minutes for the same account, and otherwise performs the handshake against
// the primary endpoint and then, for accounts outside the primary domains,
// the account's domain endpoint. Each endpoint gets one retry with an
// invalidated token. Login never returns an error; LastLoginError explains a
// false result.
func (c *Client) Login(ctx context.Context, creds CredentialsProvider) bool {
	if creds == nil {
		c.lastLoginErr = services.Wrap(services.ErrConfiguration, "login", "credentials", "no credentials provider", nil)
		return false
	}
	account := strings.ToLower(strings.TrimSpace(creds.Account()))
	if c.authenticated && account == c.account && c.now().Sub(c.lastAuthAt) < reloginAfter {
		return true
	}
	c.authenticated = false
	c.lastLoginErr = nil
	if account == "" {
		c.lastLoginErr = services.Wrap(services.ErrConfiguration, "login", "credentials", "account is empty", nil)
		return false
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		c.lastLoginErr = fmt.Errorf("create cookie jar: %w", err)
		return false
	}
	c.http.Jar = jar

	for _, prefix := range c.endpoints(account) {
		version, err := c.loginEndpoint(ctx, creds, prefix)
		if err != nil {
			c.lastLoginErr = err
			c.logger.Debug("login endpoint rejected",
				logging.String("endpoint", prefix+"ig"),
				logging.Error(err),
			)
			continue
		}
		c.authenticated = true
		c.account = account
		c.lastAuthAt = c.now()
		c.clientVersion = version
		c.getURL = prefix + "ig"
		c.postURL = prefix + "r/ig"
		c.logger.Info("remote login succeeded",
			logging.String("endpoint", c.getURL),
			logging.Int64("client_version", version),
		)
		return true
	}

	logging.WarnWithContext(logging.WithContext(ctx, c.logger), "remote login failed",
		"login_failed",
		logging.String("account", account),
		logging.Error(c.lastLoginErr),
		logging.String(logging.FieldErrorHint, "check remote.account and the auth token"),
		logging.String(logging.FieldImpact, "sync session cannot start"),
	)
	return false
}

// LastLoginError returns the failure behind the last unsuccessful Login.
func (c *Client) LastLoginError() error { return c.lastLoginErr }

// Authenticated reports whether the session holds a valid login.
func (c *Client) Authenticated() bool { return c.authenticated }

// ClientVersion returns the version captured at login.
func (c *Client) ClientVersion() int64 { return c.clientVersion }

// Logout forgets the session so the next Login performs a full handshake.
func (c *Client) Logout() {
	c.authenticated = false
	c.pending = nil
}

func (c *Client) endpoints(account string) []string {
	prefixes := []string{c.baseURL}
	at := strings.LastIndex(account, "@")
	if at < 0 || at == len(account)-1 {
		return prefixes
	}
	domain := account[at+1:]
	if _, primary := c.primaryDomains[domain]; primary {
		return prefixes
	}
	return append(prefixes, c.baseURL+"a/"+url.PathEscape(domain)+"/")
}

func (c *Client) loginEndpoint(ctx context.Context, creds CredentialsProvider, prefix string) (int64, error) {
	token, err := creds.Token(ctx, false)
	if err == nil {
		version, handshakeErr := c.handshake(ctx, prefix, token)
		if handshakeErr == nil {
			return version, nil
		}
		err = handshakeErr
	}
	c.logger.Debug("retrying login with refreshed token", logging.Error(err))

	token, tokenErr := creds.Token(ctx, true)
	if tokenErr != nil {
		return 0, tokenErr
	}
	return c.handshake(ctx, prefix, token)
}

func (c *Client) handshake(ctx context.Context, prefix, token string) (int64, error) {
	endpoint := prefix + "ig?auth=" + url.QueryEscape(token)
	page, err := c.get(ctx, "login", endpoint)
	if err != nil {
		return 0, err
	}
	blob, err := extractSetup(page)
	if err != nil {
		return 0, err
	}
	if blob.V == 0 {
		return 0, services.Wrap(services.ErrProtocol, "login", "parse setup", "client version missing", nil)
	}
	return blob.V, nil
}

func (c *Client) nextActionID() int64 {
	id := c.actionID
	c.actionID++
	return id
}

func (c *Client) requireLogin(operation string) error {
	if c.authenticated {
		return nil
	}
	return services.Wrap(services.ErrProtocol, operation, "", "not logged in", nil)
}
