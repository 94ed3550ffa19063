// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Default client configuration values
const (
	DefaultHTTPSPort          = 443
	DefaultHTTPPort           = 80
	DefaultMaxRetries         = 0 // unlimited stream reconnects while watchers remain
	DefaultBackoffMinDelay    = 1 * time.Second
	DefaultBackoffMaxDelay    = 60 * time.Second
	DefaultBackoffDelayFactor = 2
	DefaultOperationTimeout   = 60 * time.Second
	DefaultUseTLS             = true
	DefaultVerifyCertificate  = true
	DefaultPrettyPrintLogs    = false
	DefaultAutoRefresh        = true
	DefaultWatchQueueSize     = 100

	// MinRefreshInterval is the shortest delay between automatic refreshes
	MinRefreshInterval = 60 * time.Second
)

// Security limits for XML processing and logging
const (
	MaxXMLSizeForLogging = 1 * 1024 * 1024 // 1MB
	MaxSensitiveFields   = 1000
)

// Logging message constants
const (
	XMLTooLargeMessage     = "[XML TOO LARGE FOR LOGGING]"
	XMLTooManySensitiveMsg = "[XML CONTAINS TOO MANY SENSITIVE FIELDS]"
)

// sensitiveAttributes are redacted from request and response payloads before
// they are logged.
var sensitiveAttributes = []string{"inPassword", "cookie", "outCookie", "inCookie", "pwd"}

var defaultRedactionPattern = regexp.MustCompile(`\b(` + strings.Join(sensitiveAttributes, "|") + `)\s*=\s*"[^"]*"`)

// SessionState is the position of a Client in the login state machine
type SessionState int

const (
	StateLoggedOut SessionState = iota
	StateLoggingIn
	StateLoggedIn
	StateRefreshing
)

// String returns the string representation of a SessionState
func (s SessionState) String() string {
	switch s {
	case StateLoggedOut:
		return "logged-out"
	case StateLoggingIn:
		return "logging-in"
	case StateLoggedIn:
		return "logged-in"
	case StateRefreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Client is one authenticated session against a management endpoint.
//
// A Client holds the auth cookie, the negotiated server version and the
// refresh timer, owns the transaction buffer and the event watch engine, and
// dispatches every RPC. It is safe for concurrent use; transactions are
// owned by the session, so concurrent callers share one open transaction.
type Client struct {
	// RWMutex to synchronize access to session state
	mu sync.RWMutex

	// Connection parameters
	Host     string
	Port     int
	username string // unexported for security
	password string // unexported for security

	// TLS options
	UseTLS            bool
	VerifyCertificate bool

	// ProxyURL routes requests through an HTTP proxy when set
	ProxyURL string

	// OperationTimeout bounds a single RPC exchange
	OperationTimeout time.Duration

	// Refresh behaviour
	AutoRefresh bool
	AutoRelogin bool

	// Event stream reconnect configuration
	MaxRetries         int
	BackoffMinDelay    time.Duration
	BackoffMaxDelay    time.Duration
	BackoffDelayFactor float64

	// WatchQueueSize is the default capacity of a watcher queue
	WatchQueueSize int

	// MaxFilterComponents caps the children of one filter element built by
	// the query helpers
	MaxFilterComponents int

	// Session state, guarded by mu
	state         SessionState
	cookie        string
	sessionID     string
	refreshPeriod time.Duration
	privileges    []string
	domains       string
	version       *Version
	refreshTimer  *time.Timer

	// generation changes whenever the session is torn down; an aaaLogin or
	// aaaRefresh reply is applied only if it has not changed meanwhile
	generation uint64

	// Transaction buffer, guarded by txMu
	txMu         sync.Mutex
	txInProgress bool
	txBuffer     *ConfigMap

	registry   *Registry
	factory    *Factory
	httpClient *http.Client
	watch      *watchEngine

	manager     *SessionManager
	managerName string

	// Logging configuration
	logger            Logger
	prettyPrintLogs   bool
	redactionPatterns []*regexp.Regexp
}

// NewClient creates a client for the endpoint at host.
//
// No network activity happens until Login.
//
// Example:
//
//	client, err := ucs.NewClient("10.0.0.10",
//	    ucs.Username("admin"),
//	    ucs.Password("secret"),
//	    ucs.VerifyCertificate(false),
//	)
//	if err != nil {
//	    log.Fatal(err) // configuration error
//	}
//	if err := client.Login(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Logout(ctx)
//
//	sp, err := client.ConfigResolveDn(ctx, "org-root/ls-web01")
func NewClient(host string, opts ...func(*Client)) (*Client, error) {
	client := &Client{
		Host:                strings.TrimSpace(host),
		UseTLS:              DefaultUseTLS,
		VerifyCertificate:   DefaultVerifyCertificate,
		OperationTimeout:    DefaultOperationTimeout,
		AutoRefresh:         DefaultAutoRefresh,
		MaxRetries:          DefaultMaxRetries,
		BackoffMinDelay:     DefaultBackoffMinDelay,
		BackoffMaxDelay:     DefaultBackoffMaxDelay,
		BackoffDelayFactor:  DefaultBackoffDelayFactor,
		WatchQueueSize:      DefaultWatchQueueSize,
		MaxFilterComponents: DefaultMaxFilterComponents,
		logger:              &NoOpLogger{},
		prettyPrintLogs:     DefaultPrettyPrintLogs,
		redactionPatterns:   []*regexp.Regexp{defaultRedactionPattern},
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.Port == 0 {
		client.Port = client.defaultPort()
	}
	if client.registry == nil {
		client.registry = DefaultRegistry()
	}
	client.factory = NewFactory(client.registry)

	if err := client.validateConfig(); err != nil {
		return nil, err
	}
	if err := client.setupHTTPClient(); err != nil {
		return nil, err
	}
	client.watch = newWatchEngine(client)

	client.logger.Info(context.Background(), "UCS client created",
		"host", client.Host,
		"port", client.Port,
		"tls", client.UseTLS)

	return client, nil
}

func (c *Client) defaultPort() int {
	if c.UseTLS {
		return DefaultHTTPSPort
	}
	return DefaultHTTPPort
}

// validateConfig validates client configuration before any exchange
func (c *Client) validateConfig() error {
	if c.Host == "" {
		return newValidationError("NewClient", "host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return newValidationError("NewClient", "invalid port: %d (must be 1-65535)", c.Port)
	}
	if c.OperationTimeout <= 0 {
		return newValidationError("NewClient", "operation timeout must be positive, got: %v", c.OperationTimeout)
	}
	if c.MaxRetries < 0 {
		return newValidationError("NewClient", "max retries must be non-negative, got: %d", c.MaxRetries)
	}
	if c.BackoffMinDelay <= 0 {
		return newValidationError("NewClient", "backoff min delay must be positive, got: %v", c.BackoffMinDelay)
	}
	if c.BackoffMaxDelay <= c.BackoffMinDelay {
		return newValidationError("NewClient", "backoff max delay (%v) must be greater than min delay (%v)",
			c.BackoffMaxDelay, c.BackoffMinDelay)
	}
	if c.BackoffDelayFactor < 1.0 {
		return newValidationError("NewClient", "backoff delay factor must be >= 1.0, got: %f", c.BackoffDelayFactor)
	}
	if c.WatchQueueSize < 1 {
		return newValidationError("NewClient", "watch queue size must be positive, got: %d", c.WatchQueueSize)
	}
	if c.MaxFilterComponents < 2 {
		return newValidationError("NewClient", "max filter components must be at least 2, got: %d", c.MaxFilterComponents)
	}
	if c.ProxyURL != "" {
		if _, err := url.Parse(c.ProxyURL); err != nil {
			return newValidationError("NewClient", "invalid proxy URL: %v", err)
		}
	}

	if c.UseTLS && !c.VerifyCertificate {
		c.logger.Warn(context.Background(), "TLS certificate verification disabled",
			"host", c.Host,
			"security_risk", "Man-in-the-Middle attacks possible",
			"recommendation", "Use only in testing environments")
	}
	if !c.UseTLS {
		c.logger.Warn(context.Background(), "TLS disabled - connection is not encrypted",
			"host", c.Host,
			"security_risk", "Credentials and data transmitted in clear text",
			"recommendation", "Enable TLS for production use")
	}
	if !c.HasCredentials() {
		c.logger.Warn(context.Background(), "No credentials configured",
			"host", c.Host,
			"message", "login will be rejected")
	}
	return nil
}

// setupHTTPClient prepares the HTTP client. Redirects are never followed by
// the HTTP stack; the transport decides whether to re-issue the request.
func (c *Client) setupHTTPClient() error {
	if c.httpClient != nil {
		hc := *c.httpClient
		hc.CheckRedirect = noRedirect
		c.httpClient = &hc
		return nil
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	//nolint:gosec // verification is a caller decision, warned about in validateConfig
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: !c.VerifyCertificate}
	if c.ProxyURL != "" {
		u, err := url.Parse(c.ProxyURL)
		if err != nil {
			return newValidationError("NewClient", "invalid proxy URL: %v", err)
		}
		tr.Proxy = http.ProxyURL(u)
	}
	c.httpClient = &http.Client{Transport: tr, CheckRedirect: noRedirect}
	return nil
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// URI returns the endpoint every request is posted to. The port is omitted
// when it is the scheme default.
func (c *Client) URI() string {
	scheme := "https"
	if !c.UseTLS {
		scheme = "http"
	}
	host := c.Host
	if c.Port != c.defaultPort() {
		host = joinHostPort(c.Host, c.Port)
	}
	return scheme + "://" + host + "/nuova"
}

func joinHostPort(host string, port int) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return host + ":" + strconv.Itoa(port)
}

// Registry returns the schema registry the client resolves classes against
func (c *Client) Registry() *Registry { return c.registry }

// Factory returns the class factory used to materialize responses
func (c *Client) Factory() *Factory { return c.factory }

// Logger returns the configured logger
func (c *Client) Logger() Logger { return c.logger }

// Username returns the configured username
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// HasCredentials reports whether a username and password are configured
// without exposing them.
func (c *Client) HasCredentials() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username != "" && c.password != ""
}

// State returns the current session state
func (c *Client) State() SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsLoggedIn reports whether the session holds a cookie
func (c *Client) IsLoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cookie != ""
}

// Cookie returns the session cookie, "" when logged out
func (c *Client) Cookie() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cookie
}

// SessionID returns the server session id
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// RefreshPeriod returns the cookie lifetime announced by the server
func (c *Client) RefreshPeriod() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshPeriod
}

// Privileges returns a copy of the privileges granted to the session
func (c *Client) Privileges() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.privileges...)
}

// Domains returns the domains granted to the session
func (c *Client) Domains() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.domains
}

// Version returns the negotiated server version, nil when unknown
func (c *Client) Version() *Version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Name returns the name the client is registered under in its SessionManager
func (c *Client) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.managerName != "" {
		return c.managerName
	}
	return c.Host
}

// Login authenticates with aaaLogin.
//
// On success the cookie, session id, refresh period, privileges and server
// version are stored, the client is registered with its SessionManager, and
// the refresh timer starts when AutoRefresh is set. When the login reply
// carries no version, it is read from the running system firmware.
// On failure every session field is cleared.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	if c.Host == "" {
		c.mu.Unlock()
		return newValidationError(MethodAaaLogin, "host cannot be empty")
	}
	c.stopRefreshTimerLocked()
	c.state = StateLoggingIn
	user, pass := c.username, c.password
	gen := c.generation
	c.mu.Unlock()

	c.logger.Info(ctx, "UCS login", "host", c.Host, "username", user)

	m := NewExternalMethod(c.registry, MethodAaaLogin).
		SetParam("inName", user).
		SetParam("inPassword", pass)
	resp, err := c.Dispatch(ctx, m, WriteAll)
	if err != nil {
		c.clearSession(true)
		c.logger.Error(ctx, "UCS login failed", "host", c.Host, "error", err.Error())
		return err
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return c.sessionEnded(ctx, MethodAaaLogin)
	}
	c.applyLoginResponse(resp)
	versionMissing := c.version == nil
	c.mu.Unlock()

	if versionMissing {
		v, err := c.resolveFirmwareVersion(ctx)
		if err != nil {
			c.logger.Warn(ctx, "UCS server version unknown", "host", c.Host, "error", err.Error())
		} else {
			c.mu.Lock()
			c.version = v
			c.mu.Unlock()
		}
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return c.sessionEnded(ctx, MethodAaaLogin)
	}
	c.state = StateLoggedIn
	c.startRefreshTimerLocked()
	manager := c.manager
	c.mu.Unlock()

	if manager != nil {
		manager.Register(c.Name(), c)
	}

	c.logger.Info(ctx, "UCS login succeeded",
		"host", c.Host,
		"session_id", c.SessionID(),
		"version", versionString(c.Version()))
	return nil
}

// applyLoginResponse stores the outputs of aaaLogin / aaaRefresh.
// PRECONDITION: caller holds c.mu.
func (c *Client) applyLoginResponse(resp *ExternalMethod) {
	c.cookie = resp.Param("outCookie")
	if id := resp.Param("outSessionId"); id != "" {
		c.sessionID = id
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(resp.Param("outRefreshPeriod"))); err == nil && secs > 0 {
		c.refreshPeriod = time.Duration(secs) * time.Second
	}
	c.privileges = splitFlags(resp.Param("outPriv"))
	if d := resp.Param("outDomains"); d != "" {
		c.domains = d
	}
	if raw := resp.Param("outVersion"); raw != "" {
		if v, err := ParseVersion(raw); err == nil {
			c.version = v
		} else {
			c.logger.Warn(context.Background(), "Unparsable server version", "version", raw)
		}
	}
}

// resolveFirmwareVersion reads the running system firmware version
func (c *Client) resolveFirmwareVersion(ctx context.Context) (*Version, error) {
	mo, err := c.ConfigResolveDn(ctx, "sys/mgmt/fw-system")
	if err != nil {
		return nil, err
	}
	if mo == nil {
		return nil, ErrObjectNotFound
	}
	return ParseVersion(mo.Get("Version"))
}

// Refresh renews the session cookie with aaaRefresh.
//
// The refresh timer is stopped first. On failure, Refresh logs in again when
// autoRelogin is set and otherwise clears the session and returns the error.
// On success the cookie, privileges and refresh period are updated and the
// timer restarts. A reply arriving after Logout is dropped and Refresh
// returns ErrNotLoggedIn.
func (c *Client) Refresh(ctx context.Context, autoRelogin bool) error {
	c.mu.Lock()
	c.stopRefreshTimerLocked()
	cookie, user, pass := c.cookie, c.username, c.password
	if cookie == "" {
		c.mu.Unlock()
		if autoRelogin {
			return c.Login(ctx)
		}
		return ErrNotLoggedIn
	}
	c.state = StateRefreshing
	gen := c.generation
	c.mu.Unlock()

	m := NewExternalMethod(c.registry, MethodAaaRefresh).
		SetParam("inName", user).
		SetParam("inPassword", pass).
		SetParam("inCookie", cookie)
	resp, err := c.Dispatch(ctx, m, WriteAll)
	c.mu.RLock()
	ended := c.generation != gen
	c.mu.RUnlock()
	if ended {
		return c.sessionEnded(ctx, MethodAaaRefresh)
	}
	if err != nil {
		c.logger.Warn(ctx, "UCS refresh failed",
			"host", c.Host,
			"auto_relogin", autoRelogin,
			"error", err.Error())
		c.clearSession(true)
		if autoRelogin {
			return c.Login(ctx)
		}
		return err
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return c.sessionEnded(ctx, MethodAaaRefresh)
	}
	c.applyLoginResponse(resp)
	c.state = StateLoggedIn
	c.startRefreshTimerLocked()
	c.mu.Unlock()

	c.logger.Debug(ctx, "UCS session refreshed", "host", c.Host, "refresh_period", c.RefreshPeriod().String())
	return nil
}

// Logout ends the session.
//
// The refresh timer and the watch engine are stopped first. The cookie is
// cleared only when aaaLogout succeeds, so a failed logout can be retried;
// all other session fields are cleared regardless. A successful logout
// unregisters the client from its SessionManager.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.stopRefreshTimerLocked()
	c.generation++
	cookie := c.cookie
	c.mu.Unlock()

	c.watch.stop()

	if cookie == "" {
		c.clearSession(true)
		c.unregister()
		return nil
	}

	m := NewExternalMethod(c.registry, MethodAaaLogout).SetParam("inCookie", cookie)
	_, err := c.Dispatch(ctx, m, WriteAll)
	c.clearSession(err == nil)
	if err != nil {
		c.logger.Error(ctx, "UCS logout failed", "host", c.Host, "error", err.Error())
		return err
	}
	c.unregister()
	c.logger.Info(ctx, "UCS logout succeeded", "host", c.Host)
	return nil
}

// sessionEnded drops an aaaLogin or aaaRefresh reply that arrived after
// the session was logged out
func (c *Client) sessionEnded(ctx context.Context, method string) error {
	c.logger.Warn(ctx, "UCS reply discarded, session ended meanwhile", "host", c.Host, "method", method)
	return fmt.Errorf("%s: %w", method, ErrNotLoggedIn)
}

func (c *Client) unregister() {
	c.mu.RLock()
	manager := c.manager
	c.mu.RUnlock()
	if manager != nil {
		manager.Unregister(c.Name())
	}
}

// clearSession resets the session fields; the cookie only when withCookie
func (c *Client) clearSession(withCookie bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRefreshTimerLocked()
	c.generation++
	if withCookie {
		c.cookie = ""
	}
	c.sessionID = ""
	c.refreshPeriod = 0
	c.privileges = nil
	c.domains = ""
	c.version = nil
	c.state = StateLoggedOut
}

// refreshDelay returns max(refreshPeriod - 60s, 60s)
func refreshDelay(period time.Duration) time.Duration {
	d := period - MinRefreshInterval
	if d < MinRefreshInterval {
		return MinRefreshInterval
	}
	return d
}

// startRefreshTimerLocked arms the refresh timer when AutoRefresh is set.
// PRECONDITION: caller holds c.mu.
func (c *Client) startRefreshTimerLocked() {
	if !c.AutoRefresh || c.cookie == "" {
		return
	}
	delay := refreshDelay(c.refreshPeriod)
	c.refreshTimer = time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.OperationTimeout)
		defer cancel()
		if err := c.Refresh(ctx, c.AutoRelogin); err != nil {
			c.logger.Error(ctx, "UCS automatic refresh failed", "host", c.Host, "error", err.Error())
		}
	})
}

// stopRefreshTimerLocked cancels a pending refresh.
// PRECONDITION: caller holds c.mu.
func (c *Client) stopRefreshTimerLocked() {
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
}

// prepareXMLForLogging redacts credentials and cookies and optionally
// indents the document.
func (c *Client) prepareXMLForLogging(doc string) string {
	if len(doc) > MaxXMLSizeForLogging {
		return XMLTooLargeMessage
	}

	sensitiveCount := 0
	for _, attr := range sensitiveAttributes {
		sensitiveCount += strings.Count(doc, attr+"=")
	}
	if sensitiveCount > MaxSensitiveFields {
		c.logger.Warn(context.Background(), "Too many sensitive fields detected",
			"count", sensitiveCount,
			"max", MaxSensitiveFields)
		return XMLTooManySensitiveMsg
	}

	redacted := c.redactSensitiveData(doc)
	if c.prettyPrintLogs {
		return indentXML(redacted)
	}
	return redacted
}

// redactSensitiveData replaces sensitive attribute values with [REDACTED]
func (c *Client) redactSensitiveData(doc string) string {
	result := doc
	for _, pattern := range c.redactionPatterns {
		result = pattern.ReplaceAllString(result, `$1="[REDACTED]"`)
	}
	return result
}

func versionString(v *Version) string {
	if v == nil {
		return ""
	}
	return v.String()
}
