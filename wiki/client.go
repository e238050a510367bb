package wiki

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/olavsk/mwclient/metrics"
)

// Default pacing constants. The login cool-down is the fixed anti-brute-force
// sleep applied after a failed credential exchange.
const (
	loginCooldown    = 20 * time.Second
	lagCheckInterval = 30 * time.Second
	lagRetryWait     = 30 * time.Second
)

// Client is one authenticated session against a remote wiki. Exactly one
// identity is active at a time. Reads may run concurrently; login, logout and
// every mutating operation serialize on the session's critical section.
type Client struct {
	site   SiteCapabilities
	config *Config
	http   *http.Client
	logger *slog.Logger

	// mu is the per-session critical section: login, logout, the status
	// check and every mutating call hold it for their full duration.
	mu sync.Mutex

	// stateMu guards the shared mutable session state below. The state is
	// only written inside mu-held sections; concurrent readers take stateMu
	// alone.
	stateMu      sync.RWMutex
	readCookies  map[string]string
	writeCookies map[string]string
	user         *User
	highLimits   bool
	throttle     time.Duration
	maxLag       int
	assertions   int

	// lagMu serializes the replication-lag probe so concurrent callers do
	// not stampede the lag endpoint; they observe lastLagCheck instead.
	lagMu        sync.Mutex
	lastLagCheck time.Time

	statusCounter  int
	statusInterval int

	nsMu       sync.Mutex
	namespaces map[string]int

	// Fixed waits, overridable in tests.
	loginWait time.Duration
	lagWait   time.Duration
}

// NewClient creates a session client for the endpoint in config.
func NewClient(config *Config, logger *slog.Logger) *Client {
	return NewClientForSite(siteForEndpoint(config.BaseURL), config, logger)
}

// NewClientForSite creates a session client with explicit site capabilities,
// e.g. a FarmSite.
func NewClientForSite(site SiteCapabilities, config *Config, logger *slog.Logger) *Client {
	config = config.withDefaults()

	// Connection reuse matters here: every operation round-trips to the same
	// host. Compression is handled by the transport when enabled.
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  config.DisableGZIP,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		site:   site,
		config: config,
		http: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		logger:         logger,
		readCookies:    make(map[string]string),
		writeCookies:   make(map[string]string),
		throttle:       config.Throttle,
		maxLag:         config.MaxLag,
		statusInterval: config.StatusInterval,
		loginWait:      loginCooldown,
		lagWait:        lagRetryWait,
	}
}

// Site returns the capabilities the client was built with.
func (c *Client) Site() SiteCapabilities { return c.site }

// Login performs the credential exchange: a one-time login token is fetched
// with an unauthenticated read, then posted back with the credentials. On
// failure the client sleeps a fixed cool-down before surfacing one of
// bad-credentials, unknown-account or unknown-failure.
func (c *Client) Login(ctx context.Context, username, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	params := url.Values{}
	params.Set("action", "query")
	params.Set("meta", "tokens")
	params.Set("type", "login")

	body, err := c.get(ctx, params, "login", scopeRead)
	if err != nil {
		return fmt.Errorf("failed to fetch login token: %w", err)
	}
	if err := checkError(body); err != nil {
		return fmt.Errorf("failed to fetch login token: %w", err)
	}

	tokens, _ := firstElement(body, "tokens")
	loginToken := tokens.str("logintoken")
	if loginToken == "" {
		return &LoginError{Code: CodeLoginFailure, Username: username, Reason: "no login token issued"}
	}

	params = url.Values{}
	params.Set("action", "login")
	params.Set("lgname", username)
	params.Set("lgpassword", password)
	params.Set("lgtoken", loginToken)

	body, err = c.post(ctx, params, "login", scopeRead)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}

	login, _ := firstElement(body, "login")
	result := login.str("result")
	if result != "Success" {
		lerr := &LoginError{Username: username, Reason: login.str("reason")}
		switch result {
		case "WrongPass", "WrongPluginPass", "Failed":
			lerr.Code = CodeBadCredentials
		case "NotExists":
			lerr.Code = CodeUnknownAccount
		default:
			lerr.Code = CodeLoginFailure
			if lerr.Reason == "" {
				lerr.Reason = result
			}
		}
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		c.logger.Warn("login failed", "user", username, "result", result)
		c.sleep(ctx, c.loginWait)
		return lerr
	}

	name := login.str("lgusername")
	if name == "" {
		name = username
	}
	c.stateMu.Lock()
	c.user = &User{Name: name}
	c.stateMu.Unlock()

	// Size future page requests: accounts with the high-request-quota
	// capability get the elevated limit.
	if err := c.refreshUserLocked(ctx); err != nil {
		c.logger.Warn("could not fetch user rights after login", "error", err)
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	c.logger.Info("logged in", "user", name, "site", c.site.Domain())
	return nil
}

// Logout discards the local session state: cookies, identity, caches. It
// performs no network call; the server-side session survives for any other
// holder. Use LogoutEverywhere to invalidate it remotely.
func (c *Client) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetSessionLocked()
	c.logger.Info("logged out locally")
}

// LogoutEverywhere invalidates the server-side session, affecting every
// concurrent holder, then discards local state.
func (c *Client) LogoutEverywhere(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	params := url.Values{}
	params.Set("action", "logout")
	if _, err := c.post(ctx, params, "logout", scopeWrite); err != nil {
		return fmt.Errorf("server-side logout failed: %w", err)
	}
	c.resetSessionLocked()
	c.logger.Info("logged out everywhere")
	return nil
}

func (c *Client) resetSessionLocked() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.readCookies = make(map[string]string)
	c.writeCookies = make(map[string]string)
	c.user = nil
	c.highLimits = false
	c.statusCounter = 0
}

// invalidateWrites drops the write/token cookies after the server reports the
// account blocked. Reads keep working; the next mutation fails fast.
func (c *Client) invalidateWrites() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.writeCookies = make(map[string]string)
}

// CurrentUser returns a copy of the cached identity, or nil when the session
// is anonymous.
func (c *Client) CurrentUser() *User {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return cloneUser(c.user)
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	out := *u
	out.Rights = append([]string(nil), u.Rights...)
	out.Groups = append([]string(nil), u.Groups...)
	return &out
}

// RefreshUserInfo re-fetches the cached rights, groups and edit count for the
// current identity. Caches are only ever refreshed explicitly or by the
// status checker, never by a timer.
func (c *Client) RefreshUserInfo(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshUserLocked(ctx)
}

func (c *Client) refreshUserLocked(ctx context.Context) error {
	c.stateMu.RLock()
	loggedIn := c.user != nil
	c.stateMu.RUnlock()
	if !loggedIn {
		return nil
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("meta", "userinfo")
	params.Set("uiprop", "rights|groups|editcount")

	body, err := c.get(ctx, params, "userinfo", scopeNone)
	if err != nil {
		return err
	}
	if err := checkError(body); err != nil {
		return err
	}

	info, ok := firstElement(body, "userinfo")
	if !ok {
		return &APIError{Code: "emptyresult", Info: "no userinfo in response", Raw: body}
	}
	user := parseUserRecord(info)

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.user != nil {
		user.Name = c.user.Name
	}
	c.user = &user
	c.highLimits = user.HasRight("apihighlimits")
	return nil
}

// hasNewMessages probes the new-notices flag for the current identity.
func (c *Client) hasNewMessages(ctx context.Context) (bool, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("meta", "userinfo")
	params.Set("uiprop", "hasmsg")

	body, err := c.get(ctx, params, "hasmsg", scopeNone)
	if err != nil {
		return false, err
	}
	info, _ := firstElement(body, "userinfo")
	return info.has("messages"), nil
}

// SetThrottle adjusts the minimum delay between mutating calls. Values below
// one second disable throttling.
func (c *Client) SetThrottle(d time.Duration) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.throttle = d
}

// Throttle returns the configured inter-mutation delay.
func (c *Client) Throttle() time.Duration {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.throttle
}

// SetMaxLag adjusts the replication-lag threshold in seconds. Zero or
// negative disables the check.
func (c *Client) SetMaxLag(seconds int) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.maxLag = seconds
}

// SetAssertions configures the assertion flags checked between mutations.
func (c *Client) SetAssertions(flags int) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.assertions = flags
}

// pageLimit is the per-request page size as a string parameter value.
func (c *Client) pageLimit() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return fmt.Sprintf("%d", c.site.PageLimit(c.highLimits))
}

// Namespaces returns the namespace-name map, fetching it on first use. The
// cache is explicit: it only changes via InvalidateNamespaces.
func (c *Client) Namespaces(ctx context.Context) (map[string]int, error) {
	c.nsMu.Lock()
	defer c.nsMu.Unlock()
	if c.namespaces != nil {
		out := make(map[string]int, len(c.namespaces))
		for k, v := range c.namespaces {
			out[k] = v
		}
		return out, nil
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("meta", "siteinfo")
	params.Set("siprop", "namespaces")

	body, err := c.get(ctx, params, "namespaces", scopeNone)
	if err != nil {
		return nil, err
	}
	if err := checkError(body); err != nil {
		return nil, err
	}

	ns := make(map[string]int)
	for _, e := range findElements(body, "ns") {
		ns[html.UnescapeString(strings.TrimSpace(e.inner))] = e.intval("id")
	}
	c.namespaces = ns

	out := make(map[string]int, len(ns))
	for k, v := range ns {
		out[k] = v
	}
	return out, nil
}

// InvalidateNamespaces drops the namespace cache so the next Namespaces call
// re-fetches it.
func (c *Client) InvalidateNamespaces() {
	c.nsMu.Lock()
	defer c.nsMu.Unlock()
	c.namespaces = nil
}

// sleep blocks for d or until the context is cancelled.
func (c *Client) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
