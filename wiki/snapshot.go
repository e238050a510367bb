package wiki

import (
	"fmt"
	"log/slog"
	"time"
)

// SnapshotVersion is bumped whenever the snapshot layout changes
// incompatibly. Restore refuses snapshots from other versions.
const SnapshotVersion = 1

// Snapshot is a serializable capture of a live session: cookies for both
// scopes plus the tuning knobs. Marshal it with encoding/json and hand it to
// Restore in another process to continue the session without logging in
// again.
type Snapshot struct {
	Version        int               `json:"version"`
	Endpoint       string            `json:"endpoint"`
	Farm           string            `json:"farm,omitempty"`
	UserName       string            `json:"user_name,omitempty"`
	ReadCookies    map[string]string `json:"read_cookies,omitempty"`
	WriteCookies   map[string]string `json:"write_cookies,omitempty"`
	ThrottleMillis int64             `json:"throttle_millis"`
	MaxLag         int               `json:"max_lag"`
	Assertions     int               `json:"assertions"`
	StatusInterval int               `json:"status_interval"`
	UserAgent      string            `json:"user_agent,omitempty"`
	Namespaces     map[string]int    `json:"namespaces,omitempty"`
}

// Snapshot captures the current session state. The returned value shares
// nothing with the client and stays valid after further calls.
func (c *Client) Snapshot() Snapshot {
	c.stateMu.RLock()
	snap := Snapshot{
		Version:        SnapshotVersion,
		Endpoint:       c.site.APIURL(),
		ReadCookies:    cloneStringMap(c.readCookies),
		WriteCookies:   cloneStringMap(c.writeCookies),
		ThrottleMillis: c.throttle.Milliseconds(),
		MaxLag:         c.maxLag,
		Assertions:     c.assertions,
		StatusInterval: c.statusInterval,
		UserAgent:      c.config.UserAgent,
	}
	if farm, ok := c.site.(*FarmSite); ok {
		snap.Farm = farm.Farm()
	}
	if c.user != nil {
		snap.UserName = c.user.Name
	}
	c.stateMu.RUnlock()

	c.nsMu.Lock()
	snap.Namespaces = cloneNamespaces(c.namespaces)
	c.nsMu.Unlock()

	return snap
}

// Restore rebuilds a client from a snapshot. The restored client reuses the
// captured cookies, so no fresh login is needed until the wiki expires them.
// The cached user record is minimal (name only); call RefreshUserInfo to
// repopulate rights and groups.
func Restore(snap Snapshot, logger *slog.Logger) (*Client, error) {
	if snap.Version != SnapshotVersion {
		return nil, &ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("snapshot version %d is not supported (want %d)", snap.Version, SnapshotVersion),
		}
	}
	if snap.Endpoint == "" {
		return nil, &ValidationError{Field: "endpoint", Message: "snapshot carries no endpoint"}
	}

	config := &Config{
		BaseURL:        snap.Endpoint,
		UserAgent:      snap.UserAgent,
		Throttle:       time.Duration(snap.ThrottleMillis) * time.Millisecond,
		MaxLag:         snap.MaxLag,
		StatusInterval: snap.StatusInterval,
	}
	// Farm membership changes the client signature and session semantics, so
	// a farm session must restore onto a FarmSite, not a plain Site.
	var site SiteCapabilities = siteForEndpoint(snap.Endpoint)
	if snap.Farm != "" {
		site = &FarmSite{Site: *siteForEndpoint(snap.Endpoint), farm: snap.Farm}
	}
	c := NewClientForSite(site, config, logger)

	c.stateMu.Lock()
	c.readCookies = cloneStringMap(snap.ReadCookies)
	c.writeCookies = cloneStringMap(snap.WriteCookies)
	c.assertions = snap.Assertions
	if snap.UserName != "" {
		c.user = &User{Name: snap.UserName}
	}
	c.stateMu.Unlock()

	c.nsMu.Lock()
	c.namespaces = cloneNamespaces(snap.Namespaces)
	c.nsMu.Unlock()

	return c, nil
}

func cloneStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneNamespaces(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
