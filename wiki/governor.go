package wiki

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/olavsk/mwclient/metrics"
)

// waitForLag gates network calls on server replication health. When a max-lag
// threshold is configured and more than lagCheckInterval has passed since the
// last probe, the current lag is fetched; while it exceeds the threshold the
// caller sleeps and re-probes. The probe is serialized per session so
// concurrent callers observe the cached timestamp instead of stampeding the
// endpoint.
func (c *Client) waitForLag(ctx context.Context) {
	c.stateMu.RLock()
	maxLag := c.maxLag
	c.stateMu.RUnlock()
	if maxLag < 1 {
		return
	}

	c.lagMu.Lock()
	defer c.lagMu.Unlock()
	if time.Since(c.lastLagCheck) < lagCheckInterval {
		return
	}

	for {
		lag, err := c.replicationLag(ctx)
		if err != nil {
			// A failed probe must not wedge the session; the operation
			// itself will surface any real transport problem.
			c.logger.Warn("replication lag probe failed", "error", err)
			break
		}
		if lag <= maxLag {
			break
		}
		c.logger.Warn("replication lag above threshold, backing off",
			"lag", lag,
			"max_lag", maxLag,
			"wait", c.lagWait)
		metrics.LagWaitSeconds.Add(c.lagWait.Seconds())
		c.sleep(ctx, c.lagWait)
		if ctx.Err() != nil {
			break
		}
	}
	c.lastLagCheck = time.Now()
}

// replicationLag fetches the current database replication lag in seconds.
// It bypasses the lag gate to avoid recursing into it.
func (c *Client) replicationLag(ctx context.Context) (int, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("meta", "siteinfo")
	params.Set("siprop", "dbrepllag")

	body, err := c.request(ctx, http.MethodGet, params, "maxlag", scopeNone)
	if err != nil {
		return 0, err
	}
	if err := checkError(body); err != nil {
		return 0, err
	}
	db, _ := firstElement(body, "db")
	return db.intval("lag"), nil
}

// throttleAfter enforces the minimum inter-mutation delay: it sleeps for
// whatever remains of the throttle window that opened at start, so mutation
// rate never exceeds one per throttle interval. Throttles below one second
// are disabled.
func (c *Client) throttleAfter(start time.Time) {
	c.stateMu.RLock()
	throttle := c.throttle
	c.stateMu.RUnlock()
	if throttle < time.Second {
		return
	}
	remaining := throttle - time.Since(start)
	if remaining <= 0 {
		return
	}
	metrics.ThrottleWaitSeconds.Add(remaining.Seconds())
	time.Sleep(remaining)
}
