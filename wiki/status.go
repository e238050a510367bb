package wiki

import (
	"context"

	"github.com/olavsk/mwclient/metrics"
)

// statusCheck enforces the session assertions before a mutation runs. The
// cheap checks run against cached state on every call; every statusInterval
// calls the cached user record is refreshed from the server so drift (rights
// revoked, talk page messages) is caught without a per-mutation round trip.
// Callers must hold c.mu.
func (c *Client) statusCheck(ctx context.Context) error {
	metrics.StatusChecksTotal.Inc()

	c.stateMu.Lock()
	c.statusCounter++
	refresh := c.statusCounter >= c.statusInterval
	if refresh {
		c.statusCounter = 0
	}
	flags := c.assertions
	c.stateMu.Unlock()

	if refresh {
		if err := c.refreshUserLocked(ctx); err != nil {
			return err
		}
		if flags&AssertNoMessages != 0 {
			hasMsg, err := c.hasNewMessages(ctx)
			if err != nil {
				return err
			}
			if hasMsg {
				return &AssertionError{Assertion: "nomessages"}
			}
		}
	}

	c.stateMu.RLock()
	user := c.user
	c.stateMu.RUnlock()

	if flags&AssertLoggedIn != 0 && user == nil {
		return &AssertionError{Assertion: "user"}
	}
	if flags&AssertBot != 0 && (user == nil || !user.InGroup("bot")) {
		return &AssertionError{Assertion: "bot"}
	}
	return nil
}
