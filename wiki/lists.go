package wiki

import (
	"context"
	"net/url"
	"strconv"
)

// ContributionsArgs filters the Contributions listing.
type ContributionsArgs struct {
	User string
	// Limit caps the number of results. Zero means all.
	Limit int
}

// Contributions lists a user's edits, newest first.
func (c *Client) Contributions(ctx context.Context, args ContributionsArgs) ([]Revision, error) {
	if args.User == "" {
		return nil, &ValidationError{Field: "user", Message: "user name is required"}
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "usercontribs")
	params.Set("ucuser", args.User)
	params.Set("ucprop", "ids|title|timestamp|comment|flags|size")
	params.Set("uclimit", c.pageLimit())

	return fetchAll(ctx, c, params, "uccontinue", "contributions", args.Limit,
		func(body string) ([]Revision, error) {
			items := findElements(body, "item")
			revs := make([]Revision, 0, len(items))
			for _, e := range items {
				revs = append(revs, parseRevision(e, e.str("title")))
			}
			return revs, nil
		})
}

// CategoryMembersArgs filters the CategoryMembers listing.
type CategoryMembersArgs struct {
	Category string
	Limit    int
}

// CategoryMembers lists the titles in a category. The category name is
// normalized, so both "Category:Foo" and "Foo" are accepted.
func (c *Client) CategoryMembers(ctx context.Context, args CategoryMembersArgs) ([]string, error) {
	if args.Category == "" {
		return nil, &ValidationError{Field: "category", Message: "category name is required"}
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "categorymembers")
	params.Set("cmtitle", normalizeCategoryName(args.Category))
	params.Set("cmprop", "title")
	params.Set("cmlimit", c.pageLimit())

	return fetchAll(ctx, c, params, "cmcontinue", "categoryMembers", args.Limit, decodeTitles("cm"))
}

// WhatLinksHere lists pages that link to the given page.
func (c *Client) WhatLinksHere(ctx context.Context, title string, limit int) ([]string, error) {
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "page title is required"}
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "backlinks")
	params.Set("bltitle", normalizePageTitle(title))
	params.Set("bllimit", c.pageLimit())

	return fetchAll(ctx, c, params, "blcontinue", "whatLinksHere", limit, decodeTitles("bl"))
}

// WhatTranscludesHere lists pages that transclude the given page.
func (c *Client) WhatTranscludesHere(ctx context.Context, title string, limit int) ([]string, error) {
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "page title is required"}
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "embeddedin")
	params.Set("eititle", normalizePageTitle(title))
	params.Set("eilimit", c.pageLimit())

	return fetchAll(ctx, c, params, "eicontinue", "whatTranscludesHere", limit, decodeTitles("ei"))
}

// Watchlist lists recent changes to pages on the logged-in user's watchlist.
func (c *Client) Watchlist(ctx context.Context, limit int) ([]Revision, error) {
	c.stateMu.RLock()
	loggedIn := c.user != nil
	c.stateMu.RUnlock()
	if !loggedIn {
		return nil, &SessionError{Reason: "watchlist requires a logged-in session"}
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "watchlist")
	params.Set("wlprop", "ids|title|timestamp|user|comment|flags|sizes")
	params.Set("wlallrev", "1")
	params.Set("wllimit", c.pageLimit())

	return fetchAll(ctx, c, params, "wlcontinue", "watchlist", limit,
		func(body string) ([]Revision, error) {
			items := findElements(body, "item")
			revs := make([]Revision, 0, len(items))
			for _, e := range items {
				revs = append(revs, parseRevision(e, e.str("title")))
			}
			return revs, nil
		})
}

// LogEntriesArgs filters the LogEntries listing. Zero values widen the query.
type LogEntriesArgs struct {
	// Type restricts the log type, e.g. "move", "block", "protect".
	Type  string
	User  string
	Title string
	Limit int
}

// LogEntries lists entries from the wiki's public logs, newest first.
func (c *Client) LogEntries(ctx context.Context, args LogEntriesArgs) ([]LogEntry, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "logevents")
	params.Set("leprop", "type|user|comment|timestamp|title|details")
	params.Set("lelimit", c.pageLimit())
	if args.Type != "" {
		params.Set("letype", args.Type)
	}
	if args.User != "" {
		params.Set("leuser", args.User)
	}
	if args.Title != "" {
		params.Set("letitle", normalizePageTitle(args.Title))
	}

	return fetchAll(ctx, c, params, "lecontinue", "logEntries", args.Limit,
		func(body string) ([]LogEntry, error) {
			items := findElements(body, "item")
			entries := make([]LogEntry, 0, len(items))
			for _, e := range items {
				entries = append(entries, parseLogEntry(e))
			}
			return entries, nil
		})
}

// RecentChangesArgs filters the RecentChanges listing.
type RecentChangesArgs struct {
	// Namespace restricts results to one namespace. Negative means all.
	Namespace int
	// ShowBots includes bot edits, which are hidden by default.
	ShowBots bool
	Limit    int
}

// RecentChanges lists the wiki's recent changes feed, newest first. Each
// returned revision carries its recent-changes ID for patrolling.
func (c *Client) RecentChanges(ctx context.Context, args RecentChangesArgs) ([]Revision, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "recentchanges")
	params.Set("rcprop", "ids|title|timestamp|user|comment|flags|sizes")
	params.Set("rclimit", c.pageLimit())
	if args.Namespace >= 0 {
		params.Set("rcnamespace", strconv.Itoa(args.Namespace))
	}
	if !args.ShowBots {
		params.Set("rcshow", "!bot")
	}

	return fetchAll(ctx, c, params, "rccontinue", "recentChanges", args.Limit,
		func(body string) ([]Revision, error) {
			items := findElements(body, "rc")
			revs := make([]Revision, 0, len(items))
			for _, e := range items {
				rev := parseRevision(e, e.str("title"))
				rev.RCID = e.int64val("rcid")
				revs = append(revs, rev)
			}
			return revs, nil
		})
}

// LinkSearch lists pages that contain an external link matching the query,
// e.g. "*.example.com".
func (c *Client) LinkSearch(ctx context.Context, query string, limit int) ([]ExternalUsage, error) {
	if query == "" {
		return nil, &ValidationError{Field: "query", Message: "link query is required"}
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "exturlusage")
	params.Set("euquery", query)
	params.Set("euprop", "title|url")
	params.Set("eulimit", c.pageLimit())

	return fetchAll(ctx, c, params, "euoffset", "linkSearch", limit,
		func(body string) ([]ExternalUsage, error) {
			items := findElements(body, "eu")
			usages := make([]ExternalUsage, 0, len(items))
			for _, e := range items {
				usages = append(usages, ExternalUsage{
					Title: e.str("title"),
					URL:   e.str("url"),
				})
			}
			return usages, nil
		})
}

// InterwikiBacklinks lists pages that link through an interwiki prefix.
func (c *Client) InterwikiBacklinks(ctx context.Context, prefix string, limit int) ([]InterwikiUsage, error) {
	if prefix == "" {
		return nil, &ValidationError{Field: "prefix", Message: "interwiki prefix is required"}
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "iwbacklinks")
	params.Set("iwblprefix", prefix)
	params.Set("iwblprop", "iwprefix|iwtitle")
	params.Set("iwbllimit", c.pageLimit())

	return fetchAll(ctx, c, params, "iwblcontinue", "interwikiBacklinks", limit,
		func(body string) ([]InterwikiUsage, error) {
			items := findElements(body, "iw")
			usages := make([]InterwikiUsage, 0, len(items))
			for _, e := range items {
				usages = append(usages, InterwikiUsage{
					Title:     e.str("title"),
					Prefix:    e.str("iwprefix"),
					LinkTitle: e.str("iwtitle"),
				})
			}
			return usages, nil
		})
}

// decodeTitles builds a decoder that extracts title attributes from the
// result elements a list module emits (element name matches the module's
// two-letter prefix).
func decodeTitles(elem string) func(body string) ([]string, error) {
	return func(body string) ([]string, error) {
		items := findElements(body, elem)
		titles := make([]string, 0, len(items))
		for _, e := range items {
			titles = append(titles, e.str("title"))
		}
		return titles, nil
	}
}
