package wiki

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// GetPageText retrieves the current wikitext of a page.
func (c *Client) GetPageText(ctx context.Context, title string) (string, error) {
	return c.getPageText(ctx, title, -1)
}

// GetSectionText retrieves the wikitext of a single section of a page.
func (c *Client) GetSectionText(ctx context.Context, title string, section int) (string, error) {
	if section < 0 {
		return "", &ValidationError{Field: "section", Message: "section number cannot be negative"}
	}
	return c.getPageText(ctx, title, section)
}

func (c *Client) getPageText(ctx context.Context, title string, section int) (string, error) {
	if title == "" {
		return "", &ValidationError{Field: "title", Message: "page title is required"}
	}
	title = normalizePageTitle(title)

	params := url.Values{}
	params.Set("action", "query")
	params.Set("titles", title)
	params.Set("prop", "revisions")
	params.Set("rvprop", "content|ids|timestamp")
	params.Set("rvlimit", "1")
	if section >= 0 {
		params.Set("rvsection", strconv.Itoa(section))
	}

	body, err := c.get(ctx, params, "getPageText", scopeNone)
	if err != nil {
		return "", err
	}
	if err := checkError(body); err != nil {
		return "", err
	}

	page, ok := firstElement(body, "page")
	if !ok {
		return "", &APIError{Code: "emptyresult", Info: "no page in response", Raw: body}
	}
	if page.has("missing") {
		return "", &PageNotFoundError{Title: title}
	}
	rev, ok := firstElement(body, "rev")
	if !ok {
		return "", &APIError{Code: "emptyresult", Info: fmt.Sprintf("no revisions for %q", title), Raw: body}
	}
	return html.UnescapeString(rev.inner), nil
}

// GetTopRevision fetches the current top revision of a page, including its
// one-shot rollback token when the session may roll back.
func (c *Client) GetTopRevision(ctx context.Context, title string) (*Revision, error) {
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "page title is required"}
	}
	title = normalizePageTitle(title)

	params := url.Values{}
	params.Set("action", "query")
	params.Set("titles", title)
	params.Set("prop", "revisions")
	params.Set("rvprop", "ids|timestamp|user|comment|flags|size")
	params.Set("rvtoken", "rollback")
	params.Set("rvlimit", "1")

	body, err := c.get(ctx, params, "getTopRevision", scopeWrite)
	if err != nil {
		return nil, err
	}
	if err := checkError(body); err != nil {
		return nil, err
	}

	page, ok := firstElement(body, "page")
	if !ok {
		return nil, &APIError{Code: "emptyresult", Info: "no page in response", Raw: body}
	}
	if page.has("missing") {
		return nil, &PageNotFoundError{Title: title}
	}
	rev, ok := firstElement(body, "rev")
	if !ok {
		return nil, &APIError{Code: "emptyresult", Info: fmt.Sprintf("no revisions for %q", title), Raw: body}
	}
	revision := parseRevision(rev, page.str("title"))
	return &revision, nil
}

// pageToken fetches the fresh mutation-prerequisite bundle for a page. The
// bundle is never cached: tokens and protection state can change between
// calls. Token cookies issued alongside are harvested into the write scope.
func (c *Client) pageToken(ctx context.Context, title string) (PageToken, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("prop", "info")
	params.Set("inprop", "protection")
	params.Set("intoken", "edit")
	params.Set("titles", normalizePageTitle(title))

	body, err := c.get(ctx, params, "pageToken", scopeWrite)
	if err != nil {
		return PageToken{}, err
	}
	if err := checkError(body); err != nil {
		return PageToken{}, err
	}

	page, ok := firstElement(body, "page")
	if !ok {
		return PageToken{}, &APIError{Code: "emptyresult", Info: "no page info in response", Raw: body}
	}
	tok := parsePageToken(page, body)
	if tok.Token == "" {
		return PageToken{}, &SessionError{Reason: "no edit token issued; write cookies may have expired"}
	}
	return tok, nil
}

// PageInfo fetches the current protection state, existence flag, and a fresh
// edit token for a page in one round trip.
func (c *Client) PageInfo(ctx context.Context, title string) (PageToken, error) {
	return c.pageToken(ctx, title)
}

// PageExists reports whether the page currently exists.
func (c *Client) PageExists(ctx context.Context, title string) (bool, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("titles", normalizePageTitle(title))

	body, err := c.get(ctx, params, "pageExists", scopeNone)
	if err != nil {
		return false, err
	}
	if err := checkError(body); err != nil {
		return false, err
	}
	page, ok := firstElement(body, "page")
	if !ok {
		return false, &APIError{Code: "emptyresult", Info: "no page in response", Raw: body}
	}
	return !page.has("missing"), nil
}

// ResolveRedirect returns the redirect target of a page, or the normalized
// title itself when the page is not a redirect.
func (c *Client) ResolveRedirect(ctx context.Context, title string) (string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("titles", normalizePageTitle(title))
	params.Set("redirects", "1")

	body, err := c.get(ctx, params, "resolveRedirect", scopeNone)
	if err != nil {
		return "", err
	}
	if err := checkError(body); err != nil {
		return "", err
	}
	if r, ok := firstElement(body, "r"); ok {
		return r.str("to"), nil
	}
	return normalizePageTitle(title), nil
}

// GetUser fetches the public record of a wiki account.
func (c *Client) GetUser(ctx context.Context, name string) (*User, error) {
	if name == "" {
		return nil, &ValidationError{Field: "user", Message: "user name is required"}
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "users")
	params.Set("ususers", name)
	params.Set("usprop", "editcount|groups|rights|emailable")

	body, err := c.get(ctx, params, "getUser", scopeNone)
	if err != nil {
		return nil, err
	}
	if err := checkError(body); err != nil {
		return nil, err
	}

	u, ok := firstElement(body, "user")
	if !ok {
		return nil, &APIError{Code: "emptyresult", Info: "no user in response", Raw: body}
	}
	if u.has("missing") || u.has("invalid") {
		return nil, &PageNotFoundError{Title: "User:" + name}
	}
	user := parseUserRecord(u)
	return &user, nil
}

// SiteStatistics fetches the wiki's page/edit/user counters.
func (c *Client) SiteStatistics(ctx context.Context) (map[string]int, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("meta", "siteinfo")
	params.Set("siprop", "statistics")

	body, err := c.get(ctx, params, "siteStatistics", scopeNone)
	if err != nil {
		return nil, err
	}
	if err := checkError(body); err != nil {
		return nil, err
	}

	stats, ok := firstElement(body, "statistics")
	if !ok {
		return nil, &APIError{Code: "emptyresult", Info: "no statistics in response", Raw: body}
	}
	out := make(map[string]int, len(stats.attrs))
	for key := range stats.attrs {
		out[key] = stats.intval(key)
	}
	return out, nil
}

// normalizePageTitle applies the wiki's title conventions: trimmed
// whitespace, underscores to spaces, first letter capitalized on both the
// namespace prefix and the page name.
func normalizePageTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return title
	}

	title = strings.ReplaceAll(title, "_", " ")
	for strings.Contains(title, "  ") {
		title = strings.ReplaceAll(title, "  ", " ")
	}

	if colonIdx := strings.Index(title, ":"); colonIdx > 0 {
		return capitalizeFirst(title[:colonIdx]) + ":" + capitalizeFirst(title[colonIdx+1:])
	}
	return capitalizeFirst(title)
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// normalizeCategoryName ensures a category title carries its namespace prefix.
func normalizeCategoryName(name string) string {
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, "Category:") {
		name = "Category:" + name
	}
	return normalizePageTitle(name)
}
