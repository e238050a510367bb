package wiki

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"
)

func TestGetPageText(t *testing.T) {
	ts := newTestServer(t)
	ts.setHandler(func(w http.ResponseWriter, params url.Values) (string, bool) {
		if params.Get("prop") == "revisions" {
			return apiResponse(fmt.Sprintf(
				`<query><pages><page title=%q><revisions>`+
					`<rev revid="42" timestamp="2024-04-01T00:00:00Z">== Heading ==

Fish &amp; chips.</rev>`+
					`</revisions></page></pages></query>`, params.Get("titles"))), true
		}
		return "", false
	})
	c := newTestClient(t, ts)

	text, err := c.GetPageText(context.Background(), "sandbox")
	if err != nil {
		t.Fatalf("get page text failed: %v", err)
	}
	if text != "== Heading ==\n\nFish & chips." {
		t.Errorf("text = %q", text)
	}

	first := ts.recorded()[0]
	if got := first.params.Get("titles"); got != "Sandbox" {
		t.Errorf("title not normalized: %q", got)
	}
	if first.params.Get("rvlimit") != "1" {
		t.Error("page text fetch must request a single revision")
	}
}

func TestGetPageTextMissing(t *testing.T) {
	ts := newTestServer(t)
	ts.setHandler(func(w http.ResponseWriter, params url.Values) (string, bool) {
		if params.Get("prop") == "revisions" {
			return apiResponse(`<query><pages><page title="Ghost" missing=""/></pages></query>`), true
		}
		return "", false
	})
	c := newTestClient(t, ts)

	_, err := c.GetPageText(context.Background(), "Ghost")
	var nferr *PageNotFoundError
	if !errors.As(err, &nferr) {
		t.Fatalf("expected PageNotFoundError, got %v", err)
	}
}

func TestGetSectionText(t *testing.T) {
	ts := newTestServer(t)
	ts.setHandler(func(w http.ResponseWriter, params url.Values) (string, bool) {
		if params.Get("prop") == "revisions" {
			return apiResponse(`<query><pages><page title="Sandbox"><revisions>` +
				`<rev revid="42" timestamp="2024-04-01T00:00:00Z">section text</rev>` +
				`</revisions></page></pages></query>`), true
		}
		return "", false
	})
	c := newTestClient(t, ts)

	if _, err := c.GetSectionText(context.Background(), "Sandbox", 3); err != nil {
		t.Fatalf("get section failed: %v", err)
	}
	if got := ts.recorded()[0].params.Get("rvsection"); got != "3" {
		t.Errorf("rvsection = %q", got)
	}

	if _, err := c.GetSectionText(context.Background(), "Sandbox", -1); err == nil {
		t.Error("negative section must be rejected")
	}
}

func TestGetTopRevision(t *testing.T) {
	ts := newTestServer(t)
	ts.setHandler(rollbackTopRevision(100))
	c := newTestClient(t, ts)

	rev, err := c.GetTopRevision(context.Background(), "Sandbox")
	if err != nil {
		t.Fatalf("get top revision failed: %v", err)
	}
	if rev.ID != 100 {
		t.Errorf("revid = %d", rev.ID)
	}
	if rev.RollbackToken != `RBTOKEN+\` {
		t.Errorf("rollback token = %q", rev.RollbackToken)
	}
	if rev.User == nil || *rev.User != "Vandal" {
		t.Errorf("user = %v", rev.User)
	}
}

func TestResolveRedirect(t *testing.T) {
	ts := newTestServer(t)
	ts.setHandler(func(w http.ResponseWriter, params url.Values) (string, bool) {
		if params.Get("redirects") != "" {
			if params.Get("titles") == "Old name" {
				return apiResponse(`<query><redirects><r from="Old name" to="New name"/></redirects><pages><page title="New name"/></pages></query>`), true
			}
			return apiResponse(`<query><pages><page title="` + params.Get("titles") + `"/></pages></query>`), true
		}
		return "", false
	})
	c := newTestClient(t, ts)

	target, err := c.ResolveRedirect(context.Background(), "old name")
	if err != nil {
		t.Fatalf("resolve redirect failed: %v", err)
	}
	if target != "New name" {
		t.Errorf("target = %q", target)
	}

	same, err := c.ResolveRedirect(context.Background(), "Plain page")
	if err != nil {
		t.Fatalf("resolve redirect failed: %v", err)
	}
	if same != "Plain page" {
		t.Errorf("non-redirect must resolve to itself, got %q", same)
	}
}

func TestGetUserMissing(t *testing.T) {
	ts := newTestServer(t)
	ts.setHandler(func(w http.ResponseWriter, params url.Values) (string, bool) {
		if params.Get("list") == "users" {
			return apiResponse(`<query><users><user name="Nobody" missing=""/></users></query>`), true
		}
		return "", false
	})
	c := newTestClient(t, ts)

	_, err := c.GetUser(context.Background(), "Nobody")
	var nferr *PageNotFoundError
	if !errors.As(err, &nferr) {
		t.Fatalf("expected PageNotFoundError, got %v", err)
	}
}

func TestSiteStatistics(t *testing.T) {
	ts := newTestServer(t)
	ts.setHandler(func(w http.ResponseWriter, params url.Values) (string, bool) {
		if params.Get("siprop") == "statistics" {
			return apiResponse(`<query><statistics pages="5821" articles="1204" edits="48230" users="312" activeusers="17" admins="4"/></query>`), true
		}
		return "", false
	})
	c := newTestClient(t, ts)

	stats, err := c.SiteStatistics(context.Background())
	if err != nil {
		t.Fatalf("site statistics failed: %v", err)
	}
	if stats["articles"] != 1204 || stats["admins"] != 4 {
		t.Errorf("stats = %v", stats)
	}
}

func TestNormalizePageTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sandbox", "Sandbox"},
		{"main_page", "Main page"},
		{"  spaced  out  ", "Spaced out"},
		{"talk:some page", "Talk:Some page"},
		{"user:alice", "User:Alice"},
		{"édition", "Édition"},
		{"Already Fine", "Already Fine"},
	}

	for _, tt := range tests {
		if got := normalizePageTitle(tt.in); got != tt.want {
			t.Errorf("normalizePageTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeCategoryName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Birds", "Category:Birds"},
		{"birds", "Category:Birds"},
		{"Category:Birds", "Category:Birds"},
	}

	for _, tt := range tests {
		if got := normalizeCategoryName(tt.in); got != tt.want {
			t.Errorf("normalizeCategoryName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
