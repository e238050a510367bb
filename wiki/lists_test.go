package wiki

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
)

func TestContributions(t *testing.T) {
	ts := newTestServer(t)
	ts.setHandler(func(w http.ResponseWriter, params url.Values) (string, bool) {
		if params.Get("list") == "usercontribs" {
			return apiResponse(`<query><usercontribs>` +
				`<item revid="90" user="Alice" title="Alpha" timestamp="2024-04-02T10:00:00Z" comment="later edit" size="150"/>` +
				`<item revid="88" user="Alice" title="Beta" timestamp="2024-04-01T09:00:00Z" commenthidden="" size="80" minor=""/>` +
				`</usercontribs></query>`), true
		}
		return "", false
	})
	c := newTestClient(t, ts)

	revs, err := c.Contributions(context.Background(), ContributionsArgs{User: "Alice"})
	if err != nil {
		t.Fatalf("contributions failed: %v", err)
	}
	if len(revs) != 2 {
		t.Fatalf("got %d revisions", len(revs))
	}
	if revs[0].Title != "Alpha" || revs[0].ID != 90 {
		t.Errorf("first revision = %+v", revs[0])
	}
	if revs[1].Summary != nil {
		t.Error("hidden comment must map to nil")
	}
	if !revs[1].Minor {
		t.Error("minor flag lost")
	}
}

func TestRecentChanges(t *testing.T) {
	ts := newTestServer(t)
	ts.setHandler(func(w http.ResponseWriter, params url.Values) (string, bool) {
		if params.Get("list") == "recentchanges" {
			return apiResponse(`<query><recentchanges>` +
				`<rc rcid="777" revid="91" title="Gamma" user="Bob" timestamp="2024-04-03T08:00:00Z" newlen="210"/>` +
				`</recentchanges></query>`), true
		}
		return "", false
	})
	c := newTestClient(t, ts)

	revs, err := c.RecentChanges(context.Background(), RecentChangesArgs{Namespace: -1})
	if err != nil {
		t.Fatalf("recent changes failed: %v", err)
	}
	if len(revs) != 1 || revs[0].RCID != 777 {
		t.Fatalf("revisions = %+v", revs)
	}
	if revs[0].Size != 210 {
		t.Errorf("newlen must populate size, got %d", revs[0].Size)
	}

	first := ts.recorded()[0]
	if first.params.Get("rcshow") != "!bot" {
		t.Error("bot edits must be hidden by default")
	}
	if first.params.Get("rcnamespace") != "" {
		t.Error("negative namespace must not constrain the query")
	}
}

func TestRecentChangesShowBots(t *testing.T) {
	ts := newTestServer(t)
	ts.setHandler(func(w http.ResponseWriter, params url.Values) (string, bool) {
		if params.Get("list") == "recentchanges" {
			return apiResponse(`<query><recentchanges/></query>`), true
		}
		return "", false
	})
	c := newTestClient(t, ts)

	if _, err := c.RecentChanges(context.Background(), RecentChangesArgs{Namespace: 0, ShowBots: true}); err != nil {
		t.Fatalf("recent changes failed: %v", err)
	}
	first := ts.recorded()[0]
	if first.params.Get("rcshow") != "" {
		t.Error("rcshow must be absent when bots are included")
	}
	if first.params.Get("rcnamespace") != "0" {
		t.Errorf("rcnamespace = %q", first.params.Get("rcnamespace"))
	}
}

func TestWatchlistRequiresLogin(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	_, err := c.Watchlist(context.Background(), 0)
	var serr *SessionError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SessionError, got %v", err)
	}
	if len(ts.recorded()) != 0 {
		t.Error("anonymous watchlist must not reach the network")
	}
}

func TestLogEntriesFilters(t *testing.T) {
	ts := newTestServer(t)
	ts.setHandler(func(w http.ResponseWriter, params url.Values) (string, bool) {
		if params.Get("list") == "logevents" {
			return apiResponse(`<query><logevents>` +
				`<item type="move" action="move" user="Alice" timestamp="2024-04-01T00:00:00Z" title="Old" comment="rename"><params target_title="New"/></item>` +
				`</logevents></query>`), true
		}
		return "", false
	})
	c := newTestClient(t, ts)

	entries, err := c.LogEntries(context.Background(), LogEntriesArgs{Type: "move", User: "Alice"})
	if err != nil {
		t.Fatalf("log entries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}
	move, ok := entries[0].Details.(MoveDetails)
	if !ok || move.NewTitle != "New" {
		t.Errorf("details = %#v", entries[0].Details)
	}

	first := ts.recorded()[0]
	if first.params.Get("letype") != "move" || first.params.Get("leuser") != "Alice" {
		t.Errorf("filters not passed: %v", first.params)
	}
}

func TestLinkSearch(t *testing.T) {
	ts := newTestServer(t)
	ts.setHandler(func(w http.ResponseWriter, params url.Values) (string, bool) {
		if params.Get("list") == "exturlusage" {
			return apiResponse(`<query><exturlusage>` +
				`<eu pageid="3" title="Refs" url="http://spam.example.com/x"/>` +
				`</exturlusage></query>`), true
		}
		return "", false
	})
	c := newTestClient(t, ts)

	usages, err := c.LinkSearch(context.Background(), "*.example.com", 0)
	if err != nil {
		t.Fatalf("link search failed: %v", err)
	}
	if len(usages) != 1 || usages[0].URL != "http://spam.example.com/x" {
		t.Errorf("usages = %+v", usages)
	}
}

func TestInterwikiBacklinks(t *testing.T) {
	ts := newTestServer(t)
	ts.setHandler(func(w http.ResponseWriter, params url.Values) (string, bool) {
		if params.Get("list") == "iwbacklinks" {
			return apiResponse(`<query><iwbacklinks>` +
				`<iw pageid="9" title="Glossary" iwprefix="wikt" iwtitle="fish"/>` +
				`</iwbacklinks></query>`), true
		}
		return "", false
	})
	c := newTestClient(t, ts)

	usages, err := c.InterwikiBacklinks(context.Background(), "wikt", 0)
	if err != nil {
		t.Fatalf("interwiki backlinks failed: %v", err)
	}
	if len(usages) != 1 || usages[0].Prefix != "wikt" || usages[0].LinkTitle != "fish" {
		t.Errorf("usages = %+v", usages)
	}
}

func TestWhatLinksHereAndTranscludes(t *testing.T) {
	ts := newTestServer(t)
	ts.setHandler(func(w http.ResponseWriter, params url.Values) (string, bool) {
		switch params.Get("list") {
		case "backlinks":
			return apiResponse(`<query><backlinks><bl title="Linker"/></backlinks></query>`), true
		case "embeddedin":
			return apiResponse(`<query><embeddedin><ei title="Includer"/></embeddedin></query>`), true
		}
		return "", false
	})
	c := newTestClient(t, ts)

	links, err := c.WhatLinksHere(context.Background(), "Target", 0)
	if err != nil || len(links) != 1 || links[0] != "Linker" {
		t.Errorf("backlinks = %v, err %v", links, err)
	}

	trans, err := c.WhatTranscludesHere(context.Background(), "Template:Box", 0)
	if err != nil || len(trans) != 1 || trans[0] != "Includer" {
		t.Errorf("transclusions = %v, err %v", trans, err)
	}
}
