package wiki

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
)

// categoryBatches serves a 5-member category in three batches: A,B | C,D | E.
func categoryBatches(w http.ResponseWriter, params url.Values) (string, bool) {
	if params.Get("list") != "categorymembers" {
		return "", false
	}
	switch params.Get("cmcontinue") {
	case "":
		return apiResponse(`<query><categorymembers><cm title="A"/><cm title="B"/></categorymembers></query>` +
			`<continue cmcontinue="batch2" continue="-||"/>`), true
	case "batch2":
		return apiResponse(`<query><categorymembers><cm title="C"/><cm title="D"/></categorymembers></query>` +
			`<continue cmcontinue="batch3" continue="-||"/>`), true
	case "batch3":
		return apiResponse(`<query><categorymembers><cm title="E"/></categorymembers></query>`), true
	}
	return apiResponse(`<error code="badcontinue" info="unknown continuation"/>`), true
}

func TestPaginationFetchesAllBatches(t *testing.T) {
	ts := newTestServer(t)
	ts.setHandler(categoryBatches)
	c := newTestClient(t, ts)

	titles, err := c.CategoryMembers(context.Background(), CategoryMembersArgs{Category: "Birds"})
	if err != nil {
		t.Fatalf("category members failed: %v", err)
	}

	want := []string{"A", "B", "C", "D", "E"}
	if len(titles) != len(want) {
		t.Fatalf("got %d titles, want %d: %v", len(titles), len(want), titles)
	}
	for i, title := range want {
		if titles[i] != title {
			t.Errorf("titles[%d] = %q, want %q (order must follow the server)", i, titles[i], title)
		}
	}
	if got := len(ts.recorded()); got != 3 {
		t.Errorf("expected 3 requests, got %d", got)
	}
}

func TestPaginationStopsAtLimit(t *testing.T) {
	tests := []struct {
		name         string
		limit        int
		wantTitles   []string
		wantRequests int
	}{
		{"first batch only", 1, []string{"A"}, 1},
		{"exactly one batch", 2, []string{"A", "B"}, 1},
		{"mid second batch", 3, []string{"A", "B", "C"}, 2},
		{"beyond the end", 10, []string{"A", "B", "C", "D", "E"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.setHandler(categoryBatches)
			c := newTestClient(t, ts)

			titles, err := c.CategoryMembers(context.Background(), CategoryMembersArgs{
				Category: "Birds",
				Limit:    tt.limit,
			})
			if err != nil {
				t.Fatalf("category members failed: %v", err)
			}
			if len(titles) != len(tt.wantTitles) {
				t.Fatalf("got %v, want %v", titles, tt.wantTitles)
			}
			for i := range tt.wantTitles {
				if titles[i] != tt.wantTitles[i] {
					t.Errorf("titles[%d] = %q, want %q", i, titles[i], tt.wantTitles[i])
				}
			}
			if got := len(ts.recorded()); got != tt.wantRequests {
				t.Errorf("request count = %d, want %d", got, tt.wantRequests)
			}
		})
	}
}

func TestPaginationRejectsNegativeLimit(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	_, err := c.CategoryMembers(context.Background(), CategoryMembersArgs{
		Category: "Birds",
		Limit:    -1,
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ts.recorded()) != 0 {
		t.Error("a rejected limit must not reach the network")
	}
}

func TestPaginationSurfacesAPIError(t *testing.T) {
	ts := newTestServer(t)
	ts.setHandler(func(w http.ResponseWriter, params url.Values) (string, bool) {
		return apiResponse(`<error code="readapidenied" info="You need read permission"/>`), true
	})
	c := newTestClient(t, ts)

	_, err := c.CategoryMembers(context.Background(), CategoryMembersArgs{Category: "Birds"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "readapidenied" {
		t.Errorf("code = %q", apiErr.Code)
	}
}

func TestCategoryNameNormalized(t *testing.T) {
	ts := newTestServer(t)
	ts.setHandler(categoryBatches)
	c := newTestClient(t, ts)

	if _, err := c.CategoryMembers(context.Background(), CategoryMembersArgs{Category: "birds of prey"}); err != nil {
		t.Fatalf("category members failed: %v", err)
	}
	first := ts.recorded()[0]
	if got := first.params.Get("cmtitle"); got != "Category:Birds of prey" {
		t.Errorf("cmtitle = %q", got)
	}
}
