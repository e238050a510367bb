package wiki

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordedRequest captures one request the mock wiki saw.
type recordedRequest struct {
	method    string
	params    url.Values
	cookie    string
	userAgent string
	multipart bool
	fileName  string
	fileBody  string
}

// testServer is a mock wiki API endpoint. Custom behavior goes through
// handle; anything it declines falls back to canned responses for the
// plumbing every session exercises (login token, login, userinfo, lag probe,
// edit token).
type testServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
	handle   func(w http.ResponseWriter, params url.Values) (string, bool)
	cookies  []*http.Cookie
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			method:    r.Method,
			cookie:    r.Header.Get("Cookie"),
			userAgent: r.Header.Get("User-Agent"),
		}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			if err := r.ParseMultipartForm(16 << 20); err != nil {
				t.Errorf("bad multipart request: %v", err)
			}
			rec.multipart = true
			if r.MultipartForm != nil {
				for _, fhs := range r.MultipartForm.File {
					for _, fh := range fhs {
						rec.fileName = fh.Filename
						f, err := fh.Open()
						if err == nil {
							data, _ := io.ReadAll(f)
							_ = f.Close()
							rec.fileBody = string(data)
						}
					}
				}
			}
		} else if err := r.ParseForm(); err != nil {
			t.Errorf("bad request: %v", err)
		}
		rec.params = cloneValues(r.Form)

		ts.mu.Lock()
		ts.requests = append(ts.requests, rec)
		handle := ts.handle
		cookies := ts.cookies
		ts.mu.Unlock()

		for _, ck := range cookies {
			http.SetCookie(w, ck)
		}
		if handle != nil {
			if body, ok := handle(w, rec.params); ok {
				fmt.Fprint(w, body)
				return
			}
		}
		fmt.Fprint(w, defaultResponse(rec.params))
	}))
	t.Cleanup(ts.Close)
	return ts
}

// setHandler installs the custom response function.
func (ts *testServer) setHandler(h func(w http.ResponseWriter, params url.Values) (string, bool)) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.handle = h
}

// setCookies makes the server issue the given cookies on every response.
func (ts *testServer) setCookies(cookies ...*http.Cookie) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.cookies = cookies
}

// recorded returns a copy of the requests seen so far.
func (ts *testServer) recorded() []recordedRequest {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]recordedRequest(nil), ts.requests...)
}

// countAction counts recorded requests with the given action parameter.
func (ts *testServer) countAction(action string) int {
	n := 0
	for _, rec := range ts.recorded() {
		if rec.params.Get("action") == action {
			n++
		}
	}
	return n
}

func apiResponse(inner string) string {
	return `<?xml version="1.0"?><api>` + inner + `</api>`
}

const testUserRecord = `<userinfo id="7" name="TestBot" editcount="120">` +
	`<rights><r>read</r><r>edit</r><r>move</r><r>delete</r><r>rollback</r><r>upload</r><r>sendemail</r></rights>` +
	`<groups><g>user</g><g>bot</g></groups></userinfo>`

// defaultResponse produces the canned replies for the session plumbing.
func defaultResponse(params url.Values) string {
	switch {
	case params.Get("meta") == "tokens":
		return apiResponse(`<query><tokens logintoken="LOGINTOKEN+\"/></query>`)
	case params.Get("action") == "login":
		return apiResponse(`<login result="Success" lgusername="` + params.Get("lgname") + `"/>`)
	case params.Get("meta") == "userinfo" && params.Get("uiprop") == "hasmsg":
		return apiResponse(`<query><userinfo id="7" name="TestBot"/></query>`)
	case params.Get("meta") == "userinfo":
		return apiResponse(`<query>` + testUserRecord + `</query>`)
	case params.Get("siprop") == "dbrepllag":
		return apiResponse(`<query><dbrepllag><db host="db1" lag="0"/></dbrepllag></query>`)
	case params.Get("intoken") == "edit":
		return apiResponse(fmt.Sprintf(
			`<query><pages><page title=%q ns="0" touched="2024-01-01T00:00:00Z" lastrevid="42" length="100" edittoken="EDITTOKEN+\"/></pages></query>`,
			params.Get("titles")))
	case params.Get("action") == "edit":
		return apiResponse(`<edit result="Success" pageid="1" newrevid="43"/>`)
	case params.Get("action") == "query" && params.Get("titles") != "" && params.Get("prop") == "":
		return apiResponse(fmt.Sprintf(
			`<query><pages><page title=%q ns="0" lastrevid="42" length="100"/></pages></query>`,
			params.Get("titles")))
	case params.Get("action") == "logout":
		return apiResponse(``)
	}
	return apiResponse(``)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient builds a client against the mock server with the pacing
// machinery disabled so tests run instantly.
func newTestClient(t *testing.T, ts *testServer) *Client {
	t.Helper()
	c := NewClient(&Config{
		BaseURL:   ts.URL,
		UserAgent: "mwclient-test",
		Timeout:   5 * time.Second,
	}, testLogger())
	c.loginWait = 0
	c.lagWait = time.Millisecond
	return c
}

// loginTestClient is newTestClient plus a completed login against the mock.
func loginTestClient(t *testing.T, ts *testServer) *Client {
	t.Helper()
	c := newTestClient(t, ts)
	if err := c.Login(context.Background(), "TestBot", "hunter2"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return c
}
