package wiki

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/olavsk/mwclient/metrics"
	"github.com/olavsk/mwclient/tracing"
)

// cookieScope selects which cookie store freshly issued cookies land in.
// Read cookies are the session cookies captured at login; write cookies are
// harvested from token fetches and mutating calls.
type cookieScope int

const (
	scopeNone cookieScope = iota
	scopeRead
	scopeWrite
)

// get issues a read. All calls pass through the rate governor's lag gate.
func (c *Client) get(ctx context.Context, params url.Values, caller string, harvest cookieScope) (string, error) {
	c.waitForLag(ctx)
	return c.request(ctx, http.MethodGet, params, caller, harvest)
}

// post issues a url-encoded write.
func (c *Client) post(ctx context.Context, params url.Values, caller string, harvest cookieScope) (string, error) {
	c.waitForLag(ctx)
	return c.request(ctx, http.MethodPost, params, caller, harvest)
}

// request builds and executes a plain GET or form POST. The body is returned
// as decoded text; interpreting it is the caller's job.
func (c *Client) request(ctx context.Context, method string, params url.Values, caller string, harvest cookieScope) (string, error) {
	params = cloneValues(params)
	params.Set("format", "xml")

	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.site.APIURL()+"?"+params.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.site.APIURL(), strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	return c.execute(ctx, req, params.Get("action"), caller, harvest)
}

// postMultipart issues a multi-part write. Text fields are written as form
// fields; the file payload is transmitted as raw bytes with no text encoding.
func (c *Client) postMultipart(ctx context.Context, fields url.Values, filename string, file []byte, caller string) (string, error) {
	c.waitForLag(ctx)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("format", "xml"); err != nil {
		return "", err
	}
	for key := range fields {
		if err := w.WriteField(key, fields.Get(key)); err != nil {
			return "", err
		}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(file); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.site.APIURL(), &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return c.execute(ctx, req, fields.Get("action"), caller, scopeWrite)
}

// execute performs one HTTP exchange: cookie attach, timing, metrics, span,
// status check and cookie harvest.
func (c *Client) execute(ctx context.Context, req *http.Request, action, caller string, harvest cookieScope) (string, error) {
	_, span := tracing.StartSpan(ctx, "wiki.api")
	defer span.End()
	tracing.AddWikiAttributes(span, action, caller)

	ua := c.config.UserAgent
	if sig := c.site.Signature(); sig != "" {
		ua += " " + sig
	}
	req.Header.Set("User-Agent", ua)
	// Note: Accept-Encoding is managed by the transport; gzip is negotiated
	// automatically when compression is enabled in the config.

	if cookies := c.cookieHeader(); cookies != "" {
		req.Header.Set("Cookie", cookies)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(action, "error").Inc()
		tracing.RecordError(span, err)
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	metrics.RequestDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	metrics.RequestsTotal.WithLabelValues(action, strconv.Itoa(resp.StatusCode)).Inc()
	if err != nil {
		tracing.RecordError(span, err)
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := &APIError{Code: "http" + strconv.Itoa(resp.StatusCode), Info: resp.Status}
		tracing.RecordError(span, err)
		return "", err
	}

	if harvest != scopeNone {
		c.harvestCookies(resp, harvest)
	}

	return string(body), nil
}

// cookieHeader joins both cookie scopes into a request header value.
func (c *Client) cookieHeader() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	var sb strings.Builder
	for name, value := range c.readCookies {
		if sb.Len() > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(name + "=" + value)
	}
	for name, value := range c.writeCookies {
		if _, dup := c.readCookies[name]; dup {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(name + "=" + value)
	}
	return sb.String()
}

// harvestCookies stores freshly issued cookies into the selected scope.
func (c *Client) harvestCookies(resp *http.Response, scope cookieScope) {
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return
	}
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	store := c.writeCookies
	if scope == scopeRead {
		store = c.readCookies
	}
	for _, ck := range cookies {
		if ck.Value == "deleted" {
			delete(store, ck.Name)
			continue
		}
		store[ck.Name] = ck.Value
	}
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for key, vals := range v {
		out[key] = append([]string(nil), vals...)
	}
	return out
}
