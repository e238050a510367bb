package wiki

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/olavsk/mwclient/metrics"
)

type actionKind int

const (
	actionEdit actionKind = iota
	actionMove
	actionDelete
	actionRollback
	actionUpload
	actionEmail
)

func (k actionKind) String() string {
	switch k {
	case actionEdit:
		return "edit"
	case actionMove:
		return "move"
	case actionDelete:
		return "delete"
	case actionRollback:
		return "rollback"
	case actionUpload:
		return "upload"
	case actionEmail:
		return "email"
	}
	return "unknown"
}

// mutation describes one run through the write pipeline. prepare gathers the
// fresh token bundle and builds the request parameters; it may signal a
// silent skip (e.g. a stale rollback target). dispatch overrides the default
// form POST, used for multipart uploads.
type mutation struct {
	kind      actionKind
	title     string
	caller    string
	marker    string
	retriable bool
	prepare   func(ctx context.Context) (url.Values, bool, error)
	dispatch  func(ctx context.Context, params url.Values) (string, error)
}

// runMutation drives the write pipeline: status check, fresh token and
// permission check, dispatch, result classification, at most one retry on a
// transient failure, and the post-mutation throttle. The session lock is
// held for the full duration so concurrent writers serialize.
func (c *Client) runMutation(ctx context.Context, m mutation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.statusCheck(ctx); err != nil {
		return err
	}

	start := time.Now()
	defer c.throttleAfter(start)

	attempts := 1
	if m.retriable {
		attempts = 2
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		params, skip, err := m.prepare(ctx)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}
		c.applyAssertions(params)

		dispatch := m.dispatch
		if dispatch == nil {
			dispatch = func(ctx context.Context, p url.Values) (string, error) {
				return c.post(ctx, p, m.caller, scopeWrite)
			}
		}
		body, err := dispatch(ctx, params)
		if err != nil {
			return err
		}

		err = c.classifyMutation(body, m)
		if err == nil {
			c.logger.Info("mutation succeeded",
				"action", m.kind.String(),
				"title", m.title,
				"user", c.currentUserName(),
				"attempt", attempt)
			return nil
		}

		var transient *TransientError
		if errors.As(err, &transient) && attempt < attempts {
			metrics.MutationRetries.Inc()
			c.logger.Warn("retrying mutation after transient failure",
				"action", m.kind.String(),
				"title", m.title,
				"code", string(transient.Code))
			lastErr = err
			continue
		}
		c.logger.Warn("mutation failed",
			"action", m.kind.String(),
			"title", m.title,
			"user", c.currentUserName(),
			"error", err)
		return err
	}
	return lastErr
}

// classifyMutation maps a raw mutation response onto the error taxonomy.
// Absence of both an error element and the expected result marker is treated
// as transient: proxies occasionally swallow responses mid-write.
func (c *Client) classifyMutation(body string, m mutation) error {
	if err := checkError(body); err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return err
		}
		switch apiErr.Code {
		case "ratelimited", "readonly", "dblocked", "maxlag":
			return &TransientError{Code: ErrorCode(apiErr.Code), Info: apiErr.Info}
		case "blocked", "autoblocked":
			c.invalidateWrites()
			return &BlockedError{User: c.currentUserName()}
		case "protectedpage", "protectedtitle", "customcssjsprotected":
			return &PermissionError{
				Code:   CodeProtected,
				Title:  m.title,
				Action: m.kind.String(),
			}
		case "cascadeprotected":
			return &PermissionError{
				Code:    CodeCascade,
				Title:   m.title,
				Action:  m.kind.String(),
				Cascade: true,
			}
		case "assertuserfailed", "assertbotfailed", "badtoken", "notoken":
			return &SessionError{Reason: apiErr.Info}
		case "unknownerror":
			// Surface the raw body: these carry server-side detail the
			// info attribute drops.
			apiErr.Raw = body
			return apiErr
		default:
			return apiErr
		}
	}

	marker, ok := firstElement(body, m.marker)
	if !ok {
		return &TransientError{Code: "emptyresult", Info: "response carried no " + m.marker + " result"}
	}
	if result := marker.str("result"); result != "" && result != "Success" {
		return &APIError{Code: result, Info: m.kind.String() + " did not succeed", Raw: body}
	}
	return nil
}

func (c *Client) currentUserName() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.user == nil {
		return ""
	}
	return c.user.Name
}

// applyAssertions stamps the request with the strictest configured server-side
// assertion. The bot assertion subsumes the logged-in one.
func (c *Client) applyAssertions(params url.Values) {
	c.stateMu.RLock()
	flags := c.assertions
	c.stateMu.RUnlock()

	switch {
	case flags&AssertBot != 0:
		params.Set("assert", "bot")
	case flags&AssertLoggedIn != 0:
		params.Set("assert", "user")
	}
}

// checkPermission evaluates the page's protection state against the current
// session before any request is dispatched. Administrators bypass page
// protection entirely; everyone else is matched against the protection level.
func (c *Client) checkPermission(tok PageToken, kind actionKind) error {
	c.stateMu.RLock()
	user := c.user
	c.stateMu.RUnlock()

	if user != nil && user.IsAdmin() {
		return nil
	}

	deny := func(code ErrorCode) error {
		return &PermissionError{
			Code:    code,
			Title:   tok.Title,
			Action:  kind.String(),
			Level:   tok.Protection,
			Cascade: tok.Cascade,
		}
	}

	if tok.Cascade {
		return deny(CodeCascade)
	}

	switch tok.Protection {
	case ProtectionNone:
		return nil
	case SemiProtection:
		if user == nil {
			return deny(CodeProtected)
		}
	case MoveProtection:
		if kind == actionMove {
			return deny(CodeProtected)
		}
	case SemiAndMoveProtection:
		if kind == actionMove {
			return deny(CodeProtected)
		}
		if user == nil {
			return deny(CodeProtected)
		}
	case FullProtection:
		return deny(CodeProtected)
	case CreateProtection:
		if kind == actionEdit && !tok.Exists {
			return deny(CodeProtected)
		}
	case UploadProtection:
		if kind == actionUpload {
			return deny(CodeProtected)
		}
	}
	return nil
}

// requireRight checks that the logged-in user holds the named right.
func (c *Client) requireRight(right, action string) error {
	c.stateMu.RLock()
	user := c.user
	c.stateMu.RUnlock()

	if user == nil {
		return &SessionError{Reason: action + " requires a logged-in session"}
	}
	if !user.HasRight(right) {
		return &PermissionError{Code: CodeCapability, Action: action}
	}
	return nil
}

// EditArgs describes one edit. Section, when non-nil, replaces only that
// section of the page.
type EditArgs struct {
	Title   string
	Text    string
	Summary string
	Minor   bool
	Bot     bool
	Section *int
}

// Edit replaces the text of a page, creating it if absent.
func (c *Client) Edit(ctx context.Context, args EditArgs) error {
	if args.Title == "" {
		return &ValidationError{Field: "title", Message: "page title is required"}
	}
	title := normalizePageTitle(args.Title)

	return c.runMutation(ctx, mutation{
		kind:      actionEdit,
		title:     title,
		caller:    "edit",
		marker:    "edit",
		retriable: true,
		prepare: func(ctx context.Context) (url.Values, bool, error) {
			tok, err := c.pageToken(ctx, title)
			if err != nil {
				return nil, false, err
			}
			if err := c.checkPermission(tok, actionEdit); err != nil {
				return nil, false, err
			}

			sum := md5.Sum([]byte(args.Text))

			params := url.Values{}
			params.Set("action", "edit")
			params.Set("title", title)
			params.Set("text", args.Text)
			params.Set("summary", args.Summary)
			params.Set("token", tok.Token)
			params.Set("md5", hex.EncodeToString(sum[:]))
			if args.Minor {
				params.Set("minor", "1")
			} else {
				params.Set("notminor", "1")
			}
			if args.Bot {
				params.Set("bot", "1")
			}
			if args.Section != nil {
				params.Set("section", strconv.Itoa(*args.Section))
			}
			return params, false, nil
		},
	})
}

// MoveArgs describes a page move (rename).
type MoveArgs struct {
	From       string
	To         string
	Reason     string
	MoveTalk   bool
	NoRedirect bool
}

// Move renames a page. Requires the move right.
func (c *Client) Move(ctx context.Context, args MoveArgs) error {
	if args.From == "" || args.To == "" {
		return &ValidationError{Field: "title", Message: "both source and destination titles are required"}
	}
	from := normalizePageTitle(args.From)
	to := normalizePageTitle(args.To)
	if from == to {
		return &ValidationError{Field: "to", Message: "source and destination are the same page"}
	}

	return c.runMutation(ctx, mutation{
		kind:      actionMove,
		title:     from,
		caller:    "move",
		marker:    "move",
		retriable: true,
		prepare: func(ctx context.Context) (url.Values, bool, error) {
			if err := c.requireRight("move", "move"); err != nil {
				return nil, false, err
			}
			tok, err := c.pageToken(ctx, from)
			if err != nil {
				return nil, false, err
			}
			if !tok.Exists {
				return nil, false, &PageNotFoundError{Title: from}
			}
			if err := c.checkPermission(tok, actionMove); err != nil {
				return nil, false, err
			}

			params := url.Values{}
			params.Set("action", "move")
			params.Set("from", from)
			params.Set("to", to)
			params.Set("reason", args.Reason)
			params.Set("token", tok.Token)
			if args.MoveTalk {
				params.Set("movetalk", "1")
			}
			if args.NoRedirect {
				params.Set("noredirect", "1")
			}
			return params, false, nil
		},
	})
}

// Delete removes a page. Requires the delete right.
func (c *Client) Delete(ctx context.Context, title, reason string) error {
	if title == "" {
		return &ValidationError{Field: "title", Message: "page title is required"}
	}
	title = normalizePageTitle(title)

	return c.runMutation(ctx, mutation{
		kind:      actionDelete,
		title:     title,
		caller:    "delete",
		marker:    "delete",
		retriable: true,
		prepare: func(ctx context.Context) (url.Values, bool, error) {
			if err := c.requireRight("delete", "delete"); err != nil {
				return nil, false, err
			}
			tok, err := c.pageToken(ctx, title)
			if err != nil {
				return nil, false, err
			}
			if !tok.Exists {
				return nil, false, &PageNotFoundError{Title: title}
			}
			if err := c.checkPermission(tok, actionDelete); err != nil {
				return nil, false, err
			}

			params := url.Values{}
			params.Set("action", "delete")
			params.Set("title", title)
			params.Set("reason", reason)
			params.Set("token", tok.Token)
			return params, false, nil
		},
	})
}

// Rollback reverts the page to the last revision not authored by the author
// of rev. The call is a no-op when rev is no longer the page's top revision:
// someone else already dealt with it, and rolling back from a stale view
// would revert their work instead.
func (c *Client) Rollback(ctx context.Context, rev *Revision, summary string, markBot bool) error {
	if rev == nil {
		return &ValidationError{Field: "revision", Message: "revision is required"}
	}
	if rev.User == nil {
		return &ValidationError{Field: "revision", Message: "revision author is hidden; cannot roll back"}
	}
	title := normalizePageTitle(rev.Title)

	return c.runMutation(ctx, mutation{
		kind:      actionRollback,
		title:     title,
		caller:    "rollback",
		marker:    "rollback",
		retriable: true,
		prepare: func(ctx context.Context) (url.Values, bool, error) {
			if err := c.requireRight("rollback", "rollback"); err != nil {
				return nil, false, err
			}
			tok, err := c.pageToken(ctx, title)
			if err != nil {
				return nil, false, err
			}
			if err := c.checkPermission(tok, actionRollback); err != nil {
				return nil, false, err
			}
			top, err := c.GetTopRevision(ctx, title)
			if err != nil {
				return nil, false, err
			}
			if top.ID != rev.ID {
				c.logger.Info("skipping rollback of superseded revision",
					"title", title,
					"revision", rev.ID,
					"top", top.ID)
				return nil, true, nil
			}
			if top.RollbackToken == "" {
				return nil, false, &SessionError{Reason: "no rollback token issued"}
			}

			params := url.Values{}
			params.Set("action", "rollback")
			params.Set("title", title)
			params.Set("user", *rev.User)
			params.Set("summary", summary)
			params.Set("token", top.RollbackToken)
			if markBot {
				params.Set("markbot", "1")
			}
			return params, false, nil
		},
	})
}

// Undo reverts the change introduced by rev. When after is non-nil, every
// revision between after (exclusive) and rev (inclusive) is undone; both must
// belong to the same page.
func (c *Client) Undo(ctx context.Context, rev, after *Revision, summary string) error {
	if rev == nil {
		return &ValidationError{Field: "revision", Message: "revision is required"}
	}
	if after != nil && normalizePageTitle(after.Title) != normalizePageTitle(rev.Title) {
		return &ValidationError{Field: "after", Message: "revisions belong to different pages"}
	}
	title := normalizePageTitle(rev.Title)

	return c.runMutation(ctx, mutation{
		kind:      actionEdit,
		title:     title,
		caller:    "undo",
		marker:    "edit",
		retriable: true,
		prepare: func(ctx context.Context) (url.Values, bool, error) {
			tok, err := c.pageToken(ctx, title)
			if err != nil {
				return nil, false, err
			}
			if !tok.Exists {
				return nil, false, &PageNotFoundError{Title: title}
			}
			if err := c.checkPermission(tok, actionEdit); err != nil {
				return nil, false, err
			}

			params := url.Values{}
			params.Set("action", "edit")
			params.Set("title", title)
			params.Set("summary", summary)
			params.Set("token", tok.Token)
			params.Set("undo", strconv.FormatInt(rev.ID, 10))
			if after != nil {
				params.Set("undoafter", strconv.FormatInt(after.ID, 10))
			}
			return params, false, nil
		},
	})
}

// UploadArgs describes a file upload.
type UploadArgs struct {
	Filename string
	File     []byte
	Comment  string
	// IgnoreWarnings pushes past duplicate and badfilename warnings.
	IgnoreWarnings bool
}

// Upload sends file contents to the wiki. Requires the upload right. Uploads
// are never retried: a duplicate of a half-landed upload is worse than a
// reported failure.
func (c *Client) Upload(ctx context.Context, args UploadArgs) error {
	if args.Filename == "" {
		return &ValidationError{Field: "filename", Message: "destination filename is required"}
	}
	if len(args.File) == 0 {
		return &ValidationError{Field: "file", Message: "file contents are empty"}
	}
	title := normalizePageTitle("File:" + args.Filename)

	return c.runMutation(ctx, mutation{
		kind:      actionUpload,
		title:     title,
		caller:    "upload",
		marker:    "upload",
		retriable: false,
		prepare: func(ctx context.Context) (url.Values, bool, error) {
			if err := c.requireRight("upload", "upload"); err != nil {
				return nil, false, err
			}
			tok, err := c.pageToken(ctx, title)
			if err != nil {
				return nil, false, err
			}
			if err := c.checkPermission(tok, actionUpload); err != nil {
				return nil, false, err
			}

			params := url.Values{}
			params.Set("action", "upload")
			params.Set("filename", args.Filename)
			params.Set("comment", args.Comment)
			params.Set("token", tok.Token)
			if args.IgnoreWarnings {
				params.Set("ignorewarnings", "1")
			}
			return params, false, nil
		},
		dispatch: func(ctx context.Context, params url.Values) (string, error) {
			return c.postMultipart(ctx, params, args.Filename, args.File, "upload")
		},
	})
}

// EmailArgs describes an email sent through the wiki to another account.
type EmailArgs struct {
	To      string
	Subject string
	Body    string
	// CCMe delivers a copy to the sender.
	CCMe bool
}

// EmailUser sends an email to another account through the wiki's relay. The
// recipient must exist and accept email.
func (c *Client) EmailUser(ctx context.Context, args EmailArgs) error {
	if args.To == "" {
		return &ValidationError{Field: "to", Message: "recipient is required"}
	}

	return c.runMutation(ctx, mutation{
		kind:      actionEmail,
		title:     "User:" + args.To,
		caller:    "emailUser",
		marker:    "emailuser",
		retriable: true,
		prepare: func(ctx context.Context) (url.Values, bool, error) {
			if err := c.requireRight("sendemail", "email"); err != nil {
				return nil, false, err
			}
			target, err := c.GetUser(ctx, args.To)
			if err != nil {
				return nil, false, err
			}
			if !target.Emailable {
				return nil, false, &PermissionError{
					Code:   CodeCapability,
					Title:  "User:" + args.To,
					Action: actionEmail.String(),
				}
			}
			tok, err := c.pageToken(ctx, "User:"+args.To)
			if err != nil {
				return nil, false, err
			}
			if err := c.checkPermission(tok, actionEmail); err != nil {
				return nil, false, err
			}

			params := url.Values{}
			params.Set("action", "emailuser")
			params.Set("target", args.To)
			params.Set("subject", args.Subject)
			params.Set("text", args.Body)
			params.Set("token", tok.Token)
			if args.CCMe {
				params.Set("ccme", "1")
			}
			return params, false, nil
		},
	})
}
