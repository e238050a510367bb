package wiki

import (
	"fmt"
	"strings"
)

// ErrorCode identifies an error class for programmatic handling.
type ErrorCode string

const (
	// Authentication error codes
	CodeBadCredentials ErrorCode = "AUTH_BAD_CREDENTIALS"
	CodeUnknownAccount ErrorCode = "AUTH_UNKNOWN_ACCOUNT"
	CodeLoginFailure   ErrorCode = "AUTH_LOGIN_FAILURE"

	// Permission error codes
	CodeProtected  ErrorCode = "PERMISSION_PROTECTED"
	CodeCascade    ErrorCode = "PERMISSION_CASCADE"
	CodeCapability ErrorCode = "PERMISSION_CAPABILITY"

	// Session error codes
	CodeBlocked        ErrorCode = "SESSION_BLOCKED"
	CodeSessionExpired ErrorCode = "SESSION_EXPIRED"

	// Transient error codes
	CodeRateLimited ErrorCode = "TRANSIENT_RATE_LIMITED"
	CodeDBLocked    ErrorCode = "TRANSIENT_DB_LOCKED"

	// Validation and assertion error codes
	CodeValidation ErrorCode = "VALIDATION_INVALID"
	CodeAssertion  ErrorCode = "ASSERTION_FAILED"
)

// LoginError indicates a failed credential exchange. It is surfaced after the
// anti-brute-force cool-down, never retried.
type LoginError struct {
	Code     ErrorCode
	Username string
	Reason   string
}

func (e *LoginError) Error() string {
	switch e.Code {
	case CodeBadCredentials:
		return fmt.Sprintf("login failed for %q: wrong password", e.Username)
	case CodeUnknownAccount:
		return fmt.Sprintf("login failed: account %q does not exist", e.Username)
	}
	if e.Reason != "" {
		return fmt.Sprintf("login failed for %q: %s", e.Username, e.Reason)
	}
	return fmt.Sprintf("login failed for %q", e.Username)
}

// PermissionError indicates the permission check rejected a mutation before
// it was dispatched. Never retried.
type PermissionError struct {
	Code    ErrorCode
	Title   string
	Action  string
	Level   Protection
	Cascade bool
}

func (e *PermissionError) Error() string {
	if e.Cascade {
		return fmt.Sprintf("cannot %s %q: page is cascade-protected", e.Action, e.Title)
	}
	return fmt.Sprintf("cannot %s %q: page protection is %s", e.Action, e.Title, e.Level)
}

// BlockedError indicates the account is blocked or autoblocked. The session
// is invalidated for further writes when this is raised.
type BlockedError struct {
	User string
}

func (e *BlockedError) Error() string {
	if e.User == "" {
		return "account is blocked from making changes"
	}
	return fmt.Sprintf("account %q is blocked from making changes", e.User)
}

// SessionError indicates the write session is no longer valid, typically
// because the server-side session or write cookies expired.
type SessionError struct {
	Reason string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session no longer valid: %s", e.Reason)
}

// TransientError is a server condition worth one retry: rate limiting or a
// locked/read-only database. A second occurrence is surfaced as fatal.
type TransientError struct {
	Code ErrorCode
	Info string
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient server failure [%s]: %s", e.Code, e.Info)
}

// APIError is a structured error element returned by the remote API, or an
// unrecognized response. Raw carries the response body for diagnosis when the
// error marker is unknown.
type APIError struct {
	Code string
	Info string
	Raw  string
}

func (e *APIError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "API error [%s]: %s", e.Code, e.Info)
	if e.Raw != "" {
		raw := e.Raw
		if len(raw) > 200 {
			raw = raw[:200] + "..."
		}
		fmt.Fprintf(&sb, " (response: %q)", raw)
	}
	return sb.String()
}

// ValidationError is a local precondition failure raised before any network
// call. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// AssertionError indicates a configured session assertion no longer holds.
// This is an operator error, not a retryable condition.
type AssertionError struct {
	Assertion string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("session assertion failed: %s", e.Assertion)
}

// PageNotFoundError indicates a read targeted a page that does not exist.
type PageNotFoundError struct {
	Title string
}

func (e *PageNotFoundError) Error() string {
	return fmt.Sprintf("page %q does not exist", e.Title)
}
