package wiki

import "time"

// Query limits. Accounts holding the apihighlimits right may request the
// elevated page size; everyone else gets the default.
const (
	DefaultQueryLimit  = 500
	ElevatedQueryLimit = 5000
)

// Protection is the nominal protection level of a page. Cascading protection
// is tracked separately on PageToken because it combines with any level.
type Protection int

const (
	ProtectionNone Protection = iota
	SemiProtection
	FullProtection
	MoveProtection
	SemiAndMoveProtection
	CreateProtection
	UploadProtection
)

func (p Protection) String() string {
	switch p {
	case ProtectionNone:
		return "none"
	case SemiProtection:
		return "semi"
	case FullProtection:
		return "full"
	case MoveProtection:
		return "move"
	case SemiAndMoveProtection:
		return "semi+move"
	case CreateProtection:
		return "create"
	case UploadProtection:
		return "upload"
	}
	return "unknown"
}

// Assertion flags checked by the status checker between mutations.
// Combine with bitwise OR.
const (
	AssertNone       = 0
	AssertLoggedIn   = 1 << 0
	AssertBot        = 1 << 1
	AssertNoMessages = 1 << 2
)

// User is a wiki account. For the session's own identity the rights, groups
// and edit count are cached at login and refreshed by the status checker or
// an explicit RefreshUserInfo call, never by a timer.
type User struct {
	Name      string   `json:"name"`
	Rights    []string `json:"rights,omitempty"`
	Groups    []string `json:"groups,omitempty"`
	EditCount int      `json:"edit_count,omitempty"`
	Emailable bool     `json:"emailable,omitempty"`
}

// HasRight reports whether the user holds the named right.
func (u *User) HasRight(right string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Rights {
		if r == right {
			return true
		}
	}
	return false
}

// InGroup reports whether the user belongs to the named group.
func (u *User) InGroup(group string) bool {
	if u == nil {
		return false
	}
	for _, g := range u.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user is a sysop.
func (u *User) IsAdmin() bool {
	return u.InGroup("sysop")
}

// Revision is one page revision. Summary and User are nil when the server
// redacted ("hid") them. Revisions are immutable and ordered by timestamp.
type Revision struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Title         string    `json:"title"`
	Summary       *string   `json:"summary"`
	User          *string   `json:"user"`
	Minor         bool      `json:"minor,omitempty"`
	Bot           bool      `json:"bot,omitempty"`
	Size          int       `json:"size"`
	RCID          int64     `json:"rcid,omitempty"`
	RollbackToken string    `json:"-"`
}

// Before reports whether r was made earlier than other.
func (r Revision) Before(other Revision) bool {
	return r.Timestamp.Before(other.Timestamp)
}

// LogEntry is one entry from the server's public logs. Action, Reason, User
// and Target are nil when redacted. Details carries the payload whose shape
// depends on the log type.
type LogEntry struct {
	Type      string     `json:"type"`
	Action    *string    `json:"action"`
	Reason    *string    `json:"reason"`
	User      *string    `json:"user"`
	Target    *string    `json:"target"`
	Timestamp time.Time  `json:"timestamp"`
	Details   LogDetails `json:"details,omitempty"`
}

// LogDetails is the type-specific payload of a log entry. Concrete types:
// MoveDetails, RenameDetails, BlockDetails, RightsDetails, ProtectDetails.
// A nil Details means the entry carries no payload.
type LogDetails interface {
	logDetails()
}

// MoveDetails is the payload of a page move.
type MoveDetails struct {
	NewTitle string `json:"new_title"`
}

// RenameDetails is the payload of a user rename.
type RenameDetails struct {
	NewName string `json:"new_name"`
}

// BlockDetails is the payload of a user block.
type BlockDetails struct {
	Duration string   `json:"duration"`
	Flags    []string `json:"flags,omitempty"`
}

// RightsDetails is the payload of a rights change.
type RightsDetails struct {
	Rights []string `json:"rights"`
}

// ProtectDetails is the payload of a protection change.
type ProtectDetails struct {
	Level   Protection `json:"level"`
	Cascade bool       `json:"cascade,omitempty"`
}

func (MoveDetails) logDetails()    {}
func (RenameDetails) logDetails()  {}
func (BlockDetails) logDetails()   {}
func (RightsDetails) logDetails()  {}
func (ProtectDetails) logDetails() {}

// PageToken is the per-mutation prerequisite bundle for a page. It is fetched
// fresh before every mutating call and never cached: both the token and the
// protection state can change between calls.
type PageToken struct {
	Title      string
	Exists     bool
	Protection Protection
	Cascade    bool
	Token      string
	LastRevID  int64
	Size       int
}

// ExternalUsage is one hit from an external link search: the page using the
// URL and the URL itself.
type ExternalUsage struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// InterwikiUsage is one hit from an interwiki backlink query.
type InterwikiUsage struct {
	Title     string `json:"title"`
	Prefix    string `json:"prefix"`
	LinkTitle string `json:"link_title"`
}
