package wiki

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The response format is a stream of attribute-bearing fragments with a
// server-defined grammar. Decoding is deliberately tolerant: unknown
// attributes are ignored and a missing attribute maps to the zero value (or
// nil for redactable fields), never to a decode failure.

var attrPattern = regexp.MustCompile(`([\w:-]+)\s*=\s*"([^"]*)"`)

// element is one decoded fragment: its attributes plus any enclosed text.
type element struct {
	attrs map[string]string
	inner string
}

func (e element) attr(key string) (string, bool) {
	v, ok := e.attrs[key]
	return v, ok
}

// has reports attribute presence, including value-less flags like minor="".
func (e element) has(key string) bool {
	_, ok := e.attrs[key]
	return ok
}

func (e element) str(key string) string {
	return e.attrs[key]
}

// strPtr maps attribute absence to nil, preserving redaction semantics.
func (e element) strPtr(key string) *string {
	if v, ok := e.attrs[key]; ok {
		return &v
	}
	return nil
}

func (e element) intval(key string) int {
	n, _ := strconv.Atoi(e.attrs[key])
	return n
}

func (e element) int64val(key string) int64 {
	n, _ := strconv.ParseInt(e.attrs[key], 10, 64)
	return n
}

func (e element) timeval(key string) time.Time {
	t, _ := time.Parse(time.RFC3339, e.attrs[key])
	return t
}

// parseAttributes decodes every key="value" pair in fragment, reversing
// entity escapes in the values.
func parseAttributes(fragment string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(fragment, -1) {
		attrs[m[1]] = html.UnescapeString(m[2])
	}
	return attrs
}

// findElements returns every <name ...> fragment in body. For container
// elements the enclosed text is returned raw in inner; nested elements of the
// same name are not supported (the wire format does not produce them).
func findElements(body, name string) []element {
	var out []element
	search := body
	open := "<" + name
	for {
		start := strings.Index(search, open)
		if start < 0 {
			return out
		}
		rest := search[start+len(open):]
		// Reject prefix matches like <pages> when looking for <page>.
		if rest == "" || (rest[0] != ' ' && rest[0] != '>' && rest[0] != '/' && rest[0] != '\t' && rest[0] != '\n') {
			search = search[start+len(open):]
			continue
		}
		end := strings.Index(rest, ">")
		if end < 0 {
			return out
		}
		tag := rest[:end]
		e := element{attrs: parseAttributes(tag)}
		search = rest[end+1:]
		if !strings.HasSuffix(tag, "/") {
			closeTag := "</" + name + ">"
			if closeIdx := strings.Index(search, closeTag); closeIdx >= 0 {
				e.inner = search[:closeIdx]
				search = search[closeIdx+len(closeTag):]
			}
		}
		out = append(out, e)
	}
}

// firstElement returns the first <name ...> fragment, if any.
func firstElement(body, name string) (element, bool) {
	elems := findElements(body, name)
	if len(elems) == 0 {
		return element{}, false
	}
	return elems[0], true
}

// elementTexts returns the decoded text content of each <name>...</name>.
func elementTexts(body, name string) []string {
	var out []string
	for _, e := range findElements(body, name) {
		out = append(out, html.UnescapeString(strings.TrimSpace(e.inner)))
	}
	return out
}

// continuationToken extracts the named continuation value from a response, or
// "" when the server signals exhaustion by omitting it.
func continuationToken(body, name string) string {
	if e, ok := firstElement(body, "continue"); ok {
		return e.str(name)
	}
	return ""
}

// checkError returns the response's error element as an APIError, or nil.
func checkError(body string) error {
	e, ok := firstElement(body, "error")
	if !ok {
		return nil
	}
	return &APIError{Code: e.str("code"), Info: e.str("info")}
}

// parseRevision builds a Revision from an attribute fragment. Redacted
// authors and summaries come back nil; a size may arrive as either a plain
// length or a new-length depending on the endpoint.
func parseRevision(e element, fallbackTitle string) Revision {
	rev := Revision{
		ID:            e.int64val("revid"),
		Timestamp:     e.timeval("timestamp"),
		Title:         e.str("title"),
		Minor:         e.has("minor"),
		Bot:           e.has("bot"),
		RCID:          e.int64val("rcid"),
		RollbackToken: e.str("rollbacktoken"),
	}
	if rev.Title == "" {
		rev.Title = fallbackTitle
	}
	if e.has("size") {
		rev.Size = e.intval("size")
	} else if e.has("newlen") {
		rev.Size = e.intval("newlen")
	}
	if !e.has("userhidden") {
		rev.User = e.strPtr("user")
	}
	if !e.has("commenthidden") {
		rev.Summary = e.strPtr("comment")
	}
	return rev
}

// parseLogEntry builds a LogEntry, branching on the log type before
// interpreting the trailing details payload.
func parseLogEntry(e element) LogEntry {
	entry := LogEntry{
		Type:      e.str("type"),
		Timestamp: e.timeval("timestamp"),
	}
	if !e.has("actionhidden") {
		entry.Action = e.strPtr("action")
	}
	if !e.has("commenthidden") {
		entry.Reason = e.strPtr("comment")
	}
	if !e.has("userhidden") {
		entry.User = e.strPtr("user")
	}
	if !e.has("suppressed") {
		entry.Target = e.strPtr("title")
	}
	entry.Details = parseLogDetails(entry.Type, e)
	return entry
}

var (
	editRestriction = regexp.MustCompile(`\[edit=(\w+)\]`)
	moveRestriction = regexp.MustCompile(`\[move=(\w+)\]`)
)

func parseLogDetails(logType string, e element) LogDetails {
	params, ok := firstElement(e.inner, "params")
	if !ok {
		return nil
	}
	switch logType {
	case "move":
		return MoveDetails{NewTitle: params.str("target_title")}
	case "renameuser":
		return RenameDetails{NewName: params.str("newuser")}
	case "block":
		d := BlockDetails{Duration: params.str("duration")}
		if flags := params.str("flags"); flags != "" {
			d.Flags = strings.Split(flags, ",")
		}
		return d
	case "rights":
		return RightsDetails{Rights: elementTexts(params.inner, "g")}
	case "protect":
		desc := params.str("description")
		var edit, move string
		if m := editRestriction.FindStringSubmatch(desc); m != nil {
			edit = m[1]
		}
		if m := moveRestriction.FindStringSubmatch(desc); m != nil {
			move = m[1]
		}
		return ProtectDetails{
			Level:   protectionLevel(edit, move),
			Cascade: strings.Contains(desc, "[cascading]"),
		}
	}
	return nil
}

// protectionLevel maps edit/move restriction levels to a Protection value.
func protectionLevel(edit, move string) Protection {
	switch {
	case edit == "sysop":
		return FullProtection
	case edit == "autoconfirmed" && move == "sysop":
		return SemiAndMoveProtection
	case edit == "autoconfirmed":
		return SemiProtection
	case move == "sysop":
		return MoveProtection
	}
	return ProtectionNone
}

// parseProtection folds a page's <pr> restriction fragments into a single
// level plus the cascade flag.
func parseProtection(body string) (Protection, bool) {
	var edit, move string
	var create, upload, cascade bool
	for _, pr := range findElements(body, "pr") {
		if pr.has("cascade") {
			cascade = true
		}
		switch pr.str("type") {
		case "edit":
			edit = pr.str("level")
		case "move":
			move = pr.str("level")
		case "create":
			create = true
		case "upload":
			upload = true
		}
	}
	switch {
	case upload:
		return UploadProtection, cascade
	case create:
		return CreateProtection, cascade
	}
	return protectionLevel(edit, move), cascade
}

// parsePageToken builds the mutation-prerequisite bundle from a page info
// fragment. Missing pages still carry a usable token.
func parsePageToken(e element, body string) PageToken {
	prot, cascade := parseProtection(body)
	return PageToken{
		Title:      e.str("title"),
		Exists:     !e.has("missing"),
		Protection: prot,
		Cascade:    cascade,
		Token:      e.str("edittoken"),
		LastRevID:  e.int64val("lastrevid"),
		Size:       e.intval("length"),
	}
}

// parseUserRecord builds a User from a user or userinfo fragment, pulling
// rights and groups from the enclosed lists.
func parseUserRecord(e element) User {
	return User{
		Name:      e.str("name"),
		EditCount: e.intval("editcount"),
		Emailable: e.has("emailable"),
		Rights:    elementTexts(e.inner, "r"),
		Groups:    elementTexts(e.inner, "g"),
	}
}
