package snippet

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// A Snippet is one remote audio chunk identified by its locator (a presigned
// URL or raw object key). Metadata is parsed eagerly at construction and is
// immutable afterwards.
type Snippet struct {
	Locator string
	Meta    Metadata
}

// Metadata is everything derivable from a snippet locator.
type Metadata struct {
	Room      string
	UserID    string
	StartTime Timestamp
}

// ParseError reports a malformed locator.
type ParseError struct {
	Field  string // "room", "user_id" or "start_time"
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Field, e.Reason)
}

// New parses the locator into a Snippet. Any missing or malformed segment
// yields a *ParseError.
func New(locator string) (*Snippet, error) {
	meta, err := Parse(locator)
	if err != nil {
		return nil, err
	}
	return &Snippet{Locator: locator, Meta: meta}, nil
}

// Parse extracts room, user id and start time from a locator.
func Parse(locator string) (Metadata, error) {
	room, err := Room(locator)
	if err != nil {
		return Metadata{}, err
	}
	uid, err := UserID(locator)
	if err != nil {
		return Metadata{}, err
	}
	start, err := StartTime(locator)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{Room: room, UserID: uid, StartTime: start}, nil
}

// locatorPath normalizes a locator to a slash path without a leading slash.
// Presigned URLs contribute only their path component, so a URL and the raw
// object key it was signed from parse identically.
func locatorPath(locator string) string {
	p := locator
	if u, err := url.Parse(locator); err == nil && u.Scheme != "" {
		p = u.Path
	}
	return strings.TrimPrefix(p, "/")
}

// Room returns the room identifier: the second path segment. Keys are shaped
// room/<digits>/..., so this is the <digits> segment for both raw keys and
// presigned URL paths.
func Room(locator string) (string, error) {
	segs := strings.Split(locatorPath(locator), "/")
	if len(segs) < 3 {
		return "", &ParseError{Field: "room", Reason: fmt.Sprintf("locator has %d path segments, need at least 3", len(segs))}
	}
	return segs[1], nil
}

const userTag = "uid_s"

// UserID scans double-underscore delimited segments for one tagged uid_s_<id>
// and returns the numeric suffix.
func UserID(locator string) (string, error) {
	for _, seg := range strings.Split(locatorPath(locator), "__") {
		if !strings.HasPrefix(seg, userTag) {
			continue
		}
		parts := strings.Split(seg, "_")
		if len(parts) < 3 || parts[2] == "" {
			return "", &ParseError{Field: "user_id", Reason: fmt.Sprintf("malformed user tag %q", seg)}
		}
		return parts[2], nil
	}
	return "", &ParseError{Field: "user_id", Reason: "no uid_s segment in locator"}
}

// StartTime takes the filename, strips its extension, and parses the suffix
// after the last underscore as a timestamp.
func StartTime(locator string) (Timestamp, error) {
	name := path.Base(locatorPath(locator))
	name = strings.TrimSuffix(name, path.Ext(name))
	idx := strings.LastIndex(name, "_")
	if idx < 0 {
		return Timestamp{}, &ParseError{Field: "start_time", Reason: fmt.Sprintf("filename %q has no underscore-delimited timestamp suffix", name)}
	}
	ts, err := ParseTimestamp(name[idx+1:])
	if err != nil {
		return Timestamp{}, &ParseError{Field: "start_time", Reason: err.Error()}
	}
	return ts, nil
}

const (
	tsLayout = "20060102150405" // seconds resolution; output format
)

// Timestamp is a snippet timestamp with seconds resolution plus optional
// milliseconds, carried alongside its original string form.
type Timestamp struct {
	raw string
	t   time.Time
}

// ParseTimestamp parses YYYYMMDDHHMMSS with optional trailing millisecond
// digits (YYYYMMDDHHMMSSmmm).
func ParseTimestamp(s string) (Timestamp, error) {
	if len(s) < len(tsLayout) {
		return Timestamp{}, fmt.Errorf("timestamp %q too short", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return Timestamp{}, fmt.Errorf("timestamp %q is not numeric", s)
		}
	}
	t, err := time.Parse(tsLayout, s[:len(tsLayout)])
	if err != nil {
		return Timestamp{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	// Sub-second digits: up to 3 retained as milliseconds.
	frac := s[len(tsLayout):]
	if len(frac) > 3 {
		frac = frac[:3]
	}
	ms := 0
	for _, r := range frac {
		ms = ms*10 + int(r-'0')
	}
	for i := len(frac); i < 3 && i > 0; i++ {
		ms *= 10
	}
	t = t.Add(time.Duration(ms) * time.Millisecond)
	return Timestamp{raw: s, t: t}, nil
}

// String returns the timestamp exactly as it appeared in the locator.
func (ts Timestamp) String() string { return ts.raw }

// Time returns the parsed wall-clock value.
func (ts Timestamp) Time() time.Time { return ts.t }

// IsZero reports whether the timestamp was never parsed.
func (ts Timestamp) IsZero() bool { return ts.raw == "" }

// Before reports whether ts is strictly earlier than other.
func (ts Timestamp) Before(other Timestamp) bool { return ts.t.Before(other.t) }

// EndTime adds an artifact duration (truncated to whole seconds) to a start
// time and formats the result at seconds resolution.
func EndTime(start Timestamp, duration time.Duration) string {
	secs := time.Duration(int64(duration.Seconds())) * time.Second
	return start.Time().Add(secs).Format(tsLayout)
}
