package address

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Query parameter names recognized on collection addresses.
const (
	ParamGroupBy = "groupBy"
	ParamHaving  = "having"
	ParamLimit   = "limit"
)

// Kind classifies an address. Only Collection and Item are valid; the zero
// value never comes out of Classify without an error.
type Kind int

const (
	// Invalid is the zero Kind.
	Invalid Kind = iota
	// Collection identifies a whole table.
	Collection
	// Item identifies one row by integer id.
	Item
)

func (k Kind) String() string {
	switch k {
	case Collection:
		return "collection"
	case Item:
		return "item"
	default:
		return "invalid"
	}
}

// Address is an immutable resource locator.
//
// The path is stored escaped and without a leading slash so that the struct
// stays comparable.
type Address struct {
	scheme    string
	authority string
	path      string
	query     string
}

// Resolved is the result of classifying an address.
type Resolved struct {
	Kind  Kind
	Table string
	// ID is the row id for Item addresses, zero otherwise.
	ID int64
}

// Modifiers are the query restrictions carried by a collection address.
// Empty fields mean no restriction.
type Modifiers struct {
	GroupBy string
	Having  string
	Limit   string
}

var limitPattern = regexp.MustCompile(`^\s*\d+\s*(,\s*\d+\s*)?$`)

// Parse parses a raw address string.
// Empty path segments are skipped, matching how hierarchical URIs are
// usually segmented. Parse does not classify: an address with zero or three
// segments parses fine and fails later in Classify.
func Parse(raw string) (Address, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Address{}, &Error{Address: raw, Reason: err.Error()}
	}
	if u.Scheme == "" {
		return Address{}, &Error{Address: raw, Reason: "missing scheme"}
	}
	if u.Host == "" {
		return Address{}, &Error{Address: raw, Reason: "missing authority"}
	}

	var segments []string
	for _, seg := range strings.Split(u.EscapedPath(), "/") {
		if seg == "" {
			continue
		}
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return Address{}, &Error{Address: raw, Reason: err.Error()}
		}
		segments = append(segments, decoded)
	}
	a := New(u.Scheme, u.Host, segments...)
	a.query = u.RawQuery
	return a, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level constants.
func MustParse(raw string) Address {
	a, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return a
}

// New builds an address from unescaped path segments.
func New(scheme, authority string, segments ...string) Address {
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}
	return Address{
		scheme:    scheme,
		authority: authority,
		path:      strings.Join(escaped, "/"),
	}
}

// IsZero reports whether a is the zero Address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Scheme returns the address scheme, e.g. "content".
func (a Address) Scheme() string { return a.scheme }

// Authority returns the address authority, e.g. "app".
func (a Address) Authority() string { return a.authority }

// RawQuery returns the encoded query component without the leading '?'.
func (a Address) RawQuery() string { return a.query }

// Segments returns the unescaped path segments.
func (a Address) Segments() []string {
	if a.path == "" {
		return nil
	}
	parts := strings.Split(a.path, "/")
	for i, p := range parts {
		// Segments were escaped by New, unescaping cannot fail.
		if s, err := url.PathUnescape(p); err == nil {
			parts[i] = s
		}
	}
	return parts
}

// WithQuery returns a copy of a with the given query parameters.
func (a Address) WithQuery(q url.Values) Address {
	a.query = q.Encode()
	return a
}

// String returns the canonical textual form of the address.
func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	var b strings.Builder
	b.WriteString(a.scheme)
	b.WriteString("://")
	b.WriteString(a.authority)
	if a.path != "" {
		b.WriteByte('/')
		b.WriteString(a.path)
	}
	if a.query != "" {
		b.WriteByte('?')
		b.WriteString(a.query)
	}
	return b.String()
}

// Classify reports whether a is a collection or an item address.
func Classify(a Address) (Kind, error) {
	segments := a.Segments()
	switch {
	case len(segments) == 1:
		return Collection, nil
	case len(segments) == 2 && isDigitsOnly(segments[1]):
		return Item, nil
	}
	return Invalid, &Error{
		Address: a.String(),
		Reason:  fmt.Sprintf("unknown shape (%d path segments)", len(segments)),
	}
}

// Resolve classifies a and extracts its table and row id.
func Resolve(a Address) (Resolved, error) {
	kind, err := Classify(a)
	if err != nil {
		return Resolved{}, err
	}
	segments := a.Segments()
	r := Resolved{Kind: kind, Table: segments[0]}
	if kind == Item {
		id, err := strconv.ParseInt(segments[1], 10, 64)
		if err != nil {
			return Resolved{}, &Error{Address: a.String(), Reason: "row id out of range"}
		}
		r.ID = id
	}
	return r, nil
}

// TableName returns the first path segment verbatim.
func TableName(a Address) (string, error) {
	if _, err := Classify(a); err != nil {
		return "", err
	}
	return a.Segments()[0], nil
}

// Base returns the canonical collection address for a: same scheme,
// authority and table, no row segment and no query.
func Base(a Address) (Address, error) {
	table, err := TableName(a)
	if err != nil {
		return Address{}, err
	}
	return New(a.scheme, a.authority, table), nil
}

// WithID appends a row id to a, keeping its query.
func WithID(a Address, id int64) Address {
	out := a
	if out.path == "" {
		out.path = strconv.FormatInt(id, 10)
	} else {
		out.path = a.path + "/" + strconv.FormatInt(id, 10)
	}
	return out
}

// ParseID returns the row id carried by an item address.
func ParseID(a Address) (int64, error) {
	r, err := Resolve(a)
	if err != nil {
		return 0, err
	}
	if r.Kind != Item {
		return 0, &Error{Address: a.String(), Reason: "not an item address"}
	}
	return r.ID, nil
}

// ModifiersOf extracts groupBy, having and limit from the query component.
// The limit must be "n" or "offset,n"; it is spliced into SQL and anything
// else is rejected.
func ModifiersOf(a Address) (Modifiers, error) {
	if a.query == "" {
		return Modifiers{}, nil
	}
	q, err := url.ParseQuery(a.query)
	if err != nil {
		return Modifiers{}, &Error{Address: a.String(), Reason: err.Error()}
	}
	m := Modifiers{
		GroupBy: q.Get(ParamGroupBy),
		Having:  q.Get(ParamHaving),
		Limit:   q.Get(ParamLimit),
	}
	if m.Limit != "" && !limitPattern.MatchString(m.Limit) {
		return Modifiers{}, &Error{Address: a.String(), Reason: fmt.Sprintf("invalid limit %q", m.Limit)}
	}
	return m, nil
}

// ResourceKind describes a for response-format negotiation:
// "collection-of-<table>" or "item-of-<table>".
func ResourceKind(a Address) (string, error) {
	r, err := Resolve(a)
	if err != nil {
		return "", err
	}
	return kindName(r), nil
}

func kindName(r Resolved) string {
	switch r.Kind {
	case Collection:
		return "collection-of-" + r.Table
	case Item:
		return "item-of-" + r.Table
	default:
		return ""
	}
}

func isDigitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
