// Package urn parses and builds URNs of the form urn:<nid>:<nss>[/<path>][?<query>][#<fragment>].
package urn

import (
	"encoding"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/tinylib/msgp/msgp"
)

var (
	// ErrSchemeExpected is returned when the parsed string has a scheme other than urn.
	ErrSchemeExpected = errors.New("invalid URN: URN scheme expected, but not found")
	// ErrInvalid is returned when the string is not a recognizable URN.
	ErrInvalid = errors.New("invalid URN: unrecognizable URN format")
)

var pattern = regexp.MustCompile(`^([A-Za-z0-9\-._]+):([A-Za-z0-9.\-_:]+)(?:/([A-Za-z0-9/\-]*))?$`)

var (
	_ fmt.Stringer             = URN{}
	_ encoding.TextMarshaler   = URN{}
	_ encoding.TextUnmarshaler = (*URN)(nil)
	_ msgp.Marshaler           = URN{}
	_ msgp.Unmarshaler         = (*URN)(nil)
)

// URN is comparable, two URNs are equal if all their parts are.
type URN struct {
	nid         string
	nss         string
	path        string
	query       string
	fragment    string
	hasPath     bool
	hasQuery    bool
	hasFragment bool
}

func Parse(s string) (URN, error) {
	u, err := url.Parse(s)
	if err != nil {
		return URN{}, ErrInvalid
	}
	if u.Scheme != "urn" {
		return URN{}, ErrSchemeExpected
	}

	m := pattern.FindStringSubmatchIndex(u.Opaque)
	if m == nil {
		return URN{}, ErrInvalid
	}

	urn := URN{
		nid:         u.Opaque[m[2]:m[3]],
		nss:         u.Opaque[m[4]:m[5]],
		query:       u.RawQuery,
		fragment:    u.EscapedFragment(),
		hasQuery:    u.ForceQuery || u.RawQuery != "",
		hasFragment: strings.Contains(s, "#"),
	}
	if m[6] >= 0 {
		urn.path = u.Opaque[m[6]:m[7]]
		urn.hasPath = true
	}

	return urn, nil
}

// MustParse is like [Parse] but panics on error.
func MustParse(s string) URN {
	urn, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return urn
}

// NID returns the namespace identifier.
func (u URN) NID() string { return u.nid }

// NSS returns the namespace-specific string.
func (u URN) NSS() string { return u.nss }

func (u URN) Path() (string, bool)     { return u.path, u.hasPath }
func (u URN) Query() (string, bool)    { return u.query, u.hasQuery }
func (u URN) Fragment() (string, bool) { return u.fragment, u.hasFragment }

func (u URN) IsZero() bool {
	return u == URN{}
}

func (u URN) String() string {
	var sb strings.Builder
	sb.WriteString("urn:")
	sb.WriteString(u.nid)
	sb.WriteByte(':')
	sb.WriteString(u.nss)
	if u.hasPath {
		sb.WriteByte('/')
		sb.WriteString(u.path)
	}
	if u.hasQuery {
		sb.WriteByte('?')
		sb.WriteString(u.query)
	}
	if u.hasFragment {
		sb.WriteByte('#')
		sb.WriteString(u.fragment)
	}
	return sb.String()
}

func (u URN) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *URN) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// MarshalMsg appends the URN to b as a MessagePack string.
func (u URN) MarshalMsg(b []byte) ([]byte, error) {
	return msgp.AppendString(b, u.String()), nil
}

func (u *URN) UnmarshalMsg(b []byte) ([]byte, error) {
	s, o, err := msgp.ReadStringBytes(b)
	if err != nil {
		return b, err
	}
	parsed, err := Parse(s)
	if err != nil {
		return b, err
	}
	*u = parsed
	return o, nil
}
