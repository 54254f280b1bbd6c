package format

import (
	"mime"
	"sort"
	"strings"

	"golang.org/x/xerrors"
)

// MediaTypeParams contains the parameters parsed out of a raw media type
type MediaTypeParams map[string]string

// MediaType is an immutable, normalized representation of a
// `type/subtype;parameters` string. The main type, subtype and parameter
// names are lowercased on construction; the charset value is also lowercased
// since its comparison is case-insensitive. Build one with NewMediaType or
// MustMediaType, never with a struct literal.
type MediaType struct {
	mainType string
	subType  string
	params   MediaTypeParams
}

// NewMediaType parses and normalizes a raw media type string such as
// "application/epub+zip" or "text/html; charset=UTF-8". It fails with a
// coded InvalidMediaType error when the string lacks a type/subtype pair or
// carries malformed parameters.
func NewMediaType(raw string) (MediaType, error) {
	name, params, err := mime.ParseMediaType(raw)
	if err != nil {
		return MediaType{}, invalidMediaTypeError(raw, err, xerrors.Caller(xErrorsFrameCaller))
	}

	slash := strings.Index(name, "/")
	if slash <= 0 || slash == len(name)-1 || strings.Count(name, "/") != 1 {
		return MediaType{}, invalidMediaTypeError(raw, nil, xerrors.Caller(xErrorsFrameCaller))
	}

	result := MediaType{
		mainType: name[:slash],
		subType:  name[slash+1:],
	}
	if len(params) > 0 {
		result.params = make(MediaTypeParams, len(params))
		for key, value := range params {
			// mime.ParseMediaType already lowercases parameter names
			if key == "charset" {
				value = strings.ToLower(value)
			}
			result.params[key] = value
		}
	}
	return result, nil
}

// MustMediaType is like NewMediaType but panics on a malformed string. It is
// meant for the package-level constants, where the input is a literal.
func MustMediaType(raw string) MediaType {
	result, err := NewMediaType(raw)
	if err != nil {
		panic(err)
	}
	return result
}

// Type returns the lowercased main type, e.g. "application"
func (m MediaType) Type() string {
	return m.mainType
}

// SubType returns the lowercased subtype, e.g. "epub+zip"
func (m MediaType) SubType() string {
	return m.subType
}

// IsZero reports whether m is the zero MediaType, i.e. not built by a constructor
func (m MediaType) IsZero() bool {
	return m.mainType == ""
}

// Parameter returns the value of the named parameter, if present
func (m MediaType) Parameter(name string) (string, bool) {
	value, ok := m.params[strings.ToLower(name)]
	return value, ok
}

// Parameters returns a copy of the parameter map, never the internal one
func (m MediaType) Parameters() MediaTypeParams {
	if len(m.params) == 0 {
		return nil
	}
	result := make(MediaTypeParams, len(m.params))
	for key, value := range m.params {
		result[key] = value
	}
	return result
}

// Charset returns the charset parameter, defaulting to utf-8 for text types
// when the parameter is absent.
func (m MediaType) Charset() string {
	if charset, ok := m.params["charset"]; ok {
		return charset
	}
	if m.mainType == "text" {
		return "utf-8"
	}
	return ""
}

// String renders the normalized form: lowercased type/subtype followed by
// the parameters in lexicographic key order. Re-parsing the result yields an
// equal MediaType.
func (m MediaType) String() string {
	if rendered := mime.FormatMediaType(m.mainType+"/"+m.subType, m.params); rendered != "" {
		return rendered
	}

	// FormatMediaType refuses non-ASCII input; fall back to a plain render
	var b strings.Builder
	b.WriteString(m.mainType)
	b.WriteByte('/')
	b.WriteString(m.subType)
	keys := make([]string, 0, len(m.params))
	for key := range m.params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteString("; ")
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(m.params[key])
	}
	return b.String()
}

// Equal reports whether two MediaTypes carry the same type, subtype and
// parameter set. Textual casing and parameter ordering of the original raw
// strings never matter here since both values were normalized on parse.
func (m MediaType) Equal(other MediaType) bool {
	if m.mainType != other.mainType || m.subType != other.subType {
		return false
	}
	if len(m.params) != len(other.params) {
		return false
	}
	for key, value := range m.params {
		if other.params[key] != value {
			return false
		}
	}
	return true
}

// Matches reports whether other matches this media type: the type/subtype
// pairs are equal (either side may use the "*" wildcard) and every parameter
// present on both sides agrees. A parameter missing from either side is a
// wildcard for the comparison, except charset, which falls back to the
// utf-8 default on text types.
func (m MediaType) Matches(others ...MediaType) bool {
	for _, other := range others {
		if m.matchesOne(other) {
			return true
		}
	}
	return false
}

// MatchesRaw is a convenience for Matches against raw strings; malformed
// candidates never match.
func (m MediaType) MatchesRaw(raws ...string) bool {
	for _, raw := range raws {
		other, err := NewMediaType(raw)
		if err != nil {
			continue
		}
		if m.matchesOne(other) {
			return true
		}
	}
	return false
}

func (m MediaType) matchesOne(other MediaType) bool {
	if m.mainType != "*" && other.mainType != "*" && m.mainType != other.mainType {
		return false
	}
	if m.subType != "*" && other.subType != "*" && m.subType != other.subType {
		return false
	}
	for key, value := range m.params {
		theirs, ok := other.params[key]
		if !ok {
			if key == "charset" {
				theirs = other.Charset()
				ok = theirs != ""
			}
			if !ok {
				continue
			}
		}
		if theirs != value {
			return false
		}
	}
	return true
}

// structuredSuffix returns the registered suffix of the subtype ("zip" in
// "epub+zip"), or "" when there is none.
func (m MediaType) structuredSuffix() string {
	if plus := strings.LastIndex(m.subType, "+"); plus >= 0 {
		return m.subType[plus+1:]
	}
	return ""
}
