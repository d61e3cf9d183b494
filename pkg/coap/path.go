package coap

import "strings"

// Path is a CoAP resource path as a list of Uri-Path segments.
type Path []string

// ParsePath splits a "/"-separated path. The leading slash is optional and
// "/" alone is the empty path.
func ParsePath(s string) Path {
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return Path{}
	}
	return Path(strings.Split(s, "/"))
}

// String returns the path with a leading slash.
func (p Path) String() string {
	return "/" + strings.Join(p, "/")
}

// Equal compares segment by segment.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix returns true if prefix is a leading run of segments of p.
func (p Path) HasPrefix(prefix Path) bool {
	return len(prefix) <= len(p) && p[:len(prefix)].Equal(prefix)
}

// Last returns the final segment, or "" for the empty path.
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}
