package lwm2m

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lwm2m-harness/lwm2m-go/pkg/version"
)

// ErrLinkFormat is returned for malformed CoRE link format payloads.
var ErrLinkFormat = errors.New("malformed link format")

// LinkParam is one ";key[=value]" attribute of a link.
type LinkParam struct {
	Key    string
	Value  string
	Quoted bool
}

// String renders the parameter.
func (p LinkParam) String() string {
	switch {
	case p.Quoted:
		return p.Key + `="` + p.Value + `"`
	case p.Value != "":
		return p.Key + "=" + p.Value
	default:
		return p.Key
	}
}

// Link is a single "<target>;params" entry.
type Link struct {
	Target string
	Params []LinkParam
}

// Param returns the unquoted value of a parameter.
func (l Link) Param(key string) (string, bool) {
	for _, p := range l.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Path returns the link target as a data-model path.
func (l Link) Path() (Path, error) {
	return ParsePath(l.Target)
}

// Version returns the "ver" attribute. Both the quoted LwM2M 1.0 form and
// the bare 1.1 form are accepted.
func (l Link) Version() (version.Version, bool) {
	v, ok := l.Param("ver")
	if !ok {
		return version.Version{}, false
	}
	ver, err := version.Parse(v)
	if err != nil {
		return version.Version{}, false
	}
	return ver, true
}

// String renders the link.
func (l Link) String() string {
	var sb strings.Builder
	sb.WriteString("<" + l.Target + ">")
	for _, p := range l.Params {
		sb.WriteString(";" + p.String())
	}
	return sb.String()
}

// Links is a parsed link-format document.
type Links []Link

// String renders the document with comma separators.
func (ls Links) String() string {
	parts := make([]string, len(ls))
	for i, l := range ls {
		parts[i] = l.String()
	}
	return strings.Join(parts, ",")
}

// Find returns the link with the given target.
func (ls Links) Find(target string) (Link, bool) {
	for _, l := range ls {
		if l.Target == target {
			return l, true
		}
	}
	return Link{}, false
}

// Paths returns the targets that are data-model paths, in document order.
// Other targets such as the root "</>;rt=..." entry are skipped.
func (ls Links) Paths() []Path {
	var out []Path
	for _, l := range ls {
		if l.Target == "/" || l.Target == "" {
			continue
		}
		if p, err := l.Path(); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// Objects returns the distinct object IDs named by the links, in order of
// first appearance.
func (ls Links) Objects() []uint16 {
	var out []uint16
	seen := make(map[uint16]bool)
	for _, p := range ls.Paths() {
		if p.IsRoot() || seen[p.ObjectID()] {
			continue
		}
		seen[p.ObjectID()] = true
		out = append(out, p.ObjectID())
	}
	return out
}

// ParseLinks parses a CoRE link format document (RFC 6690).
func ParseLinks(s string) (Links, error) {
	var links Links
	s = strings.TrimSpace(s)
	if s == "" {
		return links, nil
	}
	for _, entry := range splitUnquoted(s, ',') {
		link, err := parseLink(strings.TrimSpace(entry))
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

func parseLink(s string) (Link, error) {
	if !strings.HasPrefix(s, "<") {
		return Link{}, fmt.Errorf("%w: %q does not start with '<'", ErrLinkFormat, s)
	}
	end := strings.IndexByte(s, '>')
	if end < 0 {
		return Link{}, fmt.Errorf("%w: %q has no closing '>'", ErrLinkFormat, s)
	}
	link := Link{Target: s[1:end]}
	rest := s[end+1:]
	if rest == "" {
		return link, nil
	}
	if rest[0] != ';' {
		return Link{}, fmt.Errorf("%w: unexpected %q after target", ErrLinkFormat, rest)
	}
	for _, raw := range splitUnquoted(rest[1:], ';') {
		key, value, hasValue := strings.Cut(raw, "=")
		if key == "" {
			return Link{}, fmt.Errorf("%w: empty parameter in %q", ErrLinkFormat, s)
		}
		p := LinkParam{Key: key}
		if hasValue {
			if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
				p.Value = value[1 : len(value)-1]
				p.Quoted = true
			} else if strings.ContainsRune(value, '"') {
				return Link{}, fmt.Errorf("%w: unbalanced quote in %q", ErrLinkFormat, raw)
			} else {
				p.Value = value
			}
		}
		link.Params = append(link.Params, p)
	}
	return link, nil
}

// splitUnquoted splits s on sep outside double quotes and angle brackets.
func splitUnquoted(s string, sep byte) []string {
	var parts []string
	inQuote, inTarget := false, false
	start := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"' && !inTarget:
			inQuote = !inQuote
		case c == '<' && !inQuote:
			inTarget = true
		case c == '>' && !inQuote:
			inTarget = false
		case c == sep && !inQuote && !inTarget:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
