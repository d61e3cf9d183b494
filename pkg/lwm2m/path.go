package lwm2m

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
)

// MaxPathDepth is the number of segments of a Resource Instance path.
const MaxPathDepth = 4

// ErrInvalidPath is returned for paths that are not LwM2M data-model paths.
var ErrInvalidPath = errors.New("invalid lwm2m path")

// PathKind tells which data-model level a path addresses.
type PathKind uint8

const (
	// PathRoot is the empty path "/".
	PathRoot PathKind = iota
	// PathObject is /oid.
	PathObject
	// PathInstance is /oid/iid.
	PathInstance
	// PathResource is /oid/iid/rid.
	PathResource
	// PathResourceInstance is /oid/iid/rid/riid.
	PathResourceInstance
)

// String returns the kind name.
func (k PathKind) String() string {
	switch k {
	case PathRoot:
		return "Root"
	case PathObject:
		return "Object"
	case PathInstance:
		return "Instance"
	case PathResource:
		return "Resource"
	case PathResourceInstance:
		return "ResourceInstance"
	default:
		return "UNKNOWN"
	}
}

// Path is an LwM2M data-model path of at most four 16-bit identifiers.
// Path values are comparable and usable as map keys.
type Path struct {
	ids [MaxPathDepth]uint16
	n   uint8
}

// NewPath builds a path from identifiers.
func NewPath(ids ...uint16) (Path, error) {
	if len(ids) > MaxPathDepth {
		return Path{}, fmt.Errorf("%w: %d segments", ErrInvalidPath, len(ids))
	}
	var p Path
	copy(p.ids[:], ids)
	p.n = uint8(len(ids))
	return p, nil
}

// MustPath is like NewPath but panics on error.
func MustPath(ids ...uint16) Path {
	p, err := NewPath(ids...)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePath parses "/oid/iid/rid/riid". A single trailing slash is
// accepted so that SenML base names such as "/3/0/" parse.
func ParsePath(s string) (Path, error) {
	trimmed := strings.TrimSuffix(s, "/")
	if trimmed == "" {
		return Path{}, nil
	}
	if !strings.HasPrefix(trimmed, "/") {
		return Path{}, fmt.Errorf("%w: %q has no leading slash", ErrInvalidPath, s)
	}
	return FromCoAP(coap.ParsePath(trimmed))
}

// MustParsePath is like ParsePath but panics on error.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// FromCoAP converts Uri-Path segments to a data-model path.
func FromCoAP(cp coap.Path) (Path, error) {
	if len(cp) > MaxPathDepth {
		return Path{}, fmt.Errorf("%w: %s has %d segments", ErrInvalidPath, cp, len(cp))
	}
	var p Path
	for i, seg := range cp {
		if seg == "" || (len(seg) > 1 && seg[0] == '0') || seg[0] == '+' {
			return Path{}, fmt.Errorf("%w: segment %q", ErrInvalidPath, seg)
		}
		v, err := strconv.ParseUint(seg, 10, 16)
		if err != nil {
			return Path{}, fmt.Errorf("%w: segment %q", ErrInvalidPath, seg)
		}
		p.ids[i] = uint16(v)
	}
	p.n = uint8(len(cp))
	return p, nil
}

// Kind returns the level the path addresses.
func (p Path) Kind() PathKind {
	return PathKind(p.n)
}

// Len returns the number of segments.
func (p Path) Len() int {
	return int(p.n)
}

// IsRoot returns true for the empty path.
func (p Path) IsRoot() bool {
	return p.n == 0
}

// IDs returns a copy of the identifiers.
func (p Path) IDs() []uint16 {
	return append([]uint16(nil), p.ids[:p.n]...)
}

// ID returns segment i, or false if the path is shorter.
func (p Path) ID(i int) (uint16, bool) {
	if i < 0 || i >= int(p.n) {
		return 0, false
	}
	return p.ids[i], true
}

// ObjectID returns the object identifier (0 for the root path).
func (p Path) ObjectID() uint16 { return p.ids[0] }

// InstanceID returns the instance identifier.
func (p Path) InstanceID() uint16 { return p.ids[1] }

// ResourceID returns the resource identifier.
func (p Path) ResourceID() uint16 { return p.ids[2] }

// ResourceInstanceID returns the resource instance identifier.
func (p Path) ResourceInstanceID() uint16 { return p.ids[3] }

// Parent returns the path one level up. The root is its own parent.
func (p Path) Parent() Path {
	if p.n == 0 {
		return p
	}
	q := p
	q.n--
	q.ids[q.n] = 0
	return q
}

// Child returns the path one level down.
func (p Path) Child(id uint16) (Path, error) {
	if p.n == MaxPathDepth {
		return Path{}, fmt.Errorf("%w: cannot descend below %s", ErrInvalidPath, p)
	}
	q := p
	q.ids[q.n] = id
	q.n++
	return q, nil
}

// Contains returns true if other equals p or lies below it.
func (p Path) Contains(other Path) bool {
	if other.n < p.n {
		return false
	}
	for i := uint8(0); i < p.n; i++ {
		if p.ids[i] != other.ids[i] {
			return false
		}
	}
	return true
}

// CoAP returns the path as Uri-Path segments.
func (p Path) CoAP() coap.Path {
	out := make(coap.Path, p.n)
	for i := range out {
		out[i] = strconv.Itoa(int(p.ids[i]))
	}
	return out
}

// String returns "/oid/iid/..." or "/" for the root.
func (p Path) String() string {
	return p.CoAP().String()
}
