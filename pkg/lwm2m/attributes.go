package lwm2m

import (
	"strconv"
	"strings"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
)

// Write-Attributes parameter names.
const (
	AttrPMin  = "pmin"
	AttrPMax  = "pmax"
	AttrGT    = "gt"
	AttrLT    = "lt"
	AttrST    = "st"
	AttrEPMin = "epmin"
	AttrEPMax = "epmax"
	AttrCon   = "con"
	AttrHQMax = "hqmax"
	AttrEdge  = "edge"
)

type attrKind uint8

const (
	attrUint attrKind = iota
	attrFloat
	attrFlag
)

var attrKinds = map[string]attrKind{
	AttrPMin:  attrUint,
	AttrPMax:  attrUint,
	AttrEPMin: attrUint,
	AttrEPMax: attrUint,
	AttrHQMax: attrUint,
	AttrGT:    attrFloat,
	AttrLT:    attrFloat,
	AttrST:    attrFloat,
	AttrCon:   attrFlag,
	AttrEdge:  attrFlag,
}

// Attribute is one Write-Attributes query parameter. A parameter without a
// value removes the attribute on the client.
type Attribute struct {
	Name  string
	Value string
	Unset bool
}

// Attributes is an ordered set of Write-Attributes parameters.
type Attributes []Attribute

// SetUint appends an integer attribute.
func (a *Attributes) SetUint(name string, v uint32) {
	*a = append(*a, Attribute{Name: name, Value: strconv.FormatUint(uint64(v), 10)})
}

// SetFloat appends a numeric threshold attribute.
func (a *Attributes) SetFloat(name string, v float64) {
	*a = append(*a, Attribute{Name: name, Value: strconv.FormatFloat(v, 'g', -1, 64)})
}

// Unset appends a parameter that clears the attribute.
func (a *Attributes) Unset(name string) {
	*a = append(*a, Attribute{Name: name, Unset: true})
}

// Get returns the named attribute.
func (a Attributes) Get(name string) (Attribute, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr, true
		}
	}
	return Attribute{}, false
}

// Uint returns an integer attribute value.
func (a Attributes) Uint(name string) (uint32, bool) {
	attr, ok := a.Get(name)
	if !ok || attr.Unset {
		return 0, false
	}
	v, err := strconv.ParseUint(attr.Value, 10, 32)
	return uint32(v), err == nil
}

// Float returns a threshold attribute value.
func (a Attributes) Float(name string) (float64, bool) {
	attr, ok := a.Get(name)
	if !ok || attr.Unset {
		return 0, false
	}
	v, err := strconv.ParseFloat(attr.Value, 64)
	return v, err == nil
}

// Queries renders the attributes as Uri-Query values.
func (a Attributes) Queries() []string {
	out := make([]string, len(a))
	for i, attr := range a {
		if attr.Unset {
			out[i] = attr.Name
		} else {
			out[i] = attr.Name + "=" + attr.Value
		}
	}
	return out
}

// ParseAttributes parses Uri-Query values of a Write-Attributes request.
// Unknown names and malformed values are 4.00 Bad Request.
func ParseAttributes(queries []string) (Attributes, error) {
	var attrs Attributes
	for _, q := range queries {
		name, value, hasValue := strings.Cut(q, "=")
		kind, known := attrKinds[name]
		if !known {
			return nil, coap.NewCodeError(coap.BadRequest, "unknown attribute %q", name)
		}
		if !hasValue {
			attrs = append(attrs, Attribute{Name: name, Unset: true})
			continue
		}
		var err error
		switch kind {
		case attrUint:
			_, err = strconv.ParseUint(value, 10, 32)
		case attrFloat:
			_, err = strconv.ParseFloat(value, 64)
		case attrFlag:
			if value != "0" && value != "1" {
				err = strconv.ErrSyntax
			}
		}
		if err != nil {
			return nil, coap.NewCodeError(coap.BadRequest, "attribute %s=%q: %v", name, value, err)
		}
		attrs = append(attrs, Attribute{Name: name, Value: value})
	}
	if pmin, ok := attrs.Uint(AttrPMin); ok {
		if pmax, ok := attrs.Uint(AttrPMax); ok && pmax < pmin {
			return nil, coap.NewCodeError(coap.BadRequest, "pmax %d below pmin %d", pmax, pmin)
		}
	}
	return attrs, nil
}
