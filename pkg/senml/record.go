package senml

import (
	"errors"
	"fmt"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/lwm2m"
)

// ErrInvalidPack is wrapped by every decoding and validation error.
var ErrInvalidPack = errors.New("invalid senml pack")

func invalid(format string, args ...any) error {
	return coap.WrapCode(coap.BadRequest, fmt.Errorf("%w: %s", ErrInvalidPack, fmt.Sprintf(format, args...)))
}

// Record is one SenML record. Pointer fields and a nil DataValue are
// absent; BaseName is absent when empty.
type Record struct {
	BaseName    string
	BaseTime    float64
	Name        string
	Unit        string
	Time        float64
	Value       *float64
	StringValue *string
	BoolValue   *bool
	DataValue   []byte
	ObjectLink  *string
}

// Float returns a record with a numeric value.
func Float(name string, v float64) Record {
	return Record{Name: name, Value: &v}
}

// String returns a record with a string value.
func String(name, v string) Record {
	return Record{Name: name, StringValue: &v}
}

// Bool returns a record with a boolean value.
func Bool(name string, v bool) Record {
	return Record{Name: name, BoolValue: &v}
}

// Data returns a record with an opaque value.
func Data(name string, v []byte) Record {
	return Record{Name: name, DataValue: v}
}

// ObjLnk returns a record with an object link value ("oid:iid").
func ObjLnk(name, v string) Record {
	return Record{Name: name, ObjectLink: &v}
}

// ValueCount returns how many value fields are set.
func (r Record) ValueCount() int {
	n := 0
	if r.Value != nil {
		n++
	}
	if r.StringValue != nil {
		n++
	}
	if r.BoolValue != nil {
		n++
	}
	if r.DataValue != nil {
		n++
	}
	if r.ObjectLink != nil {
		n++
	}
	return n
}

// AnyValue returns the single value as float64, string, bool, []byte or,
// for object links, an lwm2m.Path-free "oid:iid" string.
func (r Record) AnyValue() (any, bool) {
	switch {
	case r.Value != nil:
		return *r.Value, true
	case r.StringValue != nil:
		return *r.StringValue, true
	case r.BoolValue != nil:
		return *r.BoolValue, true
	case r.DataValue != nil:
		return r.DataValue, true
	case r.ObjectLink != nil:
		return *r.ObjectLink, true
	}
	return nil, false
}

// Pack is an ordered list of records.
type Pack []Record

// Resolved is a record with its effective name and path.
type Resolved struct {
	Name   string
	Path   lwm2m.Path
	Record Record
}

// Names returns the effective name of every record: the most recent base
// name up to and including the record, followed by its name.
func (p Pack) Names() []string {
	out := make([]string, len(p))
	base := ""
	for i, r := range p {
		if r.BaseName != "" {
			base = r.BaseName
		}
		out[i] = base + r.Name
	}
	return out
}

// Resolve computes effective names and parses them as LwM2M paths.
func (p Pack) Resolve() ([]Resolved, error) {
	out := make([]Resolved, len(p))
	for i, name := range p.Names() {
		path, err := lwm2m.ParsePath(name)
		if err != nil {
			return nil, invalid("record %d: name %q: %v", i, name, err)
		}
		out[i] = Resolved{Name: name, Path: path, Record: p[i]}
	}
	return out, nil
}

// Values maps each resolved path to its value.
func (p Pack) Values() (map[lwm2m.Path]any, error) {
	resolved, err := p.Resolve()
	if err != nil {
		return nil, err
	}
	out := make(map[lwm2m.Path]any, len(resolved))
	for _, r := range resolved {
		if v, ok := r.Record.AnyValue(); ok {
			out[r.Path] = v
		}
	}
	return out, nil
}

// Paths returns the resolved paths, e.g. of a Read-Composite request.
func (p Pack) Paths() ([]lwm2m.Path, error) {
	resolved, err := p.Resolve()
	if err != nil {
		return nil, err
	}
	out := make([]lwm2m.Path, len(resolved))
	for i, r := range resolved {
		out[i] = r.Path
	}
	return out, nil
}
