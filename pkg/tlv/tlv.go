// Package tlv implements the LwM2M TLV content format
// (application/vnd.oma.lwm2m+tlv).
//
// Each record starts with a type byte
//
//	bits 7-6  record type (Instance, ResourceInstance, MultipleResource, Resource)
//	bit  5    identifier width (0: 8-bit, 1: 16-bit)
//	bits 4-3  length field (0: inline in bits 2-0, 1: 8-bit, 2: 16-bit, 3: 24-bit)
//	bits 2-0  inline length
//
// followed by the identifier, the explicit length (if any) and the value.
// Instance and MultipleResource values are themselves sequences of records.
package tlv

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/cryptobyte"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
)

// ErrMalformed is wrapped by every decoding error. Decoding errors are
// CodeErrors with 4.00 Bad Request.
var ErrMalformed = errors.New("malformed tlv")

// ErrTooLong is returned when a value does not fit a 24-bit length.
var ErrTooLong = errors.New("tlv value exceeds 24-bit length")

// MaxLength is the largest value a record can carry.
const MaxLength = 1<<24 - 1

// Type is the 2-bit record type.
type Type uint8

const (
	// ObjectInstance holds Resource and MultipleResource records.
	ObjectInstance Type = 0
	// ResourceInstance holds one value of a multiple resource.
	ResourceInstance Type = 1
	// MultipleResource holds ResourceInstance records.
	MultipleResource Type = 2
	// Resource holds a single value.
	Resource Type = 3
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case ObjectInstance:
		return "Instance"
	case ResourceInstance:
		return "ResourceInstance"
	case MultipleResource:
		return "MultipleResource"
	case Resource:
		return "Resource"
	default:
		return "UNKNOWN"
	}
}

// IsComposite returns true for types whose value is a list of records.
func (t Type) IsComposite() bool {
	return t == ObjectInstance || t == MultipleResource
}

// allows reports whether a composite of type t may contain child.
func (t Type) allows(child Type) bool {
	switch t {
	case ObjectInstance:
		return child == Resource || child == MultipleResource
	case MultipleResource:
		return child == ResourceInstance
	}
	return false
}

// Record is one TLV entity. Value is set for Resource and
// ResourceInstance; Children for Instance and MultipleResource.
type Record struct {
	Type     Type
	ID       uint16
	Value    []byte
	Children []Record
}

// NewResource creates a single-value resource record.
func NewResource(id uint16, value []byte) Record {
	return Record{Type: Resource, ID: id, Value: value}
}

// NewResourceInstance creates a resource instance record.
func NewResourceInstance(id uint16, value []byte) Record {
	return Record{Type: ResourceInstance, ID: id, Value: value}
}

// NewMultipleResource creates a multiple resource from instance values,
// ordered by instance ID.
func NewMultipleResource(id uint16, instances map[uint16][]byte) Record {
	ids := make([]int, 0, len(instances))
	for riid := range instances {
		ids = append(ids, int(riid))
	}
	sort.Ints(ids)
	rec := Record{Type: MultipleResource, ID: id}
	for _, riid := range ids {
		rec.Children = append(rec.Children, NewResourceInstance(uint16(riid), instances[uint16(riid)]))
	}
	return rec
}

// NewInstance creates an object instance record.
func NewInstance(id uint16, children ...Record) Record {
	return Record{Type: ObjectInstance, ID: id, Children: children}
}

// String returns a compact description, e.g. "Instance[0]{Resource[1]=3c}".
func (r Record) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s[%d]", r.Type, r.ID)
	if r.Type.IsComposite() {
		sb.WriteByte('{')
		for i, c := range r.Children {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(c.String())
		}
		sb.WriteByte('}')
	} else {
		fmt.Fprintf(&sb, "=%x", r.Value)
	}
	return sb.String()
}

func malformed(format string, args ...any) error {
	return coap.WrapCode(coap.BadRequest, fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...)))
}

// Decode parses a TLV payload. Composite records must consume exactly
// their declared length and contain only permitted child types.
func Decode(data []byte) ([]Record, error) {
	return decodeList(cryptobyte.String(data), nil)
}

func decodeList(s cryptobyte.String, parent *Type) ([]Record, error) {
	var out []Record
	for !s.Empty() {
		rec, err := readRecord(&s)
		if err != nil {
			return nil, err
		}
		if parent != nil && !parent.allows(rec.Type) {
			return nil, malformed("%s inside %s", rec.Type, *parent)
		}
		out = append(out, rec)
	}
	return out, nil
}

func readRecord(s *cryptobyte.String) (Record, error) {
	var header uint8
	if !s.ReadUint8(&header) {
		return Record{}, malformed("missing type byte")
	}
	rec := Record{Type: Type(header >> 6)}

	if header&0x20 != 0 {
		if !s.ReadUint16(&rec.ID) {
			return Record{}, malformed("truncated 16-bit identifier")
		}
	} else {
		var id uint8
		if !s.ReadUint8(&id) {
			return Record{}, malformed("truncated identifier")
		}
		rec.ID = uint16(id)
	}

	var length uint32
	switch (header >> 3) & 0x03 {
	case 0:
		length = uint32(header & 0x07)
	case 1:
		var l uint8
		if !s.ReadUint8(&l) {
			return Record{}, malformed("truncated 8-bit length")
		}
		length = uint32(l)
	case 2:
		var l uint16
		if !s.ReadUint16(&l) {
			return Record{}, malformed("truncated 16-bit length")
		}
		length = uint32(l)
	case 3:
		if !s.ReadUint24(&length) {
			return Record{}, malformed("truncated 24-bit length")
		}
	}

	var value []byte
	if !s.ReadBytes(&value, int(length)) {
		return Record{}, malformed("%s %d declares %d bytes, %d left", rec.Type, rec.ID, length, len(*s))
	}

	if rec.Type.IsComposite() {
		children, err := decodeList(cryptobyte.String(value), &rec.Type)
		if err != nil {
			return Record{}, err
		}
		rec.Children = children
		return rec, nil
	}
	rec.Value = append([]byte(nil), value...)
	return rec, nil
}

// Encode serializes records with the narrowest identifier and length
// fields.
func Encode(records []Record) ([]byte, error) {
	var b cryptobyte.Builder
	for _, rec := range records {
		if err := addRecord(&b, rec); err != nil {
			return nil, err
		}
	}
	return b.Bytes()
}

func addRecord(b *cryptobyte.Builder, rec Record) error {
	value := rec.Value
	if rec.Type.IsComposite() {
		for _, c := range rec.Children {
			if !rec.Type.allows(c.Type) {
				return fmt.Errorf("tlv: %s inside %s", c.Type, rec.Type)
			}
		}
		var err error
		value, err = Encode(rec.Children)
		if err != nil {
			return err
		}
	}
	if len(value) > MaxLength {
		return ErrTooLong
	}

	header := uint8(rec.Type) << 6
	if rec.ID > 0xff {
		header |= 0x20
	}
	n := len(value)
	switch {
	case n <= 7:
		header |= uint8(n)
	case n <= 0xff:
		header |= 1 << 3
	case n <= 0xffff:
		header |= 2 << 3
	default:
		header |= 3 << 3
	}

	b.AddUint8(header)
	if rec.ID > 0xff {
		b.AddUint16(rec.ID)
	} else {
		b.AddUint8(uint8(rec.ID))
	}
	switch {
	case n <= 7:
	case n <= 0xff:
		b.AddUint8(uint8(n))
	case n <= 0xffff:
		b.AddUint16(uint16(n))
	default:
		b.AddUint24(uint32(n))
	}
	b.AddBytes(value)
	return nil
}

// EncodedLen returns the serialized size of a record.
func EncodedLen(rec Record) int {
	data, err := Encode([]Record{rec})
	if err != nil {
		return 0
	}
	return len(data)
}
