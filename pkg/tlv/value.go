package tlv

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/lwm2m"
)

// Int encodes v as big-endian two's complement in the smallest of 1, 2, 4
// or 8 bytes that holds it.
func Int(v int64) []byte {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return []byte{byte(int8(v))}
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return binary.BigEndian.AppendUint16(nil, uint16(int16(v)))
	case v >= math.MinInt32 && v <= math.MaxInt32:
		return binary.BigEndian.AppendUint32(nil, uint32(int32(v)))
	default:
		return binary.BigEndian.AppendUint64(nil, uint64(v))
	}
}

// Float encodes v as 4-byte IEEE-754 when that is exact, else 8 bytes.
func Float(v float64) []byte {
	if f32 := float32(v); float64(f32) == v {
		return binary.BigEndian.AppendUint32(nil, math.Float32bits(f32))
	}
	return binary.BigEndian.AppendUint64(nil, math.Float64bits(v))
}

// String encodes s as its bytes. LwM2M strings are UTF-8; anything else
// is rejected.
func String(s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, malformed("string %q is not valid UTF-8", s)
	}
	return []byte(s), nil
}

// Bool encodes b as a single 0x00 or 0x01 byte.
func Bool(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}

// ObjLnk encodes an object link as two 16-bit identifiers.
func ObjLnk(objectID, instanceID uint16) []byte {
	return binary.BigEndian.AppendUint16(binary.BigEndian.AppendUint16(nil, objectID), instanceID)
}

// Time encodes t as Unix seconds.
func Time(t time.Time) []byte {
	return Int(t.Unix())
}

// Int decodes a 1, 2, 4 or 8-byte signed integer value.
func (r Record) Int() (int64, error) {
	switch len(r.Value) {
	case 1:
		return int64(int8(r.Value[0])), nil
	case 2:
		return int64(int16(binary.BigEndian.Uint16(r.Value))), nil
	case 4:
		return int64(int32(binary.BigEndian.Uint32(r.Value))), nil
	case 8:
		return int64(binary.BigEndian.Uint64(r.Value)), nil
	}
	return 0, malformed("integer of %d bytes", len(r.Value))
}

// Float decodes a 4 or 8-byte float value.
func (r Record) Float() (float64, error) {
	switch len(r.Value) {
	case 4:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(r.Value))), nil
	case 8:
		return math.Float64frombits(binary.BigEndian.Uint64(r.Value)), nil
	}
	return 0, malformed("float of %d bytes", len(r.Value))
}

// Bool decodes a boolean value.
func (r Record) Bool() (bool, error) {
	if len(r.Value) != 1 || r.Value[0] > 1 {
		return false, malformed("boolean %x", r.Value)
	}
	return r.Value[0] == 1, nil
}

// ObjLnk decodes an object link value.
func (r Record) ObjLnk() (uint16, uint16, error) {
	if len(r.Value) != 4 {
		return 0, 0, malformed("object link of %d bytes", len(r.Value))
	}
	return binary.BigEndian.Uint16(r.Value), binary.BigEndian.Uint16(r.Value[2:]), nil
}

// Text returns the value as a string. Values that are not valid UTF-8
// are malformed.
func (r Record) Text() (string, error) {
	if !utf8.Valid(r.Value) {
		return "", malformed("string value % x is not valid UTF-8", r.Value)
	}
	return string(r.Value), nil
}

// Flatten maps every leaf value to its full path. base is the request path
// the payload was written to; each record extends it by its identifier.
// A Resource or MultipleResource record whose ID equals the last segment
// of a Resource path base is taken as the resource itself.
func Flatten(base lwm2m.Path, records []Record) (map[lwm2m.Path][]byte, error) {
	out := make(map[lwm2m.Path][]byte)
	for _, rec := range records {
		start := base
		if base.Kind() == lwm2m.PathResource && rec.ID == base.ResourceID() &&
			(rec.Type == Resource || rec.Type == MultipleResource) {
			start = base.Parent()
		}
		if err := flatten(start, rec, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func flatten(parent lwm2m.Path, rec Record, out map[lwm2m.Path][]byte) error {
	p, err := parent.Child(rec.ID)
	if err != nil {
		return coap.WrapCode(coap.BadRequest, fmt.Errorf("%w: %s below %s", ErrMalformed, rec.Type, parent))
	}
	if !rec.Type.IsComposite() {
		out[p] = rec.Value
		return nil
	}
	for _, c := range rec.Children {
		if err := flatten(p, c, out); err != nil {
			return err
		}
	}
	return nil
}
