package senml

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// SenML-CBOR labels (RFC 8428 section 6, LwM2M 1.1 "vlo").
const (
	labelBaseName    = -2
	labelBaseTime    = -3
	labelName        = 0
	labelUnit        = 1
	labelValue       = 2
	labelStringValue = 3
	labelBoolValue   = 4
	labelTime        = 6
	labelDataValue   = 8
	labelObjectLink  = "vlo"
)

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		ShortestFloat: cbor.ShortestFloat16,
		IndefLength:   cbor.IndefLengthForbidden,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create SenML-CBOR encoder mode: %v", err))
	}

	// Strict: a duplicated label is a malformed record.
	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create SenML-CBOR decoder mode: %v", err))
	}
}

type cborRecord struct {
	BaseName    string   `cbor:"-2,keyasint,omitempty"`
	BaseTime    float64  `cbor:"-3,keyasint,omitempty"`
	Name        string   `cbor:"0,keyasint,omitempty"`
	Unit        string   `cbor:"1,keyasint,omitempty"`
	Value       *float64 `cbor:"2,keyasint,omitempty"`
	StringValue *string  `cbor:"3,keyasint,omitempty"`
	BoolValue   *bool    `cbor:"4,keyasint,omitempty"`
	Time        float64  `cbor:"6,keyasint,omitempty"`
	DataValue   []byte   `cbor:"8,keyasint,omitempty"`
	ObjectLink  *string  `cbor:"vlo,omitempty"`
}

// EncodeCBOR encodes a pack as SenML-CBOR.
func EncodeCBOR(p Pack) ([]byte, error) {
	out := make([]cborRecord, len(p))
	for i, r := range p {
		out[i] = cborRecord{
			BaseName:    r.BaseName,
			BaseTime:    r.BaseTime,
			Name:        r.Name,
			Unit:        r.Unit,
			Value:       r.Value,
			StringValue: r.StringValue,
			BoolValue:   r.BoolValue,
			Time:        r.Time,
			DataValue:   r.DataValue,
			ObjectLink:  r.ObjectLink,
		}
	}
	return encMode.Marshal(out)
}

// DecodeCBOR decodes a SenML-CBOR pack. Trailing data, duplicated labels,
// null values and labels of the wrong type are rejected with 4.00.
func DecodeCBOR(data []byte) (Pack, error) {
	var raw []map[any]any
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return nil, invalid("cbor: %v", err)
	}
	p := make(Pack, len(raw))
	for i, m := range raw {
		r, err := recordFromCBOR(m)
		if err != nil {
			return nil, invalid("record %d: %v", i, err)
		}
		p[i] = r
	}
	return p, nil
}

func recordFromCBOR(m map[any]any) (Record, error) {
	var r Record
	for k, v := range m {
		if v == nil {
			return r, fmt.Errorf("label %v is null", k)
		}
		label, ok := cborLabel(k)
		if !ok {
			return r, fmt.Errorf("unsupported label %v", k)
		}
		var err error
		switch label {
		case labelBaseName:
			r.BaseName, err = asString(label, v)
		case labelBaseTime:
			r.BaseTime, err = asNumber(label, v)
		case labelName:
			r.Name, err = asString(label, v)
		case labelUnit:
			r.Unit, err = asString(label, v)
		case labelTime:
			r.Time, err = asNumber(label, v)
		case labelValue:
			var f float64
			f, err = asNumber(label, v)
			r.Value = &f
		case labelStringValue:
			var s string
			s, err = asString(label, v)
			r.StringValue = &s
		case labelBoolValue:
			b, ok := v.(bool)
			if !ok {
				err = fmt.Errorf("label %v: want bool, got %T", label, v)
			}
			r.BoolValue = &b
		case labelDataValue:
			b, ok := v.([]byte)
			if !ok {
				err = fmt.Errorf("label %v: want byte string, got %T", label, v)
			}
			r.DataValue = b
		case labelObjectLink:
			var s string
			s, err = asString(label, v)
			r.ObjectLink = &s
		default:
			err = fmt.Errorf("unsupported label %v", label)
		}
		if err != nil {
			return r, err
		}
	}
	return r, nil
}

// cborLabel normalizes a decoded map key to an int or the "vlo" string.
func cborLabel(k any) (any, bool) {
	switch k := k.(type) {
	case uint64:
		if k > math.MaxInt32 {
			return nil, false
		}
		return int(k), true
	case int64:
		return int(k), true
	case string:
		if k == labelObjectLink {
			return k, true
		}
	}
	return nil, false
}

func asString(label, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("label %v: want text string, got %T", label, v)
	}
	return s, nil
}

func asNumber(label, v any) (float64, error) {
	switch n := v.(type) {
	case uint64:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	}
	return 0, fmt.Errorf("label %v: want number, got %T", label, v)
}
