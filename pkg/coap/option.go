package coap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
)

// OptionNumber identifies a CoAP option.
type OptionNumber uint16

// Registered option numbers.
const (
	IfMatch             OptionNumber = 1
	URIHost             OptionNumber = 3
	ETag                OptionNumber = 4
	IfNoneMatch         OptionNumber = 5
	Observe             OptionNumber = 6
	URIPort             OptionNumber = 7
	LocationPath        OptionNumber = 8
	URIPath             OptionNumber = 11
	ContentFormatOption OptionNumber = 12
	MaxAge              OptionNumber = 14
	URIQuery            OptionNumber = 15
	Accept              OptionNumber = 17
	LocationQuery       OptionNumber = 20
	Block2              OptionNumber = 23
	Block1              OptionNumber = 27
	Size2               OptionNumber = 28
	ProxyURI            OptionNumber = 35
	ProxyScheme         OptionNumber = 39
	Size1               OptionNumber = 60
	NoResponse          OptionNumber = 258
)

// OptionFormat is the value format of an option.
type OptionFormat uint8

const (
	// FormatOpaque is a sequence of bytes.
	FormatOpaque OptionFormat = iota
	// FormatEmpty carries no value.
	FormatEmpty
	// FormatUint is a big-endian unsigned integer in minimal bytes.
	FormatUint
	// FormatString is a UTF-8 string.
	FormatString
)

type optionDef struct {
	name       string
	format     OptionFormat
	repeatable bool
	maxLen     int
}

var optionDefs = map[OptionNumber]optionDef{
	IfMatch:             {"If-Match", FormatOpaque, true, 8},
	URIHost:             {"Uri-Host", FormatString, false, 255},
	ETag:                {"ETag", FormatOpaque, true, 8},
	IfNoneMatch:         {"If-None-Match", FormatEmpty, false, 0},
	Observe:             {"Observe", FormatUint, false, 3},
	URIPort:             {"Uri-Port", FormatUint, false, 2},
	LocationPath:        {"Location-Path", FormatString, true, 255},
	URIPath:             {"Uri-Path", FormatString, true, 255},
	ContentFormatOption: {"Content-Format", FormatUint, false, 2},
	MaxAge:              {"Max-Age", FormatUint, false, 4},
	URIQuery:            {"Uri-Query", FormatString, true, 255},
	Accept:              {"Accept", FormatUint, false, 2},
	LocationQuery:       {"Location-Query", FormatString, true, 255},
	Block2:              {"Block2", FormatUint, false, 3},
	Block1:              {"Block1", FormatUint, false, 3},
	Size2:               {"Size2", FormatUint, false, 4},
	ProxyURI:            {"Proxy-Uri", FormatString, false, 1034},
	ProxyScheme:         {"Proxy-Scheme", FormatString, false, 255},
	Size1:               {"Size1", FormatUint, false, 4},
	NoResponse:          {"No-Response", FormatUint, false, 1},
}

// IsCritical returns true for odd option numbers.
func (n OptionNumber) IsCritical() bool {
	return n&1 == 1
}

// IsKnown returns true if the option is registered.
func (n OptionNumber) IsKnown() bool {
	_, ok := optionDefs[n]
	return ok
}

// Format returns the value format; unknown options are opaque.
func (n OptionNumber) Format() OptionFormat {
	return optionDefs[n].format
}

// IsRepeatable returns true if the option may occur more than once.
func (n OptionNumber) IsRepeatable() bool {
	return optionDefs[n].repeatable
}

// String returns the option name.
func (n OptionNumber) String() string {
	if def, ok := optionDefs[n]; ok {
		return def.name
	}
	return "Option(" + strconv.Itoa(int(n)) + ")"
}

// Extended delta/length encoding boundaries.
const (
	extByteBase = 13
	extWordBase = 269
	maxExtValue = extWordBase + 0xffff

	nibbleByte     = 13
	nibbleWord     = 14
	nibbleReserved = 15
)

// encodeExtended returns the 4-bit nibble and the extension bytes for v.
func encodeExtended(v uint32) (uint8, []byte, error) {
	switch {
	case v < extByteBase:
		return uint8(v), nil, nil
	case v < extWordBase:
		return nibbleByte, []byte{byte(v - extByteBase)}, nil
	case v <= maxExtValue:
		ext := make([]byte, 2)
		binary.BigEndian.PutUint16(ext, uint16(v-extWordBase))
		return nibbleWord, ext, nil
	default:
		return 0, nil, ErrOptionTooLong
	}
}

// decodeExtended resolves a 4-bit nibble using the bytes that follow it.
// It returns the value and the number of extension bytes consumed.
func decodeExtended(nibble uint8, b []byte) (uint32, int, error) {
	switch {
	case nibble < nibbleByte:
		return uint32(nibble), 0, nil
	case nibble == nibbleByte:
		if len(b) < 1 {
			return 0, 0, fmt.Errorf("missing 8-bit extension")
		}
		return uint32(b[0]) + extByteBase, 1, nil
	case nibble == nibbleWord:
		if len(b) < 2 {
			return 0, 0, fmt.Errorf("missing 16-bit extension")
		}
		return uint32(binary.BigEndian.Uint16(b)) + extWordBase, 2, nil
	default:
		return 0, 0, fmt.Errorf("reserved nibble 15")
	}
}

// Option is a single CoAP option.
type Option struct {
	Number OptionNumber
	Value  []byte
}

// UintOption builds an option holding v in minimal big-endian form.
func UintOption(n OptionNumber, v uint64) Option {
	return Option{Number: n, Value: encodeUint(v)}
}

// StringOption builds an option holding s.
func StringOption(n OptionNumber, s string) Option {
	return Option{Number: n, Value: []byte(s)}
}

// ParseOption decodes one option from b. prev is the number of the
// preceding option (0 for the first one). It returns the option and the
// number of bytes consumed.
func ParseOption(b []byte, prev OptionNumber) (Option, int, error) {
	if len(b) == 0 {
		return Option{}, 0, parseErr(ParseBadOption, 0, "empty option")
	}
	if b[0] == payloadMarker {
		return Option{}, 0, parseErr(ParseBadOption, 0, "payload marker is not an option")
	}
	off := 1
	delta, n, err := decodeExtended(b[0]>>4, b[off:])
	if err != nil {
		return Option{}, 0, parseErr(ParseBadOption, 0, "delta: %v", err)
	}
	off += n
	length, n, err := decodeExtended(b[0]&0x0f, b[off:])
	if err != nil {
		return Option{}, 0, parseErr(ParseBadOption, 0, "length: %v", err)
	}
	off += n

	number := uint32(prev) + delta
	if number > 0xffff {
		return Option{}, 0, parseErr(ParseBadOption, 0, "option number %d overflows", number)
	}
	if len(b[off:]) < int(length) {
		return Option{}, 0, parseErr(ParseBadOption, off, "value needs %d bytes, have %d", length, len(b[off:]))
	}

	value := make([]byte, length)
	copy(value, b[off:off+int(length)])
	return Option{Number: OptionNumber(number), Value: value}, off + int(length), nil
}

// Serialize encodes the option relative to the previous option number.
func (o Option) Serialize(prev OptionNumber) ([]byte, error) {
	if o.Number < prev {
		return nil, fmt.Errorf("%w: %s after option %d", ErrBadOption, o.Number, prev)
	}
	dNibble, dExt, err := encodeExtended(uint32(o.Number - prev))
	if err != nil {
		return nil, err
	}
	lNibble, lExt, err := encodeExtended(uint32(len(o.Value)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.Number, err)
	}

	out := make([]byte, 0, 1+len(dExt)+len(lExt)+len(o.Value))
	out = append(out, dNibble<<4|lNibble)
	out = append(out, dExt...)
	out = append(out, lExt...)
	out = append(out, o.Value...)
	return out, nil
}

// Uint interprets the value as a big-endian unsigned integer. Short values
// are zero-extended, so the empty value is 0.
func (o Option) Uint() (uint64, error) {
	if len(o.Value) > 8 {
		return 0, fmt.Errorf("%w: %s integer of %d bytes", ErrBadOption, o.Number, len(o.Value))
	}
	var buf [8]byte
	copy(buf[8-len(o.Value):], o.Value)
	return binary.BigEndian.Uint64(buf[:]), nil
}

// String returns the value as text.
func (o Option) String() string {
	switch o.Number.Format() {
	case FormatUint:
		if v, err := o.Uint(); err == nil {
			if o.Number == Block1 || o.Number == Block2 {
				if blk, err := DecodeBlock(o.Value); err == nil {
					return fmt.Sprintf("%s: %s", o.Number, blk)
				}
			}
			return fmt.Sprintf("%s: %d", o.Number, v)
		}
	case FormatString:
		return fmt.Sprintf("%s: %q", o.Number, string(o.Value))
	case FormatEmpty:
		return o.Number.String()
	}
	return fmt.Sprintf("%s: %x", o.Number, o.Value)
}

// Equal compares two options. Integer options compare by numeric value so
// that non-canonical encodings of the same number are equal.
func (o Option) Equal(other Option) bool {
	if o.Number != other.Number {
		return false
	}
	if o.Number.Format() == FormatUint {
		a, errA := o.Uint()
		b, errB := other.Uint()
		if errA == nil && errB == nil {
			return a == b
		}
	}
	return bytes.Equal(o.Value, other.Value)
}

// encodeUint returns v in minimal big-endian form (0 encodes as empty).
func encodeUint(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	i := 0
	for i < 8 && buf[i] == 0 {
		i++
	}
	return append([]byte(nil), buf[i:]...)
}
