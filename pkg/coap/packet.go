package coap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// Framing constants.
const (
	// Version is the only supported protocol version.
	Version = 1

	// MaxTokenLength is the largest token allowed in a message.
	MaxTokenLength = 8

	// HeaderSize is the size of the fixed header.
	HeaderSize = 4

	payloadMarker = 0xff
)

// Packet is a decoded CoAP message.
type Packet struct {
	Type      Type
	Code      Code
	MessageID uint16
	Token     []byte
	Options   Options
	Payload   []byte
}

// NewRequest creates a request packet for the given path. Query parameters
// in path ("?a=1&b") become Uri-Query options.
func NewRequest(t Type, code Code, path string) *Packet {
	p := &Packet{Type: t, Code: code}
	pathPart, query, _ := strings.Cut(path, "?")
	p.Options.SetPath(ParsePath(pathPart))
	if query != "" {
		for _, q := range strings.Split(query, "&") {
			p.Options.Add(StringOption(URIQuery, q))
		}
	}
	return p
}

// Parse decodes a datagram into a packet.
func Parse(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, parseErr(ParseMalformedHeader, 0, "%d bytes", len(data))
	}
	if v := data[0] >> 6; v != Version {
		return nil, parseErr(ParseUnsupportedVersion, 0, "version %d", v)
	}
	tkl := int(data[0] & 0x0f)
	if tkl > MaxTokenLength {
		return nil, parseErr(ParseBadTokenLength, 0, "token length %d", tkl)
	}

	p := &Packet{
		Type:      Type(data[0] >> 4 & 0x03),
		Code:      Code(data[1]),
		MessageID: binary.BigEndian.Uint16(data[2:4]),
	}

	if p.Code == Empty && len(data) > HeaderSize {
		return nil, parseErr(ParseTrailingBytes, HeaderSize, "empty message with %d extra bytes", len(data)-HeaderSize)
	}

	off := HeaderSize
	if len(data) < off+tkl {
		return nil, parseErr(ParseMalformedHeader, off, "token truncated")
	}
	if tkl > 0 {
		p.Token = append([]byte(nil), data[off:off+tkl]...)
	}
	off += tkl

	var prev OptionNumber
	for off < len(data) {
		if data[off] == payloadMarker {
			off++
			if off == len(data) {
				return nil, parseErr(ParseBadPayload, off-1, "payload marker without payload")
			}
			p.Payload = append([]byte(nil), data[off:]...)
			off = len(data)
			break
		}
		opt, n, err := ParseOption(data[off:], prev)
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				pe.Offset += off
			}
			return nil, err
		}
		p.Options = append(p.Options, opt)
		prev = opt.Number
		off += n
	}

	if off != len(data) {
		return nil, parseErr(ParseTrailingBytes, off, "%d bytes left", len(data)-off)
	}
	return p, nil
}

// Marshal serializes the packet. Options are emitted in ascending order.
func (p *Packet) Marshal() ([]byte, error) {
	if len(p.Token) > MaxTokenLength {
		return nil, ErrTokenTooLong
	}
	if !p.Type.IsValid() {
		return nil, fmt.Errorf("invalid message type %d", p.Type)
	}

	buf := make([]byte, HeaderSize, HeaderSize+len(p.Token)+len(p.Payload)+16*len(p.Options)+1)
	buf[0] = Version<<6 | byte(p.Type)<<4 | byte(len(p.Token))
	buf[1] = byte(p.Code)
	binary.BigEndian.PutUint16(buf[2:4], p.MessageID)
	buf = append(buf, p.Token...)

	var prev OptionNumber
	for _, opt := range p.Options.sorted() {
		b, err := opt.Serialize(prev)
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
		prev = opt.Number
	}

	if len(p.Payload) > 0 {
		buf = append(buf, payloadMarker)
		buf = append(buf, p.Payload...)
	}
	return buf, nil
}

// Response builds a response to p. A Confirmable request gets a
// piggy-backed ACK with the same message ID; otherwise the response is
// NonConfirmable and the caller assigns a fresh message ID. The token is
// always copied.
func (p *Packet) Response(code Code) *Packet {
	resp := &Packet{Code: code, Token: append([]byte(nil), p.Token...)}
	if p.Type == Confirmable {
		resp.Type = Acknowledgement
		resp.MessageID = p.MessageID
	} else {
		resp.Type = NonConfirmable
	}
	return resp
}

// NewEmptyAck creates an empty acknowledgement for a message ID.
func NewEmptyAck(msgID uint16) *Packet {
	return &Packet{Type: Acknowledgement, Code: Empty, MessageID: msgID}
}

// NewReset creates a Reset for a message ID.
func NewReset(msgID uint16) *Packet {
	return &Packet{Type: Reset, Code: Empty, MessageID: msgID}
}

// IsEmptyAck returns true for an empty ACK.
func (p *Packet) IsEmptyAck() bool {
	return p.Type == Acknowledgement && p.Code == Empty
}

// Path returns the Uri-Path.
func (p *Packet) Path() Path {
	return p.Options.Path()
}

// Clone returns a deep copy.
func (p *Packet) Clone() *Packet {
	c := *p
	c.Token = append([]byte(nil), p.Token...)
	c.Options = p.Options.Clone()
	c.Payload = append([]byte(nil), p.Payload...)
	if p.Token == nil {
		c.Token = nil
	}
	if p.Payload == nil {
		c.Payload = nil
	}
	return &c
}

// Equal compares two packets field by field.
func (p *Packet) Equal(other *Packet) bool {
	return p.Type == other.Type &&
		p.Code == other.Code &&
		p.MessageID == other.MessageID &&
		bytes.Equal(p.Token, other.Token) &&
		p.Options.sorted().Equal(other.Options.sorted()) &&
		bytes.Equal(p.Payload, other.Payload)
}

// String returns a one-line summary.
func (p *Packet) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s msg_id=%d token=%x", p.Type, p.Code, p.MessageID, p.Token)
	for _, opt := range p.Options {
		sb.WriteString(", ")
		sb.WriteString(opt.String())
	}
	if len(p.Payload) > 0 {
		fmt.Fprintf(&sb, ", payload=%d bytes", len(p.Payload))
	}
	return sb.String()
}
