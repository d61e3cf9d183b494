package coap

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the 2-bit CoAP message type.
type Type uint8

const (
	// Confirmable messages require an acknowledgement.
	Confirmable Type = 0

	// NonConfirmable messages are not acknowledged.
	NonConfirmable Type = 1

	// Acknowledgement confirms receipt of a Confirmable message.
	Acknowledgement Type = 2

	// Reset rejects a message that could not be processed.
	Reset Type = 3
)

// String returns the short type name.
func (t Type) String() string {
	switch t {
	case Confirmable:
		return "CON"
	case NonConfirmable:
		return "NON"
	case Acknowledgement:
		return "ACK"
	case Reset:
		return "RST"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true if the type fits the 2-bit field.
func (t Type) IsValid() bool {
	return t <= Reset
}

// Code is a CoAP code: a 3-bit class and a 5-bit detail, written c.dd.
type Code uint8

// NewCode builds a code from its class and detail.
func NewCode(class, detail uint8) Code {
	return Code((class&0x07)<<5 | detail&0x1f)
}

// Request methods.
const (
	Empty  Code = 0x00
	GET    Code = 0x01
	POST   Code = 0x02
	PUT    Code = 0x03
	DELETE Code = 0x04
	FETCH  Code = 0x05
	PATCH  Code = 0x06
	IPATCH Code = 0x07
)

// Success responses (class 2).
const (
	Created  Code = 2<<5 | 1
	Deleted  Code = 2<<5 | 2
	Valid    Code = 2<<5 | 3
	Changed  Code = 2<<5 | 4
	Content  Code = 2<<5 | 5
	Continue Code = 2<<5 | 31
)

// Client errors (class 4).
const (
	BadRequest               Code = 4<<5 | 0
	Unauthorized             Code = 4<<5 | 1
	BadOption                Code = 4<<5 | 2
	Forbidden                Code = 4<<5 | 3
	NotFound                 Code = 4<<5 | 4
	MethodNotAllowed         Code = 4<<5 | 5
	NotAcceptable            Code = 4<<5 | 6
	RequestEntityIncomplete  Code = 4<<5 | 8
	Conflict                 Code = 4<<5 | 9
	PreconditionFailed       Code = 4<<5 | 12
	RequestEntityTooLarge    Code = 4<<5 | 13
	UnsupportedContentFormat Code = 4<<5 | 15
)

// Server errors (class 5).
const (
	InternalServerError  Code = 5<<5 | 0
	NotImplemented       Code = 5<<5 | 1
	BadGateway           Code = 5<<5 | 2
	ServiceUnavailable   Code = 5<<5 | 3
	GatewayTimeout       Code = 5<<5 | 4
	ProxyingNotSupported Code = 5<<5 | 5
)

// Signaling codes (class 7). They are recognized and parsed only.
const (
	CSM     Code = 7<<5 | 1
	Ping    Code = 7<<5 | 2
	Pong    Code = 7<<5 | 3
	Release Code = 7<<5 | 4
	Abort   Code = 7<<5 | 5
)

// Class returns the code class (0..7).
func (c Code) Class() uint8 {
	return uint8(c) >> 5
}

// Detail returns the code detail (0..31).
func (c Code) Detail() uint8 {
	return uint8(c) & 0x1f
}

// IsEmpty returns true for 0.00.
func (c Code) IsEmpty() bool {
	return c == Empty
}

// IsRequest returns true for method codes (class 0, detail != 0).
func (c Code) IsRequest() bool {
	return c.Class() == 0 && c.Detail() != 0
}

// IsResponse returns true for classes 2, 4 and 5.
func (c Code) IsResponse() bool {
	switch c.Class() {
	case 2, 4, 5:
		return true
	}
	return false
}

// IsSuccess returns true for class 2 responses.
func (c Code) IsSuccess() bool {
	return c.Class() == 2
}

// IsError returns true for class 4 and 5 responses.
func (c Code) IsError() bool {
	return c.Class() == 4 || c.Class() == 5
}

// IsSignal returns true for signaling codes (class 7).
func (c Code) IsSignal() bool {
	return c.Class() == 7
}

// Name returns the registered name of the code, or "" if unknown.
func (c Code) Name() string {
	switch c {
	case Empty:
		return "Empty"
	case GET:
		return "GET"
	case POST:
		return "POST"
	case PUT:
		return "PUT"
	case DELETE:
		return "DELETE"
	case FETCH:
		return "FETCH"
	case PATCH:
		return "PATCH"
	case IPATCH:
		return "iPATCH"
	case Created:
		return "Created"
	case Deleted:
		return "Deleted"
	case Valid:
		return "Valid"
	case Changed:
		return "Changed"
	case Content:
		return "Content"
	case Continue:
		return "Continue"
	case BadRequest:
		return "Bad Request"
	case Unauthorized:
		return "Unauthorized"
	case BadOption:
		return "Bad Option"
	case Forbidden:
		return "Forbidden"
	case NotFound:
		return "Not Found"
	case MethodNotAllowed:
		return "Method Not Allowed"
	case NotAcceptable:
		return "Not Acceptable"
	case RequestEntityIncomplete:
		return "Request Entity Incomplete"
	case Conflict:
		return "Conflict"
	case PreconditionFailed:
		return "Precondition Failed"
	case RequestEntityTooLarge:
		return "Request Entity Too Large"
	case UnsupportedContentFormat:
		return "Unsupported Content-Format"
	case InternalServerError:
		return "Internal Server Error"
	case NotImplemented:
		return "Not Implemented"
	case BadGateway:
		return "Bad Gateway"
	case ServiceUnavailable:
		return "Service Unavailable"
	case GatewayTimeout:
		return "Gateway Timeout"
	case ProxyingNotSupported:
		return "Proxying Not Supported"
	case CSM:
		return "CSM"
	case Ping:
		return "Ping"
	case Pong:
		return "Pong"
	case Release:
		return "Release"
	case Abort:
		return "Abort"
	}
	return ""
}

// String returns the dotted form, e.g. "2.05 Content".
func (c Code) String() string {
	s := fmt.Sprintf("%d.%02d", c.Class(), c.Detail())
	if name := c.Name(); name != "" {
		s += " " + name
	}
	return s
}

// Dotted returns the bare "c.dd" form, e.g. "2.05".
func (c Code) Dotted() string {
	return fmt.Sprintf("%d.%02d", c.Class(), c.Detail())
}

// ParseCode accepts the dotted form ("4.04") or a registered name
// ("GET", "Not Found", case-insensitive).
func ParseCode(s string) (Code, error) {
	s = strings.TrimSpace(s)
	if class, detail, ok := strings.Cut(s, "."); ok {
		c, err1 := strconv.ParseUint(class, 10, 3)
		d, err2 := strconv.ParseUint(detail, 10, 5)
		if err1 != nil || err2 != nil {
			return 0, fmt.Errorf("invalid code %q", s)
		}
		return NewCode(uint8(c), uint8(d)), nil
	}
	for i := 0; i < 256; i++ {
		c := Code(i)
		if name := c.Name(); name != "" && strings.EqualFold(name, s) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown code %q", s)
}

// ContentFormat is a registered CoAP Content-Format identifier.
type ContentFormat uint16

const (
	// TextPlain is text/plain;charset=utf-8.
	TextPlain ContentFormat = 0

	// LinkFormat is application/link-format (RFC 6690).
	LinkFormat ContentFormat = 40

	// OctetStream is application/octet-stream.
	OctetStream ContentFormat = 42

	// CBOR is application/cbor.
	CBOR ContentFormat = 60

	// SenMLJSON is application/senml+json.
	SenMLJSON ContentFormat = 110

	// SenMLCBOR is application/senml+cbor.
	SenMLCBOR ContentFormat = 112

	// LwM2MTLV is application/vnd.oma.lwm2m+tlv.
	LwM2MTLV ContentFormat = 11542

	// LwM2MJSON is application/vnd.oma.lwm2m+json.
	LwM2MJSON ContentFormat = 11543
)

// String returns the media type.
func (f ContentFormat) String() string {
	switch f {
	case TextPlain:
		return "text/plain"
	case LinkFormat:
		return "application/link-format"
	case OctetStream:
		return "application/octet-stream"
	case CBOR:
		return "application/cbor"
	case SenMLJSON:
		return "application/senml+json"
	case SenMLCBOR:
		return "application/senml+cbor"
	case LwM2MTLV:
		return "application/vnd.oma.lwm2m+tlv"
	case LwM2MJSON:
		return "application/vnd.oma.lwm2m+json"
	default:
		return fmt.Sprintf("content-format(%d)", uint16(f))
	}
}

// ParseContentFormat accepts a number ("112"), a media type
// ("application/senml+cbor") or its subtype alone ("senml+cbor", "tlv").
func ParseContentFormat(s string) (ContentFormat, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.ParseUint(s, 10, 16); err == nil {
		return ContentFormat(n), nil
	}
	for _, f := range []ContentFormat{TextPlain, LinkFormat, OctetStream, CBOR, SenMLJSON, SenMLCBOR, LwM2MTLV, LwM2MJSON} {
		media := f.String()
		_, sub, _ := strings.Cut(media, "/")
		if s == media || s == sub || s == strings.TrimPrefix(sub, "vnd.oma.lwm2m+") {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown content format %q", s)
}
