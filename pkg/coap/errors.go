package coap

import (
	"errors"
	"fmt"
	"time"
)

// Packet parse errors. ParseError values match these with errors.Is.
var (
	ErrMalformedHeader    = errors.New("malformed header")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrBadTokenLength     = errors.New("bad token length")
	ErrBadOption          = errors.New("bad option")
	ErrBadPayload         = errors.New("bad payload")
	ErrTrailingBytes      = errors.New("trailing bytes")
)

// Serialization and template errors.
var (
	ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")
	ErrTokenTooLong          = errors.New("token longer than 8 bytes")
	ErrOptionTooLong         = errors.New("option value too long")
	ErrInvalidBlockSize      = errors.New("invalid block size")
)

// ParseErrorKind classifies a packet decoding failure.
type ParseErrorKind uint8

const (
	// ParseMalformedHeader indicates a datagram shorter than the fixed header.
	ParseMalformedHeader ParseErrorKind = iota
	// ParseUnsupportedVersion indicates a version field other than 1.
	ParseUnsupportedVersion
	// ParseBadTokenLength indicates a token length above 8.
	ParseBadTokenLength
	// ParseBadOption indicates a reserved nibble, truncated option or
	// decreasing option numbers.
	ParseBadOption
	// ParseBadPayload indicates a payload marker followed by no payload.
	ParseBadPayload
	// ParseTrailingBytes indicates data left after parsing finished.
	ParseTrailingBytes
)

// String returns the kind name.
func (k ParseErrorKind) String() string {
	switch k {
	case ParseMalformedHeader:
		return "MalformedHeader"
	case ParseUnsupportedVersion:
		return "UnsupportedVersion"
	case ParseBadTokenLength:
		return "BadTokenLength"
	case ParseBadOption:
		return "BadOption"
	case ParseBadPayload:
		return "BadPayload"
	case ParseTrailingBytes:
		return "TrailingBytes"
	default:
		return "UNKNOWN"
	}
}

func (k ParseErrorKind) sentinel() error {
	switch k {
	case ParseMalformedHeader:
		return ErrMalformedHeader
	case ParseUnsupportedVersion:
		return ErrUnsupportedVersion
	case ParseBadTokenLength:
		return ErrBadTokenLength
	case ParseBadOption:
		return ErrBadOption
	case ParseBadPayload:
		return ErrBadPayload
	case ParseTrailingBytes:
		return ErrTrailingBytes
	}
	return nil
}

// ParseError describes why a datagram could not be decoded.
type ParseError struct {
	Kind   ParseErrorKind
	Offset int
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("coap: %s at offset %d: %s", e.Kind.sentinel(), e.Offset, e.Detail)
	}
	return fmt.Sprintf("coap: %s at offset %d", e.Kind.sentinel(), e.Offset)
}

// Is reports whether target is the sentinel for this error's kind.
func (e *ParseError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func parseErr(kind ParseErrorKind, offset int, format string, args ...any) *ParseError {
	return &ParseError{Kind: kind, Offset: offset, Detail: fmt.Sprintf(format, args...)}
}

// CodeError is an error that should be answered with a specific response code.
type CodeError struct {
	Code Code

	// MaxAge, when non-zero, is sent as a Max-Age hint (e.g. with 5.03).
	MaxAge time.Duration

	Err error
}

// NewCodeError creates a CodeError with a formatted message.
func NewCodeError(code Code, format string, args ...any) *CodeError {
	return &CodeError{Code: code, Err: fmt.Errorf(format, args...)}
}

// WrapCode attaches a response code to err.
func WrapCode(code Code, err error) *CodeError {
	return &CodeError{Code: code, Err: err}
}

func (e *CodeError) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Err.Error()
}

func (e *CodeError) Unwrap() error {
	return e.Err
}

// CodeOf returns the response code carried by err. Parse errors map to
// 4.02 for option problems and 4.00 otherwise; any other error is 5.00.
func CodeOf(err error) Code {
	if err == nil {
		return Empty
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		if pe.Kind == ParseBadOption {
			return BadOption
		}
		return BadRequest
	}
	if errors.Is(err, ErrInvalidBlockSize) {
		return BadOption
	}
	return InternalServerError
}
