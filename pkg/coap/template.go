package coap

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
)

// Optional holds either a concrete value or the ANY placeholder.
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// Any returns the ANY placeholder.
func Any[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether one is set.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsAny returns true for the placeholder.
func (o Optional[T]) IsAny() bool {
	return !o.set
}

// Template is a packet whose fields may be left as ANY. In the expected
// role ANY matches every value; in the outbound role the message ID and
// token placeholders are filled from an IDGenerator before serialization.
type Template struct {
	Type      Optional[Type]
	Code      Optional[Code]
	MessageID Optional[uint16]
	Token     Optional[[]byte]
	Options   Optional[Options]
	Payload   Optional[[]byte]
}

// TemplateOf returns a template with every field fixed to p's values.
func TemplateOf(p *Packet) *Template {
	return &Template{
		Type:      Some(p.Type),
		Code:      Some(p.Code),
		MessageID: Some(p.MessageID),
		Token:     Some(p.Token),
		Options:   Some(p.Options),
		Payload:   Some(p.Payload),
	}
}

// Matches returns true if every fixed field equals the packet's field.
func (t *Template) Matches(p *Packet) bool {
	return len(t.Diff(p)) == 0
}

// Diff lists the fields of p that differ from the template.
func (t *Template) Diff(p *Packet) []string {
	var diffs []string
	if v, ok := t.Type.Get(); ok && v != p.Type {
		diffs = append(diffs, fmt.Sprintf("type: got %s, want %s", p.Type, v))
	}
	if v, ok := t.Code.Get(); ok && v != p.Code {
		diffs = append(diffs, fmt.Sprintf("code: got %s, want %s", p.Code, v))
	}
	if v, ok := t.MessageID.Get(); ok && v != p.MessageID {
		diffs = append(diffs, fmt.Sprintf("msg_id: got %d, want %d", p.MessageID, v))
	}
	if v, ok := t.Token.Get(); ok && !bytes.Equal(v, p.Token) {
		diffs = append(diffs, fmt.Sprintf("token: got %x, want %x", p.Token, v))
	}
	if v, ok := t.Options.Get(); ok && !v.sorted().Equal(p.Options.sorted()) {
		diffs = append(diffs, fmt.Sprintf("options: got %v, want %v", p.Options, v))
	}
	if v, ok := t.Payload.Get(); ok && !bytes.Equal(v, p.Payload) {
		diffs = append(diffs, fmt.Sprintf("payload: got %q, want %q", p.Payload, v))
	}
	return diffs
}

// Build converts the template to a packet. Every field must be fixed.
func (t *Template) Build() (*Packet, error) {
	typ, ok := t.Type.Get()
	if !ok {
		return nil, fmt.Errorf("%w: type", ErrUnresolvedPlaceholder)
	}
	code, ok := t.Code.Get()
	if !ok {
		return nil, fmt.Errorf("%w: code", ErrUnresolvedPlaceholder)
	}
	msgID, ok := t.MessageID.Get()
	if !ok {
		return nil, fmt.Errorf("%w: msg_id", ErrUnresolvedPlaceholder)
	}
	token, ok := t.Token.Get()
	if !ok {
		return nil, fmt.Errorf("%w: token", ErrUnresolvedPlaceholder)
	}
	opts, ok := t.Options.Get()
	if !ok {
		return nil, fmt.Errorf("%w: options", ErrUnresolvedPlaceholder)
	}
	payload, ok := t.Payload.Get()
	if !ok {
		return nil, fmt.Errorf("%w: content", ErrUnresolvedPlaceholder)
	}
	return &Packet{
		Type:      typ,
		Code:      code,
		MessageID: msgID,
		Token:     append([]byte(nil), token...),
		Options:   opts.Clone(),
		Payload:   append([]byte(nil), payload...),
	}, nil
}

// Marshal builds and serializes the template.
func (t *Template) Marshal() ([]byte, error) {
	p, err := t.Build()
	if err != nil {
		return nil, err
	}
	return p.Marshal()
}

// DefaultInitialMessageID is the first message ID handed out by a new
// IDGenerator.
const DefaultInitialMessageID = 0x1337

// TokenLength is the length of generated tokens.
const TokenLength = 8

// IDGenerator hands out message IDs and tokens for one peer.
// It is not safe for concurrent use.
type IDGenerator struct {
	next uint16
	rand io.Reader
}

// IDOption configures an IDGenerator.
type IDOption func(*IDGenerator)

// WithInitialMessageID sets the first message ID.
func WithInitialMessageID(id uint16) IDOption {
	return func(g *IDGenerator) { g.next = id }
}

// WithRandomStart draws the first message ID from the random source.
func WithRandomStart() IDOption {
	return func(g *IDGenerator) {
		var b [2]byte
		if _, err := io.ReadFull(g.rand, b[:]); err == nil {
			g.next = uint16(b[0])<<8 | uint16(b[1])
		}
	}
}

// WithRandomSource sets the source of token bytes. It must precede
// WithRandomStart in the option list to affect it.
func WithRandomSource(r io.Reader) IDOption {
	return func(g *IDGenerator) { g.rand = r }
}

// NewIDGenerator creates a generator starting at DefaultInitialMessageID
// and drawing tokens from crypto/rand.
func NewIDGenerator(opts ...IDOption) *IDGenerator {
	g := &IDGenerator{next: DefaultInitialMessageID, rand: rand.Reader}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NextMessageID returns the next message ID, wrapping at 16 bits.
func (g *IDGenerator) NextMessageID() uint16 {
	id := g.next
	g.next++
	return id
}

// NewToken returns TokenLength random bytes.
func (g *IDGenerator) NewToken() ([]byte, error) {
	tok := make([]byte, TokenLength)
	if _, err := io.ReadFull(g.rand, tok); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return tok, nil
}

// Fill resolves the message ID and token placeholders of t and builds
// the packet. Fixed values are kept.
func (g *IDGenerator) Fill(t *Template) (*Packet, error) {
	filled := *t
	if filled.MessageID.IsAny() {
		filled.MessageID = Some(g.NextMessageID())
	}
	if filled.Token.IsAny() {
		tok, err := g.NewToken()
		if err != nil {
			return nil, err
		}
		filled.Token = Some(tok)
	}
	return filled.Build()
}
