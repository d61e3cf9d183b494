package coap

import (
	"bytes"
	"errors"
	"testing"
)

func TestIDGeneratorSequence(t *testing.T) {
	g := NewIDGenerator()
	for i := 0; i < 3; i++ {
		if got := g.NextMessageID(); got != DefaultInitialMessageID+uint16(i) {
			t.Errorf("NextMessageID #%d: got %#x, want %#x", i, got, DefaultInitialMessageID+i)
		}
	}

	g = NewIDGenerator(WithInitialMessageID(0xffff))
	if g.NextMessageID() != 0xffff || g.NextMessageID() != 0 {
		t.Error("message ID should wrap at 16 bits")
	}
}

func TestIDGeneratorToken(t *testing.T) {
	src := bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
	g := NewIDGenerator(WithRandomSource(src))
	tok, err := g.NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if !bytes.Equal(tok, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("NewToken: got %x", tok)
	}

	g = NewIDGenerator(WithRandomSource(bytes.NewReader([]byte{1, 2})))
	if _, err := g.NewToken(); err == nil {
		t.Error("NewToken from exhausted source: expected error")
	}
}

func TestTemplateFill(t *testing.T) {
	tmpl := &Template{
		Type:      Some(Confirmable),
		Code:      Some(GET),
		MessageID: Any[uint16](),
		Token:     Any[[]byte](),
		Options:   Some(Options{StringOption(URIPath, "3")}),
		Payload:   Some([]byte(nil)),
	}

	if _, err := tmpl.Build(); !errors.Is(err, ErrUnresolvedPlaceholder) {
		t.Fatalf("Build with placeholders: got %v, want ErrUnresolvedPlaceholder", err)
	}
	if _, err := tmpl.Marshal(); !errors.Is(err, ErrUnresolvedPlaceholder) {
		t.Fatalf("Marshal with placeholders: got %v, want ErrUnresolvedPlaceholder", err)
	}

	g := NewIDGenerator()
	p, err := g.Fill(tmpl)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if p.MessageID != DefaultInitialMessageID {
		t.Errorf("MessageID: got %#x, want %#x", p.MessageID, DefaultInitialMessageID)
	}
	if len(p.Token) != TokenLength {
		t.Errorf("Token length: got %d, want %d", len(p.Token), TokenLength)
	}
	if !tmpl.MessageID.IsAny() {
		t.Error("Fill must not modify the template")
	}
	if !tmpl.Matches(p) {
		t.Errorf("template should match its filled packet: %v", tmpl.Diff(p))
	}
}

func TestTemplateDiff(t *testing.T) {
	p := &Packet{Type: Acknowledgement, Code: Created, MessageID: 5, Token: []byte{1}}
	p.Options.SetLocationPath(Path{"rd", "demo"})

	expected := &Template{
		Type:    Some(Acknowledgement),
		Code:    Some(Created),
		Token:   Some([]byte{1}),
		Options: Some(Options{StringOption(LocationPath, "rd"), StringOption(LocationPath, "demo")}),
	}
	if diffs := expected.Diff(p); len(diffs) != 0 {
		t.Errorf("Diff: got %v, want none", diffs)
	}

	expected.Code = Some(Changed)
	expected.MessageID = Some(uint16(6))
	if diffs := expected.Diff(p); len(diffs) != 2 {
		t.Errorf("Diff: got %v, want 2 mismatches", diffs)
	}

	full := TemplateOf(p)
	if !full.Matches(p) {
		t.Errorf("TemplateOf should match: %v", full.Diff(p))
	}
}
