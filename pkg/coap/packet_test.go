package coap

import (
	"bytes"
	"errors"
	"testing"
)

func TestPacketMarshalKnownBytes(t *testing.T) {
	p := &Packet{
		Type:      Confirmable,
		Code:      GET,
		MessageID: 0x1234,
		Token:     []byte{0xab},
		Options:   Options{StringOption(URIPath, "a")},
	}
	got, err := p.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := []byte{0x41, 0x01, 0x12, 0x34, 0xab, 0xb1, 'a'}
	if !bytes.Equal(got, want) {
		t.Errorf("Marshal: got %x, want %x", got, want)
	}
}

func TestPacketRoundTrip(t *testing.T) {
	register := NewRequest(Confirmable, POST, "/rd?lwm2m=1.0&ep=urn:dev:os:0023C7-000001&lt=86400")
	register.MessageID = 0x1337
	register.Token = []byte{1, 2, 3, 4, 5, 6, 7, 8}
	register.Options.SetContentFormat(LinkFormat)
	register.Payload = []byte("</1/1>,</3/0>")

	blockResp := &Packet{Type: Acknowledgement, Code: Content, MessageID: 7, Token: []byte{9}}
	blockResp.Options.Add(Option{Number: ETag, Value: []byte{0xde, 0xad}})
	blockResp.Options.Add(Block{Num: 3, More: true, SZX: 6}.Option(Block2))
	blockResp.Options.SetUint(Size2, 9001)
	blockResp.Payload = bytes.Repeat([]byte{'x'}, 1024)

	tests := []struct {
		name string
		p    *Packet
	}{
		{"register", register},
		{"block response", blockResp},
		{"empty ack", NewEmptyAck(42)},
		{"reset", NewReset(0xffff)},
		{"long option", &Packet{Type: NonConfirmable, Code: POST, Options: Options{StringOption(ProxyURI, string(bytes.Repeat([]byte{'u'}, 400)))}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.p.Marshal()
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			got, err := Parse(data)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !got.Equal(tt.p) {
				t.Errorf("round trip: got %s, want %s", got, tt.p)
			}
		})
	}
}

func TestPacketMarshalSortsOptions(t *testing.T) {
	p := &Packet{
		Type: Confirmable,
		Code: PUT,
		Options: Options{
			UintOption(ContentFormatOption, uint64(LwM2MTLV)),
			StringOption(URIPath, "3"),
			StringOption(URIPath, "0"),
		},
		Payload: []byte{0xc1, 0x00, 0x01},
	}
	data, err := p.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Path().String() != "/3/0" {
		t.Errorf("Path: got %s, want /3/0", got.Path())
	}
	if got.Options[2].Number != ContentFormatOption {
		t.Errorf("last option: got %s, want Content-Format", got.Options[2].Number)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
		kind ParseErrorKind
	}{
		{"short header", []byte{0x40, 0x01, 0x00}, ErrMalformedHeader, ParseMalformedHeader},
		{"version 2", []byte{0x80, 0x01, 0x00, 0x01}, ErrUnsupportedVersion, ParseUnsupportedVersion},
		{"version 0", []byte{0x00, 0x01, 0x00, 0x01}, ErrUnsupportedVersion, ParseUnsupportedVersion},
		{"token length 9", []byte{0x49, 0x01, 0x00, 0x01, 1, 2, 3, 4, 5, 6, 7, 8, 9}, ErrBadTokenLength, ParseBadTokenLength},
		{"token truncated", []byte{0x44, 0x01, 0x00, 0x01, 1, 2}, ErrMalformedHeader, ParseMalformedHeader},
		{"reserved delta", []byte{0x40, 0x01, 0x00, 0x01, 0xf1, 'x'}, ErrBadOption, ParseBadOption},
		{"reserved length", []byte{0x40, 0x01, 0x00, 0x01, 0xbf}, ErrBadOption, ParseBadOption},
		{"option value truncated", []byte{0x40, 0x01, 0x00, 0x01, 0xb5, 'a'}, ErrBadOption, ParseBadOption},
		{"option number overflow", []byte{0x40, 0x01, 0x00, 0x01, 0xe0, 0xff, 0xff}, ErrBadOption, ParseBadOption},
		{"marker without payload", []byte{0x40, 0x01, 0x00, 0x01, 0xff}, ErrBadPayload, ParseBadPayload},
		{"empty with bytes", []byte{0x60, 0x00, 0x00, 0x01, 0xff, 0x00}, ErrTrailingBytes, ParseTrailingBytes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Parse: got %v, want %v", err, tt.want)
			}
			var pe *ParseError
			if !errors.As(err, &pe) || pe.Kind != tt.kind {
				t.Errorf("kind: got %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestPacketResponse(t *testing.T) {
	req := &Packet{Type: Confirmable, Code: GET, MessageID: 99, Token: []byte{1, 2}}
	resp := req.Response(Content)
	if resp.Type != Acknowledgement || resp.MessageID != 99 || !bytes.Equal(resp.Token, req.Token) {
		t.Errorf("CON response: got %s", resp)
	}

	req.Type = NonConfirmable
	resp = req.Response(Content)
	if resp.Type != NonConfirmable || !bytes.Equal(resp.Token, req.Token) {
		t.Errorf("NON response: got %s", resp)
	}
}

func TestCodePredicates(t *testing.T) {
	tests := []struct {
		code     Code
		str      string
		request  bool
		response bool
	}{
		{Empty, "0.00 Empty", false, false},
		{GET, "0.01 GET", true, false},
		{IPATCH, "0.07 iPATCH", true, false},
		{Created, "2.01 Created", false, true},
		{Continue, "2.31 Continue", false, true},
		{RequestEntityIncomplete, "4.08 Request Entity Incomplete", false, true},
		{ServiceUnavailable, "5.03 Service Unavailable", false, true},
		{Pong, "7.03 Pong", false, false},
		{NewCode(3, 1), "3.01", false, false},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.str {
			t.Errorf("String: got %q, want %q", got, tt.str)
		}
		if tt.code.IsRequest() != tt.request {
			t.Errorf("%s IsRequest: got %v", tt.code, !tt.request)
		}
		if tt.code.IsResponse() != tt.response {
			t.Errorf("%s IsResponse: got %v", tt.code, !tt.response)
		}
	}
	if !Pong.IsSignal() {
		t.Error("7.03 should be a signal code")
	}
}

func TestHex(t *testing.T) {
	b, err := ParseHex("0x41 01:12 34")
	if err != nil {
		t.Fatalf("ParseHex: %v", err)
	}
	if got := HexDump(b); got != "41 01 12 34" {
		t.Errorf("HexDump: got %q", got)
	}
}

func TestParseCodeAndContentFormat(t *testing.T) {
	codes := map[string]Code{
		"2.05":      Content,
		"4.04":      NotFound,
		"0.01":      GET,
		"not found": NotFound,
		"POST":      POST,
		"Continue":  Continue,
	}
	for in, want := range codes {
		got, err := ParseCode(in)
		if err != nil || got != want {
			t.Errorf("ParseCode(%q): got %v, %v; want %v", in, got, err, want)
		}
	}
	for _, bad := range []string{"9.01", "2.40", "teapot", ""} {
		if _, err := ParseCode(bad); err == nil {
			t.Errorf("ParseCode(%q): expected error", bad)
		}
	}
	if got := Content.Dotted(); got != "2.05" {
		t.Errorf("Dotted: got %q", got)
	}

	formats := map[string]ContentFormat{
		"112":                    SenMLCBOR,
		"application/senml+json": SenMLJSON,
		"link-format":            LinkFormat,
		"TLV":                    LwM2MTLV,
		"octet-stream":           OctetStream,
	}
	for in, want := range formats {
		got, err := ParseContentFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseContentFormat(%q): got %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseContentFormat("image/png"); err == nil {
		t.Error("ParseContentFormat: expected error for unknown type")
	}
}
