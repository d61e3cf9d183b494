package lwm2m

import (
	"testing"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/version"
)

func req(code coap.Code, path string, opts ...coap.Option) *coap.Packet {
	p := coap.NewRequest(coap.Confirmable, code, path)
	for _, o := range opts {
		p.Options.Add(o)
	}
	return p
}

func cf(f coap.ContentFormat) coap.Option {
	return coap.UintOption(coap.ContentFormatOption, uint64(f))
}

func TestRecognize(t *testing.T) {
	withPayload := func(p *coap.Packet, payload string) *coap.Packet {
		p.Payload = []byte(payload)
		return p
	}

	tests := []struct {
		name string
		pkt  *coap.Packet
		want Kind
	}{
		{"register", withPayload(req(coap.POST, "/rd?ep=dev&lt=60", cf(coap.LinkFormat)), "</1/1>"), KindRegister},
		{"minimal register", req(coap.POST, "/rd?ep=dev"), KindRegister},
		{"register with wrong format", withPayload(req(coap.POST, "/rd?ep=dev", cf(coap.LwM2MTLV)), "x"), KindRequest},
		{"update", req(coap.POST, "/rd/demo?lt=30"), KindUpdate},
		{"update with links", withPayload(req(coap.POST, "/rd/demo", cf(coap.LinkFormat)), "</3/0>"), KindUpdate},
		{"register below prefix", req(coap.POST, "/some/prefix/rd?ep=x"), KindRegister},
		{"update below prefix", req(coap.POST, "/some/prefix/rd/demo"), KindUpdate},
		{"post without rd segment", req(coap.POST, "/some/prefix/demo"), KindRequest},
		{"deregister", req(coap.DELETE, "/rd/demo"), KindDeregister},
		{"delete", req(coap.DELETE, "/3/0"), KindDelete},
		{"bootstrap delete", req(coap.DELETE, "/"), KindBootstrapDelete},
		{"read", req(coap.GET, "/3/0/1"), KindRead},
		{"observe", req(coap.GET, "/1337/0/1", coap.UintOption(coap.Observe, 0)), KindObserve},
		{"cancel observe", req(coap.GET, "/1337/0/1", coap.UintOption(coap.Observe, 1)), KindCancelObserve},
		{"discover", req(coap.GET, "/3", coap.UintOption(coap.Accept, uint64(coap.LinkFormat))), KindDiscover},
		{"bootstrap discover", req(coap.GET, "/", coap.UintOption(coap.Accept, uint64(coap.LinkFormat))), KindBootstrapDiscover},
		{"get on root", req(coap.GET, "/"), KindRequest},
		{"get on non-lwm2m path", req(coap.GET, "/fw/image"), KindRequest},
		{"write replace", withPayload(req(coap.PUT, "/3/0", cf(coap.LwM2MTLV)), "x"), KindWrite},
		{"bootstrap write", NewBootstrapWrite(MustPath(0, 1), coap.LwM2MTLV, []byte{0xc1, 0x01, 0x3c}), KindWrite},
		{"write partial", withPayload(req(coap.POST, "/3/0", cf(coap.SenMLCBOR)), "x"), KindWrite},
		{"write link-format", withPayload(req(coap.PUT, "/3/0", cf(coap.LinkFormat)), "x"), KindRequest},
		{"create", withPayload(req(coap.POST, "/1337", cf(coap.LwM2MTLV)), "x"), KindCreate},
		{"execute", req(coap.POST, "/3/0/4"), KindExecute},
		{"write attributes", req(coap.PUT, "/3/0/9?pmin=10"), KindWriteAttributes},
		{"bootstrap request", req(coap.POST, "/bs?ep=dev"), KindBootstrapRequest},
		{"bootstrap finish", req(coap.POST, "/bs"), KindBootstrapFinish},
		{"send", withPayload(req(coap.POST, "/dp", cf(coap.SenMLCBOR)), "x"), KindSend},
		{"read composite", req(coap.FETCH, "/", cf(coap.SenMLCBOR)), KindReadComposite},
		{"observe composite", req(coap.FETCH, "/", cf(coap.SenMLCBOR), coap.UintOption(coap.Observe, 0)), KindObserveComposite},
		{"cancel observe composite", req(coap.FETCH, "/", coap.UintOption(coap.Observe, 1)), KindCancelObserveComposite},
		{"write composite", req(coap.IPATCH, "/", cf(coap.SenMLCBOR)), KindWriteComposite},
		{"response", &coap.Packet{Type: coap.Acknowledgement, Code: coap.Content}, KindResponse},
		{"empty ack", coap.NewEmptyAck(1), KindEmptyAck},
		{"reset", coap.NewReset(1), KindReset},
		{"signal", &coap.Packet{Type: coap.Confirmable, Code: coap.Ping}, KindSignal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Recognize(tt.pkt).Kind; got != tt.want {
				t.Errorf("Recognize(%s): got %s, want %s", tt.pkt, got, tt.want)
			}
		})
	}
}

func TestRegisterAccessors(t *testing.T) {
	p := req(coap.POST, "/rd?lwm2m=1.0&ep=urn:dev:os:0023C7-000001&lt=86400&b=UQ", cf(coap.LinkFormat))
	p.Payload = []byte("</1/1>,</3/0>")

	msg := Recognize(p)
	if msg.Kind != KindRegister {
		t.Fatalf("Kind: got %s, want Register", msg.Kind)
	}
	if msg.Endpoint() != "urn:dev:os:0023C7-000001" {
		t.Errorf("Endpoint: got %q", msg.Endpoint())
	}
	if lt, ok := msg.Lifetime(); !ok || lt != 86400*time.Second {
		t.Errorf("Lifetime: got %v/%v", lt, ok)
	}
	if ver, ok := msg.Version(); !ok || ver != version.V1_0 {
		t.Errorf("Version: got %v/%v", ver, ok)
	}
	if msg.Binding() != "UQ" {
		t.Errorf("Binding: got %q", msg.Binding())
	}
	links, err := msg.Links()
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	paths := links.Paths()
	if len(paths) != 2 || paths[0] != MustPath(1, 1) || paths[1] != MustPath(3, 0) {
		t.Errorf("Links: got %v", paths)
	}
}

func TestConstructorsAreRecognized(t *testing.T) {
	gen := coap.NewIDGenerator()
	var attrs Attributes
	attrs.SetUint(AttrPMin, 1)
	attrs.SetFloat(AttrGT, 20.5)

	tests := []struct {
		name string
		tmpl *coap.Template
		want Kind
	}{
		{"read", NewRead(MustPath(3, 0, 0)), KindRead},
		{"discover", NewDiscover(MustPath(3)), KindDiscover},
		{"bootstrap discover", NewBootstrapDiscover(Path{}), KindBootstrapDiscover},
		{"write", NewWrite(MustPath(1, 1), coap.LwM2MTLV, []byte{0xc1, 0x01, 0x3c}), KindWrite},
		{"write partial", NewWritePartial(MustPath(1, 1), coap.LwM2MTLV, []byte{0xc1, 0x01, 0x3c}), KindWrite},
		{"write attributes", NewWriteAttributes(MustPath(3, 0, 9), attrs), KindWriteAttributes},
		{"execute", NewExecute(MustPath(3, 0, 4), ""), KindExecute},
		{"create", NewCreate(MustPath(1337), coap.SenMLJSON, []byte("[]")), KindCreate},
		{"delete", NewDelete(MustPath(1337, 0)), KindDelete},
		{"bootstrap delete", NewDelete(Path{}), KindBootstrapDelete},
		{"observe", NewObserve(MustPath(1337, 0, 1)), KindObserve},
		{"cancel observe", NewCancelObserve(MustPath(1337, 0, 1), []byte{1}), KindCancelObserve},
		{"read composite", NewReadComposite(coap.SenMLCBOR, []byte{0x80}), KindReadComposite},
		{"observe composite", NewObserveComposite(coap.SenMLCBOR, []byte{0x80}), KindObserveComposite},
		{"write composite", NewWriteComposite(coap.SenMLCBOR, []byte{0x80}), KindWriteComposite},
		{"bootstrap finish", NewBootstrapFinish(), KindBootstrapFinish},
		{"register", NewRegister(RegisterParams{Endpoint: "dev", Lifetime: time.Minute, Version: version.V1_1}, Links{{Target: "/3/0"}}), KindRegister},
		{"update", NewUpdate(coap.Path{"rd", "demo"}, []string{"lt=60"}, nil), KindUpdate},
		{"deregister", NewDeregister(coap.Path{"rd", "demo"}), KindDeregister},
		{"bootstrap request", NewBootstrapRequest("dev", coap.SenMLCBOR), KindBootstrapRequest},
		{"send", NewSend(coap.SenMLCBOR, []byte{0x80}), KindSend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := gen.Fill(tt.tmpl)
			if err != nil {
				t.Fatalf("Fill: %v", err)
			}
			data, err := p.Marshal()
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			parsed, err := coap.Parse(data)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := Recognize(parsed).Kind; got != tt.want {
				t.Errorf("Recognize: got %s, want %s (%s)", got, tt.want, parsed)
			}
		})
	}
}

func TestBootstrapRequestAccessors(t *testing.T) {
	msg := Recognize(req(coap.POST, "/bs?ep=dev&pct=112"))
	if msg.Endpoint() != "dev" {
		t.Errorf("Endpoint: got %q", msg.Endpoint())
	}
	if pct, ok := msg.PreferredContentFormat(); !ok || pct != coap.SenMLCBOR {
		t.Errorf("PreferredContentFormat: got %v/%v", pct, ok)
	}
}

func TestKindNames(t *testing.T) {
	for k := KindRequest; k <= KindSignal; k++ {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q): got %v/%v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("Bogus"); err == nil {
		t.Error("ParseKind(Bogus): expected error")
	}
}
