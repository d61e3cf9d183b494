package lwm2m

import (
	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
)

// Well-known interface paths.
var (
	RegistrationPath = coap.Path{"rd"}
	BootstrapPath    = coap.Path{"bs"}
	SendPath         = coap.Path{"dp"}
)

type recognizer struct {
	kind  Kind
	match func(p *coap.Packet) bool
}

// recognizers is ordered most specific first.
var recognizers = []recognizer{
	{KindReset, func(p *coap.Packet) bool { return p.Type == coap.Reset }},
	{KindEmptyAck, func(p *coap.Packet) bool { return p.IsEmptyAck() }},
	{KindSignal, func(p *coap.Packet) bool { return p.Code.IsSignal() }},
	{KindResponse, func(p *coap.Packet) bool { return p.Code.IsResponse() }},

	{KindObserveComposite, func(p *coap.Packet) bool { return p.Code == coap.FETCH && observeIs(p, 0) }},
	{KindCancelObserveComposite, func(p *coap.Packet) bool { return p.Code == coap.FETCH && observeIs(p, 1) }},
	{KindReadComposite, func(p *coap.Packet) bool { return p.Code == coap.FETCH }},
	{KindWriteComposite, func(p *coap.Packet) bool { return p.Code == coap.IPATCH }},

	{KindObserve, func(p *coap.Packet) bool { return p.Code == coap.GET && nonRootDataPath(p) && observeIs(p, 0) }},
	{KindCancelObserve, func(p *coap.Packet) bool { return p.Code == coap.GET && nonRootDataPath(p) && observeIs(p, 1) }},
	{KindBootstrapDiscover, func(p *coap.Packet) bool {
		return p.Code == coap.GET && len(p.Path()) == 0 && acceptsLinkFormat(p)
	}},
	{KindDiscover, func(p *coap.Packet) bool { return p.Code == coap.GET && nonRootDataPath(p) && acceptsLinkFormat(p) }},
	{KindRead, func(p *coap.Packet) bool { return p.Code == coap.GET && nonRootDataPath(p) }},

	{KindBootstrapRequest, func(p *coap.Packet) bool {
		return p.Code == coap.POST && p.Path().Equal(BootstrapPath) && hasQuery(p, "ep")
	}},
	{KindBootstrapFinish, func(p *coap.Packet) bool {
		return p.Code == coap.POST && p.Path().Equal(BootstrapPath) && !hasQuery(p, "ep")
	}},
	{KindRegister, func(p *coap.Packet) bool {
		return p.Code == coap.POST && isRegistrationPath(p.Path()) && linkFormatOrEmpty(p)
	}},
	{KindUpdate, func(p *coap.Packet) bool {
		return p.Code == coap.POST && isRegistrationLocation(p.Path()) && linkFormatOrEmpty(p)
	}},
	{KindSend, func(p *coap.Packet) bool { return p.Code == coap.POST && p.Path().Equal(SendPath) }},
	{KindDeregister, func(p *coap.Packet) bool {
		return p.Code == coap.DELETE && len(p.Path()) > 0 && !isDataPath(p.Path())
	}},
	{KindBootstrapDelete, func(p *coap.Packet) bool { return p.Code == coap.DELETE && len(p.Path()) == 0 }},
	{KindDelete, func(p *coap.Packet) bool { return p.Code == coap.DELETE && nonRootDataPath(p) }},

	{KindCreate, func(p *coap.Packet) bool {
		return p.Code == coap.POST && pathKind(p) == PathObject && hasContentFormat(p, coap.LwM2MTLV, coap.SenMLCBOR, coap.SenMLJSON)
	}},
	{KindExecute, func(p *coap.Packet) bool {
		return p.Code == coap.POST && pathKind(p) == PathResource && !p.Options.Has(coap.ContentFormatOption)
	}},
	{KindWrite, func(p *coap.Packet) bool {
		if p.Code != coap.PUT && p.Code != coap.POST {
			return false
		}
		cf, ok := p.Options.ContentFormat()
		return ok && cf != coap.LinkFormat && nonRootDataPath(p)
	}},
	{KindWriteAttributes, func(p *coap.Packet) bool {
		return p.Code == coap.PUT && nonRootDataPath(p) && !p.Options.Has(coap.ContentFormatOption)
	}},
}

// Recognize tags a packet with the LwM2M operation it carries. Requests
// that match no operation are KindRequest.
func Recognize(p *coap.Packet) *Message {
	for _, r := range recognizers {
		if r.match(p) {
			return &Message{Kind: r.kind, Packet: p}
		}
	}
	return &Message{Kind: KindRequest, Packet: p}
}

func observeIs(p *coap.Packet, v uint32) bool {
	obs, ok := p.Options.Observe()
	return ok && obs == v
}

func isDataPath(cp coap.Path) bool {
	_, err := FromCoAP(cp)
	return err == nil
}

func nonRootDataPath(p *coap.Packet) bool {
	cp := p.Path()
	return len(cp) > 0 && isDataPath(cp)
}

func pathKind(p *coap.Packet) PathKind {
	path, err := FromCoAP(p.Path())
	if err != nil {
		return PathRoot
	}
	return path.Kind()
}

func acceptsLinkFormat(p *coap.Packet) bool {
	accept, ok := p.Options.Accept()
	return ok && accept == coap.LinkFormat
}

func hasQuery(p *coap.Packet, key string) bool {
	_, ok := p.Options.Query(key)
	return ok
}

func hasContentFormat(p *coap.Packet, formats ...coap.ContentFormat) bool {
	cf, ok := p.Options.ContentFormat()
	if !ok {
		return false
	}
	for _, f := range formats {
		if cf == f {
			return true
		}
	}
	return false
}

// linkFormatOrEmpty accepts a link-format payload or no Content-Format
// with an empty body.
func linkFormatOrEmpty(p *coap.Packet) bool {
	cf, ok := p.Options.ContentFormat()
	if ok {
		return cf == coap.LinkFormat
	}
	return len(p.Payload) == 0
}

// isRegistrationPath reports whether cp ends in "rd". Servers may mount
// the registration interface below a prefix such as /lwm2m/rd.
func isRegistrationPath(cp coap.Path) bool {
	return len(cp) > 0 && cp[len(cp)-1] == RegistrationPath[0]
}

// isRegistrationLocation reports whether cp has an "rd" segment followed
// by at least one location segment.
func isRegistrationLocation(cp coap.Path) bool {
	for i := 0; i < len(cp)-1; i++ {
		if cp[i] == RegistrationPath[0] {
			return true
		}
	}
	return false
}
