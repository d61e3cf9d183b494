package lwm2m

import (
	"strconv"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/version"
)

// request builds a Confirmable request template with ANY message ID and
// token.
func request(code coap.Code, path coap.Path, payload []byte, opts ...coap.Option) *coap.Template {
	var options coap.Options
	options.SetPath(path)
	for _, opt := range opts {
		options.Add(opt)
	}
	return &coap.Template{
		Type:      coap.Some(coap.Confirmable),
		Code:      coap.Some(code),
		MessageID: coap.Any[uint16](),
		Token:     coap.Any[[]byte](),
		Options:   coap.Some(options),
		Payload:   coap.Some(payload),
	}
}

func contentFormat(cf coap.ContentFormat) coap.Option {
	return coap.UintOption(coap.ContentFormatOption, uint64(cf))
}

func accept(cf coap.ContentFormat) coap.Option {
	return coap.UintOption(coap.Accept, uint64(cf))
}

func acceptOpts(formats []coap.ContentFormat) []coap.Option {
	if len(formats) == 0 {
		return nil
	}
	return []coap.Option{accept(formats[0])}
}

func queries(qs []string) []coap.Option {
	out := make([]coap.Option, len(qs))
	for i, q := range qs {
		out[i] = coap.StringOption(coap.URIQuery, q)
	}
	return out
}

// NewRead creates a Read. An optional Accept format may be given.
func NewRead(path Path, acceptFormat ...coap.ContentFormat) *coap.Template {
	return request(coap.GET, path.CoAP(), nil, acceptOpts(acceptFormat)...)
}

// NewDiscover creates a Discover.
func NewDiscover(path Path) *coap.Template {
	return request(coap.GET, path.CoAP(), nil, accept(coap.LinkFormat))
}

// NewBootstrapDiscover creates a Bootstrap-Discover on the root or an
// object path.
func NewBootstrapDiscover(path Path) *coap.Template {
	return NewDiscover(path)
}

// NewWrite creates a Write (Replace) sent with PUT.
func NewWrite(path Path, cf coap.ContentFormat, payload []byte) *coap.Template {
	return request(coap.PUT, path.CoAP(), payload, contentFormat(cf))
}

// NewBootstrapWrite creates a Bootstrap-Write. It is a PUT like Write but
// may target objects and instances the client does not expose yet.
func NewBootstrapWrite(path Path, cf coap.ContentFormat, payload []byte) *coap.Template {
	return NewWrite(path, cf, payload)
}

// NewWritePartial creates a Write (Partial Update) sent with POST.
func NewWritePartial(path Path, cf coap.ContentFormat, payload []byte) *coap.Template {
	return request(coap.POST, path.CoAP(), payload, contentFormat(cf))
}

// NewWriteAttributes creates a Write-Attributes.
func NewWriteAttributes(path Path, attrs Attributes) *coap.Template {
	return request(coap.PUT, path.CoAP(), nil, queries(attrs.Queries())...)
}

// NewExecute creates an Execute with optional arguments.
func NewExecute(path Path, args string) *coap.Template {
	return request(coap.POST, path.CoAP(), []byte(args))
}

// NewCreate creates a Create on an object path.
func NewCreate(path Path, cf coap.ContentFormat, payload []byte) *coap.Template {
	return request(coap.POST, path.CoAP(), payload, contentFormat(cf))
}

// NewDelete creates a Delete. On the root path it is a Bootstrap-Delete.
func NewDelete(path Path) *coap.Template {
	return request(coap.DELETE, path.CoAP(), nil)
}

// NewObserve creates an Observe (Observe=0).
func NewObserve(path Path, acceptFormat ...coap.ContentFormat) *coap.Template {
	return request(coap.GET, path.CoAP(), nil, append(acceptOpts(acceptFormat), coap.UintOption(coap.Observe, 0))...)
}

// NewCancelObserve creates an Observe=1 reusing the observation token.
func NewCancelObserve(path Path, token []byte) *coap.Template {
	t := request(coap.GET, path.CoAP(), nil, coap.UintOption(coap.Observe, 1))
	t.Token = coap.Some(token)
	return t
}

// NewReadComposite creates a Read-Composite. The payload lists the paths
// in the given SenML format and the response is requested in the same
// format.
func NewReadComposite(cf coap.ContentFormat, payload []byte) *coap.Template {
	return request(coap.FETCH, nil, payload, contentFormat(cf), accept(cf))
}

// NewObserveComposite creates an Observe-Composite.
func NewObserveComposite(cf coap.ContentFormat, payload []byte) *coap.Template {
	return request(coap.FETCH, nil, payload, contentFormat(cf), accept(cf), coap.UintOption(coap.Observe, 0))
}

// NewWriteComposite creates a Write-Composite (iPATCH).
func NewWriteComposite(cf coap.ContentFormat, payload []byte) *coap.Template {
	return request(coap.IPATCH, nil, payload, contentFormat(cf))
}

// NewBootstrapFinish creates the Bootstrap-Finish a bootstrap server
// sends to the client.
func NewBootstrapFinish() *coap.Template {
	return request(coap.POST, BootstrapPath, nil)
}

// RegisterParams are the query parameters of a Register.
type RegisterParams struct {
	Endpoint string
	Lifetime time.Duration
	Version  version.Version
	Binding  string
	Queue    bool
}

// Queries renders the parameters in the order clients commonly send them.
func (r RegisterParams) Queries() []string {
	var qs []string
	if r.Version != (version.Version{}) {
		qs = append(qs, "lwm2m="+r.Version.String())
	}
	qs = append(qs, "ep="+r.Endpoint)
	if r.Lifetime > 0 {
		qs = append(qs, "lt="+strconv.FormatInt(int64(r.Lifetime/time.Second), 10))
	}
	if r.Binding != "" {
		qs = append(qs, "b="+r.Binding)
	}
	if r.Queue {
		qs = append(qs, "Q")
	}
	return qs
}

// NewRegister creates the client's Register request.
func NewRegister(params RegisterParams, links Links) *coap.Template {
	opts := append(queries(params.Queries()), contentFormat(coap.LinkFormat))
	return request(coap.POST, RegistrationPath, []byte(links.String()), opts...)
}

// NewUpdate creates an Update to a registration location. Links may be nil
// for an Update without payload.
func NewUpdate(location coap.Path, params []string, links Links) *coap.Template {
	opts := queries(params)
	var payload []byte
	if links != nil {
		payload = []byte(links.String())
		opts = append(opts, contentFormat(coap.LinkFormat))
	}
	return request(coap.POST, location, payload, opts...)
}

// NewDeregister creates a Deregister.
func NewDeregister(location coap.Path) *coap.Template {
	return request(coap.DELETE, location, nil)
}

// NewBootstrapRequest creates the client's Bootstrap-Request. A zero pct
// omits the preferred content format.
func NewBootstrapRequest(endpoint string, pct coap.ContentFormat) *coap.Template {
	qs := []string{"ep=" + endpoint}
	if pct != 0 {
		qs = append(qs, "pct="+strconv.Itoa(int(pct)))
	}
	return request(coap.POST, BootstrapPath, nil, queries(qs)...)
}

// NewSend creates a Send.
func NewSend(cf coap.ContentFormat, payload []byte) *coap.Template {
	return request(coap.POST, SendPath, payload, contentFormat(cf))
}
