package lwm2m

import (
	"fmt"
	"strconv"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/version"
)

// Kind identifies the LwM2M operation carried by a CoAP packet.
type Kind uint8

const (
	// KindRequest is a CoAP request that is not an LwM2M operation.
	KindRequest Kind = iota
	KindRegister
	KindUpdate
	KindDeregister
	KindBootstrapRequest
	KindBootstrapFinish
	KindBootstrapDiscover
	KindBootstrapDelete
	KindSend
	KindRead
	KindObserve
	KindCancelObserve
	KindDiscover
	KindWrite
	KindWriteAttributes
	KindExecute
	KindCreate
	KindDelete
	KindReadComposite
	KindObserveComposite
	KindCancelObserveComposite
	KindWriteComposite
	// KindResponse is any piggy-backed or separate response.
	KindResponse
	// KindEmptyAck is an ACK with code 0.00.
	KindEmptyAck
	// KindReset is a RST message.
	KindReset
	// KindSignal is a signaling message (code 7.xx).
	KindSignal
)

var kindNames = [...]string{
	KindRequest:                "Request",
	KindRegister:               "Register",
	KindUpdate:                 "Update",
	KindDeregister:             "Deregister",
	KindBootstrapRequest:       "BootstrapRequest",
	KindBootstrapFinish:        "BootstrapFinish",
	KindBootstrapDiscover:      "BootstrapDiscover",
	KindBootstrapDelete:        "BootstrapDelete",
	KindSend:                   "Send",
	KindRead:                   "Read",
	KindObserve:                "Observe",
	KindCancelObserve:          "CancelObserve",
	KindDiscover:               "Discover",
	KindWrite:                  "Write",
	KindWriteAttributes:        "WriteAttributes",
	KindExecute:                "Execute",
	KindCreate:                 "Create",
	KindDelete:                 "Delete",
	KindReadComposite:          "ReadComposite",
	KindObserveComposite:       "ObserveComposite",
	KindCancelObserveComposite: "CancelObserveComposite",
	KindWriteComposite:         "WriteComposite",
	KindResponse:               "Response",
	KindEmptyAck:               "EmptyAck",
	KindReset:                  "Reset",
	KindSignal:                 "Signal",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN"
}

// ParseKind returns the kind with the given name.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown lwm2m message kind %q", s)
}

// IsClientInitiated returns true for operations the client sends to a
// server (registration, bootstrap request and Send).
func (k Kind) IsClientInitiated() bool {
	switch k {
	case KindRegister, KindUpdate, KindDeregister, KindBootstrapRequest, KindSend:
		return true
	}
	return false
}

// Message is a CoAP packet tagged with the LwM2M operation it carries.
type Message struct {
	Kind   Kind
	Packet *coap.Packet
}

// Query returns a Uri-Query parameter.
func (m *Message) Query(key string) (string, bool) {
	return m.Packet.Options.Query(key)
}

// Endpoint returns the "ep" parameter of Register and Bootstrap-Request.
func (m *Message) Endpoint() string {
	ep, _ := m.Query("ep")
	return ep
}

// Lifetime returns the "lt" parameter.
func (m *Message) Lifetime() (time.Duration, bool) {
	lt, ok := m.Query("lt")
	if !ok {
		return 0, false
	}
	secs, err := strconv.ParseUint(lt, 10, 32)
	if err != nil {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// Binding returns the "b" parameter.
func (m *Message) Binding() string {
	b, _ := m.Query("b")
	return b
}

// SMS returns the "sms" parameter.
func (m *Message) SMS() string {
	sms, _ := m.Query("sms")
	return sms
}

// Queue returns true if the LwM2M 1.1 "Q" parameter is present.
func (m *Message) Queue() bool {
	_, ok := m.Query("Q")
	return ok
}

// Version returns the "lwm2m" parameter of a Register.
func (m *Message) Version() (version.Version, bool) {
	v, ok := m.Query("lwm2m")
	if !ok {
		return version.Version{}, false
	}
	ver, err := version.Parse(v)
	if err != nil {
		return version.Version{}, false
	}
	return ver, true
}

// PreferredContentFormat returns the "pct" parameter of a
// Bootstrap-Request.
func (m *Message) PreferredContentFormat() (coap.ContentFormat, bool) {
	v, ok := m.Query("pct")
	if !ok {
		return 0, false
	}
	cf, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return 0, false
	}
	return coap.ContentFormat(cf), true
}

// ContentFormat returns the Content-Format option.
func (m *Message) ContentFormat() (coap.ContentFormat, bool) {
	return m.Packet.Options.ContentFormat()
}

// Path returns the data-model path of the request.
func (m *Message) Path() (Path, error) {
	return FromCoAP(m.Packet.Path())
}

// Location returns the Uri-Path of Update and Deregister.
func (m *Message) Location() coap.Path {
	return m.Packet.Path()
}

// Observe returns the Observe option value.
func (m *Message) Observe() (uint32, bool) {
	return m.Packet.Options.Observe()
}

// IsPartialUpdate returns true for a Write sent with POST.
func (m *Message) IsPartialUpdate() bool {
	return m.Kind == KindWrite && m.Packet.Code == coap.POST
}

// Links parses the link-format payload of Register, Update or Discover
// responses.
func (m *Message) Links() (Links, error) {
	return ParseLinks(string(m.Packet.Payload))
}

// Attributes parses the Uri-Query of a Write-Attributes.
func (m *Message) Attributes() (Attributes, error) {
	return ParseAttributes(m.Packet.Options.Queries())
}

// ExecuteArguments returns the payload of an Execute.
func (m *Message) ExecuteArguments() string {
	return string(m.Packet.Payload)
}

// Matching returns a response factory for this message.
func (m *Message) Matching() Responder {
	return Matching(m.Packet)
}

// String returns the kind followed by the packet summary.
func (m *Message) String() string {
	return m.Kind.String() + " " + m.Packet.String()
}
