package log

import (
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
)

// MaxDatagramSize is the number of datagram bytes kept in a DatagramEvent.
// Larger datagrams are truncated and flagged.
const MaxDatagramSize = 2048

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the transport peer (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole is the role of the simulated server.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the client address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Endpoint is the client endpoint name (known after registration).
	Endpoint string `cbor:"8,keyasint,omitempty"`

	// Location is the registration location, e.g. "/rd/demo".
	Location string `cbor:"9,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Datagram    *DatagramEvent    `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // CoAP/LwM2M layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Peer/registration state
	Control     *ControlEvent     `cbor:"13,keyasint,omitempty"` // Empty ACK/Reset
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the datagram layer (raw bytes).
	LayerTransport Layer = 0
	// LayerCoAP is the message layer (decoded packets).
	LayerCoAP Layer = 1
	// LayerLwM2M is the LwM2M operation layer.
	LayerLwM2M Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerCoAP:
		return "COAP"
	case LayerLwM2M:
		return "LWM2M"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a request, response or notification.
	CategoryMessage Category = 0
	// CategoryControl indicates an empty ACK or a Reset.
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role is the role the simulated server plays.
type Role uint8

const (
	// RoleServer is an LwM2M server (registration interface).
	RoleServer Role = 0
	// RoleBootstrap is an LwM2M bootstrap server.
	RoleBootstrap Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleServer:
		return "SERVER"
	case RoleBootstrap:
		return "BOOTSTRAP"
	default:
		return "UNKNOWN"
	}
}

// DatagramEvent captures raw datagram bytes at the transport layer.
type DatagramEvent struct {
	// Size is the datagram size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw datagram (may be truncated).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewDatagramEvent copies data, truncating it at MaxDatagramSize.
func NewDatagramEvent(data []byte) *DatagramEvent {
	ev := &DatagramEvent{Size: len(data)}
	if len(data) > MaxDatagramSize {
		data = data[:MaxDatagramSize]
		ev.Truncated = true
	}
	ev.Data = append([]byte(nil), data...)
	return ev
}

// MessageEvent captures a decoded CoAP message.
type MessageEvent struct {
	// Type distinguishes request/response/notification.
	Type MessageType `cbor:"1,keyasint"`

	// MessageID is the CoAP message ID.
	MessageID uint16 `cbor:"2,keyasint"`

	// CoAPType is the CoAP message type (CON/NON/ACK/RST).
	CoAPType uint8 `cbor:"3,keyasint"`

	// Code is the raw CoAP code (class<<5 | detail).
	Code uint8 `cbor:"4,keyasint"`

	// Token correlates requests, responses and notifications.
	Token []byte `cbor:"5,keyasint,omitempty"`

	// Path is the Uri-Path of requests ("/3/0/0").
	Path string `cbor:"6,keyasint,omitempty"`

	// Operation is the recognized LwM2M operation ("Register", "Read").
	Operation string `cbor:"7,keyasint,omitempty"`

	// ContentFormat of the payload, if present.
	ContentFormat *uint16 `cbor:"8,keyasint,omitempty"`

	// Observe sequence number of notifications.
	Observe *uint32 `cbor:"9,keyasint,omitempty"`

	// Block is the Block1 or Block2 option as "num/more/size".
	Block string `cbor:"10,keyasint,omitempty"`

	// PayloadSize is the payload length in bytes.
	PayloadSize int `cbor:"11,keyasint,omitempty"`

	// ProcessingTime is the duration from request receipt to response
	// send (response only). Stored as nanoseconds.
	ProcessingTime *time.Duration `cbor:"12,keyasint,omitempty"`
}

// NewMessageEvent summarizes a packet. operation may be empty.
func NewMessageEvent(p *coap.Packet, operation string) *MessageEvent {
	ev := &MessageEvent{
		Type:        MessageTypeOf(p),
		MessageID:   p.MessageID,
		CoAPType:    uint8(p.Type),
		Code:        uint8(p.Code),
		Token:       append([]byte(nil), p.Token...),
		Operation:   operation,
		PayloadSize: len(p.Payload),
	}
	if p.Code.IsRequest() {
		ev.Path = p.Path().String()
	}
	if cf, ok := p.Options.ContentFormat(); ok {
		v := uint16(cf)
		ev.ContentFormat = &v
	}
	if obs, ok := p.Options.Observe(); ok {
		ev.Observe = &obs
	}
	if blk, ok, _ := p.Options.Block2(); ok {
		ev.Block = "2:" + blk.String()
	} else if blk, ok, _ := p.Options.Block1(); ok {
		ev.Block = "1:" + blk.String()
	}
	return ev
}

// MessageType distinguishes request/response/notification.
type MessageType uint8

const (
	// MessageTypeRequest indicates a request message.
	MessageTypeRequest MessageType = 0
	// MessageTypeResponse indicates a response message.
	MessageTypeResponse MessageType = 1
	// MessageTypeNotification indicates an Observe notification.
	MessageTypeNotification MessageType = 2
	// MessageTypeEmpty indicates an empty message (ACK, Reset, ping).
	MessageTypeEmpty MessageType = 3
)

// MessageTypeOf classifies a packet. Responses carrying Observe are
// notifications.
func MessageTypeOf(p *coap.Packet) MessageType {
	switch {
	case p.Code == coap.Empty:
		return MessageTypeEmpty
	case p.Code.IsRequest():
		return MessageTypeRequest
	case p.Options.Has(coap.Observe):
		return MessageTypeNotification
	default:
		return MessageTypeResponse
	}
}

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeNotification:
		return "NOTIFICATION"
	case MessageTypeEmpty:
		return "EMPTY"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures peer and registration lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityPeer indicates a transport peer state change
	// (listening, connected, fake-closed, closed).
	StateEntityPeer StateEntity = 0
	// StateEntityRegistration indicates a registration state change.
	StateEntityRegistration StateEntity = 1
	// StateEntityObservation indicates an observation state change.
	StateEntityObservation StateEntity = 2
	// StateEntityBlockTransfer indicates a block-wise transfer state change.
	StateEntityBlockTransfer StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityPeer:
		return "PEER"
	case StateEntityRegistration:
		return "REGISTRATION"
	case StateEntityObservation:
		return "OBSERVATION"
	case StateEntityBlockTransfer:
		return "BLOCK_TRANSFER"
	default:
		return "UNKNOWN"
	}
}

// ControlEvent captures empty CoAP messages.
type ControlEvent struct {
	// Type of control message.
	Type ControlType `cbor:"1,keyasint"`

	// MessageID of the acknowledged or rejected message.
	MessageID uint16 `cbor:"2,keyasint"`
}

// ControlType indicates the type of empty message.
type ControlType uint8

const (
	// ControlAck indicates an empty acknowledgement.
	ControlAck ControlType = 0
	// ControlReset indicates a Reset.
	ControlReset ControlType = 1
	// ControlPing indicates an empty confirmable message (CoAP ping).
	ControlPing ControlType = 2
)

// String returns the control message type name.
func (c ControlType) String() string {
	switch c {
	case ControlAck:
		return "ACK"
	case ControlReset:
		return "RESET"
	case ControlPing:
		return "PING"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the CoAP response code sent for the error, if any.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
