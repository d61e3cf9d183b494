package log

import (
	"bytes"
	"testing"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
)

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{DirectionIn.String(), "IN"},
		{DirectionOut.String(), "OUT"},
		{Direction(99).String(), "UNKNOWN"},
		{LayerTransport.String(), "TRANSPORT"},
		{LayerCoAP.String(), "COAP"},
		{LayerLwM2M.String(), "LWM2M"},
		{Layer(99).String(), "UNKNOWN"},
		{CategoryMessage.String(), "MESSAGE"},
		{CategoryControl.String(), "CONTROL"},
		{CategoryState.String(), "STATE"},
		{CategoryError.String(), "ERROR"},
		{RoleServer.String(), "SERVER"},
		{RoleBootstrap.String(), "BOOTSTRAP"},
		{MessageTypeRequest.String(), "REQUEST"},
		{MessageTypeResponse.String(), "RESPONSE"},
		{MessageTypeNotification.String(), "NOTIFICATION"},
		{MessageTypeEmpty.String(), "EMPTY"},
		{StateEntityPeer.String(), "PEER"},
		{StateEntityRegistration.String(), "REGISTRATION"},
		{StateEntityObservation.String(), "OBSERVATION"},
		{StateEntityBlockTransfer.String(), "BLOCK_TRANSFER"},
		{ControlAck.String(), "ACK"},
		{ControlReset.String(), "RESET"},
		{ControlPing.String(), "PING"},
		{ControlType(99).String(), "UNKNOWN"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestNewDatagramEventTruncates(t *testing.T) {
	data := bytes.Repeat([]byte{0xab}, MaxDatagramSize+10)
	ev := NewDatagramEvent(data)
	if ev.Size != len(data) {
		t.Errorf("Size: got %d, want %d", ev.Size, len(data))
	}
	if !ev.Truncated || len(ev.Data) != MaxDatagramSize {
		t.Errorf("truncation: got %v/%d, want true/%d", ev.Truncated, len(ev.Data), MaxDatagramSize)
	}

	small := []byte{1, 2, 3}
	ev = NewDatagramEvent(small)
	small[0] = 9
	if ev.Truncated || ev.Data[0] != 1 {
		t.Errorf("small datagram: got %v, want an untruncated copy", ev.Data)
	}
}

func TestNewMessageEvent(t *testing.T) {
	req := coap.NewRequest(coap.Confirmable, coap.GET, "/5/0/1")
	req.MessageID = 0x1337
	req.Token = []byte{1, 2}
	req.Options.SetUint(coap.Observe, 0)

	ev := NewMessageEvent(req, "Observe")
	if ev.Type != MessageTypeRequest || ev.Path != "/5/0/1" || ev.Operation != "Observe" {
		t.Errorf("request event: got %+v", ev)
	}

	resp := req.Response(coap.Content)
	resp.Options.SetUint(coap.Observe, 3)
	resp.Options.SetContentFormat(coap.SenMLCBOR)
	resp.Options.Set(coap.Block{Num: 2, More: true, SZX: 6}.Option(coap.Block2))
	resp.Payload = []byte{0x80}

	ev = NewMessageEvent(resp, "")
	if ev.Type != MessageTypeNotification {
		t.Errorf("Type: got %v, want NOTIFICATION", ev.Type)
	}
	if ev.Observe == nil || *ev.Observe != 3 {
		t.Errorf("Observe: got %v, want 3", ev.Observe)
	}
	if ev.ContentFormat == nil || *ev.ContentFormat != uint16(coap.SenMLCBOR) {
		t.Errorf("ContentFormat: got %v, want %d", ev.ContentFormat, coap.SenMLCBOR)
	}
	if ev.Block != "2:2/1/1024" {
		t.Errorf("Block: got %q, want %q", ev.Block, "2:2/1/1024")
	}
	if ev.Path != "" || ev.PayloadSize != 1 {
		t.Errorf("response event: got %+v", ev)
	}

	if got := MessageTypeOf(coap.NewEmptyAck(1)); got != MessageTypeEmpty {
		t.Errorf("MessageTypeOf(empty ack) = %v, want EMPTY", got)
	}
}
