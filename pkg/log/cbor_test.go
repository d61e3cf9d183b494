package log

import (
	"bytes"
	"testing"
	"time"
)

func TestEventCBORRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456789, time.UTC)
	cf := uint16(112)
	obs := uint32(2)
	processing := 3 * time.Millisecond
	code := 0x84
	original := Event{
		Timestamp:    ts,
		ConnectionID: "abc12345-def6-7890-abcd-ef1234567890",
		Direction:    DirectionOut,
		Layer:        LayerLwM2M,
		Category:     CategoryMessage,
		LocalRole:    RoleBootstrap,
		RemoteAddr:   "127.0.0.1:56830",
		Endpoint:     "urn:dev:os:0023C7-000001",
		Location:     "/rd/demo",
		Message: &MessageEvent{
			Type:           MessageTypeNotification,
			MessageID:      0x1338,
			CoAPType:       1,
			Code:           0x45,
			Token:          []byte{1, 2, 3, 4, 5, 6, 7, 8},
			ContentFormat:  &cf,
			Observe:        &obs,
			Block:          "2:0/1/1024",
			PayloadSize:    1024,
			ProcessingTime: &processing,
		},
		Error: &ErrorEventData{Layer: LayerCoAP, Message: "bad option", Code: &code},
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, original.Timestamp)
	}
	if decoded.Endpoint != original.Endpoint || decoded.Location != original.Location {
		t.Errorf("identifiers: got %q %q", decoded.Endpoint, decoded.Location)
	}
	if decoded.LocalRole != RoleBootstrap {
		t.Errorf("LocalRole: got %v, want %v", decoded.LocalRole, RoleBootstrap)
	}
	m := decoded.Message
	if m == nil {
		t.Fatal("Message is nil")
	}
	if m.MessageID != 0x1338 || m.Code != 0x45 || !bytes.Equal(m.Token, original.Message.Token) {
		t.Errorf("Message: got %+v", m)
	}
	if m.ContentFormat == nil || *m.ContentFormat != cf {
		t.Errorf("ContentFormat: got %v, want %d", m.ContentFormat, cf)
	}
	if m.ProcessingTime == nil || *m.ProcessingTime != processing {
		t.Errorf("ProcessingTime: got %v, want %v", m.ProcessingTime, processing)
	}
	if decoded.Error == nil || decoded.Error.Code == nil || *decoded.Error.Code != code {
		t.Errorf("Error: got %+v", decoded.Error)
	}
}

func TestEventCBORUsesIntegerKeys(t *testing.T) {
	data, err := EncodeEvent(Event{ConnectionID: "c"})
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	if bytes.Contains(data, []byte("ConnectionID")) {
		t.Error("encoded event contains field names instead of integer keys")
	}
}
