package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
)

func logOne(t *testing.T, level slog.Level, e Event) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level}))).Log(e)
	if buf.Len() == 0 {
		return nil
	}
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestSlogAdapterDatagram(t *testing.T) {
	entry := logOne(t, slog.LevelDebug, Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
		RemoteAddr:   "127.0.0.1:5683",
		Datagram:     &DatagramEvent{Size: 256, Data: []byte{0x40, 0x01}},
	})
	require.NotNil(t, entry)

	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "capture MESSAGE", entry["msg"])
	assert.Equal(t, "conn-123", entry["conn_id"])
	assert.Equal(t, "IN", entry["direction"])
	assert.Equal(t, "127.0.0.1:5683", entry["remote"])
	assert.NotContains(t, entry, "endpoint")
	dg, ok := entry["datagram"].(map[string]any)
	require.True(t, ok, "datagram group missing: %v", entry)
	assert.Equal(t, float64(256), dg["size"])
	assert.Equal(t, false, dg["truncated"])
}

func TestSlogAdapterMessage(t *testing.T) {
	req := coap.NewRequest(coap.Confirmable, coap.GET, "/3/0/0")
	req.MessageID = 42
	req.Token = []byte{0xca, 0xfe}

	entry := logOne(t, slog.LevelDebug, Event{
		ConnectionID: "conn-456",
		Direction:    DirectionOut,
		Layer:        LayerLwM2M,
		Category:     CategoryMessage,
		Endpoint:     "node-1",
		Message:      NewMessageEvent(req, "Read"),
	})
	require.NotNil(t, entry)

	assert.Equal(t, "node-1", entry["endpoint"])
	m, ok := entry["coap"].(map[string]any)
	require.True(t, ok, "coap group missing: %v", entry)
	assert.Equal(t, "REQUEST", m["kind"])
	assert.Equal(t, "0.01 GET", m["code"])
	assert.Equal(t, float64(42), m["id"])
	assert.Equal(t, "cafe", m["token"])
	assert.Equal(t, "Read", m["op"])
	assert.Equal(t, "/3/0/0", m["path"])
	assert.NotContains(t, m, "observe")
}

func TestSlogAdapterErrorAtWarn(t *testing.T) {
	code := 0x80
	entry := logOne(t, slog.LevelWarn, Event{
		Layer:    LayerCoAP,
		Category: CategoryError,
		Error:    &ErrorEventData{Layer: LayerCoAP, Message: "option delta 15", Code: &code},
	})
	require.NotNil(t, entry, "error events must pass a Warn threshold")

	assert.Equal(t, "WARN", entry["level"])
	e, ok := entry["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "option delta 15", e["text"])
	assert.Equal(t, float64(0x80), e["code"])
	assert.NotContains(t, e, "context")
}

func TestSlogAdapterDebugSuppressedAtInfo(t *testing.T) {
	entry := logOne(t, slog.LevelInfo, Event{
		Category:    CategoryState,
		StateChange: &StateChangeEvent{Entity: StateEntityPeer, NewState: "FAKE_CLOSED"},
	})
	assert.Nil(t, entry)
}

func TestSlogAdapterStateChange(t *testing.T) {
	entry := logOne(t, slog.LevelDebug, Event{
		ConnectionID: "abc12345-def6-7890",
		Category:     CategoryState,
		StateChange:  &StateChangeEvent{Entity: StateEntityPeer, OldState: "CONNECTED", NewState: "FAKE_CLOSED"},
	})
	require.NotNil(t, entry)

	assert.Equal(t, "abc12345-def6-7890", entry["conn_id"])
	s, ok := entry["state"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "CONNECTED", s["from"])
	assert.Equal(t, "FAKE_CLOSED", s["to"])
}
