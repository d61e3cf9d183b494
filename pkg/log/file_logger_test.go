package log

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func readCapture(t *testing.T, path string) []Event {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read capture: %v", err)
	}
	dec := NewDecoder(bytes.NewReader(data))
	var out []Event
	for {
		var e Event
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("decode capture: %v", err)
		}
		out = append(out, e)
	}
}

func TestFileLoggerCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captures", "run1", "peer.clog")

	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer l.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("capture file missing: %v", err)
	}
}

func TestFileLoggerWritesDatagram(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peer.clog")
	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	l.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
		Datagram:     &DatagramEvent{Size: 4, Data: []byte{0x60, 0x00, 0x12, 0x34}},
	})
	if err := l.Sync(); err != nil {
		t.Errorf("Sync failed: %v", err)
	}
	l.Close()

	events := readCapture(t, path)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Datagram == nil || !bytes.Equal(events[0].Datagram.Data, []byte{0x60, 0x00, 0x12, 0x34}) {
		t.Errorf("Datagram: got %+v", events[0].Datagram)
	}
	if l.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0", l.Dropped())
	}
}

func TestFileLoggerAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peer.clog")

	for _, id := range []string{"first", "second"} {
		l, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		l.Log(Event{ConnectionID: id, Layer: LayerLwM2M})
		l.Close()
	}

	events := readCapture(t, path)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ConnectionID != "first" || events[1].ConnectionID != "second" {
		t.Errorf("order: got %q, %q", events[0].ConnectionID, events[1].ConnectionID)
	}
}

func TestFileLoggerConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peer.clog")
	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				l.Log(Event{Timestamp: time.Now(), Direction: DirectionOut})
			}
		}()
	}
	wg.Wait()
	l.Close()

	if n := len(readCapture(t, path)); n != writers*perWriter {
		t.Errorf("got %d events, want %d", n, writers*perWriter)
	}
}

func TestFileLoggerCloseIsIdempotent(t *testing.T) {
	l, err := NewFileLogger(filepath.Join(t.TempDir(), "peer.clog"))
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := l.Sync(); err != nil {
		t.Errorf("Sync after Close: %v", err)
	}
	l.Log(Event{ConnectionID: "late"})
}
