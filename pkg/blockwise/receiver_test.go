package blockwise

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
)

const testPeer = "127.0.0.1:56830"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func block1Request(token string, blk coap.Block, payload []byte) *coap.Packet {
	req := coap.NewRequest(coap.Confirmable, coap.PUT, "/5/0/0")
	req.Token = []byte(token)
	req.Options.Set(blk.Option(coap.Block1))
	req.Payload = payload
	return req
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func codeOf(t *testing.T, err error) coap.Code {
	t.Helper()
	var ce *coap.CodeError
	require.True(t, errors.As(err, &ce), "want *coap.CodeError, got %v", err)
	return ce.Code
}

func TestReceiverUpload9001Bytes(t *testing.T) {
	r, err := NewReceiver(ReceiverConfig{})
	require.NoError(t, err)

	body := pattern(9001)
	pieces, err := Split(body, 1024)
	require.NoError(t, err)
	require.Len(t, pieces, 9)

	for i, p := range pieces {
		res, err := r.Receive(testPeer, block1Request("tok", p.Block, p.Payload))
		require.NoError(t, err, "block %d", i)
		assert.True(t, res.HasBlock)
		assert.Equal(t, p.Block, res.Block)
		if i < len(pieces)-1 {
			assert.Equal(t, StatusContinue, res.Status, "block %d", i)
			assert.Equal(t, 1, r.Pending())
		} else {
			assert.Equal(t, StatusComplete, res.Status)
			assert.Equal(t, body, res.Body)
		}
	}
	assert.Equal(t, 0, r.Pending())
}

func TestReceiverFirstBlockNotZero(t *testing.T) {
	r, err := NewReceiver(ReceiverConfig{})
	require.NoError(t, err)

	_, err = r.Receive(testPeer, block1Request("tok", coap.Block{Num: 1, More: true, SZX: 6}, pattern(1024)))
	assert.Equal(t, coap.RequestEntityIncomplete, codeOf(t, err))
	assert.Equal(t, 0, r.Pending())
}

func TestReceiverSequencing(t *testing.T) {
	r, err := NewReceiver(ReceiverConfig{})
	require.NoError(t, err)
	first := coap.Block{Num: 0, More: true, SZX: 2}

	_, err = r.Receive(testPeer, block1Request("tok", first, pattern(64)))
	require.NoError(t, err)

	// Retransmission of the same block.
	res, err := r.Receive(testPeer, block1Request("tok", first, pattern(64)))
	require.NoError(t, err)
	assert.Equal(t, StatusReplay, res.Status)
	assert.Equal(t, first, res.Block)

	_, err = r.Receive(testPeer, block1Request("tok", coap.Block{Num: 1, More: true, SZX: 2}, pattern(64)))
	require.NoError(t, err)

	// A lower, non-zero block that is not a retransmission.
	_, err = r.Receive(testPeer, block1Request("tok", coap.Block{Num: 1, More: true, SZX: 2}, bytes.Repeat([]byte{1}, 64)))
	assert.Equal(t, coap.RequestEntityIncomplete, codeOf(t, err))
	assert.Equal(t, 0, r.Pending())
}

func TestReceiverLateDuplicate(t *testing.T) {
	r, err := NewReceiver(ReceiverConfig{})
	require.NoError(t, err)
	body := pattern(56)

	for num := uint32(0); num < 3; num++ {
		blk := coap.Block{Num: num, More: true, SZX: 0}
		res, err := r.Receive(testPeer, block1Request("tok", blk, body[num*16:num*16+16]))
		require.NoError(t, err)
		require.Equal(t, StatusContinue, res.Status)
	}

	// Block 1 again, after block 2 was stored.
	res, err := r.Receive(testPeer, block1Request("tok", coap.Block{Num: 1, More: true, SZX: 0}, body[16:32]))
	require.NoError(t, err)
	assert.Equal(t, StatusReplay, res.Status)
	assert.Equal(t, coap.Block{Num: 1, More: true, SZX: 0}, res.Block)
	assert.Equal(t, 1, r.Pending())

	res, err = r.Receive(testPeer, block1Request("tok", coap.Block{Num: 3, More: false, SZX: 0}, body[48:]))
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, body, res.Body)

	// A changed earlier block is not a duplicate.
	for num := uint32(0); num < 3; num++ {
		_, err := r.Receive(testPeer, block1Request("tok", coap.Block{Num: num, More: true, SZX: 0}, body[num*16:num*16+16]))
		require.NoError(t, err)
	}
	_, err = r.Receive(testPeer, block1Request("tok", coap.Block{Num: 1, More: true, SZX: 0}, bytes.Repeat([]byte{9}, 16)))
	assert.Equal(t, coap.RequestEntityIncomplete, codeOf(t, err))
	assert.Equal(t, 0, r.Pending())
}

func TestReceiverSkippedBlock(t *testing.T) {
	r, err := NewReceiver(ReceiverConfig{})
	require.NoError(t, err)

	_, err = r.Receive(testPeer, block1Request("tok", coap.Block{Num: 0, More: true, SZX: 0}, pattern(16)))
	require.NoError(t, err)
	_, err = r.Receive(testPeer, block1Request("tok", coap.Block{Num: 2, More: true, SZX: 0}, pattern(16)))
	assert.Equal(t, coap.RequestEntityIncomplete, codeOf(t, err))
}

func TestReceiverRestartDiscardsStale(t *testing.T) {
	r, err := NewReceiver(ReceiverConfig{})
	require.NoError(t, err)

	_, err = r.Receive(testPeer, block1Request("tok", coap.Block{Num: 0, More: true, SZX: 0}, pattern(16)))
	require.NoError(t, err)
	_, err = r.Receive(testPeer, block1Request("tok", coap.Block{Num: 1, More: true, SZX: 0}, pattern(16)))
	require.NoError(t, err)

	fresh := bytes.Repeat([]byte{0xAA}, 16)
	_, err = r.Receive(testPeer, block1Request("tok", coap.Block{Num: 0, More: true, SZX: 0}, fresh))
	require.NoError(t, err)
	res, err := r.Receive(testPeer, block1Request("tok", coap.Block{Num: 1, More: false, SZX: 0}, []byte{1}))
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, append(fresh, 1), res.Body)
}

func TestReceiverReducedSize(t *testing.T) {
	r, err := NewReceiver(ReceiverConfig{MaxSize: 64})
	require.NoError(t, err)
	body := pattern(1024 + 100)

	res, err := r.Receive(testPeer, block1Request("tok", coap.Block{Num: 0, More: true, SZX: 6}, body[:1024]))
	require.NoError(t, err)
	assert.Equal(t, StatusContinue, res.Status)
	assert.Equal(t, coap.Block{Num: 0, More: true, SZX: 2}, res.Block)

	// The client realigns to 64-byte blocks after the first 1024 bytes.
	res, err = r.Receive(testPeer, block1Request("tok", coap.Block{Num: 16, More: true, SZX: 2}, body[1024:1088]))
	require.NoError(t, err)
	assert.Equal(t, StatusContinue, res.Status)
	assert.Equal(t, coap.Block{Num: 16, More: true, SZX: 2}, res.Block)

	res, err = r.Receive(testPeer, block1Request("tok", coap.Block{Num: 17, More: false, SZX: 2}, body[1088:]))
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, body, res.Body)
}

func TestReceiverErrors(t *testing.T) {
	r, err := NewReceiver(ReceiverConfig{MaxBodySize: 32})
	require.NoError(t, err)

	bad := coap.NewRequest(coap.Confirmable, coap.PUT, "/5/0/0")
	bad.Options.Set(coap.Option{Number: coap.Block1, Value: []byte{0x0f}})
	_, err = r.Receive(testPeer, bad)
	assert.Equal(t, coap.BadOption, codeOf(t, err))

	_, err = r.Receive(testPeer, block1Request("short", coap.Block{Num: 0, More: true, SZX: 0}, pattern(10)))
	assert.Equal(t, coap.BadRequest, codeOf(t, err))

	_, err = r.Receive(testPeer, block1Request("big", coap.Block{Num: 0, More: true, SZX: 1}, pattern(32)))
	require.NoError(t, err)
	_, err = r.Receive(testPeer, block1Request("big", coap.Block{Num: 1, More: false, SZX: 1}, pattern(1)))
	assert.Equal(t, coap.RequestEntityTooLarge, codeOf(t, err))

	_, err = NewReceiver(ReceiverConfig{MaxSize: 100})
	assert.ErrorIs(t, err, coap.ErrInvalidBlockSize)
}

func TestReceiverWithoutBlock1(t *testing.T) {
	r, err := NewReceiver(ReceiverConfig{})
	require.NoError(t, err)

	req := coap.NewRequest(coap.Confirmable, coap.PUT, "/5/0/0")
	req.Payload = []byte("small")
	res, err := r.Receive(testPeer, req)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.False(t, res.HasBlock)
	assert.Equal(t, []byte("small"), res.Body)
}

func TestReceiverBusy(t *testing.T) {
	clock := newClock()
	r, err := NewReceiver(ReceiverConfig{Lifetime: time.Minute, Now: clock.Now})
	require.NoError(t, err)

	_, err = r.Receive(testPeer, block1Request("tok", coap.Block{Num: 0, More: true, SZX: 0}, pattern(16)))
	require.NoError(t, err)

	assert.NoError(t, r.Busy(testPeer, []byte("tok")))
	assert.NoError(t, r.Busy("127.0.0.1:1", []byte("other")))

	clock.Advance(20 * time.Second)
	err = r.Busy(testPeer, []byte("other"))
	var ce *coap.CodeError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, coap.ServiceUnavailable, ce.Code)
	assert.Equal(t, 40*time.Second, ce.MaxAge)

	// The transfer survives the unrelated request.
	res, err := r.Receive(testPeer, block1Request("tok", coap.Block{Num: 1, More: false, SZX: 0}, []byte{9}))
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
}

func TestReceiverExpiry(t *testing.T) {
	clock := newClock()
	r, err := NewReceiver(ReceiverConfig{Lifetime: time.Minute, Now: clock.Now})
	require.NoError(t, err)

	_, err = r.Receive(testPeer, block1Request("tok", coap.Block{Num: 0, More: true, SZX: 0}, pattern(16)))
	require.NoError(t, err)

	clock.Advance(61 * time.Second)
	_, err = r.Receive(testPeer, block1Request("tok", coap.Block{Num: 1, More: false, SZX: 0}, []byte{1}))
	assert.Equal(t, coap.RequestEntityIncomplete, codeOf(t, err))
}

func TestReceiverAbortAndPurge(t *testing.T) {
	r, err := NewReceiver(ReceiverConfig{})
	require.NoError(t, err)

	for _, tok := range []string{"a", "b"} {
		_, err = r.Receive(testPeer, block1Request(tok, coap.Block{Num: 0, More: true, SZX: 0}, pattern(16)))
		require.NoError(t, err)
	}
	_, err = r.Receive("10.0.0.1:5683", block1Request("a", coap.Block{Num: 0, More: true, SZX: 0}, pattern(16)))
	require.NoError(t, err)
	assert.Equal(t, 3, r.Pending())

	r.Abort(testPeer, []byte("a"))
	assert.Equal(t, 2, r.Pending())
	r.Purge(testPeer)
	assert.Equal(t, 1, r.Pending())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "CONTINUE", StatusContinue.String())
	assert.Equal(t, "COMPLETE", StatusComplete.String())
	assert.Equal(t, "REPLAY", StatusReplay.String())
	assert.Equal(t, "UNKNOWN", Status(9).String())
}
