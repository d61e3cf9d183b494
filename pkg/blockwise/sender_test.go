package blockwise

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
)

func block2Request(blk *coap.Block) *coap.Packet {
	req := coap.NewRequest(coap.Confirmable, coap.GET, "/5/0/0")
	req.Token = []byte("dl")
	if blk != nil {
		req.Options.Set(blk.Option(coap.Block2))
	}
	return req
}

func TestSenderRenegotiation(t *testing.T) {
	s, err := NewSender(SenderConfig{})
	require.NoError(t, err)
	body := pattern(4000)

	first, err := s.Serve(testPeer, "/5/0/0", body, block2Request(nil))
	require.NoError(t, err)
	assert.Equal(t, coap.Block{Num: 0, More: true, SZX: 6}, first.Block)
	assert.Equal(t, body[:1024], first.Payload)
	assert.Len(t, first.ETag, ETagLength)
	assert.Equal(t, 4000, first.Size)

	// The client switches to 32-byte blocks right after the first block.
	for num := uint32(16); num < 20; num++ {
		c, err := s.Serve(testPeer, "/5/0/0", nil, block2Request(&coap.Block{Num: num, SZX: 1}))
		require.NoError(t, err)
		assert.Equal(t, coap.Block{Num: num, More: true, SZX: 1}, c.Block)
		off := int(num) * 32
		assert.Equal(t, body[off:off+32], c.Payload)
		assert.Equal(t, first.ETag, c.ETag)
	}

	tooBig := coap.NewRequest(coap.Confirmable, coap.GET, "/5/0/0")
	tooBig.Options.Set(coap.Option{Number: coap.Block2, Value: []byte{0x01, 0x47}})
	_, err = s.Serve(testPeer, "/5/0/0", nil, tooBig)
	assert.Equal(t, coap.BadOption, codeOf(t, err))
}

func TestSenderSizeAboveInitial(t *testing.T) {
	s, err := NewSender(SenderConfig{InitialSize: 64})
	require.NoError(t, err)
	body := pattern(300)

	c, err := s.Serve(testPeer, "/fw", body, block2Request(nil))
	require.NoError(t, err)
	assert.Equal(t, coap.Block{Num: 0, More: true, SZX: 2}, c.Block)

	_, err = s.Serve(testPeer, "/fw", nil, block2Request(&coap.Block{Num: 0, SZX: 3}))
	assert.Equal(t, coap.BadOption, codeOf(t, err))
}

func TestSenderLastBlockAndBeyond(t *testing.T) {
	s, err := NewSender(SenderConfig{InitialSize: 16})
	require.NoError(t, err)
	body := pattern(40)

	_, err = s.Serve(testPeer, "/r", body, block2Request(nil))
	require.NoError(t, err)
	_, err = s.Serve(testPeer, "/r", nil, block2Request(&coap.Block{Num: 1, SZX: 0}))
	require.NoError(t, err)

	last, err := s.Serve(testPeer, "/r", nil, block2Request(&coap.Block{Num: 2, SZX: 0}))
	require.NoError(t, err)
	assert.False(t, last.Block.More)
	assert.Equal(t, body[32:], last.Payload)

	_, err = s.Serve(testPeer, "/r", nil, block2Request(&coap.Block{Num: 3, SZX: 0}))
	assert.ErrorIs(t, err, ErrBeyondEnd)
}

func TestSenderOutOfSequence(t *testing.T) {
	s, err := NewSender(SenderConfig{InitialSize: 16})
	require.NoError(t, err)
	body := pattern(100)

	_, err = s.Serve(testPeer, "/r", body, block2Request(&coap.Block{Num: 2, SZX: 0}))
	assert.Equal(t, coap.RequestEntityIncomplete, codeOf(t, err), "no transfer yet")

	_, err = s.Serve(testPeer, "/r", body, block2Request(nil))
	require.NoError(t, err)

	_, err = s.Serve(testPeer, "/r", nil, block2Request(&coap.Block{Num: 2, SZX: 0}))
	assert.Equal(t, coap.RequestEntityIncomplete, codeOf(t, err), "skipped block 1")

	for _, num := range []uint32{1, 2, 2, 3} {
		c, err := s.Serve(testPeer, "/r", nil, block2Request(&coap.Block{Num: num, SZX: 0}))
		require.NoError(t, err, "block %d", num)
		assert.Equal(t, body[num*16:num*16+16], c.Payload)
	}

	_, err = s.Serve(testPeer, "/r", nil, block2Request(&coap.Block{Num: 1, SZX: 0}))
	assert.Equal(t, coap.RequestEntityIncomplete, codeOf(t, err), "went back")

	c, err := s.Serve(testPeer, "/r", nil, block2Request(&coap.Block{Num: 0, SZX: 0}))
	require.NoError(t, err)
	assert.Equal(t, body[:16], c.Payload)
}

func TestSenderEmptyBody(t *testing.T) {
	s, err := NewSender(SenderConfig{})
	require.NoError(t, err)

	c, err := s.Serve(testPeer, "/empty", nil, block2Request(nil))
	require.NoError(t, err)
	assert.False(t, c.Block.More)
	assert.Empty(t, c.Payload)
}

func TestSenderRestartTakesNewRepresentation(t *testing.T) {
	s, err := NewSender(SenderConfig{InitialSize: 16})
	require.NoError(t, err)

	a, err := s.Serve(testPeer, "/r", []byte("first representation"), block2Request(nil))
	require.NoError(t, err)
	b, err := s.Serve(testPeer, "/r", []byte("second representation"), block2Request(nil))
	require.NoError(t, err)
	assert.NotEqual(t, a.ETag, b.ETag)

	again, err := s.Serve(testPeer, "/r", []byte("second representation"), block2Request(nil))
	require.NoError(t, err)
	assert.Equal(t, b, again)
}

func TestSenderExpiryAndPurge(t *testing.T) {
	clock := newClock()
	s, err := NewSender(SenderConfig{Lifetime: time.Minute, Now: clock.Now})
	require.NoError(t, err)

	_, err = s.Serve(testPeer, "/a", pattern(10), block2Request(nil))
	require.NoError(t, err)
	_, err = s.Serve(testPeer, "/b", pattern(10), block2Request(nil))
	require.NoError(t, err)
	_, err = s.Serve("10.0.0.1:5683", "/a", pattern(10), block2Request(nil))
	require.NoError(t, err)
	assert.Equal(t, 3, s.Active())

	s.Finish(testPeer, "/b")
	assert.Equal(t, 2, s.Active())
	s.Purge(testPeer)
	assert.Equal(t, 1, s.Active())

	clock.Advance(2 * time.Minute)
	_, err = s.Serve(testPeer, "/c", pattern(10), block2Request(nil))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Active())
}

func TestChunkApply(t *testing.T) {
	c := Chunk{
		Payload: []byte("abc"),
		Block:   coap.Block{Num: 0, More: true, SZX: 0},
		ETag:    []byte{1, 2},
		Size:    40,
	}
	resp := &coap.Packet{Type: coap.Acknowledgement, Code: coap.Content}
	c.Apply(resp)

	blk, ok, err := resp.Options.Block2()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.Block, blk)
	etag, ok := resp.Options.ETag()
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, etag)
	size, ok := resp.Options.Uint(coap.Size2)
	require.True(t, ok)
	assert.Equal(t, uint64(40), size)

	c.Block.Num = 1
	next := &coap.Packet{}
	c.Apply(next)
	assert.False(t, next.Options.Has(coap.Size2))
}

func TestSplit(t *testing.T) {
	pieces, err := Split(pattern(33), 16)
	require.NoError(t, err)
	require.Len(t, pieces, 3)
	assert.Equal(t, coap.Block{Num: 2, More: false, SZX: 0}, pieces[2].Block)
	assert.Len(t, pieces[2].Payload, 1)

	pieces, err = Split(nil, 1024)
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.False(t, pieces[0].Block.More)

	_, err = Split(pattern(10), 2048)
	assert.ErrorIs(t, err, coap.ErrInvalidBlockSize)
}
