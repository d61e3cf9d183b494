package transmission

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/transport"
)

func TestDefaultParamsDerived(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())

	assert.Equal(t, 45*time.Second, p.MaxTransmitSpan())
	assert.Equal(t, 93*time.Second, p.MaxTransmitWait())
	assert.Equal(t, 2*time.Second, p.ProcessingDelay())
	assert.Equal(t, 295*time.Second, p.ExchangeLifetime())
	assert.Equal(t, 145*time.Second, p.NonLifetime())
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"zero ack timeout", func(p *Params) { p.AckTimeout = 0 }},
		{"random factor below one", func(p *Params) { p.AckRandomFactor = 0.9 }},
		{"negative retransmit", func(p *Params) { p.MaxRetransmit = -1 }},
		{"zero nstart", func(p *Params) { p.NStart = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidParams)
		})
	}
}

func TestScheduleWithoutJitter(t *testing.T) {
	p := DefaultParams()
	p.AckRandomFactor = 1
	s := NewSchedule(p)

	var got []time.Duration
	for {
		d, ok := s.Next()
		if !ok {
			break
		}
		got = append(got, d)
	}
	assert.Equal(t, Sequence(p), got)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second}, got)
	assert.Equal(t, 4, s.Retransmissions())

	s.Reset()
	assert.Equal(t, 0, s.Attempts())
	d, ok := s.Next()
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
}

func TestScheduleJitterBounds(t *testing.T) {
	p := DefaultParams()
	for seed := int64(0); seed < 50; seed++ {
		s := NewScheduleWithRand(p, rand.New(rand.NewSource(seed)))
		first, _ := s.Next()
		assert.GreaterOrEqual(t, first, p.AckTimeout)
		assert.LessOrEqual(t, first, time.Duration(float64(p.AckTimeout)*p.AckRandomFactor))

		second, _ := s.Next()
		assert.Equal(t, 2*first, second)
	}
}

// fakeConn answers Recv from a queue and times out when it is empty.
type fakeConn struct {
	mu    sync.Mutex
	sent  [][]byte
	queue [][]byte

	// onSend may enqueue answers.
	onSend func(c *fakeConn, data []byte)
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	c.sent = append(c.sent, append([]byte(nil), data...))
	fn := c.onSend
	c.mu.Unlock()
	if fn != nil {
		fn(c, data)
	}
	return nil
}

func (c *fakeConn) Recv(timeout time.Duration) ([]byte, error) {
	c.mu.Lock()
	if len(c.queue) > 0 {
		d := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		return d, nil
	}
	c.mu.Unlock()
	time.Sleep(timeout)
	return nil, transport.ErrTimeout
}

func (c *fakeConn) push(t *testing.T, p *coap.Packet) {
	t.Helper()
	data, err := p.Marshal()
	require.NoError(t, err)
	c.mu.Lock()
	c.queue = append(c.queue, data)
	c.mu.Unlock()
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func fastParams() Params {
	return Params{AckTimeout: 2 * time.Millisecond, AckRandomFactor: 1, MaxRetransmit: 2, NStart: 1}
}

func testRequest() *coap.Packet {
	req := coap.NewRequest(coap.Confirmable, coap.GET, "/3/0/0")
	req.MessageID = 0x1337
	req.Token = []byte{1, 2, 3, 4}
	return req
}

func TestExchangePiggybacked(t *testing.T) {
	conn := &fakeConn{}
	req := testRequest()
	resp := req.Response(coap.Content)
	resp.Payload = []byte("OMA")
	conn.push(t, resp)

	ex := &Exchange{Conn: conn, Params: fastParams()}
	got, err := ex.Do(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, got.Equal(resp))
	assert.Equal(t, 1, conn.sentCount())
}

func TestExchangeExhausted(t *testing.T) {
	conn := &fakeConn{}
	ex := &Exchange{Conn: conn, Params: fastParams()}

	_, err := ex.Do(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 3, conn.sentCount())
}

func TestExchangeSeparateResponse(t *testing.T) {
	conn := &fakeConn{}
	req := testRequest()
	conn.push(t, coap.NewEmptyAck(req.MessageID))

	sep := &coap.Packet{Type: coap.Confirmable, Code: coap.Content, MessageID: 0x0700, Token: req.Token}
	conn.push(t, sep)

	ex := &Exchange{Conn: conn, Params: fastParams()}
	got, err := ex.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, coap.Content, got.Code)

	require.Equal(t, 2, conn.sentCount())
	ack, err := coap.Parse(conn.sent[1])
	require.NoError(t, err)
	assert.True(t, ack.IsEmptyAck())
	assert.Equal(t, uint16(0x0700), ack.MessageID)
}

func TestExchangeReset(t *testing.T) {
	conn := &fakeConn{}
	req := testRequest()
	conn.push(t, coap.NewReset(req.MessageID))

	ex := &Exchange{Conn: conn, Params: fastParams()}
	_, err := ex.Do(context.Background(), req)
	assert.ErrorIs(t, err, ErrReset)
}

func TestExchangeOther(t *testing.T) {
	conn := &fakeConn{}
	req := testRequest()
	update := coap.NewRequest(coap.Confirmable, coap.POST, "/rd/demo")
	update.MessageID = 7
	conn.push(t, update)
	conn.push(t, req.Response(coap.Content))

	var others int
	ex := &Exchange{Conn: conn, Params: fastParams(), OnOther: func([]byte) { others++ }}
	_, err := ex.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, others)
}

func TestExchangeContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ex := &Exchange{Conn: &fakeConn{}, Params: fastParams()}
	_, err := ex.Do(ctx, testRequest())
	assert.ErrorIs(t, err, context.Canceled)
}
