package transmission

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/transport"
)

// Exchange errors.
var (
	// ErrExhausted is returned when a confirmable request was retransmitted
	// MaxRetransmit times without an answer.
	ErrExhausted = errors.New("retransmissions exhausted")

	// ErrReset is returned when the peer rejected the request with Reset.
	ErrReset = errors.New("request rejected with reset")
)

// Conn is the datagram connection an exchange runs over.
type Conn interface {
	Send(data []byte) error
	Recv(timeout time.Duration) ([]byte, error)
}

// Exchange sends a request and waits for its response, retransmitting
// confirmable requests per Params.
type Exchange struct {
	Conn   Conn
	Params Params

	// Schedule overrides the schedule built from Params.
	Schedule *Schedule

	// OnOther receives datagrams that do not belong to the exchange.
	OnOther func(data []byte)

	Logger *slog.Logger
}

// Do sends req and returns the matching response. An empty ACK stops
// retransmission; the separate response is then awaited for up to
// MaxTransmitWait and acknowledged if confirmable.
func (e *Exchange) Do(ctx context.Context, req *coap.Packet) (*coap.Packet, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	data, err := req.Marshal()
	if err != nil {
		return nil, err
	}
	sched := e.Schedule
	if sched == nil {
		sched = NewSchedule(e.Params)
	}

	confirmable := req.Type == coap.Confirmable
	var deadline time.Time
	if confirmable {
		wait, _ := sched.Next()
		deadline = time.Now().Add(wait)
	} else {
		deadline = time.Now().Add(e.Params.MaxTransmitWait())
	}
	if err := e.Conn.Send(data); err != nil {
		return nil, err
	}

	acked := false
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			if !confirmable || acked {
				return nil, fmt.Errorf("%w: no response to %s", transport.ErrTimeout, req)
			}
			wait, ok := sched.Next()
			if !ok {
				return nil, fmt.Errorf("%w: %s after %d retransmissions", ErrExhausted, req, e.Params.MaxRetransmit)
			}
			logger.Debug("retransmitting", "msg_id", req.MessageID, "attempt", sched.Attempts()-1, "timeout", wait)
			if err := e.Conn.Send(data); err != nil {
				return nil, err
			}
			deadline = time.Now().Add(wait)
			continue
		}

		in, err := e.Conn.Recv(remaining)
		if errors.Is(err, transport.ErrTimeout) {
			continue
		}
		if err != nil {
			return nil, err
		}
		pkt, err := coap.Parse(in)
		if err != nil {
			logger.Warn("dropping malformed datagram", "error", err)
			continue
		}

		switch {
		case pkt.Type == coap.Reset && pkt.MessageID == req.MessageID:
			return nil, fmt.Errorf("%w: msg_id %#04x", ErrReset, req.MessageID)
		case pkt.IsEmptyAck() && pkt.MessageID == req.MessageID:
			acked = true
			deadline = time.Now().Add(e.Params.MaxTransmitWait())
		case pkt.Code.IsResponse() && bytes.Equal(pkt.Token, req.Token):
			if pkt.Type == coap.Acknowledgement && pkt.MessageID != req.MessageID {
				e.other(in)
				continue
			}
			if pkt.Type == coap.Confirmable {
				ack, _ := coap.NewEmptyAck(pkt.MessageID).Marshal()
				if err := e.Conn.Send(ack); err != nil {
					return nil, err
				}
			}
			return pkt, nil
		default:
			e.other(in)
		}
	}
}

func (e *Exchange) other(data []byte) {
	if e.OnOther != nil {
		e.OnOther(data)
	}
}
