package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
	"github.com/lwm2m-harness/lwm2m-go/pkg/lwm2m"
	"github.com/lwm2m-harness/lwm2m-go/pkg/observe"
	"github.com/lwm2m-harness/lwm2m-go/pkg/transmission"
	"github.com/lwm2m-harness/lwm2m-go/pkg/transport"
)

// Notification is an Observe notification received from the client.
type Notification struct {
	Peer       string
	Path       lwm2m.Path
	Seq        uint32
	Packet     *coap.Packet
	ReceivedAt time.Time
}

// Request fills the message ID and token placeholders of t, sends the
// request to the connected client and waits up to timeout for its
// response, retransmitting Confirmable requests. Datagrams that are not
// part of the exchange are kept for the next ServeOne.
//
// A successful Observe(0) registers the observation; an Observe(1)
// cancels it.
func (s *Server) Request(t *coap.Template, timeout time.Duration) (*coap.Packet, error) {
	req, err := s.ids.Fill(t)
	if err != nil {
		return nil, err
	}

	s.io.Lock()
	defer s.io.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	msg := lwm2m.Recognize(req)
	s.logMessage(log.DirectionOut, req, msg.Kind.String())

	ex := &transmission.Exchange{
		Conn:    s.peer,
		Params:  s.config.Params,
		OnOther: s.queueLater,
		Logger:  s.logger,
	}
	resp, err := ex.Do(ctx, req)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %s", transport.ErrTimeout, req)
	}
	if err != nil {
		s.logError(log.LayerCoAP, err, msg.Kind.String())
		return nil, err
	}
	s.logMessage(log.DirectionIn, resp, "")

	s.trackObserve(msg, resp)
	return resp, nil
}

func (s *Server) trackObserve(msg *lwm2m.Message, resp *coap.Packet) {
	from := s.remote()
	switch msg.Kind {
	case lwm2m.KindObserve:
		seq, ok := resp.Options.Observe()
		if !ok || !resp.Code.IsSuccess() {
			return
		}
		path, _ := msg.Path()
		attrs, _ := lwm2m.ParseAttributes(msg.Packet.Options.Queries())
		if _, err := s.observing.Register(from, msg.Packet.Token, path, attrs); err != nil {
			s.logger.Warn("cannot track observation", "path", path, "error", err)
			return
		}
		_, _ = s.observing.Observed(from, msg.Packet.Token, seq, resp.MessageID)
		s.logState(log.StateEntityObservation, "", "OBSERVING", path.String())
	case lwm2m.KindCancelObserve:
		_ = s.observing.Cancel(from, msg.Packet.Token)
	}
}

// Observe sends Observe(0) for path and returns the first response.
func (s *Server) Observe(path lwm2m.Path, timeout time.Duration, accept ...coap.ContentFormat) (*coap.Packet, error) {
	return s.Request(lwm2m.NewObserve(path, accept...), timeout)
}

// CancelObserve ends the observation of path. It sends Observe(1) with
// the observation's token.
func (s *Server) CancelObserve(path lwm2m.Path, timeout time.Duration) (*coap.Packet, error) {
	for _, obs := range s.observing.ForPath(path) {
		if obs.Path != path {
			continue
		}
		return s.Request(lwm2m.NewCancelObserve(path, obs.Token), timeout)
	}
	return nil, fmt.Errorf("%w: %s", observe.ErrNotFound, path)
}

// Notifications returns and clears the notifications received so far.
func (s *Server) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notifications
	s.notifications = nil
	return out
}

// handleResponse deals with responses that arrive outside Request:
// notifications for our observations, and strays. Unknown notifications
// are rejected with Reset.
func (s *Server) handleResponse(from string, pkt *coap.Packet) *coap.Packet {
	seq, isNotification := pkt.Options.Observe()
	if !isNotification {
		if pkt.Type == coap.Confirmable {
			return coap.NewEmptyAck(pkt.MessageID)
		}
		return nil
	}

	obs, err := s.observing.Observed(from, pkt.Token, seq, pkt.MessageID)
	switch {
	case errors.Is(err, observe.ErrNotFound):
		s.logger.Debug("rejecting unknown notification", "peer", from, "token", fmt.Sprintf("%x", pkt.Token))
		return coap.NewReset(pkt.MessageID)
	case errors.Is(err, observe.ErrStale):
		s.logger.Debug("dropping stale notification", "path", obs.Path, "seq", seq, "last", obs.LastSeq)
	default:
		s.mu.Lock()
		s.notifications = append(s.notifications, Notification{
			Peer:       from,
			Path:       obs.Path,
			Seq:        seq,
			Packet:     pkt,
			ReceivedAt: s.config.Now(),
		})
		s.mu.Unlock()
	}
	if pkt.Type == coap.Confirmable {
		return coap.NewEmptyAck(pkt.MessageID)
	}
	return nil
}

// Notify sends a notification with the current representation of path to
// every connected observer of it. Confirmable notifications that are
// never acknowledged end the observation.
func (s *Server) Notify(path lwm2m.Path) (int, error) {
	s.io.Lock()
	defer s.io.Unlock()

	from := s.remote()
	sent := 0
	for _, obs := range s.observers.ForPath(path) {
		if obs.Peer != from {
			continue
		}
		if err := s.notifyOne(obs); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (s *Server) notifyOne(obs observe.Observation) error {
	res, ok := s.Resource(obs.Path.String())
	if !ok {
		return fmt.Errorf("notify %s: %w", obs.Path, observe.ErrNotFound)
	}

	pkt := &coap.Packet{
		Type:      coap.NonConfirmable,
		Code:      coap.Content,
		MessageID: s.ids.NextMessageID(),
		Token:     append([]byte(nil), obs.Token...),
		Payload:   res.Body,
	}
	if s.config.ConfirmableNotifications {
		pkt.Type = coap.Confirmable
	}
	seq, err := s.observers.Notify(obs.Peer, obs.Token, pkt.MessageID)
	if err != nil {
		return err
	}
	pkt.Options.SetUint(coap.Observe, uint64(seq))
	pkt.Options.SetContentFormat(res.Format)

	data, err := pkt.Marshal()
	if err != nil {
		return err
	}
	if err := s.peer.Send(data); err != nil {
		return err
	}
	s.logMessage(log.DirectionOut, pkt, "Notify")
	if pkt.Type != coap.Confirmable {
		return nil
	}
	return s.awaitAck(obs.Peer, pkt.MessageID, data)
}

// awaitAck retransmits a confirmable notification until it is
// acknowledged, reset, or retransmissions run out.
func (s *Server) awaitAck(peer string, msgID uint16, data []byte) error {
	sched := transmission.NewSchedule(s.config.Params)
	wait, _ := sched.Next()
	deadline := time.Now().Add(wait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			next, ok := sched.Next()
			if !ok {
				if obs, found := s.observers.Abandon(peer, msgID); found {
					s.logger.Warn("notification unacknowledged", "path", obs.Path, "msg_id", msgID)
				}
				return nil
			}
			if err := s.peer.Send(data); err != nil {
				return err
			}
			deadline = time.Now().Add(next)
			continue
		}

		in, err := s.peer.Recv(remaining)
		if errors.Is(err, transport.ErrTimeout) {
			continue
		}
		if err != nil {
			return err
		}
		pkt, err := coap.Parse(in)
		if err != nil {
			continue
		}
		switch {
		case pkt.IsEmptyAck() && pkt.MessageID == msgID:
			s.logControl(log.DirectionIn, log.ControlAck, msgID)
			return nil
		case pkt.Type == coap.Reset && pkt.MessageID == msgID:
			s.logControl(log.DirectionIn, log.ControlReset, msgID)
			s.handleReset(peer, pkt)
			return nil
		default:
			s.queueLater(in)
		}
	}
}
