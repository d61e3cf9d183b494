package server

import (
	"fmt"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/cache"
	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
	"github.com/lwm2m-harness/lwm2m-go/pkg/lwm2m"
	"github.com/lwm2m-harness/lwm2m-go/pkg/transport"
)

// Receive returns the next valid packet without answering it, so the
// caller can craft the response with Reply. Malformed datagrams are
// dropped; retransmitted requests that were already answered are replayed
// from the cache and skipped.
func (s *Server) Receive(timeout time.Duration) (*coap.Packet, error) {
	s.io.Lock()
	defer s.io.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, transport.ErrTimeout
		}
		data, err := s.next(remaining)
		if err != nil {
			return nil, err
		}
		from := s.remote()
		s.expire()
		pkt, err := coap.Parse(data)
		if err != nil {
			s.logger.Warn("dropping malformed datagram", "peer", from, "size", len(data), "error", err)
			s.logError(log.LayerCoAP, err, "parse")
			continue
		}
		if pkt.Code.IsRequest() {
			if cached, ok := s.cache.Get(cache.NewKey(from, pkt.MessageID, pkt.Token)); ok {
				s.logMessage(log.DirectionIn, pkt, "Duplicate")
				if err := s.peer.Send(cached); err != nil {
					return nil, err
				}
				continue
			}
		}
		s.logMessage(log.DirectionIn, pkt, lwm2m.Recognize(pkt).Kind.String())
		return pkt, nil
	}
}

// Reply sends resp as the answer to req. Answers to requests are cached
// so that retransmissions of req get the same bytes.
func (s *Server) Reply(req, resp *coap.Packet) error {
	s.io.Lock()
	defer s.io.Unlock()

	if resp.Type == coap.NonConfirmable && resp.MessageID == 0 {
		resp.MessageID = s.ids.NextMessageID()
	}
	out, err := resp.Marshal()
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if req != nil && req.Code.IsRequest() {
		if err := s.cache.Put(cache.NewKey(s.remote(), req.MessageID, req.Token), out); err != nil {
			s.logger.Debug("response not cached", "error", err)
		}
	}
	if err := s.peer.Send(out); err != nil {
		return err
	}
	s.logMessage(log.DirectionOut, resp, "")
	return nil
}
