package server

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/blockwise"
	"github.com/lwm2m-harness/lwm2m-go/pkg/cache"
	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
	"github.com/lwm2m-harness/lwm2m-go/pkg/lwm2m"
	"github.com/lwm2m-harness/lwm2m-go/pkg/observe"
	"github.com/lwm2m-harness/lwm2m-go/pkg/persistence"
	"github.com/lwm2m-harness/lwm2m-go/pkg/senml"
	"github.com/lwm2m-harness/lwm2m-go/pkg/transport"
)

// Handled describes one datagram processed by ServeOne.
type Handled struct {
	// Request is the decoded incoming packet.
	Request *coap.Packet

	// Message is the recognized LwM2M operation.
	Message *lwm2m.Message

	// Response is what the server sent back, nil if nothing was sent.
	Response *coap.Packet

	// Replayed is set when the response came from the cache.
	Replayed bool
}

// SendRecord is a SenML pack received through the Send operation.
type SendRecord struct {
	Peer       string
	Pack       senml.Pack
	ReceivedAt time.Time
}

// Server is the simulated LwM2M server bound to one transport peer.
type Server struct {
	config Config
	peer   transport.Peer
	logger *slog.Logger
	plog   log.Logger
	ids    *coap.IDGenerator

	cache    *cache.Cache
	receiver *blockwise.Receiver
	sender   *blockwise.Sender
	// observers are clients observing resources hosted here; observing
	// are observations this server made on the client.
	observers *observe.Table
	observing *observe.Table

	// io serializes datagram exchanges between ServeOne and Request.
	io sync.Mutex

	mu            sync.Mutex
	regs          *registry
	accounts      []persistence.ServerAccount
	resources     map[string]*Resource
	sends         []SendRecord
	notifications []Notification
	bootstraps    []string
	backlog       [][]byte
}

// New creates a server on peer.
func New(peer transport.Peer, config Config) (*Server, error) {
	config.applyDefaults()
	if err := config.Params.Validate(); err != nil {
		return nil, err
	}
	lifetime := config.Params.ExchangeLifetime()

	receiver, err := blockwise.NewReceiver(blockwise.ReceiverConfig{
		MaxSize:     config.BlockSize,
		MaxBodySize: config.MaxBodySize,
		Lifetime:    lifetime,
		Now:         config.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("block1 receiver: %w", err)
	}
	sender, err := blockwise.NewSender(blockwise.SenderConfig{
		InitialSize: config.BlockSize,
		Lifetime:    lifetime,
		Now:         config.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("block2 sender: %w", err)
	}

	s := &Server{
		config: config,
		peer:   peer,
		logger: config.Logger,
		plog:   config.ProtocolLogger,
		ids:    config.IDs,
		cache: cache.New(cache.Config{
			MaxEntries: config.CacheSize,
			Lifetime:   lifetime,
			Now:        config.Now,
		}),
		receiver: receiver,
		sender:   sender,
		observers: observe.NewTableWithConfig(observe.Config{
			MaxObservations: config.MaxObservations,
			Now:             config.Now,
		}),
		observing: observe.NewTableWithConfig(observe.Config{
			MaxObservations: config.MaxObservations,
			Now:             config.Now,
		}),
		regs:      newRegistry(),
		resources: make(map[string]*Resource),
	}
	s.observers.OnCancel(func(obs observe.Observation, reason observe.CancelReason) {
		s.logger.Info("observation cancelled", "peer", obs.Peer, "path", obs.Path, "reason", reason)
		s.logState(log.StateEntityObservation, "OBSERVING", "CANCELLED", obs.Path.String()+" "+reason.String())
	})
	return s, nil
}

// Peer returns the transport peer.
func (s *Server) Peer() transport.Peer { return s.peer }

// Observers returns the table of clients observing hosted resources.
func (s *Server) Observers() *observe.Table { return s.observers }

// Observing returns the table of observations made by this server.
func (s *Server) Observing() *observe.Table { return s.observing }

// Cache returns the response cache.
func (s *Server) Cache() *cache.Cache { return s.cache }

// IDs returns the message ID and token generator.
func (s *Server) IDs() *coap.IDGenerator { return s.ids }

// remote returns the key of the connected client.
func (s *Server) remote() string {
	if addr := s.peer.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// ServeOne receives one datagram within timeout and answers it. Malformed
// datagrams are dropped and reported with a nil Handled and no error.
// transport.ErrTimeout is returned when nothing arrived.
func (s *Server) ServeOne(timeout time.Duration) (*Handled, error) {
	s.io.Lock()
	defer s.io.Unlock()

	data, err := s.next(timeout)
	if err != nil {
		return nil, err
	}
	return s.process(data)
}

func (s *Server) next(timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	if len(s.backlog) > 0 {
		data := s.backlog[0]
		s.backlog = s.backlog[1:]
		s.mu.Unlock()
		return data, nil
	}
	s.mu.Unlock()
	return s.peer.Recv(timeout)
}

func (s *Server) queueLater(data []byte) {
	s.mu.Lock()
	s.backlog = append(s.backlog, append([]byte(nil), data...))
	s.mu.Unlock()
}

func (s *Server) process(data []byte) (*Handled, error) {
	from := s.remote()
	s.expire()
	pkt, err := coap.Parse(data)
	if err != nil {
		s.logger.Warn("dropping malformed datagram", "peer", from, "size", len(data), "error", err)
		s.logError(log.LayerCoAP, err, "parse")
		return nil, nil
	}

	if pkt.Code.IsRequest() {
		k := cache.NewKey(from, pkt.MessageID, pkt.Token)
		if cached, ok := s.cache.Get(k); ok {
			s.logger.Debug("replaying cached response", "peer", from, "msg_id", pkt.MessageID)
			s.logMessage(log.DirectionIn, pkt, "Duplicate")
			resp, _ := coap.Parse(cached)
			if err := s.peer.Send(cached); err != nil {
				return nil, err
			}
			if resp != nil {
				s.logMessage(log.DirectionOut, resp, "")
			}
			return &Handled{Request: pkt, Message: lwm2m.Recognize(pkt), Response: resp, Replayed: true}, nil
		}
	}

	msg := lwm2m.Recognize(pkt)
	s.logMessage(log.DirectionIn, pkt, msg.Kind.String())

	resp, err := s.Handle(from, pkt)
	if err != nil {
		return nil, err
	}
	h := &Handled{Request: pkt, Message: msg, Response: resp}
	if resp == nil {
		return h, nil
	}

	out, err := resp.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	if pkt.Code.IsRequest() {
		if err := s.cache.Put(cache.NewKey(from, pkt.MessageID, pkt.Token), out); err != nil {
			s.logger.Debug("response not cached", "error", err)
		}
	}
	if err := s.peer.Send(out); err != nil {
		return nil, err
	}
	s.logMessage(log.DirectionOut, resp, "")
	return h, nil
}

// Handle computes the answer to pkt from peer. It returns nil when no
// answer is due (ACKs, responses to our requests, Reset). Protocol
// violations become error responses; only internal failures are returned
// as errors.
func (s *Server) Handle(from string, pkt *coap.Packet) (*coap.Packet, error) {
	switch {
	case pkt.Type == coap.Reset:
		s.handleReset(from, pkt)
		return nil, nil
	case pkt.Code == coap.Empty:
		if pkt.Type == coap.Confirmable {
			// CoAP ping
			return coap.NewReset(pkt.MessageID), nil
		}
		return nil, nil
	case pkt.Code.IsResponse():
		return s.handleResponse(from, pkt), nil
	case !pkt.Code.IsRequest():
		return nil, nil
	}

	if err := pkt.Options.Validate(); err != nil {
		s.logger.Warn("request options rejected", "peer", from, "error", err)
		return lwm2m.Matching(pkt).Error(err), nil
	}

	if err := s.receiver.Busy(from, pkt.Token); err != nil && !pkt.Options.Has(coap.Block1) {
		return lwm2m.Matching(pkt).Error(err), nil
	}

	res, err := s.receiver.Receive(from, pkt)
	if err != nil {
		s.logger.Warn("block1 transfer rejected", "peer", from, "error", err)
		return lwm2m.Matching(pkt).Error(err), nil
	}
	switch res.Status {
	case blockwise.StatusContinue, blockwise.StatusReplay:
		return lwm2m.Matching(pkt).Continue(res.Block), nil
	}

	req := pkt
	if res.HasBlock {
		req = pkt.Clone()
		req.Payload = res.Body
		req.Options.Del(coap.Block1)
	}
	resp := s.dispatch(from, lwm2m.Recognize(req))
	if resp == nil {
		return nil, nil
	}
	if res.HasBlock && resp.Code != coap.Empty {
		resp.Options.Set(res.Block.Option(coap.Block1))
	}
	if resp.Type == coap.NonConfirmable && resp.MessageID == 0 {
		resp.MessageID = s.ids.NextMessageID()
	}
	return resp, nil
}

func (s *Server) dispatch(from string, msg *lwm2m.Message) *coap.Packet {
	r := msg.Matching()
	var resp *coap.Packet
	var err error

	switch msg.Kind {
	case lwm2m.KindRegister:
		resp, err = s.handleRegister(from, msg)
	case lwm2m.KindUpdate:
		resp, err = s.handleUpdate(from, msg)
	case lwm2m.KindDeregister:
		resp, err = s.handleDeregister(from, msg)
	case lwm2m.KindBootstrapRequest:
		resp, err = s.handleBootstrapRequest(from, msg)
	case lwm2m.KindBootstrapFinish:
		resp = r.Changed()
	case lwm2m.KindSend:
		resp, err = s.handleSend(from, msg)
	case lwm2m.KindObserve:
		resp, err = s.handleObserve(from, msg)
	case lwm2m.KindCancelObserve:
		_ = s.observers.Cancel(from, msg.Packet.Token)
		resp, err = s.handleGet(from, msg)
	case lwm2m.KindRead, lwm2m.KindRequest:
		resp, err = s.handleRequest(from, msg)
	case lwm2m.KindWrite:
		resp, err = s.handleWrite(from, msg)
	default:
		err = coap.NewCodeError(coap.NotFound, "%s not served", msg.Kind)
	}

	if errors.Is(err, blockwise.ErrBeyondEnd) {
		s.logger.Warn("block2 request beyond end", "peer", from, "error", err)
		return coap.NewReset(msg.Packet.MessageID)
	}
	if err != nil {
		if coap.CodeOf(err).Class() == 5 {
			s.logger.Error("request failed", "peer", from, "kind", msg.Kind, "error", err)
		} else {
			s.logger.Warn("request rejected", "peer", from, "kind", msg.Kind, "error", err)
		}
		s.logError(log.LayerLwM2M, err, msg.Kind.String())
		return r.Error(err)
	}
	return resp
}
