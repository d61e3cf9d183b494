package server

import (
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/lwm2m-harness/lwm2m-go/pkg/cert"
	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
	"github.com/lwm2m-harness/lwm2m-go/pkg/lwm2m"
	"github.com/lwm2m-harness/lwm2m-go/pkg/observe"
	"github.com/lwm2m-harness/lwm2m-go/pkg/senml"
	"github.com/lwm2m-harness/lwm2m-go/pkg/tlv"
)

func (s *Server) handleRegister(from string, msg *lwm2m.Message) (*coap.Packet, error) {
	ep := msg.Endpoint()
	if ep == "" {
		return nil, coap.NewCodeError(coap.BadRequest, "register without ep")
	}
	if err := s.checkCertificate(ep); err != nil {
		return nil, coap.WrapCode(coap.Forbidden, err)
	}
	links, err := msg.Links()
	if err != nil {
		return nil, coap.WrapCode(coap.BadRequest, err)
	}
	lifetime, ok := msg.Lifetime()
	if !ok {
		lifetime = DefaultLifetime
	}
	ver, _ := msg.Version()

	now := s.config.Now()
	s.mu.Lock()
	loc := s.regs.allocate(ep, s.config.Location, s.config.UniqueLocations)
	reg := &Registration{
		Endpoint:     ep,
		Location:     append(coap.Path(nil), loc...),
		Lifetime:     lifetime,
		Binding:      msg.Binding(),
		Version:      ver,
		Links:        links,
		Queue:        msg.Queue(),
		Peer:         from,
		RegisteredAt: now,
		UpdatedAt:    now,
	}
	s.regs.put(reg)
	s.mu.Unlock()

	s.logger.Info("client registered", "endpoint", ep, "location", loc, "lifetime", lifetime, "peer", from)
	s.logState(log.StateEntityRegistration, "", "REGISTERED", ep+" "+loc.String())
	s.persist()
	return msg.Matching().Created(loc), nil
}

// certificatePeer is implemented by transports that authenticate clients
// with X.509 certificates.
type certificatePeer interface {
	PeerCertificate() *x509.Certificate
}

// checkCertificate matches the endpoint name against the client
// certificate, if the session has one.
func (s *Server) checkCertificate(ep string) error {
	cp, ok := s.peer.(certificatePeer)
	if !ok {
		return nil
	}
	leaf := cp.PeerCertificate()
	if leaf == nil {
		return nil
	}
	return cert.VerifyEndpoint(leaf, ep)
}

func (s *Server) handleUpdate(from string, msg *lwm2m.Message) (*coap.Packet, error) {
	s.mu.Lock()
	reg, ok := s.regs.get(msg.Location())
	if !ok {
		s.mu.Unlock()
		return nil, coap.WrapCode(coap.NotFound, fmt.Errorf("%w: %s", ErrUnknownLocation, msg.Location()))
	}
	if lt, ok := msg.Lifetime(); ok {
		reg.Lifetime = lt
	}
	if b := msg.Binding(); b != "" {
		reg.Binding = b
	}
	if len(msg.Packet.Payload) > 0 {
		links, err := msg.Links()
		if err != nil {
			s.mu.Unlock()
			return nil, coap.WrapCode(coap.BadRequest, err)
		}
		reg.Links = links
	}
	reg.Queue = reg.Queue || msg.Queue()
	reg.Peer = from
	reg.UpdatedAt = s.config.Now()
	ep := reg.Endpoint
	s.mu.Unlock()

	s.logger.Info("registration updated", "endpoint", ep, "location", msg.Location())
	s.logState(log.StateEntityRegistration, "REGISTERED", "UPDATED", ep)
	s.persist()
	return msg.Matching().Changed(), nil
}

func (s *Server) handleDeregister(from string, msg *lwm2m.Message) (*coap.Packet, error) {
	s.mu.Lock()
	reg, ok := s.regs.remove(msg.Location())
	if !ok {
		_, hosted := s.resources[msg.Location().String()]
		if hosted {
			delete(s.resources, msg.Location().String())
		}
		s.mu.Unlock()
		if hosted {
			return msg.Matching().Deleted(), nil
		}
		return nil, coap.WrapCode(coap.NotFound, fmt.Errorf("%w: %s", ErrUnknownLocation, msg.Location()))
	}
	s.mu.Unlock()

	n := s.observers.Purge(reg.Peer)
	s.logger.Info("client deregistered", "endpoint", reg.Endpoint, "location", reg.Location, "observations", n)
	s.logState(log.StateEntityRegistration, "REGISTERED", "DEREGISTERED", reg.Endpoint)
	s.persist()
	return msg.Matching().Deleted(), nil
}

func (s *Server) handleBootstrapRequest(from string, msg *lwm2m.Message) (*coap.Packet, error) {
	ep := msg.Endpoint()
	s.mu.Lock()
	s.bootstraps = append(s.bootstraps, ep)
	s.mu.Unlock()
	s.logger.Info("bootstrap requested", "endpoint", ep, "peer", from)
	s.logState(log.StateEntityRegistration, "", "BOOTSTRAPPING", ep)
	return msg.Matching().Changed(), nil
}

func (s *Server) handleSend(from string, msg *lwm2m.Message) (*coap.Packet, error) {
	cf, ok := msg.ContentFormat()
	if !ok {
		return nil, coap.NewCodeError(coap.BadRequest, "send without content format")
	}
	pack, err := senml.Decode(cf, msg.Packet.Payload)
	if err != nil {
		return nil, asBadRequest(err)
	}
	if err := senml.ValidateWrite(lwm2m.Path{}, pack); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sends = append(s.sends, SendRecord{Peer: from, Pack: pack, ReceivedAt: s.config.Now()})
	s.mu.Unlock()
	s.logger.Info("send received", "peer", from, "records", len(pack))
	return msg.Matching().Changed(), nil
}

// handleObserve registers the observation and answers like a Read with
// the Observe option set to the first sequence number.
func (s *Server) handleObserve(from string, msg *lwm2m.Message) (*coap.Packet, error) {
	path, err := msg.Path()
	if err != nil {
		return nil, coap.WrapCode(coap.NotFound, err)
	}
	resp, err := s.handleGet(from, msg)
	if err != nil {
		return nil, err
	}
	if resp.Type == coap.NonConfirmable {
		resp.MessageID = s.ids.NextMessageID()
	}
	attrs, _ := lwm2m.ParseAttributes(msg.Packet.Options.Queries())
	if _, err := s.observers.Register(from, msg.Packet.Token, path, attrs); err != nil {
		if errors.Is(err, observe.ErrResourceExhausted) {
			// Served as a plain Read.
			s.logger.Warn("observation refused", "path", path, "error", err)
			return resp, nil
		}
		return nil, err
	}
	seq, err := s.observers.Notify(from, msg.Packet.Token, resp.MessageID)
	if err != nil {
		return nil, err
	}
	resp.Options.SetUint(coap.Observe, uint64(seq))
	s.logState(log.StateEntityObservation, "", "OBSERVING", path.String())
	return resp, nil
}

func (s *Server) handleRequest(from string, msg *lwm2m.Message) (*coap.Packet, error) {
	switch msg.Packet.Code {
	case coap.GET:
		return s.handleGet(from, msg)
	case coap.PUT, coap.POST:
		return s.store(msg)
	}
	return nil, coap.NewCodeError(coap.MethodNotAllowed, "%s on %s", msg.Packet.Code, msg.Packet.Path())
}

// handleGet serves a hosted resource, block-wise when it exceeds one block.
func (s *Server) handleGet(from string, msg *lwm2m.Message) (*coap.Packet, error) {
	key := msg.Packet.Path().String()
	s.mu.Lock()
	res, ok := s.resources[key]
	s.mu.Unlock()
	if !ok {
		return nil, coap.NewCodeError(coap.NotFound, "no resource at %s", key)
	}

	r := msg.Matching()
	resp := r.Respond(coap.Content)
	resp.Options.SetContentFormat(res.Format)
	if len(res.Body) <= s.config.BlockSize && !msg.Packet.Options.Has(coap.Block2) {
		resp.Payload = res.Body
		return resp, nil
	}
	chunk, err := s.sender.Serve(from, key, res.Body, msg.Packet)
	if err != nil {
		return nil, err
	}
	chunk.Apply(resp)
	if !chunk.Block.More {
		s.sender.Finish(from, key)
	}
	return resp, nil
}

// handleWrite validates the payload against the target path and stores it.
func (s *Server) handleWrite(from string, msg *lwm2m.Message) (*coap.Packet, error) {
	path, err := msg.Path()
	if err != nil {
		return nil, coap.WrapCode(coap.NotFound, err)
	}
	cf, _ := msg.ContentFormat()
	switch cf {
	case coap.SenMLCBOR, coap.SenMLJSON:
		pack, err := senml.Decode(cf, msg.Packet.Payload)
		if err != nil {
			return nil, asBadRequest(err)
		}
		if err := senml.ValidateWrite(path, pack); err != nil {
			return nil, err
		}
	case coap.LwM2MTLV:
		records, err := tlv.Decode(msg.Packet.Payload)
		if err != nil {
			return nil, asBadRequest(err)
		}
		if _, err := tlv.Flatten(path, records); err != nil {
			return nil, asBadRequest(err)
		}
	}
	return s.store(msg)
}

func (s *Server) store(msg *lwm2m.Message) (*coap.Packet, error) {
	cf, ok := msg.ContentFormat()
	if !ok {
		cf = coap.OctetStream
	}
	key := msg.Packet.Path().String()
	s.SetResource(key, cf, msg.Packet.Payload)
	s.logger.Info("resource stored", "path", key, "size", len(msg.Packet.Payload), "format", cf)
	return msg.Matching().Changed(), nil
}

func (s *Server) handleReset(from string, pkt *coap.Packet) {
	if obs, ok := s.observers.CancelByMessageID(from, pkt.MessageID); ok {
		s.logger.Debug("notification reset", "path", obs.Path, "msg_id", pkt.MessageID)
	}
}

// asBadRequest keeps CodeErrors and turns other decode failures into 4.00.
func asBadRequest(err error) error {
	var ce *coap.CodeError
	if errors.As(err, &ce) {
		return err
	}
	return coap.WrapCode(coap.BadRequest, err)
}
