package server

import (
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
)

func (s *Server) event(layer log.Layer, cat log.Category, dir log.Direction) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.peer.ConnectionID(),
		Direction:    dir,
		Layer:        layer,
		Category:     cat,
		LocalRole:    s.config.Role,
		RemoteAddr:   s.remote(),
	}
}

func (s *Server) logMessage(dir log.Direction, pkt *coap.Packet, operation string) {
	if pkt.Code == coap.Empty {
		ct := log.ControlAck
		switch {
		case pkt.Type == coap.Reset:
			ct = log.ControlReset
		case pkt.Type == coap.Confirmable:
			ct = log.ControlPing
		}
		s.logControl(dir, ct, pkt.MessageID)
		return
	}
	layer := log.LayerCoAP
	if operation != "" {
		layer = log.LayerLwM2M
	}
	ev := s.event(layer, log.CategoryMessage, dir)
	ev.Message = log.NewMessageEvent(pkt, operation)
	s.plog.Log(ev)
}

func (s *Server) logControl(dir log.Direction, ct log.ControlType, msgID uint16) {
	ev := s.event(log.LayerCoAP, log.CategoryControl, dir)
	ev.Control = &log.ControlEvent{Type: ct, MessageID: msgID}
	s.plog.Log(ev)
}

func (s *Server) logState(entity log.StateEntity, oldState, newState, reason string) {
	ev := s.event(log.LayerLwM2M, log.CategoryState, log.DirectionIn)
	ev.StateChange = &log.StateChangeEvent{
		Entity:   entity,
		OldState: oldState,
		NewState: newState,
		Reason:   reason,
	}
	s.plog.Log(ev)
}

func (s *Server) logError(layer log.Layer, err error, context string) {
	ev := s.event(layer, log.CategoryError, log.DirectionIn)
	data := &log.ErrorEventData{Layer: layer, Message: err.Error(), Context: context}
	if code := coap.CodeOf(err); code != coap.InternalServerError {
		c := int(code)
		data.Code = &c
	}
	ev.Error = data
	s.plog.Log(ev)
}
