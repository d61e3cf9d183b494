package lwm2m

import (
	"errors"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
)

// Responder builds responses that match a request: a piggy-backed ACK
// with the request's message ID for Confirmable requests, and the
// request's token in every case.
type Responder struct {
	req *coap.Packet
}

// Matching returns a Responder for req.
func Matching(req *coap.Packet) Responder {
	return Responder{req: req}
}

// Respond returns an empty-bodied response with the given code.
func (r Responder) Respond(code coap.Code) *coap.Packet {
	return r.req.Response(code)
}

// Created returns 2.01 with Location-Path options.
func (r Responder) Created(location coap.Path) *coap.Packet {
	resp := r.req.Response(coap.Created)
	resp.Options.SetLocationPath(location)
	return resp
}

// Changed returns 2.04.
func (r Responder) Changed() *coap.Packet {
	return r.req.Response(coap.Changed)
}

// Deleted returns 2.02.
func (r Responder) Deleted() *coap.Packet {
	return r.req.Response(coap.Deleted)
}

// Content returns 2.05 with a payload in the given format.
func (r Responder) Content(cf coap.ContentFormat, payload []byte) *coap.Packet {
	resp := r.req.Response(coap.Content)
	resp.Options.SetContentFormat(cf)
	resp.Payload = payload
	return resp
}

// Continue returns 2.31 echoing a Block1 option.
func (r Responder) Continue(blk coap.Block) *coap.Packet {
	resp := r.req.Response(coap.Continue)
	resp.Options.Set(blk.Option(coap.Block1))
	return resp
}

// Error returns the error response for err. CodeErrors keep their code
// and Max-Age; other errors become 5.00.
func (r Responder) Error(err error) *coap.Packet {
	resp := r.req.Response(coap.CodeOf(err))
	var ce *coap.CodeError
	if errors.As(err, &ce) && ce.MaxAge > 0 {
		resp.Options.SetUint(coap.MaxAge, uint64(ce.MaxAge.Seconds()))
	}
	return resp
}

// ExpectResponse returns a template matching the response to req with the
// given code. Options and payload are left as ANY.
func ExpectResponse(req *coap.Packet, code coap.Code) *coap.Template {
	t := &coap.Template{
		Code:    coap.Some(code),
		Token:   coap.Some(req.Token),
		Options: coap.Any[coap.Options](),
		Payload: coap.Any[[]byte](),
	}
	if req.Type == coap.Confirmable {
		t.Type = coap.Some(coap.Acknowledgement)
		t.MessageID = coap.Some(req.MessageID)
	}
	return t
}
