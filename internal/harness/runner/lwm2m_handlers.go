package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/internal/harness/assertions"
	"github.com/lwm2m-harness/lwm2m-go/internal/harness/engine"
	"github.com/lwm2m-harness/lwm2m-go/internal/harness/loader"
	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/lwm2m"
	"github.com/lwm2m-harness/lwm2m-go/pkg/server"
	"github.com/lwm2m-harness/lwm2m-go/pkg/transport"
)

// handleServe answers client requests until count requests were handled
// or duration elapsed.
func (r *Runner) handleServe(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	params := engine.InterpolateParams(step.Params, state)
	duration := paramDuration(params, ParamDuration, time.Second)
	count := paramInt(params, KeyCount, 0)

	handled := 0
	var last *server.Handled
	deadline := time.Now().Add(duration)
	for remaining := duration; remaining > 0; remaining = time.Until(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h, err := r.server.ServeOne(remaining)
		if errors.Is(err, transport.ErrTimeout) {
			break
		}
		if err != nil {
			return nil, err
		}
		if h == nil || !h.Request.Code.IsRequest() || h.Replayed {
			continue
		}
		handled++
		last = h
		if count > 0 && handled >= count {
			break
		}
	}

	out := map[string]any{KeyHandled: handled}
	if last != nil {
		out[KeyKind] = last.Message.Kind.String()
		out[KeyPath] = last.Request.Path().String()
		if last.Response != nil {
			out[KeyResponseCode] = last.Response.Code.Dotted()
		}
	}
	if count > 0 && handled < count {
		return out, fmt.Errorf("handled %d of %d requests within %s", handled, count, duration)
	}
	return out, nil
}

// handleExpectRequest waits for the next client request and checks its
// kind, path and content format. With auto (the default) the server
// answers it; otherwise it is kept for a following respond step.
func (r *Runner) handleExpectRequest(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	params := engine.InterpolateParams(step.Params, state)
	timeout := waitBudget(ctx, params)
	auto := paramBool(params, ParamAuto, true)

	var (
		req  *coap.Packet
		msg  *lwm2m.Message
		resp *coap.Packet
	)
	deadline := time.Now().Add(timeout)
	for req == nil {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("no request within %s", timeout)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		if auto {
			req, msg, resp, err = r.serveRequest(remaining)
		} else {
			req, err = r.receiveRequest(remaining)
		}
		if errors.Is(err, transport.ErrTimeout) {
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	if msg == nil {
		msg = lwm2m.Recognize(req)
	}

	out := packetOutputs(req)
	out[KeyKind] = msg.Kind.String()
	switch msg.Kind {
	case lwm2m.KindRegister, lwm2m.KindBootstrapRequest:
		out[KeyEndpoint] = msg.Endpoint()
	}
	if lt, ok := msg.Lifetime(); ok {
		out[KeyLifetime] = int(lt / time.Second)
	}
	if resp != nil {
		out[KeyResponseCode] = resp.Code.Dotted()
		if loc := resp.Options.LocationPath(); len(loc) > 0 {
			out[KeyLocation] = loc.String()
		}
	}
	if !auto {
		state.Custom[statePendingRequest] = req
	}

	var checks []*assertions.Result
	if kind := paramString(params, ParamKind, ""); kind != "" {
		checks = append(checks, assertions.IsKind(msg, kind))
	}
	if path := paramString(params, ParamPath, ""); path != "" {
		checks = append(checks, assertions.HasPath(req, path))
	}
	if cf := paramString(params, ParamContentFormat, ""); cf != "" {
		checks = append(checks, assertions.HasContentFormat(req, cf))
	}
	return out, assertions.All(checks...).Err()
}

// serveRequest answers datagrams until one of them is a new request.
func (r *Runner) serveRequest(timeout time.Duration) (*coap.Packet, *lwm2m.Message, *coap.Packet, error) {
	h, err := r.server.ServeOne(timeout)
	if err != nil {
		return nil, nil, nil, err
	}
	if h == nil || !h.Request.Code.IsRequest() || h.Replayed {
		return nil, nil, nil, nil
	}
	return h.Request, h.Message, h.Response, nil
}

// receiveRequest returns the next request unanswered. Other traffic is
// handled as usual.
func (r *Runner) receiveRequest(timeout time.Duration) (*coap.Packet, error) {
	pkt, err := r.server.Receive(timeout)
	if err != nil {
		return nil, err
	}
	if pkt.Code.IsRequest() {
		return pkt, nil
	}
	resp, err := r.server.Handle(r.remote(), pkt)
	if err != nil || resp == nil {
		return nil, err
	}
	return nil, r.server.Reply(pkt, resp)
}

func (r *Runner) remote() string {
	if addr := r.peer.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// handleRespond answers the request kept by expect_request with auto
// off.
func (r *Runner) handleRespond(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	params := engine.InterpolateParams(step.Params, state)
	req, ok := state.Custom[statePendingRequest].(*coap.Packet)
	if !ok {
		return nil, errors.New("no pending request to respond to")
	}

	code, err := coap.ParseCode(paramString(params, ParamCode, defaultResponseCode(req)))
	if err != nil {
		return nil, err
	}
	resp := lwm2m.Matching(req).Respond(code)
	if loc := paramString(params, ParamLocation, ""); loc != "" {
		resp.Options.SetLocationPath(coap.ParsePath(loc))
	}
	cf, hasCF, err := paramFormat(params, ParamContentFormat)
	if err != nil {
		return nil, err
	}
	if hasCF {
		resp.Options.SetContentFormat(cf)
	}
	if _, ok := params[ParamObserve]; ok {
		resp.Options.SetUint(coap.Observe, uint64(paramInt(params, ParamObserve, 0)))
	}
	if _, ok := params[ParamMaxAge]; ok {
		resp.Options.SetUint(coap.MaxAge, uint64(paramInt(params, ParamMaxAge, 0)))
	}
	if resp.Payload, err = paramPayload(params); err != nil {
		return nil, err
	}

	if err := r.server.Reply(req, resp); err != nil {
		return nil, err
	}
	delete(state.Custom, statePendingRequest)
	return packetOutputs(resp), nil
}

// defaultResponseCode is the success code for a request kind.
func defaultResponseCode(req *coap.Packet) string {
	switch lwm2m.Recognize(req).Kind {
	case lwm2m.KindRegister, lwm2m.KindCreate:
		return "2.01"
	case lwm2m.KindDeregister, lwm2m.KindDelete, lwm2m.KindBootstrapDelete:
		return "2.02"
	case lwm2m.KindRead, lwm2m.KindObserve, lwm2m.KindDiscover, lwm2m.KindBootstrapDiscover:
		return "2.05"
	}
	return "2.04"
}

// handleSendRequest sends a server-initiated operation to the client and
// waits for its response.
func (r *Runner) handleSendRequest(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	params := engine.InterpolateParams(step.Params, state)
	if r.peer.RemoteAddr() == nil {
		return nil, errors.New("no client connected")
	}
	timeout := waitBudget(ctx, params)
	op := strings.ToLower(paramString(params, ParamOperation, ""))

	var resp *coap.Packet
	if op == "cancel_observe" {
		path, err := paramPath(params)
		if err != nil {
			return nil, err
		}
		if resp, err = r.server.CancelObserve(path, timeout); err != nil {
			return nil, err
		}
	} else {
		t, err := buildRequest(op, params)
		if err != nil {
			return nil, err
		}
		if !paramBool(params, ParamConfirmable, true) {
			t.Type = coap.Some(coap.NonConfirmable)
		}
		if resp, err = r.server.Request(t, timeout); err != nil {
			return nil, err
		}
	}

	state.Custom[stateLastResponse] = resp
	return packetOutputs(resp), nil
}

// buildRequest maps an operation name and its parameters to a request
// template.
func buildRequest(op string, params map[string]any) (*coap.Template, error) {
	cf, hasCF, err := paramFormat(params, ParamContentFormat)
	if err != nil {
		return nil, err
	}
	accept, hasAccept, err := paramFormat(params, ParamAccept)
	if err != nil {
		return nil, err
	}
	var accepts []coap.ContentFormat
	if hasAccept {
		accepts = append(accepts, accept)
	}
	payload, err := paramPayload(params)
	if err != nil {
		return nil, err
	}

	switch op {
	case "bootstrap_finish":
		return lwm2m.NewBootstrapFinish(), nil
	case "read_composite", "observe_composite", "write_composite":
		if !hasCF {
			cf = coap.SenMLJSON
		}
		switch op {
		case "read_composite":
			return lwm2m.NewReadComposite(cf, payload), nil
		case "observe_composite":
			return lwm2m.NewObserveComposite(cf, payload), nil
		}
		return lwm2m.NewWriteComposite(cf, payload), nil
	}

	path, err := paramPath(params)
	if err != nil {
		return nil, err
	}
	if !hasCF {
		cf = coap.TextPlain
	}
	switch op {
	case "read":
		return lwm2m.NewRead(path, accepts...), nil
	case "observe":
		return lwm2m.NewObserve(path, accepts...), nil
	case "discover":
		return lwm2m.NewDiscover(path), nil
	case "bootstrap_discover":
		return lwm2m.NewBootstrapDiscover(path), nil
	case "write":
		return lwm2m.NewWrite(path, cf, payload), nil
	case "write_partial":
		return lwm2m.NewWritePartial(path, cf, payload), nil
	case "write_attributes":
		attrs, err := paramAttributes(params)
		if err != nil {
			return nil, err
		}
		return lwm2m.NewWriteAttributes(path, attrs), nil
	case "execute":
		return lwm2m.NewExecute(path, paramString(params, ParamArguments, "")), nil
	case "create":
		return lwm2m.NewCreate(path, cf, payload), nil
	case "delete":
		return lwm2m.NewDelete(path), nil
	}
	return nil, fmt.Errorf("unknown operation %q", op)
}

// handleExpectResponse checks the response to the last send_request.
func (r *Runner) handleExpectResponse(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	params := engine.InterpolateParams(step.Params, state)
	resp, ok := state.Custom[stateLastResponse].(*coap.Packet)
	if !ok {
		return nil, errors.New("no response received yet")
	}

	var checks []*assertions.Result
	if code := paramString(params, ParamCode, ""); code != "" {
		checks = append(checks, assertions.HasCode(resp, code))
	}
	if cf := paramString(params, ParamContentFormat, ""); cf != "" {
		checks = append(checks, assertions.HasContentFormat(resp, cf))
	}
	want, err := paramPayload(params)
	if err != nil {
		return nil, err
	}
	if want != nil {
		checks = append(checks, assertions.PayloadEquals(resp, want))
	}
	return packetOutputs(resp), assertions.All(checks...).Err()
}

// handleExpectNotification serves traffic until a notification for path
// (any path when omitted) arrives.
func (r *Runner) handleExpectNotification(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	params := engine.InterpolateParams(step.Params, state)
	timeout := waitBudget(ctx, params)
	want := paramString(params, ParamPath, "")

	deadline := time.Now().Add(timeout)
	for {
		if n, ok := r.takeNotification(want); ok {
			out := packetOutputs(n.Packet)
			out[KeyPath] = n.Path.String()
			out[KeyObserveSeq] = int(n.Seq)
			return out, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("no notification within %s", timeout)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := r.server.ServeOne(remaining); err != nil && !errors.Is(err, transport.ErrTimeout) {
			return nil, err
		}
	}
}

// takeNotification pops the first buffered notification for path.
func (r *Runner) takeNotification(path string) (server.Notification, bool) {
	r.notifications = append(r.notifications, r.server.Notifications()...)
	for i, n := range r.notifications {
		if path == "" || n.Path.String() == path {
			r.notifications = append(r.notifications[:i], r.notifications[i+1:]...)
			return n, true
		}
	}
	return server.Notification{}, false
}

// handleNotify sends the current value of a hosted resource to its
// observers, optionally replacing it first.
func (r *Runner) handleNotify(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	params := engine.InterpolateParams(step.Params, state)
	path, err := paramPath(params)
	if err != nil {
		return nil, err
	}
	if _, ok := params[ParamPayload]; ok {
		if err := r.setResource(path.String(), params); err != nil {
			return nil, err
		}
	}
	sent, err := r.server.Notify(path)
	if err != nil {
		return nil, err
	}
	return map[string]any{KeySent: sent}, nil
}

// handleSetResource hosts a representation clients can read or observe.
func (r *Runner) handleSetResource(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	params := engine.InterpolateParams(step.Params, state)
	path := paramString(params, ParamPath, "")
	if path == "" {
		return nil, fmt.Errorf("missing %s parameter", ParamPath)
	}
	if file := paramString(params, ParamFile, ""); file != "" {
		if err := r.server.LoadResourceFile(path, file); err != nil {
			return nil, err
		}
	} else if err := r.setResource(path, params); err != nil {
		return nil, err
	}
	res, _ := r.server.Resource(path)
	return map[string]any{KeyPath: path, KeyPayloadSize: len(res.Body)}, nil
}

func (r *Runner) setResource(path string, params map[string]any) error {
	cf, hasCF, err := paramFormat(params, ParamContentFormat)
	if err != nil {
		return err
	}
	if !hasCF {
		cf = coap.OctetStream
	}
	body, err := paramPayload(params)
	if err != nil {
		return err
	}
	r.server.SetResource(path, cf, body)
	return nil
}

// handleRegistrations reports the registered endpoints, and the details
// of one endpoint when given.
func (r *Runner) handleRegistrations(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	params := engine.InterpolateParams(step.Params, state)
	regs := r.server.Registrations()
	endpoints := make([]string, 0, len(regs))
	for _, reg := range regs {
		endpoints = append(endpoints, reg.Endpoint)
	}
	sort.Strings(endpoints)
	out := map[string]any{
		KeyCount:     len(regs),
		KeyEndpoints: strings.Join(endpoints, ","),
	}

	ep := paramString(params, ParamEndpoint, "")
	if ep == "" {
		return out, nil
	}
	reg, ok := r.server.Registration(ep)
	if !ok {
		return out, fmt.Errorf("endpoint %q is not registered", ep)
	}
	out[KeyEndpoint] = reg.Endpoint
	out[KeyLocation] = reg.Location.String()
	out[KeyLifetime] = int(reg.Lifetime / time.Second)
	return out, nil
}
