package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/internal/harness/engine"
	"github.com/lwm2m-harness/lwm2m-go/internal/harness/loader"
	"github.com/lwm2m-harness/lwm2m-go/pkg/lwm2m"
)

// handleListen waits for the client's first datagram and binds the peer
// to its sender.
func (r *Runner) handleListen(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	params := engine.InterpolateParams(step.Params, state)
	if err := r.peer.Listen(waitBudget(ctx, params)); err != nil {
		return map[string]any{KeyConnected: false}, err
	}
	return map[string]any{
		KeyConnected: true,
		KeyRemote:    r.remote(),
		KeyPeerState: r.peer.State().String(),
	}, nil
}

// bootstrapConnector is a peer that can open a server-initiated
// bootstrap session.
type bootstrapConnector interface {
	ConnectBootstrap(addr string) error
}

// handleConnect binds the peer to a client address. With bootstrap set
// the session is opened the way a server-initiated bootstrap does.
func (r *Runner) handleConnect(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	params := engine.InterpolateParams(step.Params, state)
	addr := paramString(params, ParamAddress, "")
	if addr == "" {
		return nil, fmt.Errorf("connect: %s is required", ParamAddress)
	}
	connect := r.peer.Connect
	if paramBool(params, ParamBootstrap, false) {
		bc, ok := r.peer.(bootstrapConnector)
		if !ok {
			return nil, fmt.Errorf("connect: %T cannot open bootstrap sessions", r.peer)
		}
		connect = bc.ConnectBootstrap
	}
	if err := connect(addr); err != nil {
		return map[string]any{KeyConnected: false}, err
	}
	return map[string]any{
		KeyConnected: true,
		KeyRemote:    r.remote(),
		KeyPeerState: r.peer.State().String(),
	}, nil
}

// handleFakeClose makes the client see the port as closed while it stays
// bound.
func (r *Runner) handleFakeClose(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	if err := r.peer.FakeClose(); err != nil {
		return nil, err
	}
	return map[string]any{KeyPeerState: r.peer.State().String()}, nil
}

func (r *Runner) handleFakeUnclose(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	if err := r.peer.FakeUnclose(); err != nil {
		return nil, err
	}
	return map[string]any{
		KeyPeerState: r.peer.State().String(),
		KeyRemote:    r.remote(),
	}, nil
}

// handleResetPeer forgets the client, optionally moving to another
// local port.
func (r *Runner) handleResetPeer(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	params := engine.InterpolateParams(step.Params, state)
	r.server.PeerReset()
	if err := r.peer.Reset(paramInt(params, ParamPort, 0)); err != nil {
		return nil, err
	}
	r.notifications = nil
	return map[string]any{KeyPeerState: r.peer.State().String()}, nil
}

// handleWaitExchangeLifetime lets an exchange lifetime pass, so cached
// responses, block transfers and registrations that depend on it expire.
// The server clock is advanced unless real is set.
func (r *Runner) handleWaitExchangeLifetime(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	params := engine.InterpolateParams(step.Params, state)
	lifetime := r.config.Peer.Transmission.ExchangeLifetime()
	if !paramBool(params, ParamReal, false) {
		r.clock.Advance(lifetime)
		return map[string]any{KeyAdvanced: lifetime.String()}, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(lifetime):
	}
	return map[string]any{KeyWaited: true}, nil
}

// handleWait sleeps for duration, or advances the server clock by
// advance.
func (r *Runner) handleWait(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	params := engine.InterpolateParams(step.Params, state)
	if adv := paramDuration(params, ParamAdvance, 0); adv > 0 {
		r.clock.Advance(adv)
	}
	d := paramDuration(params, ParamDuration, 0)
	if d <= 0 {
		return map[string]any{KeyWaited: true}, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(d):
	}
	return map[string]any{KeyWaited: true}, nil
}

func (r *Runner) handleVerify(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	return map[string]any{}, nil
}

// Custom expectation checkers

func (r *Runner) checkRegistered(key string, expected any, state *engine.ExecutionState) *engine.ExpectResult {
	ep := fmt.Sprint(expected)
	reg, ok := r.server.Registration(ep)
	if !ok {
		return &engine.ExpectResult{Key: key, Expected: expected, Passed: false,
			Message: fmt.Sprintf("endpoint %q is not registered", ep)}
	}
	return &engine.ExpectResult{Key: key, Expected: expected, Actual: reg.Location.String(), Passed: true,
		Message: fmt.Sprintf("endpoint %q registered at %s", ep, reg.Location)}
}

func (r *Runner) checkUnregistered(key string, expected any, state *engine.ExecutionState) *engine.ExpectResult {
	ep := fmt.Sprint(expected)
	if reg, ok := r.server.Registration(ep); ok {
		return &engine.ExpectResult{Key: key, Expected: expected, Actual: reg.Location.String(), Passed: false,
			Message: fmt.Sprintf("endpoint %q still registered at %s", ep, reg.Location)}
	}
	return &engine.ExpectResult{Key: key, Expected: expected, Passed: true,
		Message: fmt.Sprintf("endpoint %q not registered", ep)}
}

// checkObserving passes when the server holds an observation of the
// expected path on the client.
func (r *Runner) checkObserving(key string, expected any, state *engine.ExecutionState) *engine.ExpectResult {
	path, err := lwm2m.ParsePath(fmt.Sprint(expected))
	if err != nil {
		return &engine.ExpectResult{Key: key, Expected: expected, Passed: false, Message: err.Error()}
	}
	for _, obs := range r.server.Observing().ForPath(path) {
		if obs.Path == path {
			return &engine.ExpectResult{Key: key, Expected: expected, Actual: obs.Path.String(), Passed: true,
				Message: fmt.Sprintf("observing %s", path)}
		}
	}
	return &engine.ExpectResult{Key: key, Expected: expected, Passed: false,
		Message: fmt.Sprintf("no observation of %s", path)}
}
