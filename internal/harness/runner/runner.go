// Package runner executes LwM2M scenarios against a client under test. The
// runner plays the server side: it owns a server.Server bound to a UDP or
// DTLS peer and exposes it to scenario steps through action handlers.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/internal/harness/engine"
	"github.com/lwm2m-harness/lwm2m-go/internal/harness/loader"
	"github.com/lwm2m-harness/lwm2m-go/internal/harness/reporter"
	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/config"
	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
	"github.com/lwm2m-harness/lwm2m-go/pkg/server"
	"github.com/lwm2m-harness/lwm2m-go/pkg/transport"
)

// Config configures the runner.
type Config struct {
	// Peer holds the listener, security and protocol settings.
	Peer *config.Config

	// ScenarioDir is the directory of scenario YAML files.
	ScenarioDir string

	// Files filters which YAML files to load (comma-separated globs
	// matched against the file stem).
	Files string

	// Pattern filters scenarios by ID or name.
	Pattern string

	// Tags includes only scenarios with at least one of these tags.
	Tags string

	// ExcludeTags excludes scenarios with any of these tags.
	ExcludeTags string

	// Timeout is the default scenario timeout.
	Timeout time.Duration

	// StopOnFirstFailure ends the run after the first failing scenario.
	StopOnFirstFailure bool

	// Verbose enables per-step output.
	Verbose bool

	// Output is where to write results.
	Output io.Writer

	// OutputFormat is "text", "json" or "junit".
	OutputFormat string

	// Logger for operational logging (default slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives decoded message events (optional).
	ProtocolLogger log.Logger
}

// Runner executes scenarios against a client.
type Runner struct {
	config   *Config
	engine   *engine.Engine
	reporter reporter.Reporter
	server   *server.Server
	peer     transport.Peer
	clock    *clock
	logger   *slog.Logger

	// notifications buffers notifications not yet consumed by
	// expect_notification.
	notifications []server.Notification
}

// clock is the server's time source. Waiting for an exchange lifetime
// advances it instead of sleeping, so expiry behaviour can be tested
// without minutes of idle time.
type clock struct {
	mu     sync.Mutex
	offset time.Duration
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.offset)
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.offset += d
	c.mu.Unlock()
}

// New opens the peer described by cfg.Peer and creates a runner serving
// on it.
func New(cfg *Config) (*Runner, error) {
	if cfg.Peer == nil {
		cfg.Peer = config.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	peer, err := cfg.Peer.OpenPeer(cfg.Logger, cfg.ProtocolLogger)
	if err != nil {
		return nil, err
	}
	r, err := NewWithPeer(cfg, peer)
	if err != nil {
		_ = peer.Close()
		return nil, err
	}
	return r, nil
}

// NewWithPeer creates a runner on an already open peer.
func NewWithPeer(cfg *Config, peer transport.Peer) (*Runner, error) {
	if cfg.Peer == nil {
		cfg.Peer = config.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}

	clk := &clock{}
	srv, err := server.New(peer, server.Config{
		Location:       cfg.Peer.LocationPath(),
		Role:           log.RoleServer,
		Params:         cfg.Peer.Transmission,
		BlockSize:      cfg.Peer.BlockSize,
		CacheSize:      cfg.Peer.CacheSize,
		Logger:         cfg.Logger,
		ProtocolLogger: cfg.ProtocolLogger,
		Now:            clk.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}
	if cfg.Peer.FirmwareFile != "" {
		if err := srv.LoadResourceFile(cfg.Peer.FirmwarePath, cfg.Peer.FirmwareFile); err != nil {
			return nil, err
		}
	}

	rep, err := reporter.New(cfg.OutputFormat, cfg.Output, cfg.Verbose)
	if err != nil {
		return nil, err
	}

	engineConfig := engine.DefaultConfig()
	if cfg.Timeout > 0 {
		engineConfig.DefaultTimeout = cfg.Timeout
	}
	engineConfig.StopOnFirstFailure = cfg.StopOnFirstFailure

	r := &Runner{
		config:   cfg,
		engine:   engine.NewWithConfig(engineConfig),
		reporter: rep,
		server:   srv,
		peer:     peer,
		clock:    clk,
		logger:   cfg.Logger,
	}
	engineConfig.Teardown = r.teardown
	engineConfig.OnTestComplete = func(result *engine.TestResult) {
		r.reporter.ReportTest(result)
	}
	r.registerHandlers()
	return r, nil
}

// Server returns the simulated server.
func (r *Runner) Server() *server.Server { return r.server }

// Engine returns the scenario engine.
func (r *Runner) Engine() *engine.Engine { return r.engine }

// Run loads the matching scenarios, executes them and reports the result.
func (r *Runner) Run(ctx context.Context) (*engine.SuiteResult, error) {
	scenarios, err := loader.LoadDirectoryWithFilter(r.config.ScenarioDir, r.config.Files)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenarios: %w", err)
	}
	scenarios = loader.FilterByPattern(scenarios, r.config.Pattern)
	scenarios = loader.FilterByTags(scenarios, r.config.Tags)
	scenarios = loader.FilterByExcludeTags(scenarios, r.config.ExcludeTags)
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios found matching filters (pattern=%q, files=%q, tags=%q, exclude-tags=%q)",
			r.config.Pattern, r.config.Files, r.config.Tags, r.config.ExcludeTags)
	}
	return r.RunScenarios(ctx, scenarios), nil
}

// RunScenarios executes scenarios in order and reports the summary.
func (r *Runner) RunScenarios(ctx context.Context, scenarios []*loader.Scenario) *engine.SuiteResult {
	result := r.engine.RunSuite(ctx, scenarios)
	if addr := r.peer.LocalAddr(); addr != nil {
		result.SuiteName = fmt.Sprintf("LwM2M Scenarios (%s)", addr)
	}
	r.reporter.ReportSummary(result)
	return result
}

// teardown forgets the client so the next scenario starts clean.
func (r *Runner) teardown(_ context.Context, sc *loader.Scenario, state *engine.ExecutionState) {
	if r.peer.State() == transport.StateFakeClosed {
		if err := r.peer.FakeUnclose(); err != nil {
			r.logger.Warn("fake unclose failed", "scenario", sc.ID, "error", err)
		}
	}
	r.server.PeerReset()
	if err := r.peer.Reset(0); err != nil {
		r.logger.Warn("peer reset failed", "scenario", sc.ID, "error", err)
	}
	delete(state.Custom, statePendingRequest)
	delete(state.Custom, stateLastResponse)
	r.notifications = nil
}

// Close releases the peer.
func (r *Runner) Close() error {
	return r.peer.Close()
}

func (r *Runner) registerHandlers() {
	// Connection handlers
	r.engine.RegisterHandler(ActionListen, r.handleListen)
	r.engine.RegisterHandler(ActionConnect, r.handleConnect)
	r.engine.RegisterHandler(ActionFakeClose, r.handleFakeClose)
	r.engine.RegisterHandler(ActionFakeUnclose, r.handleFakeUnclose)
	r.engine.RegisterHandler(ActionResetPeer, r.handleResetPeer)

	// Client-initiated exchanges
	r.engine.RegisterHandler(ActionServe, r.handleServe)
	r.engine.RegisterHandler(ActionExpectRequest, r.handleExpectRequest)
	r.engine.RegisterHandler(ActionRespond, r.handleRespond)

	// Server-initiated exchanges
	r.engine.RegisterHandler(ActionSendRequest, r.handleSendRequest)
	r.engine.RegisterHandler(ActionExpectResponse, r.handleExpectResponse)
	r.engine.RegisterHandler(ActionExpectNotification, r.handleExpectNotification)
	r.engine.RegisterHandler(ActionNotify, r.handleNotify)
	r.engine.RegisterHandler(ActionSetResource, r.handleSetResource)
	r.engine.RegisterHandler(ActionRegistrations, r.handleRegistrations)

	// Utility handlers
	r.engine.RegisterHandler(ActionWaitExchangeLifetime, r.handleWaitExchangeLifetime)
	r.engine.RegisterHandler(ActionWait, r.handleWait)
	r.engine.RegisterHandler(ActionVerify, r.handleVerify)

	r.engine.RegisterChecker(CheckerRegistered, r.checkRegistered)
	r.engine.RegisterChecker(CheckerUnregistered, r.checkUnregistered)
	r.engine.RegisterChecker(CheckerObserving, r.checkObserving)
}

// packetOutputs flattens a packet into step outputs.
func packetOutputs(p *coap.Packet) map[string]any {
	out := map[string]any{
		KeyType:        p.Type.String(),
		KeyCode:        p.Code.Dotted(),
		KeyMessageID:   int(p.MessageID),
		KeyToken:       fmt.Sprintf("%x", p.Token),
		KeyPayload:     string(p.Payload),
		KeyPayloadSize: len(p.Payload),
	}
	if p.Code.IsRequest() {
		out[KeyPath] = p.Path().String()
	}
	if cf, ok := p.Options.ContentFormat(); ok {
		out[KeyContentFormat] = int(cf)
	}
	if loc := p.Options.LocationPath(); len(loc) > 0 {
		out[KeyLocation] = loc.String()
	}
	if seq, ok := p.Options.Observe(); ok {
		out[KeyObserveSeq] = int(seq)
	}
	if age, ok := p.Options.MaxAge(); ok {
		out[KeyMaxAge] = int(age)
	}
	return out
}
