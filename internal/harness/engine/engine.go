package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/internal/harness/loader"
)

// Engine executes scenarios.
type Engine struct {
	config   *EngineConfig
	handlers map[string]ActionHandler
	checkers map[string]ExpectChecker
	mu       sync.RWMutex
}

// New creates an engine with the default configuration.
func New() *Engine {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates an engine with the given configuration. The
// standard checkers are registered.
func NewWithConfig(config *EngineConfig) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	e := &Engine{
		config:   config,
		handlers: make(map[string]ActionHandler),
		checkers: make(map[string]ExpectChecker),
	}
	e.RegisterChecker(CheckerNameDefault, defaultChecker)
	registerStandardCheckers(e)
	return e
}

// RegisterHandler registers an action handler.
func (e *Engine) RegisterHandler(action string, handler ActionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[action] = handler
}

// RegisterChecker registers an expectation checker.
func (e *Engine) RegisterChecker(key string, checker ExpectChecker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkers[key] = checker
}

// HasHandler reports whether action is registered.
func (e *Engine) HasHandler(action string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.handlers[action]
	return ok
}

// Run executes a single scenario.
func (e *Engine) Run(ctx context.Context, sc *loader.Scenario) *TestResult {
	result := &TestResult{
		Scenario:  sc,
		StartTime: time.Now(),
	}
	finish := func() *TestResult {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		return result
	}

	if sc.Skip {
		result.Skipped = true
		result.SkipReason = sc.SkipReason
		if result.SkipReason == "" {
			result.SkipReason = "skipped by scenario definition"
		}
		return finish()
	}

	timeout := e.config.DefaultTimeout
	if sc.Timeout != "" {
		if d, err := time.ParseDuration(sc.Timeout); err == nil {
			timeout = d
		}
	}
	scCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	state := NewExecutionState(scCtx)

	if e.config.Setup != nil {
		if err := e.config.Setup(scCtx, sc, state); err != nil {
			result.Error = fmt.Errorf("setup failed: %w", err)
			return finish()
		}
	}
	if e.config.Teardown != nil {
		defer e.config.Teardown(ctx, sc, state)
	}

	result.Passed = true
	for i := range sc.Steps {
		sr := e.executeStep(scCtx, &sc.Steps[i], i, state)
		result.StepResults = append(result.StepResults, sr)
		if !sr.Passed {
			result.Passed = false
			result.Error = fmt.Errorf("step %d (%s): %w", i+1, sr.Step.Action, sr.Error)
			break
		}
	}
	return finish()
}

func (e *Engine) executeStep(ctx context.Context, step *loader.Step, index int, state *ExecutionState) *StepResult {
	result := &StepResult{
		Step:          step,
		StepIndex:     index,
		ExpectResults: make(map[string]*ExpectResult),
		Output:        make(map[string]any),
	}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	timeout := e.config.StepTimeout
	if step.Timeout != "" {
		if d, err := time.ParseDuration(step.Timeout); err == nil {
			timeout = d
		}
	}
	// Waits get at least their own duration plus a margin.
	if dur := stepDurationFromParams(step.Params); dur > 0 {
		if needed := dur + 10*time.Second; needed > timeout {
			timeout = needed
		}
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.mu.RLock()
	handler, ok := e.handlers[step.Action]
	e.mu.RUnlock()
	if !ok {
		result.Error = fmt.Errorf("unknown action: %s", step.Action)
		return result
	}

	outputs, err := handler(stepCtx, step, state)
	if err != nil {
		// An expected failure is checked like any other output.
		if _, wantsErr := step.Expect[CheckerNameErrorMessageContains]; !wantsErr {
			result.Error = err
			return result
		}
		if outputs == nil {
			outputs = make(map[string]any)
		}
		outputs[KeyError] = err.Error()
	}

	for k, v := range outputs {
		state.Set(k, v)
		result.Output[k] = v
	}
	snapshot := make(map[string]any, len(result.Output))
	for k, v := range result.Output {
		snapshot[k] = v
	}
	state.Set(InternalStepOutput, snapshot)

	result.Passed = true
	expect := InterpolateParams(step.Expect, state)
	keys := make([]string, 0, len(expect))
	for k := range expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		er := e.checkExpectation(key, expect[key], state)
		result.ExpectResults[key] = er
		if !er.Passed && result.Passed {
			result.Passed = false
			result.Error = fmt.Errorf("expectation failed: %s - %s", key, er.Message)
		}
	}
	return result
}

func (e *Engine) checkExpectation(key string, expected any, state *ExecutionState) *ExpectResult {
	e.mu.RLock()
	checker, ok := e.checkers[key]
	if !ok {
		checker = e.checkers[CheckerNameDefault]
	}
	e.mu.RUnlock()
	return checker(key, expected, state)
}

// defaultChecker compares the output named key with expected by their
// printed form. "present" only requires the key to exist.
func defaultChecker(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(key)
	if !ok {
		return &ExpectResult{
			Key:      key,
			Expected: expected,
			Message:  fmt.Sprintf("key %q not found in outputs", key),
		}
	}
	if s, ok := expected.(string); ok && s == "present" {
		return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: true,
			Message: fmt.Sprintf("%s = %v", key, actual)}
	}

	passed := valueToString(expected) == valueToString(actual)
	if !passed {
		// Numbers from YAML are int while outputs are often unsigned.
		if en, ok1 := ToFloat64(expected); ok1 {
			if an, ok2 := ToFloat64(actual); ok2 {
				passed = en == an
			}
		}
	}
	result := &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: passed}
	if passed {
		result.Message = fmt.Sprintf("%s = %v", key, valueToString(actual))
	} else {
		result.Message = fmt.Sprintf("expected %v, got %v", valueToString(expected), valueToString(actual))
	}
	return result
}

// RunSuite executes scenarios in order.
func (e *Engine) RunSuite(ctx context.Context, cases []*loader.Scenario) *SuiteResult {
	result := &SuiteResult{SuiteName: "LwM2M Scenarios"}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	suiteTimeout := e.config.SuiteTimeout
	if suiteTimeout == 0 {
		for _, sc := range cases {
			d := e.config.DefaultTimeout
			if sc.Timeout != "" {
				if parsed, err := time.ParseDuration(sc.Timeout); err == nil {
					d = parsed
				}
			}
			suiteTimeout += d
		}
		suiteTimeout += time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, suiteTimeout)
	defer cancel()

	for _, sc := range cases {
		if ctx.Err() != nil {
			return result
		}
		tr := e.Run(ctx, sc)
		result.Results = append(result.Results, tr)
		switch {
		case tr.Skipped:
			result.SkipCount++
		case tr.Passed:
			result.PassCount++
		default:
			result.FailCount++
		}
		if e.config.OnTestComplete != nil {
			e.config.OnTestComplete(tr)
		}
		if !tr.Passed && !tr.Skipped && e.config.StopOnFirstFailure {
			break
		}
	}
	return result
}

// stepDurationFromParams extracts an explicit wait duration from step
// parameters: duration_ms, duration_seconds or a "duration" string.
func stepDurationFromParams(params map[string]any) time.Duration {
	var d time.Duration
	if v, ok := ToFloat64(params["duration_seconds"]); ok {
		d = time.Duration(v * float64(time.Second))
	}
	if v, ok := ToFloat64(params["duration_ms"]); ok {
		if md := time.Duration(v * float64(time.Millisecond)); md > d {
			d = md
		}
	}
	if s, ok := params["duration"].(string); ok {
		if pd, err := time.ParseDuration(s); err == nil && pd > d {
			d = pd
		}
	}
	return d
}
