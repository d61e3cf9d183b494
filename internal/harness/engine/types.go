// Package engine runs harness scenarios step by step and checks their
// expectations.
package engine

import (
	"context"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/internal/harness/loader"
)

// TestResult is the outcome of one scenario. A scenario passes when every
// step and every expectation passed.
type TestResult struct {
	Scenario    *loader.Scenario
	Passed      bool
	Skipped     bool
	SkipReason  string
	Error       error
	StepResults []*StepResult

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// StepResult is the outcome of one step. Output holds what the action
// returned, ExpectResults is keyed by expectation name.
type StepResult struct {
	Step          *loader.Step
	StepIndex     int
	Passed        bool
	Error         error
	Output        map[string]any
	ExpectResults map[string]*ExpectResult
	Duration      time.Duration
}

// ExpectResult is one checked expectation.
type ExpectResult struct {
	Key      string
	Expected any
	Actual   any
	Passed   bool
	Message  string
}

// SuiteResult aggregates the scenarios of a suite run.
type SuiteResult struct {
	SuiteName string
	Results   []*TestResult
	PassCount int
	FailCount int
	SkipCount int
	Duration  time.Duration
}

// Failed returns the results of the scenarios that did not pass.
func (r *SuiteResult) Failed() []*TestResult {
	var out []*TestResult
	for _, tr := range r.Results {
		if !tr.Passed && !tr.Skipped {
			out = append(out, tr)
		}
	}
	return out
}

// ActionHandler processes a step action. It returns outputs made
// available to expectations and later steps.
type ActionHandler func(ctx context.Context, step *loader.Step, state *ExecutionState) (map[string]any, error)

// ExpectChecker checks an expectation against the execution state.
type ExpectChecker func(key string, expected any, state *ExecutionState) *ExpectResult

// ExecutionState carries step outputs from one step to the next. Custom
// holds handler-private values such as the client connection.
type ExecutionState struct {
	Context context.Context
	Outputs map[string]any
	Custom  map[string]any
}

// NewExecutionState creates a new execution state.
func NewExecutionState(ctx context.Context) *ExecutionState {
	return &ExecutionState{
		Outputs: make(map[string]any),
		Custom:  make(map[string]any),
		Context: ctx,
	}
}

// Get retrieves a value from outputs. "{{ key }}" references are
// accepted.
func (s *ExecutionState) Get(key string) (any, bool) {
	if loc := placeholder.FindStringSubmatchIndex(key); loc != nil && loc[0] == 0 && loc[1] == len(key) {
		key = key[loc[2]:loc[3]]
	}
	v, ok := s.Outputs[key]
	return v, ok
}

// Set stores a value in outputs.
func (s *ExecutionState) Set(key string, value any) {
	s.Outputs[key] = value
}

// EngineConfig configures an Engine. A zero SuiteTimeout bounds a suite by
// the sum of its scenario timeouts plus a margin.
type EngineConfig struct {
	DefaultTimeout     time.Duration
	StepTimeout        time.Duration
	SuiteTimeout       time.Duration
	StopOnFirstFailure bool

	// Setup runs before the steps of each scenario, Teardown after them
	// whatever the outcome.
	Setup    func(ctx context.Context, sc *loader.Scenario, state *ExecutionState) error
	Teardown func(ctx context.Context, sc *loader.Scenario, state *ExecutionState)

	OnTestComplete func(*TestResult)
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		DefaultTimeout: 30 * time.Second,
		StepTimeout:    10 * time.Second,
	}
}
