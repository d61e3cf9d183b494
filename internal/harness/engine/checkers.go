package engine

import (
	"fmt"
	"strings"
)

// ToFloat64 converts numeric types to float64 for comparison.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint8:
		return float64(n), true
	default:
		return 0, false
	}
}

func registerStandardCheckers(e *Engine) {
	e.RegisterChecker(CheckerNameValueGreaterThan, CheckerValueGreaterThan)
	e.RegisterChecker(CheckerNameValueLessThan, CheckerValueLessThan)
	e.RegisterChecker(CheckerNameValueInRange, CheckerValueInRange)
	e.RegisterChecker(CheckerNamePayloadContains, CheckerPayloadContains)
	e.RegisterChecker(CheckerNameSaveAs, CheckerSaveAs)
	e.RegisterChecker(CheckerNameErrorMessageContains, CheckerErrorMessageContains)
	e.RegisterChecker(CheckerNameCodeClass, CheckerCodeClass)
}

func missing(key string, expected any, output string) *ExpectResult {
	return &ExpectResult{
		Key:      key,
		Expected: expected,
		Message:  fmt.Sprintf("output key %q not found", output),
	}
}

func compareValue(key string, expected any, state *ExecutionState, op string, cmp func(a, b float64) bool) *ExpectResult {
	actual, ok := state.Get(KeyValue)
	if !ok {
		return missing(key, expected, KeyValue)
	}
	a, ok1 := ToFloat64(actual)
	b, ok2 := ToFloat64(expected)
	if !ok1 || !ok2 {
		return &ExpectResult{Key: key, Expected: expected, Actual: actual,
			Message: fmt.Sprintf("cannot compare non-numeric values: %T and %T", actual, expected)}
	}
	passed := cmp(a, b)
	return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: passed,
		Message: fmt.Sprintf("%v %s %v = %v", a, op, b, passed)}
}

// CheckerValueGreaterThan checks that the "value" output exceeds expected.
func CheckerValueGreaterThan(key string, expected any, state *ExecutionState) *ExpectResult {
	return compareValue(key, expected, state, ">", func(a, b float64) bool { return a > b })
}

// CheckerValueLessThan checks that the "value" output is below expected.
func CheckerValueLessThan(key string, expected any, state *ExecutionState) *ExpectResult {
	return compareValue(key, expected, state, "<", func(a, b float64) bool { return a < b })
}

// CheckerValueInRange checks that the "value" output lies in [min, max].
// Expected is a map with "min" and "max" or a two-element list.
func CheckerValueInRange(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(KeyValue)
	if !ok {
		return missing(key, expected, KeyValue)
	}
	var lo, hi any
	switch e := expected.(type) {
	case map[string]any:
		lo, hi = e["min"], e["max"]
	case []any:
		if len(e) == 2 {
			lo, hi = e[0], e[1]
		}
	}
	a, ok1 := ToFloat64(actual)
	l, ok2 := ToFloat64(lo)
	h, ok3 := ToFloat64(hi)
	if !ok1 || !ok2 || !ok3 {
		return &ExpectResult{Key: key, Expected: expected, Actual: actual,
			Message: "expected must be {min, max} or [min, max] with numeric value"}
	}
	passed := a >= l && a <= h
	return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: passed,
		Message: fmt.Sprintf("%v in [%v, %v] = %v", a, l, h, passed)}
}

// CheckerPayloadContains checks that the "payload" output contains the
// expected text.
func CheckerPayloadContains(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(KeyPayload)
	if !ok {
		return missing(key, expected, KeyPayload)
	}
	want := valueToString(expected)
	got := valueToString(actual)
	passed := strings.Contains(got, want)
	return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: passed,
		Message: fmt.Sprintf("payload contains %q = %v", want, passed)}
}

// CheckerSaveAs copies the "value" output (or the whole step output when
// there is none) into the named variable. It always passes.
func CheckerSaveAs(key string, expected any, state *ExecutionState) *ExpectResult {
	name := valueToString(expected)
	v, ok := state.Get(KeyValue)
	if !ok {
		v, _ = state.Get(InternalStepOutput)
	}
	state.Set(name, v)
	return &ExpectResult{Key: key, Expected: expected, Actual: v, Passed: true,
		Message: fmt.Sprintf("saved as %s", name)}
}

// CheckerErrorMessageContains checks that the step failed with an error
// mentioning expected.
func CheckerErrorMessageContains(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(KeyError)
	if !ok {
		return &ExpectResult{Key: key, Expected: expected, Message: "step did not fail"}
	}
	want := valueToString(expected)
	passed := strings.Contains(strings.ToLower(valueToString(actual)), strings.ToLower(want))
	return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: passed,
		Message: fmt.Sprintf("error contains %q = %v", want, passed)}
}

// CheckerCodeClass checks the class digit of the "code" output ("2.05"
// has class 2).
func CheckerCodeClass(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(KeyCode)
	if !ok {
		return missing(key, expected, KeyCode)
	}
	code := valueToString(actual)
	class, _, _ := strings.Cut(code, ".")
	passed := class == valueToString(expected)
	return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: passed,
		Message: fmt.Sprintf("class of %s is %s", code, class)}
}
