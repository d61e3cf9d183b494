package engine

import (
	"context"
	"testing"
)

func TestStandardCheckers(t *testing.T) {
	state := NewExecutionState(context.Background())
	state.Set(KeyValue, uint32(25))
	state.Set(KeyPayload, "</1/0>,</3/0>")
	state.Set(KeyCode, "2.05")

	tests := []struct {
		name     string
		checker  ExpectChecker
		expected any
		want     bool
	}{
		{"greater", CheckerValueGreaterThan, 10, true},
		{"not greater", CheckerValueGreaterThan, 25, false},
		{"less", CheckerValueLessThan, 30.5, true},
		{"range map", CheckerValueInRange, map[string]any{"min": 20, "max": 30}, true},
		{"range list", CheckerValueInRange, []any{26, 30}, false},
		{"range malformed", CheckerValueInRange, "20..30", false},
		{"payload", CheckerPayloadContains, "</3/0>", true},
		{"payload missing", CheckerPayloadContains, "</5/0>", false},
		{"code class", CheckerCodeClass, 2, true},
		{"code class mismatch", CheckerCodeClass, "4", false},
		{"non numeric", CheckerValueGreaterThan, "ten", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.checker("k", tt.expected, state); got.Passed != tt.want {
				t.Errorf("got %v (%s), want %v", got.Passed, got.Message, tt.want)
			}
		})
	}
}

func TestSaveAsAndDefault(t *testing.T) {
	state := NewExecutionState(context.Background())
	state.Set(KeyValue, "abc")
	if r := CheckerSaveAs("save_as", "saved", state); !r.Passed {
		t.Fatal("save_as should pass")
	}
	if r := defaultChecker("{{ saved }}", "abc", state); !r.Passed {
		t.Errorf("default via reference: %s", r.Message)
	}
	if r := defaultChecker("saved", "present", state); !r.Passed {
		t.Errorf("present: %s", r.Message)
	}
	state.Set("seq", uint32(3))
	if r := defaultChecker("seq", 3, state); !r.Passed {
		t.Errorf("numeric: %s", r.Message)
	}
	if r := defaultChecker("seq", 4, state); r.Passed {
		t.Error("numeric mismatch should fail")
	}
}

func TestInterpolate(t *testing.T) {
	state := NewExecutionState(context.Background())
	state.Set("loc", "/rd/demo")
	state.Set("seq", 3)
	state.Set("ratio", 0.5)

	if got := Interpolate("{{ loc }}/x", state); got != "/rd/demo/x" {
		t.Errorf("Interpolate: got %q", got)
	}
	if got := Interpolate("{{ missing }}", state); got != "{{ missing }}" {
		t.Errorf("undefined: got %q", got)
	}

	params := InterpolateParams(map[string]any{
		"seq":    "{{ seq }}",
		"label":  "seq={{seq}} r={{ ratio }}",
		"nested": map[string]any{"path": "{{ loc }}"},
		"list":   []any{"{{ seq }}", 7},
	}, state)
	if params["seq"] != 3 {
		t.Errorf("typed: got %#v", params["seq"])
	}
	if params["label"] != "seq=3 r=0.5" {
		t.Errorf("mixed: got %#v", params["label"])
	}
	if params["nested"].(map[string]any)["path"] != "/rd/demo" {
		t.Errorf("nested: got %#v", params["nested"])
	}
	if params["list"].([]any)[0] != 3 {
		t.Errorf("list: got %#v", params["list"])
	}
	if InterpolateParams(nil, state) != nil {
		t.Error("nil params should stay nil")
	}
}

func TestInterpolateFilters(t *testing.T) {
	state := NewExecutionState(context.Background())
	state.Set("token", []byte{0xca, 0xfe})
	state.Set("ep", "node-1")

	if got := Interpolate("t={{ token | hex }}", state); got != "t=cafe" {
		t.Errorf("hex: got %q", got)
	}
	if got := Interpolate("{{ep|upper}}", state); got != "NODE-1" {
		t.Errorf("upper: got %q", got)
	}
	if got := Interpolate("{{ ep | bogus }}", state); got != "{{ ep | bogus }}" {
		t.Errorf("unknown filter: got %q", got)
	}
	params := InterpolateParams(map[string]any{"n": "{{ token | len }}"}, state)
	if params["n"] != 2 {
		t.Errorf("len: got %#v", params["n"])
	}
}

func TestSuiteResultFailed(t *testing.T) {
	r := &SuiteResult{Results: []*TestResult{
		{Passed: true},
		{Passed: false},
		{Skipped: true},
	}}
	if got := r.Failed(); len(got) != 1 || got[0] != r.Results[1] {
		t.Errorf("Failed = %v, want the second result", got)
	}
}
