package engine

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// placeholder matches "{{ name }}" and "{{ name | filter }}".
var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*(?:\|\s*([a-z]+)\s*)?\}\}`)

// filters transform a saved output before it is substituted.
var filters = map[string]func(any) any{
	"hex": func(v any) any {
		if b, ok := v.([]byte); ok {
			return hex.EncodeToString(b)
		}
		return hex.EncodeToString([]byte(valueToString(v)))
	},
	"len": func(v any) any {
		switch x := v.(type) {
		case []byte:
			return len(x)
		case []any:
			return len(x)
		case map[string]any:
			return len(x)
		}
		return len(valueToString(v))
	},
	"upper": func(v any) any { return strings.ToUpper(valueToString(v)) },
}

// lookup resolves one placeholder match. ok is false for unknown outputs
// and unknown filters.
func lookup(sub []string, state *ExecutionState) (any, bool) {
	v, ok := state.Outputs[sub[1]]
	if !ok {
		return nil, false
	}
	if sub[2] == "" {
		return v, true
	}
	f, ok := filters[sub[2]]
	if !ok {
		return nil, false
	}
	return f(v), true
}

// Interpolate substitutes saved outputs into template. Placeholders that
// cannot be resolved are kept verbatim.
func Interpolate(template string, state *ExecutionState) string {
	if state == nil || !strings.Contains(template, "{{") {
		return template
	}
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		if v, ok := lookup(placeholder.FindStringSubmatch(m), state); ok {
			return valueToString(v)
		}
		return m
	})
}

// InterpolateParams returns a copy of params with every string, at any
// depth, interpolated. A string consisting of a single placeholder is
// replaced by the output value itself, keeping its type.
func InterpolateParams(params map[string]any, state *ExecutionState) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = substitute(v, state)
	}
	return out
}

func substitute(v any, state *ExecutionState) any {
	if state == nil {
		return v
	}
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if loc := placeholder.FindStringSubmatchIndex(s); loc != nil && loc[0] == 0 && loc[1] == len(s) {
			if val, ok := lookup(placeholder.FindStringSubmatch(s), state); ok {
				return val
			}
			return x
		}
		return Interpolate(x, state)
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = substitute(e, state)
		}
		return m
	case []any:
		l := make([]any, len(x))
		for i, e := range x {
			l[i] = substitute(e, state)
		}
		return l
	}
	return v
}

// valueToString renders YAML and step output values. Whole floats print
// without a fraction so that 60 and 60.0 compare equal.
func valueToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprintf("%v", v)
}
