package runner

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/internal/harness/engine"
	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/lwm2m"
)

// defaultStepWait bounds receive operations without an explicit timeout.
const defaultStepWait = 5 * time.Second

// paramString returns a parameter as a string. Non-string YAML scalars
// are formatted.
func paramString(params map[string]any, key, defaultVal string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return defaultVal
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// paramInt extracts an integer parameter, handling the numeric types
// YAML v3 may produce.
func paramInt(params map[string]any, key string, defaultVal int) int {
	f, ok := engine.ToFloat64(params[key])
	if !ok {
		return defaultVal
	}
	return int(f)
}

func paramBool(params map[string]any, key string, defaultVal bool) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
	}
	return defaultVal
}

// paramDuration accepts a duration string ("3s") or a number of
// milliseconds.
func paramDuration(params map[string]any, key string, defaultVal time.Duration) time.Duration {
	switch v := params[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case nil:
	default:
		if ms, ok := engine.ToFloat64(v); ok {
			return time.Duration(ms * float64(time.Millisecond))
		}
	}
	return defaultVal
}

// waitBudget returns the timeout parameter, capped by the step deadline.
func waitBudget(ctx context.Context, params map[string]any) time.Duration {
	d := paramDuration(params, ParamTimeout, defaultStepWait)
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < d {
			d = remaining
		}
	}
	return d
}

func paramPath(params map[string]any) (lwm2m.Path, error) {
	s, ok := params[ParamPath].(string)
	if !ok || s == "" {
		return lwm2m.Path{}, fmt.Errorf("missing %s parameter", ParamPath)
	}
	return lwm2m.ParsePath(s)
}

// paramFormat parses a content format given as a number or media type.
func paramFormat(params map[string]any, key string) (coap.ContentFormat, bool, error) {
	if _, ok := params[key]; !ok {
		return 0, false, nil
	}
	cf, err := coap.ParseContentFormat(paramString(params, key, ""))
	if err != nil {
		return 0, false, err
	}
	return cf, true, nil
}

// paramPayload returns payload (text) or payload_hex (hex bytes).
func paramPayload(params map[string]any) ([]byte, error) {
	if h, ok := params[ParamPayloadHex]; ok {
		s := strings.NewReplacer(" ", "", ":", "").Replace(fmt.Sprint(h))
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ParamPayloadHex, err)
		}
		return b, nil
	}
	if _, ok := params[ParamPayload]; ok {
		return []byte(paramString(params, ParamPayload, "")), nil
	}
	return nil, nil
}

// paramAttributes builds Write-Attributes parameters from a map. A null
// value removes the attribute.
func paramAttributes(params map[string]any) (lwm2m.Attributes, error) {
	m, ok := params[ParamAttributes].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("missing %s parameter", ParamAttributes)
	}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	queries := make([]string, 0, len(m))
	for _, k := range names {
		if m[k] == nil {
			queries = append(queries, k)
			continue
		}
		queries = append(queries, k+"="+paramString(m, k, ""))
	}
	return lwm2m.ParseAttributes(queries)
}
