// Package assertions checks received CoAP packets and LwM2M messages
// against scenario expectations.
package assertions

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/lwm2m"
)

// Result represents the outcome of an assertion.
type Result struct {
	// Passed indicates if the assertion passed.
	Passed bool

	// Message describes the assertion result.
	Message string

	// Expected and Actual are kept for error messages.
	Expected any
	Actual   any
}

// Pass creates a passing result.
func Pass(message string) *Result {
	return &Result{Passed: true, Message: message}
}

// Fail creates a failing result.
func Fail(message string, expected, actual any) *Result {
	return &Result{Message: message, Expected: expected, Actual: actual}
}

// Err returns nil for a passing result and an error otherwise.
func (r *Result) Err() error {
	if r.Passed {
		return nil
	}
	return fmt.Errorf("%s (expected %v, got %v)", r.Message, r.Expected, r.Actual)
}

// All returns the first failing result, or a pass.
func All(results ...*Result) *Result {
	for _, r := range results {
		if !r.Passed {
			return r
		}
	}
	return Pass(fmt.Sprintf("%d checks passed", len(results)))
}

// Equal asserts that two values are equal.
func Equal(expected, actual any) *Result {
	if reflect.DeepEqual(expected, actual) {
		return Pass(fmt.Sprintf("values are equal: %v", expected))
	}
	return Fail("values are not equal", expected, actual)
}

// Contains asserts that a string, slice or map contains element.
func Contains(container, element any) *Result {
	cv := reflect.ValueOf(container)
	switch cv.Kind() {
	case reflect.String:
		e := fmt.Sprintf("%v", element)
		if strings.Contains(cv.String(), e) {
			return Pass(fmt.Sprintf("string contains %q", e))
		}
		return Fail(fmt.Sprintf("string does not contain %q", e), e, cv.String())
	case reflect.Slice, reflect.Array:
		for i := 0; i < cv.Len(); i++ {
			if reflect.DeepEqual(cv.Index(i).Interface(), element) {
				return Pass(fmt.Sprintf("slice contains %v", element))
			}
		}
		return Fail("slice does not contain element", element, container)
	case reflect.Map:
		if cv.MapIndex(reflect.ValueOf(element)).IsValid() {
			return Pass(fmt.Sprintf("map contains key %v", element))
		}
		return Fail("map does not contain key", element, container)
	}
	return Fail(fmt.Sprintf("cannot check containment in %T", container), element, container)
}

// NoError asserts that err is nil.
func NoError(err error) *Result {
	if err == nil {
		return Pass("no error")
	}
	return Fail("unexpected error", nil, err)
}

// ErrorContains asserts that err mentions substr.
func ErrorContains(err error, substr string) *Result {
	if err == nil {
		return Fail("expected error", substr, nil)
	}
	if strings.Contains(err.Error(), substr) {
		return Pass(fmt.Sprintf("error contains %q", substr))
	}
	return Fail(fmt.Sprintf("error does not contain %q", substr), substr, err.Error())
}

// HasCode asserts the code of p. want is dotted ("2.05") or a name.
func HasCode(p *coap.Packet, want string) *Result {
	code, err := coap.ParseCode(want)
	if err != nil {
		return Fail(err.Error(), want, p.Code.Dotted())
	}
	if p.Code == code {
		return Pass(fmt.Sprintf("code is %s", code))
	}
	return Fail("unexpected code", code.String(), p.Code.String())
}

// HasType asserts the message type of p ("CON", "NON", "ACK", "RST").
func HasType(p *coap.Packet, want string) *Result {
	if strings.EqualFold(p.Type.String(), want) {
		return Pass(fmt.Sprintf("type is %s", p.Type))
	}
	return Fail("unexpected type", want, p.Type.String())
}

// IsKind asserts the recognized LwM2M operation of msg.
func IsKind(msg *lwm2m.Message, want string) *Result {
	kind, err := lwm2m.ParseKind(want)
	if err != nil {
		return Fail(err.Error(), want, msg.Kind.String())
	}
	if msg.Kind == kind {
		return Pass(fmt.Sprintf("operation is %s", kind))
	}
	return Fail("unexpected operation", kind.String(), msg.Kind.String())
}

// HasPath asserts the Uri-Path of p.
func HasPath(p *coap.Packet, want string) *Result {
	got := p.Path().String()
	if coap.ParsePath(want).Equal(p.Path()) {
		return Pass(fmt.Sprintf("path is %s", got))
	}
	return Fail("unexpected path", want, got)
}

// HasContentFormat asserts the Content-Format option of p.
func HasContentFormat(p *coap.Packet, want string) *Result {
	cf, err := coap.ParseContentFormat(want)
	if err != nil {
		return Fail(err.Error(), want, nil)
	}
	got, ok := p.Options.ContentFormat()
	if !ok {
		return Fail("no Content-Format", cf.String(), nil)
	}
	if got == cf {
		return Pass(fmt.Sprintf("content format is %s", cf))
	}
	return Fail("unexpected content format", cf.String(), got.String())
}

// HasQuery asserts that p carries the Uri-Query key, with value when
// value is not empty.
func HasQuery(p *coap.Packet, key, value string) *Result {
	got, ok := p.Options.Query(key)
	switch {
	case !ok:
		return Fail(fmt.Sprintf("no query %q", key), key, p.Options.Queries())
	case value != "" && got != value:
		return Fail(fmt.Sprintf("query %q", key), value, got)
	}
	return Pass(fmt.Sprintf("query %s=%s", key, got))
}

// PayloadEquals asserts the payload bytes of p.
func PayloadEquals(p *coap.Packet, want []byte) *Result {
	if bytes.Equal(p.Payload, want) {
		return Pass(fmt.Sprintf("payload matches (%d bytes)", len(want)))
	}
	return Fail("payload differs", coap.HexDump(want), coap.HexDump(p.Payload))
}

// Matches asserts that p satisfies template t; ANY fields are not
// compared.
func Matches(t *coap.Template, p *coap.Packet) *Result {
	diffs := t.Diff(p)
	if len(diffs) == 0 {
		return Pass("packet matches template")
	}
	return Fail("packet does not match template: "+strings.Join(diffs, "; "), "template", p.String())
}
