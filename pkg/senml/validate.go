package senml

import (
	"fmt"
	"strings"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/lwm2m"
)

// ValidateOption adjusts ValidateWrite.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	isMultiple func(lwm2m.Path) bool
}

// WithMultipleResources tells ValidateWrite which resource paths are
// multiple-instance, so scalar values written to them are refused.
func WithMultipleResources(fn func(lwm2m.Path) bool) ValidateOption {
	return func(c *validateConfig) { c.isMultiple = fn }
}

// ValidateWrite checks a pack carried by a Write (or, with the root path
// as target, Write-Composite and Send). Every violation is a 4.00
// CodeError:
//   - a BaseName pointing outside the target's object, or outside its
//     instance when the target is instance-scoped or deeper
//   - an effective name that is not a path of at most four segments or
//     that lies outside the target
//   - a record carrying no value or more than one value
//   - a value addressed to an Object or Instance path, or to a
//     multiple-instance resource
func ValidateWrite(target lwm2m.Path, p Pack, opts ...ValidateOption) error {
	var cfg validateConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	for i, r := range p {
		if r.BaseName == "" {
			continue
		}
		if err := checkBaseName(target, r.BaseName); err != nil {
			return invalid("record %d: %v", i, err)
		}
	}

	resolved, err := p.Resolve()
	if err != nil {
		return err
	}
	for i, r := range resolved {
		if !target.Contains(r.Path) {
			return invalid("record %d: %s is outside %s", i, r.Path, target)
		}
		switch n := r.Record.ValueCount(); {
		case n == 0:
			return invalid("record %d: %s has no value", i, r.Path)
		case n > 1:
			return invalid("record %d: %s has %d values", i, r.Path, n)
		}
		switch r.Path.Kind() {
		case lwm2m.PathResource:
			if cfg.isMultiple != nil && cfg.isMultiple(r.Path) {
				return invalid("record %d: scalar value for multiple resource %s", i, r.Path)
			}
		case lwm2m.PathResourceInstance:
		default:
			return invalid("record %d: scalar value for %s path %s", i, r.Path.Kind(), r.Path)
		}
	}
	return nil
}

// checkBaseName compares the complete segments of a base name with the
// target. A base name not ending in "/" may be continued by record names,
// so its last segment is ignored.
func checkBaseName(target lwm2m.Path, bn string) error {
	if !strings.HasPrefix(bn, "/") {
		return fmt.Errorf("base name %q has no leading slash", bn)
	}
	segs := strings.Split(strings.TrimPrefix(bn, "/"), "/")
	segs = segs[:len(segs)-1]
	if len(segs) > lwm2m.MaxPathDepth {
		return fmt.Errorf("base name %q is too deep", bn)
	}
	base, err := lwm2m.FromCoAP(coap.Path(segs))
	if err != nil {
		return fmt.Errorf("base name %q: %w", bn, err)
	}

	depth := min(target.Len(), 2, base.Len())
	for i := 0; i < depth; i++ {
		b, _ := base.ID(i)
		t, _ := target.ID(i)
		if b != t {
			return fmt.Errorf("base name %q is outside %s", bn, target)
		}
	}
	return nil
}
