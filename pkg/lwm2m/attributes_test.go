package lwm2m

import (
	"testing"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
)

func TestParseAttributes(t *testing.T) {
	attrs, err := ParseAttributes([]string{"pmin=10", "pmax=60", "gt=20.5", "st", "con=1"})
	if err != nil {
		t.Fatalf("ParseAttributes: %v", err)
	}
	if v, ok := attrs.Uint(AttrPMin); !ok || v != 10 {
		t.Errorf("pmin: got %d/%v", v, ok)
	}
	if v, ok := attrs.Float(AttrGT); !ok || v != 20.5 {
		t.Errorf("gt: got %v/%v", v, ok)
	}
	if a, ok := attrs.Get(AttrST); !ok || !a.Unset {
		t.Errorf("st should be an unset parameter: %+v", a)
	}
	if got := attrs.Queries(); len(got) != 5 || got[3] != "st" {
		t.Errorf("Queries: got %v", got)
	}
}

func TestParseAttributesInvalid(t *testing.T) {
	tests := [][]string{
		{"bogus=1"},
		{"pmin=-1"},
		{"gt=abc"},
		{"con=2"},
		{"pmin=60", "pmax=10"},
	}
	for _, qs := range tests {
		_, err := ParseAttributes(qs)
		if coap.CodeOf(err) != coap.BadRequest {
			t.Errorf("ParseAttributes(%v): got %v, want 4.00", qs, err)
		}
	}
}
