package lwm2m

import (
	"bytes"
	"testing"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
)

func TestMatchingResponses(t *testing.T) {
	r := req(coap.POST, "/rd?ep=dev")
	r.MessageID = 0x1337
	r.Token = []byte{1, 2, 3}

	created := Matching(r).Created(coap.Path{"rd", "demo"})
	if created.Type != coap.Acknowledgement || created.MessageID != r.MessageID || !bytes.Equal(created.Token, r.Token) {
		t.Errorf("Created: got %s", created)
	}
	if got := created.Options.LocationPath().String(); got != "/rd/demo" {
		t.Errorf("Location-Path: got %s", got)
	}
	if !ExpectResponse(r, coap.Created).Matches(created) {
		t.Errorf("ExpectResponse: %v", ExpectResponse(r, coap.Created).Diff(created))
	}

	busy := &coap.CodeError{Code: coap.ServiceUnavailable, MaxAge: 5 * time.Second}
	resp := Matching(r).Error(busy)
	if resp.Code != coap.ServiceUnavailable {
		t.Errorf("Error code: got %s", resp.Code)
	}
	if age, ok := resp.Options.MaxAge(); !ok || age != 5 {
		t.Errorf("Max-Age: got %d/%v", age, ok)
	}

	cont := Matching(r).Continue(coap.Block{Num: 2, More: true, SZX: 6})
	blk, ok, err := cont.Options.Block1()
	if !ok || err != nil || blk.Num != 2 {
		t.Errorf("Continue Block1: got %v/%v/%v", blk, ok, err)
	}
}
