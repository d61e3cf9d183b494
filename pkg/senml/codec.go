package senml

import (
	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
)

// Decode decodes a payload of the given content format.
func Decode(cf coap.ContentFormat, data []byte) (Pack, error) {
	switch cf {
	case coap.SenMLCBOR:
		return DecodeCBOR(data)
	case coap.SenMLJSON:
		return DecodeJSON(data)
	}
	return nil, coap.NewCodeError(coap.UnsupportedContentFormat, "senml: content format %d", cf)
}

// Encode encodes a pack in the given content format.
func Encode(cf coap.ContentFormat, p Pack) ([]byte, error) {
	switch cf {
	case coap.SenMLCBOR:
		return EncodeCBOR(p)
	case coap.SenMLJSON:
		return EncodeJSON(p)
	}
	return nil, coap.NewCodeError(coap.UnsupportedContentFormat, "senml: content format %d", cf)
}
