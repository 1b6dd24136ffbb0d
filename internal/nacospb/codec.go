package nacospb

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is passed via grpc.CallContentSubtype on every call so the
// client and the (test) server agree to exchange JSON-encoded Payloads
// instead of protoc-compiled protobuf messages.
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements google.golang.org/grpc/encoding.Codec. Unlike the
// default "proto" codec it accepts any concrete type, not just
// proto.Message — every value sent over RequestService is a *Payload.
type jsonCodec struct{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	p, ok := v.(*Payload)
	if !ok {
		return nil, fmt.Errorf("nacospb: jsonCodec only marshals *Payload, got %T", v)
	}
	return json.Marshal(p)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	p, ok := v.(*Payload)
	if !ok {
		return fmt.Errorf("nacospb: jsonCodec only unmarshals into *Payload, got %T", v)
	}
	return json.Unmarshal(data, p)
}
