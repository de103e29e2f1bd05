// Package rpctransport exposes the resource manager's RPC surface over
// gRPC without a protoc step: messages are plain Go structs marshaled by a
// custom JSON encoding.Codec, and the service is described by a hand-built
// grpc.ServiceDesc. A fencing-check unary interceptor, built with
// go-grpc-middleware chaining, rejects requests carrying a stale or absent
// fencing token before they ever reach the resource manager's actor loop.
package rpctransport

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
