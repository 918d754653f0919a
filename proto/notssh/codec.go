// ABOUTME: gRPC codec that serves the "proto" content-subtype for notssh messages
// ABOUTME: Falls back to the stock protobuf codec for generated types such as grpc.health.v1

package notssh

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	protoenc "google.golang.org/grpc/encoding/proto"
	"google.golang.org/grpc/mem"
)

// codec replaces the registered "proto" codec. notssh messages encode
// themselves; anything else is handed to the codec that was registered
// before, so generated protobuf services keep working on the same server.
type codec struct {
	fallback encoding.CodecV2
}

func init() {
	encoding.RegisterCodecV2(codec{fallback: encoding.GetCodecV2(protoenc.Name)})
}

func (c codec) Marshal(v any) (mem.BufferSlice, error) {
	if m, ok := v.(Message); ok {
		b := m.AppendProto(nil)
		if len(b) == 0 {
			return nil, nil
		}
		return mem.BufferSlice{mem.SliceBuffer(b)}, nil
	}
	if c.fallback == nil {
		return nil, fmt.Errorf("notssh codec: cannot marshal %T", v)
	}
	return c.fallback.Marshal(v)
}

func (c codec) Unmarshal(data mem.BufferSlice, v any) error {
	if m, ok := v.(Message); ok {
		return m.UnmarshalProto(data.Materialize())
	}
	if c.fallback == nil {
		return fmt.Errorf("notssh codec: cannot unmarshal into %T", v)
	}
	return c.fallback.Unmarshal(data, v)
}

func (codec) Name() string {
	return protoenc.Name
}
