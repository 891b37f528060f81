package serde

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// ProtoCodec encodes/decodes google.golang.org/protobuf messages. Decode
// needs a prototype message to unmarshal into since protobuf wire bytes
// carry no type information of their own; New must return a fresh
// zero-value instance each call.
type ProtoCodec struct {
	New func() proto.Message
}

func (c ProtoCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("serde: protocodec: %T is not a proto.Message", v)
	}
	return proto.Marshal(msg)
}

func (c ProtoCodec) Decode(b []byte) (any, error) {
	if c.New == nil {
		return nil, fmt.Errorf("serde: protocodec: no prototype constructor configured")
	}
	msg := c.New()
	if err := proto.Unmarshal(b, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
