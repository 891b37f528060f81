package serde

import "fmt"

// RawCodec passes []byte through unchanged. Used to bind a store's
// changelog stream when the store already deals in raw bytes (as
// storageengine.Engine does), so taskstorage doesn't pay for a decode
// round trip it doesn't need.
type RawCodec struct{}

func (RawCodec) Encode(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("serde: rawcodec: %T is not []byte", v)
	}
	return b, nil
}

func (RawCodec) Decode(b []byte) (any, error) {
	return b, nil
}
