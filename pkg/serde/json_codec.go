package serde

import "encoding/json"

// JSONCodec encodes/decodes values as JSON, returning map[string]any
// (or the appropriate scalar type) on Decode since it has no static
// target type to unmarshal into. Tasks that need a concrete struct
// should decode the []byte themselves using a custom Codec, or type
// switch the result's underlying map.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(b []byte) (any, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
