package serde

import (
	"fmt"

	"github.com/cuemby/streamcontainer/pkg/model"
)

// DecodeError wraps a codec failure with the stream and field it
// occurred on, so callers gated by task.drop.deserialization.errors
// can log which stream is producing bad data.
type DecodeError struct {
	Stream model.SystemStream
	Field  string
	Cause  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("serde: decode %s on %s: %v", e.Field, e.Stream, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }
