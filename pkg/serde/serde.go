// Package serde defines the pluggable serialization contracts used to
// turn wire bytes into envelope keys/values and back, plus the
// registry that binds serde instances to systems, streams, and stores.
package serde

import (
	"fmt"
	"sync"

	"github.com/cuemby/streamcontainer/pkg/model"
)

// Codec converts between wire bytes and the in-memory representation a
// task works with.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
}

// Registry holds named codecs and the key/value serde bindings for
// every system, stream, and store the task touches. The most specific
// binding wins: a stream-level binding overrides its system-level
// default, and a changelog stream's binding is looked up under its
// owning store's name rather than its system/stream pair.
type Registry struct {
	mu sync.RWMutex

	codecs map[string]Codec

	systemKey map[string]Codec
	systemMsg map[string]Codec

	streamKey map[model.SystemStream]Codec
	streamMsg map[model.SystemStream]Codec

	storeKey map[string]Codec
	storeMsg map[string]Codec

	changelogStreams map[model.SystemStream]string // stream -> owning store name
}

// NewRegistry returns an empty Registry pre-populated with the "json"
// codec. ProtoCodec isn't pre-registered since it needs a per-message
// prototype constructor; callers register it under whatever name their
// config references once they know the concrete message type.
func NewRegistry() *Registry {
	r := &Registry{
		codecs:           make(map[string]Codec),
		systemKey:        make(map[string]Codec),
		systemMsg:        make(map[string]Codec),
		streamKey:        make(map[model.SystemStream]Codec),
		streamMsg:        make(map[model.SystemStream]Codec),
		storeKey:         make(map[string]Codec),
		storeMsg:         make(map[string]Codec),
		changelogStreams: make(map[model.SystemStream]string),
	}
	r.RegisterCodec("json", JSONCodec{})
	return r
}

// RegisterCodec makes a named codec available for binding. Re-registering
// an existing name replaces it.
func (r *Registry) RegisterCodec(name string, c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[name] = c
}

// Codec looks up a registered codec by name.
func (r *Registry) Codec(name string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[name]
	if !ok {
		return nil, fmt.Errorf("serde: unknown codec %q", name)
	}
	return c, nil
}

// BindSystem sets the default key/value codecs for every stream on a
// system, used when no stream-specific binding exists.
func (r *Registry) BindSystem(system string, key, value Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key != nil {
		r.systemKey[system] = key
	}
	if value != nil {
		r.systemMsg[system] = value
	}
}

// BindStream sets key/value codecs for a specific system/stream pair,
// overriding the system-level default.
func (r *Registry) BindStream(ss model.SystemStream, key, value Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key != nil {
		r.streamKey[ss] = key
	}
	if value != nil {
		r.streamMsg[ss] = value
	}
}

// BindStore sets key/value codecs for a local store, used for its
// changelog stream instead of whatever binding that stream would
// otherwise resolve to.
func (r *Registry) BindStore(store string, key, value Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key != nil {
		r.storeKey[store] = key
	}
	if value != nil {
		r.storeMsg[store] = value
	}
}

// MarkChangelog records that ss is the changelog stream for store,
// so resolution for ss prefers the store's bindings.
func (r *Registry) MarkChangelog(ss model.SystemStream, store string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changelogStreams[ss] = store
}

func (r *Registry) resolve(ss model.SystemStream) (keyCodec, msgCodec Codec, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if store, ok := r.changelogStreams[ss]; ok {
		keyCodec, msgCodec = r.storeKey[store], r.storeMsg[store]
	}
	if keyCodec == nil {
		keyCodec = r.streamKey[ss]
	}
	if msgCodec == nil {
		msgCodec = r.streamMsg[ss]
	}
	if keyCodec == nil {
		keyCodec = r.systemKey[ss.System]
	}
	if msgCodec == nil {
		msgCodec = r.systemMsg[ss.System]
	}
	if keyCodec == nil || msgCodec == nil {
		return nil, nil, fmt.Errorf("serde: no key/value serde bound for stream %s", ss)
	}
	return keyCodec, msgCodec, nil
}

// Manager applies a Registry's bindings to whole envelopes.
type Manager struct {
	registry *Registry
}

// NewManager wraps a Registry for envelope-level encode/decode.
func NewManager(r *Registry) *Manager {
	return &Manager{registry: r}
}

// Registry returns the underlying Registry, so callers that need to
// add bindings after construction (e.g. taskstorage binding a store's
// changelog stream to RawCodec) can reach it without re-plumbing a
// second reference through every constructor.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// DecodeEnvelope decodes the raw key/value bytes of env in place,
// using the most specific serde binding for env.SSP.SystemStream().
func (m *Manager) DecodeEnvelope(env model.Envelope, rawKey, rawValue []byte) (model.Envelope, error) {
	keyCodec, msgCodec, err := m.registry.resolve(env.SSP.SystemStream())
	if err != nil {
		return model.Envelope{}, err
	}
	if rawKey != nil {
		k, err := keyCodec.Decode(rawKey)
		if err != nil {
			return model.Envelope{}, &DecodeError{Stream: env.SSP.SystemStream(), Field: "key", Cause: err}
		}
		env.Key = k
	}
	if rawValue != nil {
		v, err := msgCodec.Decode(rawValue)
		if err != nil {
			return model.Envelope{}, &DecodeError{Stream: env.SSP.SystemStream(), Field: "value", Cause: err}
		}
		env.Value = v
	}
	return env, nil
}

// EncodeEnvelope encodes an outbound envelope's key/value to wire
// bytes using the binding for its destination stream.
func (m *Manager) EncodeEnvelope(out model.OutboundEnvelope) (key, value []byte, err error) {
	keyCodec, msgCodec, err := m.registry.resolve(out.Destination)
	if err != nil {
		return nil, nil, err
	}
	if out.Key != nil {
		if key, err = keyCodec.Encode(out.Key); err != nil {
			return nil, nil, fmt.Errorf("serde: encode key for %s: %w", out.Destination, err)
		}
	}
	if out.Value != nil {
		if value, err = msgCodec.Encode(out.Value); err != nil {
			return nil, nil, fmt.Errorf("serde: encode value for %s: %w", out.Destination, err)
		}
	}
	return key, value, nil
}
