package registry

import (
	"testing"

	"github.com/cuemby/streamcontainer/pkg/config"
	"github.com/cuemby/streamcontainer/pkg/consumer"
	"github.com/cuemby/streamcontainer/pkg/serde"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolveUnknownNameErrors(t *testing.T) {
	r := New()
	_, err := r.Consumers.Resolve("kafka")
	require.Error(t, err)
	var unknown *UnknownFactoryError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "kafka", unknown.Name)
}

func TestRegistryRegisterThenResolve(t *testing.T) {
	r := New()
	r.Consumers.Register("memory", func(cfg config.View) (consumer.SystemConsumer, error) {
		return nil, nil
	})

	factory, err := r.Consumers.Resolve("memory")
	require.NoError(t, err)
	assert.NotNil(t, factory)
}

func TestValidateNamesCollectsAllErrors(t *testing.T) {
	r := New()
	r.Codecs.Register("json", func(cfg config.View) (serde.Codec, error) { return serde.JSONCodec{}, nil })

	errs := ValidateNames("serde", []string{"json", "missing"}, func(name string) error {
		_, err := r.Codecs.Resolve(name)
		return err
	})
	require.Len(t, errs, 1)
}
