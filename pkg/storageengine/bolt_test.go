package storageengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltEngineGetPutDelete(t *testing.T) {
	e, err := OpenBoltEngine(t.TempDir())
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	v, err := e.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, e.Delete([]byte("a")))
	v, err = e.Get([]byte("a"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestBoltEngineRange(t *testing.T) {
	e, err := OpenBoltEngine(t.TempDir())
	require.NoError(t, err)
	defer e.Close()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, e.Put([]byte(k), []byte(k)))
	}

	var seen []string
	require.NoError(t, e.Range([]byte("a"), []byte("c"), func(key, value []byte) bool {
		seen = append(seen, string(key))
		return true
	}))
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestBoltEngineRangeStopsEarly(t *testing.T) {
	e, err := OpenBoltEngine(t.TempDir())
	require.NoError(t, err)
	defer e.Close()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, e.Put([]byte(k), []byte(k)))
	}

	var seen []string
	require.NoError(t, e.Range(nil, nil, func(key, value []byte) bool {
		seen = append(seen, string(key))
		return len(seen) < 1
	}))
	assert.Equal(t, []string{"a"}, seen)
}

func TestBoltEngineRestore(t *testing.T) {
	e, err := OpenBoltEngine(t.TempDir())
	require.NoError(t, err)
	defer e.Close()

	ch := make(chan ChangelogEntry, 2)
	ch <- ChangelogEntry{Key: []byte("a"), Value: []byte("1")}
	ch <- ChangelogEntry{Key: []byte("b"), Value: []byte("2")}
	close(ch)

	require.NoError(t, ApplyChangelog(e, ch))

	v, err := e.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}
