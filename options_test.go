package saw

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithBufferLimitAndReadBufferSize(t *testing.T) {
	loop := NewLoop(WithBufferLimit(8), WithReadBufferSize(4096))
	require.Equal(t, 8, loop.defaultBufferLimit)
	require.Equal(t, 4096, loop.defaultReadBufferSize)
}

func TestParseBufferSize(t *testing.T) {
	n, err := ParseBufferSize("2KiB")
	require.NoError(t, err)
	require.Equal(t, 2048, n)
}

func TestParseBufferSizeRejectsGarbage(t *testing.T) {
	_, err := ParseBufferSize("not-a-size")
	require.Error(t, err)
}

func TestOptionsFromMapAppliesKnownKeys(t *testing.T) {
	opts, err := OptionsFromMap(map[string]any{
		"buffer_limit":     16,
		"read_buffer_size": 8192,
	})
	require.NoError(t, err)
	require.Len(t, opts, 2)

	loop := NewLoop(opts...)
	require.Equal(t, 16, loop.defaultBufferLimit)
	require.Equal(t, 8192, loop.defaultReadBufferSize)
}

func TestOptionsFromMapIgnoresZeroValues(t *testing.T) {
	opts, err := OptionsFromMap(map[string]any{})
	require.NoError(t, err)
	require.Empty(t, opts)
}

func TestSystemRootsDefaultsToNil(t *testing.T) {
	loop := NewLoop()
	pool, err := loop.SystemRoots()
	require.NoError(t, err)
	require.Nil(t, pool)
}
