package saw

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArrayBufferPushPopRoundTrip(t *testing.T) {
	b := NewArrayBuffer(4)
	require.Equal(t, 0, b.Len())
	require.Equal(t, 4, b.Space())

	require.NoError(t, PushBytes(b, []byte{1, 2, 3}))
	require.Equal(t, 3, b.Len())

	got, err := PopBytes(b, 3)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, got)
	require.Equal(t, 0, b.Len())
}

func TestArrayBufferGrowsOnRequireSpace(t *testing.T) {
	b := NewArrayBuffer(2)
	require.NoError(t, PushBytes(b, []byte("hello world")))
	got, err := PopBytes(b, 11)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
}

func TestPopBytesReportsShortBuffer(t *testing.T) {
	b := NewArrayBuffer(8)
	require.NoError(t, PushBytes(b, []byte{1}))
	_, err := PopBytes(b, 2)
	require.Error(t, err)
	require.True(t, err.(Error).Recoverable())
}

func TestRingBufferWrapsAround(t *testing.T) {
	r := NewRingBuffer(4)

	require.NoError(t, PushBytes(r, []byte{1, 2, 3}))
	got, err := PopBytes(r, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, got)

	// Write crosses the end of the backing array; the stored run now wraps.
	require.NoError(t, PushBytes(r, []byte{4, 5, 6}))
	require.Equal(t, 4, r.Len())
	require.Equal(t, 0, r.Space())

	got, err = PopBytes(r, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{3, 4, 5, 6}, got)
	require.Equal(t, 0, r.Len())
}

func TestRingBufferRefusesOversizedWrite(t *testing.T) {
	r := NewRingBuffer(2)
	err := PushBytes(r, []byte{1, 2, 3})
	require.Error(t, err)
	require.True(t, err.(Error).Recoverable())
	require.Equal(t, 0, r.Len())
}

func TestRingBufferFullAndEmptyStates(t *testing.T) {
	r := NewRingBuffer(2)
	require.NoError(t, PushBytes(r, []byte{9, 8}))
	require.Equal(t, 0, r.Space())
	require.Nil(t, r.WriteSegment())

	got, err := PopBytes(r, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{9, 8}, got)
	require.Equal(t, 2, r.Space())
}

func TestChainBufferSpansLinks(t *testing.T) {
	c := NewChainBuffer(4)
	require.NoError(t, PushBytes(c, []byte("abcd")))
	require.NoError(t, PushBytes(c, []byte("efgh")))
	require.Equal(t, 8, c.Len())

	got, err := PopBytes(c, 6)
	require.NoError(t, err)
	require.Equal(t, "abcdef", string(got))
	require.Equal(t, 2, c.Len())
}

func TestBufferViewDoesNotConsume(t *testing.T) {
	b := NewArrayBuffer(8)
	require.NoError(t, PushBytes(b, []byte{0xde, 0xad}))

	v := NewBufferView(b)
	got, err := PopBytes(v, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad}, got)
	require.Equal(t, 0, v.Len())

	// The base still holds everything the view walked over.
	require.Equal(t, 2, b.Len())
}

func TestBufferViewIsReadOnly(t *testing.T) {
	v := NewBufferView(NewArrayBuffer(4))
	require.Error(t, v.RequireSpace(1))
	require.Equal(t, 0, v.Space())
}

func TestBufferToHex(t *testing.T) {
	b := NewArrayBuffer(4)
	require.NoError(t, PushBytes(b, []byte{0xca, 0xfe}))
	require.Equal(t, "cafe", BufferToHex(b))
	require.Equal(t, 2, b.Len())
}

func TestLoopNewReadBufferHonorsOption(t *testing.T) {
	loop := NewLoop(WithReadBufferSize(128))
	b := loop.NewReadBuffer()
	require.Equal(t, 128, b.Space())
}
