package saw

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeRW is a scriptable [rawReadWriter]: each call to Read/Write pops the
// next scripted response, letting tests drive the pumpRead/pumpWrite state
// machines without a real socket, per stream.go's design note.
type fakeRW struct {
	reads  []fakeIO
	writes []fakeIO
	closed bool
}

type fakeIO struct {
	data []byte
	err  error
}

func (f *fakeRW) Read(buf []byte) (int, error) {
	if len(f.reads) == 0 {
		return 0, errAgain
	}
	step := f.reads[0]
	f.reads = f.reads[1:]
	if step.err != nil {
		return 0, step.err
	}
	n := copy(buf, step.data)
	return n, nil
}

func (f *fakeRW) Write(buf []byte) (int, error) {
	if len(f.writes) == 0 {
		return 0, errAgain
	}
	step := f.writes[0]
	f.writes = f.writes[1:]
	if step.err != nil {
		return 0, step.err
	}
	n := step.data[0]
	if int(n) > len(buf) {
		n = byte(len(buf))
	}
	return int(n), nil
}

func (f *fakeRW) Close() error {
	f.closed = true
	return nil
}

func TestStreamReadAsyncCompletesAcrossMultipleReads(t *testing.T) {
	loop := NewLoop()
	rw := &fakeRW{reads: []fakeIO{
		{data: []byte("ab")},
		{err: errAgain},
		{data: []byte("cd")},
	}}
	s := newStream(loop, nil, rw, -1)

	buf := make([]byte, 4)
	require.NoError(t, s.ReadAsync(buf, 4))
	loop.Poll()

	r := Take(s.ReadDone())
	require.True(t, r.IsError(), "should still be waiting after the would-block step")

	s.pumpRead()
	loop.Poll()

	r2 := Take(s.ReadDone())
	require.True(t, r2.IsValue())
	require.Equal(t, 4, r2.Get())
	require.Equal(t, "abcd", string(buf))
}

func TestStreamReadAsyncCompletesOnceMinSatisfied(t *testing.T) {
	loop := NewLoop()
	rw := &fakeRW{reads: []fakeIO{{data: []byte("abcdef")}}}
	s := newStream(loop, nil, rw, -1)

	buf := make([]byte, 6)
	require.NoError(t, s.ReadAsync(buf, 3))
	loop.Poll()

	r := Take(s.ReadDone())
	require.True(t, r.IsValue())
	require.Equal(t, 6, r.Get())
}

func TestStreamReadAsyncRejectsConcurrentTask(t *testing.T) {
	loop := NewLoop()
	rw := &fakeRW{}
	s := newStream(loop, nil, rw, -1)

	require.NoError(t, s.ReadAsync(make([]byte, 4), 4))
	err := s.ReadAsync(make([]byte, 4), 4)
	require.Error(t, err)
}

func TestStreamReadAsyncDisconnectOnZeroRead(t *testing.T) {
	loop := NewLoop()
	rw := &fakeRW{reads: []fakeIO{{data: nil}}}
	s := newStream(loop, nil, rw, -1)

	require.NoError(t, s.ReadAsync(make([]byte, 4), 1))
	loop.Poll()

	r := Take(s.ReadDone())
	require.True(t, r.IsError())
	require.Equal(t, CodeDisconnected, r.Err().Code())
	require.True(t, s.disconnected)
}

func TestStreamWriteAsyncDrainsUntilComplete(t *testing.T) {
	loop := NewLoop()
	rw := &fakeRW{writes: []fakeIO{
		{data: []byte{2}},
		{err: errAgain},
		{data: []byte{3}},
	}}
	s := newStream(loop, nil, rw, -1)

	buf := []byte("hello")
	require.NoError(t, s.WriteAsync(buf))
	loop.Poll()

	r := Take(s.WriteDone())
	require.True(t, r.IsError())

	s.pumpWrite()
	loop.Poll()

	r2 := Take(s.WriteDone())
	require.True(t, r2.IsValue())
	require.Equal(t, 5, r2.Get())
}

// TestStreamReadAsyncBufferCommitsIntoBuffer drives a read task whose
// target is a ByteBuffer: bytes land in the buffer's write segment and are
// committed (WriteAdvance) only when the task completes.
func TestStreamReadAsyncBufferCommitsIntoBuffer(t *testing.T) {
	loop := NewLoop()
	rw := &fakeRW{reads: []fakeIO{{data: []byte("abcd")}}}
	s := newStream(loop, nil, rw, -1)

	buf := NewArrayBuffer(8)
	require.NoError(t, s.ReadAsyncBuffer(buf, 4))
	loop.Poll()

	r := Take(s.ReadDone())
	require.True(t, r.IsValue())
	require.Equal(t, 4, r.Get())
	require.Equal(t, 4, buf.Len())

	got, err := PopBytes(buf, 4)
	require.NoError(t, err)
	require.Equal(t, "abcd", string(got))
}

func TestStreamWriteAsyncBufferDrainsBuffer(t *testing.T) {
	loop := NewLoop()
	rw := &fakeRW{writes: []fakeIO{{data: []byte{5}}}}
	s := newStream(loop, nil, rw, -1)

	buf := NewArrayBuffer(8)
	require.NoError(t, PushBytes(buf, []byte("hello")))
	require.NoError(t, s.WriteAsyncBuffer(buf))
	loop.Poll()

	r := Take(s.WriteDone())
	require.True(t, r.IsValue())
	require.Equal(t, 5, r.Get())
	require.Equal(t, 0, buf.Len())
}

func TestStreamCloseReleasesTransport(t *testing.T) {
	loop := NewLoop()
	rw := &fakeRW{}
	s := newStream(loop, nil, rw, -1)
	require.NoError(t, s.Close())
	require.True(t, rw.closed)
}
