//go:build linux

package saw

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestPort(t *testing.T) EventPort {
	t.Helper()
	port, err := NewLinuxEventPort()
	require.NoError(t, err)
	t.Cleanup(func() { _ = port.Close() })
	return port
}

// TestSocketPairRoundTrip: bytes written into one end of a connected
// socket pair are readable from the other.
func TestSocketPairRoundTrip(t *testing.T) {
	loop := NewLoop(WithEventPort(newTestPort(t)))
	port := loop.port

	a, b, err := SocketPair(loop, port)
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.WriteAsync([]byte("ping")))

	readBuf := make([]byte, 4)
	require.NoError(t, b.ReadAsync(readBuf, 4))

	loop.Run(func() bool {
		return a.WriteDone().Queued() > 0 && b.ReadDone().Queued() > 0
	})

	wr := Take(a.WriteDone())
	require.True(t, wr.IsValue())
	require.Equal(t, 4, wr.Get())

	rr := Take(b.ReadDone())
	require.True(t, rr.IsValue())
	require.Equal(t, 4, rr.Get())
	require.Equal(t, "ping", string(readBuf))
}

func TestSocketPairDisconnectNotification(t *testing.T) {
	loop := NewLoop(WithEventPort(newTestPort(t)))
	port := loop.port

	a, b, err := SocketPair(loop, port)
	require.NoError(t, err)
	defer b.Close()

	disconnectConv, err := b.OnReadDisconnected()
	require.NoError(t, err)

	require.NoError(t, a.Close())

	loop.Run(func() bool { return disconnectConv.Queued() > 0 })

	r := Take(disconnectConv)
	require.True(t, r.IsValue())
}

func TestListenAndAcceptAndConnect(t *testing.T) {
	loop := NewLoop(WithEventPort(newTestPort(t)))
	port := loop.port

	server, err := Listen(loop, port, Address{IP: []byte{127, 0, 0, 1}, Port: 0})
	require.NoError(t, err)
	defer server.Close()

	acceptConv := server.Accept()

	connectConv, err := Connect(loop, port, Address{IP: []byte{127, 0, 0, 1}, Port: listenerPort(t, server)})
	require.NoError(t, err)

	loop.Run(func() bool {
		return acceptConv.Queued() > 0 && connectConv.Queued() > 0
	})

	ar := Take(acceptConv)
	require.True(t, ar.IsValue())
	defer ar.Get().Close()

	cr := Take(connectConv)
	require.True(t, cr.IsValue())
	defer cr.Get().Close()
}

func TestDatagramReadWriteRoundTrip(t *testing.T) {
	loop := NewLoop(WithEventPort(newTestPort(t)))
	port := loop.port

	server, err := NewDatagram(loop, port, Address{IP: []byte{127, 0, 0, 1}, Port: 0})
	require.NoError(t, err)
	defer server.Close()

	client, err := NewDatagram(loop, port, Address{IP: []byte{127, 0, 0, 1}, Port: 0})
	require.NoError(t, err)
	defer client.Close()

	serverAddr := datagramLocalAddr(t, server)

	readyConv, err := server.ReadReady()
	require.NoError(t, err)

	_, err = client.WriteTo([]byte("hi"), serverAddr)
	require.NoError(t, err)

	loop.Run(func() bool { return readyConv.Queued() > 0 })
	r := Take(readyConv)
	require.True(t, r.IsValue())

	buf := make([]byte, 8)
	n, _, err := server.ReadFrom(buf)
	require.NoError(t, err)
	require.Equal(t, "hi", string(buf[:n]))
}

// listenerPort retrieves the ephemeral port the kernel actually assigned
// to a Listen'd server, via getsockname(2).
func listenerPort(t *testing.T, s *Server) uint16 {
	t.Helper()
	sa, err := unix.Getsockname(s.FD())
	require.NoError(t, err)
	return sockaddrToAddr(sa).Port
}

func datagramLocalAddr(t *testing.T, d *Datagram) Address {
	t.Helper()
	sa, err := unix.Getsockname(d.FD())
	require.NoError(t, err)
	a := sockaddrToAddr(sa)
	a.IP = []byte{127, 0, 0, 1}
	return a
}

func TestWaitOnceHonorsTimeoutWithNoWork(t *testing.T) {
	loop := NewLoop(WithEventPort(newTestPort(t)))
	start := time.Now()
	loop.WaitOnce(20 * time.Millisecond)
	require.Less(t, time.Since(start), time.Second)
}
