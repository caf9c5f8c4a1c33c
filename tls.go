package saw

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"time"
)

// TLSState tracks where the adapter stands between connection setup and a
// usable (or failed) TLS session.
type TLSState int32

const (
	TLSConnecting TLSState = iota
	TLSHandshaking
	TLSReady
	TLSFailed
	TLSClosed
)

func (s TLSState) String() string {
	switch s {
	case TLSConnecting:
		return "connecting"
	case TLSHandshaking:
		return "handshaking"
	case TLSReady:
		return "ready"
	case TLSFailed:
		return "failed"
	case TLSClosed:
		return "closed"
	default:
		return "tls-state(unknown)"
	}
}

// nonblockToggler is implemented by transports that can flip their
// underlying fd's O_NONBLOCK bit, which the TLS adapter needs: crypto/tls
// offers no non-blocking, single-stepped handshake API (unlike TLS engines
// built around caller-supplied push/pull callbacks), so the adapter flips
// the wrapped [Stream] into blocking mode for the duration of each
// handshake/Read/Write call it drives (see DESIGN.md).
type nonblockToggler interface {
	setNonblock(v bool) error
}

func (s *Stream) setBlocking(blocking bool) error {
	t, ok := s.rw.(nonblockToggler)
	if !ok {
		return CriticalError("saw: underlying transport does not support a blocking/non-blocking toggle")
	}
	return t.setNonblock(!blocking)
}

// tlsAddr is a placeholder net.Addr: the wrapped Stream doesn't expose
// endpoint addresses, and crypto/tls never inspects them beyond the
// net.Conn interface requiring the accessor to exist.
type tlsAddr struct{}

func (tlsAddr) Network() string { return "saw" }
func (tlsAddr) String() string  { return "saw-stream" }

// streamConn is the net.Conn shim crypto/tls drives: Read/Write forward
// straight to the wrapped Stream's synchronous transport, playing the role
// a push/pull callback pair plays for engines that expose one. It relies
// on the stream being in blocking mode for the duration of any call (see
// [nonblockToggler]); outside of that window nothing calls it.
type streamConn struct {
	stream *Stream
}

func (c *streamConn) Read(b []byte) (int, error)       { return c.stream.Read(b) }
func (c *streamConn) Write(b []byte) (int, error)      { return c.stream.Write(b) }
func (c *streamConn) Close() error                     { return nil }
func (c *streamConn) LocalAddr() net.Addr              { return tlsAddr{} }
func (c *streamConn) RemoteAddr() net.Addr             { return tlsAddr{} }
func (c *streamConn) SetDeadline(time.Time) error      { return nil }
func (c *streamConn) SetReadDeadline(time.Time) error  { return nil }
func (c *streamConn) SetWriteDeadline(time.Time) error { return nil }

// TLSTransport layers an opaque TLS engine (here, crypto/tls) over an
// arbitrary [Stream]. Once [TLSState] reaches Ready, Read/Write translate
// engine return codes into recoverable/critical errors; a zero-length read
// means the peer closed the connection cleanly.
type TLSTransport struct {
	loop   *Loop
	stream *Stream
	conn   *tls.Conn
	state  TLSState
}

// State reports the adapter's current position in the handshake state
// machine.
func (t *TLSTransport) State() TLSState { return t.state }

// DialTLS drives the client-side TLS handshake over an already-connected
// stream; the handshake itself runs on a dedicated goroutine (crypto/tls
// has no single-stepped, non-blocking handshake entry point), with its
// result posted back onto loop via [Loop.PostFromAnyGoroutine] once it
// transitions to Ready or Failed, preserving the invariant that the
// handshake state machine is only ever mutated from the loop's goroutine.
func DialTLS(loop *Loop, stream *Stream, cfg *tls.Config) *Conveyor[*TLSTransport] {
	return startHandshake(loop, stream, cfg, true)
}

// AcceptTLS drives the server-side TLS handshake over an accepted stream,
// reusing the same state machine as [DialTLS].
func AcceptTLS(loop *Loop, stream *Stream, cfg *tls.Config) *Conveyor[*TLSTransport] {
	return startHandshake(loop, stream, cfg, false)
}

func startHandshake(loop *Loop, stream *Stream, cfg *tls.Config, client bool) *Conveyor[*TLSTransport] {
	conv, feeder := NewOneTimeConveyorAndFeeder[*TLSTransport](loop)
	t := &TLSTransport{loop: loop, stream: stream, state: TLSConnecting}
	shim := &streamConn{stream: stream}
	if client {
		t.conn = tls.Client(shim, cfg)
	} else {
		t.conn = tls.Server(shim, cfg)
	}
	t.state = TLSHandshaking

	if err := stream.setBlocking(true); err != nil {
		t.state = TLSFailed
		feeder.Fail(CriticalErrorf("saw: tls handshake: %v", err))
		return conv
	}

	loop.BeginAsyncWork()
	go func() {
		hsErr := t.conn.HandshakeContext(context.Background())
		loop.PostFromAnyGoroutine(func() {
			if rerr := stream.setBlocking(false); rerr != nil {
				t.state = TLSFailed
				feeder.Fail(CriticalErrorf("saw: tls handshake: restoring non-blocking mode: %v", rerr))
				return
			}
			if hsErr != nil {
				t.state = TLSFailed
				loop.logger.Log(LogEntry{Level: LevelWarn, Category: "tls", Message: "handshake failed", Err: hsErr})
				feeder.Fail(CriticalErrorf("saw: tls handshake: %v", hsErr))
				return
			}
			t.state = TLSReady
			feeder.Feed(t)
		})
	}()
	return conv
}

// Read reads decrypted application bytes. It briefly puts the underlying
// stream into blocking mode for the duration of the call, since crypto/tls
// is not safe to retry mid-record after a non-blocking short read; once it
// returns, the stream reverts to non-blocking for any other waiter. A
// zero-length read (io.EOF from crypto/tls) surfaces as [DisconnectedError].
func (t *TLSTransport) Read(buf []byte) (int, error) {
	if t.state != TLSReady {
		return 0, CriticalError("saw: tls transport not ready")
	}
	if err := t.stream.setBlocking(true); err != nil {
		return 0, CriticalErrorf("saw: tls read: %v", err)
	}
	defer t.stream.setBlocking(false)

	n, err := t.conn.Read(buf)
	if err != nil {
		if err == io.EOF {
			return 0, DisconnectedError("tls peer closed")
		}
		return n, CriticalErrorf("saw: tls read: %v", err)
	}
	return n, nil
}

// Write encrypts and writes application bytes, under the same blocking
// toggle as [TLSTransport.Read].
func (t *TLSTransport) Write(buf []byte) (int, error) {
	if t.state != TLSReady {
		return 0, CriticalError("saw: tls transport not ready")
	}
	if err := t.stream.setBlocking(true); err != nil {
		return 0, CriticalErrorf("saw: tls write: %v", err)
	}
	defer t.stream.setBlocking(false)

	n, err := t.conn.Write(buf)
	if err != nil {
		return n, CriticalErrorf("saw: tls write: %v", err)
	}
	return n, nil
}

// Close shuts down the TLS session and the underlying stream.
func (t *TLSTransport) Close() error {
	t.state = TLSClosed
	_ = t.conn.Close()
	return t.stream.Close()
}
