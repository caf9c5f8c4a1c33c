//go:build linux

package saw

import "golang.org/x/sys/unix"

// fdReadWriter is the Linux realization of [rawReadWriter]: a plain
// non-blocking file descriptor, read/written directly via
// golang.org/x/sys/unix, translating EAGAIN/EWOULDBLOCK to [errAgain].
type fdReadWriter struct {
	fd int
}

func (f *fdReadWriter) Read(buf []byte) (int, error) {
	n, err := unix.Read(f.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, errAgain
		}
		return 0, err
	}
	return n, nil
}

func (f *fdReadWriter) Write(buf []byte) (int, error) {
	n, err := unix.Write(f.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, errAgain
		}
		return 0, err
	}
	return n, nil
}

func (f *fdReadWriter) Close() error {
	return unix.Close(f.fd)
}

// setNonblock implements [nonblockToggler], letting the TLS adapter in
// tls.go borrow the fd in blocking mode for the duration of a handshake or
// a Read/Write call.
func (f *fdReadWriter) setNonblock(v bool) error {
	return unix.SetNonblock(f.fd, v)
}

// NewFDStream wraps fd (already non-blocking, close-on-exec, caller's
// responsibility) as a [Stream], to be registered with port the first time
// a readiness conveyor or an async read/write task is requested.
func NewFDStream(loop *Loop, port EventPort, fd int) *Stream {
	return newStream(loop, port, &fdReadWriter{fd: fd}, fd)
}

func setNonblockCloexec(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return err
	}
	unix.CloseOnExec(fd)
	return nil
}
