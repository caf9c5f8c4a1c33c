//go:build linux

package saw

import (
	"net"

	"golang.org/x/sys/unix"
)

func addrDomain(ip net.IP) int {
	if ip.To4() == nil {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

func addrToSockaddr(addr Address) (unix.Sockaddr, error) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: int(addr.Port)}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}
	ip6 := addr.IP.To16()
	if ip6 == nil {
		return nil, CriticalErrorf("saw: invalid IP address %v", addr.IP)
	}
	sa := &unix.SockaddrInet6{Port: int(addr.Port)}
	copy(sa.Addr[:], ip6)
	return sa, nil
}

func sockaddrToAddr(sa unix.Sockaddr) Address {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, s.Addr[:])
		return Address{IP: ip, Port: uint16(s.Port)}
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, s.Addr[:])
		return Address{IP: ip, Port: uint16(s.Port)}
	default:
		return Address{}
	}
}

func newNonblockingSocket(addr Address) (int, unix.Sockaddr, error) {
	fd, err := unix.Socket(addrDomain(addr.IP), unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, nil, CriticalErrorf("saw: socket: %v", err)
	}
	sa, err := addrToSockaddr(addr)
	if err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	return fd, sa, nil
}

// SocketPair creates a connected pair of non-blocking Unix-domain stream
// sockets via the OS socketpair(2) call, wrapping each end as a [Stream]
// registered with port.
func SocketPair(loop *Loop, port EventPort) (a, b *Stream, err error) {
	fds, serr := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if serr != nil {
		return nil, nil, CriticalErrorf("saw: socketpair: %v", serr)
	}
	return NewFDStream(loop, port, fds[0]), NewFDStream(loop, port, fds[1]), nil
}

// Server listens for inbound TCP connections, handing each accepted
// connection to callers via [Server.Accept].
type Server struct {
	loop *Loop
	port EventPort
	fd   int

	waiters []*OneTimeFeeder[*Stream]
	backlog []*Stream
}

// Listen binds and listens on addr, registering the listening socket with
// port for accept readiness.
func Listen(loop *Loop, port EventPort, addr Address) (*Server, error) {
	fd, sa, err := newNonblockingSocket(addr)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, CriticalErrorf("saw: setsockopt SO_REUSEADDR: %v", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, CriticalErrorf("saw: bind %s: %v", addr, err)
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return nil, CriticalErrorf("saw: listen: %v", err)
	}
	s := &Server{loop: loop, port: port, fd: fd}
	if err := port.Subscribe(s, PollReadable); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return s, nil
}

// FD implements [FdOwner].
func (s *Server) FD() int { return s.fd }

// Notify implements [FdOwner]: it drains every connection the kernel has
// queued, handing each to a waiting [Server.Accept] caller or, absent one,
// appending it to the backlog for the next call.
func (s *Server) Notify(PollMask) {
	for {
		connFD, _, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			return
		}
		stream := NewFDStream(s.loop, s.port, connFD)
		if len(s.waiters) > 0 {
			f := s.waiters[0]
			s.waiters = s.waiters[1:]
			f.Feed(stream)
			continue
		}
		s.backlog = append(s.backlog, stream)
	}
}

// Accept returns a conveyor that resolves with the next accepted
// connection, immediately if one is already queued.
func (s *Server) Accept() *Conveyor[*Stream] {
	if len(s.backlog) > 0 {
		stream := s.backlog[0]
		s.backlog = s.backlog[1:]
		return NewImmediateConveyor(s.loop, stream)
	}
	conv, feeder := NewOneTimeConveyorAndFeeder[*Stream](s.loop)
	s.waiters = append(s.waiters, feeder)
	return conv
}

// Close stops accepting and releases the listening socket.
func (s *Server) Close() error {
	s.port.Unsubscribe(s)
	return unix.Close(s.fd)
}

// connectingSocket is the [FdOwner] behind an in-flight non-blocking
// connect(2): it exists only until the socket becomes writable, at which
// point SO_ERROR tells us whether the connection succeeded.
type connectingSocket struct {
	fd     int
	loop   *Loop
	port   EventPort
	feeder *OneTimeFeeder[*Stream]
}

func (c *connectingSocket) FD() int { return c.fd }

func (c *connectingSocket) Notify(PollMask) {
	c.port.Unsubscribe(c)
	errno, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		unix.Close(c.fd)
		c.feeder.Fail(CriticalErrorf("saw: connect getsockopt(SO_ERROR): %v", err))
		return
	}
	if errno != 0 {
		unix.Close(c.fd)
		c.feeder.Fail(CriticalErrorf("saw: connect failed: %v", unix.Errno(errno)))
		return
	}
	c.feeder.Feed(NewFDStream(c.loop, c.port, c.fd))
}

// Connect opens a non-blocking TCP connection to addr, resolving the
// returned conveyor once the connection completes (successfully or not).
func Connect(loop *Loop, port EventPort, addr Address) (*Conveyor[*Stream], error) {
	fd, sa, err := newNonblockingSocket(addr)
	if err != nil {
		return nil, err
	}
	conv, feeder := NewOneTimeConveyorAndFeeder[*Stream](loop)
	connErr := unix.Connect(fd, sa)
	if connErr == nil {
		feeder.Feed(NewFDStream(loop, port, fd))
		return conv, nil
	}
	if connErr != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, CriticalErrorf("saw: connect %s: %v", addr, connErr)
	}
	cs := &connectingSocket{fd: fd, loop: loop, port: port, feeder: feeder}
	if err := port.Subscribe(cs, PollWritable); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return conv, nil
}

// Datagram is a non-blocking UDP socket: readiness-driven, but framed as
// discrete ReadFrom/WriteTo calls rather than the byte-stream task helpers
// (a datagram has no "partial write" concept to resume).
type Datagram struct {
	loop *Loop
	port EventPort
	fd   int

	registered  bool
	readWaiters []*OneTimeFeeder[struct{}]
}

// NewDatagram binds a non-blocking UDP socket to addr.
func NewDatagram(loop *Loop, port EventPort, addr Address) (*Datagram, error) {
	fd, err := unix.Socket(addrDomain(addr.IP), unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, CriticalErrorf("saw: socket: %v", err)
	}
	sa, err := addrToSockaddr(addr)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, CriticalErrorf("saw: bind %s: %v", addr, err)
	}
	return &Datagram{loop: loop, port: port, fd: fd}, nil
}

// FD implements [FdOwner].
func (d *Datagram) FD() int { return d.fd }

// Notify implements [FdOwner].
func (d *Datagram) Notify(mask PollMask) {
	if !mask.Has(PollReadable) || len(d.readWaiters) == 0 {
		return
	}
	waiters := d.readWaiters
	d.readWaiters = nil
	for _, f := range waiters {
		f.Feed(struct{}{})
	}
}

func (d *Datagram) ensureRegistered() error {
	if d.registered {
		return nil
	}
	if err := d.port.Subscribe(d, PollReadable); err != nil {
		return err
	}
	d.registered = true
	return nil
}

// ReadReady returns a conveyor that fires once the socket next has a
// datagram queued.
func (d *Datagram) ReadReady() (*Conveyor[struct{}], error) {
	if err := d.ensureRegistered(); err != nil {
		return nil, err
	}
	conv, feeder := NewOneTimeConveyorAndFeeder[struct{}](d.loop)
	d.readWaiters = append(d.readWaiters, feeder)
	return conv, nil
}

// ReadFrom reads one datagram, returning [IsWouldBlock] if none is queued.
func (d *Datagram) ReadFrom(buf []byte) (int, Address, error) {
	n, sa, err := unix.Recvfrom(d.fd, buf, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, Address{}, errAgain
		}
		return 0, Address{}, CriticalErrorf("saw: recvfrom: %v", err)
	}
	return n, sockaddrToAddr(sa), nil
}

// WriteTo sends buf as a single datagram to addr.
func (d *Datagram) WriteTo(buf []byte, addr Address) (int, error) {
	sa, err := addrToSockaddr(addr)
	if err != nil {
		return 0, err
	}
	if err := unix.Sendto(d.fd, buf, 0, sa); err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, errAgain
		}
		return 0, CriticalErrorf("saw: sendto: %v", err)
	}
	return len(buf), nil
}

// Close releases the datagram socket.
func (d *Datagram) Close() error {
	if d.registered {
		d.port.Unsubscribe(d)
	}
	return unix.Close(d.fd)
}
