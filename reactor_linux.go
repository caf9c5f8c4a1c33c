//go:build linux

package saw

import (
	"os/signal"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// linuxEventPort is the Linux realization of [EventPort]: epoll for FD
// readiness, signalfd for signal delivery multiplexed onto the same
// descriptor set, and an eventfd for cross-thread wake. The eventfd plays
// the classic self-pipe role with the same semantics and one descriptor
// instead of two.
type linuxEventPort struct {
	epfd       int
	sigfd      int
	wakefd     int
	sigset     unix.Sigset_t
	ownersMu   sync.Mutex // guards ownersByFD; epoll_wait itself is only ever called from the loop goroutine
	ownersByFD map[int32]FdOwner

	signalMu    sync.Mutex
	signalFeeds map[Signal][]*Feeder[Signal]
}

const maxEpollEvents = 256

// NewLinuxEventPort constructs the epoll/signalfd/eventfd reactor. It
// ignores SIGPIPE for the process, since a non-blocking write to a broken
// pipe must surface as a normal write() error rather than terminate the
// process.
func NewLinuxEventPort() (EventPort, error) {
	signal.Ignore(syscall.SIGPIPE)

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, CriticalErrorf("epoll_create1: %v", err)
	}

	var set unix.Sigset_t
	addSignal(&set, syscall.SIGTERM)
	addSignal(&set, syscall.SIGINT)
	addSignal(&set, syscall.SIGQUIT)
	addSignal(&set, syscall.SIGUSR1)

	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil); err != nil {
		unix.Close(epfd)
		return nil, CriticalErrorf("pthread_sigmask: %v", err)
	}

	sigfd, err := unix.Signalfd(-1, &set, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, CriticalErrorf("signalfd: %v", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		unix.Close(sigfd)
		return nil, CriticalErrorf("eventfd: %v", err)
	}

	p := &linuxEventPort{
		epfd:        epfd,
		sigfd:       sigfd,
		wakefd:      wakefd,
		sigset:      set,
		ownersByFD:  make(map[int32]FdOwner),
		signalFeeds: make(map[Signal][]*Feeder[Signal]),
	}

	if err := p.epollAdd(int32(sigfd), unix.EPOLLIN); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.epollAdd(int32(wakefd), unix.EPOLLIN); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func addSignal(set *unix.Sigset_t, sig syscall.Signal) {
	set.Val[(sig-1)/64] |= 1 << (uint(sig-1) % 64)
}

func (p *linuxEventPort) epollAdd(fd int32, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: fd}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		return CriticalErrorf("epoll_ctl add fd=%d: %v", fd, err)
	}
	return nil
}

func translateInterest(interest PollMask) uint32 {
	var ev uint32 = unix.EPOLLET
	if interest.Has(PollReadable) {
		ev |= unix.EPOLLIN
	}
	if interest.Has(PollWritable) {
		ev |= unix.EPOLLOUT
	}
	if interest.Has(PollReadHangup) {
		ev |= unix.EPOLLRDHUP
	}
	return ev
}

func (p *linuxEventPort) Subscribe(owner FdOwner, interest PollMask) error {
	fd := int32(owner.FD())
	ev := unix.EpollEvent{Events: translateInterest(interest), Fd: fd}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		return CriticalErrorf("epoll_ctl add fd=%d: %v", fd, err)
	}
	p.ownersMu.Lock()
	p.ownersByFD[fd] = owner
	p.ownersMu.Unlock()
	return nil
}

func (p *linuxEventPort) Modify(owner FdOwner, interest PollMask) error {
	fd := int32(owner.FD())
	ev := unix.EpollEvent{Events: translateInterest(interest), Fd: fd}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, int(fd), &ev); err != nil {
		return CriticalErrorf("epoll_ctl mod fd=%d: %v", fd, err)
	}
	return nil
}

func (p *linuxEventPort) Unsubscribe(owner FdOwner) {
	fd := int32(owner.FD())
	unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	p.ownersMu.Lock()
	delete(p.ownersByFD, fd)
	p.ownersMu.Unlock()
}

func (p *linuxEventPort) OnSignal(sig Signal, feeder *Feeder[Signal]) error {
	p.signalMu.Lock()
	defer p.signalMu.Unlock()
	p.signalFeeds[sig] = append(p.signalFeeds[sig], feeder)
	return nil
}

func (p *linuxEventPort) Wake() {
	var buf [8]byte
	buf[7] = 1
	unix.Write(p.wakefd, buf[:])
}

func (p *linuxEventPort) Close() error {
	unix.Close(p.wakefd)
	unix.Close(p.sigfd)
	return unix.Close(p.epfd)
}

func (p *linuxEventPort) Poll() (int, error) {
	return p.pollImpl(0)
}

func (p *linuxEventPort) Wait(timeout time.Duration) (int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	return p.pollImpl(ms)
}

func (p *linuxEventPort) pollImpl(timeoutMs int) (int, error) {
	var events [maxEpollEvents]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, events[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, CriticalErrorf("epoll_wait: %v", err)
	}

	dispatched := 0
	for i := 0; i < n; i++ {
		ev := events[i]
		switch ev.Fd {
		case int32(p.sigfd):
			dispatched += p.drainSignals()
		case int32(p.wakefd):
			p.drainWake()
			dispatched++
		default:
			p.ownersMu.Lock()
			owner := p.ownersByFD[ev.Fd]
			p.ownersMu.Unlock()
			if owner == nil {
				continue
			}
			owner.Notify(translateEvents(ev.Events))
			dispatched++
		}
	}
	return dispatched, nil
}

func translateEvents(events uint32) PollMask {
	var mask PollMask
	if events&unix.EPOLLIN != 0 {
		mask |= PollReadable
	}
	if events&unix.EPOLLOUT != 0 {
		mask |= PollWritable
	}
	if events&unix.EPOLLRDHUP != 0 {
		mask |= PollReadHangup
	}
	if events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		mask |= PollWriteHangup | PollError
	}
	return mask
}

func (p *linuxEventPort) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakefd, buf[:])
		if err != nil {
			return
		}
	}
}

// drainSignals reads every pending signalfd_siginfo record and fans each
// decoded signal out to subscribed feeders with remaining space.
func (p *linuxEventPort) drainSignals() int {
	dispatched := 0
	const sizeofSignalfdSiginfo = int(unsafe.Sizeof(unix.SignalfdSiginfo{}))
	buf := make([]byte, sizeofSignalfdSiginfo)
	for {
		n, err := unix.Read(p.sigfd, buf)
		if err != nil || n != sizeofSignalfdSiginfo {
			return dispatched
		}
		info := (*unix.SignalfdSiginfo)(unsafe.Pointer(&buf[0]))
		sig, ok := fromUnixSignal(syscall.Signal(info.Signo))
		if !ok {
			continue
		}
		p.signalMu.Lock()
		feeders := append([]*Feeder[Signal]{}, p.signalFeeds[sig]...)
		p.signalMu.Unlock()
		for _, f := range feeders {
			if f.Space() > 0 {
				f.Feed(sig)
				dispatched++
			}
		}
	}
}

func fromUnixSignal(sig syscall.Signal) (Signal, bool) {
	switch sig {
	case syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT:
		return SignalTerminate, true
	case syscall.SIGUSR1:
		return SignalUser1, true
	default:
		return 0, false
	}
}
