//go:build !linux

package saw

import (
	"sync"
	"time"
)

// portableEventPort is a pragmatic fallback [EventPort] for platforms
// without an epoll/signalfd/eventfd story. It cannot watch arbitrary file
// descriptors (FdOwner registration fails with a critical error), but it
// does provide a correct, cross-goroutine-safe Wake and a best-effort
// signal bridge via Go's os/signal channel, so the loop machinery and its
// tests remain runnable on any GOOS. Genuine socket-driven I/O on these
// platforms is a documented gap: see DESIGN.md.
type portableEventPort struct {
	wakeCh      chan struct{}
	sigCh       chan osSignal
	signalMu    sync.Mutex
	signalFeeds map[Signal][]*Feeder[Signal]
	stop        chan struct{}
}

type osSignal = Signal

// NewPortableEventPort constructs the non-Linux fallback reactor.
func NewPortableEventPort() (EventPort, error) {
	p := &portableEventPort{
		wakeCh:      make(chan struct{}, 1),
		sigCh:       make(chan osSignal, 8),
		signalFeeds: make(map[Signal][]*Feeder[Signal]),
		stop:        make(chan struct{}),
	}
	startPortableSignalBridge(p.sigCh, p.stop)
	return p, nil
}

func (p *portableEventPort) Subscribe(owner FdOwner, interest PollMask) error {
	return CriticalErrorf("saw: portable event port cannot subscribe fd %d: no epoll/kqueue backend on this platform", owner.FD())
}

func (p *portableEventPort) Unsubscribe(owner FdOwner) {}

func (p *portableEventPort) Modify(owner FdOwner, interest PollMask) error {
	return CriticalErrorf("saw: portable event port cannot modify fd %d: no epoll/kqueue backend on this platform", owner.FD())
}

func (p *portableEventPort) OnSignal(sig Signal, feeder *Feeder[Signal]) error {
	p.signalMu.Lock()
	defer p.signalMu.Unlock()
	p.signalFeeds[sig] = append(p.signalFeeds[sig], feeder)
	return nil
}

func (p *portableEventPort) Wake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

func (p *portableEventPort) Close() error {
	close(p.stop)
	return nil
}

func (p *portableEventPort) Poll() (int, error) {
	return p.drain()
}

func (p *portableEventPort) Wait(timeout time.Duration) (int, error) {
	if n, err := p.drain(); err != nil || n > 0 {
		return n, err
	}
	var timer <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-p.wakeCh:
	case sig := <-p.sigCh:
		p.dispatchSignal(sig)
		return 1, nil
	case <-timer:
	}
	return p.drain()
}

func (p *portableEventPort) drain() (int, error) {
	dispatched := 0
	for {
		select {
		case <-p.wakeCh:
			dispatched++
		case sig := <-p.sigCh:
			p.dispatchSignal(sig)
			dispatched++
		default:
			return dispatched, nil
		}
	}
}

func (p *portableEventPort) dispatchSignal(sig Signal) {
	p.signalMu.Lock()
	feeders := append([]*Feeder[Signal]{}, p.signalFeeds[sig]...)
	p.signalMu.Unlock()
	for _, f := range feeders {
		if f.Space() > 0 {
			f.Feed(sig)
		}
	}
}
