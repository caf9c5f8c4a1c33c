package saw

import (
	"crypto/x509"
	"fmt"
	"sync"
	"time"
)

// Loop is the single-threaded cooperative scheduler: it owns the intrusive
// event queue (head/tail plus the next/later insertion cursors), an
// optional [EventPort] reactor, the daemon collection of detached sinks,
// and a deadline-ordered timer heap.
//
// All methods except those explicitly documented as thread-safe (currently
// only [Loop.PostFromAnyGoroutine], besides the EventPort's Wake) must be
// called from the goroutine that holds the loop's [WaitScope].
type Loop struct {
	head *event
	tail *event

	// nextInsert/laterInsert point at the event after which the next
	// armNext/armLater insertion happens; nil means "insert at head".
	nextInsert  *event
	laterInsert *event

	port EventPort

	daemon *daemon

	timers timerHeap

	logger Logger

	defaultBufferLimit    int
	defaultReadBufferSize int
	roots                 *x509.CertPool
	rootsErr              error

	owner     *WaitScope
	turnCount int64

	crossMu      sync.Mutex
	crossQueue   []func()
	crossPending int
}

// LoopOption configures a [Loop] at construction time.
type LoopOption interface {
	applyLoop(*Loop)
}

type loopOptionFunc func(*Loop)

func (f loopOptionFunc) applyLoop(l *Loop) { f(l) }

// WithEventPort installs the reactor the loop should multiplex FD
// readiness, signals and wakeups through. Without one, the loop only
// drains conveyor events and timers (suitable for pure computation chains
// and tests).
func WithEventPort(p EventPort) LoopOption {
	return loopOptionFunc(func(l *Loop) { l.port = p })
}

// WithLoopLogger installs the structured logger used for reactor failures,
// sink termination, and daemon default-drop notifications.
func WithLoopLogger(logger Logger) LoopOption {
	return loopOptionFunc(func(l *Loop) { l.logger = logger })
}

// NewLoop constructs a Loop. It is not yet "entered"; call [NewWaitScope] to
// acquire the execution context required to run it.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		logger:                NewNoOpLogger(),
		defaultBufferLimit:    64,
		defaultReadBufferSize: 64 * 1024,
	}
	for _, o := range opts {
		o.applyLoop(l)
	}
	l.daemon = newDaemon(l)
	return l
}

// insertAt inserts e immediately after *cursor (or at head if *cursor is
// nil) and advances *cursor to e, so repeated insertions at the same
// cursor preserve FIFO order among themselves.
func (l *Loop) insertAt(cursor **event, e *event) {
	marker := *cursor
	var before, after *event
	if marker == nil {
		after = l.head
	} else {
		after = marker.next
		before = marker
	}
	e.prev = before
	e.next = after
	if before != nil {
		before.next = e
	} else {
		l.head = e
	}
	if after != nil {
		after.prev = e
	} else {
		l.tail = e
	}
	e.armed = true
	*cursor = e
}

// insertNext inserts e at the next-insert cursor. If the later-insert
// cursor pointed at the same slot, it is pushed past e as well, so that
// later-armed events keep landing behind the whole "next" batch; without
// this coupling an armLater immediately after an armNext would land in
// front of it.
func (l *Loop) insertNext(e *event) {
	marker := l.nextInsert
	l.insertAt(&l.nextInsert, e)
	if l.laterInsert == marker {
		l.laterInsert = e
	}
}

// insertAtTail inserts e at the tail without touching either insertion
// cursor.
func (l *Loop) insertAtTail(e *event) {
	e.prev = l.tail
	e.next = nil
	if l.tail != nil {
		l.tail.next = e
	} else {
		l.head = e
	}
	l.tail = e
	e.armed = true
}

// remove splices e out of the queue, fixing up any cursor or head/tail
// pointer that referenced it.
func (l *Loop) remove(e *event) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	if l.nextInsert == e {
		l.nextInsert = e.prev
	}
	if l.laterInsert == e {
		l.laterInsert = e.prev
	}
	e.prev = nil
	e.next = nil
	e.armed = false
}

// drainOnce pops and fires every event currently in the queue, including
// ones newly armed by earlier fires in the same call (a full turn). It
// returns the number of events fired.
func (l *Loop) drainOnce() int {
	l.drainCrossThread()
	n := 0
	for l.head != nil {
		e := l.head
		l.remove(e)
		// Reset the next-insert cursor to the front so an armNext issued
		// during this fire lands just behind the firing event, ahead of
		// everything armed before it ("continue immediately").
		l.nextInsert = nil
		l.turnCount++
		e.fire()
		n++
	}
	return n
}

// Poll drains the event queue, then, if a reactor is installed, asks it for
// any immediately-ready OS events (non-blocking) and drains again; it
// repeats until a full cycle produces no new events. It returns the total
// number of fired events.
func (l *Loop) Poll() int {
	total := l.drainOnce()
	l.fireExpiredTimers()
	total += l.drainOnce()
	for l.port != nil {
		n, err := l.port.Poll()
		if err != nil {
			l.logger.Log(LogEntry{Level: LevelError, Category: "poll", Message: "event port poll failed", Err: err})
			break
		}
		if n == 0 {
			break
		}
		d := l.drainOnce()
		total += d
		if d == 0 {
			break
		}
	}
	return total
}

// WaitOnce drains pending events, then (if a reactor is installed) blocks
// on it for up to timeout waiting for OS events, then drains whatever that
// produced. A negative timeout blocks indefinitely. With no reactor
// installed, WaitOnce degrades to Poll plus, whenever timers are pending,
// sleeping until the nearest timer deadline or for timeout, whichever is
// shorter (not at all when timeout is zero), then firing expired timers.
func (l *Loop) WaitOnce(timeout time.Duration) int {
	total := l.drainOnce()
	l.fireExpiredTimers()
	total += l.drainOnce()

	if l.port != nil {
		budget := timeout
		if d, ok := l.timers.nextDeadline(); ok {
			if budget < 0 || d < budget {
				budget = d
			}
		}
		n, err := l.port.Wait(budget)
		if err != nil {
			l.logger.Log(LogEntry{Level: LevelError, Category: "poll", Message: "event port wait failed", Err: err})
			return total
		}
		_ = n
		l.fireExpiredTimers()
		total += l.drainOnce()
		return total
	}

	if d, ok := l.timers.nextDeadline(); ok {
		if timeout < 0 || d < timeout {
			time.Sleep(d)
		} else if timeout > 0 {
			time.Sleep(timeout)
		}
		l.fireExpiredTimers()
		total += l.drainOnce()
	} else if total == 0 && l.crossWorkPending() {
		// No reactor to park in, but a background goroutine still owes us a
		// post; yield briefly rather than spin hot until it lands.
		time.Sleep(time.Millisecond)
		total += l.drainOnce()
	}
	return total
}

// crossWorkPending reports whether any cross-goroutine post is queued or
// promised via [Loop.BeginAsyncWork].
func (l *Loop) crossWorkPending() bool {
	l.crossMu.Lock()
	pending := len(l.crossQueue) + l.crossPending
	l.crossMu.Unlock()
	return pending > 0
}

// isRunnable reports whether the loop has outstanding work: armed events,
// live daemon sinks, pending timers, work queued from another goroutine
// via [Loop.PostFromAnyGoroutine], or an installed reactor. A reactor
// counts unconditionally because it may be holding live FD subscriptions
// (an accept loop, a pending read) that never touch head/daemon/timers
// directly; callers that want Run to return on genuine idle, rather than
// block in the reactor forever, pass a stop func rather than relying on
// isRunnable alone. Per the external interface contract, a Run loop should
// return once this is false (absent a terminal signal forcing earlier
// exit).
func (l *Loop) isRunnable() bool {
	if l.head != nil || l.daemon.len() > 0 || l.timers.len() > 0 || l.port != nil {
		return true
	}
	return l.crossWorkPending()
}

// Run drives the loop with WaitOnce(-1) until isRunnable reports no more
// work, or stop returns true. stop is polled once per turn; pass nil to
// run until quiescent. Without a reactor there is no blocking wait to
// park in, so a turn that fires nothing and leaves no armed events,
// timers, or promised cross-goroutine posts behind means nothing can ever
// arrive again; Run returns then even if daemon sinks are still alive.
func (l *Loop) Run(stop func() bool) {
	for l.isRunnable() {
		if stop != nil && stop() {
			return
		}
		fired := l.WaitOnce(-1)
		if fired == 0 && l.port == nil && l.head == nil && l.timers.len() == 0 && !l.crossWorkPending() {
			return
		}
	}
}

// BeginAsyncWork marks one unit of work as outstanding on a goroutine that
// has not yet called [Loop.PostFromAnyGoroutine]: it keeps [Loop.isRunnable]
// (and so [Loop.Run]) true for the gap between launching a background
// goroutine and that goroutine's first post back, which would otherwise
// race true idle (nothing queued yet, because nothing has happened yet).
// [ResolveAddress] and the TLS handshake goroutine in tls.go call this
// before their `go func(){...}()`, and PostFromAnyGoroutine itself clears
// one unit the first time it is subsequently called.
func (l *Loop) BeginAsyncWork() {
	l.crossMu.Lock()
	l.crossPending++
	l.crossMu.Unlock()
}

// PostFromAnyGoroutine queues fn to run on the loop's own goroutine at the
// start of its next turn, and wakes the reactor (if any) so that happens
// promptly. Besides the reactor's own Wake, this is the only loop-level
// operation safe to call from a goroutine that does not hold the loop's
// WaitScope: it is the marshaling point for any cross-thread producer, and
// is what the DNS resolution in [ResolveAddress] and the TLS handshake
// goroutine in tls.go post their results through. [ThreadsafeFeeder]
// is a second, independent example of "a richer queue built above wake";
// this one is used internally rather than re-plumbed through that type
// because it needs to run arbitrary completion logic, not just feed one
// conveyor.
func (l *Loop) PostFromAnyGoroutine(fn func()) {
	l.crossMu.Lock()
	if l.crossPending > 0 {
		l.crossPending--
	}
	l.crossQueue = append(l.crossQueue, fn)
	l.crossMu.Unlock()
	if l.port != nil {
		l.port.Wake()
	}
}

// drainCrossThread runs every closure queued by PostFromAnyGoroutine since
// the last turn. It must only be called from the loop's own goroutine.
func (l *Loop) drainCrossThread() {
	l.crossMu.Lock()
	fns := l.crossQueue
	l.crossQueue = nil
	l.crossMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (l *Loop) String() string {
	return fmt.Sprintf("Loop{turns=%d}", l.turnCount)
}

// WaitScope is the scoped acquisition handle described by the data model:
// constructing one enters its loop, and [WaitScope.Close] leaves it. Only
// one WaitScope may be open on a given Loop at a time.
type WaitScope struct {
	loop   *Loop
	closed bool
}

// NewWaitScope enters l in the calling context. It panics if l already has
// an open WaitScope: violating the one-entry contract is asserted loudly
// rather than tolerated (Go has no portable goroutine-local storage to
// check it more strongly; see DESIGN.md).
func NewWaitScope(l *Loop) *WaitScope {
	if l.owner != nil {
		panic("saw: loop already entered by another WaitScope")
	}
	ws := &WaitScope{loop: l}
	l.owner = ws
	return ws
}

// Close leaves the loop, allowing a new WaitScope to be created for it.
func (ws *WaitScope) Close() {
	if ws.closed {
		return
	}
	ws.closed = true
	if ws.loop.owner == ws {
		ws.loop.owner = nil
	}
}

// Loop returns the scope's loop.
func (ws *WaitScope) Loop() *Loop { return ws.loop }

// Poll is sugar for ws.Loop().Poll().
func (ws *WaitScope) Poll() int {
	ws.checkEntered()
	return ws.loop.Poll()
}

// Wait is sugar for ws.Loop().WaitOnce(timeout).
func (ws *WaitScope) Wait(timeout time.Duration) int {
	ws.checkEntered()
	return ws.loop.WaitOnce(timeout)
}

func (ws *WaitScope) checkEntered() {
	if ws.closed {
		panic("saw: use of WaitScope after Close")
	}
	if ws.loop.owner != ws {
		panic("saw: WaitScope is not the current owner of its loop")
	}
}
