package saw

// sinkNode is the terminal consumer of a chain: every time the storage
// below announces a value, the sink pulls it through the transform stages
// and hands it to consume. A critical error (either surfacing from the
// chain, or returned by consume itself) terminates the sink: it stops
// draining, arms a dedicated teardown event at Last priority so any
// already-queued turn work finishes first, and on that event's fire
// reports the error to its daemon/owner and drops the chain below.
type sinkNode[T any] struct {
	storageBase
	childNode    node
	childStorage storageNode
	consume      func(Result[T]) error

	dead       bool
	pendingErr Error
	onDone     func(err Error)
}

func newSinkNode[T any](loop *Loop, childNode node, childStorage storageNode, consume func(Result[T]) error) *sinkNode[T] {
	n := &sinkNode[T]{
		storageBase:  storageBase{loop: loop},
		childNode:    childNode,
		childStorage: childStorage,
		consume:      consume,
	}
	n.self = n
	n.ev = newEvent(loop, "sink-teardown", n.runTeardown)
	return n
}

// childHasFired pulls exactly one value per notification; the storage
// below keeps re-arming itself while more are queued, so draining a batch
// is spread across the turn rather than run as one monopolizing loop.
func (n *sinkNode[T]) childHasFired() {
	if n.dead || n.childNode == nil {
		return
	}
	carrier := newCarrier[T]()
	n.childNode.getResult(carrier)
	r := carrier.Result
	if n.childStorage != nil {
		n.childStorage.parentHasFired()
	}

	if r.IsError() && r.Err().Critical() {
		n.terminate(r.Err())
		return
	}
	if cerr := n.safeConsume(r); cerr != nil {
		n.terminate(CriticalError(cerr.Error()))
	}
}

func (n *sinkNode[T]) safeConsume(r Result[T]) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = CriticalErrorf("panic in sink consumer: %v", rec)
		}
	}()
	return n.consume(r)
}

func (n *sinkNode[T]) terminate(err Error) {
	if n.dead {
		return
	}
	n.dead = true
	n.pendingErr = err
	n.ev.armLast()
}

func (n *sinkNode[T]) runTeardown() {
	err := n.pendingErr
	if n.onDone != nil {
		n.onDone(err)
	}
	n.childNode = nil
	n.childStorage = nil
}

func (n *sinkNode[T]) getResult(out resultCarrier) {
	// Sinks are terminal; nothing above them ever calls getResult, but the
	// interface must still be satisfied.
	panic("saw: getResult called on a terminal sink node")
}

func (n *sinkNode[T]) space() int      { return 1 }
func (n *sinkNode[T]) queued() int     { return 0 }
func (n *sinkNode[T]) parentHasFired() {}

func (n *sinkNode[T]) isDead() bool { return n.dead }

func (n *sinkNode[T]) forceClose() {
	n.terminate(CriticalError("sink closed"))
}

func (n *sinkNode[T]) setOnDone(f func(Error)) { n.onDone = f }

// SinkHandle is the user-facing handle for a running sink.
type SinkHandle struct {
	loop *Loop
	node interface {
		storageNode
		isDead() bool
	}
}

// Close tears the sink down as if it had received a critical error: the
// sink is marked dead at once and its teardown runs later in the turn,
// reporting a "sink closed" critical error to the sink's done callback (for
// a detached sink, the daemon's error handler or its debug log).
func (s *SinkHandle) Close() {
	if sn, ok := s.node.(interface{ forceClose() }); ok {
		sn.forceClose()
	}
}

// Sink constructs a terminal consumer from c, taking ownership of the
// chain's root node. consume is invoked once per produced value or
// recoverable error; returning a non-nil error terminates the sink with a
// critical error built from it. The returned handle stays alive (and
// keeps draining) for as long as it is referenced; use [Detach] to hand
// ownership to the loop's daemon instead.
func Sink[T any](c *Conveyor[T], consume func(Result[T]) error) *SinkHandle {
	c.markUsed()
	n := newSinkNode[T](c.loop, c.n, c.s, consume)
	c.s.setParent(n)
	return &SinkHandle{loop: c.loop, node: n}
}
