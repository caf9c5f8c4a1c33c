package saw

import "math"

// adaptNode is the paired node behind a multi-value [Feeder]: an unbounded
// queue of values/errors, armed on each feed. Per the design notes, its
// space() returns an "effectively unbounded" figure rather than a literal
// numeric contract.
type adaptNode[T any] struct {
	storageBase
	q resultFIFO[T]
}

func newAdaptNode[T any](loop *Loop) *adaptNode[T] {
	n := &adaptNode[T]{storageBase: storageBase{loop: loop}}
	n.self = n
	n.ev = newEvent(loop, "adapt", n.fire)
	return n
}

func (n *adaptNode[T]) feed(r Result[T]) {
	n.q.push(r)
	n.armSelfNext()
}

// fire notifies the parent that a value is ready; while more remain queued
// and the parent still has space, it re-arms itself at the later priority
// so each firing delivers one notification and the batch drains
// cooperatively across the turn.
func (n *adaptNode[T]) fire() {
	if n.parent == nil {
		return
	}
	n.parent.childHasFired()
	if n.q.len() > 0 && n.parentHasSpace() {
		n.armSelfLater()
	}
}

func (n *adaptNode[T]) getResult(out resultCarrier) {
	box := carrierAs[T](out)
	r, ok := n.q.pop()
	if !ok {
		box.Result = Failure[T](CriticalError("retrieval signalled even though no data is present"))
		return
	}
	box.Result = r
}

func (n *adaptNode[T]) space() int     { return math.MaxInt32 - n.q.len() }
func (n *adaptNode[T]) queued() int    { return n.q.len() }
func (n *adaptNode[T]) childHasFired() {}
func (n *adaptNode[T]) parentHasFired() {
	// A consumer freed room above; if values were held back by a full
	// parent, resume pushing them.
	if n.q.len() > 0 && n.parentHasSpace() {
		n.armSelfNext()
	}
}

// Feeder is the external producer handle paired with an adapt node: Feed
// and Fail each enqueue a value and arm the node. It is safe to keep
// feeding after the conveyor side has been dropped; since node lifetime is
// garbage collected here rather than explicitly freed, there is no
// dangling-pointer hazard to guard against (see DESIGN.md), only wasted
// work, which callers avoid by checking Space.
type Feeder[T any] struct {
	node *adaptNode[T]
}

// Feed enqueues a value for the paired conveyor to observe.
func (f *Feeder[T]) Feed(v T) { f.node.feed(Value(v)) }

// Fail enqueues an error for the paired conveyor to observe.
func (f *Feeder[T]) Fail(err Error) { f.node.feed(Failure[T](err)) }

// Space reports how much room remains, per the "effectively unbounded"
// contract described in the design notes.
func (f *Feeder[T]) Space() int { return f.node.space() }

// Queued reports how many values are currently buffered, unconsumed.
func (f *Feeder[T]) Queued() int { return f.node.queued() }

// NewAdaptConveyorAndFeeder builds a paired (Conveyor, Feeder): the
// classic "external source feeds a conveyor chain" building block.
func NewAdaptConveyorAndFeeder[T any](loop *Loop) (*Conveyor[T], *Feeder[T]) {
	n := newAdaptNode[T](loop)
	return wrapNode[T](loop, n, n), &Feeder[T]{node: n}
}

// oneTimeNode holds 0 or 1 values; space is 1 before feed, 0 after,
// matching a one-shot producer such as a resolved DNS lookup or a
// completed TLS handshake.
type oneTimeNode[T any] struct {
	storageBase
	result Result[T]
	fed    bool
	taken  bool
}

func newOneTimeNode[T any](loop *Loop) *oneTimeNode[T] {
	n := &oneTimeNode[T]{storageBase: storageBase{loop: loop}}
	n.self = n
	n.ev = newEvent(loop, "onetime", n.fire)
	return n
}

func (n *oneTimeNode[T]) feed(r Result[T]) bool {
	if n.fed {
		return false
	}
	n.fed = true
	n.result = r
	n.armSelfNext()
	return true
}

func (n *oneTimeNode[T]) fire() { n.notifyParent() }

func (n *oneTimeNode[T]) getResult(out resultCarrier) {
	box := carrierAs[T](out)
	if n.taken {
		box.Result = Failure[T](ExhaustedError())
		return
	}
	if !n.fed {
		box.Result = Failure[T](CriticalError("retrieval signalled even though no data is present"))
		return
	}
	n.taken = true
	box.Result = n.result
}

func (n *oneTimeNode[T]) space() int {
	if n.fed {
		return 0
	}
	return 1
}
func (n *oneTimeNode[T]) queued() int {
	if n.fed && !n.taken {
		return 1
	}
	return 0
}
func (n *oneTimeNode[T]) childHasFired()  {}
func (n *oneTimeNode[T]) parentHasFired() {}
func (n *oneTimeNode[T]) exhausted() bool { return n.taken }

// OneTimeFeeder is the external producer handle paired with a one-shot
// node: the first Feed or Fail consumes the slot; subsequent calls return
// the Exhausted error.
type OneTimeFeeder[T any] struct {
	node *oneTimeNode[T]
}

// Feed resolves the paired conveyor with v, or returns an Exhausted error
// if it was already resolved.
func (f *OneTimeFeeder[T]) Feed(v T) error {
	if !f.node.feed(Value(v)) {
		return ExhaustedError()
	}
	return nil
}

// Fail resolves the paired conveyor with err, or returns an Exhausted
// error if it was already resolved.
func (f *OneTimeFeeder[T]) Fail(err Error) error {
	if !f.node.feed(Failure[T](err)) {
		return ExhaustedError()
	}
	return nil
}

func newOneTimeConveyorAndFeeder[T any](loop *Loop) (*Conveyor[T], *OneTimeFeeder[T]) {
	n := newOneTimeNode[T](loop)
	return wrapNode[T](loop, n, n), &OneTimeFeeder[T]{node: n}
}

// NewOneTimeConveyorAndFeeder builds a paired (Conveyor, OneTimeFeeder).
func NewOneTimeConveyorAndFeeder[T any](loop *Loop) (*Conveyor[T], *OneTimeFeeder[T]) {
	return newOneTimeConveyorAndFeeder[T](loop)
}
