package saw

// event is a schedulable unit: an intent for the loop to call fire on the
// node that owns it. It holds owned, plain prev/next pointers into the
// loop's intrusive list; encoding the predecessor as a pointer into its
// next slot would shave a branch off splicing but has no safe equivalent
// over a moving garbage collected heap.
//
// An event is "armed" iff it is currently linked into its loop's queue;
// armed is tracked explicitly here (rather than inferred from a prev
// pointer being non-nil) because the head of the queue has no predecessor
// slot to point at in the owned-pointer formulation.
type event struct {
	loop  *Loop
	prev  *event
	next  *event
	armed bool

	// fire is invoked by the loop when this event reaches the front of the
	// queue during a turn. It is supplied by the owning node.
	fire func()

	// name aids debugging/logging; optional.
	name string
}

func newEvent(l *Loop, name string, fire func()) *event {
	return &event{loop: l, name: name, fire: fire}
}

// armNext inserts e at the loop's next-insert cursor and advances that
// cursor past e, guaranteeing e fires within the current turn.
func (e *event) armNext() {
	if e.armed {
		return
	}
	e.loop.insertNext(e)
}

// armLater inserts e at the loop's later-insert cursor, deferring it until
// the current "next" batch (everything armed via armNext before this turn
// started draining later-armed events) is drained.
func (e *event) armLater() {
	if e.armed {
		return
	}
	e.loop.insertAt(&e.loop.laterInsert, e)
}

// armLast inserts e at the tail of the queue without moving the
// later-insert cursor; used for terminal actions such as sink teardown.
func (e *event) armLast() {
	if e.armed {
		return
	}
	e.loop.insertAtTail(e)
}

// disarm splices e out of the queue, fixing any cursor that pointed at it.
// It is a no-op if e is not currently armed.
func (e *event) disarm() {
	if !e.armed {
		return
	}
	e.loop.remove(e)
}

func (e *event) isArmed() bool { return e.armed }
