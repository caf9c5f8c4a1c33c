package saw

// node is the algorithmic element of a conveyor chain: it exposes
// getResult, which writes the node's next produced value or error into the
// supplied type-erased carrier. Transform nodes (convert, attach) pull
// straight through their child inside getResult; only storage nodes hold
// values between turns.
type node interface {
	getResult(out resultCarrier)
}

// storageNode is the buffered edge between a child and its parent: the
// ConveyorStorage half of the data model. Leaf nodes (immediate, adapt,
// one-time) and buffering nodes (buffer, merge, sink) implement it;
// transform nodes do not, which is why a [Conveyor] carries a separate
// storage pointer alongside its node.
type storageNode interface {
	// space reports how many more items this storage may accept before it
	// must refuse (push back).
	space() int
	// queued reports how many items are ready for the parent to consume.
	queued() int
	// childHasFired is called by the storage below when it has produced a
	// new item.
	childHasFired()
	// parentHasFired is called by the consumer above after it has drained
	// one item, releasing one unit of backpressure.
	parentHasFired()
	// setParent attaches the consumer above this storage. A nil parent
	// means detached/unset.
	setParent(parent storageNode)
}

// storageBase factors the bookkeeping shared by every storage node: its
// scheduling event, a weak pointer to the parent storage, and a self
// pointer so setParent can consult the concrete queued() when deciding
// whether to arm on attachment (values may already be waiting by the time
// a sink or buffer is placed above the chain).
type storageBase struct {
	loop   *Loop
	ev     *event
	self   storageNode
	parent storageNode
}

func (b *storageBase) setParent(p storageNode) {
	b.parent = p
	if p != nil && b.self != nil && b.self.queued() > 0 && b.ev != nil {
		b.ev.armNext()
	}
}

func (b *storageBase) notifyParent() {
	if b.parent != nil {
		b.parent.childHasFired()
	}
}

// parentHasSpace reports whether the storage above can accept more; with
// no parent attached there is nobody to push to, so it reports false and
// the node stops re-arming itself.
func (b *storageBase) parentHasSpace() bool {
	return b.parent != nil && b.parent.space() > 0
}

func (b *storageBase) armSelfNext() {
	if b.ev != nil {
		b.ev.armNext()
	}
}

func (b *storageBase) armSelfLater() {
	if b.ev != nil {
		b.ev.armLater()
	}
}

// exhaustedStorage is implemented by one-shot storages (immediate,
// one-time) whose single value has already been taken; [Take] consults it
// to report the distinguished Exhausted error instead of "nothing queued".
type exhaustedStorage interface {
	exhausted() bool
}
