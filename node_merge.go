package saw

// mergeNode fans N attached inputs into one logical output, fair by
// round-robin over a next-appendage cursor. Each appendage is the storage
// parent of one input chain and holds at most one pulled value; only one
// appendage's value is delivered per getResult.
//
// The cursor advances exactly once per delivered value, immediately after
// the chosen appendage is drained, which is what bounds every appendage's
// share of k deliveries across n ready inputs to floor(k/n)..ceil(k/n).
type mergeNode[T any] struct {
	storageBase
	appendages []*mergeAppendage[T]
	next       int
}

// mergeAppendage consumes one attached input: it sits as the storage
// parent of the input's chain and buffers a single pulled value until the
// merge delivers it.
type mergeAppendage[T any] struct {
	merge        *mergeNode[T]
	childNode    node
	childStorage storageNode
	slot         *Result[T]
}

func newMergeNode[T any](loop *Loop) *mergeNode[T] {
	n := &mergeNode[T]{storageBase: storageBase{loop: loop}}
	n.self = n
	n.ev = newEvent(loop, "merge", n.fire)
	return n
}

func (n *mergeNode[T]) attach(childNode node, childStorage storageNode) {
	a := &mergeAppendage[T]{merge: n, childNode: childNode, childStorage: childStorage}
	n.appendages = append(n.appendages, a)
	childStorage.setParent(a)
	a.refill()
}

func (a *mergeAppendage[T]) ready() bool {
	return a.slot != nil || (a.childStorage != nil && a.childStorage.queued() > 0)
}

// refill pulls one value up into the appendage's slot if its input has one
// queued, and tells the merge so it can notify upward.
func (a *mergeAppendage[T]) refill() {
	if a.slot != nil || a.childStorage == nil || a.childStorage.queued() <= 0 {
		return
	}
	dep := newCarrier[T]()
	a.childNode.getResult(dep)
	r := dep.Result
	a.slot = &r
	a.childStorage.parentHasFired()
	a.merge.armSelfNext()
}

// take moves the appendage's next value into box, refilling the slot from
// the input chain so a subsequent delivery needs no intervening poll.
func (a *mergeAppendage[T]) take(box *resultCarrierBox[T]) {
	if a.slot != nil {
		box.Result = *a.slot
		a.slot = nil
		a.refill()
		return
	}
	dep := newCarrier[T]()
	a.childNode.getResult(dep)
	box.Result = dep.Result
	if a.childStorage != nil {
		a.childStorage.parentHasFired()
	}
}

func (a *mergeAppendage[T]) space() int {
	if a.slot != nil {
		return 0
	}
	return 1
}

func (a *mergeAppendage[T]) queued() int {
	if a.slot != nil {
		return 1
	}
	return 0
}

func (a *mergeAppendage[T]) childHasFired()        { a.refill() }
func (a *mergeAppendage[T]) parentHasFired()       {}
func (a *mergeAppendage[T]) setParent(storageNode) {}

func (n *mergeNode[T]) fire() {
	if n.parent == nil {
		return
	}
	n.parent.childHasFired()
	if n.queued() > 0 && n.parentHasSpace() {
		n.armSelfLater()
	}
}

func (n *mergeNode[T]) getResult(out resultCarrier) {
	box := carrierAs[T](out)
	count := len(n.appendages)
	for i := 0; i < count; i++ {
		idx := (n.next + i) % count
		a := n.appendages[idx]
		if !a.ready() {
			continue
		}
		a.take(box)
		n.next = (idx + 1) % count
		return
	}
	box.Result = Failure[T](CriticalError("retrieval signalled even though no data is present"))
}

func (n *mergeNode[T]) space() int { return 1 }

func (n *mergeNode[T]) queued() int {
	ready := 0
	for _, a := range n.appendages {
		if a.ready() {
			ready++
		}
	}
	return ready
}

func (n *mergeNode[T]) childHasFired() {}

func (n *mergeNode[T]) parentHasFired() {
	if n.queued() > 0 {
		n.armSelfNext()
	}
}
