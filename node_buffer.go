package saw

// bufferNode is a bounded queue sitting between a child storage and a
// parent: the sole source of backpressure in the graph. It pulls from the
// chain below (through any transform stages) as long as space allows, and
// stops pulling, without ever dropping anything, once full; draining by
// the parent (or by [Take]) releases room and resumes the pull.
//
// A critical error reaching the front of the queue dissolves the chain
// below: the child references are dropped so the subtree becomes
// unreachable, while the error itself stays queued for delivery.
type bufferNode[T any] struct {
	storageBase
	childNode    node
	childStorage storageNode
	limit        int
	q            resultFIFO[T]
}

func newBufferNode[T any](loop *Loop, childNode node, childStorage storageNode, limit int) *bufferNode[T] {
	if limit <= 0 {
		limit = 1
	}
	n := &bufferNode[T]{
		storageBase:  storageBase{loop: loop},
		childNode:    childNode,
		childStorage: childStorage,
		limit:        limit,
	}
	n.self = n
	n.ev = newEvent(loop, "buffer", n.fire)
	n.pump()
	return n
}

// pump pulls queued values up from the chain below until the buffer is
// full or the child storage runs dry, arming the buffer's own event so the
// parent hears about whatever arrived.
func (n *bufferNode[T]) pump() {
	pulled := false
	for n.q.len() < n.limit && n.childStorage != nil && n.childStorage.queued() > 0 {
		dep := newCarrier[T]()
		n.childNode.getResult(dep)
		n.q.push(dep.Result)
		n.childStorage.parentHasFired()
		pulled = true
	}
	if pulled {
		n.armSelfNext()
	}
}

func (n *bufferNode[T]) fire() {
	if front, ok := n.q.peek(); ok && front.IsError() && front.Err().Critical() {
		n.childNode = nil
		n.childStorage = nil
	}
	if n.parent == nil {
		return
	}
	n.parent.childHasFired()
	if n.q.len() > 0 && n.parentHasSpace() {
		n.armSelfLater()
	}
}

func (n *bufferNode[T]) getResult(out resultCarrier) {
	box := carrierAs[T](out)
	r, ok := n.q.pop()
	if !ok {
		box.Result = Failure[T](CriticalError("retrieval signalled even though no data is present"))
		return
	}
	box.Result = r
}

func (n *bufferNode[T]) space() int  { return n.limit - n.q.len() }
func (n *bufferNode[T]) queued() int { return n.q.len() }

func (n *bufferNode[T]) childHasFired() {
	n.pump()
}

func (n *bufferNode[T]) parentHasFired() {
	n.pump()
}
