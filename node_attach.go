package saw

// attachNode is a pure ownership pass-through: it forwards its child's
// values/errors unchanged while keeping arbitrary extra resources (a
// counter, a file handle, a cancel func) alive until the node itself
// becomes unreachable. Go's garbage collector means "holding resources
// alive" reduces to "keep a reference so it isn't collected"; resources
// needing an explicit release remain the caller's business.
type attachNode[T any] struct {
	child     node
	resources []any
}

func newAttachNode[T any](child node, resources []any) *attachNode[T] {
	return &attachNode[T]{child: child, resources: resources}
}

func (n *attachNode[T]) getResult(out resultCarrier) {
	if n.child == nil {
		carrierAs[T](out).Result = Failure[T](CriticalError("conveyor doesn't have a child"))
		return
	}
	n.child.getResult(out)
}
