package saw

// convertNode transforms its child's value through fn; on a child error it
// applies errFn, which may propagate, substitute, or map to a different
// error. It holds no storage of its own: getResult pulls straight through
// the child, so a take (or a pulling parent storage) sees the transformed
// value synchronously. Panics raised by either callback are recovered and
// turned into a critical error, the Go stand-in for the reference
// implementation's bad_alloc/exception trapping.
type convertNode[T, U any] struct {
	child node
	fn    func(T) Result[U]
	errFn func(Error) Result[U]
}

// PropagateError is the default error callback: it forwards the error
// unchanged, re-typed to the output type.
func PropagateError[T, U any](err Error) Result[U] {
	return Failure[U](err)
}

func newConvertNode[T, U any](child node, fn func(T) Result[U], errFn func(Error) Result[U]) *convertNode[T, U] {
	return &convertNode[T, U]{child: child, fn: fn, errFn: errFn}
}

func (n *convertNode[T, U]) safeApply(v T) (out Result[U]) {
	defer func() {
		if rec := recover(); rec != nil {
			out = Failure[U](CriticalErrorf("panic in convert callback: %v", rec))
		}
	}()
	return n.fn(v)
}

func (n *convertNode[T, U]) safeApplyErr(e Error) (out Result[U]) {
	defer func() {
		if rec := recover(); rec != nil {
			out = Failure[U](CriticalErrorf("panic in convert error callback: %v", rec))
		}
	}()
	return n.errFn(e)
}

func (n *convertNode[T, U]) getResult(out resultCarrier) {
	box := carrierAs[U](out)
	if n.child == nil {
		box.Result = Failure[U](CriticalError("conveyor doesn't have a child"))
		return
	}
	dep := newCarrier[T]()
	n.child.getResult(dep)
	r := dep.Result
	switch {
	case r.IsError():
		if n.errFn != nil {
			box.Result = n.safeApplyErr(r.Err())
		} else {
			box.Result = Failure[U](r.Err())
		}
	case r.IsValue():
		box.Result = n.safeApply(r.Get())
	default:
		box.Result = Failure[U](CriticalError("no value set in dependency"))
	}
}
