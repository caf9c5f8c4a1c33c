package saw

// Conveyor is the user-facing, type-safe handle over a conveyor chain: it
// pairs the chain's topmost node with a non-owning pointer at the nearest
// storage edge below it. Transform stages (Then, Attach) wrap the node but
// leave the storage pointer alone, since they pull straight through;
// buffering stages (Buffer, Merge) become the new storage themselves.
//
// A Conveyor is move-only in spirit: every combinator that consumes one
// marks it used, and using it again panics rather than silently aliasing a
// chain whose ownership has moved on.
type Conveyor[T any] struct {
	loop *Loop
	n    node
	s    storageNode
	used bool
}

func wrapNode[T any](loop *Loop, n node, s storageNode) *Conveyor[T] {
	return &Conveyor[T]{loop: loop, n: n, s: s}
}

func (c *Conveyor[T]) markUsed() {
	if c.used {
		panic("saw: Conveyor used after being consumed by a combinator")
	}
	c.used = true
}

// Loop returns the conveyor's owning loop.
func (c *Conveyor[T]) Loop() *Loop { return c.loop }

// Queued reports how many values are ready at the conveyor's storage edge.
func (c *Conveyor[T]) Queued() int {
	if c.s == nil {
		return 0
	}
	return c.s.queued()
}

// Take pulls exactly one value out of the conveyor, if the storage edge
// has one ready; the pull runs synchronously through any transform stages
// above the storage, so no poll is needed between feeding a value and
// taking it when the path holds no intermediate events. Calling Take when
// nothing is queued yields a recoverable "buffer has no elements" error —
// or, for a one-shot chain whose single value was already taken, the
// distinguished Exhausted error.
func Take[T any](c *Conveyor[T]) Result[T] {
	if c.s == nil {
		return Failure[T](CriticalError("conveyor in invalid state"))
	}
	if c.s.queued() <= 0 {
		if ex, ok := c.s.(exhaustedStorage); ok && ex.exhausted() {
			return Failure[T](ExhaustedError())
		}
		return Failure[T](RecoverableError("conveyor buffer has no elements"))
	}
	carrier := newCarrier[T]()
	c.n.getResult(carrier)
	c.s.parentHasFired()
	return carrier.Result
}

// Then chains a transform: fn receives the child's value and produces a
// new Result. Errors are propagated unchanged (see [PropagateError]);
// use [ThenCatch] to observe/substitute/map errors explicitly.
func Then[T, U any](c *Conveyor[T], fn func(T) Result[U]) *Conveyor[U] {
	c.markUsed()
	n := newConvertNode[T, U](c.n, fn, nil)
	return wrapNode[U](c.loop, n, c.s)
}

// ThenCatch chains a transform with an explicit error callback.
func ThenCatch[T, U any](c *Conveyor[T], fn func(T) Result[U], errFn func(Error) Result[U]) *Conveyor[U] {
	c.markUsed()
	n := newConvertNode[T, U](c.n, fn, errFn)
	return wrapNode[U](c.loop, n, c.s)
}

// Map is sugar over Then for callbacks that cannot themselves fail.
func Map[T, U any](c *Conveyor[T], fn func(T) U) *Conveyor[U] {
	return Then[T, U](c, func(v T) Result[U] { return Value(fn(v)) })
}

// Buffer interposes a bounded queue of the given limit, the sole source of
// backpressure in the graph: once limit items are queued, the chain below
// stops arming until the parent drains one. A limit <= 0 uses the loop's
// configured default (see [WithBufferLimit]).
func Buffer[T any](c *Conveyor[T], limit int) *Conveyor[T] {
	c.markUsed()
	if limit <= 0 {
		limit = c.loop.defaultBufferLimit
	}
	n := newBufferNode[T](c.loop, c.n, c.s, limit)
	c.s.setParent(n)
	return wrapNode[T](c.loop, n, n)
}

// Attach keeps resources alive for as long as the returned conveyor (and
// anything built on top of it) is reachable, while passing values through
// unchanged.
func Attach[T any](c *Conveyor[T], resources ...any) *Conveyor[T] {
	c.markUsed()
	n := newAttachNode[T](c.n, resources)
	return wrapNode[T](c.loop, n, c.s)
}

// Merge fans multiple same-typed conveyors into one, fair by round-robin.
// All inputs must share a loop; Merge panics otherwise, since mixing loops
// is a programmer error, not a recoverable condition.
func Merge[T any](loop *Loop, inputs ...*Conveyor[T]) *Conveyor[T] {
	m := newMergeNode[T](loop)
	for _, in := range inputs {
		if in.loop != loop {
			panic("saw: Merge inputs must belong to the same loop")
		}
		in.markUsed()
		m.attach(in.n, in.s)
	}
	return wrapNode[T](loop, m, m)
}
