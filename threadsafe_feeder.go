package saw

import "sync"

// ThreadsafeFeeder wraps an adapt [Feeder] with a mutex-guarded pending
// slice and a reactor wake, so goroutines other than the loop's owner can
// produce values safely. It is built strictly from the primitives the core
// already exposes (wake, the adapt feeder) rather than adding a new core
// obligation: the core's only cross-thread-safe call is EventPort.Wake, and
// everything richer is a library built on top of it, same as here.
type ThreadsafeFeeder[T any] struct {
	mu      sync.Mutex
	pending []Result[T]
	feeder  *Feeder[T]
	port    EventPort
}

// NewThreadsafeFeeder pairs an adapt conveyor/feeder with a port to wake.
// Call [ThreadsafeFeeder.Drain] from the loop's goroutine (e.g. via a
// dedicated Adapt conveyor of its own, or simply once per turn) to move
// pending values into the underlying feeder.
func NewThreadsafeFeeder[T any](loop *Loop, port EventPort) (*Conveyor[T], *ThreadsafeFeeder[T]) {
	conv, feeder := NewAdaptConveyorAndFeeder[T](loop)
	return conv, &ThreadsafeFeeder[T]{feeder: feeder, port: port}
}

// Feed is safe to call from any goroutine: it queues v and wakes the loop
// so Drain gets a chance to run promptly.
func (t *ThreadsafeFeeder[T]) Feed(v T) {
	t.mu.Lock()
	t.pending = append(t.pending, Value(v))
	t.mu.Unlock()
	if t.port != nil {
		t.port.Wake()
	}
}

// Fail is the error-carrying counterpart to Feed.
func (t *ThreadsafeFeeder[T]) Fail(err Error) {
	t.mu.Lock()
	t.pending = append(t.pending, Failure[T](err))
	t.mu.Unlock()
	if t.port != nil {
		t.port.Wake()
	}
}

// Drain must be called from the loop's goroutine; it moves every pending
// value into the wrapped adapt feeder, in FIFO order.
func (t *ThreadsafeFeeder[T]) Drain() int {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()
	for _, r := range pending {
		if r.IsError() {
			t.feeder.Fail(r.Err())
		} else {
			t.feeder.Feed(r.Get())
		}
	}
	return len(pending)
}
