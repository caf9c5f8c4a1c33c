package saw

import (
	"container/heap"
	"time"
)

// timerEntry is one scheduled deadline; fire is called (on the loop's
// goroutine, from fireExpiredTimers) once the deadline has passed.
type timerEntry struct {
	deadline time.Time
	seq      uint64
	index    int
	fire     func()
	canceled bool
}

// timerHeap is a deadline-ordered min-heap, giving the timer facility
// O(log n) schedule/cancel and O(1) "what's next" queries; cancellation
// marks entries rather than splicing them, and expired or canceled heads
// are dropped lazily.
type timerHeap struct {
	items []*timerEntry
	seq   uint64
}

func (h *timerHeap) Len() int { return len(h.items) }
func (h *timerHeap) Less(i, j int) bool {
	return h.items[i].deadline.Before(h.items[j].deadline)
}
func (h *timerHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(h.items)
	h.items = append(h.items, e)
}
func (h *timerHeap) Pop() any {
	old := h.items
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	e.index = -1
	return e
}

func (h *timerHeap) len() int {
	n := 0
	for _, e := range h.items {
		if !e.canceled {
			n++
		}
	}
	return n
}

func (h *timerHeap) schedule(deadline time.Time, fire func()) *timerEntry {
	h.seq++
	e := &timerEntry{deadline: deadline, seq: h.seq, fire: fire}
	heap.Push(h, e)
	return e
}

func (h *timerHeap) cancel(e *timerEntry) {
	if e.index < 0 || e.index >= len(h.items) || h.items[e.index] != e {
		return
	}
	e.canceled = true
}

// nextDeadline returns how long until the nearest live timer fires.
func (h *timerHeap) nextDeadline() (time.Duration, bool) {
	for h.Len() > 0 && h.items[0].canceled {
		heap.Pop(h)
	}
	if h.Len() == 0 {
		return 0, false
	}
	d := time.Until(h.items[0].deadline)
	if d < 0 {
		d = 0
	}
	return d, true
}

// fireExpiredTimers pops and fires every timer whose deadline has passed.
func (l *Loop) fireExpiredTimers() {
	now := time.Now()
	for l.timers.Len() > 0 {
		top := l.timers.items[0]
		if top.canceled {
			heap.Pop(&l.timers)
			continue
		}
		if top.deadline.After(now) {
			return
		}
		heap.Pop(&l.timers)
		top.fire()
	}
}

// Timer is a cancellable handle for a scheduled [Loop.AfterDelay] or
// [Loop.AtDeadline] conveyor.
type Timer struct {
	entry *timerEntry
	heap  *timerHeap
}

// Cancel prevents the timer from firing, if it has not already.
func (t *Timer) Cancel() {
	t.heap.cancel(t.entry)
}

// AfterDelay returns a Conveyor that fires exactly once, no earlier than d
// after this call, and a Timer handle that can cancel it before it fires.
func (l *Loop) AfterDelay(d time.Duration) (*Conveyor[struct{}], *Timer) {
	return l.AtDeadline(time.Now().Add(d))
}

// AtDeadline returns a Conveyor that fires exactly once at or after t.
func (l *Loop) AtDeadline(t time.Time) (*Conveyor[struct{}], *Timer) {
	conv, feeder := newOneTimeConveyorAndFeeder[struct{}](l)
	entry := l.timers.schedule(t, func() {
		feeder.Feed(struct{}{})
	})
	return conv, &Timer{entry: entry, heap: &l.timers}
}
