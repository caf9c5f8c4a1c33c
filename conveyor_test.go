package saw

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestImmediateConveyorFiresOnce: a one-shot producer yields its value
// exactly once, then the distinguished Exhausted error.
func TestImmediateConveyorFiresOnce(t *testing.T) {
	loop := NewLoop()
	conv := NewImmediateConveyor(loop, 7)
	loop.Poll()

	r := Take(conv)
	require.True(t, r.IsValue())
	require.Equal(t, 7, r.Get())

	r2 := Take(conv)
	require.True(t, r2.IsError())
	require.Equal(t, CodeExhausted, r2.Err().Code())
}

func TestThenChainsTransform(t *testing.T) {
	loop := NewLoop()
	conv := NewImmediateConveyor(loop, 3)
	doubled := Map(conv, func(v int) int { return v * 2 })
	loop.Poll()

	r := Take(doubled)
	require.True(t, r.IsValue())
	require.Equal(t, 6, r.Get())
}

func TestThenPropagatesErrors(t *testing.T) {
	loop := NewLoop()
	conv := NewImmediateErrorConveyor[int](loop, CriticalError("upstream broke"))
	mapped := Map(conv, func(v int) int { return v + 1 })
	loop.Poll()

	r := Take(mapped)
	require.True(t, r.IsError())
	require.Equal(t, "upstream broke", r.Err().Error())
}

func TestThenCatchObservesError(t *testing.T) {
	loop := NewLoop()
	conv := NewImmediateErrorConveyor[int](loop, RecoverableError("retry me"))
	caught := ThenCatch(conv, func(v int) Result[int] {
		return Value(v)
	}, func(err Error) Result[int] {
		return Value(-1)
	})
	loop.Poll()

	r := Take(caught)
	require.True(t, r.IsValue())
	require.Equal(t, -1, r.Get())
}

// TestBufferBackpressure: two values fill a limit-2 buffer, so queued()
// reaches the limit; after the consumer takes one, a value fed afterwards
// is pulled into the freed slot on the next poll, behind the one still
// queued.
func TestBufferBackpressure(t *testing.T) {
	loop := NewLoop()
	conv, feeder := NewAdaptConveyorAndFeeder[int](loop)
	buffered := Buffer(conv, 2)

	feeder.Feed(1)
	feeder.Feed(2)
	loop.Poll()

	require.Equal(t, 2, buffered.Queued())

	first := Take(buffered)
	require.True(t, first.IsValue())
	require.Equal(t, 1, first.Get())

	feeder.Feed(3)
	loop.Poll()

	second := Take(buffered)
	require.Equal(t, 2, second.Get())

	loop.Poll()
	third := Take(buffered)
	require.Equal(t, 3, third.Get())
}

func TestAttachKeepsResourceReachable(t *testing.T) {
	loop := NewLoop()
	conv := NewImmediateConveyor(loop, "value")
	type closer struct{ closed bool }
	res := &closer{}
	attached := Attach(conv, res)
	loop.Poll()

	r := Take(attached)
	require.True(t, r.IsValue())
	require.Equal(t, "value", r.Get())
	require.False(t, res.closed)
}

func TestMergeFansInRoundRobin(t *testing.T) {
	loop := NewLoop()
	a, fa := NewAdaptConveyorAndFeeder[int](loop)
	b, fb := NewAdaptConveyorAndFeeder[int](loop)
	merged := Merge(loop, a, b)

	fa.Feed(1)
	fb.Feed(2)
	loop.Poll()

	seen := map[int]bool{}
	for i := 0; i < 2; i++ {
		r := Take(merged)
		require.True(t, r.IsValue())
		seen[r.Get()] = true
	}
	require.True(t, seen[1])
	require.True(t, seen[2])
}

func TestMergePanicsOnCrossLoopInputs(t *testing.T) {
	loopA := NewLoop()
	loopB := NewLoop()
	a := NewImmediateConveyor(loopA, 1)
	b := NewImmediateConveyor(loopB, 2)
	require.Panics(t, func() { Merge(loopA, a, b) })
}

func TestConveyorPanicsWhenReusedAfterConsumption(t *testing.T) {
	loop := NewLoop()
	conv := NewImmediateConveyor(loop, 1)
	_ = Map(conv, func(v int) int { return v })
	require.Panics(t, func() { Map(conv, func(v int) int { return v }) })
}

// TestAdaptFeedThenTakeNeedsNoPoll: a value fed to an adapt conveyor is
// takeable immediately; the take pulls straight from the adapt queue
// without an intervening poll.
func TestAdaptFeedThenTakeNeedsNoPoll(t *testing.T) {
	loop := NewLoop()
	conv, feeder := NewAdaptConveyorAndFeeder[int](loop)

	feeder.Feed(5)
	feeder.Feed(10)
	feeder.Feed(2)
	feeder.Feed(4234)

	for _, want := range []int{5, 10, 2, 4234} {
		r := Take(conv)
		require.True(t, r.IsValue())
		require.Equal(t, want, r.Get())
	}

	r := Take(conv)
	require.True(t, r.IsError())
	require.True(t, r.Err().Recoverable())
}

func TestMultistepTransformChain(t *testing.T) {
	loop := NewLoop()
	conv, feeder := NewAdaptConveyorAndFeeder[int](loop)

	chained := Map(Map(Map(conv,
		func(v int) string { return strconv.Itoa(v) }),
		func(s string) bool { return s != "10" }),
		func(b bool) bool { return !b })

	feeder.Feed(10)

	r := Take(chained)
	require.True(t, r.IsValue())
	require.True(t, r.Get())
}

// TestAttachBufferPipeline drives a multi-stage chain with buffers between
// transform stages and an attached counter bumped once per message: three
// fed values come out transformed, in order, via three consecutive takes
// after a single poll.
func TestAttachBufferPipeline(t *testing.T) {
	loop := NewLoop()
	conv, feeder := NewAdaptConveyorAndFeeder[int](loop)

	counter := new(int)
	pipeline := Buffer(Map(Buffer(Map(Buffer(Attach(Map(conv, func(v int) string {
		*counter++
		return strconv.Itoa(v + *counter)
	}), counter), 10), func(s string) string { return s + "post" }), 10), func(s string) string { return "pre" + s }), 10)

	feeder.Feed(10)
	feeder.Feed(20)
	feeder.Feed(30)

	loop.Poll()

	for _, want := range []string{"pre11post", "pre22post", "pre33post"} {
		r := Take(pipeline)
		require.True(t, r.IsValue())
		require.Equal(t, want, r.Get())
	}
}

// TestDetachedChainRunsSideEffect: a detached chain built on an immediate
// value runs its side effect within one poll, stays tracked by the daemon
// while alive, and is collected once its sink dies.
func TestDetachedChainRunsSideEffect(t *testing.T) {
	loop := NewLoop()

	num := 0
	mapped := Map(NewImmediateConveyor(loop, 10), func(v int) int {
		num = v
		return v
	})
	Detach(Sink(mapped, func(Result[int]) error { return nil }))

	loop.Poll()

	require.Equal(t, 10, num)
	require.Equal(t, 1, loop.daemon.len())
}

// TestMergeDeliversAllInputsToSink covers merge fan-in end to end: three
// one-value inputs merged into one chain reach the sink within a single
// poll, each exactly once.
func TestMergeDeliversAllInputsToSink(t *testing.T) {
	loop := NewLoop()

	merged := Merge(loop,
		NewImmediateConveyor(loop, 10),
		NewImmediateConveyor(loop, 11),
		NewImmediateConveyor(loop, 14),
	)

	seen := map[int]int{}
	handle := Sink(merged, func(r Result[int]) error {
		if r.IsValue() {
			seen[r.Get()]++
		}
		return nil
	})
	_ = handle

	loop.Poll()

	require.Len(t, seen, 3)
	for _, v := range []int{10, 11, 14} {
		require.Equal(t, 1, seen[v])
	}
}

func TestSinkDrainsFedValues(t *testing.T) {
	loop := NewLoop()
	conv, feeder := NewAdaptConveyorAndFeeder[int](loop)

	var seen []int
	handle := Sink(conv, func(r Result[int]) error {
		if r.IsError() {
			return nil
		}
		seen = append(seen, r.Get())
		return nil
	})
	_ = handle

	feeder.Feed(1)
	feeder.Feed(2)
	loop.Poll()

	require.Equal(t, []int{1, 2}, seen)
}

func TestSinkTerminatesOnCriticalError(t *testing.T) {
	loop := NewLoop()
	conv, feeder := NewOneTimeConveyorAndFeeder[int](loop)

	done := false
	var gotErr Error
	handle := Sink(conv, func(r Result[int]) error { return nil })
	if sn, ok := handle.node.(interface{ setOnDone(func(Error)) }); ok {
		sn.setOnDone(func(err Error) {
			done = true
			gotErr = err
		})
	}

	feeder.Fail(CriticalError("fatal"))
	loop.Poll()

	require.True(t, done)
	require.Equal(t, "fatal", gotErr.Error())
}

func TestDetachRunsUnderDaemon(t *testing.T) {
	loop := NewLoop()
	conv, feeder := NewOneTimeConveyorAndFeeder[int](loop)
	handle := Sink(conv, func(Result[int]) error { return nil })
	Detach(handle)

	require.Equal(t, 1, loop.daemon.len())
	feeder.Fail(CriticalError("detached chain failed"))
	loop.Poll()
	loop.daemon.scavenge()
	require.Equal(t, 0, loop.daemon.len())
}
