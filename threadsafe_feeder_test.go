package saw

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThreadsafeFeederDrainMovesAllPending(t *testing.T) {
	loop := NewLoop()
	conv, tsf := NewThreadsafeFeeder[int](loop, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			tsf.Feed(i)
		}()
	}
	wg.Wait()

	n := tsf.Drain()
	require.Equal(t, 8, n)

	loop.Poll()

	seen := map[int]bool{}
	for i := 0; i < 8; i++ {
		r := Take(conv)
		require.True(t, r.IsValue())
		seen[r.Get()] = true
	}
	for i := 0; i < 8; i++ {
		require.True(t, seen[i])
	}
}

func TestThreadsafeFeederFailSurfacesError(t *testing.T) {
	loop := NewLoop()
	conv, tsf := NewThreadsafeFeeder[int](loop, nil)

	tsf.Fail(CriticalError("background producer died"))
	tsf.Drain()
	loop.Poll()

	r := Take(conv)
	require.True(t, r.IsError())
	require.Equal(t, "background producer died", r.Err().Error())
}
