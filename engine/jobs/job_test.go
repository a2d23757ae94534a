package jobs

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/core"
)

func newTestJobSystem(t *testing.T, workers int) *JobSystem {
	t.Helper()
	js, err := NewJobSystem(workers, 64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = js.Shutdown() })
	return js
}

func TestNewJobSystemValidation(t *testing.T) {
	_, err := NewJobSystem(0, 8)
	assert.ErrorIs(t, err, core.ErrNoWorkers)
	_, err = NewJobSystem(2, 0)
	assert.ErrorIs(t, err, core.ErrNegativeChannelSize)
}

func TestSubmitTaskFuture(t *testing.T) {
	js := newTestJobSystem(t, 2)

	f := js.SubmitTask(func() (any, error) { return 42, nil })
	v, err := f.Get()
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	boom := errors.New("boom")
	_, err = js.SubmitTask(func() (any, error) { return nil, boom }).Get()
	assert.ErrorIs(t, err, boom)

	_, err = js.SubmitTask(func() (any, error) { panic("bad index") }).Get()
	assert.ErrorContains(t, err, "bad index")

	assert.True(t, js.SubmitTask(func() (any, error) { return true, nil }).Bool())
}

func TestSubmitLoopVisitsEveryIndexOnce(t *testing.T) {
	js := newTestJobSystem(t, 4)

	const n = 1000
	var hits [n]atomic.Int32
	js.SubmitLoop(0, n, func(i int) { hits[i].Add(1) }).Wait()

	for i := range hits {
		assert.EqualValues(t, 1, hits[i].Load(), "index %d", i)
	}
}

func TestSubmitBlocksAreContiguous(t *testing.T) {
	js := newTestJobSystem(t, 3)

	var total atomic.Int64
	var blocks atomic.Int32
	js.SubmitBlocks(10, 20, func(lo, hi int) {
		assert.Less(t, lo, hi)
		blocks.Add(1)
		for i := lo; i < hi; i++ {
			total.Add(int64(i))
		}
	}).Wait()

	assert.EqualValues(t, 145, total.Load())
	assert.LessOrEqual(t, blocks.Load(), int32(3))

	// empty ranges complete immediately
	js.SubmitLoop(5, 5, func(int) { t.Fatal("must not run") }).Wait()
}

func TestNestedLoopsDoNotStarve(t *testing.T) {
	js := newTestJobSystem(t, 1)

	var sum atomic.Int64
	outer := js.SubmitTask(func() (any, error) {
		js.SubmitLoop(0, 100, func(i int) { sum.Add(int64(i)) }).Wait()
		return nil, nil
	})
	_, err := outer.Get()
	require.NoError(t, err)
	assert.EqualValues(t, 4950, sum.Load())
}

func TestLoopPanicResurfacesOnWait(t *testing.T) {
	js := newTestJobSystem(t, 2)
	w := js.SubmitLoop(0, 4, func(i int) {
		if i == 2 {
			panic("nil mesh")
		}
	})
	assert.Panics(t, w.Wait)
}

func TestLatch(t *testing.T) {
	js := newTestJobSystem(t, 3)
	l := NewLatch(3)
	var done atomic.Int32
	for i := 0; i < 3; i++ {
		js.DetachTask(func() {
			done.Add(1)
			l.CountDown()
		})
	}
	l.Wait()
	assert.EqualValues(t, 3, done.Load())
	assert.True(t, l.TryWait())

	l.CountDown()
	assert.True(t, l.TryWait(), "extra count downs are ignored")
}

func TestShutdownTwice(t *testing.T) {
	js, err := NewJobSystem(1, 4)
	require.NoError(t, err)
	require.NoError(t, js.Shutdown())
	assert.ErrorIs(t, js.Shutdown(), core.ErrJobSystemStopped)

	// after shutdown work still completes on the caller
	v, err := js.SubmitTask(func() (any, error) { return "inline", nil }).Get()
	require.NoError(t, err)
	assert.Equal(t, "inline", v)
}
