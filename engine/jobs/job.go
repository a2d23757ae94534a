package jobs

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/spaghettifunk/lumen/engine/core"
)

// JobSystem runs CPU work for the frame loop on a fixed set of workers.
// Every submission is joined (Future, Wait or Latch) before the frame loop
// records command buffers.
type JobSystem struct {
	numWorkers int
	pool       worker.DynamicWorkerPool
	nextID     atomic.Int64
	stopped    atomic.Bool
	inflight   sync.WaitGroup
}

func NewJobSystem(numWorkers int, queueSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, core.ErrNoWorkers
	}
	if queueSize <= 0 {
		return nil, core.ErrNegativeChannelSize
	}
	js := &JobSystem{
		numWorkers: numWorkers,
		pool:       worker.NewDynamicWorkerPool(numWorkers, queueSize, time.Second),
	}
	core.LogInfo("job system started with %d workers", numWorkers)
	return js, nil
}

func (js *JobSystem) Workers() int {
	return js.numWorkers
}

func (js *JobSystem) submit(do func()) {
	if js.stopped.Load() {
		// no workers left, run on the caller so joins still complete
		do()
		return
	}
	js.inflight.Add(1)
	id := int(js.nextID.Add(1))
	js.pool.SubmitTask(worker.Task{
		ID: id,
		Do: func() (any, error) {
			defer js.inflight.Done()
			do()
			return nil, nil
		},
	})
}

/**
 * @brief Submits fn and returns a future holding its result. A panic inside
 * fn is converted into the future's error.
 */
func (js *JobSystem) SubmitTask(fn func() (any, error)) *Future {
	f := newFuture()
	js.submit(func() {
		defer func() {
			if r := recover(); r != nil {
				f.resolve(nil, fmt.Errorf("job panicked: %v", r))
			}
		}()
		v, err := fn()
		f.resolve(v, err)
	})
	return f
}

/**
 * @brief Fire and forget. Errors are the task's own business.
 */
func (js *JobSystem) DetachTask(fn func()) {
	js.submit(func() {
		defer func() {
			if r := recover(); r != nil {
				core.LogError("detached job panicked: %v", r)
			}
		}()
		fn()
	})
}

/**
 * @brief Calls fn(i) for every i in [begin, end), split into one contiguous
 * block per worker. The returned Wait joins all blocks.
 */
func (js *JobSystem) SubmitLoop(begin, end int, fn func(i int)) *Wait {
	return js.SubmitBlocks(begin, end, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			fn(i)
		}
	})
}

/**
 * @brief Like SubmitLoop but hands each worker its [lo, hi) range directly.
 */
func (js *JobSystem) SubmitBlocks(begin, end int, fn func(lo, hi int)) *Wait {
	w := &Wait{}
	total := end - begin
	if total <= 0 {
		return w
	}
	blocks := min(js.numWorkers, total)
	size := (total + blocks - 1) / blocks

	for lo := begin; lo < end; lo += size {
		hi := min(lo+size, end)
		w.add(lo, hi, fn)
	}
	for i := range w.blocks {
		b := w.blocks[i]
		js.submit(func() { w.run(b) })
	}
	return w
}

/**
 * @brief Shuts the job system down after every submitted task has finished.
 */
func (js *JobSystem) Shutdown() error {
	if js.stopped.Swap(true) {
		return core.ErrJobSystemStopped
	}
	js.inflight.Wait()
	js.pool.Stop()
	core.LogInfo("job system stopped")
	return nil
}
