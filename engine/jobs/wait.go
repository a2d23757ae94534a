package jobs

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Future is the result of a single submitted task.
type Future struct {
	done  chan struct{}
	value any
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(v any, err error) {
	f.value = v
	f.err = err
	close(f.done)
}

// Get blocks until the task finished and returns its result.
func (f *Future) Get() (any, error) {
	<-f.done
	return f.value, f.err
}

// Bool is Get for tasks that return a bool. A failed task reports false.
func (f *Future) Bool() bool {
	v, err := f.Get()
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

type block struct {
	lo, hi  int
	fn      func(lo, hi int)
	claimed atomic.Bool
}

// Wait joins the blocks of a SubmitLoop. Waiting runs any block no worker
// has picked up yet on the waiting goroutine, so nested loops cannot starve
// the pool.
type Wait struct {
	blocks []*block
	wg     sync.WaitGroup
	mu     sync.Mutex
	panic  any
}

func (w *Wait) add(lo, hi int, fn func(lo, hi int)) {
	w.blocks = append(w.blocks, &block{lo: lo, hi: hi, fn: fn})
	w.wg.Add(1)
}

func (w *Wait) run(b *block) {
	if !b.claimed.CompareAndSwap(false, true) {
		return
	}
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.mu.Lock()
			if w.panic == nil {
				w.panic = r
			}
			w.mu.Unlock()
		}
	}()
	b.fn(b.lo, b.hi)
}

// Wait blocks until every block ran. A panic raised by a block is re-raised here.
func (w *Wait) Wait() {
	for _, b := range w.blocks {
		w.run(b)
	}
	w.wg.Wait()
	if w.panic != nil {
		panic(fmt.Sprintf("parallel loop: %v", w.panic))
	}
}

// Latch counts down from n; Wait returns once CountDown was called n times.
type Latch struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

func NewLatch(n int) *Latch {
	l := &Latch{count: n}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *Latch) CountDown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return
	}
	l.count--
	if l.count == 0 {
		l.cond.Broadcast()
	}
}

func (l *Latch) Wait() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.count > 0 {
		l.cond.Wait()
	}
}

// TryWait reports whether the latch already reached zero.
func (l *Latch) TryWait() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count == 0
}
