package renderer

import (
	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type destroyer interface {
	Destroy()
}

type retired struct {
	frame uint64
	obj   interface{}
}

// DeferredQueue holds device objects that may still be referenced by frames in
// flight. An object retired during frame n is destroyed once frame n+FramesInFlight begins.
type DeferredQueue struct {
	device  metadata.Device
	queue   *containers.RingQueue[retired]
	current uint64
}

func NewDeferredQueue(device metadata.Device) *DeferredQueue {
	return &DeferredQueue{
		device: device,
		queue:  containers.NewRingQueue[retired](64),
	}
}

// Retire schedules obj for destruction.
func (q *DeferredQueue) Retire(obj interface{}) {
	if obj == nil {
		return
	}
	if q.queue.IsFull() {
		q.queue.Grow()
	}
	// The queue was just grown, so this cannot fail.
	_ = q.queue.Enqueue(retired{frame: q.current, obj: obj})
}

// Advance moves to the next frame and destroys everything old enough.
func (q *DeferredQueue) Advance() {
	q.current++
	for !q.queue.IsEmpty() {
		next, _ := q.queue.Peek()
		if next.frame+metadata.FramesInFlight > q.current {
			return
		}
		q.queue.Dequeue()
		q.destroy(next.obj)
	}
}

func (q *DeferredQueue) Pending() int {
	return q.queue.Len()
}

// Flush destroys everything regardless of age. The device must be idle.
func (q *DeferredQueue) Flush() {
	for !q.queue.IsEmpty() {
		next, _ := q.queue.Dequeue()
		q.destroy(next.obj)
	}
}

func (q *DeferredQueue) destroy(obj interface{}) {
	if d, ok := obj.(destroyer); ok {
		d.Destroy()
		return
	}
	q.device.Destroy(obj)
}

// retire hands a replaced device resource to q, or destroys it right away when
// there is no queue.
func retire(q *DeferredQueue, obj destroyer) {
	if q == nil {
		obj.Destroy()
		return
	}
	q.Retire(obj)
}
