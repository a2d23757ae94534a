// Package headless is a metadata.Device that records instead of rendering. It
// backs the --headless mode and the renderer tests: every command list is kept
// after submission and buffers keep what was written to them.
package headless

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

var (
	ErrFenceTimeout   = errors.New("headless: fence never signaled")
	ErrSemaphoreState = errors.New("headless: semaphore wait without a pending signal")
	ErrInjected       = errors.New("headless: injected failure")
)

// Object is every handle the device hands out. It deliberately has no Destroy
// method: handles go back through Device.Destroy.
type Object struct {
	Kind  string
	Label string
	ID    uint64
}

func (o *Object) String() string {
	if o.Label == "" {
		return fmt.Sprintf("%s#%d", o.Kind, o.ID)
	}
	return fmt.Sprintf("%s#%d(%s)", o.Kind, o.ID, o.Label)
}

// Submission is one queue submit as the device saw it.
type Submission struct {
	Queue    metadata.QueueKind
	Commands [][]Command
	Wait     []metadata.SemaphoreWait
	Signal   []metadata.Semaphore
	Fence    metadata.Fence
}

type descriptorPool struct {
	maxSets   uint32
	allocated []*Object
}

type Option func(*Device)

func WithLimits(limits metadata.DeviceLimits) Option {
	return func(d *Device) { d.limits = limits }
}

func DefaultLimits() metadata.DeviceLimits {
	return metadata.DeviceLimits{
		SampleCounts:                    metadata.SampleCount1 | metadata.SampleCount2 | metadata.SampleCount4 | metadata.SampleCount8,
		TimestampPeriod:                 1,
		MinUniformBufferOffsetAlignment: 256,
		MinStorageBufferOffsetAlignment: 64,
	}
}

type Device struct {
	mu     sync.Mutex
	limits metadata.DeviceLimits
	nextID uint64

	live       map[*Object]struct{}
	buffers    map[*Object]*Buffer
	pools      map[*Object]*descriptorPool
	fences     map[*Object]bool
	semaphores map[*Object]bool
	failures   map[string]error

	submissions       []Submission
	descriptorWrites  [][]metadata.DescriptorWrite
	graphicsPipelines []metadata.GraphicsPipelineDesc
	computePipelines  []metadata.ComputePipelineDesc
	invalidDestroys   int
	idleWaits         int
}

func New(opts ...Option) *Device {
	d := &Device{
		limits:     DefaultLimits(),
		live:       map[*Object]struct{}{},
		buffers:    map[*Object]*Buffer{},
		pools:      map[*Object]*descriptorPool{},
		fences:     map[*Object]bool{},
		semaphores: map[*Object]bool{},
		failures:   map[string]error{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FailNext makes the next call of the named Device method return err.
func (d *Device) FailNext(method string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	d.failures[method] = err
}

func (d *Device) injected(method string) error {
	err, ok := d.failures[method]
	if !ok {
		return nil
	}
	delete(d.failures, method)
	return fmt.Errorf("%s: %w", method, err)
}

func (d *Device) object(kind, label string) *Object {
	d.nextID++
	o := &Object{Kind: kind, Label: label, ID: d.nextID}
	d.live[o] = struct{}{}
	return o
}

func (d *Device) release(o *Object) {
	if _, ok := d.live[o]; !ok {
		d.invalidDestroys++
		core.LogError("headless: destroy of dead or foreign object %s", o)
		return
	}
	delete(d.live, o)
	delete(d.buffers, o)
	delete(d.fences, o)
	delete(d.semaphores, o)
	if p, ok := d.pools[o]; ok {
		for _, set := range p.allocated {
			delete(d.live, set)
		}
		delete(d.pools, o)
	}
}

func (d *Device) isLive(h interface{}) bool {
	o, ok := h.(*Object)
	if !ok {
		return false
	}
	_, ok = d.live[o]
	return ok
}

func (d *Device) CreateBuffer(desc metadata.BufferDesc) (metadata.DeviceBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateBuffer"); err != nil {
		return nil, err
	}
	if desc.Size == 0 {
		return nil, fmt.Errorf("headless: buffer %s has zero size", desc.Label)
	}
	b := &Buffer{device: d, handle: d.object("buffer", desc.Label), size: desc.Size, usage: desc.Usage}
	d.buffers[b.handle] = b
	return b, nil
}

func (d *Device) CreateImage(desc metadata.ImageDesc) (metadata.DeviceImage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateImage"); err != nil {
		return nil, err
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("headless: image %s has zero extent", desc.Label)
	}
	if desc.Format == metadata.FormatUndefined {
		return nil, fmt.Errorf("headless: image %s has no format", desc.Label)
	}
	return &Image{
		device: d,
		desc:   desc,
		handle: d.object("image", desc.Label),
		view:   d.object("image_view", desc.Label),
	}, nil
}

func (d *Device) CreateSampler(desc metadata.SamplerDesc) (metadata.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateSampler"); err != nil {
		return nil, err
	}
	return d.object("sampler", desc.Label), nil
}

func (d *Device) CreateShaderModule(code []uint32) (metadata.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateShaderModule"); err != nil {
		return nil, err
	}
	if len(code) < 5 || code[0] != metadata.SPIRVMagic {
		return nil, fmt.Errorf("headless: %w", core.ErrInvalidSPIRV)
	}
	return d.object("shader_module", ""), nil
}

func (d *Device) CreateDescriptorSetLayout(bindings []metadata.DescriptorBinding) (metadata.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateDescriptorSetLayout"); err != nil {
		return nil, err
	}
	seen := map[uint32]bool{}
	for _, b := range bindings {
		if seen[b.Binding] {
			return nil, fmt.Errorf("headless: binding %d declared twice", b.Binding)
		}
		seen[b.Binding] = true
	}
	return d.object("descriptor_set_layout", ""), nil
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []metadata.DescriptorPoolSize) (metadata.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateDescriptorPool"); err != nil {
		return nil, err
	}
	if maxSets == 0 {
		return nil, errors.New("headless: descriptor pool without sets")
	}
	o := d.object("descriptor_pool", "")
	d.pools[o] = &descriptorPool{maxSets: maxSets}
	return o, nil
}

func (d *Device) AllocateDescriptorSets(pool metadata.DescriptorPool, layout metadata.DescriptorSetLayout, count uint32) ([]metadata.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("AllocateDescriptorSets"); err != nil {
		return nil, err
	}
	o, _ := pool.(*Object)
	p, ok := d.pools[o]
	if !ok || !d.isLive(layout) {
		return nil, errors.New("headless: allocating from a dead pool or layout")
	}
	if uint32(len(p.allocated))+count > p.maxSets {
		return nil, fmt.Errorf("headless: pool holds %d sets, %d requested", p.maxSets, uint32(len(p.allocated))+count)
	}
	out := make([]metadata.DescriptorSet, count)
	for i := range out {
		set := d.object("descriptor_set", "")
		p.allocated = append(p.allocated, set)
		out[i] = set
	}
	return out, nil
}

func (d *Device) UpdateDescriptorSets(writes []metadata.DescriptorWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	batch := make([]metadata.DescriptorWrite, len(writes))
	copy(batch, writes)
	for _, w := range batch {
		if !d.isLive(w.Set) {
			core.LogError("headless: descriptor write to dead set %v", w.Set)
		}
	}
	d.descriptorWrites = append(d.descriptorWrites, batch)
}

func (d *Device) CreatePipelineLayout(setLayouts []metadata.DescriptorSetLayout, pushConstants []metadata.PushConstantRange) (metadata.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreatePipelineLayout"); err != nil {
		return nil, err
	}
	for i, l := range setLayouts {
		if !d.isLive(l) {
			return nil, fmt.Errorf("headless: set layout %d is not alive", i)
		}
	}
	return d.object("pipeline_layout", ""), nil
}

func (d *Device) CreateGraphicsPipeline(desc *metadata.GraphicsPipelineDesc) (metadata.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateGraphicsPipeline"); err != nil {
		return nil, err
	}
	if !d.isLive(desc.Layout) {
		return nil, fmt.Errorf("headless: pipeline %s has no layout", desc.Label)
	}
	if len(desc.Stages) == 0 {
		return nil, fmt.Errorf("headless: pipeline %s has no stages", desc.Label)
	}
	for _, s := range desc.Stages {
		if !d.isLive(s.Module) {
			return nil, fmt.Errorf("headless: pipeline %s references a dead module for stage %#x", desc.Label, uint32(s.Stage))
		}
	}
	d.graphicsPipelines = append(d.graphicsPipelines, *desc)
	return d.object("graphics_pipeline", desc.Label), nil
}

func (d *Device) CreateComputePipeline(desc *metadata.ComputePipelineDesc) (metadata.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateComputePipeline"); err != nil {
		return nil, err
	}
	if !d.isLive(desc.Layout) || !d.isLive(desc.Module) {
		return nil, fmt.Errorf("headless: compute pipeline %s has a dead layout or module", desc.Label)
	}
	d.computePipelines = append(d.computePipelines, *desc)
	return d.object("compute_pipeline", desc.Label), nil
}

func (d *Device) CreateSemaphore() (metadata.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateSemaphore"); err != nil {
		return nil, err
	}
	o := d.object("semaphore", "")
	d.semaphores[o] = false
	return o, nil
}

func (d *Device) CreateFence(signaled bool) (metadata.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateFence"); err != nil {
		return nil, err
	}
	o := d.object("fence", "")
	d.fences[o] = signaled
	return o, nil
}

// WaitFence returns at once: work completes when it is submitted, so an
// unsignaled fence would never signal.
func (d *Device) WaitFence(fence metadata.Fence, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("WaitFence"); err != nil {
		return err
	}
	o, _ := fence.(*Object)
	signaled, ok := d.fences[o]
	if !ok {
		return errors.New("headless: waiting on a dead fence")
	}
	if !signaled {
		return fmt.Errorf("%w after %s", ErrFenceTimeout, timeout)
	}
	return nil
}

func (d *Device) ResetFence(fence metadata.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, _ := fence.(*Object)
	if _, ok := d.fences[o]; !ok {
		return errors.New("headless: resetting a dead fence")
	}
	d.fences[o] = false
	return nil
}

func (d *Device) AllocateCommandList(queue metadata.QueueKind) (metadata.CommandList, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("AllocateCommandList"); err != nil {
		return nil, err
	}
	return &CommandList{device: d, handle: d.object("command_list", queue.String()), queue: queue}, nil
}

// Submit executes lists immediately: signals are raised, timers resolve and the fence is signaled.
func (d *Device) Submit(queue metadata.QueueKind, info metadata.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("Submit"); err != nil {
		return err
	}
	sub := Submission{Queue: queue, Wait: info.Wait, Signal: info.Signal, Fence: info.Fence}
	for _, c := range info.Commands {
		cl, ok := c.(*CommandList)
		if !ok {
			return fmt.Errorf("headless: foreign command list %T", c)
		}
		if cl.queue != queue {
			return fmt.Errorf("headless: %s command list submitted to the %s queue", cl.queue, queue)
		}
		if cl.recording || !cl.ended {
			return errors.New("headless: submitting a command list that was not ended")
		}
		sub.Commands = append(sub.Commands, cl.Commands())
	}
	for _, w := range info.Wait {
		o, _ := w.Semaphore.(*Object)
		if pending, ok := d.semaphores[o]; !ok || !pending {
			return ErrSemaphoreState
		}
		d.semaphores[o] = false
	}
	for _, s := range info.Signal {
		o, _ := s.(*Object)
		if _, ok := d.semaphores[o]; !ok {
			return errors.New("headless: signaling a dead semaphore")
		}
		d.semaphores[o] = true
	}
	if info.Fence != nil {
		o, _ := info.Fence.(*Object)
		signaled, ok := d.fences[o]
		if !ok {
			return errors.New("headless: submitting with a dead fence")
		}
		if signaled {
			return errors.New("headless: submit fence must be unsignaled")
		}
		d.fences[o] = true
	}
	for _, c := range info.Commands {
		c.(*CommandList).execute()
	}
	d.submissions = append(d.submissions, sub)
	return nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.idleWaits++
	return d.injected("WaitIdle")
}

func (d *Device) Limits() metadata.DeviceLimits {
	return d.limits
}

func (d *Device) Destroy(obj interface{}) {
	switch o := obj.(type) {
	case *Buffer:
		o.Destroy()
	case *Image:
		o.Destroy()
	case *CommandList:
		d.mu.Lock()
		d.release(o.handle)
		d.mu.Unlock()
	case *Object:
		d.mu.Lock()
		d.release(o)
		d.mu.Unlock()
	default:
		d.mu.Lock()
		d.invalidDestroys++
		d.mu.Unlock()
		core.LogError("headless: destroy of unknown object %T", obj)
	}
}

// Live counts the objects created and not yet destroyed, optionally of one kind.
func (d *Device) Live(kind ...string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(kind) == 0 {
		return len(d.live)
	}
	n := 0
	for o := range d.live {
		for _, k := range kind {
			if o.Kind == k {
				n++
			}
		}
	}
	return n
}

func (d *Device) InvalidDestroys() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.invalidDestroys
}

func (d *Device) IdleWaits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idleWaits
}

func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submission(nil), d.submissions...)
}

func (d *Device) DescriptorWrites() [][]metadata.DescriptorWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]metadata.DescriptorWrite(nil), d.descriptorWrites...)
}

func (d *Device) GraphicsPipelines() []metadata.GraphicsPipelineDesc {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]metadata.GraphicsPipelineDesc(nil), d.graphicsPipelines...)
}

func (d *Device) ComputePipelines() []metadata.ComputePipelineDesc {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]metadata.ComputePipelineDesc(nil), d.computePipelines...)
}

// ClearRecords drops the recorded submissions, descriptor writes and pipelines.
func (d *Device) ClearRecords() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submissions = nil
	d.descriptorWrites = nil
	d.graphicsPipelines = nil
	d.computePipelines = nil
}

// BufferData returns a copy of what was written to the buffer behind h.
func (d *Device) BufferData(h metadata.Buffer) ([]byte, bool) {
	d.mu.Lock()
	o, _ := h.(*Object)
	b, ok := d.buffers[o]
	d.mu.Unlock()
	if !ok {
		return nil, false
	}
	return b.Contents(), true
}
