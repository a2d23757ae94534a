package headless

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type Op string

const (
	OpImageBarrier       Op = "image_barrier"
	OpBufferBarrier      Op = "buffer_barrier"
	OpBeginPass          Op = "begin_pass"
	OpEndPass            Op = "end_pass"
	OpSetViewport        Op = "set_viewport"
	OpSetScissor         Op = "set_scissor"
	OpBindPipeline       Op = "bind_pipeline"
	OpBindDescriptorSets Op = "bind_descriptor_sets"
	OpPushConstants      Op = "push_constants"
	OpBindVertexBuffers  Op = "bind_vertex_buffers"
	OpBindIndexBuffer    Op = "bind_index_buffer"
	OpDraw               Op = "draw"
	OpDrawIndexed        Op = "draw_indexed"
	OpDispatch           Op = "dispatch"
	OpFillBuffer         Op = "fill_buffer"
	OpBeginTimer         Op = "begin_timer"
	OpEndTimer           Op = "end_timer"
)

// TimerTick is the GPU time charged to every command inside a timer scope.
const TimerTick = time.Microsecond

// Command is one recorded call. Only the fields of its Op are set.
type Command struct {
	Op Op
	// Pass label, timer name or pipeline label.
	Label         string
	ImageBarrier  *metadata.ImageBarrier
	BufferBarrier *metadata.BufferBarrier
	Pass          *metadata.PassDesc
	Viewport      metadata.Viewport
	Pipeline      metadata.Pipeline
	Point         metadata.PipelineBindPoint
	Layout        metadata.PipelineLayout
	FirstSet      uint32
	Sets          []metadata.DescriptorSet
	Stages        metadata.ShaderStageFlags
	Data          []byte
	Buffers       []metadata.Buffer
	Offsets       []uint64
	// Draw: vertices, instances, first vertex, first instance.
	// DrawIndexed: indices, instances, first index, first instance.
	// Dispatch: group counts.
	Args         [4]uint32
	VertexOffset int32
}

type CommandList struct {
	device    *Device
	handle    *Object
	queue     metadata.QueueKind
	recording bool
	ended     bool
	inPass    bool
	openTimer map[string]bool
	commands  []Command
	err       error
	timings   map[string]time.Duration
}

func (c *CommandList) Queue() metadata.QueueKind { return c.queue }

// Commands returns a copy of what was recorded since the last Reset.
func (c *CommandList) Commands() []Command {
	return append([]Command(nil), c.commands...)
}

func (c *CommandList) fail(format string, args ...interface{}) {
	if c.err == nil {
		c.err = fmt.Errorf("headless: "+format, args...)
	}
}

func (c *CommandList) record(cmd Command) {
	if !c.recording {
		c.fail("%s recorded outside Begin/End", cmd.Op)
		return
	}
	c.commands = append(c.commands, cmd)
}

func (c *CommandList) Begin() error {
	if c.recording {
		return errors.New("headless: Begin on a recording command list")
	}
	if c.ended {
		return errors.New("headless: Begin without Reset")
	}
	c.recording = true
	c.openTimer = map[string]bool{}
	return nil
}

// End reports the first misuse seen while recording.
func (c *CommandList) End() error {
	if !c.recording {
		return errors.New("headless: End without Begin")
	}
	if c.inPass {
		c.fail("End inside a render pass")
	}
	for name := range c.openTimer {
		c.fail("timer %s never ended", name)
	}
	c.recording = false
	c.ended = true
	return c.err
}

func (c *CommandList) Reset() error {
	c.recording, c.ended, c.inPass = false, false, false
	c.commands = c.commands[:0]
	c.err = nil
	return nil
}

func (c *CommandList) ImageBarrier(b metadata.ImageBarrier) {
	if c.inPass {
		c.fail("image barrier inside a render pass")
	}
	c.record(Command{Op: OpImageBarrier, ImageBarrier: &b})
}

func (c *CommandList) BufferBarrier(b metadata.BufferBarrier) {
	c.record(Command{Op: OpBufferBarrier, BufferBarrier: &b})
}

func (c *CommandList) BeginPass(desc *metadata.PassDesc) {
	if c.inPass {
		c.fail("pass %s begun inside another pass", desc.Label)
	}
	if c.queue != metadata.QueueGraphics {
		c.fail("pass %s on the %s queue", desc.Label, c.queue)
	}
	c.inPass = true
	d := *desc
	d.Color = append([]metadata.ColorAttachment(nil), desc.Color...)
	c.record(Command{Op: OpBeginPass, Label: desc.Label, Pass: &d})
}

func (c *CommandList) EndPass() {
	if !c.inPass {
		c.fail("EndPass without BeginPass")
	}
	c.inPass = false
	c.record(Command{Op: OpEndPass})
}

func (c *CommandList) SetViewport(v metadata.Viewport) {
	c.record(Command{Op: OpSetViewport, Viewport: v})
}

func (c *CommandList) SetScissor(x, y int32, width, height uint32) {
	c.record(Command{Op: OpSetScissor, Args: [4]uint32{uint32(x), uint32(y), width, height}})
}

func (c *CommandList) BindPipeline(point metadata.PipelineBindPoint, pipeline metadata.Pipeline) {
	label := ""
	if o, ok := pipeline.(*Object); ok {
		label = o.Label
	}
	c.record(Command{Op: OpBindPipeline, Label: label, Point: point, Pipeline: pipeline})
}

func (c *CommandList) BindDescriptorSets(point metadata.PipelineBindPoint, layout metadata.PipelineLayout, firstSet uint32, sets []metadata.DescriptorSet) {
	c.record(Command{Op: OpBindDescriptorSets, Point: point, Layout: layout, FirstSet: firstSet,
		Sets: append([]metadata.DescriptorSet(nil), sets...)})
}

func (c *CommandList) PushConstants(layout metadata.PipelineLayout, stages metadata.ShaderStageFlags, offset uint32, data []byte) {
	if offset+uint32(len(data)) > 128 {
		c.fail("push constants of %d bytes at %d exceed 128", len(data), offset)
	}
	c.record(Command{Op: OpPushConstants, Layout: layout, Stages: stages, Data: append([]byte(nil), data...)})
}

func (c *CommandList) BindVertexBuffers(first uint32, buffers []metadata.Buffer, offsets []uint64) {
	if len(buffers) != len(offsets) {
		c.fail("%d vertex buffers with %d offsets", len(buffers), len(offsets))
	}
	c.record(Command{Op: OpBindVertexBuffers, FirstSet: first,
		Buffers: append([]metadata.Buffer(nil), buffers...), Offsets: append([]uint64(nil), offsets...)})
}

func (c *CommandList) BindIndexBuffer(buffer metadata.Buffer, offset uint64, indexType metadata.IndexType) {
	c.record(Command{Op: OpBindIndexBuffer, Buffers: []metadata.Buffer{buffer}, Offsets: []uint64{offset}})
}

func (c *CommandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if !c.inPass {
		c.fail("draw outside a render pass")
	}
	c.record(Command{Op: OpDraw, Args: [4]uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (c *CommandList) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if !c.inPass {
		c.fail("indexed draw outside a render pass")
	}
	c.record(Command{Op: OpDrawIndexed, Args: [4]uint32{indexCount, instanceCount, firstIndex, firstInstance}, VertexOffset: vertexOffset})
}

func (c *CommandList) Dispatch(x, y, z uint32) {
	if c.inPass {
		c.fail("dispatch inside a render pass")
	}
	c.record(Command{Op: OpDispatch, Args: [4]uint32{x, y, z}})
}

func (c *CommandList) FillBuffer(buffer metadata.Buffer, offset, size uint64, value uint32) {
	c.record(Command{Op: OpFillBuffer, Buffers: []metadata.Buffer{buffer}, Offsets: []uint64{offset, size}, Args: [4]uint32{value}})
}

func (c *CommandList) BeginTimer(name string) {
	if c.openTimer[name] {
		c.fail("timer %s begun twice", name)
	}
	if c.openTimer != nil {
		c.openTimer[name] = true
	}
	c.record(Command{Op: OpBeginTimer, Label: name})
}

func (c *CommandList) EndTimer(name string) {
	if !c.openTimer[name] {
		c.fail("timer %s ended without begin", name)
	}
	delete(c.openTimer, name)
	c.record(Command{Op: OpEndTimer, Label: name})
}

func (c *CommandList) Timings() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.timings))
	for k, v := range c.timings {
		out[k] = v
	}
	return out
}

// execute resolves the timers of the recorded commands: each scope costs one
// TimerTick per command it encloses.
func (c *CommandList) execute() {
	c.timings = map[string]time.Duration{}
	open := map[string]int{}
	for i, cmd := range c.commands {
		switch cmd.Op {
		case OpBeginTimer:
			open[cmd.Label] = i
		case OpEndTimer:
			if start, ok := open[cmd.Label]; ok {
				c.timings[cmd.Label] += time.Duration(i-start-1) * TimerTick
				delete(open, cmd.Label)
			}
		}
	}
}
