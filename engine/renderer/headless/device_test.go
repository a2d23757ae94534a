package headless

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/spirv"
)

func TestBufferWritesGrowLazily(t *testing.T) {
	d := New()
	buf, err := d.CreateBuffer(metadata.BufferDesc{Label: "big", Size: 1 << 30, Usage: metadata.BufferUsageStorage})
	require.NoError(t, err)

	require.NoError(t, buf.Write(8, []byte{1, 2, 3}))
	data, ok := d.BufferData(buf.Handle())
	require.True(t, ok)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0, 1, 2, 3}, data)

	err = buf.Write(1<<30-1, []byte{1, 2})
	assert.ErrorIs(t, err, core.ErrBufferTooSmall)

	buf.Destroy()
	assert.Equal(t, 0, d.Live())
	_, ok = d.BufferData(buf.Handle())
	assert.False(t, ok)
}

func TestDestroyTwiceIsReported(t *testing.T) {
	d := New()
	s, err := d.CreateSampler(metadata.SamplerDesc{Label: "s"})
	require.NoError(t, err)
	d.Destroy(s)
	d.Destroy(s)
	assert.Equal(t, 1, d.InvalidDestroys())
}

func TestDescriptorPoolCapacity(t *testing.T) {
	d := New()
	layout, err := d.CreateDescriptorSetLayout([]metadata.DescriptorBinding{{Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 1}})
	require.NoError(t, err)
	pool, err := d.CreateDescriptorPool(3, nil)
	require.NoError(t, err)

	sets, err := d.AllocateDescriptorSets(pool, layout, 3)
	require.NoError(t, err)
	assert.Len(t, sets, 3)
	_, err = d.AllocateDescriptorSets(pool, layout, 1)
	assert.Error(t, err)

	d.Destroy(pool)
	assert.Equal(t, 1, d.Live("descriptor_set_layout"))
	assert.Equal(t, 0, d.Live("descriptor_set"))
}

func TestDuplicateLayoutBinding(t *testing.T) {
	d := New()
	_, err := d.CreateDescriptorSetLayout([]metadata.DescriptorBinding{{Binding: 1}, {Binding: 1}})
	assert.Error(t, err)
}

func TestShaderModuleNeedsSPIRV(t *testing.T) {
	d := New()
	_, err := d.CreateShaderModule([]uint32{1, 2, 3, 4, 5})
	assert.ErrorIs(t, err, core.ErrInvalidSPIRV)
	_, err = d.CreateShaderModule(spirv.EmptyFragment())
	assert.NoError(t, err)
}

func TestCommandListMisuse(t *testing.T) {
	d := New()
	cl, err := d.AllocateCommandList(metadata.QueueGraphics)
	require.NoError(t, err)

	require.NoError(t, cl.Begin())
	cl.Draw(3, 1, 0, 0)
	assert.Error(t, cl.End())

	require.NoError(t, cl.Reset())
	require.NoError(t, cl.Begin())
	cl.BeginPass(&metadata.PassDesc{Label: "a"})
	assert.Error(t, cl.End())

	require.NoError(t, cl.Reset())
	require.NoError(t, cl.Begin())
	cl.BeginTimer("t")
	assert.Error(t, cl.End())

	assert.Error(t, cl.Begin(), "begin needs a reset after end")
}

func TestSubmitSignalsAndTimings(t *testing.T) {
	d := New()
	compute, err := d.AllocateCommandList(metadata.QueueCompute)
	require.NoError(t, err)
	graphics, err := d.AllocateCommandList(metadata.QueueGraphics)
	require.NoError(t, err)
	sem, err := d.CreateSemaphore()
	require.NoError(t, err)
	fence, err := d.CreateFence(false)
	require.NoError(t, err)

	assert.ErrorIs(t, d.WaitFence(fence, time.Second), ErrFenceTimeout)

	require.NoError(t, compute.Begin())
	compute.BeginTimer("cull")
	compute.Dispatch(4, 1, 1)
	compute.BufferBarrier(metadata.BufferBarrier{})
	compute.EndTimer("cull")
	require.NoError(t, compute.End())

	require.NoError(t, graphics.Begin())
	graphics.BeginTimer("pass")
	graphics.BeginPass(&metadata.PassDesc{Label: "pass", Width: 4, Height: 4})
	graphics.Draw(3, 1, 0, 0)
	graphics.EndPass()
	graphics.EndTimer("pass")
	require.NoError(t, graphics.End())

	wait := []metadata.SemaphoreWait{{Semaphore: sem, Stage: metadata.PipelineStageVertexInput}}
	assert.ErrorIs(t, d.Submit(metadata.QueueGraphics, metadata.SubmitInfo{Commands: []metadata.CommandList{graphics}, Wait: wait}), ErrSemaphoreState)

	require.NoError(t, d.Submit(metadata.QueueCompute, metadata.SubmitInfo{
		Commands: []metadata.CommandList{compute},
		Signal:   []metadata.Semaphore{sem},
	}))
	require.NoError(t, d.Submit(metadata.QueueGraphics, metadata.SubmitInfo{
		Commands: []metadata.CommandList{graphics},
		Wait:     wait,
		Fence:    fence,
	}))
	assert.NoError(t, d.WaitFence(fence, time.Second))

	assert.Equal(t, map[string]time.Duration{"cull": 2 * TimerTick}, compute.Timings())
	assert.Equal(t, map[string]time.Duration{"pass": 3 * TimerTick}, graphics.Timings())

	subs := d.Submissions()
	require.Len(t, subs, 2)
	assert.Equal(t, metadata.QueueCompute, subs[0].Queue)
	require.Len(t, subs[1].Commands, 1)
	assert.Equal(t, OpBeginTimer, subs[1].Commands[0][0].Op)
}

func TestSubmitRejectsWrongQueue(t *testing.T) {
	d := New()
	cl, err := d.AllocateCommandList(metadata.QueueCompute)
	require.NoError(t, err)
	require.NoError(t, cl.Begin())
	require.NoError(t, cl.End())
	assert.Error(t, d.Submit(metadata.QueueGraphics, metadata.SubmitInfo{Commands: []metadata.CommandList{cl}}))
}

func TestFailNext(t *testing.T) {
	d := New()
	d.FailNext("CreateImage", nil)
	_, err := d.CreateImage(metadata.ImageDesc{Width: 1, Height: 1, Format: metadata.FormatR8G8B8A8Unorm})
	assert.ErrorIs(t, err, ErrInjected)
	_, err = d.CreateImage(metadata.ImageDesc{Width: 1, Height: 1, Format: metadata.FormatR8G8B8A8Unorm})
	assert.NoError(t, err)
	assert.Equal(t, 2, d.Live("image", "image_view"))
}
