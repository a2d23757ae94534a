package vulkan

import (
	"fmt"
	"time"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

/**
 * @brief A primary command buffer implementing metadata.CommandList. Each one
 * owns a timestamp query pool for its named timers, read back the next time it
 * begins recording, once its previous execution is known to have completed.
 */
type VulkanCommandBuffer struct {
	device *VulkanDevice
	pool   vk.CommandPool
	family uint32

	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState

	queries    vk.QueryPool
	validMask  uint64
	timerSlots map[string]uint32
	timerOpen  map[string]bool
	nextSlot   uint32
	timings    map[string]time.Duration
	warnedFull bool
}

func NewVulkanCommandBuffer(device *VulkanDevice, pool vk.CommandPool, family uint32, isPrimary bool) (*VulkanCommandBuffer, error) {
	vCommandBuffer := &VulkanCommandBuffer{
		device:     device,
		pool:       pool,
		family:     family,
		State:      COMMAND_BUFFER_STATE_NOT_ALLOCATED,
		timerSlots: make(map[string]uint32),
		timerOpen:  make(map[string]bool),
		timings:    make(map[string]time.Duration),
	}

	level := vk.CommandBufferLevelSecondary
	if isPrimary {
		level = vk.CommandBufferLevelPrimary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}

	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
		err := vkError("vkAllocateCommandBuffers", res)
		core.LogError("%s", err.Error())
		return nil, err
	}
	vCommandBuffer.Handle = handles[0]
	vCommandBuffer.State = COMMAND_BUFFER_STATE_READY
	return vCommandBuffer, nil
}

// enableTimers creates the query pool when the queue family can write timestamps.
func (v *VulkanCommandBuffer) enableTimers() error {
	bits := v.device.timestampBits[v.family]
	if bits == 0 {
		core.LogDebug("queue family %d has no timestamp support, timers disabled", v.family)
		return nil
	}
	if bits >= 64 {
		v.validMask = ^uint64(0)
	} else {
		v.validMask = (uint64(1) << bits) - 1
	}
	queryPoolInfo := vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vk.QueryTypeTimestamp,
		QueryCount: 2 * VULKAN_MAX_TIMERS,
	}
	if res := vk.CreateQueryPool(v.device.LogicalDevice, &queryPoolInfo, v.device.context.Allocator, &v.queries); res != vk.Success {
		return vkError("vkCreateQueryPool", res)
	}
	return nil
}

// Free releases the command buffer and its query pool.
func (v *VulkanCommandBuffer) Free() {
	_ = v.device.locks.SafeCall(CommandPoolManagement, func() error {
		v.free()
		return nil
	})
}

// free expects the command pool lock to be held.
func (v *VulkanCommandBuffer) free() {
	if v.queries != nil {
		vk.DestroyQueryPool(v.device.LogicalDevice, v.queries, v.device.context.Allocator)
		v.queries = nil
	}
	if v.Handle != nil {
		vk.FreeCommandBuffers(v.device.LogicalDevice, v.pool, 1, []vk.CommandBuffer{v.Handle})
		v.Handle = nil
	}
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	vBeginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: 0,
	}
	if isSingleUse {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if res := vk.BeginCommandBuffer(v.Handle, &vBeginInfo); res != vk.Success {
		err := vkError("vkBeginCommandBuffer", res)
		core.LogError("%s", err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

// Begin starts a new recording. The previous execution, if any, must have completed.
func (v *VulkanCommandBuffer) Begin() error {
	if v.State == COMMAND_BUFFER_STATE_SUBMITTED {
		v.collectTimings()
	}
	if err := v.begin(false, false, false); err != nil {
		return err
	}
	if v.queries != nil {
		vk.CmdResetQueryPool(v.Handle, v.queries, 0, 2*VULKAN_MAX_TIMERS)
	}
	for name := range v.timerSlots {
		delete(v.timerSlots, name)
		delete(v.timerOpen, name)
	}
	v.nextSlot = 0
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return fmt.Errorf("command buffer ended inside a render pass")
	}
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		err := vkError("vkEndCommandBuffer", res)
		core.LogError("%s", err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *VulkanCommandBuffer) Reset() error {
	if v.State == COMMAND_BUFFER_STATE_SUBMITTED {
		v.collectTimings()
	}
	if res := vk.ResetCommandBuffer(v.Handle, 0); res != vk.Success {
		return vkError("vkResetCommandBuffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func recordImageBarrier(cmd vk.CommandBuffer, image vk.Image, aspect vk.ImageAspectFlags,
	oldLayout, newLayout vk.ImageLayout,
	srcStage, dstStage vk.PipelineStageFlagBits,
	srcAccess, dstAccess vk.AccessFlagBits) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(srcAccess),
		DstAccessMask:       vk.AccessFlags(dstAccess),
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     vk.RemainingMipLevels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	vk.CmdPipelineBarrier(cmd, vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage), 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (v *VulkanCommandBuffer) ImageBarrier(b metadata.ImageBarrier) {
	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	if b.Depth {
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	recordImageBarrier(v.Handle, b.Image.(vk.Image), aspect,
		vk.ImageLayout(b.OldLayout), vk.ImageLayout(b.NewLayout),
		vk.PipelineStageFlagBits(b.SrcStage), vk.PipelineStageFlagBits(b.DstStage),
		vk.AccessFlagBits(b.SrcAccess), vk.AccessFlagBits(b.DstAccess))
}

func (v *VulkanCommandBuffer) BufferBarrier(b metadata.BufferBarrier) {
	size := vk.DeviceSize(b.Size)
	if b.Size == 0 {
		size = vk.DeviceSize(vk.WholeSize)
	}
	barrier := vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
		DstAccessMask:       vk.AccessFlags(b.DstAccess),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              b.Buffer.(vk.Buffer),
		Offset:              vk.DeviceSize(b.Offset),
		Size:                size,
	}
	vk.CmdPipelineBarrier(v.Handle, vk.PipelineStageFlags(b.SrcStage), vk.PipelineStageFlags(b.DstStage), 0, 0, nil, 1, []vk.BufferMemoryBarrier{barrier}, 0, nil)
}

// BeginPass starts a render pass from the cache over a cached framebuffer of the attachments.
func (v *VulkanCommandBuffer) BeginPass(desc *metadata.PassDesc) {
	key, err := passKey(desc)
	if err != nil {
		core.LogError("%s", err.Error())
		return
	}
	rp, err := v.device.renderpasses.get(key)
	if err != nil {
		core.LogError("pass %s: %s", desc.Label, err)
		return
	}

	views := make([]vk.ImageView, 0, key.attachmentCount())
	clearValues := make([]vk.ClearValue, 0, key.attachmentCount())
	for _, c := range desc.Color {
		views = append(views, c.View.(vk.ImageView))
		clearValues = append(clearValues, vk.NewClearValue(c.Clear[:]))
	}
	if key.resolve {
		for _, c := range desc.Color {
			views = append(views, c.Resolve.(vk.ImageView))
			clearValues = append(clearValues, vk.NewClearValue(c.Clear[:]))
		}
	}
	if desc.Depth != nil {
		views = append(views, desc.Depth.View.(vk.ImageView))
		clearValues = append(clearValues, vk.NewClearDepthStencil(desc.Depth.ClearDepth, 0))
	}

	fb, err := v.device.framebuffers.get(rp, views, desc.Width, desc.Height)
	if err != nil {
		core.LogError("pass %s: %s", desc.Label, err)
		return
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.Handle,
		Framebuffer: fb.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: desc.Width, Height: desc.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(v.Handle, &beginInfo, vk.SubpassContentsInline)
	v.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (v *VulkanCommandBuffer) EndPass() {
	if v.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return
	}
	vk.CmdEndRenderPass(v.Handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
}

func (v *VulkanCommandBuffer) SetViewport(vp metadata.Viewport) {
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{{
		X:        vp.X,
		Y:        vp.Y,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}})
}

func (v *VulkanCommandBuffer) SetScissor(x, y int32, width, height uint32) {
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: x, Y: y},
		Extent: vk.Extent2D{Width: width, Height: height},
	}})
}

func (v *VulkanCommandBuffer) BindPipeline(point metadata.PipelineBindPoint, pipeline metadata.Pipeline) {
	vk.CmdBindPipeline(v.Handle, vk.PipelineBindPoint(point), pipeline.(vk.Pipeline))
}

func (v *VulkanCommandBuffer) BindDescriptorSets(point metadata.PipelineBindPoint, layout metadata.PipelineLayout, firstSet uint32, sets []metadata.DescriptorSet) {
	if len(sets) == 0 {
		return
	}
	handles := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		handles[i] = s.(vk.DescriptorSet)
	}
	vk.CmdBindDescriptorSets(v.Handle, vk.PipelineBindPoint(point), layout.(vk.PipelineLayout), firstSet, uint32(len(handles)), handles, 0, nil)
}

func (v *VulkanCommandBuffer) PushConstants(layout metadata.PipelineLayout, stages metadata.ShaderStageFlags, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	if offset+uint32(len(data)) > VULKAN_MAX_PUSH_CONSTANT_SIZE {
		core.LogError("push constant range %d+%d exceeds %d bytes", offset, len(data), VULKAN_MAX_PUSH_CONSTANT_SIZE)
		return
	}
	vk.CmdPushConstants(v.Handle, layout.(vk.PipelineLayout), vk.ShaderStageFlags(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (v *VulkanCommandBuffer) BindVertexBuffers(first uint32, buffers []metadata.Buffer, offsets []uint64) {
	if len(buffers) == 0 {
		return
	}
	handles := make([]vk.Buffer, len(buffers))
	offs := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		handles[i] = b.(vk.Buffer)
		if i < len(offsets) {
			offs[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(v.Handle, first, uint32(len(handles)), handles, offs)
}

func (v *VulkanCommandBuffer) BindIndexBuffer(buffer metadata.Buffer, offset uint64, indexType metadata.IndexType) {
	vk.CmdBindIndexBuffer(v.Handle, buffer.(vk.Buffer), vk.DeviceSize(offset), vk.IndexType(indexType))
}

func (v *VulkanCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(v.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (v *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(v.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (v *VulkanCommandBuffer) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(v.Handle, x, y, z)
}

func (v *VulkanCommandBuffer) FillBuffer(buffer metadata.Buffer, offset, size uint64, value uint32) {
	vk.CmdFillBuffer(v.Handle, buffer.(vk.Buffer), vk.DeviceSize(offset), vk.DeviceSize(size), value)
}

// BeginTimer writes the opening timestamp of name. Each name may be timed once per recording.
func (v *VulkanCommandBuffer) BeginTimer(name string) {
	if v.queries == nil {
		return
	}
	if _, ok := v.timerSlots[name]; ok {
		core.LogWarn("timer %s started twice in one recording", name)
		return
	}
	if v.nextSlot >= VULKAN_MAX_TIMERS {
		if !v.warnedFull {
			core.LogWarn("command buffer timers exhausted, %s is not timed", name)
			v.warnedFull = true
		}
		return
	}
	slot := v.nextSlot
	v.nextSlot++
	v.timerSlots[name] = slot
	v.timerOpen[name] = true
	vk.CmdWriteTimestamp(v.Handle, vk.PipelineStageTopOfPipeBit, v.queries, 2*slot)
}

func (v *VulkanCommandBuffer) EndTimer(name string) {
	slot, ok := v.timerSlots[name]
	if !ok || !v.timerOpen[name] {
		return
	}
	v.timerOpen[name] = false
	vk.CmdWriteTimestamp(v.Handle, vk.PipelineStageBottomOfPipeBit, v.queries, 2*slot+1)
}

// collectTimings reads the timestamps of the completed execution.
func (v *VulkanCommandBuffer) collectTimings() {
	if v.queries == nil {
		return
	}
	for name := range v.timings {
		delete(v.timings, name)
	}
	period := float64(v.device.Properties.Limits.TimestampPeriod)
	data := make([]uint64, 2)
	for name, slot := range v.timerSlots {
		if v.timerOpen[name] {
			continue
		}
		res := vk.GetQueryPoolResults(v.device.LogicalDevice, v.queries, 2*slot, 2,
			uint(unsafe.Sizeof(data[0])*2), unsafe.Pointer(&data[0]), vk.DeviceSize(unsafe.Sizeof(data[0])),
			vk.QueryResultFlags(vk.QueryResult64Bit))
		if res != vk.Success {
			continue
		}
		start, end := data[0]&v.validMask, data[1]&v.validMask
		if end < start {
			continue
		}
		v.timings[name] = time.Duration(float64(end-start) * period)
	}
}

func (v *VulkanCommandBuffer) Timings() map[string]time.Duration {
	out := make(map[string]time.Duration, len(v.timings))
	for name, d := range v.timings {
		out[name] = d
	}
	return out
}

func (d *VulkanDevice) AllocateCommandList(kind metadata.QueueKind) (metadata.CommandList, error) {
	_, family := d.queue(kind)
	var cb *VulkanCommandBuffer
	err := d.locks.SafeCall(CommandPoolManagement, func() error {
		var err error
		cb, err = NewVulkanCommandBuffer(d, d.commandPools[family], family, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := cb.enableTimers(); err != nil {
		cb.Free()
		return nil, err
	}
	return cb, nil
}

/**
 * Allocates and begins recording a single use command buffer from the upload
 * pool. The command pool lock must be held until EndSingleUse returns.
 */
func AllocateAndBeginSingleUse(device *VulkanDevice) (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(device, device.uploadPool, uint32(device.GraphicsQueueIndex), true)
	if err != nil {
		return nil, err
	}
	if err := cb.begin(true, false, false); err != nil {
		cb.free()
		return nil, err
	}
	return cb, nil
}

/**
 * Ends recording, submits to the graphics queue, waits for the work and frees the command buffer.
 */
func (v *VulkanCommandBuffer) EndSingleUse() error {
	defer v.free()
	if err := v.End(); err != nil {
		return err
	}
	fence, err := NewFence(v.device, false)
	if err != nil {
		return err
	}
	defer fence.Destroy()

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	if err := v.device.locks.SafeQueueCall(v.family, func() error {
		return vkError("vkQueueSubmit", vk.QueueSubmit(v.device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle))
	}); err != nil {
		core.LogError("%s", err.Error())
		return err
	}
	v.UpdateSubmitted()
	return fence.Wait(VULKAN_UPLOAD_TIMEOUT)
}

// singleUse records fn into a one-off command buffer and blocks until it executed.
func (d *VulkanDevice) singleUse(fn func(cmd vk.CommandBuffer)) error {
	return d.locks.SafeCall(CommandPoolManagement, func() error {
		cb, err := AllocateAndBeginSingleUse(d)
		if err != nil {
			return err
		}
		fn(cb.Handle)
		return cb.EndSingleUse()
	})
}
