package vulkan

import (
	"errors"
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief The logical device and its queues. It implements metadata.Device:
 * the handles it hands out are the native Vulkan handles, except for fences,
 * buffers, images and command buffers which carry backend state.
 */
type VulkanDevice struct {
	context *VulkanContext

	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   VulkanSwapchainSupportInfo
	GraphicsQueueIndex int32
	PresentQueueIndex  int32
	TransferQueueIndex int32
	ComputeQueueIndex  int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue
	TransferQueue vk.Queue
	ComputeQueue  vk.Queue

	// One pool per queue family for the frame command buffers.
	commandPools map[uint32]vk.CommandPool
	// Single use uploads record from their own pool on the graphics family.
	uploadPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties
	// Features actually enabled on the logical device.
	enabled vk.PhysicalDeviceFeatures

	DepthFormat vk.Format

	timestampBits map[uint32]uint32
	locks         *VulkanLockPool
	renderpasses  *renderpassCache
	framebuffers  *framebufferCache
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	Compute              bool
	Transfer             bool
	DeviceExtensionNames []string
	DiscreteGPU          bool
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
	ComputeFamilyIndex  int32
	TransferFamilyIndex int32
	TimestampBits       map[uint32]uint32
}

var errNoDevice = errors.New("no physical device meets the requirements")

var (
	_ metadata.Device       = (*VulkanDevice)(nil)
	_ metadata.CommandList  = (*VulkanCommandBuffer)(nil)
	_ metadata.Presenter    = (*VulkanSwapchain)(nil)
	_ metadata.DeviceImage  = (*VulkanImage)(nil)
	_ metadata.DeviceBuffer = (*VulkanBuffer)(nil)
)

func DeviceCreate(context *VulkanContext) error {
	device := &VulkanDevice{
		context:            context,
		GraphicsQueueIndex: -1,
		PresentQueueIndex:  -1,
		TransferQueueIndex: -1,
		ComputeQueueIndex:  -1,
		commandPools:       make(map[uint32]vk.CommandPool),
		locks:              NewVulkanLockPool(),
	}
	context.Device = device
	device.renderpasses = newRenderpassCache(device)
	device.framebuffers = newFramebufferCache(device)

	if err := SelectPhysicalDevice(context); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	indices := []uint32{}
	seen := map[int32]bool{}
	for _, index := range []int32{device.GraphicsQueueIndex, device.PresentQueueIndex, device.TransferQueueIndex, device.ComputeQueueIndex} {
		if !seen[index] {
			seen[index] = true
			indices = append(indices, uint32(index))
		}
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
		device.locks.SetQueueFamily(index)
	}

	// Request the optional features the pipelines can use when present.
	device.enabled = vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: device.Features.SamplerAnisotropy,
		WideLines:         device.Features.WideLines,
		DepthBiasClamp:    device.Features.DepthBiasClamp,
		FillModeNonSolid:  device.Features.FillModeNonSolid,
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if deviceHasExtension(device.PhysicalDevice, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{device.enabled},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var logical vk.Device
	if res := vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logical); res != vk.Success {
		return vkError("vkCreateDevice", res)
	}
	device.LogicalDevice = logical
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(logical, uint32(device.GraphicsQueueIndex), 0, &device.GraphicsQueue)
	vk.GetDeviceQueue(logical, uint32(device.PresentQueueIndex), 0, &device.PresentQueue)
	vk.GetDeviceQueue(logical, uint32(device.TransferQueueIndex), 0, &device.TransferQueue)
	vk.GetDeviceQueue(logical, uint32(device.ComputeQueueIndex), 0, &device.ComputeQueue)
	core.LogInfo("Queues obtained.")

	for _, index := range indices {
		pool, err := device.createCommandPool(index)
		if err != nil {
			return err
		}
		device.commandPools[index] = pool
	}
	pool, err := device.createCommandPool(uint32(device.GraphicsQueueIndex))
	if err != nil {
		return err
	}
	device.uploadPool = pool
	core.LogInfo("Command pools created.")

	if !DeviceDetectDepthFormat(device) {
		return fmt.Errorf("no supported depth format")
	}
	return nil
}

func (d *VulkanDevice) createCommandPool(family uint32) (vk.CommandPool, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(d.LogicalDevice, &poolCreateInfo, d.context.Allocator, &pool); res != vk.Success {
		return nil, vkError("vkCreateCommandPool", res)
	}
	return pool, nil
}

func DeviceDestroy(context *VulkanContext) {
	device := context.Device
	if device == nil {
		return
	}
	if device.LogicalDevice != nil {
		device.framebuffers.destroy()
		device.renderpasses.destroy()

		core.LogInfo("Destroying command pools...")
		for family, pool := range device.commandPools {
			vk.DestroyCommandPool(device.LogicalDevice, pool, context.Allocator)
			delete(device.commandPools, family)
		}
		if device.uploadPool != nil {
			vk.DestroyCommandPool(device.LogicalDevice, device.uploadPool, context.Allocator)
			device.uploadPool = nil
		}

		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		device.LogicalDevice = nil
	}

	// Unset queues
	device.GraphicsQueue = nil
	device.PresentQueue = nil
	device.TransferQueue = nil
	device.ComputeQueue = nil

	// Physical devices are not destroyed.
	device.PhysicalDevice = nil
	device.SwapchainSupport = VulkanSwapchainSupportInfo{}
	device.GraphicsQueueIndex = -1
	device.PresentQueueIndex = -1
	device.TransferQueueIndex = -1
	device.ComputeQueueIndex = -1
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	// Surface capabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities); res != vk.Success {
		return vkError("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", res)
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	// Surface formats
	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, nil); res != vk.Success {
		return vkError("vkGetPhysicalDeviceSurfaceFormatsKHR", res)
	}
	supportInfo.Formats = nil
	if supportInfo.FormatCount != 0 {
		supportInfo.Formats = make([]vk.SurfaceFormat, supportInfo.FormatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, supportInfo.Formats); res != vk.Success {
			return vkError("vkGetPhysicalDeviceSurfaceFormatsKHR", res)
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	// Present modes
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, nil); res != vk.Success {
		return vkError("vkGetPhysicalDeviceSurfacePresentModesKHR", res)
	}
	supportInfo.PresentModes = nil
	if supportInfo.PresentModeCount != 0 {
		supportInfo.PresentModes = make([]vk.PresentMode, supportInfo.PresentModeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, supportInfo.PresentModes); res != vk.Success {
			return vkError("vkGetPhysicalDeviceSurfacePresentModesKHR", res)
		}
	}
	return nil
}

// DeviceDetectDepthFormat checks the depth format the renderer allocates can be attached and sampled.
func DeviceDetectDepthFormat(device *VulkanDevice) bool {
	candidates := []vk.Format{
		vk.Format(metadata.FormatD32Sfloat),
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit | vk.FormatFeatureSampledImageBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if properties.OptimalTilingFeatures&flags == flags {
			device.DepthFormat = candidate
			if candidate != vk.Format(metadata.FormatD32Sfloat) {
				core.LogWarn("D32 depth is not supported, the device offers format %d instead", candidate)
			}
			return true
		}
	}
	return false
}

func SelectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return vkError("vkEnumeratePhysicalDevices", res)
	}
	if physicalDeviceCount == 0 {
		return fmt.Errorf("no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return vkError("vkEnumeratePhysicalDevices", res)
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		Compute:              true,
		Transfer:             true,
		DiscreteGPU:          true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}
	if runtime.GOOS == "darwin" {
		requirements.DiscreteGPU = false
	}

	// A discrete GPU is preferred, any device meeting the rest will do.
	for _, discrete := range []bool{requirements.DiscreteGPU, false} {
		requirements.DiscreteGPU = discrete
		for _, physicalDevice := range physicalDevices {
			if selectDevice(context, physicalDevice, &requirements) {
				core.LogInfo("Physical device selected.")
				return nil
			}
		}
		if !discrete {
			break
		}
	}
	core.LogError("No physical devices were found which meet the requirements.")
	return errNoDevice
}

func selectDevice(context *VulkanContext, physicalDevice vk.PhysicalDevice, requirements *VulkanPhysicalDeviceRequirements) bool {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(physicalDevice, &properties)
	properties.Deref()
	properties.Limits.Deref()

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(physicalDevice, &features)
	features.Deref()

	var memory vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &memory)
	memory.Deref()

	device := context.Device
	queueInfo := VulkanPhysicalDeviceQueueFamilyInfo{}
	if !PhysicalDeviceMeetsRequirements(physicalDevice, context.Surface, &properties, requirements, &queueInfo, &device.SwapchainSupport) {
		return false
	}

	name := cString(properties.DeviceName[:])
	core.LogInfo("Selected device: '%s'.", name)
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo("GPU Driver version: %d.%d.%d",
		vk.Version(properties.DriverVersion).Major(),
		vk.Version(properties.DriverVersion).Minor(),
		vk.Version(properties.DriverVersion).Patch())
	core.LogInfo("Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch())

	for j := 0; j < int(memory.MemoryHeapCount); j++ {
		memory.MemoryHeaps[j].Deref()
		memorySizeGib := float64(memory.MemoryHeaps[j].Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
		}
	}
	for j := 0; j < int(memory.MemoryTypeCount); j++ {
		memory.MemoryTypes[j].Deref()
	}

	device.PhysicalDevice = physicalDevice
	device.GraphicsQueueIndex = queueInfo.GraphicsFamilyIndex
	device.PresentQueueIndex = queueInfo.PresentFamilyIndex
	device.TransferQueueIndex = queueInfo.TransferFamilyIndex
	device.ComputeQueueIndex = queueInfo.ComputeFamilyIndex
	device.timestampBits = queueInfo.TimestampBits

	// Keep a copy of properties, features and memory info for later use.
	device.Properties = properties
	device.Features = features
	device.Memory = memory
	return true
}

func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, requirements *VulkanPhysicalDeviceRequirements, outQueueInfo *VulkanPhysicalDeviceQueueFamilyInfo, outSwapchainSupport *VulkanSwapchainSupportInfo) bool {
	outQueueInfo.GraphicsFamilyIndex = -1
	outQueueInfo.PresentFamilyIndex = -1
	outQueueInfo.ComputeFamilyIndex = -1
	outQueueInfo.TransferFamilyIndex = -1
	outQueueInfo.TimestampBits = map[uint32]uint32{}

	if properties.ApiVersion < uint32(vk.MakeVersion(1, 1, 0)) {
		core.LogInfo("Device does not support Vulkan 1.1. Skipping.")
		return false
	}
	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogInfo("Device is not a discrete GPU, and one is required. Skipping.")
		return false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	// Look at each queue and see what queues it supports
	core.LogInfo("Graphics | Present | Compute | Transfer | Family")
	minTransferScore := 255
	for i := 0; i < int(queueFamilyCount); i++ {
		queueFamilies[i].Deref()
		flags := queueFamilies[i].QueueFlags
		graphics := flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
		compute := flags&vk.QueueFlags(vk.QueueComputeBit) != 0
		transfer := flags&vk.QueueFlags(vk.QueueTransferBit) != 0
		outQueueInfo.TimestampBits[uint32(i)] = queueFamilies[i].TimestampValidBits

		if graphics && outQueueInfo.GraphicsFamilyIndex < 0 {
			outQueueInfo.GraphicsFamilyIndex = int32(i)
		}
		// Prefer a compute family without graphics so culling runs asynchronously.
		if compute && (outQueueInfo.ComputeFamilyIndex < 0 || !graphics) {
			outQueueInfo.ComputeFamilyIndex = int32(i)
		}
		// Take the index if it is the current lowest. This increases the
		// likelihood that it is a dedicated transfer queue.
		if transfer {
			score := 0
			if graphics {
				score++
			}
			if compute {
				score++
			}
			if score <= minTransferScore {
				minTransferScore = score
				outQueueInfo.TransferFamilyIndex = int32(i)
			}
		}

		var supportsPresent vk.Bool32 = vk.False
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			return false
		}
		if supportsPresent == vk.True && (outQueueInfo.PresentFamilyIndex < 0 || graphics) {
			outQueueInfo.PresentFamilyIndex = int32(i)
		}
		core.LogInfo("       %t |       %t |       %t |        %t | %d", graphics, supportsPresent == vk.True, compute, transfer, i)
	}

	if (requirements.Graphics && outQueueInfo.GraphicsFamilyIndex < 0) ||
		(requirements.Present && outQueueInfo.PresentFamilyIndex < 0) ||
		(requirements.Compute && outQueueInfo.ComputeFamilyIndex < 0) ||
		(requirements.Transfer && outQueueInfo.TransferFamilyIndex < 0) {
		return false
	}
	core.LogInfo("Device meets queue requirements.")
	core.LogDebug("Graphics Family Index: %d", outQueueInfo.GraphicsFamilyIndex)
	core.LogDebug("Present Family Index:  %d", outQueueInfo.PresentFamilyIndex)
	core.LogDebug("Transfer Family Index: %d", outQueueInfo.TransferFamilyIndex)
	core.LogDebug("Compute Family Index:  %d", outQueueInfo.ComputeFamilyIndex)

	if err := DeviceQuerySwapchainSupport(device, surface, outSwapchainSupport); err != nil {
		core.LogError("%s", err.Error())
		return false
	}
	if outSwapchainSupport.FormatCount < 1 || outSwapchainSupport.PresentModeCount < 1 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return false
	}

	for _, name := range requirements.DeviceExtensionNames {
		if !deviceHasExtension(device, name) {
			core.LogInfo("Required extension not found: '%s', skipping device.", name)
			return false
		}
	}
	return true
}

func deviceHasExtension(device vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

// findMemoryIndex picks the first memory type allowed by typeFilter that has every property flag.
func (d *VulkanDevice) findMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlagBits) (uint32, error) {
	for i := uint32(0); i < d.Memory.MemoryTypeCount; i++ {
		flags := vk.MemoryPropertyFlagBits(d.Memory.MemoryTypes[i].PropertyFlags)
		if typeFilter&(1<<i) != 0 && flags&propertyFlags == propertyFlags {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no memory type with properties %#x in %#x", uint32(propertyFlags), typeFilter)
}

// allocate backs memory requirements with a fresh allocation of the given properties.
func (d *VulkanDevice) allocate(reqs vk.MemoryRequirements, propertyFlags vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	reqs.Deref()
	index, err := d.findMemoryIndex(reqs.MemoryTypeBits, propertyFlags)
	if err != nil {
		return nil, err
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.LogicalDevice, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: index,
	}, d.context.Allocator, &memory); res != vk.Success {
		return nil, vkError("vkAllocateMemory", res)
	}
	return memory, nil
}

// sharedFamilies lists the distinct families of the queues resources are used on.
// Resources are shared concurrently between them instead of transferring ownership.
func (d *VulkanDevice) sharedFamilies() []uint32 {
	families := []uint32{uint32(d.GraphicsQueueIndex)}
	for _, index := range []int32{d.ComputeQueueIndex, d.TransferQueueIndex} {
		dup := false
		for _, f := range families {
			if f == uint32(index) {
				dup = true
			}
		}
		if !dup {
			families = append(families, uint32(index))
		}
	}
	return families
}

func (d *VulkanDevice) queue(kind metadata.QueueKind) (vk.Queue, uint32) {
	switch kind {
	case metadata.QueueCompute:
		return d.ComputeQueue, uint32(d.ComputeQueueIndex)
	case metadata.QueueTransfer:
		return d.TransferQueue, uint32(d.TransferQueueIndex)
	default:
		return d.GraphicsQueue, uint32(d.GraphicsQueueIndex)
	}
}

func (d *VulkanDevice) Limits() metadata.DeviceLimits {
	limits := d.Properties.Limits
	return metadata.DeviceLimits{
		SampleCounts:                    metadata.SampleCount(limits.FramebufferColorSampleCounts & limits.FramebufferDepthSampleCounts),
		TimestampPeriod:                 limits.TimestampPeriod,
		MinUniformBufferOffsetAlignment: uint64(limits.MinUniformBufferOffsetAlignment),
		MinStorageBufferOffsetAlignment: uint64(limits.MinStorageBufferOffsetAlignment),
	}
}

// Submit hands the command buffers to the queue of kind. The queue is held for the call.
func (d *VulkanDevice) Submit(kind metadata.QueueKind, info metadata.SubmitInfo) error {
	queue, family := d.queue(kind)
	buffers := make([]vk.CommandBuffer, 0, len(info.Commands))
	for _, c := range info.Commands {
		cb, ok := c.(*VulkanCommandBuffer)
		if !ok {
			return fmt.Errorf("foreign command list %T", c)
		}
		if cb.family != family {
			return fmt.Errorf("command buffer of family %d submitted to the %s queue", cb.family, kind)
		}
		buffers = append(buffers, cb.Handle)
	}
	waits := make([]vk.Semaphore, len(info.Wait))
	stages := make([]vk.PipelineStageFlags, len(info.Wait))
	for i, w := range info.Wait {
		waits[i] = w.Semaphore.(vk.Semaphore)
		stages[i] = vk.PipelineStageFlags(w.Stage)
	}
	signals := make([]vk.Semaphore, len(info.Signal))
	for i, s := range info.Signal {
		signals[i] = s.(vk.Semaphore)
	}
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waits)),
		PWaitSemaphores:      waits,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(buffers)),
		PCommandBuffers:      buffers,
		SignalSemaphoreCount: uint32(len(signals)),
		PSignalSemaphores:    signals,
	}
	fence := vk.NullFence
	var vf *VulkanFence
	if info.Fence != nil {
		vf = info.Fence.(*VulkanFence)
		fence = vf.Handle
	}
	if err := d.locks.SafeQueueCall(family, func() error {
		return vkError("vkQueueSubmit", vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, fence))
	}); err != nil {
		return err
	}
	for _, c := range info.Commands {
		c.(*VulkanCommandBuffer).UpdateSubmitted()
	}
	return nil
}

// WaitIdle blocks until every queue drained. All queues are held meanwhile.
func (d *VulkanDevice) WaitIdle() error {
	unlock := d.locks.LockQueues()
	defer unlock()
	return vkError("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.LogicalDevice))
}

func (d *VulkanDevice) Destroy(obj interface{}) {
	dev, alloc := d.LogicalDevice, d.context.Allocator
	switch o := obj.(type) {
	case *VulkanBuffer:
		o.Destroy()
	case *VulkanImage:
		o.Destroy()
	case *VulkanFence:
		o.Destroy()
	case *VulkanCommandBuffer:
		o.Free()
	case vk.Sampler:
		vk.DestroySampler(dev, o, alloc)
	case vk.ShaderModule:
		vk.DestroyShaderModule(dev, o, alloc)
	case vk.DescriptorSetLayout:
		vk.DestroyDescriptorSetLayout(dev, o, alloc)
	case vk.DescriptorPool:
		// Sets allocated from the pool go with it.
		vk.DestroyDescriptorPool(dev, o, alloc)
	case vk.PipelineLayout:
		vk.DestroyPipelineLayout(dev, o, alloc)
	case vk.Pipeline:
		vk.DestroyPipeline(dev, o, alloc)
	case vk.Semaphore:
		vk.DestroySemaphore(dev, o, alloc)
	default:
		core.LogError("vulkan: destroy of unknown object %T", obj)
	}
}
