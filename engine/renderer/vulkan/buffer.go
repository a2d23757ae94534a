package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// VulkanBuffer is host visible, coherent memory that stays mapped for its lifetime.
type VulkanBuffer struct {
	device *VulkanDevice
	label  string
	buffer vk.Buffer
	Memory vk.DeviceMemory
	size   uint64
	mapped []byte
}

func newBuffer(device *VulkanDevice, label string, size uint64, usage vk.BufferUsageFlagBits) (*VulkanBuffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("buffer %s: size must be > 0", label)
	}
	families := device.sharedFamilies()
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	if len(families) > 1 {
		createInfo.SharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = uint32(len(families))
		createInfo.PQueueFamilyIndices = families
	}

	b := &VulkanBuffer{device: device, label: label, size: size}
	if res := vk.CreateBuffer(device.LogicalDevice, &createInfo, device.context.Allocator, &b.buffer); res != vk.Success {
		return nil, vkError("vkCreateBuffer", res)
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device.LogicalDevice, b.buffer, &reqs)
	memory, err := device.allocate(reqs, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		b.Destroy()
		return nil, fmt.Errorf("buffer %s: %w", label, err)
	}
	b.Memory = memory
	if res := vk.BindBufferMemory(device.LogicalDevice, b.buffer, b.Memory, 0); res != vk.Success {
		b.Destroy()
		return nil, vkError("vkBindBufferMemory", res)
	}

	var ptr unsafe.Pointer
	if res := vk.MapMemory(device.LogicalDevice, b.Memory, 0, vk.DeviceSize(size), 0, &ptr); res != vk.Success {
		b.Destroy()
		return nil, vkError("vkMapMemory", res)
	}
	b.mapped = unsafe.Slice((*byte)(ptr), size)
	return b, nil
}

// Handle returns the vk.Buffer.
func (b *VulkanBuffer) Handle() metadata.Buffer { return b.buffer }

func (b *VulkanBuffer) Size() uint64 { return b.size }

// Write copies data into the mapping at offset.
func (b *VulkanBuffer) Write(offset uint64, data []byte) error {
	if b.mapped == nil {
		return fmt.Errorf("buffer %s is not mapped", b.label)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("buffer %s: write of %d bytes at %d: %w", b.label, len(data), offset, core.ErrBufferTooSmall)
	}
	copy(b.mapped[offset:], data)
	return nil
}

func (b *VulkanBuffer) Destroy() {
	dev, alloc := b.device.LogicalDevice, b.device.context.Allocator
	if b.mapped != nil {
		vk.UnmapMemory(dev, b.Memory)
		b.mapped = nil
	}
	if b.buffer != vk.NullBuffer {
		vk.DestroyBuffer(dev, b.buffer, alloc)
		b.buffer = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(dev, b.Memory, alloc)
		b.Memory = vk.NullDeviceMemory
	}
}

func (d *VulkanDevice) CreateBuffer(desc metadata.BufferDesc) (metadata.DeviceBuffer, error) {
	b, err := newBuffer(d, desc.Label, desc.Size, vk.BufferUsageFlagBits(desc.Usage))
	if err != nil {
		return nil, err
	}
	return b, nil
}
