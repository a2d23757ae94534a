package vulkan

import (
	"sort"
	"sync"
)

type LockGroup string

const (
	CommandPoolManagement LockGroup = "command_pool_management"
	RenderpassManagement  LockGroup = "renderpass_management"
	FramebufferManagement LockGroup = "framebuffer_management"
	SwapchainManagement   LockGroup = "swapchain_management"
)

// VulkanLockPool holds the mutexes for objects Vulkan wants externally
// synchronized: queues, keyed by family index, and groups of host objects.
type VulkanLockPool struct {
	locks map[LockGroup]*sync.Mutex
	mu    sync.Mutex // Protects access to the locks maps

	queueMutexes map[uint32]*sync.Mutex // Queue family index as key
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		locks:        make(map[LockGroup]*sync.Mutex),
		queueMutexes: make(map[uint32]*sync.Mutex),
	}
}

// Get or create the mutex of a group.
func (vs *VulkanLockPool) lock(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if _, exists := vs.locks[group]; !exists {
		vs.locks[group] = &sync.Mutex{}
	}
	return vs.locks[group]
}

func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.lock(group)
	l.Lock()
	defer l.Unlock()
	return fn()
}

func (vs *VulkanLockPool) SetQueueFamily(index uint32) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if _, exists := vs.queueMutexes[index]; !exists {
		vs.queueMutexes[index] = &sync.Mutex{}
	}
}

// SafeQueueCall runs fn holding the queue of the family. Families share one
// mutex, so every queue kind mapped to the same family is serialized.
func (vs *VulkanLockPool) SafeQueueCall(queueFamilyIndex uint32, fn func() error) error {
	vs.mu.Lock()
	l, ok := vs.queueMutexes[queueFamilyIndex]
	vs.mu.Unlock()
	if !ok {
		vs.SetQueueFamily(queueFamilyIndex)
		return vs.SafeQueueCall(queueFamilyIndex, fn)
	}
	l.Lock()
	defer l.Unlock()
	return fn()
}

// LockQueues takes every queue mutex in family order and returns the unlock.
func (vs *VulkanLockPool) LockQueues() func() {
	vs.mu.Lock()
	indices := make([]uint32, 0, len(vs.queueMutexes))
	for i := range vs.queueMutexes {
		indices = append(indices, i)
	}
	sort.Slice(indices, func(a, b int) bool { return indices[a] < indices[b] })
	held := make([]*sync.Mutex, 0, len(indices))
	for _, i := range indices {
		held = append(held, vs.queueMutexes[i])
	}
	vs.mu.Unlock()

	for _, l := range held {
		l.Lock()
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
