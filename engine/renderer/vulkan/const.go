package vulkan

import "time"

/**
 * @brief Max number of timer scopes a single command buffer can record. Each
 * scope takes two timestamp queries.
 */
const VULKAN_MAX_TIMERS uint32 = 32

/** @brief Push constants are only guaranteed to be 128 bytes. */
const VULKAN_MAX_PUSH_CONSTANT_SIZE uint32 = 128

/**
 * @brief Descriptor pools need at least one pool size, pools for layouts
 * without bindings get this many uniform buffer descriptors.
 */
const VULKAN_DUMMY_POOL_SIZE uint32 = 1

// How long one-off submissions such as image uploads may take.
const VULKAN_UPLOAD_TIMEOUT = 5 * time.Second

const VULKAN_ACQUIRE_TIMEOUT = time.Second
