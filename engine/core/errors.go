package core

import (
	"errors"
)

var (
	ErrSwapchainOutOfDate  = errors.New("swapchain out of date, recreate before presenting")
	ErrDeviceLost          = errors.New("device lost")
	ErrFrameOutOfOrder     = errors.New("frame call out of order")
	ErrFrameIndex          = errors.New("frame index out of range")
	ErrUnknownPass         = errors.New("unknown pass name")
	ErrNoWorkers           = errors.New("job system needs at least one worker")
	ErrNegativeChannelSize = errors.New("job queue size must be positive")
	ErrJobSystemStopped    = errors.New("job system already shut down")
	ErrShaderNotFound      = errors.New("shader file not found")
	ErrInvalidSPIRV        = errors.New("invalid spirv format")
	ErrInvalidShaderModule = errors.New("invalid shader module")
	ErrStaleHandle         = errors.New("stale or invalid handle")
	ErrBufferTooSmall      = errors.New("write exceeds buffer capacity")
	ErrInvalidBlueprint    = errors.New("invalid pipeline blueprint")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrUnknown             = errors.New("unknown")
)
