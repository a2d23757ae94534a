package renderer

import "fmt"

type MaterialErrorCode int

const (
	MaterialErrorPipeline MaterialErrorCode = iota
	MaterialErrorDescriptorAllocationFailed
	MaterialErrorDescriptorLayoutFailed
	MaterialErrorPoolCreationFailed
	MaterialErrorUnknown
)

func (c MaterialErrorCode) String() string {
	switch c {
	case MaterialErrorPipeline:
		return "pipeline error"
	case MaterialErrorDescriptorAllocationFailed:
		return "descriptor allocation failed"
	case MaterialErrorDescriptorLayoutFailed:
		return "descriptor layout failed"
	case MaterialErrorPoolCreationFailed:
		return "pool creation failed"
	default:
		return "unknown error"
	}
}

type MaterialError struct {
	Code     MaterialErrorCode
	Material string
	Err      error
}

func (e *MaterialError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("material %s: %s", e.Material, e.Code)
	}
	return fmt.Sprintf("material %s: %s: %v", e.Material, e.Code, e.Err)
}

func (e *MaterialError) Unwrap() error {
	return e.Err
}

type PipelineErrorCode int

const (
	PipelineLayoutCreationFailed PipelineErrorCode = iota
	PipelineCreationFailed
	PipelineUnknown
)

func (c PipelineErrorCode) String() string {
	switch c {
	case PipelineLayoutCreationFailed:
		return "pipeline layout creation failed"
	case PipelineCreationFailed:
		return "pipeline creation failed"
	default:
		return "unknown pipeline error"
	}
}

type PipelineError struct {
	Code     PipelineErrorCode
	Pipeline string
	Err      error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("pipeline %s: %s", e.Pipeline, e.Code)
	}
	return fmt.Sprintf("pipeline %s: %s: %v", e.Pipeline, e.Code, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
