package renderer

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/spirv"
)

// ShaderSource resolves the shader paths of a blueprint.
type ShaderSource interface {
	// Load returns the SPIR-V words of path.
	Load(path string) ([]uint32, error)
	// Head returns up to the first configured number of bytes of path, nil if unreadable.
	Head(path string) []byte
}

// MaterialContext carries what a material needs from the renderer.
type MaterialContext struct {
	Device  metadata.Device
	Shaders ShaderSource
	// Layout of set 0, shared by every material.
	GlobalLayout metadata.DescriptorSetLayout
	// Sample count of multisampled blueprints.
	Samples  metadata.SampleCount
	Deferred *DeferredQueue
}

// PipelineFactory turns a blueprint and its shader modules into a pipeline.
type PipelineFactory interface {
	BindPoint() metadata.PipelineBindPoint
	Create(ctx *MaterialContext, bp *metadata.PipelineBlueprint, layout metadata.PipelineLayout, modules map[metadata.ShaderStageFlags]metadata.ShaderModule) (metadata.Pipeline, error)
}

type GraphicsPipelineFactory struct{}

func (GraphicsPipelineFactory) BindPoint() metadata.PipelineBindPoint {
	return metadata.PipelineBindPointGraphics
}

func (GraphicsPipelineFactory) Create(ctx *MaterialContext, bp *metadata.PipelineBlueprint, layout metadata.PipelineLayout, modules map[metadata.ShaderStageFlags]metadata.ShaderModule) (metadata.Pipeline, error) {
	desc, err := bp.GraphicsDesc(modules, layout, ctx.Samples)
	if err != nil {
		return nil, err
	}
	return ctx.Device.CreateGraphicsPipeline(desc)
}

type ComputePipelineFactory struct{}

func (ComputePipelineFactory) BindPoint() metadata.PipelineBindPoint {
	return metadata.PipelineBindPointCompute
}

func (ComputePipelineFactory) Create(ctx *MaterialContext, bp *metadata.PipelineBlueprint, layout metadata.PipelineLayout, modules map[metadata.ShaderStageFlags]metadata.ShaderModule) (metadata.Pipeline, error) {
	module, ok := modules[metadata.ShaderStageCompute]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no compute module", core.ErrInvalidShaderModule, bp.Name)
	}
	return ctx.Device.CreateComputePipeline(&metadata.ComputePipelineDesc{
		Label:  bp.Name,
		Layout: layout,
		Module: module,
		Entry:  bp.Shaders[0].Entry,
	})
}

// factoryFor picks the compute factory iff the only stage is compute.
func factoryFor(bp *metadata.PipelineBlueprint) PipelineFactory {
	if bp.IsCompute() {
		return ComputePipelineFactory{}
	}
	return GraphicsPipelineFactory{}
}

// pipelineState is everything rebuilt together when a blueprint changes.
type pipelineState struct {
	reflected *ReflectedLayout
	setLayout metadata.DescriptorSetLayout
	layout    metadata.PipelineLayout
	pipeline  metadata.Pipeline
	bindPoint metadata.PipelineBindPoint
}

// retire hands every object to the deferred queue.
func (s *pipelineState) retire(q *DeferredQueue) {
	q.Retire(s.pipeline)
	q.Retire(s.layout)
	q.Retire(s.setLayout)
}

func (s *pipelineState) destroy(device metadata.Device) {
	for _, obj := range []interface{}{s.pipeline, s.layout, s.setLayout} {
		if obj != nil {
			device.Destroy(obj)
		}
	}
}

// sharesSetLayout reports whether s took over the material set layout of prev.
func (s *pipelineState) sharesSetLayout(prev *pipelineState) bool {
	return prev != nil && s.setLayout != nil && s.setLayout == prev.setLayout
}

// sameBindings reports whether two material sets declare the same interface.
func sameBindings(a, b []BindingMetadata) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// buildPipeline loads and reflects every stage, creates the material set layout,
// the pipeline layout and the pipeline. Partially created objects are destroyed on failure.
// When prev declares the same material set its set layout is reused.
func buildPipeline(ctx *MaterialContext, bp *metadata.PipelineBlueprint, prev *pipelineState) (*pipelineState, error) {
	modules := make(map[metadata.ShaderStageFlags]metadata.ShaderModule, len(bp.Shaders))
	defer func() {
		for _, m := range modules {
			ctx.Device.Destroy(m)
		}
	}()

	reflections := make([]*spirv.Module, 0, len(bp.Shaders))
	for _, s := range bp.Shaders {
		stage, err := metadata.ParseShaderStage(s.Stage)
		if err != nil {
			return nil, &MaterialError{Code: MaterialErrorPipeline, Material: bp.Name, Err: err}
		}
		words, err := ctx.Shaders.Load(s.Path)
		if err != nil {
			return nil, &MaterialError{Code: MaterialErrorPipeline, Material: bp.Name, Err: err}
		}
		reflected, err := spirv.Reflect(words)
		if err != nil {
			return nil, &MaterialError{Code: MaterialErrorPipeline, Material: bp.Name, Err: fmt.Errorf("%s: %w", s.Path, err)}
		}
		if reflected.Stage != stage {
			return nil, &MaterialError{Code: MaterialErrorPipeline, Material: bp.Name,
				Err: fmt.Errorf("%w: %s is declared as %s", core.ErrInvalidShaderModule, s.Path, s.Stage)}
		}
		module, err := ctx.Device.CreateShaderModule(words)
		if err != nil {
			return nil, &MaterialError{Code: MaterialErrorPipeline, Material: bp.Name, Err: err}
		}
		modules[stage] = module
		reflections = append(reflections, reflected)
	}

	merged, err := MergeReflection(reflections)
	if err != nil {
		return nil, &MaterialError{Code: MaterialErrorDescriptorLayoutFailed, Material: bp.Name, Err: err}
	}
	for _, b := range merged.Bindings {
		if b.Set > MaterialSet {
			core.LogWarn("material %s: binding %s uses set %d, only sets 0 and 1 are bound", bp.Name, b.Name, b.Set)
		}
	}

	state := &pipelineState{reflected: merged}
	// a borrowed set layout still belongs to prev
	release := func() {
		if state.sharesSetLayout(prev) {
			state.setLayout = nil
		}
		state.destroy(ctx.Device)
	}
	if prev != nil && sameBindings(prev.reflected.Set(MaterialSet), merged.Set(MaterialSet)) {
		state.setLayout = prev.setLayout
	} else {
		state.setLayout, err = ctx.Device.CreateDescriptorSetLayout(layoutBindings(merged.Set(MaterialSet)))
		if err != nil {
			return nil, &MaterialError{Code: MaterialErrorDescriptorLayoutFailed, Material: bp.Name, Err: err}
		}
	}
	state.layout, err = ctx.Device.CreatePipelineLayout(
		[]metadata.DescriptorSetLayout{ctx.GlobalLayout, state.setLayout}, merged.PushConstants)
	if err != nil {
		release()
		return nil, &MaterialError{Code: MaterialErrorPipeline, Material: bp.Name,
			Err: &PipelineError{Code: PipelineLayoutCreationFailed, Pipeline: bp.Name, Err: err}}
	}
	factory := factoryFor(bp)
	state.bindPoint = factory.BindPoint()
	state.pipeline, err = factory.Create(ctx, bp, state.layout, modules)
	if err != nil {
		release()
		return nil, &MaterialError{Code: MaterialErrorPipeline, Material: bp.Name,
			Err: &PipelineError{Code: PipelineCreationFailed, Pipeline: bp.Name, Err: err}}
	}
	return state, nil
}
