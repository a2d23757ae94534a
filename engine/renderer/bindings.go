package renderer

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/spirv"
)

const (
	// GlobalSet is owned by the renderer and shared by every material.
	GlobalSet uint32 = 0
	// MaterialSet holds the bindings a material resolves by name.
	MaterialSet uint32 = 1
)

type BindingMetadata struct {
	Set     uint32
	Binding uint32
	Type    metadata.DescriptorType
	Stages  metadata.ShaderStageFlags
	Count   uint32
	Name    string
}

// ReflectedLayout is the merged resource interface of every stage of a pipeline.
type ReflectedLayout struct {
	Bindings      []BindingMetadata
	PushConstants []metadata.PushConstantRange
}

type bindingKey struct {
	set, binding uint32
}

// MergeReflection folds the per stage reflection into one layout. A binding seen
// in several stages must agree on type and count; its stage flags are combined.
func MergeReflection(modules []*spirv.Module) (*ReflectedLayout, error) {
	out := &ReflectedLayout{}
	index := map[bindingKey]int{}
	for _, m := range modules {
		for _, b := range m.Bindings {
			key := bindingKey{b.Set, b.Binding}
			if i, ok := index[key]; ok {
				existing := &out.Bindings[i]
				if existing.Type != b.Type || existing.Count != b.Count {
					return nil, fmt.Errorf("%w: set %d binding %d is %s[%d] in one stage and %s[%d] in another",
						core.ErrInvalidShaderModule, b.Set, b.Binding, existing.Type, existing.Count, b.Type, b.Count)
				}
				existing.Stages |= m.Stage
				if existing.Name == "" {
					existing.Name = b.Name
				}
				continue
			}
			index[key] = len(out.Bindings)
			out.Bindings = append(out.Bindings, BindingMetadata{
				Set:     b.Set,
				Binding: b.Binding,
				Type:    b.Type,
				Stages:  m.Stage,
				Count:   b.Count,
				Name:    b.Name,
			})
		}
		if pc := m.PushConstants; pc != nil {
			merged := false
			for i := range out.PushConstants {
				r := &out.PushConstants[i]
				if r.Offset == 0 && r.Size == pc.Size {
					r.Stages |= m.Stage
					merged = true
					break
				}
			}
			if !merged {
				out.PushConstants = append(out.PushConstants, metadata.PushConstantRange{Stages: m.Stage, Offset: 0, Size: pc.Size})
			}
		}
	}
	sort.Slice(out.Bindings, func(i, j int) bool {
		if out.Bindings[i].Set != out.Bindings[j].Set {
			return out.Bindings[i].Set < out.Bindings[j].Set
		}
		return out.Bindings[i].Binding < out.Bindings[j].Binding
	})
	return out, nil
}

// Set returns the bindings of one descriptor set.
func (l *ReflectedLayout) Set(set uint32) []BindingMetadata {
	var out []BindingMetadata
	for _, b := range l.Bindings {
		if b.Set == set {
			out = append(out, b)
		}
	}
	return out
}

func (l *ReflectedLayout) PushConstantStages() metadata.ShaderStageFlags {
	var stages metadata.ShaderStageFlags
	for _, r := range l.PushConstants {
		stages |= r.Stages
	}
	return stages
}

func layoutBindings(bindings []BindingMetadata) []metadata.DescriptorBinding {
	out := make([]metadata.DescriptorBinding, 0, len(bindings))
	for _, b := range bindings {
		count := b.Count
		if count == 0 {
			count = 1
		}
		out = append(out, metadata.DescriptorBinding{Binding: b.Binding, Type: b.Type, Count: count, Stages: b.Stages})
	}
	return out
}

// poolSizes sizes a pool for sets copies of the given bindings.
func poolSizes(bindings []BindingMetadata, sets uint32) []metadata.DescriptorPoolSize {
	counts := map[metadata.DescriptorType]uint32{}
	for _, b := range bindings {
		count := b.Count
		if count == 0 {
			count = 1
		}
		counts[b.Type] += count
	}
	out := make([]metadata.DescriptorPoolSize, 0, len(counts))
	for t, c := range counts {
		out = append(out, metadata.DescriptorPoolSize{Type: t, Count: c * sets})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
