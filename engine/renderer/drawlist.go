package renderer

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/spaghettifunk/lumen/engine/jobs"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// DefaultCullingThreshold is the instance count from which CPU culling pays off.
const DefaultCullingThreshold = 500

// ShouldPerformCulling reports whether the map holds at least threshold instances.
func ShouldPerformCulling(m metadata.DrawMap, threshold int) bool {
	return m.InstanceCount() >= threshold
}

// MaterialResolver returns the material a command is drawn with.
type MaterialResolver func(cmd metadata.DrawCommand) metadata.MaterialHandle

type culledInstance struct {
	command uint32
	index   uint32
	dest    uint32
}

/**
 * @brief Turns a draw map into a draw list and a packed instance buffer.
 * Commands are ordered by material so consecutive items share pipeline state.
 * A builder is not safe for concurrent use; the renderer keeps one per map.
 */
type DrawListBuilder struct {
	resolve   MaterialResolver
	reserve   int
	instances []metadata.InstanceData
	scratch   []culledInstance
}

func NewDrawListBuilder(resolve MaterialResolver) *DrawListBuilder {
	if resolve == nil {
		resolve = func(cmd metadata.DrawCommand) metadata.MaterialHandle { return cmd.Override }
	}
	return &DrawListBuilder{resolve: resolve}
}

// Reserve is the largest instance count seen so far.
func (b *DrawListBuilder) Reserve() int {
	return b.reserve
}

func (b *DrawListBuilder) grow(n int) {
	if n > b.reserve {
		b.reserve = n
	}
	if cap(b.instances) < b.reserve {
		b.instances = make([]metadata.InstanceData, 0, b.reserve)
	}
	if cap(b.scratch) < b.reserve {
		b.scratch = make([]culledInstance, 0, b.reserve)
	}
}

// commands returns the non empty commands sorted by material, mesh and submesh.
func (b *DrawListBuilder) commands(m metadata.DrawMap) ([]metadata.DrawCommand, int) {
	cmds := make([]metadata.DrawCommand, 0, len(m))
	total := 0
	for cmd, inst := range m {
		if len(inst) == 0 {
			continue
		}
		cmds = append(cmds, cmd)
		total += len(inst)
	}
	keys := make(map[metadata.DrawCommand]metadata.MaterialHandle, len(cmds))
	for _, c := range cmds {
		keys[c] = b.resolve(c)
	}
	sort.Slice(cmds, func(i, j int) bool {
		mi, mj := keys[cmds[i]], keys[cmds[j]]
		if mi != mj {
			if mi.Index != mj.Index {
				return mi.Index < mj.Index
			}
			return mi.Generation < mj.Generation
		}
		ci, cj := cmds[i], cmds[j]
		if ci.Mesh != cj.Mesh {
			if ci.Mesh.Index != cj.Mesh.Index {
				return ci.Mesh.Index < cj.Mesh.Index
			}
			return ci.Mesh.Generation < cj.Mesh.Generation
		}
		if ci.Submesh != cj.Submesh {
			return ci.Submesh < cj.Submesh
		}
		if ci.Override != cj.Override {
			if ci.Override.Index != cj.Override.Index {
				return ci.Override.Index < cj.Override.Index
			}
			return ci.Override.Generation < cj.Override.Generation
		}
		return !ci.CastsShadows && cj.CastsShadows
	})
	return cmds, total
}

// Flatten concatenates every instance without culling and uploads them with one write.
func (b *DrawListBuilder) Flatten(m metadata.DrawMap, buf *GPUBuffer) (metadata.DrawList, uint32, error) {
	cmds, total := b.commands(m)
	b.grow(total)

	list := make(metadata.DrawList, 0, len(cmds))
	out := b.instances[:0]
	for _, cmd := range cmds {
		inst := m[cmd]
		list = append(list, metadata.DrawItem{
			Command:       cmd,
			FirstInstance: uint32(len(out)),
			InstanceCount: uint32(len(inst)),
		})
		out = append(out, inst...)
	}
	b.instances = out
	if err := buf.Write(0, metadata.AsBytes(out)); err != nil {
		return nil, 0, fmt.Errorf("uploading instances: %w", err)
	}
	return list, uint32(len(out)), nil
}

// CullAndFlatten frustum culls every instance on the job system, compacts the
// survivors and uploads them with one write. Each command's survivors end up contiguous.
func (b *DrawListBuilder) CullAndFlatten(m metadata.DrawMap, buf *GPUBuffer, frustum *math.Frustum, js *jobs.JobSystem) (metadata.DrawList, uint32, error) {
	cmds, total := b.commands(m)
	b.grow(total)

	groups := make([][]metadata.InstanceData, len(cmds))
	for i, cmd := range cmds {
		groups[i] = m[cmd]
	}

	scratch := b.scratch[:total]
	var counter atomic.Uint32
	js.SubmitLoop(0, len(cmds), func(i int) {
		for j := range groups[i] {
			center, radius := math.BoundingSphere(groups[i][j].Transform)
			if !frustum.Intersects(center, radius) {
				continue
			}
			slot := counter.Add(1) - 1
			scratch[slot] = culledInstance{command: uint32(i), index: uint32(j)}
		}
	}).Wait()
	visible := int(counter.Load())
	scratch = scratch[:visible]

	counts := make([]uint32, len(cmds))
	for k := range scratch {
		counts[scratch[k].command]++
	}
	offsets := make([]uint32, len(cmds))
	var running uint32
	for i, c := range counts {
		offsets[i] = running
		running += c
	}
	cursor := make([]uint32, len(cmds))
	copy(cursor, offsets)
	for k := range scratch {
		c := scratch[k].command
		scratch[k].dest = cursor[c]
		cursor[c]++
	}

	out := b.instances[:visible]
	js.SubmitBlocks(0, visible, func(lo, hi int) {
		for k := lo; k < hi; k++ {
			ci := scratch[k]
			out[ci.dest] = groups[ci.command][ci.index]
		}
	}).Wait()
	b.instances = out
	b.scratch = scratch

	list := make(metadata.DrawList, 0, len(cmds))
	for i, cmd := range cmds {
		if counts[i] == 0 {
			continue
		}
		list = append(list, metadata.DrawItem{Command: cmd, FirstInstance: offsets[i], InstanceCount: counts[i]})
	}
	if err := buf.Write(0, metadata.AsBytes(out)); err != nil {
		return nil, 0, fmt.Errorf("uploading culled instances: %w", err)
	}
	return list, uint32(visible), nil
}
