package renderer

import (
	"encoding/binary"
	gomath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/jobs"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func newJobs(t *testing.T) *jobs.JobSystem {
	t.Helper()
	js, err := jobs.NewJobSystem(4, 64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = js.Shutdown() })
	return js
}

func newInstanceBuffer(t *testing.T, d *headless.Device, instances int) *GPUBuffer {
	t.Helper()
	buf, err := NewGPUBuffer(d, nil, "instances", uint64(instances)*metadata.InstanceDataSize, metadata.BufferUsageVertex)
	require.NoError(t, err)
	return buf
}

func command(mesh uint32) metadata.DrawCommand {
	return metadata.DrawCommand{Mesh: containers.Handle{Index: mesh, Generation: 1}}
}

// tagged places an instance at pos and stores tag in an unused matrix entry.
func tagged(pos math.Vec3, tag float32) metadata.InstanceData {
	m := math.NewMat4Translation(pos)
	m.Data[3] = tag
	return metadata.InstanceData{Transform: m}
}

func testFrustum() *math.Frustum {
	view, proj, _ := testCamera()
	return math.NewFrustum(view.Mul(proj))
}

// assertPartition checks that the draw items tile [0, total) without gaps or overlap.
func assertPartition(t *testing.T, list metadata.DrawList, total uint32) {
	t.Helper()
	covered := make([]bool, total)
	var sum uint32
	for _, item := range list {
		for i := item.FirstInstance; i < item.FirstInstance+item.InstanceCount; i++ {
			require.Less(t, i, total)
			require.False(t, covered[i], "instance %d drawn twice", i)
			covered[i] = true
		}
		sum += item.InstanceCount
	}
	assert.Equal(t, total, sum)
}

func uploadedTags(t *testing.T, d *headless.Device, buf *GPUBuffer, count uint32) []float32 {
	t.Helper()
	data, ok := d.BufferData(buf.Handle())
	require.True(t, ok)
	require.GreaterOrEqual(t, len(data), int(count)*metadata.InstanceDataSize)
	tags := make([]float32, count)
	for i := range tags {
		bits := binary.LittleEndian.Uint32(data[i*metadata.InstanceDataSize+12:])
		tags[i] = gomath.Float32frombits(bits)
	}
	return tags
}

func TestShouldPerformCulling(t *testing.T) {
	m := metadata.DrawMap{command(1): make([]metadata.InstanceData, 499)}
	assert.False(t, ShouldPerformCulling(m, DefaultCullingThreshold))
	m[command(2)] = make([]metadata.InstanceData, 1)
	assert.True(t, ShouldPerformCulling(m, DefaultCullingThreshold))
}

func TestFlattenBelowThreshold(t *testing.T) {
	d := headless.New()
	m := metadata.DrawMap{}
	for c := uint32(0); c < 10; c++ {
		for i := 0; i < 10; i++ {
			// far outside any frustum, flattening must keep them anyway
			m[command(c)] = append(m[command(c)], tagged(math.NewVec3(1e6, 0, 0), float32(c)))
		}
	}
	assert.False(t, ShouldPerformCulling(m, DefaultCullingThreshold))

	buf := newInstanceBuffer(t, d, 100)
	b := NewDrawListBuilder(nil)
	list, count, err := b.Flatten(m, buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), count)
	require.Len(t, list, 10)
	assertPartition(t, list, count)

	tags := uploadedTags(t, d, buf, count)
	for _, item := range list {
		for i := item.FirstInstance; i < item.FirstInstance+item.InstanceCount; i++ {
			assert.Equal(t, float32(item.Command.Mesh.Index), tags[i])
		}
	}
	assert.Equal(t, 100, b.Reserve())
}

func TestCullAndFlattenHalfVisible(t *testing.T) {
	d := headless.New()
	js := newJobs(t)
	rnd := math.NewRandom(7)
	cmd := command(1)
	m := metadata.DrawMap{}
	for i := 0; i < 600; i++ {
		m[cmd] = append(m[cmd], tagged(rnd.Vec3InRange(-1, 1), 1))
		m[cmd] = append(m[cmd], tagged(math.NewVec3(0, 0, -200), 2))
	}
	require.True(t, ShouldPerformCulling(m, DefaultCullingThreshold))

	buf := newInstanceBuffer(t, d, 1200)
	list, count, err := NewDrawListBuilder(nil).CullAndFlatten(m, buf, testFrustum(), js)
	require.NoError(t, err)
	assert.Equal(t, uint32(600), count)
	require.Len(t, list, 1)
	assertPartition(t, list, count)
	for _, tag := range uploadedTags(t, d, buf, count) {
		assert.Equal(t, float32(1), tag, "only instances in front of the camera survive")
	}
}

func TestCullAndFlattenKeepsCommandsContiguous(t *testing.T) {
	d := headless.New()
	js := newJobs(t)
	m := metadata.DrawMap{}
	total := 0
	for c := uint32(0); c < 7; c++ {
		for i := 0; i < 100+int(c); i++ {
			pos := math.NewVec3(float32(i%5)-2, 0, 0)
			if i%3 == 0 {
				pos = math.NewVec3(0, 500, 0)
			}
			m[command(c)] = append(m[command(c)], tagged(pos, float32(c)))
			total++
		}
	}
	// a command whose instances are all culled yields no item
	m[command(9)] = []metadata.InstanceData{tagged(math.NewVec3(0, -500, 0), 9)}

	buf := newInstanceBuffer(t, d, total+1)
	list, count, err := NewDrawListBuilder(nil).CullAndFlatten(m, buf, testFrustum(), js)
	require.NoError(t, err)
	assert.LessOrEqual(t, int(count), total)
	assertPartition(t, list, count)
	require.Len(t, list, 7)

	tags := uploadedTags(t, d, buf, count)
	for _, item := range list {
		c := item.Command.Mesh.Index
		expected := 0
		for i := 0; i < 100+int(c); i++ {
			if i%3 != 0 {
				expected++
			}
		}
		assert.Equal(t, uint32(expected), item.InstanceCount, "command %d", c)
		for i := item.FirstInstance; i < item.FirstInstance+item.InstanceCount; i++ {
			assert.Equal(t, float32(c), tags[i])
		}
	}
}

func TestDrawListSortedByMaterial(t *testing.T) {
	d := headless.New()
	materials := map[uint32]metadata.MaterialHandle{
		1: {Index: 5, Generation: 1},
		2: {Index: 1, Generation: 1},
		3: {Index: 5, Generation: 1},
	}
	b := NewDrawListBuilder(func(cmd metadata.DrawCommand) metadata.MaterialHandle {
		return materials[cmd.Mesh.Index]
	})
	m := metadata.DrawMap{
		command(1): {tagged(math.NewVec3Zero(), 1)},
		command(2): {tagged(math.NewVec3Zero(), 2)},
		command(3): {tagged(math.NewVec3Zero(), 3)},
		command(4): {},
	}
	list, count, err := b.Flatten(m, newInstanceBuffer(t, d, 3))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), count)
	require.Len(t, list, 3, "empty commands are skipped")
	assert.Equal(t, uint32(2), list[0].Command.Mesh.Index)
	assert.Equal(t, uint32(1), list[1].Command.Mesh.Index)
	assert.Equal(t, uint32(3), list[2].Command.Mesh.Index)
}

func TestFlattenReportsUndersizedBuffer(t *testing.T) {
	d := headless.New()
	m := metadata.DrawMap{command(1): make([]metadata.InstanceData, 4)}
	_, _, err := NewDrawListBuilder(nil).Flatten(m, newInstanceBuffer(t, d, 2))
	assert.Error(t, err)
}
