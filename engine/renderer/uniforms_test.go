package renderer

import (
	"encoding/binary"
	gomath "math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/lumen/engine/math"
)

func TestUniformLayouts(t *testing.T) {
	assert.Equal(t, uintptr(cameraUBOSize), unsafe.Sizeof(CameraUBO{}))
	assert.Equal(t, uintptr(shadowUBOSize), unsafe.Sizeof(ShadowUBO{}))
	assert.Equal(t, uintptr(frustumUBOSize), unsafe.Sizeof(FrustumUBO{}))
	assert.Equal(t, uintptr(32), unsafe.Sizeof(materialDataBlock{}))
}

func TestPackColour(t *testing.T) {
	assert.Equal(t, uint32(0xff0000ff), PackColour(math.NewVec4(1, 0, 0, 1)))
	assert.Equal(t, uint32(0x80ff0000), PackColour(math.NewVec4(0, 0, 1, 0.5)))
	assert.Equal(t, uint32(0xffffffff), PackColour(math.NewVec4(2, 3, 4, 5)), "channels are clamped")
	assert.Equal(t, uint32(0), PackColour(math.NewVec4(-1, -1, -1, -1)))
}

func TestLightViewProjectionSeesTarget(t *testing.T) {
	light := NewLightEnvironment()
	f := math.NewFrustum(light.ViewProjection())
	assert.True(t, f.Intersects(light.Target, 1))
	assert.False(t, f.Intersects(math.NewVec3(1000, 0, 0), 1))

	// straight down would be parallel to the default up vector
	light.Position = math.NewVec3(0, 10, 0)
	vp := light.ViewProjection()
	for _, v := range vp.Data {
		assert.False(t, gomath.IsNaN(float64(v)))
	}
	assert.True(t, math.NewFrustum(vp).Intersects(math.NewVec3Zero(), 1))
}

func TestMaterialDataBytes(t *testing.T) {
	d := DefaultMaterialData()
	d.Metallic = 4
	d.AlbedoMap = true
	d.EmissiveMap = true
	b := d.Bytes()
	assert.Len(t, b, 32)
	assert.Equal(t, float32(1), gomath.Float32frombits(binary.LittleEndian.Uint32(b[16:])), "metallic is clamped")
	assert.Equal(t, float32(0.5), gomath.Float32frombits(binary.LittleEndian.Uint32(b[20:])))
	assert.Equal(t, MaterialFlagAlbedoMap|MaterialFlagEmissiveMap, binary.LittleEndian.Uint32(b[24:]))
}
