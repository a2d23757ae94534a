package renderer

import (
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/** @brief Bits of MaterialData flags telling the shader which maps are bound. */
const (
	MaterialFlagAlbedoMap uint32 = 1 << iota
	MaterialFlagNormalMap
	MaterialFlagMetallicMap
	MaterialFlagRoughnessMap
	MaterialFlagAOMap
	MaterialFlagEmissiveMap
)

// MaterialData is the per draw push constant block of the geometry pass.
type MaterialData struct {
	BaseColour math.Vec4
	Metallic   float32
	Roughness  float32

	AlbedoMap    bool
	NormalMap    bool
	MetallicMap  bool
	RoughnessMap bool
	AOMap        bool
	EmissiveMap  bool
}

// materialDataBlock mirrors the std430 layout of the shader block (32 bytes).
type materialDataBlock struct {
	BaseColour math.Vec4
	Metallic   float32
	Roughness  float32
	Flags      uint32
	_          uint32
}

func DefaultMaterialData() MaterialData {
	return MaterialData{
		BaseColour: math.NewVec4One(),
		Metallic:   0,
		Roughness:  0.5,
	}
}

func (d *MaterialData) Flags() uint32 {
	var flags uint32
	if d.AlbedoMap {
		flags |= MaterialFlagAlbedoMap
	}
	if d.NormalMap {
		flags |= MaterialFlagNormalMap
	}
	if d.MetallicMap {
		flags |= MaterialFlagMetallicMap
	}
	if d.RoughnessMap {
		flags |= MaterialFlagRoughnessMap
	}
	if d.AOMap {
		flags |= MaterialFlagAOMap
	}
	if d.EmissiveMap {
		flags |= MaterialFlagEmissiveMap
	}
	return flags
}

func (d *MaterialData) Bytes() []byte {
	block := materialDataBlock{
		BaseColour: d.BaseColour,
		Metallic:   math.Clamp(d.Metallic, 0, 1),
		Roughness:  math.Clamp(d.Roughness, 0, 1),
		Flags:      d.Flags(),
	}
	return metadata.ValueBytes(&block)
}
