package metadata

import "github.com/spaghettifunk/lumen/engine/math"

/** @brief The name of the default material, the main geometry pass material. */
const DefaultMaterialName string = "default"

/**
 * @brief Material configuration typically loaded from
 * a file or created in code to load a material from.
 */
type MaterialConfig struct {
	/** @brief The name of the material. */
	Name string
	/** @brief Name of the pipeline blueprint the material is built from. */
	Blueprint string
	/** @brief The base colour of the material. */
	BaseColour math.Vec4
	Metallic   float32
	Roughness  float32
	/** @brief Image names, relative to the texture directory. Empty leaves the binding unset. */
	AlbedoMap    string
	NormalMap    string
	MetallicMap  string
	RoughnessMap string
	AOMap        string
	EmissiveMap  string
}

// Maps returns the image of every map binding that has one, keyed by binding name.
func (c *MaterialConfig) Maps() map[string]string {
	out := map[string]string{}
	for binding, name := range map[string]string{
		"albedo_map":    c.AlbedoMap,
		"normal_map":    c.NormalMap,
		"metallic_map":  c.MetallicMap,
		"roughness_map": c.RoughnessMap,
		"ao_map":        c.AOMap,
		"emissive_map":  c.EmissiveMap,
	} {
		if name != "" {
			out[binding] = name
		}
	}
	return out
}
