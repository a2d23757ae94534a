package metadata

type ResourceType int

/** @brief Asset kinds the asset manager watches and loads. */
const (
	/** @brief Pipeline blueprint, a YAML file. */
	ResourceTypeBlueprint ResourceType = iota
	/** @brief Compiled SPIR-V shader. */
	ResourceTypeShader
	/** @brief Shader source, recompiled by the build tooling. */
	ResourceTypeShaderSource
	/** @brief Image decoded into RGBA8. */
	ResourceTypeImage
	/** @brief Material definition, a key=value text file. */
	ResourceTypeMaterial
	/** @brief Raw bytes, optionally only the head of the file. */
	ResourceTypeBinary
	ResourceTypeUnknown
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeBlueprint:
		return "blueprint"
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeShaderSource:
		return "shader_source"
	case ResourceTypeImage:
		return "image"
	case ResourceTypeMaterial:
		return "material"
	case ResourceTypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

/** @brief SPIR-V magic number, the first word of every module. */
const SPIRVMagic uint32 = 0x07230203

/**
 * @brief A generic structure for a loaded resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	Type ResourceType
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/** @brief The resource data. */
	Data interface{}
}
