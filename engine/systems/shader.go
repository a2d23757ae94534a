package systems

import (
	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// ShaderSystem serves compiled shader modules to the materials. Paths are the
// ones blueprints use, relative to the asset root and without the ".spv" suffix.
// Modules are read from disk on every Load so a reload always sees the latest file.
type ShaderSystem struct {
	assets    *assets.AssetManager
	headBytes int
}

func NewShaderSystem(am *assets.AssetManager, headBytes int) *ShaderSystem {
	return &ShaderSystem{assets: am, headBytes: headBytes}
}

func (ss *ShaderSystem) Load(path string) ([]uint32, error) {
	res, err := ss.assets.LoadAsset(path, metadata.ResourceTypeShader, nil)
	if err != nil {
		core.LogError("loading shader %s: %s", path, err.Error())
		return nil, err
	}
	return res.Data.([]uint32), nil
}

// Head returns the first bytes of the compiled module, nil for the built-in
// empty stage and for files that cannot be read.
func (ss *ShaderSystem) Head(path string) []byte {
	if loaders.IsEmptyShader(path) {
		return nil
	}
	res, err := ss.assets.LoadAsset(loaders.ShaderFile(path), metadata.ResourceTypeBinary, &loaders.BinaryParams{Limit: ss.headBytes})
	if err != nil {
		return nil
	}
	return res.Data.([]byte)
}

func (ss *ShaderSystem) Shutdown() error {
	return nil
}
