package loaders

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/spirv"
)

const spirvExtension = ".spv"

// ShaderFile returns the compiled file behind a shader path, the ".spv" suffix
// is appended when missing.
func ShaderFile(path string) string {
	if strings.HasSuffix(path, spirvExtension) {
		return path
	}
	return path + spirvExtension
}

// ShaderPath is the inverse of ShaderFile, the path blueprints use for a compiled file.
func ShaderPath(file string) string {
	return strings.TrimSuffix(file, spirvExtension)
}

// IsEmptyShader reports whether path names the built-in empty fragment stage.
func IsEmptyShader(path string) bool {
	return filepath.Base(path) == metadata.EmptyFragmentShader
}

// ShaderLoader reads compiled SPIR-V. The data of the resource is the module as []uint32.
type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	if IsEmptyShader(path) {
		words := spirv.EmptyFragment()
		return &metadata.Resource{
			Type:     metadata.ResourceTypeShader,
			Name:     metadata.EmptyFragmentShader,
			FullPath: path,
			DataSize: uint64(len(words) * 4),
			Data:     words,
		}, nil
	}

	file := ShaderFile(path)
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", core.ErrShaderNotFound, file)
		}
		return nil, fmt.Errorf("reading shader %s: %w", file, err)
	}
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %s is %d bytes", core.ErrInvalidSPIRV, file, len(data))
	}
	words := bytesToBytecode(data)
	if words[0] != metadata.SPIRVMagic {
		return nil, fmt.Errorf("%w: %s has magic %#x", core.ErrInvalidShaderModule, file, words[0])
	}
	return &metadata.Resource{
		Type:     metadata.ResourceTypeShader,
		Name:     nameOf(path),
		FullPath: file,
		DataSize: uint64(len(data)),
		Data:     words,
	}, nil
}

func (sl *ShaderLoader) Unload(*metadata.Resource) error {
	return nil
}

func nameOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
