//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/target"
)

type Build mg.Namespace

const (
	shaderDir     = "assets/shaders"
	shaderInclude = "common.glsl"
)

var shaderStages = []string{".vert", ".frag", ".comp"}

// Compiles every GLSL shader under assets/shaders that is newer than its .spv.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the lumen binary into bin/.
func (Build) Binary() error {
	mg.Deps(Build.Shaders)
	if err := os.MkdirAll("bin", 0o755); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "lumen"), "."), withStream())
	return err
}

func buildShaders() error {
	if err := requireTool("glslc", "install the Vulkan SDK or shaderc"); err != nil {
		return err
	}
	entries, err := os.ReadDir(shaderDir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", shaderDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isShaderSource(entry.Name()) {
			continue
		}
		src := filepath.Join(shaderDir, entry.Name())
		dst := src + ".spv"
		stale, err := target.Path(dst, src, filepath.Join(shaderDir, shaderInclude))
		if err != nil {
			return err
		}
		if !stale {
			continue
		}
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.1", src, "-o", dst), withStream()); err != nil {
			return err
		}
	}
	return nil
}

func isShaderSource(name string) bool {
	for _, ext := range shaderStages {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
