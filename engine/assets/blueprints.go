package assets

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// BlueprintRegistry holds every pipeline blueprint by name. Reads are safe from
// any goroutine.
type BlueprintRegistry struct {
	assets *AssetManager

	mu         sync.RWMutex
	blueprints map[string]*metadata.PipelineBlueprint
	// file the blueprint of each name came from
	paths map[string]string
}

func NewBlueprintRegistry(am *AssetManager) *BlueprintRegistry {
	return &BlueprintRegistry{
		assets:     am,
		blueprints: map[string]*metadata.PipelineBlueprint{},
		paths:      map[string]string{},
	}
}

// LoadAll parses every blueprint file of the asset index in parallel. The
// registry is only updated when all of them parsed and no two share a name.
func (r *BlueprintRegistry) LoadAll(ctx context.Context) error {
	files := r.assets.Assets(metadata.ResourceTypeBlueprint)
	parsed := make([]*metadata.PipelineBlueprint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := r.assets.LoadPath(f.Path, nil)
			if err != nil {
				return err
			}
			parsed[i] = res.Data.(*metadata.PipelineBlueprint)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	blueprints := make(map[string]*metadata.PipelineBlueprint, len(parsed))
	paths := make(map[string]string, len(parsed))
	for i, bp := range parsed {
		if prev, ok := paths[bp.Name]; ok {
			return fmt.Errorf("%w: %s is declared by %s and %s", core.ErrInvalidBlueprint, bp.Name, prev, files[i].Path)
		}
		blueprints[bp.Name] = bp
		paths[bp.Name] = files[i].Path
	}

	r.mu.Lock()
	r.blueprints = blueprints
	r.paths = paths
	r.mu.Unlock()
	core.LogInfo("loaded %d pipeline blueprints", len(blueprints))
	return nil
}

func (r *BlueprintRegistry) Get(name string) (*metadata.PipelineBlueprint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bp, ok := r.blueprints[name]
	return bp, ok
}

// Reload parses path again and replaces the blueprint of the same name. On
// error the previous blueprint stays registered.
func (r *BlueprintRegistry) Reload(path string) (*metadata.PipelineBlueprint, error) {
	res, err := r.assets.LoadPath(path, nil)
	if err != nil {
		return nil, err
	}
	bp := res.Data.(*metadata.PipelineBlueprint)
	path = filepath.Clean(path)

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.paths[bp.Name]; ok && prev != path {
		return nil, fmt.Errorf("%w: %s is already declared by %s", core.ErrInvalidBlueprint, bp.Name, prev)
	}
	r.blueprints[bp.Name] = bp
	r.paths[bp.Name] = path
	return bp, nil
}

// Users returns the names of the blueprints that reference the shader path.
func (r *BlueprintRegistry) Users(shaderPath string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, bp := range r.blueprints {
		for _, s := range bp.Shaders {
			if s.Path == shaderPath {
				out = append(out, name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

func (r *BlueprintRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.blueprints))
	for name := range r.blueprints {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
