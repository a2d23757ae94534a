package loaders

import (
	"fmt"
	"os"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// BlueprintLoader decodes one pipeline blueprint. The data of the resource is a
// defaulted and validated *metadata.PipelineBlueprint.
type BlueprintLoader struct{}

func (bl *BlueprintLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	bp, err := metadata.ParseBlueprint(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &metadata.Resource{
		Type:     metadata.ResourceTypeBlueprint,
		Name:     bp.Name,
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     bp,
	}, nil
}

func (bl *BlueprintLoader) Unload(*metadata.Resource) error {
	return nil
}
