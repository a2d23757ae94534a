package assets

import "github.com/spaghettifunk/lumen/engine/renderer/metadata"

type Loader interface {
	// Load reads the file at path. params are loader specific and may be nil.
	Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error)
	Unload(*metadata.Resource) error
}
