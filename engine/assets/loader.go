package assets

import "github.com/spaghettifunk/vkbridge/engine/renderer/metadata"

// Loader turns one asset file into a shader resource.
type Loader interface {
	Load(path string) (*metadata.ShaderResource, error)
}
