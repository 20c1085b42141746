package systems

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

// ShaderSource supplies shader configurations by name and reports the names
// whose sources changed.
type ShaderSource interface {
	LoadShader(name string) (*metadata.ShaderResource, error)
	Reloads() <-chan string
}

/** @brief Configuration for the shader system. */
type ShaderSystemConfig struct {
	/** @brief The maximum number of shaders held in the system. */
	MaxShaderCount uint16
}

// ShaderSystem owns the finalized shaders of a backend and looks them up by
// name. Reloads are applied on the rendering thread by ProcessReloads.
type ShaderSystem struct {
	// This system's configuration.
	Config ShaderSystemConfig
	// A lookup table for shader name->id
	Lookup map[string]metadata.ShaderID

	backend renderer.Backend
	source  ShaderSource
}

func NewShaderSystem(config ShaderSystemConfig, backend renderer.Backend, source ShaderSource) (*ShaderSystem, error) {
	if config.MaxShaderCount == 0 {
		err := errors.New("NewShaderSystem - config.MaxShaderCount must be greater than 0")
		core.LogError("%s", err.Error())
		return nil, err
	}
	return &ShaderSystem{
		Config:  config,
		Lookup:  make(map[string]metadata.ShaderID),
		backend: backend,
		source:  source,
	}, nil
}

// Acquire returns the shader called name, loading and finalizing it on first
// use.
func (ss *ShaderSystem) Acquire(name string) (metadata.ShaderID, error) {
	if id, ok := ss.Lookup[name]; ok {
		return id, nil
	}
	if len(ss.Lookup) >= int(ss.Config.MaxShaderCount) {
		err := errors.Newf("unable to create shader `%s`: %d shaders already exist", name, len(ss.Lookup))
		core.LogError("%s", err.Error())
		return metadata.ShaderID(core.InvalidID), err
	}
	res, err := ss.source.LoadShader(name)
	if err != nil {
		return metadata.ShaderID(core.InvalidID), err
	}
	res.Config.Name = name
	id, err := ss.backend.CreateShader(res.Config)
	if err != nil {
		core.LogError("shader `%s` was not created: %s", name, err.Error())
		return metadata.ShaderID(core.InvalidID), err
	}
	ss.Lookup[name] = id
	core.LogInfo("shader `%s` created with id %d", name, id)
	return id, nil
}

// Get looks up a shader created before.
func (ss *ShaderSystem) Get(name string) (metadata.ShaderID, bool) {
	id, ok := ss.Lookup[name]
	return id, ok
}

// Reload rebuilds name from its source. On failure the previous version
// stays in use.
func (ss *ShaderSystem) Reload(name string) error {
	id, ok := ss.Lookup[name]
	if !ok {
		return errors.Newf("shader `%s` is not loaded", name)
	}
	res, err := ss.source.LoadShader(name)
	if err != nil {
		core.LogWarn("shader `%s` not reloaded: %s", name, err.Error())
		return err
	}
	res.Config.Name = name
	return ss.backend.ReplaceShader(id, res.Config)
}

// ProcessReloads applies every pending source change without blocking and
// returns the number of shaders rebuilt.
func (ss *ShaderSystem) ProcessReloads() int {
	pending := map[string]struct{}{}
	for done := false; !done; {
		select {
		case name := <-ss.source.Reloads():
			pending[name] = struct{}{}
		default:
			done = true
		}
	}
	reloaded := 0
	for name := range pending {
		if _, ok := ss.Lookup[name]; !ok {
			continue
		}
		if err := ss.Reload(name); err == nil {
			reloaded++
		}
	}
	return reloaded
}

func (ss *ShaderSystem) Destroy(name string) error {
	id, ok := ss.Lookup[name]
	if !ok {
		return errors.Newf("shader `%s` is not loaded", name)
	}
	delete(ss.Lookup, name)
	return ss.backend.DestroyShader(id)
}

/**
 * @brief Shuts down the shader system.
 */
func (ss *ShaderSystem) Shutdown() error {
	var errs error
	for name := range ss.Lookup {
		if err := ss.Destroy(name); err != nil {
			core.LogError("%s", err.Error())
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}
