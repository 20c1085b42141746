package assets

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/vkbridge/engine/assets/loaders"
	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

type AssetInfo struct {
	Name       string
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
}

// AssetManager indexes the shader assets of a directory tree and, when
// watching, reports the shaders whose files changed on disk.
type AssetManager struct {
	root    string
	assets  map[string]AssetInfo
	loaders map[metadata.ResourceType]Loader
	// file path -> names of the shaders built from it
	dependents map[string]map[string]struct{}

	mutex sync.RWMutex

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	reloads  chan string
	wg       sync.WaitGroup
}

func NewAssetManager(cfg core.ShaderConfig, validate bool) (*AssetManager, error) {
	am := &AssetManager{
		root:       cfg.Dir,
		assets:     make(map[string]AssetInfo),
		loaders:    make(map[metadata.ResourceType]Loader),
		dependents: make(map[string]map[string]struct{}),
		reloads:    make(chan string, 64),
		done:       make(chan struct{}),
	}
	am.registerLoader(metadata.ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(metadata.ResourceTypeShaderSource, &loaders.WGSLLoader{Validate: validate})

	if cfg.Watch {
		fsWatch, err := fsnotify.NewWatcher()
		if err != nil {
			core.LogError("failed to create the asset watcher: %s", err)
			return nil, errors.Wrap(err, "failed to create the asset watcher")
		}
		am.fsnotify = fsWatch
	}
	if err := am.watchRecursive(am.root); err != nil {
		if am.fsnotify != nil {
			am.fsnotify.Close()
		}
		return nil, errors.Wrapf(err, "failed to index `%s`", am.root)
	}
	if am.fsnotify != nil {
		am.wg.Add(1)
		go am.start()
	}
	core.LogInfo("asset manager indexed %d shaders under `%s`", len(am.assets), am.root)
	return am, nil
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// Reloads delivers the names of shaders whose files changed. It is never
// closed while the manager is open.
func (am *AssetManager) Reloads() <-chan string {
	return am.reloads
}

// Names lists the indexed shaders.
func (am *AssetManager) Names() []string {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	names := make([]string, 0, len(am.assets))
	for name := range am.assets {
		names = append(names, name)
	}
	return names
}

// LoadShader loads the shader asset called name.
func (am *AssetManager) LoadShader(name string) (*metadata.ShaderResource, error) {
	am.mutex.RLock()
	asset, exists := am.assets[name]
	loader, loaderExists := am.loaders[asset.Type]
	am.mutex.RUnlock()
	if !exists {
		return nil, errors.Newf("shader asset not found: %s", name)
	}
	if !loaderExists {
		return nil, errors.Newf("no loader registered for asset type: %s", asset.Type)
	}

	res, err := loader.Load(asset.Path)
	if err != nil {
		core.LogError("failed to load shader `%s`: %s", name, err.Error())
		return nil, err
	}

	am.mutex.Lock()
	asset.LastLoaded = time.Now()
	am.assets[name] = asset
	for _, dep := range res.Dependencies {
		dep = filepath.Clean(dep)
		if am.dependents[dep] == nil {
			am.dependents[dep] = make(map[string]struct{})
		}
		am.dependents[dep][name] = struct{}{}
	}
	am.mutex.Unlock()
	return res, nil
}

func (am *AssetManager) Close() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	am.mutex.Unlock()

	if am.fsnotify == nil {
		return nil
	}
	close(am.done)
	am.wg.Wait()
	return nil
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleEvent(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

func (am *AssetManager) handleEvent(e fsnotify.Event) {
	path := filepath.Clean(e.Name)
	if s, err := os.Stat(path); err == nil && s.IsDir() {
		if e.Op&fsnotify.Create != 0 {
			if err := am.watchRecursive(path); err != nil {
				core.LogWarn("failed to watch `%s`: %s", path, err.Error())
			}
		}
		return
	}
	switch {
	case e.Op&(fsnotify.Create|fsnotify.Write) != 0:
		am.indexFile(path)
		am.notify(path)
	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		am.removeAsset(path)
	}
}

// notify queues a reload of every shader built from path. A full queue
// drops the notification; the next write retries.
func (am *AssetManager) notify(path string) {
	am.mutex.RLock()
	names := make([]string, 0, len(am.dependents[path]))
	for name := range am.dependents[path] {
		names = append(names, name)
	}
	am.mutex.RUnlock()
	for _, name := range names {
		select {
		case am.reloads <- name:
			core.LogDebug("shader `%s` changed on disk", name)
		default:
			core.LogWarn("reload queue full, `%s` change dropped", name)
		}
	}
}

// watchRecursive indexes every asset under path and adds its directories to
// the watch list.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if am.fsnotify != nil {
				return am.fsnotify.Add(walkPath)
			}
			return nil
		}
		am.indexFile(filepath.Clean(walkPath))
		return nil
	})
}

func (am *AssetManager) indexFile(path string) {
	assetType := metadata.ResourceTypeOf(path)
	if _, ok := am.loaders[assetType]; !ok {
		return
	}
	name := loaders.AssetName(path)

	am.mutex.Lock()
	defer am.mutex.Unlock()
	if prev, ok := am.assets[name]; ok && prev.Path != path {
		core.LogWarn("shader asset `%s` at `%s` shadows `%s`", name, path, prev.Path)
	}
	am.assets[name] = AssetInfo{
		Name: name,
		Path: path,
		Type: assetType,
	}
	if am.dependents[path] == nil {
		am.dependents[path] = map[string]struct{}{name: {}}
	}
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	name := loaders.AssetName(path)
	if asset, ok := am.assets[name]; ok && asset.Path == path {
		delete(am.assets, name)
	}
}
