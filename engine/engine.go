package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/assets"
	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/platform"
	"github.com/spaghettifunk/vkbridge/engine/renderer"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
	"github.com/spaghettifunk/vkbridge/engine/renderer/vulkan"
	"github.com/spaghettifunk/vkbridge/engine/renderer/vulkan/vkdriver"
	"github.com/spaghettifunk/vkbridge/engine/systems"
)

var _ vkdriver.Window = (*platform.Platform)(nil)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *core.Config
	isRunning    atomic.Bool

	platform     *platform.Platform
	device       *vkdriver.Device
	swapchain    *vkdriver.Swapchain
	renderer     *renderer.Renderer
	backend      *vulkan.Backend
	targets      []metadata.RenderTargetID
	assetManager *assets.AssetManager
	shaders      *systems.ShaderSystem

	clock *core.Clock
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, errors.New("a game with an application config is required")
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		platform:     platform.New(),
		clock:        core.NewClock(),
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	app := e.gameInstance.ApplicationConfig

	cfg, err := core.LoadConfig(app.ConfigPath)
	if err != nil {
		return err
	}
	e.config = cfg
	core.ConfigureLogging(cfg.Logging)

	if app.Name != "" {
		cfg.Window.Title = app.Name
	}
	if err := e.platform.Startup(cfg.Window); err != nil {
		return err
	}

	dev, err := vkdriver.New(vkdriver.Config{
		AppName:    cfg.Window.Title,
		Validation: cfg.Renderer.Validation,
		Window:     e.platform,
	})
	if err != nil {
		return err
	}
	e.device = dev

	if e.swapchain, err = vkdriver.NewSwapchain(dev, cfg.Window.VSync); err != nil {
		return err
	}

	if e.renderer, err = renderer.New(renderer.Vulkan, dev, cfg.Renderer); err != nil {
		return err
	}
	vb, ok := e.renderer.Backend().(*vulkan.Backend)
	if !ok {
		return errors.Newf("renderer %s cannot present to a swapchain", e.renderer.Type)
	}
	e.backend = vb
	if err := e.createTargets(); err != nil {
		return err
	}
	vb.Events().Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onQuit)

	if e.assetManager, err = assets.NewAssetManager(cfg.Shaders, cfg.Renderer.Validation); err != nil {
		return err
	}
	maxShaders := app.MaxShaderCount
	if maxShaders == 0 {
		maxShaders = 64
	}
	if e.shaders, err = systems.NewShaderSystem(systems.ShaderSystemConfig{MaxShaderCount: maxShaders}, vb, e.assetManager); err != nil {
		return err
	}

	ctx := &Context{Device: dev, Backend: vb, Shaders: e.shaders}
	if err := e.gameInstance.FnInitialize(ctx); err != nil {
		return err
	}
	extent := e.swapchain.Extent()
	if err := e.gameInstance.FnOnResize(extent.Width, extent.Height); err != nil {
		return err
	}
	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized on %s", dev.Name())
	return nil
}

// createTargets registers the swapchain images and builds one presenting
// render target per image.
func (e *Engine) createTargets() error {
	depth := e.swapchain.Depth()
	if depth != nil {
		e.backend.RegisterTexture(depth, driver.ImageLayoutUndefined)
	}
	flags := metadata.RENDERPASS_CLEAR_COLOUR_BUFFER_FLAG
	if depth != nil {
		flags |= metadata.RENDERPASS_CLEAR_DEPTH_BUFFER_FLAG
	}
	e.targets = e.targets[:0]
	for i, img := range e.swapchain.Images() {
		e.backend.RegisterTexture(img, driver.ImageLayoutUndefined)
		id, err := e.backend.CreateRenderTarget(metadata.RenderTargetConfig{
			Name:         fmt.Sprintf("swapchain_%d", i),
			Colors:       []*metadata.Texture{img},
			Depth:        depth,
			PresentAfter: true,
			ClearFlags:   flags,
			ClearColour:  [4]float32{0.0, 0.0, 0.2, 1.0},
			ClearDepth:   1.0,
		})
		if err != nil {
			return err
		}
		e.targets = append(e.targets, id)
	}
	return e.backend.SetPresenter(e.swapchain, e.targets)
}

func (e *Engine) destroyTargets() {
	for _, id := range e.targets {
		if err := e.backend.DestroyRenderTarget(id); err != nil {
			core.LogWarn("render target %d: %s", id, err.Error())
		}
	}
	e.targets = e.targets[:0]
	for _, img := range e.swapchain.Images() {
		e.backend.ReleaseTexture(img)
	}
	if depth := e.swapchain.Depth(); depth != nil {
		e.backend.ReleaseTexture(depth)
	}
}

// recreateSwapchain rebuilds the swapchain and its targets, waiting while
// the window is minimized.
func (e *Engine) recreateSwapchain() error {
	if err := e.device.WaitIdle(); err != nil {
		return err
	}
	e.destroyTargets()
	for {
		err := e.swapchain.Recreate()
		if err == nil {
			break
		}
		if !errors.Is(err, vkdriver.ErrOutOfDate) {
			return err
		}
		e.platform.WaitWhileMinimized()
		if !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			return nil
		}
	}
	if err := e.createTargets(); err != nil {
		return err
	}
	extent := e.swapchain.Extent()
	e.backend.Events().Fire(core.EVENT_CODE_RESIZED, e,
		core.Uint("width", uint64(extent.Width)),
		core.Uint("height", uint64(extent.Height)),
	)
	return e.gameInstance.FnOnResize(extent.Width, extent.Height)
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()

	for e.isRunning.Load() {
		if !e.platform.PumpMessages() {
			break
		}
		if e.platform.TakeResize() || e.swapchain.Stale() {
			if err := e.recreateSwapchain(); err != nil {
				return err
			}
			continue
		}
		if n := e.shaders.ProcessReloads(); n > 0 {
			core.LogInfo("%d shaders reloaded", n)
		}

		delta := e.clock.Tick()

		if err := e.gameInstance.FnUpdate(delta); err != nil {
			core.LogError("game update failed, shutting down: %s", err.Error())
			return err
		}

		err := e.renderer.DrawFrame(func(b renderer.Backend) error {
			return e.gameInstance.FnRender(b, delta)
		})
		switch {
		case errors.Is(err, vkdriver.ErrOutOfDate):
			if err := e.recreateSwapchain(); err != nil {
				return err
			}
		case err != nil:
			core.LogError("game render failed, shutting down: %s", err.Error())
			return err
		}
	}
	return nil
}

// Stop makes Run return after the current frame. Safe from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	var errs error
	if e.gameInstance.FnShutdown != nil {
		errs = errors.CombineErrors(errs, e.gameInstance.FnShutdown())
	}
	if e.shaders != nil {
		errs = errors.CombineErrors(errs, e.shaders.Shutdown())
	}
	if e.assetManager != nil {
		errs = errors.CombineErrors(errs, e.assetManager.Close())
	}
	if e.renderer != nil {
		if e.backend != nil {
			e.destroyTargets()
		}
		errs = errors.CombineErrors(errs, e.renderer.Shutdown())
	}
	if e.swapchain != nil {
		e.swapchain.Destroy()
	}
	if e.device != nil {
		e.device.Destroy()
	}
	errs = errors.CombineErrors(errs, e.platform.Shutdown())
	e.currentStage = EngineStageUninitialized
	return errs
}

func (e *Engine) onQuit(code core.SystemEventCode, sender interface{}, listenerInst interface{}, data core.EventContext) bool {
	core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
	e.Stop()
	return true
}
