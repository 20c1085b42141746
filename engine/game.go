package engine

import (
	"time"

	"github.com/spaghettifunk/vkbridge/engine/renderer"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/systems"
)

// Context is what a game sees of the engine once it is initialized.
type Context struct {
	Device  driver.Device
	Backend renderer.Backend
	Shaders *systems.ShaderSystem
}

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func(ctx *Context) error
type Update func(deltaTime time.Duration) error

// Render records the frame. The backend is already inside the render target
// of the acquired swapchain image.
type Render func(backend renderer.Backend, deltaTime time.Duration) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
