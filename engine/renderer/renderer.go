package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/vulkan"
)

type RendererType uint8

const (
	Vulkan RendererType = iota
	DirectX
	Metal
	OpenGL
)

func (t RendererType) String() string {
	switch t {
	case Vulkan:
		return "vulkan"
	case DirectX:
		return "directx"
	case Metal:
		return "metal"
	case OpenGL:
		return "opengl"
	}
	return "unknown"
}

var _ Backend = (*vulkan.Backend)(nil)

// Renderer owns the backend selected at startup and drives frames through it.
type Renderer struct {
	Type    RendererType
	backend Backend
}

// New selects the backend for rendererType on device.
func New(rendererType RendererType, device driver.Device, cfg core.RendererConfig) (*Renderer, error) {
	switch rendererType {
	case Vulkan:
		ctx, err := vulkan.NewDeviceContext(device, cfg)
		if err != nil {
			return nil, err
		}
		b, err := vulkan.NewBackend(ctx)
		if err != nil {
			ctx.Destroy()
			return nil, err
		}
		return &Renderer{Type: rendererType, backend: b}, nil
	}
	return nil, errors.Newf("renderer type %s is not supported", rendererType)
}

// NewWithBackend wraps an existing backend.
func NewWithBackend(rendererType RendererType, backend Backend) *Renderer {
	return &Renderer{Type: rendererType, backend: backend}
}

func (r *Renderer) Backend() Backend {
	return r.backend
}

// DrawFrame begins a frame, lets draw record into it and submits it. The
// frame is submitted even when draw fails so the recorder does not stay open.
func (r *Renderer) DrawFrame(draw func(Backend) error) error {
	if err := r.backend.BeginFrame(); err != nil {
		core.LogError("begin frame failed: %s", err.Error())
		return err
	}
	drawErr := draw(r.backend)
	if err := r.backend.SubmitFrame(); err != nil {
		core.LogError("submit frame failed: %s", err.Error())
		return errors.CombineErrors(err, drawErr)
	}
	return drawErr
}

func (r *Renderer) Shutdown() error {
	return r.backend.Shutdown()
}
