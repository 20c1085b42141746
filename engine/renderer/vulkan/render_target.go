package vulkan

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

// RenderTarget is a render pass with its framebuffer and the layout records
// of its attachments.
type RenderTarget struct {
	ID   uuid.UUID
	Name string

	ctx         *DeviceContext
	pass        RenderPassInfo
	framebuffer driver.Framebuffer
	extent      driver.Extent2D
	colors      []*ImageLayoutState
	depth       *ImageLayoutState
	present     bool
	clearColor  [4]float32
	clearDepth  float32
}

func renderPassSignature(desc driver.RenderPassDesc) string {
	var sb strings.Builder
	for _, c := range desc.Colors {
		fmt.Fprintf(&sb, "c%d/%d;", c.Format, c.Samples)
	}
	if desc.Depth != nil {
		fmt.Fprintf(&sb, "d%d/%d;", desc.Depth.Format, desc.Depth.Samples)
	}
	return sb.String()
}

// NewRenderTarget creates the render pass and framebuffer for the given
// attachments. Every attachment must be tracked by the context.
func NewRenderTarget(ctx *DeviceContext, cfg metadata.RenderTargetConfig) (*RenderTarget, error) {
	if len(cfg.Colors) == 0 && cfg.Depth == nil {
		return nil, errors.Newf("render target `%s` has no attachments", cfg.Name)
	}
	rt := &RenderTarget{
		ID:         uuid.New(),
		Name:       cfg.Name,
		ctx:        ctx,
		present:    cfg.PresentAfter,
		clearColor: cfg.ClearColour,
		clearDepth: cfg.ClearDepth,
	}
	colorLoad, depthLoad := driver.LoadOpLoad, driver.LoadOpLoad
	if cfg.ClearFlags&metadata.RENDERPASS_CLEAR_COLOUR_BUFFER_FLAG != 0 {
		colorLoad = driver.LoadOpClear
	}
	if cfg.ClearFlags&metadata.RENDERPASS_CLEAR_DEPTH_BUFFER_FLAG != 0 {
		depthLoad = driver.LoadOpClear
	}

	var (
		desc  driver.RenderPassDesc
		views []driver.ImageView
	)
	for _, tex := range cfg.Colors {
		state, ok := ctx.ImageState(tex.LayoutRecord)
		if !ok {
			return nil, errors.Newf("render target `%s`: texture `%s` has no layout record", cfg.Name, tex.Name)
		}
		rt.colors = append(rt.colors, state)
		desc.Colors = append(desc.Colors, driver.AttachmentDesc{
			Format:  tex.Format,
			Samples: 1,
			Load:    colorLoad,
			Store:   driver.StoreOpStore,
			Initial: driver.ImageLayoutColorAttachmentOptimal,
			Final:   driver.ImageLayoutColorAttachmentOptimal,
		})
		views = append(views, tex.View)
		rt.extent = tex.Extent
	}
	if cfg.Depth != nil {
		state, ok := ctx.ImageState(cfg.Depth.LayoutRecord)
		if !ok {
			return nil, errors.Newf("render target `%s`: depth texture `%s` has no layout record", cfg.Name, cfg.Depth.Name)
		}
		rt.depth = state
		desc.Depth = &driver.AttachmentDesc{
			Format:  cfg.Depth.Format,
			Samples: 1,
			Load:    depthLoad,
			Store:   driver.StoreOpDontCare,
			Initial: driver.ImageLayoutDepthStencilAttachmentOptimal,
			Final:   driver.ImageLayoutDepthStencilAttachmentOptimal,
		}
		views = append(views, cfg.Depth.View)
		if len(cfg.Colors) == 0 {
			rt.extent = cfg.Depth.Extent
		}
	}

	rp, err := ctx.Device.CreateRenderPass(desc)
	if err != nil {
		return nil, errors.Wrapf(err, "render target `%s`: render pass", cfg.Name)
	}
	fb, err := ctx.Device.CreateFramebuffer(driver.FramebufferDesc{RenderPass: rp, Attachments: views, Extent: rt.extent})
	if err != nil {
		ctx.Device.DestroyRenderPass(rp)
		return nil, errors.Wrapf(err, "render target `%s`: framebuffer", cfg.Name)
	}
	rt.framebuffer = fb
	rt.pass = RenderPassInfo{
		Handle:           rp,
		Signature:        renderPassSignature(desc),
		ColorAttachments: uint32(len(desc.Colors)),
		Samples:          1,
	}
	core.Logger("target", rt.ID.String()).Debugf("render target `%s` created (%dx%d, %s)", cfg.Name, rt.extent.Width, rt.extent.Height, rt.pass.Signature)
	return rt, nil
}

func (rt *RenderTarget) Pass() RenderPassInfo {
	return rt.pass
}

func (rt *RenderTarget) Extent() driver.Extent2D {
	return rt.extent
}

// PresentImage returns the layout record of the presentable attachment.
func (rt *RenderTarget) PresentImage() *ImageLayoutState {
	if !rt.present || len(rt.colors) == 0 {
		return nil
	}
	return rt.colors[0]
}

// Begin moves the attachments into their attachment layouts, begins the
// render pass and sets a viewport and scissor covering the whole target.
func (rt *RenderTarget) Begin(rec *CommandRecorder) error {
	for i, c := range rt.colors {
		var err error
		if i == 0 && rt.present {
			err = c.EnsureColorAttachmentWritable(rec)
		} else {
			_, err = c.Transition(rec, metadata.ImageAccessColorAttachmentWrite)
		}
		if err != nil {
			return err
		}
	}
	if rt.depth != nil {
		if _, err := rt.depth.Transition(rec, metadata.ImageAccessDepthAttachmentWrite); err != nil {
			return err
		}
	}

	info := driver.RenderPassBeginInfo{
		RenderPass:  rt.pass.Handle,
		Framebuffer: rt.framebuffer,
		Area:        driver.Rect2D{Extent: rt.extent},
	}
	for range rt.colors {
		info.ClearColors = append(info.ClearColors, rt.clearColor)
	}
	info.ClearDepth = rt.clearDepth
	if err := rec.BeginRenderPass(info); err != nil {
		return err
	}
	rec.SetViewport(driver.Viewport{
		Width:    float32(rt.extent.Width),
		Height:   float32(rt.extent.Height),
		MaxDepth: 1,
	})
	rec.SetScissor(driver.Rect2D{Extent: rt.extent})
	return nil
}

// Destroy releases the render pass and framebuffer after the work of serial.
func (rt *RenderTarget) Destroy(serial uint64) {
	ctx := rt.ctx
	rp, fb := rt.pass.Handle, rt.framebuffer
	ctx.DeferRelease(serial, "render target "+rt.Name, func() {
		ctx.Device.DestroyFramebuffer(fb)
		ctx.Device.DestroyRenderPass(rp)
	})
}
