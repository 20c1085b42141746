package vulkan

import (
	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

type accessInfo struct {
	layout driver.ImageLayout
	access driver.AccessFlags
	stage  driver.PipelineStage
}

var accessTable = map[metadata.ImageAccess]accessInfo{
	metadata.ImageAccessUndefined: {
		layout: driver.ImageLayoutUndefined,
		access: driver.AccessNone,
		stage:  driver.PipelineStageTopOfPipe,
	},
	metadata.ImageAccessColorAttachmentWrite: {
		layout: driver.ImageLayoutColorAttachmentOptimal,
		access: driver.AccessColorAttachmentRead | driver.AccessColorAttachmentWrite,
		stage:  driver.PipelineStageColorAttachmentOutput,
	},
	metadata.ImageAccessDepthAttachmentWrite: {
		layout: driver.ImageLayoutDepthStencilAttachmentOptimal,
		access: driver.AccessDepthStencilAttachmentRead | driver.AccessDepthStencilAttachmentWrite,
		stage:  driver.PipelineStageEarlyFragmentTests | driver.PipelineStageLateFragmentTests,
	},
	metadata.ImageAccessDepthRead: {
		layout: driver.ImageLayoutDepthStencilReadOnlyOptimal,
		access: driver.AccessDepthStencilAttachmentRead | driver.AccessShaderRead,
		stage:  driver.PipelineStageEarlyFragmentTests | driver.PipelineStageFragmentShader,
	},
	metadata.ImageAccessShaderRead: {
		layout: driver.ImageLayoutShaderReadOnlyOptimal,
		access: driver.AccessShaderRead,
		stage:  driver.PipelineStageFragmentShader,
	},
	metadata.ImageAccessVertexShaderRead: {
		layout: driver.ImageLayoutShaderReadOnlyOptimal,
		access: driver.AccessShaderRead,
		stage:  driver.PipelineStageVertexShader,
	},
	metadata.ImageAccessStorageReadWrite: {
		layout: driver.ImageLayoutGeneral,
		access: driver.AccessShaderRead | driver.AccessShaderWrite,
		stage:  driver.PipelineStageVertexShader | driver.PipelineStageFragmentShader,
	},
	metadata.ImageAccessTransferSrc: {
		layout: driver.ImageLayoutTransferSrcOptimal,
		access: driver.AccessTransferRead,
		stage:  driver.PipelineStageTransfer,
	},
	metadata.ImageAccessTransferDst: {
		layout: driver.ImageLayoutTransferDstOptimal,
		access: driver.AccessTransferWrite,
		stage:  driver.PipelineStageTransfer,
	},
	metadata.ImageAccessPresent: {
		layout: driver.ImageLayoutPresentSrc,
		access: driver.AccessNone,
		stage:  driver.PipelineStageBottomOfPipe,
	},
}

// LayoutForAccess returns the image layout an access requires.
func LayoutForAccess(a metadata.ImageAccess) driver.ImageLayout {
	return accessTable[a].layout
}

func accessForLayout(l driver.ImageLayout) metadata.ImageAccess {
	switch l {
	case driver.ImageLayoutColorAttachmentOptimal:
		return metadata.ImageAccessColorAttachmentWrite
	case driver.ImageLayoutDepthStencilAttachmentOptimal:
		return metadata.ImageAccessDepthAttachmentWrite
	case driver.ImageLayoutDepthStencilReadOnlyOptimal:
		return metadata.ImageAccessDepthRead
	case driver.ImageLayoutShaderReadOnlyOptimal:
		return metadata.ImageAccessShaderRead
	case driver.ImageLayoutGeneral:
		return metadata.ImageAccessStorageReadWrite
	case driver.ImageLayoutTransferSrcOptimal:
		return metadata.ImageAccessTransferSrc
	case driver.ImageLayoutTransferDstOptimal:
		return metadata.ImageAccessTransferDst
	case driver.ImageLayoutPresentSrc:
		return metadata.ImageAccessPresent
	}
	return metadata.ImageAccessUndefined
}

// ImageLayoutState is the layout record of one image. The record changes in
// the same call that emits the barrier.
type ImageLayoutState struct {
	name   string
	image  driver.Image
	aspect driver.ImageAspect
	access metadata.ImageAccess
}

func newImageLayoutState(name string, image driver.Image, aspect driver.ImageAspect, initial driver.ImageLayout) *ImageLayoutState {
	if aspect == 0 {
		aspect = driver.ImageAspectColor
	}
	return &ImageLayoutState{
		name:   name,
		image:  image,
		aspect: aspect,
		access: accessForLayout(initial),
	}
}

func (s *ImageLayoutState) Layout() driver.ImageLayout {
	return accessTable[s.access].layout
}

func (s *ImageLayoutState) Access() metadata.ImageAccess {
	return s.access
}

func (s *ImageLayoutState) Image() driver.Image {
	return s.image
}

// Transition records a barrier moving the image to the layout target needs.
// It returns false when the image already is in that layout.
func (s *ImageLayoutState) Transition(rec *CommandRecorder, target metadata.ImageAccess) (bool, error) {
	src, ok := accessTable[s.access]
	if !ok {
		return false, core.Assertf(false, "image `%s` has unknown access %d", s.name, s.access)
	}
	dst, ok := accessTable[target]
	if !ok {
		return false, core.Assertf(false, "image `%s`: unknown target access %d", s.name, target)
	}
	if src.layout == dst.layout {
		return false, nil
	}
	if err := core.Assertf(target != metadata.ImageAccessUndefined, "image `%s`: cannot transition to undefined", s.name); err != nil {
		return false, err
	}

	barrier := driver.ImageBarrier{
		Image:      s.image,
		OldLayout:  src.layout,
		NewLayout:  dst.layout,
		SrcAccess:  src.access,
		DstAccess:  dst.access,
		Aspect:     s.aspect,
		MipCount:   1,
		LayerCount: 1,
	}
	if err := rec.PipelineBarrier(src.stage, dst.stage, []driver.ImageBarrier{barrier}); err != nil {
		return false, err
	}
	from := s.access
	s.access = target

	ctx := rec.Context()
	ctx.Metrics.Current().Barriers++
	ctx.Events.Fire(core.EVENT_CODE_LAYOUT_TRANSITION, s,
		core.String("image", s.name),
		core.String("from", src.layout.String()),
		core.String("to", dst.layout.String()),
		core.String("from_access", from.String()),
		core.String("to_access", target.String()),
		core.Uint("serial", rec.Serial()),
	)
	return true, nil
}

// EnsureColorAttachmentWritable moves a presented or fresh image into the
// color attachment layout.
func (s *ImageLayoutState) EnsureColorAttachmentWritable(rec *CommandRecorder) error {
	layout := s.Layout()
	if layout == driver.ImageLayoutColorAttachmentOptimal {
		return nil
	}
	if err := core.Assertf(layout == driver.ImageLayoutUndefined || layout == driver.ImageLayoutPresentSrc,
		"image `%s`: color attachment transition from %s, want undefined or present_src", s.name, layout); err != nil {
		return err
	}
	_, err := s.Transition(rec, metadata.ImageAccessColorAttachmentWrite)
	return err
}

// EnsurePresentable moves a rendered image into the present layout.
func (s *ImageLayoutState) EnsurePresentable(rec *CommandRecorder) error {
	layout := s.Layout()
	if layout == driver.ImageLayoutPresentSrc {
		return nil
	}
	if err := core.Assertf(layout == driver.ImageLayoutColorAttachmentOptimal,
		"image `%s`: present transition from %s, want color_attachment", s.name, layout); err != nil {
		return err
	}
	_, err := s.Transition(rec, metadata.ImageAccessPresent)
	return err
}

// Discard forgets the contents, e.g. after a swapchain image was re-acquired.
func (s *ImageLayoutState) Discard() {
	s.access = metadata.ImageAccessUndefined
}
