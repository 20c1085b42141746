package vkdriver

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
)

func cullMode(c driver.CullMode) vk.CullModeFlags {
	switch c {
	case driver.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case driver.CullModeBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

func (d *Device) CreateGraphicsPipeline(desc driver.GraphicsPipelineDesc) (driver.Pipeline, error) {
	layout, ok := d.pipeLayouts.get(uint64(desc.Layout))
	if !ok {
		return 0, errors.Wrapf(driver.ErrInvalidHandle, "pipeline layout %d", desc.Layout)
	}
	renderPass, ok := d.renderPasses.get(uint64(desc.RenderPass))
	if !ok {
		return 0, errors.Wrapf(driver.ErrInvalidHandle, "render pass %d", desc.RenderPass)
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, len(desc.Stages))
	for i, s := range desc.Stages {
		module, ok := d.modules.get(uint64(s.Module))
		if !ok {
			return 0, errors.Wrapf(driver.ErrInvalidHandle, "shader module %d", s.Module)
		}
		entry := s.Entry
		if entry == "" {
			entry = "main"
		}
		stages[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFlagBits(s.Stage),
			Module: module,
			PName:  VulkanSafeString(entry),
		}
	}

	// Viewport and scissor are dynamic and set when a render target begins.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	state := desc.State
	polygon := vk.PolygonMode(state.Raster.Polygon)
	lineWidth := state.Raster.LineWidth
	if lineWidth == 0 {
		lineWidth = 1.0
	}
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             polygon,
		LineWidth:               lineWidth,
		CullMode:                cullMode(state.Raster.Cull),
		FrontFace:               vk.FrontFace(state.Raster.FrontFace),
		DepthBiasEnable:         boolToVk(state.Raster.DepthBias),
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  sampleCount(desc.Samples),
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       boolToVk(state.DepthStencil.TestEnabled),
		DepthWriteEnable:      boolToVk(state.DepthStencil.WriteEnabled),
		DepthCompareOp:        vk.CompareOp(state.DepthStencil.Compare),
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     boolToVk(state.DepthStencil.StencilEnabled),
	}

	blend := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         boolToVk(state.Blend.Enabled),
		SrcColorBlendFactor: vk.BlendFactor(state.Blend.SrcColor),
		DstColorBlendFactor: vk.BlendFactor(state.Blend.DstColor),
		ColorBlendOp:        vk.BlendOp(state.Blend.ColorOp),
		SrcAlphaBlendFactor: vk.BlendFactor(state.Blend.SrcAlpha),
		DstAlphaBlendFactor: vk.BlendFactor(state.Blend.DstAlpha),
		AlphaBlendOp:        vk.BlendOp(state.Blend.AlphaOp),
		ColorWriteMask:      vk.ColorComponentFlags(state.Blend.WriteMask),
	}
	attachments := make([]vk.PipelineColorBlendAttachmentState, desc.ColorAttachments)
	for i := range attachments {
		attachments[i] = blend
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	bindings := make([]vk.VertexInputBindingDescription, len(desc.Bindings))
	for i, b := range desc.Bindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: vk.VertexInputRate(b.InputRate),
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.Attributes))
	for i, a := range desc.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   vk.Format(a.Format),
			Offset:   a.Offset,
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopology(desc.Topology),
		PrimitiveRestartEnable: boolToVk(state.PrimitiveRestart),
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              layout,
		RenderPass:          renderPass,
		Subpass:             desc.Subpass,
		BasePipelineIndex:   -1,
	}

	var cache vk.PipelineCache
	pipelines := make([]vk.Pipeline, 1)
	if err := resultError(vk.CreateGraphicsPipelines(d.logical, cache, 1, []vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, nil, pipelines), "vkCreateGraphicsPipelines"); err != nil {
		core.LogError("pipeline `%s`: %s", desc.Name, err)
		return 0, err
	}
	core.LogDebug("Graphics pipeline `%s` created.", desc.Name)
	return driver.Pipeline(d.pipelines.add(pipelines[0])), nil
}

func (d *Device) DestroyPipeline(h driver.Pipeline) {
	if p, ok := d.pipelines.remove(uint64(h)); ok {
		vk.DestroyPipeline(d.logical, p, nil)
	}
}

func attachmentDescription(a driver.AttachmentDesc) vk.AttachmentDescription {
	return vk.AttachmentDescription{
		Format:         vk.Format(a.Format),
		Samples:        sampleCount(a.Samples),
		LoadOp:         vk.AttachmentLoadOp(a.Load),
		StoreOp:        vk.AttachmentStoreOp(a.Store),
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayout(a.Initial),
		FinalLayout:    vk.ImageLayout(a.Final),
	}
}

func (d *Device) CreateRenderPass(desc driver.RenderPassDesc) (driver.RenderPass, error) {
	attachmentDescriptions := make([]vk.AttachmentDescription, 0, len(desc.Colors)+1)
	colorRefs := make([]vk.AttachmentReference, len(desc.Colors))
	for i, c := range desc.Colors {
		attachmentDescriptions = append(attachmentDescriptions, attachmentDescription(c))
		colorRefs[i] = vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	access := vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
	if desc.Depth != nil {
		attachmentDescriptions = append(attachmentDescriptions, attachmentDescription(*desc.Depth))
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(attachmentDescriptions) - 1),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		stages |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
		access |= vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  stages,
		SrcAccessMask: 0,
		DstStageMask:  stages,
		DstAccessMask: access,
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var rp vk.RenderPass
	if err := resultError(vk.CreateRenderPass(d.logical, &info, nil, &rp), "vkCreateRenderPass"); err != nil {
		core.LogError("%s", err.Error())
		return 0, err
	}
	return driver.RenderPass(d.renderPasses.add(rp)), nil
}

func (d *Device) DestroyRenderPass(h driver.RenderPass) {
	if rp, ok := d.renderPasses.remove(uint64(h)); ok {
		vk.DestroyRenderPass(d.logical, rp, nil)
	}
}

func (d *Device) CreateFramebuffer(desc driver.FramebufferDesc) (driver.Framebuffer, error) {
	rp, ok := d.renderPasses.get(uint64(desc.RenderPass))
	if !ok {
		return 0, errors.Wrapf(driver.ErrInvalidHandle, "render pass %d", desc.RenderPass)
	}
	views := make([]vk.ImageView, len(desc.Attachments))
	for i, h := range desc.Attachments {
		v, ok := d.views.get(uint64(h))
		if !ok {
			return 0, errors.Wrapf(driver.ErrInvalidHandle, "image view %d", h)
		}
		views[i] = v
	}
	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           desc.Extent.Width,
		Height:          desc.Extent.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if err := resultError(vk.CreateFramebuffer(d.logical, &info, nil, &fb), "vkCreateFramebuffer"); err != nil {
		core.LogError("failed to create framebuffer: %s", err)
		return 0, err
	}
	return driver.Framebuffer(d.framebuffers.add(fb)), nil
}

func (d *Device) DestroyFramebuffer(h driver.Framebuffer) {
	if fb, ok := d.framebuffers.remove(uint64(h)); ok {
		vk.DestroyFramebuffer(d.logical, fb, nil)
	}
}
