package render

import (
	"fmt"
	"path/filepath"

	"github.com/vulkan-go/vulkan"

	"otter/internal/gpu"
	"otter/internal/resources"
)

//go:generate glslc ../../shaders/shader.vert -o ../../shaders/vert.spv
//go:generate glslc ../../shaders/shader.frag -o ../../shaders/frag.spv

const (
	vertexShader   = "vert.spv"
	fragmentShader = "frag.spv"
	entryPoint     = "main\x00"
)

func createRenderPass(device vulkan.Device, color, depth vulkan.Format) (vulkan.RenderPass, error) {
	attachments := []vulkan.AttachmentDescription{
		{
			Format:         color,
			Samples:        vulkan.SampleCount1Bit,
			LoadOp:         vulkan.AttachmentLoadOpClear,
			StoreOp:        vulkan.AttachmentStoreOpStore,
			StencilLoadOp:  vulkan.AttachmentLoadOpDontCare,
			StencilStoreOp: vulkan.AttachmentStoreOpDontCare,
			InitialLayout:  vulkan.ImageLayoutUndefined,
			FinalLayout:    vulkan.ImageLayoutPresentSrc,
		},
		{
			Format:         depth,
			Samples:        vulkan.SampleCount1Bit,
			LoadOp:         vulkan.AttachmentLoadOpClear,
			StoreOp:        vulkan.AttachmentStoreOpDontCare,
			StencilLoadOp:  vulkan.AttachmentLoadOpDontCare,
			StencilStoreOp: vulkan.AttachmentStoreOpDontCare,
			InitialLayout:  vulkan.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vulkan.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}
	depthRef := vulkan.AttachmentReference{
		Attachment: 1,
		Layout:     vulkan.ImageLayoutDepthStencilAttachmentOptimal,
	}
	subpass := vulkan.SubpassDescription{
		PipelineBindPoint:    vulkan.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vulkan.AttachmentReference{{
			Attachment: 0,
			Layout:     vulkan.ImageLayoutColorAttachmentOptimal,
		}},
		PDepthStencilAttachment: &depthRef,
	}
	dependency := externalDependency()

	info := vulkan.RenderPassCreateInfo{
		SType:           vulkan.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vulkan.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vulkan.SubpassDependency{dependency},
	}
	var pass vulkan.RenderPass
	if err := gpu.Check("create render pass", vulkan.CreateRenderPass(device, &info, nil, &pass)); err != nil {
		return vulkan.RenderPass(vulkan.NullHandle), err
	}
	return pass, nil
}

// externalDependency orders this frame's attachment work after the
// previous frame's. Every frame in flight shares one depth image, so the
// depth clear must wait for the last late depth test to finish writing.
func externalDependency() vulkan.SubpassDependency {
	return vulkan.SubpassDependency{
		SrcSubpass:    vulkan.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit | vulkan.PipelineStageLateFragmentTestsBit),
		DstStageMask:  vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit | vulkan.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: vulkan.AccessFlags(vulkan.AccessDepthStencilAttachmentWriteBit),
		DstAccessMask: vulkan.AccessFlags(vulkan.AccessColorAttachmentWriteBit | vulkan.AccessDepthStencilAttachmentWriteBit),
	}
}

// attributeFormat maps a float attribute width to its vertex format.
func attributeFormat(components int) (vulkan.Format, error) {
	switch components {
	case 1:
		return vulkan.FormatR32Sfloat, nil
	case 2:
		return vulkan.FormatR32g32Sfloat, nil
	case 3:
		return vulkan.FormatR32g32b32Sfloat, nil
	case 4:
		return vulkan.FormatR32g32b32a32Sfloat, nil
	}
	return vulkan.FormatUndefined, fmt.Errorf("no vertex format for %d components", components)
}

func vertexInput() (vulkan.VertexInputBindingDescription, []vulkan.VertexInputAttributeDescription, error) {
	binding := vulkan.VertexInputBindingDescription{
		Binding:   0,
		Stride:    uint32(resources.VertexSize),
		InputRate: vulkan.VertexInputRateVertex,
	}
	attrs := make([]vulkan.VertexInputAttributeDescription, 0, len(resources.VertexLayout))
	for _, a := range resources.VertexLayout {
		format, err := attributeFormat(a.Components)
		if err != nil {
			return binding, nil, err
		}
		attrs = append(attrs, vulkan.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  0,
			Format:   format,
			Offset:   a.Offset,
		})
	}
	return binding, attrs, nil
}

// pipeline is the graphics pipeline and its layout. Both are rebuilt with
// the swapchain since the viewport is baked in.
type pipeline struct {
	Layout   vulkan.PipelineLayout
	Pipeline vulkan.Pipeline
	device   vulkan.Device
}

func (p *pipeline) Destroy() {
	if p == nil {
		return
	}
	if p.Pipeline != vulkan.Pipeline(vulkan.NullHandle) {
		vulkan.DestroyPipeline(p.device, p.Pipeline, nil)
		p.Pipeline = vulkan.Pipeline(vulkan.NullHandle)
	}
	if p.Layout != vulkan.PipelineLayout(vulkan.NullHandle) {
		vulkan.DestroyPipelineLayout(p.device, p.Layout, nil)
		p.Layout = vulkan.PipelineLayout(vulkan.NullHandle)
	}
}

type pipelineConfig struct {
	ShaderDir  string
	SetLayout  vulkan.DescriptorSetLayout
	RenderPass vulkan.RenderPass
	Extent     vulkan.Extent2D
}

func (c *pipelineConfig) loadModules(ctx *gpu.Context) (vert, frag vulkan.ShaderModule, err error) {
	vertCode, err := gpu.LoadShader(filepath.Join(c.ShaderDir, vertexShader))
	if err != nil {
		return vert, frag, err
	}
	fragCode, err := gpu.LoadShader(filepath.Join(c.ShaderDir, fragmentShader))
	if err != nil {
		return vert, frag, err
	}
	if vert, err = ctx.CreateShaderModule(vertCode); err != nil {
		return vert, frag, err
	}
	if frag, err = ctx.CreateShaderModule(fragCode); err != nil {
		vulkan.DestroyShaderModule(ctx.Device, vert, nil)
		return vert, frag, err
	}
	return vert, frag, nil
}

// createPipeline reads the SPIR-V from disk every time so a rebuild picks
// up recompiled shaders.
func createPipeline(ctx *gpu.Context, cfg pipelineConfig) (*pipeline, error) {
	vert, frag, err := cfg.loadModules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load shaders: %w", err)
	}
	defer vulkan.DestroyShaderModule(ctx.Device, vert, nil)
	defer vulkan.DestroyShaderModule(ctx.Device, frag, nil)

	stages := []vulkan.PipelineShaderStageCreateInfo{
		{
			SType:  vulkan.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vulkan.ShaderStageVertexBit,
			Module: vert,
			PName:  entryPoint,
		},
		{
			SType:  vulkan.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vulkan.ShaderStageFragmentBit,
			Module: frag,
			PName:  entryPoint,
		},
	}

	binding, attrs, err := vertexInput()
	if err != nil {
		return nil, err
	}
	input := vulkan.PipelineVertexInputStateCreateInfo{
		SType:                           vulkan.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vulkan.VertexInputBindingDescription{binding},
		VertexAttributeDescriptionCount: uint32(len(attrs)),
		PVertexAttributeDescriptions:    attrs,
	}
	assembly := vulkan.PipelineInputAssemblyStateCreateInfo{
		SType:                  vulkan.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vulkan.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vulkan.False,
	}
	viewport := vulkan.PipelineViewportStateCreateInfo{
		SType:         vulkan.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports: []vulkan.Viewport{{
			Width:    float32(cfg.Extent.Width),
			Height:   float32(cfg.Extent.Height),
			MinDepth: 0,
			MaxDepth: 1,
		}},
		ScissorCount: 1,
		PScissors:    []vulkan.Rect2D{{Extent: cfg.Extent}},
	}
	raster := vulkan.PipelineRasterizationStateCreateInfo{
		SType:                   vulkan.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vulkan.False,
		RasterizerDiscardEnable: vulkan.False,
		PolygonMode:             vulkan.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vulkan.CullModeFlags(vulkan.CullModeBackBit),
		FrontFace:               vulkan.FrontFaceCounterClockwise,
		DepthBiasEnable:         vulkan.False,
	}
	multisample := vulkan.PipelineMultisampleStateCreateInfo{
		SType:                vulkan.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vulkan.SampleCount1Bit,
	}
	depth := vulkan.PipelineDepthStencilStateCreateInfo{
		SType:            vulkan.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  vulkan.True,
		DepthWriteEnable: vulkan.True,
		DepthCompareOp:   vulkan.CompareOpLess,
	}
	blend := vulkan.PipelineColorBlendStateCreateInfo{
		SType:           vulkan.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments: []vulkan.PipelineColorBlendAttachmentState{{
			ColorWriteMask: vulkan.ColorComponentFlags(vulkan.ColorComponentRBit | vulkan.ColorComponentGBit | vulkan.ColorComponentBBit | vulkan.ColorComponentABit),
			BlendEnable:    vulkan.False,
		}},
	}

	p := &pipeline{device: ctx.Device}
	layoutInfo := vulkan.PipelineLayoutCreateInfo{
		SType:          vulkan.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vulkan.DescriptorSetLayout{cfg.SetLayout},
	}
	if err := gpu.Check("create pipeline layout", vulkan.CreatePipelineLayout(ctx.Device, &layoutInfo, nil, &p.Layout)); err != nil {
		return nil, err
	}

	info := vulkan.GraphicsPipelineCreateInfo{
		SType:               vulkan.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &input,
		PInputAssemblyState: &assembly,
		PViewportState:      &viewport,
		PRasterizationState: &raster,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depth,
		PColorBlendState:    &blend,
		Layout:              p.Layout,
		RenderPass:          cfg.RenderPass,
	}
	pipelines := make([]vulkan.Pipeline, 1)
	res := vulkan.CreateGraphicsPipelines(ctx.Device, vulkan.PipelineCache(vulkan.NullHandle), 1, []vulkan.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if err := gpu.Check("create graphics pipeline", res); err != nil {
		p.Destroy()
		return nil, err
	}
	p.Pipeline = pipelines[0]
	return p, nil
}
