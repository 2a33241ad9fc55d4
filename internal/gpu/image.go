package gpu

import (
	"errors"
	"fmt"

	"github.com/vulkan-go/vulkan"
)

// Image is a 2D image with its allocation and a default view.
type Image struct {
	Image  vulkan.Image
	Memory vulkan.DeviceMemory
	View   vulkan.ImageView
	Format vulkan.Format
	Width  uint32
	Height uint32

	device vulkan.Device
}

func (im *Image) Destroy() {
	if im == nil || im.Image == vulkan.Image(vulkan.NullHandle) {
		return
	}
	if im.View != vulkan.ImageView(vulkan.NullHandle) {
		vulkan.DestroyImageView(im.device, im.View, nil)
	}
	vulkan.DestroyImage(im.device, im.Image, nil)
	vulkan.FreeMemory(im.device, im.Memory, nil)
	im.Image = vulkan.Image(vulkan.NullHandle)
	im.View = vulkan.ImageView(vulkan.NullHandle)
	im.Memory = vulkan.DeviceMemory(vulkan.NullHandle)
}

// CreateImage creates an optimal-tiling image with a bound allocation and
// a view covering aspect.
func (c *Context) CreateImage(width, height uint32, format vulkan.Format, usage vulkan.ImageUsageFlags, aspect vulkan.ImageAspectFlags) (*Image, error) {
	info := vulkan.ImageCreateInfo{
		SType:     vulkan.StructureTypeImageCreateInfo,
		ImageType: vulkan.ImageType2d,
		Extent: vulkan.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        vulkan.ImageTilingOptimal,
		InitialLayout: vulkan.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vulkan.SampleCount1Bit,
		SharingMode:   vulkan.SharingModeExclusive,
	}
	var img vulkan.Image
	if err := Check("create image", vulkan.CreateImage(c.Device, &info, nil, &img)); err != nil {
		return nil, err
	}

	var req vulkan.MemoryRequirements
	vulkan.GetImageMemoryRequirements(c.Device, img, &req)
	req.Deref()
	typeIndex, err := c.findMemoryType(req.MemoryTypeBits, vulkan.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vulkan.DestroyImage(c.Device, img, nil)
		return nil, fmt.Errorf("image memory: %w", err)
	}
	alloc := vulkan.MemoryAllocateInfo{
		SType:           vulkan.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: typeIndex,
	}
	var mem vulkan.DeviceMemory
	if err := Check("allocate image memory", vulkan.AllocateMemory(c.Device, &alloc, nil, &mem)); err != nil {
		vulkan.DestroyImage(c.Device, img, nil)
		return nil, err
	}
	out := &Image{Image: img, Memory: mem, Format: format, Width: width, Height: height, device: c.Device}
	if err := Check("bind image memory", vulkan.BindImageMemory(c.Device, img, mem, 0)); err != nil {
		out.Destroy()
		return nil, err
	}
	view, err := c.CreateImageView(img, format, aspect)
	if err != nil {
		out.Destroy()
		return nil, err
	}
	out.View = view
	return out, nil
}

func (c *Context) CreateImageView(image vulkan.Image, format vulkan.Format, aspect vulkan.ImageAspectFlags) (vulkan.ImageView, error) {
	info := vulkan.ImageViewCreateInfo{
		SType:    vulkan.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vulkan.ImageViewType2d,
		Format:   format,
		Components: vulkan.ComponentMapping{
			R: vulkan.ComponentSwizzleIdentity,
			G: vulkan.ComponentSwizzleIdentity,
			B: vulkan.ComponentSwizzleIdentity,
			A: vulkan.ComponentSwizzleIdentity,
		},
		SubresourceRange: vulkan.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vulkan.ImageView
	if err := Check("create image view", vulkan.CreateImageView(c.Device, &info, nil, &view)); err != nil {
		return vulkan.ImageView(vulkan.NullHandle), err
	}
	return view, nil
}

var depthCandidates = []vulkan.Format{
	vulkan.FormatD32Sfloat,
	vulkan.FormatD32SfloatS8Uint,
	vulkan.FormatD24UnormS8Uint,
}

// FindDepthFormat picks the first depth format usable as an optimal-tiling
// depth attachment.
func (c *Context) FindDepthFormat() (vulkan.Format, error) {
	want := vulkan.FormatFeatureFlags(vulkan.FormatFeatureDepthStencilAttachmentBit)
	for _, f := range depthCandidates {
		var props vulkan.FormatProperties
		vulkan.GetPhysicalDeviceFormatProperties(c.PhysicalDevice, f, &props)
		props.Deref()
		if props.OptimalTilingFeatures&want == want {
			return f, nil
		}
	}
	return vulkan.FormatUndefined, errors.New("no supported depth format")
}

func HasStencil(format vulkan.Format) bool {
	return format == vulkan.FormatD32SfloatS8Uint || format == vulkan.FormatD24UnormS8Uint
}

// DepthAspect is the aspect mask of a depth attachment in format.
func DepthAspect(format vulkan.Format) vulkan.ImageAspectFlags {
	aspect := vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit)
	if HasStencil(format) {
		aspect |= vulkan.ImageAspectFlags(vulkan.ImageAspectStencilBit)
	}
	return aspect
}

// Barrier is the synchronization scope of one layout transition.
type Barrier struct {
	SrcAccess vulkan.AccessFlags
	DstAccess vulkan.AccessFlags
	SrcStage  vulkan.PipelineStageFlags
	DstStage  vulkan.PipelineStageFlags
}

type layoutPair struct{ from, to vulkan.ImageLayout }

var transitions = map[layoutPair]Barrier{
	{vulkan.ImageLayoutUndefined, vulkan.ImageLayoutTransferDstOptimal}: {
		DstAccess: vulkan.AccessFlags(vulkan.AccessTransferWriteBit),
		SrcStage:  vulkan.PipelineStageFlags(vulkan.PipelineStageTopOfPipeBit),
		DstStage:  vulkan.PipelineStageFlags(vulkan.PipelineStageTransferBit),
	},
	{vulkan.ImageLayoutTransferDstOptimal, vulkan.ImageLayoutShaderReadOnlyOptimal}: {
		SrcAccess: vulkan.AccessFlags(vulkan.AccessTransferWriteBit),
		DstAccess: vulkan.AccessFlags(vulkan.AccessShaderReadBit),
		SrcStage:  vulkan.PipelineStageFlags(vulkan.PipelineStageTransferBit),
		DstStage:  vulkan.PipelineStageFlags(vulkan.PipelineStageFragmentShaderBit),
	},
	{vulkan.ImageLayoutUndefined, vulkan.ImageLayoutDepthStencilAttachmentOptimal}: {
		DstAccess: vulkan.AccessFlags(vulkan.AccessDepthStencilAttachmentReadBit | vulkan.AccessDepthStencilAttachmentWriteBit),
		SrcStage:  vulkan.PipelineStageFlags(vulkan.PipelineStageTopOfPipeBit),
		DstStage:  vulkan.PipelineStageFlags(vulkan.PipelineStageEarlyFragmentTestsBit),
	},
}

// LayoutTransition looks up the access masks and stages for from -> to.
func LayoutTransition(from, to vulkan.ImageLayout) (Barrier, error) {
	b, ok := transitions[layoutPair{from, to}]
	if !ok {
		return Barrier{}, fmt.Errorf("%w: %d -> %d", ErrUnsupportedTransition, from, to)
	}
	return b, nil
}

// CmdTransition records a layout transition barrier for the whole image.
func CmdTransition(cmd vulkan.CommandBuffer, image vulkan.Image, aspect vulkan.ImageAspectFlags, from, to vulkan.ImageLayout) error {
	b, err := LayoutTransition(from, to)
	if err != nil {
		return err
	}
	barrier := vulkan.ImageMemoryBarrier{
		SType:               vulkan.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       b.SrcAccess,
		DstAccessMask:       b.DstAccess,
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vulkan.QueueFamilyIgnored,
		DstQueueFamilyIndex: vulkan.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vulkan.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	vulkan.CmdPipelineBarrier(cmd, b.SrcStage, b.DstStage, 0, 0, nil, 0, nil, 1, []vulkan.ImageMemoryBarrier{barrier})
	return nil
}

// UploadImage creates a sampled image from RGBA8 pixels. The transition to
// TRANSFER_DST, the copy and the transition to SHADER_READ_ONLY are
// recorded into one command buffer.
func (c *Context) UploadImage(pool vulkan.CommandPool, width, height uint32, format vulkan.Format, pixels []byte) (*Image, error) {
	if want := int(width) * int(height) * 4; len(pixels) != want || want == 0 {
		return nil, fmt.Errorf("upload image: have %d bytes, want %d for %dx%d", len(pixels), want, width, height)
	}
	stage, err := c.staging(pixels)
	if err != nil {
		return nil, err
	}
	defer stage.Destroy()

	img, err := c.CreateImage(width, height, format,
		vulkan.ImageUsageFlags(vulkan.ImageUsageTransferDstBit|vulkan.ImageUsageSampledBit),
		vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit))
	if err != nil {
		return nil, fmt.Errorf("create texture image: %w", err)
	}

	color := vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit)
	var recErr error
	err = c.OneTime(pool, func(cmd vulkan.CommandBuffer) {
		if recErr = CmdTransition(cmd, img.Image, color, vulkan.ImageLayoutUndefined, vulkan.ImageLayoutTransferDstOptimal); recErr != nil {
			return
		}
		region := vulkan.BufferImageCopy{
			ImageSubresource: vulkan.ImageSubresourceLayers{
				AspectMask: color,
				LayerCount: 1,
			},
			ImageExtent: vulkan.Extent3D{Width: width, Height: height, Depth: 1},
		}
		vulkan.CmdCopyBufferToImage(cmd, stage.Buffer, img.Image, vulkan.ImageLayoutTransferDstOptimal, 1, []vulkan.BufferImageCopy{region})
		recErr = CmdTransition(cmd, img.Image, color, vulkan.ImageLayoutTransferDstOptimal, vulkan.ImageLayoutShaderReadOnlyOptimal)
	})
	if err == nil {
		err = recErr
	}
	if err != nil {
		img.Destroy()
		return nil, fmt.Errorf("upload image: %w", err)
	}
	return img, nil
}

func (c *Context) CreateSampler() (vulkan.Sampler, error) {
	info := vulkan.SamplerCreateInfo{
		SType:                   vulkan.StructureTypeSamplerCreateInfo,
		MagFilter:               vulkan.FilterLinear,
		MinFilter:               vulkan.FilterLinear,
		AddressModeU:            vulkan.SamplerAddressModeRepeat,
		AddressModeV:            vulkan.SamplerAddressModeRepeat,
		AddressModeW:            vulkan.SamplerAddressModeRepeat,
		AnisotropyEnable:        vulkan.False,
		MaxAnisotropy:           1.0,
		BorderColor:             vulkan.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vulkan.False,
		CompareEnable:           vulkan.False,
		CompareOp:               vulkan.CompareOpAlways,
		MipmapMode:              vulkan.SamplerMipmapModeLinear,
	}
	var sampler vulkan.Sampler
	if err := Check("create sampler", vulkan.CreateSampler(c.Device, &info, nil, &sampler)); err != nil {
		return vulkan.Sampler(vulkan.NullHandle), err
	}
	return sampler, nil
}
