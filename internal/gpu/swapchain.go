package gpu

import (
	"fmt"
	"math"

	"github.com/vulkan-go/vulkan"
)

// SurfaceSupport is what a surface offers on the chosen device.
type SurfaceSupport struct {
	Capabilities vulkan.SurfaceCapabilities
	Formats      []vulkan.SurfaceFormat
	PresentModes []vulkan.PresentMode
}

func querySurfaceSupport(dev vulkan.PhysicalDevice, surface vulkan.Surface) SurfaceSupport {
	var s SurfaceSupport
	vulkan.GetPhysicalDeviceSurfaceCapabilities(dev, surface, &s.Capabilities)
	s.Capabilities.Deref()
	s.Capabilities.CurrentExtent.Deref()
	s.Capabilities.MinImageExtent.Deref()
	s.Capabilities.MaxImageExtent.Deref()

	var n uint32
	vulkan.GetPhysicalDeviceSurfaceFormats(dev, surface, &n, nil)
	if n > 0 {
		s.Formats = make([]vulkan.SurfaceFormat, n)
		vulkan.GetPhysicalDeviceSurfaceFormats(dev, surface, &n, s.Formats)
		for i := range s.Formats {
			s.Formats[i].Deref()
		}
	}

	n = 0
	vulkan.GetPhysicalDeviceSurfacePresentModes(dev, surface, &n, nil)
	if n > 0 {
		s.PresentModes = make([]vulkan.PresentMode, n)
		vulkan.GetPhysicalDeviceSurfacePresentModes(dev, surface, &n, s.PresentModes)
	}
	return s
}

// ChooseSurfaceFormat prefers B8G8R8A8_SRGB with the sRGB non-linear color
// space.
func ChooseSurfaceFormat(formats []vulkan.SurfaceFormat) vulkan.SurfaceFormat {
	preferred := vulkan.SurfaceFormat{Format: vulkan.FormatB8g8r8a8Srgb, ColorSpace: vulkan.ColorSpaceSrgbNonlinear}
	if len(formats) == 0 || (len(formats) == 1 && formats[0].Format == vulkan.FormatUndefined) {
		return preferred
	}
	for _, f := range formats {
		if f.Format == preferred.Format && f.ColorSpace == preferred.ColorSpace {
			return f
		}
	}
	return formats[0]
}

// ParsePresentMode maps a config name to a present mode.
func ParsePresentMode(name string) (vulkan.PresentMode, error) {
	switch name {
	case "fifo", "":
		return vulkan.PresentModeFifo, nil
	case "mailbox":
		return vulkan.PresentModeMailbox, nil
	case "immediate":
		return vulkan.PresentModeImmediate, nil
	}
	return vulkan.PresentModeFifo, fmt.Errorf("unknown present mode %q", name)
}

// ChoosePresentMode returns preferred when offered. FIFO is the fallback
// since every implementation must support it.
func ChoosePresentMode(modes []vulkan.PresentMode, preferred vulkan.PresentMode) vulkan.PresentMode {
	for _, m := range modes {
		if m == preferred {
			return m
		}
	}
	return vulkan.PresentModeFifo
}

// ChooseExtent uses the surface's current extent unless the surface lets
// the application pick, in which case the framebuffer size is clamped.
func ChooseExtent(caps vulkan.SurfaceCapabilities, fbWidth, fbHeight int) vulkan.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	return vulkan.Extent2D{
		Width:  clamp(uint32(max(fbWidth, 0)), caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(uint32(max(fbHeight, 0)), caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// ChooseImageCount asks for one image more than the minimum, and at least
// as many as frames in flight.
func ChooseImageCount(caps vulkan.SurfaceCapabilities, framesInFlight int) uint32 {
	n := max(caps.MinImageCount+1, uint32(max(framesInFlight, 0)))
	if caps.MaxImageCount > 0 && n > caps.MaxImageCount {
		n = caps.MaxImageCount
	}
	return n
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Swapchain is a created swapchain and its images.
type Swapchain struct {
	Handle      vulkan.Swapchain
	Images      []vulkan.Image
	Format      vulkan.Format
	ColorSpace  vulkan.ColorSpace
	Extent      vulkan.Extent2D
	PresentMode vulkan.PresentMode

	device vulkan.Device
}

type SwapchainOptions struct {
	PresentMode    vulkan.PresentMode
	FramesInFlight int
}

// CreateSwapchain builds a swapchain for the current surface state. old is
// handed to the driver as OldSwapchain so in-flight presents can retire
// gracefully; the caller destroys it afterwards.
func (c *Context) CreateSwapchain(old vulkan.Swapchain, fbWidth, fbHeight int, opts SwapchainOptions) (*Swapchain, error) {
	support := querySurfaceSupport(c.PhysicalDevice, c.Surface)
	format := ChooseSurfaceFormat(support.Formats)
	mode := ChoosePresentMode(support.PresentModes, opts.PresentMode)
	extent := ChooseExtent(support.Capabilities, fbWidth, fbHeight)

	info := vulkan.SwapchainCreateInfo{
		SType:            vulkan.StructureTypeSwapchainCreateInfo,
		Surface:          c.Surface,
		MinImageCount:    ChooseImageCount(support.Capabilities, opts.FramesInFlight),
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vulkan.ImageUsageFlags(vulkan.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vulkan.CompositeAlphaOpaqueBit,
		PresentMode:      mode,
		Clipped:          vulkan.True,
		OldSwapchain:     old,
	}
	if c.GraphicsFamily != c.PresentFamily {
		families := []uint32{c.GraphicsFamily, c.PresentFamily}
		info.ImageSharingMode = vulkan.SharingModeConcurrent
		info.QueueFamilyIndexCount = uint32(len(families))
		info.PQueueFamilyIndices = families
	} else {
		info.ImageSharingMode = vulkan.SharingModeExclusive
	}

	var handle vulkan.Swapchain
	if err := Check("create swapchain", vulkan.CreateSwapchain(c.Device, &info, nil, &handle)); err != nil {
		return nil, err
	}
	var n uint32
	if err := Check("get swapchain images", vulkan.GetSwapchainImages(c.Device, handle, &n, nil)); err != nil {
		vulkan.DestroySwapchain(c.Device, handle, nil)
		return nil, err
	}
	images := make([]vulkan.Image, n)
	if err := Check("get swapchain images", vulkan.GetSwapchainImages(c.Device, handle, &n, images)); err != nil {
		vulkan.DestroySwapchain(c.Device, handle, nil)
		return nil, err
	}
	return &Swapchain{
		Handle:      handle,
		Images:      images[:n],
		Format:      format.Format,
		ColorSpace:  format.ColorSpace,
		Extent:      extent,
		PresentMode: mode,
		device:      c.Device,
	}, nil
}

func (s *Swapchain) Destroy() {
	if s == nil || s.Handle == vulkan.Swapchain(vulkan.NullHandle) {
		return
	}
	vulkan.DestroySwapchain(s.device, s.Handle, nil)
	s.Handle = vulkan.Swapchain(vulkan.NullHandle)
	s.Images = nil
}
