package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulkan-go/vulkan"
)

func TestCheck(t *testing.T) {
	assert.NoError(t, Check("noop", vulkan.Success))

	err := Check("acquire next image", vulkan.ErrorOutOfDate)
	require.Error(t, err)
	assert.Equal(t, "acquire next image: VK_ERROR_OUT_OF_DATE_KHR", err.Error())
	assert.ErrorIs(t, err, ErrOutOfDate)
	assert.NotErrorIs(t, err, ErrSuboptimal)

	wrapped := fmt.Errorf("draw frame: %w", Check("queue submit", vulkan.ErrorDeviceLost))
	assert.ErrorIs(t, wrapped, ErrDeviceLost)
	var re *ResultError
	require.ErrorAs(t, wrapped, &re)
	assert.Equal(t, "queue submit", re.Op)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "VK_SUCCESS", ResultString(vulkan.Success))
	assert.Equal(t, "VK_SUBOPTIMAL_KHR", ResultString(vulkan.Suboptimal))
	assert.Equal(t, "VK_ERROR_DEVICE_LOST", ResultString(vulkan.ErrorDeviceLost))
	assert.Equal(t, "Unknown VkResult", ResultString(vulkan.Result(424242)))
}

func TestFindMemoryType(t *testing.T) {
	hostVisible := vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyHostVisibleBit)
	hostCoherent := vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyHostCoherentBit)
	deviceLocal := vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyDeviceLocalBit)
	types := []vulkan.MemoryType{
		{PropertyFlags: deviceLocal},
		{PropertyFlags: hostVisible},
		{PropertyFlags: hostVisible | hostCoherent},
		{PropertyFlags: deviceLocal | hostVisible | hostCoherent},
	}

	tests := []struct {
		name string
		bits uint32
		want vulkan.MemoryPropertyFlags
		idx  uint32
	}{
		{"device local first", 0b1111, deviceLocal, 0},
		{"needs both host bits", 0b1111, hostVisible | hostCoherent, 2},
		{"masked by type bits", 0b1010, hostVisible | hostCoherent, 3},
		{"no requirements", 0b0100, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := FindMemoryType(tt.bits, types, tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.idx, idx)
		})
	}

	_, err := FindMemoryType(0b0010, types, deviceLocal)
	assert.ErrorIs(t, err, ErrNoMemoryType)
	_, err = FindMemoryType(0, types, 0)
	assert.ErrorIs(t, err, ErrNoMemoryType)
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, vulkan.DeviceSize(0), AlignUp(0, 256))
	assert.Equal(t, vulkan.DeviceSize(256), AlignUp(1, 256))
	assert.Equal(t, vulkan.DeviceSize(256), AlignUp(256, 256))
	assert.Equal(t, vulkan.DeviceSize(512), AlignUp(257, 256))
	assert.Equal(t, vulkan.DeviceSize(200), AlignUp(200, 0))
	assert.Equal(t, vulkan.DeviceSize(198), AlignUp(193, 66))
}

func TestLayoutTransition(t *testing.T) {
	b, err := LayoutTransition(vulkan.ImageLayoutUndefined, vulkan.ImageLayoutTransferDstOptimal)
	require.NoError(t, err)
	assert.Equal(t, vulkan.AccessFlags(0), b.SrcAccess)
	assert.Equal(t, vulkan.AccessFlags(vulkan.AccessTransferWriteBit), b.DstAccess)
	assert.Equal(t, vulkan.PipelineStageFlags(vulkan.PipelineStageTopOfPipeBit), b.SrcStage)
	assert.Equal(t, vulkan.PipelineStageFlags(vulkan.PipelineStageTransferBit), b.DstStage)

	b, err = LayoutTransition(vulkan.ImageLayoutTransferDstOptimal, vulkan.ImageLayoutShaderReadOnlyOptimal)
	require.NoError(t, err)
	assert.Equal(t, vulkan.AccessFlags(vulkan.AccessTransferWriteBit), b.SrcAccess)
	assert.Equal(t, vulkan.AccessFlags(vulkan.AccessShaderReadBit), b.DstAccess)
	assert.Equal(t, vulkan.PipelineStageFlags(vulkan.PipelineStageFragmentShaderBit), b.DstStage)

	b, err = LayoutTransition(vulkan.ImageLayoutUndefined, vulkan.ImageLayoutDepthStencilAttachmentOptimal)
	require.NoError(t, err)
	assert.Equal(t, vulkan.PipelineStageFlags(vulkan.PipelineStageEarlyFragmentTestsBit), b.DstStage)

	_, err = LayoutTransition(vulkan.ImageLayoutShaderReadOnlyOptimal, vulkan.ImageLayoutTransferDstOptimal)
	assert.ErrorIs(t, err, ErrUnsupportedTransition)
}

func TestDepthAspect(t *testing.T) {
	assert.False(t, HasStencil(vulkan.FormatD32Sfloat))
	assert.True(t, HasStencil(vulkan.FormatD24UnormS8Uint))
	assert.Equal(t, vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit), DepthAspect(vulkan.FormatD32Sfloat))
	assert.Equal(t, vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit|vulkan.ImageAspectStencilBit), DepthAspect(vulkan.FormatD32SfloatS8Uint))
}

func TestChooseSurfaceFormat(t *testing.T) {
	srgb := vulkan.SurfaceFormat{Format: vulkan.FormatB8g8r8a8Srgb, ColorSpace: vulkan.ColorSpaceSrgbNonlinear}
	unorm := vulkan.SurfaceFormat{Format: vulkan.FormatB8g8r8a8Unorm, ColorSpace: vulkan.ColorSpaceSrgbNonlinear}

	assert.Equal(t, srgb.Format, ChooseSurfaceFormat([]vulkan.SurfaceFormat{unorm, srgb}).Format)
	assert.Equal(t, unorm.Format, ChooseSurfaceFormat([]vulkan.SurfaceFormat{unorm}).Format)
	assert.Equal(t, srgb.Format, ChooseSurfaceFormat([]vulkan.SurfaceFormat{{Format: vulkan.FormatUndefined}}).Format)
}

func TestChoosePresentMode(t *testing.T) {
	all := []vulkan.PresentMode{vulkan.PresentModeImmediate, vulkan.PresentModeFifo, vulkan.PresentModeMailbox}
	assert.Equal(t, vulkan.PresentModeMailbox, ChoosePresentMode(all, vulkan.PresentModeMailbox))
	assert.Equal(t, vulkan.PresentModeFifo, ChoosePresentMode([]vulkan.PresentMode{vulkan.PresentModeFifo}, vulkan.PresentModeMailbox))

	for name, want := range map[string]vulkan.PresentMode{
		"fifo":      vulkan.PresentModeFifo,
		"mailbox":   vulkan.PresentModeMailbox,
		"immediate": vulkan.PresentModeImmediate,
	} {
		got, err := ParsePresentMode(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
	_, err := ParsePresentMode("adaptive")
	assert.Error(t, err)
}

func TestChooseExtent(t *testing.T) {
	fixed := vulkan.SurfaceCapabilities{CurrentExtent: vulkan.Extent2D{Width: 800, Height: 600}}
	assert.Equal(t, vulkan.Extent2D{Width: 800, Height: 600}, ChooseExtent(fixed, 1920, 1080))

	free := vulkan.SurfaceCapabilities{
		CurrentExtent:  vulkan.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32},
		MinImageExtent: vulkan.Extent2D{Width: 64, Height: 64},
		MaxImageExtent: vulkan.Extent2D{Width: 4096, Height: 2048},
	}
	assert.Equal(t, vulkan.Extent2D{Width: 1280, Height: 720}, ChooseExtent(free, 1280, 720))
	assert.Equal(t, vulkan.Extent2D{Width: 64, Height: 2048}, ChooseExtent(free, 10, 4000))
}

func TestChooseImageCount(t *testing.T) {
	assert.Equal(t, uint32(3), ChooseImageCount(vulkan.SurfaceCapabilities{MinImageCount: 2}, 2))
	assert.Equal(t, uint32(3), ChooseImageCount(vulkan.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 3}, 3))
	assert.Equal(t, uint32(3), ChooseImageCount(vulkan.SurfaceCapabilities{MinImageCount: 1}, 3))
	assert.Equal(t, uint32(2), ChooseImageCount(vulkan.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 2}, 3))
}

func TestDecodeVersion(t *testing.T) {
	major, minor, patch := DecodeVersion(uint32(vulkan.MakeVersion(1, 3, 250)))
	assert.Equal(t, [3]uint32{1, 3, 250}, [3]uint32{major, minor, patch})
	assert.Equal(t, "1.2.0", versionString(uint32(vulkan.MakeVersion(1, 2, 0))))
}

func TestDeviceScore(t *testing.T) {
	assert.Greater(t, DeviceScore(vulkan.PhysicalDeviceTypeDiscreteGpu), DeviceScore(vulkan.PhysicalDeviceTypeIntegratedGpu))
	assert.Greater(t, DeviceScore(vulkan.PhysicalDeviceTypeIntegratedGpu), DeviceScore(vulkan.PhysicalDeviceTypeCpu))
	assert.Equal(t, "discrete", DeviceTypeName(vulkan.PhysicalDeviceTypeDiscreteGpu))
}

func spirv(words ...uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func TestParseSPIRV(t *testing.T) {
	words, err := ParseSPIRV(spirv(spirvMagic, 0x00010000, 0, 8, 0))
	require.NoError(t, err)
	assert.Len(t, words, 5)

	_, err = ParseSPIRV(nil)
	assert.Error(t, err)
	_, err = ParseSPIRV([]byte{3, 2, 0x23, 7, 1})
	assert.ErrorContains(t, err, "multiple of 4")
	_, err = ParseSPIRV(spirv(0xdeadbeef))
	assert.ErrorContains(t, err, "magic")
}

func TestLoadShader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vert.spv")
	require.NoError(t, os.WriteFile(path, spirv(spirvMagic, 1), 0o644))
	words, err := LoadShader(path)
	require.NoError(t, err)
	assert.Equal(t, []uint32{spirvMagic, 1}, words)

	_, err = LoadShader(filepath.Join(dir, "frag.spv"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNulStrings(t *testing.T) {
	assert.Equal(t, "VK_KHR_surface\x00", withNul("VK_KHR_surface"))
	assert.Equal(t, "VK_KHR_surface\x00", withNul("VK_KHR_surface\x00"))
	assert.Equal(t, "VK_KHR_swapchain", trimNul(deviceExtensions[0]))
}
