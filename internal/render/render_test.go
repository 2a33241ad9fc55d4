package render

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulkan-go/vulkan"

	"otter/internal/frame"
	"otter/internal/resources"
)

func TestComputeUniforms(t *testing.T) {
	u := ComputeUniforms(0, 800, 600)
	assert.True(t, u.Model.ApproxEqual(mgl32.Ident4()), "no rotation at t=0")
	assert.Less(t, u.Proj[5], float32(0), "Y must be flipped for Vulkan clip space")

	// One second turns the model a quarter turn about Z: +X lands on +Y.
	u = ComputeUniforms(time.Second, 800, 600)
	x := u.Model.Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.InDelta(t, 0, x.X(), 1e-5)
	assert.InDelta(t, 1, x.Y(), 1e-5)
	assert.InDelta(t, 0, x.Z(), 1e-5)

	// The camera looks at the origin, which lands on the view axis.
	o := u.View.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, 0, o.X(), 1e-5)
	assert.InDelta(t, 0, o.Y(), 1e-5)
	assert.Less(t, o.Z(), float32(0))

	wide := ComputeUniforms(0, 1600, 800)
	square := ComputeUniforms(0, 800, 800)
	assert.InDelta(t, square.Proj[0]/2, wide.Proj[0], 1e-5)

	// A zero height must not divide by zero.
	flat := ComputeUniforms(0, 800, 0)
	assert.InDelta(t, square.Proj[0], flat.Proj[0], 1e-5)
}

func TestUniformBlockLayout(t *testing.T) {
	assert.Equal(t, vulkan.DeviceSize(3*16*4), uniformSize)
}

func TestRingLayout(t *testing.T) {
	l := newRingLayout(uniformSize, 256, 3)
	assert.Equal(t, vulkan.DeviceSize(256), l.stride)
	assert.Equal(t, vulkan.DeviceSize(0), l.Offset(0))
	assert.Equal(t, vulkan.DeviceSize(256), l.Offset(1))
	assert.Equal(t, vulkan.DeviceSize(512), l.Offset(2))
	assert.Equal(t, vulkan.DeviceSize(768), l.Size())

	for _, align := range []vulkan.DeviceSize{1, 16, 64, 256} {
		l := newRingLayout(uniformSize, align, 2)
		assert.Zero(t, l.Offset(1)%align, "align %d", align)
		assert.GreaterOrEqual(t, l.stride, uniformSize)
	}
}

func TestVertexInput(t *testing.T) {
	binding, attrs, err := vertexInput()
	require.NoError(t, err)
	assert.Equal(t, uint32(resources.VertexSize), binding.Stride)
	require.Len(t, attrs, len(resources.VertexLayout))
	for i, a := range attrs {
		assert.Equal(t, uint32(i), a.Location)
		assert.Less(t, a.Offset, binding.Stride)
	}
	assert.Equal(t, vulkan.FormatR32g32b32Sfloat, attrs[0].Format)

	_, err = attributeFormat(5)
	assert.Error(t, err)
	f, err := attributeFormat(2)
	require.NoError(t, err)
	assert.Equal(t, vulkan.FormatR32g32Sfloat, f)
}

func TestExternalDependencyOrdersDepthWrites(t *testing.T) {
	dep := externalDependency()
	assert.Equal(t, vulkan.SubpassExternal, dep.SrcSubpass)
	src := vulkan.PipelineStageFlagBits(dep.SrcStageMask)
	dst := vulkan.PipelineStageFlagBits(dep.DstStageMask)
	assert.NotZero(t, src&vulkan.PipelineStageLateFragmentTestsBit)
	assert.NotZero(t, src&vulkan.PipelineStageColorAttachmentOutputBit)
	assert.NotZero(t, dst&vulkan.PipelineStageEarlyFragmentTestsBit)
	assert.NotZero(t, vulkan.AccessFlagBits(dep.SrcAccessMask)&vulkan.AccessDepthStencilAttachmentWriteBit)
	assert.NotZero(t, vulkan.AccessFlagBits(dep.DstAccessMask)&vulkan.AccessDepthStencilAttachmentWriteBit)
}

func TestPresentModeName(t *testing.T) {
	assert.Equal(t, "mailbox", presentModeName(vulkan.PresentModeMailbox))
	assert.Equal(t, "fifo", presentModeName(vulkan.PresentModeFifo))
	assert.Contains(t, presentModeName(vulkan.PresentMode(99)), "99")
}

func TestIsShaderChange(t *testing.T) {
	tests := []struct {
		ev   fsnotify.Event
		want bool
	}{
		{fsnotify.Event{Name: "shaders/vert.spv", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "shaders/FRAG.SPV", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "shaders/frag.spv", Op: fsnotify.Rename}, true},
		{fsnotify.Event{Name: "shaders/frag.spv", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "shaders/frag.glsl", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isShaderChange(tt.ev), tt.ev.String())
	}
}

func TestShaderWatcher(t *testing.T) {
	dir := t.TempDir()
	var invalid frame.Invalidation
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	w, err := watchShaders(dir, &invalid, log)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vert.spv"), []byte{3, 2, 0x23, 7}, 0o644))
	assert.Zero(t, invalid.Pending(), "reported before the directory settled")
	require.Eventually(t, func() bool {
		return invalid.Pending().Has(frame.ShadersChanged)
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Close())
	assert.Equal(t, frame.ShadersChanged, invalid.Take())
}

func TestShaderWatcherMissingDir(t *testing.T) {
	var invalid frame.Invalidation
	_, err := watchShaders(filepath.Join(t.TempDir(), "missing"), &invalid, slog.Default())
	assert.Error(t, err)

	var nilWatcher *shaderWatcher
	assert.NoError(t, nilWatcher.Close())
}
