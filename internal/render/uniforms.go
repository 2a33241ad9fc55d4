package render

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vulkan-go/vulkan"

	"otter/internal/gpu"
)

// UniformBlock matches the vertex shader's binding 0.
type UniformBlock struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

const uniformSize = vulkan.DeviceSize(unsafe.Sizeof(UniformBlock{}))

var (
	eye    = mgl32.Vec3{2, 2, 2}
	center = mgl32.Vec3{0, 0, 0}
	up     = mgl32.Vec3{0, 0, 1}
)

// ComputeUniforms spins the model 90 degrees per second about Z, viewed
// from (2,2,2). The projection's Y axis is flipped for Vulkan clip space.
func ComputeUniforms(elapsed time.Duration, width, height uint32) UniformBlock {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	angle := float32(elapsed.Seconds()) * mgl32.DegToRad(90)
	proj := mgl32.Perspective(mgl32.DegToRad(45), aspect, 0.1, 10.0)
	proj[5] *= -1
	return UniformBlock{
		Model: mgl32.HomogRotate3D(angle, up),
		View:  mgl32.LookAtV(eye, center, up),
		Proj:  proj,
	}
}

// ringLayout splits one buffer into per-slot regions, each aligned to the
// device's minimum uniform offset alignment.
type ringLayout struct {
	stride vulkan.DeviceSize
	slots  int
}

func newRingLayout(block, align vulkan.DeviceSize, slots int) ringLayout {
	return ringLayout{stride: gpu.AlignUp(block, align), slots: slots}
}

func (l ringLayout) Offset(slot int) vulkan.DeviceSize {
	return vulkan.DeviceSize(slot) * l.stride
}

func (l ringLayout) Size() vulkan.DeviceSize {
	return vulkan.DeviceSize(l.slots) * l.stride
}

// uniformRing is a persistently mapped host-coherent buffer holding one
// UniformBlock per frame slot. A slot's region may only be written after
// that slot's fence has been waited on.
type uniformRing struct {
	ringLayout
	buf *gpu.Buffer
}

func newUniformRing(ctx *gpu.Context, slots int) (*uniformRing, error) {
	layout := newRingLayout(uniformSize, ctx.MinUniformAlignment, slots)
	buf, err := ctx.CreateBuffer(layout.Size(),
		vulkan.BufferUsageFlags(vulkan.BufferUsageUniformBufferBit),
		vulkan.MemoryPropertyHostVisibleBit|vulkan.MemoryPropertyHostCoherentBit)
	if err != nil {
		return nil, fmt.Errorf("create uniform ring: %w", err)
	}
	if _, err := buf.Map(); err != nil {
		buf.Destroy()
		return nil, fmt.Errorf("map uniform ring: %w", err)
	}
	return &uniformRing{ringLayout: layout, buf: buf}, nil
}

func (u *uniformRing) Write(slot int, block UniformBlock) error {
	src := unsafe.Slice((*byte)(unsafe.Pointer(&block)), int(uniformSize))
	return u.buf.Write(u.Offset(slot), src)
}

func (u *uniformRing) Destroy() {
	u.buf.Destroy()
}
