package gpu

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/vulkan-go/vulkan"
)

// Buffer is a buffer with its own bound allocation.
type Buffer struct {
	Buffer vulkan.Buffer
	Memory vulkan.DeviceMemory
	Size   vulkan.DeviceSize

	device vulkan.Device
	mapped unsafe.Pointer
}

// CreateBuffer creates a buffer and binds a fresh allocation with props.
func (c *Context) CreateBuffer(size vulkan.DeviceSize, usage vulkan.BufferUsageFlags, props vulkan.MemoryPropertyFlagBits) (*Buffer, error) {
	info := vulkan.BufferCreateInfo{
		SType:       vulkan.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vulkan.SharingModeExclusive,
	}
	var buf vulkan.Buffer
	if err := Check("create buffer", vulkan.CreateBuffer(c.Device, &info, nil, &buf)); err != nil {
		return nil, err
	}

	var req vulkan.MemoryRequirements
	vulkan.GetBufferMemoryRequirements(c.Device, buf, &req)
	req.Deref()
	typeIndex, err := c.findMemoryType(req.MemoryTypeBits, props)
	if err != nil {
		vulkan.DestroyBuffer(c.Device, buf, nil)
		return nil, fmt.Errorf("buffer memory: %w", err)
	}
	alloc := vulkan.MemoryAllocateInfo{
		SType:           vulkan.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: typeIndex,
	}
	var mem vulkan.DeviceMemory
	if err := Check("allocate buffer memory", vulkan.AllocateMemory(c.Device, &alloc, nil, &mem)); err != nil {
		vulkan.DestroyBuffer(c.Device, buf, nil)
		return nil, err
	}
	if err := Check("bind buffer memory", vulkan.BindBufferMemory(c.Device, buf, mem, 0)); err != nil {
		vulkan.DestroyBuffer(c.Device, buf, nil)
		vulkan.FreeMemory(c.Device, mem, nil)
		return nil, err
	}
	return &Buffer{Buffer: buf, Memory: mem, Size: size, device: c.Device}, nil
}

// Map maps the whole buffer. Mapping is kept until Unmap or Destroy, so
// repeated calls return the same pointer.
func (b *Buffer) Map() (unsafe.Pointer, error) {
	if b.mapped != nil {
		return b.mapped, nil
	}
	var p unsafe.Pointer
	if err := Check("map memory", vulkan.MapMemory(b.device, b.Memory, 0, b.Size, 0, &p)); err != nil {
		return nil, err
	}
	b.mapped = p
	return p, nil
}

func (b *Buffer) Unmap() {
	if b.mapped == nil {
		return
	}
	vulkan.UnmapMemory(b.device, b.Memory)
	b.mapped = nil
}

// Write copies data into the mapped buffer at offset.
func (b *Buffer) Write(offset vulkan.DeviceSize, data []byte) error {
	if offset+vulkan.DeviceSize(len(data)) > b.Size {
		return fmt.Errorf("write %d bytes at %d overflows buffer of %d", len(data), offset, b.Size)
	}
	p, err := b.Map()
	if err != nil {
		return err
	}
	dst := unsafe.Slice((*byte)(unsafe.Add(p, offset)), len(data))
	copy(dst, data)
	return nil
}

func (b *Buffer) Destroy() {
	if b == nil || b.Buffer == vulkan.Buffer(vulkan.NullHandle) {
		return
	}
	b.Unmap()
	vulkan.DestroyBuffer(b.device, b.Buffer, nil)
	vulkan.FreeMemory(b.device, b.Memory, nil)
	b.Buffer = vulkan.Buffer(vulkan.NullHandle)
	b.Memory = vulkan.DeviceMemory(vulkan.NullHandle)
}

// staging creates a host-visible buffer holding data.
func (c *Context) staging(data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, errors.New("upload: no data")
	}
	buf, err := c.CreateBuffer(vulkan.DeviceSize(len(data)),
		vulkan.BufferUsageFlags(vulkan.BufferUsageTransferSrcBit),
		vulkan.MemoryPropertyHostVisibleBit|vulkan.MemoryPropertyHostCoherentBit)
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	if err := buf.Write(0, data); err != nil {
		buf.Destroy()
		return nil, fmt.Errorf("fill staging buffer: %w", err)
	}
	buf.Unmap()
	return buf, nil
}

// UploadBuffer copies data into a new device-local buffer through a
// staging buffer. The staging buffer is released only after the graphics
// queue has drained the copy.
func (c *Context) UploadBuffer(pool vulkan.CommandPool, data []byte, usage vulkan.BufferUsageFlagBits) (*Buffer, error) {
	stage, err := c.staging(data)
	if err != nil {
		return nil, err
	}
	defer stage.Destroy()

	size := vulkan.DeviceSize(len(data))
	dst, err := c.CreateBuffer(size,
		vulkan.BufferUsageFlags(vulkan.BufferUsageTransferDstBit|usage),
		vulkan.MemoryPropertyDeviceLocalBit)
	if err != nil {
		return nil, err
	}
	err = c.OneTime(pool, func(cmd vulkan.CommandBuffer) {
		vulkan.CmdCopyBuffer(cmd, stage.Buffer, dst.Buffer, 1, []vulkan.BufferCopy{{Size: size}})
	})
	if err != nil {
		dst.Destroy()
		return nil, fmt.Errorf("copy to device buffer: %w", err)
	}
	return dst, nil
}
