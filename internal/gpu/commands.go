package gpu

import (
	"github.com/vulkan-go/vulkan"
)

func (c *Context) CreateCommandPool() (vulkan.CommandPool, error) {
	info := vulkan.CommandPoolCreateInfo{
		SType:            vulkan.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: c.GraphicsFamily,
		Flags:            vulkan.CommandPoolCreateFlags(vulkan.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vulkan.CommandPool
	if err := Check("create command pool", vulkan.CreateCommandPool(c.Device, &info, nil, &pool)); err != nil {
		return vulkan.CommandPool(vulkan.NullHandle), err
	}
	return pool, nil
}

func (c *Context) AllocateCommandBuffers(pool vulkan.CommandPool, n int) ([]vulkan.CommandBuffer, error) {
	info := vulkan.CommandBufferAllocateInfo{
		SType:              vulkan.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vulkan.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(n),
	}
	bufs := make([]vulkan.CommandBuffer, n)
	if err := Check("allocate command buffers", vulkan.AllocateCommandBuffers(c.Device, &info, bufs)); err != nil {
		return nil, err
	}
	return bufs, nil
}

// OneTime records a single-use command buffer, submits it to the graphics
// queue and waits for the queue to go idle. The buffer is freed on every
// path.
func (c *Context) OneTime(pool vulkan.CommandPool, record func(cmd vulkan.CommandBuffer)) error {
	bufs, err := c.AllocateCommandBuffers(pool, 1)
	if err != nil {
		return err
	}
	defer vulkan.FreeCommandBuffers(c.Device, pool, 1, bufs)
	cmd := bufs[0]

	begin := vulkan.CommandBufferBeginInfo{
		SType: vulkan.StructureTypeCommandBufferBeginInfo,
		Flags: vulkan.CommandBufferUsageFlags(vulkan.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := Check("begin one-time commands", vulkan.BeginCommandBuffer(cmd, &begin)); err != nil {
		return err
	}
	record(cmd)
	if err := Check("end one-time commands", vulkan.EndCommandBuffer(cmd)); err != nil {
		return err
	}

	submit := vulkan.SubmitInfo{
		SType:              vulkan.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    bufs,
	}
	if err := Check("submit one-time commands", vulkan.QueueSubmit(c.GraphicsQueue, 1, []vulkan.SubmitInfo{submit}, vulkan.Fence(vulkan.NullHandle))); err != nil {
		return err
	}
	return Check("wait graphics queue", vulkan.QueueWaitIdle(c.GraphicsQueue))
}
