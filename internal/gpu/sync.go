package gpu

import (
	"github.com/vulkan-go/vulkan"
)

// Fences waits on and resets device fences. It satisfies the frame
// package's pacing interface.
type Fences struct {
	Device vulkan.Device
}

func (f Fences) Wait(fences ...vulkan.Fence) error {
	if len(fences) == 0 {
		return nil
	}
	return Check("wait for fences", vulkan.WaitForFences(f.Device, uint32(len(fences)), fences, vulkan.True, vulkan.MaxUint64))
}

func (f Fences) Reset(fences ...vulkan.Fence) error {
	if len(fences) == 0 {
		return nil
	}
	return Check("reset fences", vulkan.ResetFences(f.Device, uint32(len(fences)), fences))
}

// CreateFence creates a fence, optionally already signaled.
func (c *Context) CreateFence(signaled bool) (vulkan.Fence, error) {
	info := vulkan.FenceCreateInfo{SType: vulkan.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vulkan.FenceCreateFlags(vulkan.FenceCreateSignaledBit)
	}
	var fence vulkan.Fence
	if err := Check("create fence", vulkan.CreateFence(c.Device, &info, nil, &fence)); err != nil {
		return vulkan.Fence(vulkan.NullHandle), err
	}
	return fence, nil
}

func (c *Context) CreateSemaphore() (vulkan.Semaphore, error) {
	info := vulkan.SemaphoreCreateInfo{SType: vulkan.StructureTypeSemaphoreCreateInfo}
	var sem vulkan.Semaphore
	if err := Check("create semaphore", vulkan.CreateSemaphore(c.Device, &info, nil, &sem)); err != nil {
		return vulkan.Semaphore(vulkan.NullHandle), err
	}
	return sem, nil
}
