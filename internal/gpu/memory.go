package gpu

import (
	"fmt"

	"github.com/vulkan-go/vulkan"
)

// FindMemoryType returns the first memory type allowed by typeBits whose
// properties include all of want.
func FindMemoryType(typeBits uint32, types []vulkan.MemoryType, want vulkan.MemoryPropertyFlags) (uint32, error) {
	for i, t := range types {
		if i >= 32 {
			break
		}
		if typeBits&(1<<uint(i)) != 0 && t.PropertyFlags&want == want {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("%w: bits=%#x props=%#x", ErrNoMemoryType, typeBits, uint32(want))
}

// AlignUp rounds n up to a multiple of align. Vulkan alignments are powers
// of two but this does not rely on it.
func AlignUp(n, align vulkan.DeviceSize) vulkan.DeviceSize {
	if align == 0 {
		return n
	}
	return (n + align - 1) / align * align
}

func (c *Context) findMemoryType(typeBits uint32, props vulkan.MemoryPropertyFlagBits) (uint32, error) {
	return FindMemoryType(typeBits, c.MemoryTypes, vulkan.MemoryPropertyFlags(props))
}

func (c *Context) loadMemoryTypes() {
	var mp vulkan.PhysicalDeviceMemoryProperties
	vulkan.GetPhysicalDeviceMemoryProperties(c.PhysicalDevice, &mp)
	mp.Deref()
	c.MemoryTypes = make([]vulkan.MemoryType, mp.MemoryTypeCount)
	for i := range c.MemoryTypes {
		t := mp.MemoryTypes[i]
		t.Deref()
		c.MemoryTypes[i] = t
	}
}
