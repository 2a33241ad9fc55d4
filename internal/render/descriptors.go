package render

import (
	"github.com/vulkan-go/vulkan"

	"otter/internal/gpu"
)

const (
	uniformBinding = 0
	textureBinding = 1
)

func createSetLayout(device vulkan.Device) (vulkan.DescriptorSetLayout, error) {
	bindings := []vulkan.DescriptorSetLayoutBinding{
		{
			Binding:         uniformBinding,
			DescriptorType:  vulkan.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vulkan.ShaderStageFlags(vulkan.ShaderStageVertexBit),
		},
		{
			Binding:         textureBinding,
			DescriptorType:  vulkan.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			StageFlags:      vulkan.ShaderStageFlags(vulkan.ShaderStageFragmentBit),
		},
	}
	info := vulkan.DescriptorSetLayoutCreateInfo{
		SType:        vulkan.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vulkan.DescriptorSetLayout
	if err := gpu.Check("create descriptor set layout", vulkan.CreateDescriptorSetLayout(device, &info, nil, &layout)); err != nil {
		return vulkan.DescriptorSetLayout(vulkan.NullHandle), err
	}
	return layout, nil
}

// createDescriptorPool sizes the pool for one set per frame slot.
func createDescriptorPool(device vulkan.Device, slots int) (vulkan.DescriptorPool, error) {
	n := uint32(slots)
	info := vulkan.DescriptorPoolCreateInfo{
		SType:         vulkan.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       n,
		PoolSizeCount: 2,
		PPoolSizes: []vulkan.DescriptorPoolSize{
			{Type: vulkan.DescriptorTypeUniformBuffer, DescriptorCount: n},
			{Type: vulkan.DescriptorTypeCombinedImageSampler, DescriptorCount: n},
		},
	}
	var pool vulkan.DescriptorPool
	if err := gpu.Check("create descriptor pool", vulkan.CreateDescriptorPool(device, &info, nil, &pool)); err != nil {
		return vulkan.DescriptorPool(vulkan.NullHandle), err
	}
	return pool, nil
}

func allocateSets(device vulkan.Device, pool vulkan.DescriptorPool, layout vulkan.DescriptorSetLayout, n int) ([]vulkan.DescriptorSet, error) {
	layouts := make([]vulkan.DescriptorSetLayout, n)
	for i := range layouts {
		layouts[i] = layout
	}
	info := vulkan.DescriptorSetAllocateInfo{
		SType:              vulkan.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: uint32(n),
		PSetLayouts:        layouts,
	}
	sets := make([]vulkan.DescriptorSet, n)
	if err := gpu.Check("allocate descriptor sets", vulkan.AllocateDescriptorSets(device, &info, &sets[0])); err != nil {
		return nil, err
	}
	return sets, nil
}

// writeSets points every slot's set at its own uniform ring region and at
// the shared texture. The device must be idle or the sets unused.
func writeSets(device vulkan.Device, sets []vulkan.DescriptorSet, ring *uniformRing, view vulkan.ImageView, sampler vulkan.Sampler) {
	writes := make([]vulkan.WriteDescriptorSet, 0, 2*len(sets))
	for slot, set := range sets {
		writes = append(writes,
			vulkan.WriteDescriptorSet{
				SType:           vulkan.StructureTypeWriteDescriptorSet,
				DstSet:          set,
				DstBinding:      uniformBinding,
				DescriptorType:  vulkan.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,
				PBufferInfo: []vulkan.DescriptorBufferInfo{{
					Buffer: ring.buf.Buffer,
					Offset: ring.Offset(slot),
					Range:  uniformSize,
				}},
			},
			vulkan.WriteDescriptorSet{
				SType:           vulkan.StructureTypeWriteDescriptorSet,
				DstSet:          set,
				DstBinding:      textureBinding,
				DescriptorType:  vulkan.DescriptorTypeCombinedImageSampler,
				DescriptorCount: 1,
				PImageInfo: []vulkan.DescriptorImageInfo{{
					Sampler:     sampler,
					ImageView:   view,
					ImageLayout: vulkan.ImageLayoutShaderReadOnlyOptimal,
				}},
			},
		)
	}
	vulkan.UpdateDescriptorSets(device, uint32(len(writes)), writes, 0, nil)
}
