package gpu

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/vulkan-go/vulkan"
)

const spirvMagic = 0x07230203

// ParseSPIRV validates a SPIR-V blob and returns it as words.
func ParseSPIRV(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("spir-v size %d is not a positive multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("bad spir-v magic %#08x", words[0])
	}
	return words, nil
}

// LoadShader reads and validates a compiled shader.
func LoadShader(path string) ([]uint32, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shader: %w", err)
	}
	words, err := ParseSPIRV(code)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", path, err)
	}
	return words, nil
}

func (c *Context) CreateShaderModule(words []uint32) (vulkan.ShaderModule, error) {
	info := vulkan.ShaderModuleCreateInfo{
		SType:    vulkan.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(words) * 4),
		PCode:    words,
	}
	var module vulkan.ShaderModule
	if err := Check("create shader module", vulkan.CreateShaderModule(c.Device, &info, nil, &module)); err != nil {
		return vulkan.ShaderModule(vulkan.NullHandle), err
	}
	return module, nil
}
