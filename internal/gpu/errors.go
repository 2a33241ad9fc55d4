// Package gpu wraps the Vulkan device: bootstrap, memory and buffer
// allocation, staged uploads, image layout transitions, swapchain creation
// and shader loading.
package gpu

import (
	"errors"
	"fmt"

	"github.com/vulkan-go/vulkan"
)

// ResultError is a failed Vulkan call.
type ResultError struct {
	Op     string
	Result vulkan.Result
}

func (e *ResultError) Error() string {
	if e.Op == "" {
		return ResultString(e.Result)
	}
	return fmt.Sprintf("%s: %s", e.Op, ResultString(e.Result))
}

// Is matches any ResultError carrying the same result code, so callers
// can test errors.Is(err, gpu.ErrOutOfDate) regardless of the operation.
func (e *ResultError) Is(target error) bool {
	var t *ResultError
	if !errors.As(target, &t) {
		return false
	}
	return t.Result == e.Result
}

var (
	ErrOutOfDate   = &ResultError{Result: vulkan.ErrorOutOfDate}
	ErrSuboptimal  = &ResultError{Result: vulkan.Suboptimal}
	ErrDeviceLost  = &ResultError{Result: vulkan.ErrorDeviceLost}
	ErrSurfaceLost = &ResultError{Result: vulkan.ErrorSurfaceLost}

	ErrUnsupportedTransition = errors.New("gpu: unsupported image layout transition")
	ErrNoMemoryType          = errors.New("gpu: no suitable memory type")
	ErrNoDevice              = errors.New("gpu: no suitable GPU found")
)

// Check returns nil for Success and a *ResultError for anything else.
func Check(op string, res vulkan.Result) error {
	if res == vulkan.Success {
		return nil
	}
	return &ResultError{Op: op, Result: res}
}

var resultNames = map[vulkan.Result]string{
	vulkan.Success:                   "VK_SUCCESS",
	vulkan.NotReady:                  "VK_NOT_READY",
	vulkan.Timeout:                   "VK_TIMEOUT",
	vulkan.EventSet:                  "VK_EVENT_SET",
	vulkan.EventReset:                "VK_EVENT_RESET",
	vulkan.Incomplete:                "VK_INCOMPLETE",
	vulkan.ErrorOutOfHostMemory:      "VK_ERROR_OUT_OF_HOST_MEMORY",
	vulkan.ErrorOutOfDeviceMemory:    "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	vulkan.ErrorInitializationFailed: "VK_ERROR_INITIALIZATION_FAILED",
	vulkan.ErrorDeviceLost:           "VK_ERROR_DEVICE_LOST",
	vulkan.ErrorMemoryMapFailed:      "VK_ERROR_MEMORY_MAP_FAILED",
	vulkan.ErrorLayerNotPresent:      "VK_ERROR_LAYER_NOT_PRESENT",
	vulkan.ErrorExtensionNotPresent:  "VK_ERROR_EXTENSION_NOT_PRESENT",
	vulkan.ErrorFeatureNotPresent:    "VK_ERROR_FEATURE_NOT_PRESENT",
	vulkan.ErrorIncompatibleDriver:   "VK_ERROR_INCOMPATIBLE_DRIVER",
	vulkan.ErrorTooManyObjects:       "VK_ERROR_TOO_MANY_OBJECTS",
	vulkan.ErrorFormatNotSupported:   "VK_ERROR_FORMAT_NOT_SUPPORTED",
	vulkan.ErrorFragmentedPool:       "VK_ERROR_FRAGMENTED_POOL",
	vulkan.ErrorSurfaceLost:          "VK_ERROR_SURFACE_LOST_KHR",
	vulkan.ErrorNativeWindowInUse:    "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR",
	vulkan.Suboptimal:                "VK_SUBOPTIMAL_KHR",
	vulkan.ErrorOutOfDate:            "VK_ERROR_OUT_OF_DATE_KHR",
	vulkan.ErrorIncompatibleDisplay:  "VK_ERROR_INCOMPATIBLE_DISPLAY_KHR",
	vulkan.ErrorValidationFailed:     "VK_ERROR_VALIDATION_FAILED_EXT",
}

// ResultString returns the symbolic name of res.
func ResultString(res vulkan.Result) string {
	if s, ok := resultNames[res]; ok {
		return s
	}
	return "Unknown VkResult"
}
