package gpu

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/vulkan-go/vulkan"

	"otter/internal/logx"
)

var (
	validationLayers = []string{"VK_LAYER_KHRONOS_validation\x00"}
	deviceExtensions = []string{"VK_KHR_swapchain\x00"}
)

// Options configures device bootstrap. The window system supplies the
// loader entry point, the instance extensions it needs and a way to create
// the presentation surface.
type Options struct {
	AppName       string
	Validation    bool
	ProcAddr      unsafe.Pointer
	Extensions    []string
	CreateSurface func(vulkan.Instance) (vulkan.Surface, error)
}

// Context owns the instance, surface and logical device.
type Context struct {
	Instance       vulkan.Instance
	Surface        vulkan.Surface
	PhysicalDevice vulkan.PhysicalDevice
	Device         vulkan.Device
	GraphicsQueue  vulkan.Queue
	PresentQueue   vulkan.Queue
	GraphicsFamily uint32
	PresentFamily  uint32
	MemoryTypes    []vulkan.MemoryType
	DeviceName     string

	// MinUniformAlignment is minUniformBufferOffsetAlignment.
	MinUniformAlignment vulkan.DeviceSize

	validation bool
	debug      vulkan.DebugReportCallback
	closed     bool
}

// NewContext brings up Vulkan through to a logical device with graphics
// and present queues. On failure everything created so far is released.
func NewContext(opts Options) (ctx *Context, err error) {
	if opts.CreateSurface == nil {
		return nil, errors.New("gpu: no surface factory")
	}
	if opts.ProcAddr != nil {
		vulkan.SetGetInstanceProcAddr(opts.ProcAddr)
	}
	if err := vulkan.Init(); err != nil {
		return nil, fmt.Errorf("vulkan init: %w", err)
	}

	c := &Context{validation: opts.Validation}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if c.validation && !validationLayersSupported() {
		logx.Core().Warn("validation layers requested but not available, continuing without them")
		c.validation = false
	}
	if err := c.createInstance(opts); err != nil {
		return nil, err
	}
	if err := vulkan.InitInstance(c.Instance); err != nil {
		return nil, fmt.Errorf("init instance: %w", err)
	}
	if err := c.setupDebugReport(); err != nil {
		return nil, err
	}
	surface, err := opts.CreateSurface(c.Instance)
	if err != nil {
		return nil, fmt.Errorf("create window surface: %w", err)
	}
	c.Surface = surface
	if err := c.pickPhysicalDevice(); err != nil {
		return nil, err
	}
	if err := c.createLogicalDevice(); err != nil {
		return nil, err
	}
	c.loadMemoryTypes()
	return c, nil
}

func (c *Context) createInstance(opts Options) error {
	name := opts.AppName
	if name == "" {
		name = "Otter"
	}
	appInfo := vulkan.ApplicationInfo{
		SType:              vulkan.StructureTypeApplicationInfo,
		PApplicationName:   name + "\x00",
		ApplicationVersion: vulkan.MakeVersion(0, 1, 0),
		PEngineName:        "Otter Engine\x00",
		EngineVersion:      vulkan.MakeVersion(0, 1, 0),
		ApiVersion:         vulkan.MakeVersion(1, 1, 0),
	}

	extensions := make([]string, 0, len(opts.Extensions)+1)
	for _, e := range opts.Extensions {
		extensions = append(extensions, withNul(e))
	}
	if c.validation {
		extensions = append(extensions, "VK_EXT_debug_report\x00")
	}
	info := vulkan.InstanceCreateInfo{
		SType:                   vulkan.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}
	if c.validation {
		info.EnabledLayerCount = uint32(len(validationLayers))
		info.PpEnabledLayerNames = validationLayers
	}
	return Check("create instance", vulkan.CreateInstance(&info, nil, &c.Instance))
}

func validationLayersSupported() bool {
	var count uint32
	if vulkan.EnumerateInstanceLayerProperties(&count, nil) != vulkan.Success {
		return false
	}
	props := make([]vulkan.LayerProperties, count)
	if vulkan.EnumerateInstanceLayerProperties(&count, props) != vulkan.Success {
		return false
	}
	supported := make(map[string]bool, len(props))
	for i := range props {
		props[i].Deref()
		supported[vulkan.ToString(props[i].LayerName[:])] = true
	}
	for _, l := range validationLayers {
		if !supported[trimNul(l)] {
			return false
		}
	}
	return true
}

// setupDebugReport routes validation output into the core logger.
func (c *Context) setupDebugReport() error {
	if !c.validation {
		return nil
	}
	info := vulkan.DebugReportCallbackCreateInfo{
		SType: vulkan.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vulkan.DebugReportFlags(
			vulkan.DebugReportErrorBit |
				vulkan.DebugReportWarningBit |
				vulkan.DebugReportPerformanceWarningBit),
		PfnCallback: func(flags vulkan.DebugReportFlags, objectType vulkan.DebugReportObjectType, object uint64, location uint, messageCode int32, layerPrefix string, message string, userData unsafe.Pointer) vulkan.Bool32 {
			log := logx.Core().With("layer", layerPrefix, "code", messageCode)
			if flags&vulkan.DebugReportFlags(vulkan.DebugReportErrorBit) != 0 {
				log.Error(message)
			} else {
				log.Warn(message)
			}
			return vulkan.False
		},
	}
	return Check("create debug report callback", vulkan.CreateDebugReportCallback(c.Instance, &info, nil, &c.debug))
}

type queueFamilies struct {
	graphics, present       uint32
	hasGraphics, hasPresent bool
}

func (c *Context) findQueueFamilies(dev vulkan.PhysicalDevice) queueFamilies {
	var count uint32
	vulkan.GetPhysicalDeviceQueueFamilyProperties(dev, &count, nil)
	props := make([]vulkan.QueueFamilyProperties, count)
	vulkan.GetPhysicalDeviceQueueFamilyProperties(dev, &count, props)

	var q queueFamilies
	for i := range props {
		props[i].Deref()
		if props[i].QueueFlags&vulkan.QueueFlags(vulkan.QueueGraphicsBit) != 0 && !q.hasGraphics {
			q.graphics, q.hasGraphics = uint32(i), true
		}
		var present vulkan.Bool32
		vulkan.GetPhysicalDeviceSurfaceSupport(dev, uint32(i), c.Surface, &present)
		if present == vulkan.True && !q.hasPresent {
			q.present, q.hasPresent = uint32(i), true
		}
		if q.hasGraphics && q.hasPresent {
			break
		}
	}
	return q
}

func deviceExtensionsSupported(dev vulkan.PhysicalDevice) bool {
	var count uint32
	if vulkan.EnumerateDeviceExtensionProperties(dev, "", &count, nil) != vulkan.Success {
		return false
	}
	props := make([]vulkan.ExtensionProperties, count)
	if vulkan.EnumerateDeviceExtensionProperties(dev, "", &count, props) != vulkan.Success {
		return false
	}
	supported := make(map[string]bool, len(props))
	for i := range props {
		props[i].Deref()
		supported[vulkan.ToString(props[i].ExtensionName[:])] = true
	}
	for _, ext := range deviceExtensions {
		if !supported[trimNul(ext)] {
			return false
		}
	}
	return true
}

// DeviceScore ranks device types: discrete over integrated over the rest.
func DeviceScore(t vulkan.PhysicalDeviceType) int {
	switch t {
	case vulkan.PhysicalDeviceTypeDiscreteGpu:
		return 1000
	case vulkan.PhysicalDeviceTypeIntegratedGpu:
		return 500
	default:
		return 100
	}
}

func DeviceTypeName(t vulkan.PhysicalDeviceType) string {
	switch t {
	case vulkan.PhysicalDeviceTypeDiscreteGpu:
		return "discrete"
	case vulkan.PhysicalDeviceTypeIntegratedGpu:
		return "integrated"
	case vulkan.PhysicalDeviceTypeVirtualGpu:
		return "virtual"
	case vulkan.PhysicalDeviceTypeCpu:
		return "cpu"
	default:
		return "other"
	}
}

// DecodeVersion splits a packed Vulkan version.
func DecodeVersion(v uint32) (major, minor, patch uint32) {
	return v >> 22, (v >> 12) & 0x3ff, v & 0xfff
}

func versionString(v uint32) string {
	major, minor, patch := DecodeVersion(v)
	return fmt.Sprintf("%d.%d.%d", major, minor, patch)
}

func (c *Context) pickPhysicalDevice() error {
	var count uint32
	if err := Check("enumerate physical devices", vulkan.EnumeratePhysicalDevices(c.Instance, &count, nil)); err != nil {
		return err
	}
	if count == 0 {
		return ErrNoDevice
	}
	devices := make([]vulkan.PhysicalDevice, count)
	if err := Check("enumerate physical devices", vulkan.EnumeratePhysicalDevices(c.Instance, &count, devices)); err != nil {
		return err
	}

	best := -1
	var bestProps vulkan.PhysicalDeviceProperties
	for _, dev := range devices {
		q := c.findQueueFamilies(dev)
		if !q.hasGraphics || !q.hasPresent || !deviceExtensionsSupported(dev) {
			continue
		}
		support := querySurfaceSupport(dev, c.Surface)
		if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
			continue
		}
		var props vulkan.PhysicalDeviceProperties
		vulkan.GetPhysicalDeviceProperties(dev, &props)
		props.Deref()
		if score := DeviceScore(props.DeviceType); score > best {
			best = score
			bestProps = props
			c.PhysicalDevice = dev
			c.GraphicsFamily, c.PresentFamily = q.graphics, q.present
		}
	}
	if best < 0 {
		return ErrNoDevice
	}

	bestProps.Limits.Deref()
	c.MinUniformAlignment = bestProps.Limits.MinUniformBufferOffsetAlignment
	c.DeviceName = vulkan.ToString(bestProps.DeviceName[:])
	logx.Core().Info("selected GPU",
		"name", c.DeviceName,
		"type", DeviceTypeName(bestProps.DeviceType),
		"api", versionString(bestProps.ApiVersion),
		"driver", versionString(bestProps.DriverVersion))
	return nil
}

func (c *Context) createLogicalDevice() error {
	families := []uint32{c.GraphicsFamily}
	if c.PresentFamily != c.GraphicsFamily {
		families = append(families, c.PresentFamily)
	}
	queueInfos := make([]vulkan.DeviceQueueCreateInfo, 0, len(families))
	for _, f := range families {
		queueInfos = append(queueInfos, vulkan.DeviceQueueCreateInfo{
			SType:            vulkan.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: f,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	info := vulkan.DeviceCreateInfo{
		SType:                   vulkan.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		PEnabledFeatures:        []vulkan.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: deviceExtensions,
	}
	if c.validation {
		info.EnabledLayerCount = uint32(len(validationLayers))
		info.PpEnabledLayerNames = validationLayers
	}
	var dev vulkan.Device
	if err := Check("create logical device", vulkan.CreateDevice(c.PhysicalDevice, &info, nil, &dev)); err != nil {
		return err
	}
	c.Device = dev
	vulkan.GetDeviceQueue(c.Device, c.GraphicsFamily, 0, &c.GraphicsQueue)
	vulkan.GetDeviceQueue(c.Device, c.PresentFamily, 0, &c.PresentQueue)
	return nil
}

// WaitIdle blocks until the device has finished all submitted work.
func (c *Context) WaitIdle() error {
	if c.Device == nil {
		return nil
	}
	return Check("device wait idle", vulkan.DeviceWaitIdle(c.Device))
}

// Close destroys the device, debug callback, surface and instance in that
// order. It is safe to call more than once.
func (c *Context) Close() {
	if c == nil || c.closed {
		return
	}
	c.closed = true
	if c.Device != nil {
		vulkan.DestroyDevice(c.Device, nil)
		c.Device = nil
	}
	if c.debug != vulkan.DebugReportCallback(vulkan.NullHandle) {
		vulkan.DestroyDebugReportCallback(c.Instance, c.debug, nil)
		c.debug = vulkan.DebugReportCallback(vulkan.NullHandle)
	}
	if c.Surface != vulkan.Surface(vulkan.NullHandle) {
		vulkan.DestroySurface(c.Instance, c.Surface, nil)
		c.Surface = vulkan.Surface(vulkan.NullHandle)
	}
	if c.Instance != nil {
		vulkan.DestroyInstance(c.Instance, nil)
		c.Instance = nil
	}
}

// withNul terminates s for the C side of the bindings.
func withNul(s string) string {
	if n := len(s); n > 0 && s[n-1] == 0 {
		return s
	}
	return s + "\x00"
}

func trimNul(s string) string {
	if n := len(s); n > 0 && s[n-1] == 0 {
		return s[:n-1]
	}
	return s
}
