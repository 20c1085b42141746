// Package vkdriver implements driver.Device with goki/vulkan.
package vkdriver

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
)

// Window is the surface source the device presents to.
type Window interface {
	InstanceProcAddr() unsafe.Pointer
	RequiredInstanceExtensions() []string
	CreateSurface(instance vk.Instance) (vk.Surface, error)
	FramebufferSize() (width, height uint32)
}

type Config struct {
	AppName string
	// Validation enables the Khronos validation layer and the debug report
	// callback.
	Validation bool
	Window     Window
}

var _ driver.Device = (*Device)(nil)

type physicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
}

type queueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
}

type Device struct {
	name string

	instance       vk.Instance
	debugMessenger vk.DebugReportCallback
	surface        vk.Surface
	window         Window

	physical vk.PhysicalDevice
	logical  vk.Device

	graphicsQueueIndex uint32
	presentQueueIndex  uint32
	graphicsQueue      vk.Queue
	presentQueue       vk.Queue
	queueLock          sync.Mutex

	commandPool vk.CommandPool

	properties   vk.PhysicalDeviceProperties
	features     vk.PhysicalDeviceFeatures
	memory       vk.PhysicalDeviceMemoryProperties
	limits       driver.Limits
	depthFormat  vk.Format

	buffers        *table[*buffer]
	images         *table[*image]
	views          *table[vk.ImageView]
	samplers       *table[vk.Sampler]
	modules        *table[vk.ShaderModule]
	setLayouts     *table[vk.DescriptorSetLayout]
	pipeLayouts    *table[vk.PipelineLayout]
	pools          *table[*descriptorPool]
	sets           *table[vk.DescriptorSet]
	pipelines      *table[vk.Pipeline]
	renderPasses   *table[vk.RenderPass]
	framebuffers   *table[vk.Framebuffer]
	commandBuffers *table[vk.CommandBuffer]
	fences         *table[vk.Fence]
	semaphores     *table[vk.Semaphore]
}

// New creates the instance, the window surface and the logical device.
func New(cfg Config) (*Device, error) {
	if cfg.Window == nil {
		return nil, errors.New("vkdriver: a window is required")
	}
	procAddr := cfg.Window.InstanceProcAddr()
	if procAddr == nil {
		err := errors.New("GetInstanceProcAddress is nil")
		core.LogError("%s", err.Error())
		return nil, err
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, errors.Wrap(err, "failed to initialize vulkan")
	}

	d := &Device{
		window:         cfg.Window,
		buffers:        newTable[*buffer](),
		images:         newTable[*image](),
		views:          newTable[vk.ImageView](),
		samplers:       newTable[vk.Sampler](),
		modules:        newTable[vk.ShaderModule](),
		setLayouts:     newTable[vk.DescriptorSetLayout](),
		pipeLayouts:    newTable[vk.PipelineLayout](),
		pools:          newTable[*descriptorPool](),
		sets:           newTable[vk.DescriptorSet](),
		pipelines:      newTable[vk.Pipeline](),
		renderPasses:   newTable[vk.RenderPass](),
		framebuffers:   newTable[vk.Framebuffer](),
		commandBuffers: newTable[vk.CommandBuffer](),
		fences:         newTable[vk.Fence](),
		semaphores:     newTable[vk.Semaphore](),
	}
	if err := d.createInstance(cfg); err != nil {
		return nil, err
	}
	surface, err := cfg.Window.CreateSurface(d.instance)
	if err != nil {
		core.LogError("Vulkan surface creation failed: %s", err)
		d.destroyInstance()
		return nil, errors.Wrap(err, "failed to create the window surface")
	}
	d.surface = surface
	core.LogDebug("Vulkan surface created.")

	if err := d.selectPhysicalDevice(); err != nil {
		d.destroyInstance()
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		d.destroyInstance()
		return nil, err
	}
	return d, nil
}

func (d *Device) createInstance(cfg Config) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(cfg.AppName),
		PEngineName:        VulkanSafeString("vkbridge"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := append([]string{"VK_KHR_surface"}, cfg.Window.RequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	if cfg.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
	}
	core.LogDebug("Required extensions: %v", extensions)
	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)

	var layers []string
	if cfg.Validation {
		layers = []string{"VK_LAYER_KHRONOS_validation"}
		if err := checkLayers(layers); err != nil {
			return err
		}
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := resultError(vk.CreateInstance(&createInfo, nil, &d.instance), "vkCreateInstance"); err != nil {
		core.LogError("%s", err.Error())
		return err
	}
	if err := vk.InitInstance(d.instance); err != nil {
		core.LogError("%s", err.Error())
		return errors.Wrap(err, "failed to load instance functions")
	}
	core.LogInfo("Vulkan Instance created.")

	if cfg.Validation {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := resultError(vk.CreateDebugReportCallback(d.instance, &debugCreateInfo, nil, &dbg), "vkCreateDebugReportCallback"); err != nil {
			core.LogWarn("debug report callback unavailable: %s", err)
		} else {
			d.debugMessenger = dbg
			core.LogDebug("Vulkan debugger created.")
		}
	}
	return nil
}

func checkLayers(required []string) error {
	var count uint32
	if err := resultError(vk.EnumerateInstanceLayerProperties(&count, nil), "vkEnumerateInstanceLayerProperties"); err != nil {
		return err
	}
	available := make([]vk.LayerProperties, count)
	if err := resultError(vk.EnumerateInstanceLayerProperties(&count, available), "vkEnumerateInstanceLayerProperties"); err != nil {
		return err
	}
	for _, name := range required {
		found := false
		for i := range available {
			available[i].Deref()
			if cString(available[i].LayerName[:]) == name {
				found = true
				break
			}
		}
		if !found {
			err := errors.Newf("required validation layer is missing: %s", name)
			core.LogError("%s", err.Error())
			return err
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

func (d *Device) selectPhysicalDevice() error {
	var count uint32
	if err := resultError(vk.EnumeratePhysicalDevices(d.instance, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}
	if count == 0 {
		err := errors.New("no devices which support Vulkan were found")
		core.LogError("%s", err.Error())
		return err
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := resultError(vk.EnumeratePhysicalDevices(d.instance, &count, devices), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}

	requirements := physicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}
	for _, pd := range devices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &properties)
		properties.Deref()
		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(pd, &features)
		features.Deref()
		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(pd, &memory)
		memory.Deref()

		queues, ok := d.meetsRequirements(pd, &properties, &features, &requirements)
		if !ok {
			continue
		}
		d.name = cString(properties.DeviceName[:])
		core.LogInfo("Selected device: '%s'.", d.name)
		switch properties.DeviceType {
		case vk.PhysicalDeviceTypeIntegratedGpu:
			core.LogInfo("GPU type is Integrated.")
		case vk.PhysicalDeviceTypeDiscreteGpu:
			core.LogInfo("GPU type is Discrete.")
		case vk.PhysicalDeviceTypeVirtualGpu:
			core.LogInfo("GPU type is Virtual.")
		case vk.PhysicalDeviceTypeCpu:
			core.LogInfo("GPU type is CPU.")
		}
		core.LogInfo("Vulkan API version: %d.%d.%d",
			vk.Version(properties.ApiVersion).Major(),
			vk.Version(properties.ApiVersion).Minor(),
			vk.Version(properties.ApiVersion).Patch())

		d.physical = pd
		d.properties = properties
		d.features = features
		d.memory = memory
		d.graphicsQueueIndex = uint32(queues.GraphicsFamilyIndex)
		d.presentQueueIndex = uint32(queues.PresentFamilyIndex)
		d.limits = limitsFrom(&properties, &features)
		if !d.detectDepthFormat() {
			core.LogWarn("no depth format supported, depth attachments are unavailable")
		}
		core.LogInfo("Physical device selected.")
		return nil
	}
	err := errors.New("no physical devices were found which meet the requirements")
	core.LogError("%s", err.Error())
	return err
}

func limitsFrom(properties *vk.PhysicalDeviceProperties, features *vk.PhysicalDeviceFeatures) driver.Limits {
	l := properties.Limits
	l.Deref()
	limits := driver.Limits{
		MaxPushConstantsSize:            l.MaxPushConstantsSize,
		MaxBoundDescriptorSets:          l.MaxBoundDescriptorSets,
		MaxVertexInputAttributes:        l.MaxVertexInputAttributes,
		MaxVertexInputBindings:          l.MaxVertexInputBindings,
		MinUniformBufferOffsetAlignment: uint64(l.MinUniformBufferOffsetAlignment),
		MaxSamplerAnisotropy:            1,
	}
	if features.SamplerAnisotropy == vk.True {
		limits.MaxSamplerAnisotropy = l.MaxSamplerAnisotropy
	}
	return limits
}

func (d *Device) meetsRequirements(pd vk.PhysicalDevice, properties *vk.PhysicalDeviceProperties, features *vk.PhysicalDeviceFeatures, requirements *physicalDeviceRequirements) (queueFamilyInfo, bool) {
	info := queueFamilyInfo{GraphicsFamilyIndex: -1, PresentFamilyIndex: -1}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)

	for i := range families {
		families[i].Deref()
		if info.GraphicsFamilyIndex < 0 && vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueGraphicsBit != 0 {
			info.GraphicsFamilyIndex = int32(i)
		}
		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), d.surface, &supportsPresent); res != vk.Success {
			return info, false
		}
		// Prefer a family that does both.
		if supportsPresent == vk.True && (info.PresentFamilyIndex < 0 || int32(i) == info.GraphicsFamilyIndex) {
			info.PresentFamilyIndex = int32(i)
		}
	}

	name := cString(properties.DeviceName[:])
	if requirements.Graphics && info.GraphicsFamilyIndex < 0 {
		core.LogInfo("Device '%s' has no graphics queue, skipping.", name)
		return info, false
	}
	if requirements.Present && info.PresentFamilyIndex < 0 {
		core.LogInfo("Device '%s' cannot present to the surface, skipping.", name)
		return info, false
	}
	core.LogDebug("Graphics Family Index: %d", info.GraphicsFamilyIndex)
	core.LogDebug("Present Family Index:  %d", info.PresentFamilyIndex)

	support, err := querySwapchainSupport(pd, d.surface)
	if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return info, false
	}
	for _, ext := range requirements.DeviceExtensionNames {
		if !hasDeviceExtension(pd, ext) {
			core.LogInfo("Required extension not found: '%s', skipping device.", ext)
			return info, false
		}
	}
	if requirements.SamplerAnisotropy && features.SamplerAnisotropy == vk.False {
		core.LogInfo("Device does not support samplerAnisotropy, skipping.")
		return info, false
	}
	return info, true
}

func deviceExtensions(pd vk.PhysicalDevice) []string {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil); res != vk.Success || count == 0 {
		return nil
	}
	props := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, props); res != vk.Success {
		return nil
	}
	names := make([]string, 0, count)
	for i := range props {
		props[i].Deref()
		names = append(names, cString(props[i].ExtensionName[:]))
	}
	return names
}

func hasDeviceExtension(pd vk.PhysicalDevice, name string) bool {
	name = cString([]byte(name))
	for _, ext := range deviceExtensions(pd) {
		if ext == name {
			return true
		}
	}
	return false
}

func (d *Device) detectDepthFormat() bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureDepthStencilAttachmentBit
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.physical, candidate, &properties)
		properties.Deref()
		if vk.FormatFeatureFlagBits(properties.OptimalTilingFeatures)&flags == flags {
			d.depthFormat = candidate
			return true
		}
	}
	d.depthFormat = vk.FormatUndefined
	return false
}

func (d *Device) createLogicalDevice() error {
	core.LogInfo("Creating logical device...")

	families := []uint32{d.graphicsQueueIndex}
	if d.presentQueueIndex != d.graphicsQueueIndex {
		families = append(families, d.presentQueueIndex)
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: d.features.SamplerAnisotropy,
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if hasDeviceExtension(d.physical, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}
	extensionNames = VulkanSafeStrings(extensionNames)

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: extensionNames,
	}
	if err := resultError(vk.CreateDevice(d.physical, &deviceCreateInfo, nil, &d.logical), "vkCreateDevice"); err != nil {
		core.LogError("%s", err.Error())
		return err
	}
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(d.logical, d.graphicsQueueIndex, 0, &d.graphicsQueue)
	vk.GetDeviceQueue(d.logical, d.presentQueueIndex, 0, &d.presentQueue)
	core.LogInfo("Queues obtained.")

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.graphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if err := resultError(vk.CreateCommandPool(d.logical, &poolCreateInfo, nil, &d.commandPool), "vkCreateCommandPool"); err != nil {
		core.LogError("%s", err.Error())
		return err
	}
	core.LogInfo("Graphics command pool created.")
	return nil
}

// memoryIndex finds a memory type allowed by typeFilter that has every
// property in propertyFlags.
func (d *Device) memoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, bool) {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		d.memory.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && d.memory.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return i, true
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return 0, false
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) Limits() driver.Limits {
	return d.limits
}

// DepthFormat is the depth attachment format the device supports, or
// FormatUndefined.
func (d *Device) DepthFormat() driver.Format {
	return driver.Format(d.depthFormat)
}

// Destroy releases every object still owned by the device, then the device
// and the instance. The device must be idle.
func (d *Device) Destroy() {
	if d.logical == nil {
		return
	}
	vk.DeviceWaitIdle(d.logical)

	d.framebuffers.each(func(h uint64, _ vk.Framebuffer) { d.DestroyFramebuffer(driver.Framebuffer(h)) })
	d.pipelines.each(func(h uint64, _ vk.Pipeline) { d.DestroyPipeline(driver.Pipeline(h)) })
	d.renderPasses.each(func(h uint64, _ vk.RenderPass) { d.DestroyRenderPass(driver.RenderPass(h)) })
	d.pools.each(func(h uint64, _ *descriptorPool) { d.DestroyDescriptorPool(driver.DescriptorPool(h)) })
	d.pipeLayouts.each(func(h uint64, _ vk.PipelineLayout) { d.DestroyPipelineLayout(driver.PipelineLayout(h)) })
	d.setLayouts.each(func(h uint64, _ vk.DescriptorSetLayout) { d.DestroyDescriptorSetLayout(driver.DescriptorSetLayout(h)) })
	d.modules.each(func(h uint64, _ vk.ShaderModule) { d.DestroyShaderModule(driver.ShaderModule(h)) })
	d.samplers.each(func(h uint64, _ vk.Sampler) { d.DestroySampler(driver.Sampler(h)) })
	d.views.each(func(h uint64, _ vk.ImageView) { d.DestroyImageView(driver.ImageView(h)) })
	d.images.each(func(h uint64, _ *image) { d.DestroyImage(driver.Image(h)) })
	d.buffers.each(func(h uint64, _ *buffer) { d.DestroyBuffer(driver.Buffer(h)) })
	d.commandBuffers.each(func(h uint64, _ vk.CommandBuffer) { d.FreeCommandBuffer(driver.CommandBuffer(h)) })
	d.fences.each(func(h uint64, _ vk.Fence) { d.DestroyFence(driver.Fence(h)) })
	d.semaphores.each(func(h uint64, _ vk.Semaphore) { d.DestroySemaphore(driver.Semaphore(h)) })

	core.LogInfo("Destroying command pools...")
	vk.DestroyCommandPool(d.logical, d.commandPool, nil)

	core.LogInfo("Destroying logical device...")
	vk.DestroyDevice(d.logical, nil)
	d.logical = nil
	d.physical = nil
	d.graphicsQueue = nil
	d.presentQueue = nil

	d.destroyInstance()
}

func (d *Device) destroyInstance() {
	if d.surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(d.instance, d.surface, nil)
		d.surface = vk.NullSurface
	}
	if d.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(d.instance, d.debugMessenger, nil)
		d.debugMessenger = vk.NullDebugReportCallback
	}
	if d.instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
