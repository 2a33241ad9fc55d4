// Package render drives frames: it owns every GPU object the renderer
// needs, runs the acquire/submit/present protocol and rebuilds the
// swapchain-bound targets when the surface changes.
package render

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vulkan-go/vulkan"

	"otter/internal/config"
	"otter/internal/frame"
	"otter/internal/gpu"
	"otter/internal/logx"
	"otter/internal/resources"
)

var ErrClosed = errors.New("render: renderer is closed")

// Surface is the window the renderer presents to.
type Surface interface {
	FramebufferSize() (width, height int)
	// WaitEvents blocks until the window system has something to report.
	WaitEvents()
	ShouldClose() bool
}

type Renderer struct {
	ctx     *gpu.Context
	surface Surface
	cfg     config.Config
	log     *slog.Logger

	presentMode vulkan.PresentMode
	pool        vulkan.CommandPool
	setLayout   vulkan.DescriptorSetLayout
	descPool    vulkan.DescriptorPool
	sets        []vulkan.DescriptorSet
	cmds        []vulkan.CommandBuffer
	acquired    []vulkan.Semaphore
	pacer       *frame.Pacer[vulkan.Fence]
	uniforms    *uniformRing
	sampler     vulkan.Sampler

	meshes   *resources.Cache[resources.Mesh]
	textures *resources.Cache[resources.Texture]
	mesh     *meshBuffers
	texture  *gpu.Image

	targets *targets
	invalid frame.Invalidation
	stats   *frame.Stats
	sampled bool
	watcher *shaderWatcher

	lifetime frame.Teardown
	start    time.Time
	closed   bool
}

// New takes ownership of ctx and builds everything needed to draw. The
// context is closed with the renderer, including when New fails.
func New(ctx *gpu.Context, surface Surface, cfg config.Config) (r *Renderer, err error) {
	r = &Renderer{
		ctx:      ctx,
		surface:  surface,
		cfg:      cfg,
		log:      logx.Core().With("component", "renderer"),
		meshes:   resources.NewMeshCache(),
		textures: resources.NewTextureCache(),
		stats:    frame.NewStats(),
	}
	r.lifetime.PushFunc("context", ctx.Close)
	defer func() {
		if err != nil {
			if cerr := r.Close(); cerr != nil {
				r.log.Warn("cleanup after failed init", "error", cerr)
			}
			r = nil
		}
	}()

	if r.presentMode, err = gpu.ParsePresentMode(cfg.Renderer.PresentMode); err != nil {
		return r, err
	}
	if err := r.createFrameResources(); err != nil {
		return r, err
	}
	if err := r.loadAssets(); err != nil {
		return r, err
	}

	width, height := surface.FramebufferSize()
	r.targets, err = r.buildTargets(nil, width, height)
	if err != nil {
		return r, fmt.Errorf("build swapchain targets: %w", err)
	}
	fences := make([]vulkan.Fence, cfg.Renderer.FramesInFlight)
	for i := range fences {
		if fences[i], err = ctx.CreateFence(true); err != nil {
			return r, err
		}
		fence := fences[i]
		r.lifetime.PushFunc("in-flight fence", func() { vulkan.DestroyFence(ctx.Device, fence, nil) })
	}
	r.pacer, err = frame.NewPacer(gpu.Fences{Device: ctx.Device}, fences, len(r.targets.swapchain.Images))
	if err != nil {
		return r, err
	}

	if cfg.Assets.WatchShaders {
		if r.watcher, err = watchShaders(cfg.Assets.ShaderDir, &r.invalid, r.log); err != nil {
			r.log.Warn("shader hot reload disabled", "error", err)
			err = nil
		}
	}
	r.start = time.Now()
	r.log.Info("renderer ready",
		"frames_in_flight", r.pacer.SlotCount(),
		"images", r.pacer.ImageCount())
	return r, nil
}

// createFrameResources builds the per-slot objects and everything the
// slots share that does not depend on the swapchain.
func (r *Renderer) createFrameResources() (err error) {
	dev := r.ctx.Device
	slots := r.cfg.Renderer.FramesInFlight

	if r.pool, err = r.ctx.CreateCommandPool(); err != nil {
		return err
	}
	pool := r.pool
	r.lifetime.PushFunc("command pool", func() { vulkan.DestroyCommandPool(dev, pool, nil) })

	if r.setLayout, err = createSetLayout(dev); err != nil {
		return err
	}
	layout := r.setLayout
	r.lifetime.PushFunc("descriptor set layout", func() { vulkan.DestroyDescriptorSetLayout(dev, layout, nil) })

	if r.descPool, err = createDescriptorPool(dev, slots); err != nil {
		return err
	}
	descPool := r.descPool
	r.lifetime.PushFunc("descriptor pool", func() { vulkan.DestroyDescriptorPool(dev, descPool, nil) })

	if r.sets, err = allocateSets(dev, descPool, layout, slots); err != nil {
		return err
	}
	if r.cmds, err = r.ctx.AllocateCommandBuffers(pool, slots); err != nil {
		return err
	}
	for range slots {
		sem, err := r.ctx.CreateSemaphore()
		if err != nil {
			return err
		}
		r.acquired = append(r.acquired, sem)
		r.lifetime.PushFunc("image-available semaphore", func() { vulkan.DestroySemaphore(dev, sem, nil) })
	}

	if r.uniforms, err = newUniformRing(r.ctx, slots); err != nil {
		return err
	}
	r.lifetime.PushFunc("uniform ring", r.uniforms.Destroy)

	if r.sampler, err = r.ctx.CreateSampler(); err != nil {
		return err
	}
	sampler := r.sampler
	r.lifetime.PushFunc("sampler", func() { vulkan.DestroySampler(dev, sampler, nil) })
	return nil
}

// loadAssets decodes the configured assets and uploads them. The release
// closures read the current fields so runtime swaps are covered too.
func (r *Renderer) loadAssets() (err error) {
	mesh, tex := r.decodeAssets(r.cfg.Assets.Mesh, r.cfg.Assets.Texture)
	if r.mesh, err = r.uploadMesh(mesh); err != nil {
		return err
	}
	r.lifetime.PushFunc("mesh", func() { r.mesh.Destroy() })
	if r.texture, err = r.uploadTexture(tex); err != nil {
		return err
	}
	r.lifetime.PushFunc("texture", func() { r.texture.Destroy() })
	writeSets(r.ctx.Device, r.sets, r.uniforms, r.texture.View, r.sampler)
	return nil
}

// RequestRecreate marks the swapchain stale after a resize. The rebuild
// happens at the start of the next frame.
func (r *Renderer) RequestRecreate() {
	r.invalid.Mark(frame.Resized)
}

// DrawFrame renders and presents one frame. A nil error with nothing drawn
// is normal while minimized or right after the swapchain was rebuilt.
// Errors from a lost device match gpu.ErrDeviceLost.
func (r *Renderer) DrawFrame() error {
	if r.closed {
		return ErrClosed
	}
	if w, h := r.surface.FramebufferSize(); w == 0 || h == 0 {
		return nil
	}
	if err := r.pacer.WaitSlot(); err != nil {
		return fmt.Errorf("draw frame: %w", err)
	}
	if reasons := r.invalid.Take(); reasons != 0 {
		return r.recreate(reasons)
	}

	slot := r.pacer.Slot()
	sc := r.targets.swapchain
	var image uint32
	res := vulkan.AcquireNextImage(r.ctx.Device, sc.Handle, vulkan.MaxUint64, r.acquired[slot], vulkan.Fence(vulkan.NullHandle), &image)
	switch res {
	case vulkan.Success:
	case vulkan.Suboptimal:
		r.invalid.Mark(frame.Suboptimal)
	case vulkan.ErrorOutOfDate:
		r.invalid.Mark(frame.OutOfDate)
		return r.recreate(r.invalid.Take())
	default:
		return fmt.Errorf("draw frame: %w", gpu.Check("acquire next image", res))
	}

	if err := r.pacer.Claim(image); err != nil {
		return fmt.Errorf("draw frame: %w", err)
	}
	ubo := ComputeUniforms(time.Since(r.start), sc.Extent.Width, sc.Extent.Height)
	if err := r.uniforms.Write(slot, ubo); err != nil {
		return fmt.Errorf("draw frame: %w", err)
	}

	cmd := r.cmds[slot]
	if err := gpu.Check("reset command buffer", vulkan.ResetCommandBuffer(cmd, 0)); err != nil {
		return fmt.Errorf("draw frame: %w", err)
	}
	if err := r.record(cmd, image, slot); err != nil {
		return fmt.Errorf("draw frame: %w", err)
	}
	fence, err := r.pacer.Arm()
	if err != nil {
		return fmt.Errorf("draw frame: %w", err)
	}

	finished := r.targets.renderFinished[image]
	submit := vulkan.SubmitInfo{
		SType:                vulkan.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vulkan.Semaphore{r.acquired[slot]},
		PWaitDstStageMask:    []vulkan.PipelineStageFlags{vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vulkan.CommandBuffer{cmd},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vulkan.Semaphore{finished},
	}
	if err := gpu.Check("queue submit", vulkan.QueueSubmit(r.ctx.GraphicsQueue, 1, []vulkan.SubmitInfo{submit}, fence)); err != nil {
		return fmt.Errorf("draw frame: %w", err)
	}

	present := vulkan.PresentInfo{
		SType:              vulkan.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vulkan.Semaphore{finished},
		SwapchainCount:     1,
		PSwapchains:        []vulkan.Swapchain{sc.Handle},
		PImageIndices:      []uint32{image},
	}
	res = vulkan.QueuePresent(r.ctx.PresentQueue, &present)
	r.pacer.Advance()
	if r.stats.Tick(time.Now()) {
		r.sampled = true
	}
	switch res {
	case vulkan.Success:
	case vulkan.Suboptimal:
		r.invalid.Mark(frame.Suboptimal)
	case vulkan.ErrorOutOfDate:
		r.invalid.Mark(frame.OutOfDate)
	default:
		return fmt.Errorf("draw frame: %w", gpu.Check("queue present", res))
	}
	if reasons := r.invalid.Take(); reasons != 0 {
		return r.recreate(reasons)
	}
	return nil
}

func (r *Renderer) record(cmd vulkan.CommandBuffer, image uint32, slot int) error {
	begin := vulkan.CommandBufferBeginInfo{SType: vulkan.StructureTypeCommandBufferBeginInfo}
	if err := gpu.Check("begin command buffer", vulkan.BeginCommandBuffer(cmd, &begin)); err != nil {
		return err
	}
	t := r.targets
	cc := r.cfg.Renderer.ClearColor
	clear := []vulkan.ClearValue{
		vulkan.NewClearValue(cc[:]),
		vulkan.NewClearDepthStencil(1.0, 0),
	}
	pass := vulkan.RenderPassBeginInfo{
		SType:           vulkan.StructureTypeRenderPassBeginInfo,
		RenderPass:      t.renderPass,
		Framebuffer:     t.framebuffers[image],
		RenderArea:      vulkan.Rect2D{Extent: t.swapchain.Extent},
		ClearValueCount: uint32(len(clear)),
		PClearValues:    clear,
	}
	vulkan.CmdBeginRenderPass(cmd, &pass, vulkan.SubpassContentsInline)
	vulkan.CmdBindPipeline(cmd, vulkan.PipelineBindPointGraphics, t.pipeline.Pipeline)
	vulkan.CmdBindVertexBuffers(cmd, 0, 1, []vulkan.Buffer{r.mesh.vertices.Buffer}, []vulkan.DeviceSize{0})
	vulkan.CmdBindIndexBuffer(cmd, r.mesh.indices.Buffer, 0, vulkan.IndexTypeUint32)
	vulkan.CmdBindDescriptorSets(cmd, vulkan.PipelineBindPointGraphics, t.pipeline.Layout, 0, 1, []vulkan.DescriptorSet{r.sets[slot]}, 0, nil)
	vulkan.CmdDrawIndexed(cmd, r.mesh.count, 1, 0, 0, 0)
	vulkan.CmdEndRenderPass(cmd)
	return gpu.Check("end command buffer", vulkan.EndCommandBuffer(cmd))
}

// FPS returns the latest frames-per-second sample and whether it was taken
// since the previous call.
func (r *Renderer) FPS() (float64, bool) {
	fresh := r.sampled
	r.sampled = false
	return r.stats.FPS(), fresh
}

// Frames is the number of frames presented so far.
func (r *Renderer) Frames() uint64 {
	return r.stats.Total()
}

// DeviceName is the selected GPU.
func (r *Renderer) DeviceName() string {
	return r.ctx.DeviceName
}

// Close idles the device and releases everything, the context last. It is
// safe to call more than once.
func (r *Renderer) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	var errs []error
	if err := r.watcher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("stop shader watcher: %w", err))
	}
	if err := r.ctx.WaitIdle(); err != nil {
		errs = append(errs, err)
	}
	if err := r.targets.destroy(); err != nil {
		errs = append(errs, err)
	}
	r.targets = nil
	r.log.Debug("releasing renderer", "resources", r.lifetime.Names())
	if err := r.lifetime.Release(); err != nil {
		errs = append(errs, err)
	}
	r.log.Debug("renderer closed", "frames", r.stats.Total())
	return errors.Join(errs...)
}
