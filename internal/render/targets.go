package render

import (
	"fmt"

	"github.com/vulkan-go/vulkan"

	"otter/internal/frame"
	"otter/internal/gpu"
)

// targets is everything whose lifetime is bound to one swapchain. The
// swapchain itself is kept out of release so a rebuild can hand it to the
// driver as the old swapchain.
type targets struct {
	swapchain      *gpu.Swapchain
	views          []vulkan.ImageView
	depth          *gpu.Image
	renderPass     vulkan.RenderPass
	pipeline       *pipeline
	framebuffers   []vulkan.Framebuffer
	renderFinished []vulkan.Semaphore

	release frame.Teardown
}

// releaseDependents destroys everything built on top of the swapchain.
func (t *targets) releaseDependents() error {
	err := t.release.Release()
	t.views = nil
	t.depth = nil
	t.renderPass = vulkan.RenderPass(vulkan.NullHandle)
	t.pipeline = nil
	t.framebuffers = nil
	t.renderFinished = nil
	return err
}

func (t *targets) destroy() error {
	if t == nil {
		return nil
	}
	err := t.releaseDependents()
	t.swapchain.Destroy()
	return err
}

// buildTargets creates a swapchain for a width x height framebuffer and
// everything that renders into it. old, when set, is retired once the new
// swapchain exists. On failure the returned targets still owns whichever
// swapchain is alive so the caller can release it.
func (r *Renderer) buildTargets(old *gpu.Swapchain, width, height int) (*targets, error) {
	oldHandle := vulkan.Swapchain(vulkan.NullHandle)
	if old != nil {
		oldHandle = old.Handle
	}
	sc, err := r.ctx.CreateSwapchain(oldHandle, width, height, gpu.SwapchainOptions{
		PresentMode:    r.presentMode,
		FramesInFlight: r.cfg.Renderer.FramesInFlight,
	})
	if err != nil {
		return &targets{swapchain: old}, err
	}
	old.Destroy()

	t := &targets{swapchain: sc}
	if err := r.buildDependents(t); err != nil {
		return t, err
	}
	r.log.Debug("swapchain targets built",
		"extent", fmt.Sprintf("%dx%d", sc.Extent.Width, sc.Extent.Height),
		"images", len(sc.Images),
		"present_mode", presentModeName(sc.PresentMode))
	return t, nil
}

func (r *Renderer) buildDependents(t *targets) error {
	dev := r.ctx.Device
	sc := t.swapchain

	color := vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit)
	for i, img := range sc.Images {
		view, err := r.ctx.CreateImageView(img, sc.Format, color)
		if err != nil {
			return fmt.Errorf("swapchain view %d: %w", i, err)
		}
		t.views = append(t.views, view)
		t.release.PushFunc("swapchain view", func() { vulkan.DestroyImageView(dev, view, nil) })
	}

	depthFormat, err := r.ctx.FindDepthFormat()
	if err != nil {
		return err
	}
	depth, err := r.ctx.CreateImage(sc.Extent.Width, sc.Extent.Height, depthFormat,
		vulkan.ImageUsageFlags(vulkan.ImageUsageDepthStencilAttachmentBit),
		vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit))
	if err != nil {
		return fmt.Errorf("depth image: %w", err)
	}
	t.depth = depth
	t.release.PushFunc("depth image", depth.Destroy)
	var recErr error
	err = r.ctx.OneTime(r.pool, func(cmd vulkan.CommandBuffer) {
		recErr = gpu.CmdTransition(cmd, depth.Image, gpu.DepthAspect(depthFormat),
			vulkan.ImageLayoutUndefined, vulkan.ImageLayoutDepthStencilAttachmentOptimal)
	})
	if err == nil {
		err = recErr
	}
	if err != nil {
		return fmt.Errorf("depth layout: %w", err)
	}

	if t.renderPass, err = createRenderPass(dev, sc.Format, depthFormat); err != nil {
		return err
	}
	pass := t.renderPass
	t.release.PushFunc("render pass", func() { vulkan.DestroyRenderPass(dev, pass, nil) })

	t.pipeline, err = createPipeline(r.ctx, r.pipelineConfig(t))
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	// reloadPipeline replaces t.pipeline in place
	t.release.PushFunc("pipeline", func() { t.pipeline.Destroy() })

	for i, view := range t.views {
		attachments := []vulkan.ImageView{view, depth.View}
		info := vulkan.FramebufferCreateInfo{
			SType:           vulkan.StructureTypeFramebufferCreateInfo,
			RenderPass:      pass,
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
			Width:           sc.Extent.Width,
			Height:          sc.Extent.Height,
			Layers:          1,
		}
		var fb vulkan.Framebuffer
		if err := gpu.Check("create framebuffer", vulkan.CreateFramebuffer(dev, &info, nil, &fb)); err != nil {
			return fmt.Errorf("framebuffer %d: %w", i, err)
		}
		t.framebuffers = append(t.framebuffers, fb)
		t.release.PushFunc("framebuffer", func() { vulkan.DestroyFramebuffer(dev, fb, nil) })
	}

	for range sc.Images {
		sem, err := r.ctx.CreateSemaphore()
		if err != nil {
			return fmt.Errorf("render-finished semaphore: %w", err)
		}
		t.renderFinished = append(t.renderFinished, sem)
		t.release.PushFunc("render-finished semaphore", func() { vulkan.DestroySemaphore(dev, sem, nil) })
	}
	return nil
}

func (r *Renderer) pipelineConfig(t *targets) pipelineConfig {
	return pipelineConfig{
		ShaderDir:  r.cfg.Assets.ShaderDir,
		SetLayout:  r.setLayout,
		RenderPass: t.renderPass,
		Extent:     t.swapchain.Extent,
	}
}

// recreate rebuilds the targets for the current framebuffer size. It
// returns without rebuilding when the window closes while minimized; the
// reasons stay marked for the next frame in that case, and after a failed
// rebuild too.
func (r *Renderer) recreate(reasons frame.Reason) (err error) {
	width, height := r.surface.FramebufferSize()
	for width == 0 || height == 0 {
		if r.surface.ShouldClose() {
			r.invalid.Mark(reasons)
			return nil
		}
		r.surface.WaitEvents()
		width, height = r.surface.FramebufferSize()
	}
	if reasons == frame.ShadersChanged {
		return r.reloadPipeline()
	}
	defer func() {
		if err != nil {
			r.invalid.Mark(reasons)
		}
	}()
	if err := r.ctx.WaitIdle(); err != nil {
		return fmt.Errorf("recreate swapchain: %w", err)
	}

	old := r.targets
	if err := old.releaseDependents(); err != nil {
		r.log.Warn("releasing swapchain targets", "error", err)
	}
	next, err := r.buildTargets(old.swapchain, width, height)
	r.targets = next
	if err != nil {
		return fmt.Errorf("recreate swapchain: %w", err)
	}
	r.pacer.Rebind(len(next.swapchain.Images))
	r.log.Info("swapchain recreated",
		"reason", reasons.String(),
		"width", next.swapchain.Extent.Width,
		"height", next.swapchain.Extent.Height,
		"images", r.pacer.ImageCount())
	return nil
}

// reloadPipeline builds a pipeline from the shaders on disk and swaps it
// in only once it exists. Shaders that are missing, half written or
// invalid leave the running pipeline in place; the watcher marks again on
// the next write.
func (r *Renderer) reloadPipeline() error {
	t := r.targets
	next, err := createPipeline(r.ctx, r.pipelineConfig(t))
	if err != nil {
		r.log.Warn("shader reload failed, keeping current pipeline", "error", err)
		return nil
	}
	if err := r.ctx.WaitIdle(); err != nil {
		next.Destroy()
		return fmt.Errorf("reload pipeline: %w", err)
	}
	t.pipeline.Destroy()
	t.pipeline = next
	r.log.Info("pipeline reloaded", "shader_dir", r.cfg.Assets.ShaderDir)
	return nil
}

func presentModeName(m vulkan.PresentMode) string {
	switch m {
	case vulkan.PresentModeFifo:
		return "fifo"
	case vulkan.PresentModeMailbox:
		return "mailbox"
	case vulkan.PresentModeImmediate:
		return "immediate"
	case vulkan.PresentModeFifoRelaxed:
		return "fifo-relaxed"
	}
	return fmt.Sprintf("present-mode(%d)", m)
}
