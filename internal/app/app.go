// Package app is the window shell: it opens a GLFW window, hands it to
// the renderer and runs the event loop until the window closes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/vulkan-go/glfw/v3.3/glfw"
	"github.com/vulkan-go/vulkan"

	"otter/internal/config"
	"otter/internal/gpu"
	"otter/internal/logx"
	"otter/internal/render"
)

func init() {
	// GLFW and the Vulkan surface must stay on the main thread.
	runtime.LockOSThread()
}

// window adapts a GLFW window to render.Surface.
type window struct {
	*glfw.Window
}

func (w window) FramebufferSize() (int, int) { return w.GetFramebufferSize() }

func (w window) WaitEvents() { glfw.WaitEvents() }

// minimizedWait bounds how long the loop sleeps in WaitEventsTimeout
// while the framebuffer is 0x0, so cancellation is still noticed.
const minimizedWait = 0.1

type App struct {
	cfg   config.Config
	log   *slog.Logger
	crash *logx.Reporter

	// drops holds files dropped on the window since the last frame.
	drops []string
}

func New(cfg config.Config) *App {
	return &App{
		cfg:   cfg,
		log:   logx.Client(),
		crash: logx.NewReporter(),
	}
}

// Crashes exposes the reporter so callers can subscribe to crash reports.
func (a *App) Crashes() *logx.Reporter { return a.crash }

// Run opens the window and draws until the window is closed or ctx is
// cancelled. A panic anywhere below is reported and returned as an error.
func (a *App) Run(ctx context.Context) (err error) {
	defer a.crash.Recover(&err)

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("init glfw: %w", err)
	}
	defer glfw.Terminate()
	if !glfw.VulkanSupported() {
		return errors.New("GLFW Vulkan loader not found")
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	win, err := glfw.CreateWindow(a.cfg.Window.Width, a.cfg.Window.Height, a.cfg.Window.Title, nil, nil)
	if err != nil {
		return fmt.Errorf("create window: %w", err)
	}
	defer win.Destroy()

	// The surface needs a non-zero framebuffer before Vulkan comes up.
	for {
		w, h := win.GetFramebufferSize()
		if w > 0 && h > 0 {
			break
		}
		glfw.WaitEventsTimeout(0.01)
	}

	win.SetKeyCallback(func(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
	})

	gctx, err := gpu.NewContext(a.gpuOptions(win))
	if err != nil {
		return fmt.Errorf("init vulkan: %w", err)
	}
	r, err := render.New(gctx, window{win}, a.cfg)
	if err != nil {
		return fmt.Errorf("init renderer: %w", err)
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			a.log.Error("renderer shutdown", "error", cerr)
			err = errors.Join(err, cerr)
		}
	}()

	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		a.log.Debug("framebuffer resized", "width", width, "height", height)
		r.RequestRecreate()
	})
	win.SetDropCallback(func(_ *glfw.Window, names []string) {
		a.drops = append(a.drops, names...)
	})

	a.log.Info("entering main loop", "gpu", r.DeviceName())
	err = a.loop(ctx, win, r)
	a.log.Info("main loop finished", "frames", r.Frames())
	return err
}

func (a *App) loop(ctx context.Context, win *glfw.Window, r *render.Renderer) error {
	for !win.ShouldClose() {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown requested", "cause", context.Cause(ctx))
			return nil
		default:
		}
		if w, h := win.GetFramebufferSize(); w == 0 || h == 0 {
			glfw.WaitEventsTimeout(minimizedWait)
		} else {
			glfw.PollEvents()
		}
		err := a.loadDropped(r)
		if err == nil {
			err = r.DrawFrame()
		}
		if err != nil {
			if errors.Is(err, gpu.ErrDeviceLost) {
				a.crash.Report(logx.CrashInfo{Condition: "device lost", Message: err.Error()})
			}
			return err
		}
		if fps, ok := r.FPS(); ok {
			win.SetTitle(Title(a.cfg.Window.Title, fps))
		}
	}
	return nil
}

type assetKind int

const (
	unknownAsset assetKind = iota
	meshAsset
	textureAsset
)

var assetKinds = map[string]assetKind{
	".obj":  meshAsset,
	".png":  textureAsset,
	".jpg":  textureAsset,
	".jpeg": textureAsset,
	".gif":  textureAsset,
	".bmp":  textureAsset,
	".tif":  textureAsset,
	".tiff": textureAsset,
	".webp": textureAsset,
	".ppm":  textureAsset,
}

func assetKindOf(path string) assetKind {
	return assetKinds[strings.ToLower(filepath.Ext(path))]
}

// assetLoader is the part of the renderer that swaps assets at runtime.
type assetLoader interface {
	LoadMesh(path string) error
	LoadTexture(path string) error
}

// loadDropped hands dropped files to the renderer. A file that does not
// load is logged and skipped; only a lost device stops the loop.
func (a *App) loadDropped(r assetLoader) error {
	drops := a.drops
	a.drops = nil
	for _, path := range drops {
		var err error
		switch assetKindOf(path) {
		case meshAsset:
			err = r.LoadMesh(path)
		case textureAsset:
			err = r.LoadTexture(path)
		default:
			a.log.Warn("ignoring dropped file", "path", path)
			continue
		}
		if errors.Is(err, gpu.ErrDeviceLost) {
			return err
		}
		if err != nil {
			a.log.Warn("dropped asset not loaded", "path", path, "error", err)
			continue
		}
		a.log.Info("dropped asset loaded", "path", path)
	}
	return nil
}

func (a *App) gpuOptions(win *glfw.Window) gpu.Options {
	return gpu.Options{
		AppName:    a.cfg.Window.Title,
		Validation: a.cfg.Renderer.Validation,
		ProcAddr:   glfw.GetVulkanGetInstanceProcAddress(),
		Extensions: win.GetRequiredInstanceExtensions(),
		CreateSurface: func(inst vulkan.Instance) (vulkan.Surface, error) {
			ptr, err := win.CreateWindowSurface(inst, nil)
			if err != nil {
				return vulkan.Surface(vulkan.NullHandle), err
			}
			return vulkan.SurfaceFromPointer(ptr), nil
		},
	}
}

// Title is the window title with the current frame rate appended.
func Title(base string, fps float64) string {
	return fmt.Sprintf("%s | %.0f FPS", base, fps)
}
