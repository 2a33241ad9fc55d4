package render

import (
	"errors"
	"fmt"

	"github.com/vulkan-go/vulkan"
	"golang.org/x/sync/errgroup"

	"otter/internal/gpu"
	"otter/internal/resources"
)

const (
	checkerSize  = 256
	checkerCells = 8
)

// meshBuffers is a mesh resident in device-local memory.
type meshBuffers struct {
	vertices *gpu.Buffer
	indices  *gpu.Buffer
	count    uint32
}

func (m *meshBuffers) Destroy() {
	if m == nil {
		return
	}
	m.vertices.Destroy()
	m.indices.Destroy()
}

func (r *Renderer) uploadMesh(m *resources.Mesh) (*meshBuffers, error) {
	if !m.Valid() {
		return nil, errors.New("upload mesh: mesh is empty")
	}
	vb, err := r.ctx.UploadBuffer(r.pool, m.VertexBytes(), vulkan.BufferUsageVertexBufferBit)
	if err != nil {
		return nil, fmt.Errorf("upload vertices: %w", err)
	}
	ib, err := r.ctx.UploadBuffer(r.pool, m.IndexBytes(), vulkan.BufferUsageIndexBufferBit)
	if err != nil {
		vb.Destroy()
		return nil, fmt.Errorf("upload indices: %w", err)
	}
	return &meshBuffers{vertices: vb, indices: ib, count: uint32(len(m.Indices))}, nil
}

func (r *Renderer) uploadTexture(t *resources.Texture) (*gpu.Image, error) {
	if !t.Valid() {
		return nil, errors.New("upload texture: texture is empty")
	}
	return r.ctx.UploadImage(r.pool, uint32(t.Width), uint32(t.Height), vulkan.FormatR8g8b8a8Srgb, t.Pixels)
}

// decodeAssets reads the configured mesh and texture concurrently. An
// empty path selects the built-in cube or checkerboard, and so does a
// failed decode once it has been logged.
func (r *Renderer) decodeAssets(meshPath, texturePath string) (*resources.Mesh, *resources.Texture) {
	var (
		mesh *resources.Mesh
		tex  *resources.Texture
		g    errgroup.Group
	)
	g.Go(recovered("mesh", func() (err error) {
		mesh, err = r.decodeMesh(meshPath)
		return err
	}))
	g.Go(recovered("texture", func() (err error) {
		tex, err = r.decodeTexture(texturePath)
		return err
	}))
	if err := g.Wait(); err != nil {
		r.log.Warn("asset unavailable", "error", err)
	}
	if mesh == nil {
		if meshPath != "" {
			r.log.Warn("using built-in cube", "path", meshPath)
		}
		mesh = resources.CubeMesh()
	}
	if tex == nil {
		if texturePath != "" {
			r.log.Warn("using checkerboard texture", "path", texturePath)
		}
		tex = resources.CheckerTexture(checkerSize, checkerCells)
	}
	return mesh, tex
}

// recovered turns a panic in a decoder into an error so a hostile file
// falls back like any other bad one.
func recovered(what string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if v := recover(); v != nil {
				err = fmt.Errorf("decode %s: panic: %v", what, v)
			}
		}()
		return fn()
	}
}

func (r *Renderer) decodeMesh(path string) (*resources.Mesh, error) {
	if path == "" {
		return nil, nil
	}
	h, err := r.meshes.Get(path)
	if err != nil {
		return nil, err
	}
	r.log.Info("mesh loaded", "path", h.Path, "vertices", len(h.Value.Vertices), "indices", len(h.Value.Indices))
	return h.Value, nil
}

func (r *Renderer) decodeTexture(path string) (*resources.Texture, error) {
	if path == "" {
		return nil, nil
	}
	h, err := r.textures.Get(path)
	if err != nil {
		return nil, err
	}
	r.log.Info("texture loaded", "path", h.Path, "width", h.Value.Width, "height", h.Value.Height)
	return h.Value, nil
}

// LoadMesh replaces the drawn mesh. The file is read again even if it was
// loaded before, and the previous mesh stays in place if the new one
// cannot be decoded or uploaded.
func (r *Renderer) LoadMesh(path string) error {
	if r.closed {
		return ErrClosed
	}
	r.meshes.Evict(path)
	h, err := r.meshes.Get(path)
	if err != nil {
		return fmt.Errorf("load mesh: %w", err)
	}
	if err := r.ctx.WaitIdle(); err != nil {
		return fmt.Errorf("load mesh: %w", err)
	}
	next, err := r.uploadMesh(h.Value)
	if err != nil {
		return fmt.Errorf("load mesh %s: %w", h.Path, err)
	}
	r.mesh.Destroy()
	r.mesh = next
	r.log.Info("mesh swapped", "path", h.Path, "indices", next.count)
	return nil
}

// LoadTexture replaces the sampled texture and rewrites every slot's
// descriptor set to point at it. Like LoadMesh it always rereads the file.
func (r *Renderer) LoadTexture(path string) error {
	if r.closed {
		return ErrClosed
	}
	r.textures.Evict(path)
	h, err := r.textures.Get(path)
	if err != nil {
		return fmt.Errorf("load texture: %w", err)
	}
	if err := r.ctx.WaitIdle(); err != nil {
		return fmt.Errorf("load texture: %w", err)
	}
	next, err := r.uploadTexture(h.Value)
	if err != nil {
		return fmt.Errorf("load texture %s: %w", h.Path, err)
	}
	writeSets(r.ctx.Device, r.sets, r.uniforms, next.View, r.sampler)
	r.texture.Destroy()
	r.texture = next
	r.log.Info("texture swapped", "path", h.Path, "width", next.Width, "height", next.Height)
	return nil
}
