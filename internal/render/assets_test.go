package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otter/internal/resources"
)

func assetRenderer(t *testing.T) *Renderer {
	t.Helper()
	r := testRenderer(t, fakeSurface{width: 640, height: 480})
	r.meshes = resources.NewMeshCache()
	r.textures = resources.NewTextureCache()
	return r
}

func TestDecodeAssetsFallback(t *testing.T) {
	dir := t.TempDir()
	badPPM := filepath.Join(dir, "bad.ppm")
	require.NoError(t, os.WriteFile(badPPM, []byte("P6 4294967297 4294967295 255\n"), 0o644))

	r := assetRenderer(t)
	mesh, tex := r.decodeAssets(filepath.Join(dir, "missing.obj"), badPPM)
	assert.Equal(t, resources.CubeMesh(), mesh)
	assert.Equal(t, resources.CheckerTexture(checkerSize, checkerCells), tex)

	mesh, tex = r.decodeAssets("", "")
	assert.Equal(t, resources.CubeMesh(), mesh)
	assert.Equal(t, resources.CheckerTexture(checkerSize, checkerCells), tex)
}

func TestDecodeAssetsPanickingLoader(t *testing.T) {
	r := assetRenderer(t)
	r.meshes = resources.NewCache(func(string) (*resources.Mesh, error) { panic("corrupt") })

	mesh, _ := r.decodeAssets("teapot.obj", "")
	assert.Equal(t, resources.CubeMesh(), mesh)
}

func TestDecodeAssetsLoadsFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tri.obj")
	require.NoError(t, os.WriteFile(path, []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"), 0o644))

	r := assetRenderer(t)
	mesh, _ := r.decodeAssets(path, "")
	require.True(t, mesh.Valid())
	assert.Len(t, mesh.Indices, 3)
	assert.Equal(t, 1, r.meshes.Len())
}

func TestLoadAssetFailureKeepsCurrent(t *testing.T) {
	r := assetRenderer(t)
	current := &meshBuffers{count: 36}
	r.mesh = current

	err := r.LoadMesh(filepath.Join(t.TempDir(), "missing.obj"))
	assert.ErrorContains(t, err, "load mesh")
	assert.Same(t, current, r.mesh)

	err = r.LoadTexture(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorContains(t, err, "load texture")
	assert.Nil(t, r.texture)

	r.closed = true
	assert.ErrorIs(t, r.LoadMesh("any.obj"), ErrClosed)
	assert.ErrorIs(t, r.LoadTexture("any.png"), ErrClosed)
}
