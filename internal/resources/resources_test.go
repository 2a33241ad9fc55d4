package resources

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVertexLayout(t *testing.T) {
	assert.Equal(t, 44, VertexSize)
	offsets := make([]uint32, len(VertexLayout))
	for i, a := range VertexLayout {
		assert.Equal(t, uint32(i), a.Location)
		offsets[i] = a.Offset
	}
	assert.Equal(t, []uint32{0, 12, 24, 32}, offsets)
}

func TestMeshBytes(t *testing.T) {
	m := &Mesh{
		Vertices: []Vertex{{Position: mgl32.Vec3{1, 2, 3}, TexCoord: mgl32.Vec2{0.5, 0.25}}},
		Indices:  []uint32{7, 9},
	}
	vb := m.VertexBytes()
	require.Len(t, vb, VertexSize)
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(vb[off:])) }
	assert.Equal(t, float32(1), f(0))
	assert.Equal(t, float32(3), f(8))
	assert.Equal(t, float32(0.25), f(28))

	ib := m.IndexBytes()
	require.Len(t, ib, 8)
	assert.Equal(t, uint32(9), binary.LittleEndian.Uint32(ib[4:]))

	assert.Nil(t, (&Mesh{}).VertexBytes())
	assert.False(t, (&Mesh{}).Valid())
}

func TestCubeMesh(t *testing.T) {
	m := CubeMesh()
	require.Len(t, m.Vertices, 24)
	require.Len(t, m.Indices, 36)
	for _, v := range m.Vertices {
		for _, c := range v.Position {
			assert.InDelta(t, 0.5, math.Abs(float64(c)), 1e-6)
		}
	}
	for i := 0; i < len(m.Indices); i += 3 {
		a := m.Vertices[m.Indices[i]]
		b := m.Vertices[m.Indices[i+1]]
		c := m.Vertices[m.Indices[i+2]]
		n := b.Position.Sub(a.Position).Cross(c.Position.Sub(a.Position)).Normalize()
		assert.InDelta(t, 1, n.Dot(a.Normal), 1e-5, "triangle %d winds against its normal", i/3)
	}
}

func TestCheckerTexture(t *testing.T) {
	tex := CheckerTexture(4, 2)
	require.True(t, tex.Valid())
	at := func(x, y int) byte { return tex.Pixels[(y*4+x)*4] }
	assert.Equal(t, byte(255), at(0, 0))
	assert.Equal(t, byte(255), at(1, 1))
	assert.Equal(t, byte(50), at(2, 0))
	assert.Equal(t, byte(50), at(0, 3))
	assert.Equal(t, byte(255), at(3, 3))

	assert.True(t, CheckerTexture(0, 0).Valid())
}

func TestCacheLoadsOnce(t *testing.T) {
	var loads atomic.Int32
	c := NewCache(func(path string) (*Mesh, error) {
		loads.Add(1)
		return CubeMesh(), nil
	})

	var wg sync.WaitGroup
	handles := make([]Handle[Mesh], 16)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.Get("models/../models/cube.obj")
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, 1, c.Len())
	for _, h := range handles {
		assert.True(t, h.Valid())
		assert.Equal(t, "models/cube.obj", h.Path)
		assert.Same(t, handles[0].Value, h.Value)
	}

	c.Evict("models/cube.obj")
	assert.Equal(t, 0, c.Len())
	_, err := c.Get("models/cube.obj")
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())
}

func TestCacheDoesNotKeepFailures(t *testing.T) {
	fail := true
	c := NewCache(func(path string) (*Texture, error) {
		if fail {
			return nil, errors.New("disk on fire")
		}
		return CheckerTexture(2, 2), nil
	})

	h, err := c.Get("t.png")
	require.Error(t, err)
	assert.False(t, h.Valid())
	assert.Equal(t, 0, c.Len())

	fail = false
	h, err = c.Get("t.png")
	require.NoError(t, err)
	assert.True(t, h.Valid())
}
