package resources

import "github.com/go-gl/mathgl/mgl32"

// cubeFaces lists each face as normal, u, v with u × v == normal so the
// generated triangles wind counter-clockwise seen from outside.
var cubeFaces = [6][3]mgl32.Vec3{
	{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	{{-1, 0, 0}, {0, 0, 1}, {0, 1, 0}},
	{{0, 1, 0}, {0, 0, 1}, {1, 0, 0}},
	{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}},
	{{0, 0, 1}, {1, 0, 0}, {0, 1, 0}},
	{{0, 0, -1}, {0, 1, 0}, {1, 0, 0}},
}

// CubeMesh is a unit cube centered on the origin with per-face normals and
// texture coordinates.
func CubeMesh() *Mesh {
	m := &Mesh{
		Vertices: make([]Vertex, 0, 24),
		Indices:  make([]uint32, 0, 36),
	}
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	uvs := [4]mgl32.Vec2{{0, 1}, {1, 1}, {1, 0}, {0, 0}}
	for _, f := range cubeFaces {
		n, u, v := f[0], f[1], f[2]
		base := uint32(len(m.Vertices))
		for i, c := range corners {
			pos := n.Add(u.Mul(c[0])).Add(v.Mul(c[1])).Mul(0.5)
			m.Vertices = append(m.Vertices, Vertex{
				Position: pos,
				Normal:   n,
				TexCoord: uvs[i],
				Color:    white,
			})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base+2, base+3, base)
	}
	return m
}

// CheckerTexture is a size×size grey checkerboard with cells squares per
// side. It stands in when no texture is configured or one fails to load.
func CheckerTexture(size, cells int) *Texture {
	if size <= 0 {
		size = 2
	}
	if cells <= 0 || cells > size {
		cells = size
	}
	cell := size / cells
	pix := make([]byte, size*size*4)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := byte(255)
			if (x/cell+y/cell)%2 == 1 {
				c = 50
			}
			o := (y*size + x) * 4
			pix[o], pix[o+1], pix[o+2], pix[o+3] = c, c, c, 255
		}
	}
	return &Texture{Width: size, Height: size, Channels: 4, Pixels: pix}
}
