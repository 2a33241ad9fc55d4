// Package resources decodes meshes and textures into CPU-side data ready
// for upload, and caches them by path.
package resources

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is uploaded as-is into vertex buffers, so its field order is the
// shader input layout. It is comparable and used as a dedup key.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	TexCoord mgl32.Vec2
	Color    mgl32.Vec3
}

// VertexSize is the stride of one packed Vertex.
const VertexSize = int(unsafe.Sizeof(Vertex{}))

// Attribute describes one shader input of Vertex.
type Attribute struct {
	Location   uint32
	Offset     uint32
	Components int
}

// VertexLayout lists the shader inputs in location order.
var VertexLayout = []Attribute{
	{Location: 0, Offset: uint32(unsafe.Offsetof(Vertex{}.Position)), Components: 3},
	{Location: 1, Offset: uint32(unsafe.Offsetof(Vertex{}.Normal)), Components: 3},
	{Location: 2, Offset: uint32(unsafe.Offsetof(Vertex{}.TexCoord)), Components: 2},
	{Location: 3, Offset: uint32(unsafe.Offsetof(Vertex{}.Color)), Components: 3},
}

var white = mgl32.Vec3{1, 1, 1}

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

func (m *Mesh) Valid() bool {
	return m != nil && len(m.Vertices) > 0 && len(m.Indices) > 0
}

// VertexBytes returns a copy of the vertex data in upload layout.
func (m *Mesh) VertexBytes() []byte {
	if len(m.Vertices) == 0 {
		return nil
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(&m.Vertices[0])), len(m.Vertices)*VertexSize)
	return append([]byte(nil), src...)
}

// IndexBytes returns a copy of the index data as 32-bit indices.
func (m *Mesh) IndexBytes() []byte {
	if len(m.Indices) == 0 {
		return nil
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(&m.Indices[0])), len(m.Indices)*4)
	return append([]byte(nil), src...)
}
