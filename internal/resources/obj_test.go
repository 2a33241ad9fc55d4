package resources

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOBJQuad(t *testing.T) {
	src := `# quad
mtllib quad.mtl
o Quad
v -1 -1 0
v 1 -1 0
v 1 1 0
v -1 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
usemtl default
s off
f 1/1/1 2/2/1 3/3/1 4/4/1
`
	m, err := ParseOBJ(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, m.Vertices, 4)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, m.Indices)

	v := m.Vertices[0]
	assert.Equal(t, mgl32.Vec3{-1, -1, 0}, v.Position)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, v.Normal)
	assert.Equal(t, mgl32.Vec2{0, 1}, v.TexCoord, "v coordinate is flipped")
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, v.Color)
}

func TestParseOBJSharesVertices(t *testing.T) {
	src := "v 0 0 0\nv 1 0 0\nv 1 1 0\nv 0 1 0\nf 1 2 3\nf 1 3 4\n"
	m, err := ParseOBJ(strings.NewReader(src))
	require.NoError(t, err)
	assert.Len(t, m.Vertices, 4)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, m.Indices)
	for _, v := range m.Vertices {
		assert.Equal(t, mgl32.Vec3{}, v.Normal)
		assert.Equal(t, mgl32.Vec2{}, v.TexCoord)
	}
}

func TestParseOBJSplitsOnDifferentNormals(t *testing.T) {
	src := "v 0 0 0\nv 1 0 0\nv 0 1 0\nvn 0 0 1\nvn 0 0 -1\nf 1//1 2//1 3//1\nf 1//2 3//2 2//2\n"
	m, err := ParseOBJ(strings.NewReader(src))
	require.NoError(t, err)
	assert.Len(t, m.Vertices, 6)
	assert.Len(t, m.Indices, 6)
}

func TestParseOBJNegativeIndices(t *testing.T) {
	abs, err := ParseOBJ(strings.NewReader("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"))
	require.NoError(t, err)
	rel, err := ParseOBJ(strings.NewReader("v 0 0 0\nv 1 0 0\nv 0 1 0\nf -3 -2 -1\n"))
	require.NoError(t, err)
	assert.Equal(t, abs, rel)
}

func TestParseOBJErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"index out of range", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 5\n", "line 4"},
		{"zero index", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n", "line 4"},
		{"missing texcoord", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1/1 2/1 3/1\n", "texcoord"},
		{"short face", "v 0 0 0\nv 1 0 0\nf 1 2\n", "line 3"},
		{"bad float", "v 0 zero 0\n", "line 1"},
		{"no faces", "v 0 0 0\n", "no faces"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOBJ(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadMesh(t *testing.T) {
	_, err := LoadMesh("model.fbx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	path := filepath.Join(t.TempDir(), "tri.OBJ")
	require.NoError(t, os.WriteFile(path, []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"), 0o644))
	m, err := LoadMesh(path)
	require.NoError(t, err)
	assert.True(t, m.Valid())
	assert.Len(t, m.Indices, 3)
}
