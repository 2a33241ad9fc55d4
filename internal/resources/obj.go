package resources

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// LoadMesh reads a Wavefront OBJ file.
func LoadMesh(path string) (*Mesh, error) {
	if !strings.EqualFold(filepath.Ext(path), ".obj") {
		return nil, fmt.Errorf("load mesh %s: %w", path, ErrUnsupportedFormat)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load mesh: %w", err)
	}
	defer f.Close()

	m, err := ParseOBJ(f)
	if err != nil {
		return nil, fmt.Errorf("load mesh %s: %w", path, err)
	}
	return m, nil
}

type objIndex struct {
	v, t, n int // resolved 0-based, -1 when absent
}

// ParseOBJ reads positions, texture coordinates, normals and faces.
// Polygons are fan-triangulated and identical vertices are shared.
func ParseOBJ(r io.Reader) (*Mesh, error) {
	var (
		positions []mgl32.Vec3
		texcoords []mgl32.Vec2
		normals   []mgl32.Vec3
		mesh      Mesh
		seen      = map[Vertex]uint32{}
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v":
			p, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			positions = append(positions, mgl32.Vec3{p[0], p[1], p[2]})
		case "vt":
			p, err := parseFloats(fields[1:], 2)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			texcoords = append(texcoords, mgl32.Vec2{p[0], 1 - p[1]})
		case "vn":
			p, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			normals = append(normals, mgl32.Vec3{p[0], p[1], p[2]})
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", line)
			}
			corners := make([]uint32, 0, len(fields)-1)
			for _, tok := range fields[1:] {
				idx, err := parseFaceIndex(tok, len(positions), len(texcoords), len(normals))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				v := Vertex{Position: positions[idx.v], Color: white}
				if idx.t >= 0 {
					v.TexCoord = texcoords[idx.t]
				}
				if idx.n >= 0 {
					v.Normal = normals[idx.n]
				}
				id, ok := seen[v]
				if !ok {
					id = uint32(len(mesh.Vertices))
					seen[v] = id
					mesh.Vertices = append(mesh.Vertices, v)
				}
				corners = append(corners, id)
			}
			for i := 1; i+1 < len(corners); i++ {
				mesh.Indices = append(mesh.Indices, corners[0], corners[i], corners[i+1])
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !mesh.Valid() {
		return nil, fmt.Errorf("obj has no faces")
	}
	return &mesh, nil
}

func parseFloats(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(fields))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}

func parseFaceIndex(tok string, nv, nt, nn int) (objIndex, error) {
	parts := strings.Split(tok, "/")
	if len(parts) > 3 {
		return objIndex{}, fmt.Errorf("bad face vertex %q", tok)
	}
	idx := objIndex{t: -1, n: -1}
	var err error
	if idx.v, err = resolveIndex(parts[0], nv); err != nil {
		return idx, fmt.Errorf("position index %q: %w", tok, err)
	}
	if len(parts) > 1 && parts[1] != "" {
		if idx.t, err = resolveIndex(parts[1], nt); err != nil {
			return idx, fmt.Errorf("texcoord index %q: %w", tok, err)
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		if idx.n, err = resolveIndex(parts[2], nn); err != nil {
			return idx, fmt.Errorf("normal index %q: %w", tok, err)
		}
	}
	return idx, nil
}

// resolveIndex maps a 1-based or negative (relative) OBJ index to 0-based.
func resolveIndex(s string, count int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	switch {
	case i > 0:
		i--
	case i < 0:
		i += count
	default:
		return 0, fmt.Errorf("index 0 is invalid")
	}
	if i < 0 || i >= count {
		return 0, fmt.Errorf("out of range (have %d)", count)
	}
	return i, nil
}
