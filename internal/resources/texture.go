package resources

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strconv"

	"github.com/h2non/filetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// MaxTextureSize bounds either texture dimension. It matches the smallest
// maxImageDimension2D desktop drivers report and keeps width*height*4
// well inside an int.
const MaxTextureSize = 16384

// Texture is always 8-bit RGBA once decoded.
type Texture struct {
	Width    int
	Height   int
	Channels int
	Pixels   []byte
}

func (t *Texture) Valid() bool {
	if t == nil || t.Width <= 0 || t.Height <= 0 || t.Width > MaxTextureSize || t.Height > MaxTextureSize {
		return false
	}
	return len(t.Pixels) == t.Width*t.Height*4
}

var decoders = map[string]func(io.Reader) (image.Image, error){
	"png":  png.Decode,
	"jpg":  jpeg.Decode,
	"gif":  gif.Decode,
	"bmp":  bmp.Decode,
	"tif":  tiff.Decode,
	"webp": webp.Decode,
}

func LoadTexture(path string) (*Texture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load texture: %w", err)
	}
	tex, err := DecodeTexture(data)
	if err != nil {
		return nil, fmt.Errorf("load texture %s: %w", path, err)
	}
	return tex, nil
}

// DecodeTexture sniffs the content type and decodes to RGBA8.
func DecodeTexture(data []byte) (*Texture, error) {
	if bytes.HasPrefix(data, []byte("P6")) {
		return decodePPM(data)
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return nil, ErrUnsupportedFormat
	}
	decode, ok := decoders[kind.Extension]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, kind.MIME.Value)
	}
	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind.Extension, err)
	}
	if b := img.Bounds(); b.Dx() > MaxTextureSize || b.Dy() > MaxTextureSize {
		return nil, fmt.Errorf("%s %dx%d exceeds %d", kind.Extension, b.Dx(), b.Dy(), MaxTextureSize)
	}
	return FromImage(img), nil
}

// FromImage converts any image to a tightly packed RGBA8 texture.
func FromImage(img image.Image) *Texture {
	b := img.Bounds()
	dst, ok := img.(*image.NRGBA)
	if !ok || dst.Rect.Min != (image.Point{}) || dst.Stride != b.Dx()*4 {
		dst = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	}
	return &Texture{
		Width:    b.Dx(),
		Height:   b.Dy(),
		Channels: 4,
		Pixels:   dst.Pix,
	}
}

// decodePPM reads a binary P6 pixmap with maxval 255.
func decodePPM(data []byte) (*Texture, error) {
	if len(data) < 3 || data[0] != 'P' || data[1] != '6' {
		return nil, fmt.Errorf("not a P6 ppm")
	}
	idx := 2
	var tokens []string
	for len(tokens) < 3 && idx < len(data) {
		idx = skipSpaceAndComments(data, idx)
		start := idx
		for idx < len(data) && !isSpace(data[idx]) {
			idx++
		}
		if start < idx {
			tokens = append(tokens, string(data[start:idx]))
		}
	}
	if len(tokens) < 3 {
		return nil, fmt.Errorf("ppm header incomplete")
	}
	width, err := strconv.Atoi(tokens[0])
	if err != nil || width <= 0 {
		return nil, fmt.Errorf("ppm width %q", tokens[0])
	}
	height, err := strconv.Atoi(tokens[1])
	if err != nil || height <= 0 {
		return nil, fmt.Errorf("ppm height %q", tokens[1])
	}
	if width > MaxTextureSize || height > MaxTextureSize {
		return nil, fmt.Errorf("ppm %dx%d exceeds %d", width, height, MaxTextureSize)
	}
	maxVal, err := strconv.Atoi(tokens[2])
	if err != nil {
		return nil, fmt.Errorf("ppm max value: %w", err)
	}
	if maxVal != 255 {
		return nil, fmt.Errorf("unsupported ppm max value %d", maxVal)
	}
	// exactly one whitespace byte separates the header from the raster
	idx++
	if idx > len(data) {
		idx = len(data)
	}
	rgb := data[idx:]
	n := width * height
	if len(rgb) < n*3 {
		return nil, fmt.Errorf("ppm data truncated: got %d expected %d", len(rgb), n*3)
	}
	rgba := make([]byte, n*4)
	for i := 0; i < n; i++ {
		copy(rgba[i*4:], rgb[i*3:i*3+3])
		rgba[i*4+3] = 255
	}
	return &Texture{Width: width, Height: height, Channels: 4, Pixels: rgba}, nil
}

func skipSpaceAndComments(data []byte, idx int) int {
	for idx < len(data) {
		switch {
		case isSpace(data[idx]):
			idx++
		case data[idx] == '#':
			for idx < len(data) && data[idx] != '\n' {
				idx++
			}
		default:
			return idx
		}
	}
	return idx
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\r' || b == '\t'
}
