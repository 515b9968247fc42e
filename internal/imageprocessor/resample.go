package imageprocessor

import (
	"fmt"
	"image"
	"strings"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Resampler resizes an opaque RGB image to a size×size square.
// Implementations must be deterministic.
type Resampler interface {
	Name() string
	Resize(src *image.RGBA, size int) *image.RGBA
}

var (
	// Bilinear matches the default interpolation of Keras image loaders.
	Bilinear Resampler = scalerResampler{name: "bilinear", scaler: draw.BiLinear}
	// Nearest is nearest-neighbour sampling.
	Nearest Resampler = scalerResampler{name: "nearest", scaler: draw.NearestNeighbor}
	// CatmullRom is bicubic Catmull-Rom interpolation.
	CatmullRom Resampler = scalerResampler{name: "catmullrom", scaler: draw.CatmullRom}
	// Lanczos3 is windowed sinc interpolation.
	Lanczos3 Resampler = lanczosResampler{}
)

// ParseResampler maps a resampler name to its implementation. An empty name
// selects Bilinear.
func ParseResampler(name string) (Resampler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bilinear":
		return Bilinear, nil
	case "nearest":
		return Nearest, nil
	case "catmullrom", "bicubic":
		return CatmullRom, nil
	case "lanczos3", "lanczos":
		return Lanczos3, nil
	default:
		return nil, fmt.Errorf("unknown resampler %q", name)
	}
}

type scalerResampler struct {
	name   string
	scaler draw.Scaler
}

func (r scalerResampler) Name() string { return r.name }

func (r scalerResampler) Resize(src *image.RGBA, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	r.scaler.Scale(dst, dst.Rect, src, src.Bounds(), draw.Src, nil)
	return dst
}

type lanczosResampler struct{}

func (lanczosResampler) Name() string { return "lanczos3" }

func (lanczosResampler) Resize(src *image.RGBA, size int) *image.RGBA {
	out := resize.Resize(uint(size), uint(size), src, resize.Lanczos3)
	if rgba, ok := out.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Rect, out, out.Bounds().Min, draw.Src)
	return dst
}
