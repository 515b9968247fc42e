// Package imageprocessor turns uploaded image bytes into the fixed-shape
// float tensor the classifier was trained on. The same code path must be used
// wherever images are prepared for the model, so the resize algorithm and the
// 1/255 scaling cannot drift between training and serving.
package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultSize is the square edge length the classifier expects.
	DefaultSize = 224
	// Channels is fixed to R,G,B.
	Channels = 3
)

var errEmptyImage = errors.New("image has no pixels")

// Tensor is a dense NHWC float32 tensor with a batch dimension of 1.
type Tensor struct {
	Shape [4]int64
	Data  []float32
}

// At returns the value at row y, column x, channel c of the single batch entry.
func (t *Tensor) At(y, x, c int) float32 {
	w := int(t.Shape[2])
	return t.Data[(y*w+x)*Channels+c]
}

// Len is the number of elements implied by Shape.
func (t *Tensor) Len() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// DecodeError reports bytes that could not be parsed as a supported image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Normalizer is safe for concurrent use; it holds no mutable state.
type Normalizer struct {
	size      int
	resampler Resampler
}

// NewNormalizer returns a normalizer producing size×size tensors. A
// non-positive size selects DefaultSize and a nil resampler selects Bilinear.
func NewNormalizer(size int, resampler Resampler) *Normalizer {
	if size <= 0 {
		size = DefaultSize
	}
	if resampler == nil {
		resampler = Bilinear
	}
	return &Normalizer{size: size, resampler: resampler}
}

// Size is the edge length of produced tensors.
func (n *Normalizer) Size() int { return n.size }

// Resampler is the resize algorithm in use.
func (n *Normalizer) Resampler() Resampler { return n.resampler }

// Normalize decodes raw, converts it to RGB, resizes it without cropping and
// scales every channel into [0,1]. The result has shape [1,size,size,3].
func (n *Normalizer) Normalize(raw []byte) (*Tensor, error) {
	if len(raw) == 0 {
		return nil, &DecodeError{Err: errEmptyImage}
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if src.Bounds().Empty() {
		return nil, &DecodeError{Err: errEmptyImage}
	}

	resized := n.resampler.Resize(toOpaqueRGB(src), n.size)
	return toTensor(resized, n.size), nil
}

// toOpaqueRGB copies src into a zero-origin RGBA with alpha forced to 0xff.
// Colors are taken non-premultiplied so transparent pixels keep their RGB.
func toOpaqueRGB(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			i := dst.PixOffset(x-b.Min.X, y-b.Min.Y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

func toTensor(img *image.RGBA, size int) *Tensor {
	data := make([]float32, size*size*Channels)
	b := img.Bounds()
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			o := (y*size + x) * Channels
			data[o+0] = float32(img.Pix[i+0]) / 255.0
			data[o+1] = float32(img.Pix[i+1]) / 255.0
			data[o+2] = float32(img.Pix[i+2]) / 255.0
		}
	}
	return &Tensor{
		Shape: [4]int64{1, int64(size), int64(size), Channels},
		Data:  data,
	}
}
