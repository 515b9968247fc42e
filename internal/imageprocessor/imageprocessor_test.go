package imageprocessor

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func encodeGIF(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	return buf.Bytes()
}

func solidRGBA(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func gradientGray(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	return img
}

func requireWellFormed(t *testing.T, tensor *Tensor, size int) {
	t.Helper()
	require.Equal(t, [4]int64{1, int64(size), int64(size), Channels}, tensor.Shape)
	require.Len(t, tensor.Data, size*size*Channels)
	require.Equal(t, int64(len(tensor.Data)), tensor.Len())
	for i, v := range tensor.Data {
		if v < 0 || v > 1 {
			t.Fatalf("element %d out of range: %v", i, v)
		}
	}
}

func TestNormalizeShapeAndRange(t *testing.T) {
	paletted := image.NewPaletted(image.Rect(0, 0, 64, 40), palette.Plan9)
	for i := range paletted.Pix {
		paletted.Pix[i] = uint8(i % len(palette.Plan9))
	}

	translucent := image.NewNRGBA(image.Rect(0, 0, 300, 17))
	for i := 0; i < len(translucent.Pix); i += 4 {
		translucent.Pix[i+0] = 200
		translucent.Pix[i+1] = 100
		translucent.Pix[i+2] = 50
		translucent.Pix[i+3] = uint8(i % 256)
	}

	cases := []struct {
		name string
		raw  []byte
	}{
		{"rgb jpeg 500x500", encodeJPEG(t, solidRGBA(500, 500, color.RGBA{R: 255, A: 255}))},
		{"rgb png 1x1", encodePNG(t, solidRGBA(1, 1, color.RGBA{G: 255, A: 255}))},
		{"rgb png wide", encodePNG(t, solidRGBA(640, 48, color.RGBA{B: 128, A: 255}))},
		{"gray png tall", encodePNG(t, gradientGray(37, 1000))},
		{"gray jpeg", encodeJPEG(t, gradientGray(224, 224))},
		{"rgba png", encodePNG(t, translucent)},
		{"paletted gif", encodeGIF(t, paletted)},
	}

	n := NewNormalizer(0, nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tensor, err := n.Normalize(tc.raw)
			require.NoError(t, err)
			requireWellFormed(t, tensor, DefaultSize)
		})
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	raw := encodeJPEG(t, gradientGray(333, 211))
	for _, r := range []Resampler{Bilinear, Nearest, CatmullRom, Lanczos3} {
		t.Run(r.Name(), func(t *testing.T) {
			n := NewNormalizer(DefaultSize, r)
			first, err := n.Normalize(raw)
			require.NoError(t, err)
			second, err := n.Normalize(raw)
			require.NoError(t, err)
			requireWellFormed(t, first, DefaultSize)
			require.Equal(t, first.Data, second.Data)
		})
	}
}

func TestNormalizeChannelOrderIsRGB(t *testing.T) {
	raw := encodePNG(t, solidRGBA(50, 80, color.RGBA{R: 255, G: 0, B: 51, A: 255}))

	tensor, err := NewNormalizer(DefaultSize, nil).Normalize(raw)
	require.NoError(t, err)

	for _, p := range [][2]int{{0, 0}, {100, 100}, {223, 223}} {
		require.InDelta(t, 1.0, tensor.At(p[0], p[1], 0), 1.0/255)
		require.InDelta(t, 0.0, tensor.At(p[0], p[1], 1), 1.0/255)
		require.InDelta(t, 0.2, tensor.At(p[0], p[1], 2), 1.0/255)
	}
}

func TestNormalizeExpandsGrayscale(t *testing.T) {
	raw := encodePNG(t, gradientGray(120, 90))

	tensor, err := NewNormalizer(DefaultSize, nil).Normalize(raw)
	require.NoError(t, err)

	for y := 0; y < DefaultSize; y += 17 {
		for x := 0; x < DefaultSize; x += 13 {
			r := tensor.At(y, x, 0)
			require.Equal(t, r, tensor.At(y, x, 1))
			require.Equal(t, r, tensor.At(y, x, 2))
		}
	}
}

func TestNormalizeDropsAlphaWithoutPremultiplying(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = 10
		img.Pix[i+1] = 20
		img.Pix[i+2] = 30
		img.Pix[i+3] = 0
	}

	tensor, err := NewNormalizer(DefaultSize, nil).Normalize(encodePNG(t, img))
	require.NoError(t, err)

	require.InDelta(t, 10.0/255, tensor.At(5, 5, 0), 1.0/255)
	require.InDelta(t, 20.0/255, tensor.At(5, 5, 1), 1.0/255)
	require.InDelta(t, 30.0/255, tensor.At(5, 5, 2), 1.0/255)
}

func TestNormalizeCustomSize(t *testing.T) {
	raw := encodePNG(t, solidRGBA(10, 10, color.White))
	tensor, err := NewNormalizer(32, Nearest).Normalize(raw)
	require.NoError(t, err)
	requireWellFormed(t, tensor, 32)
	require.Equal(t, float32(1), tensor.At(31, 31, 2))
}

func TestNormalizeRejectsNonImages(t *testing.T) {
	n := NewNormalizer(DefaultSize, nil)

	for name, raw := range map[string][]byte{
		"empty":         nil,
		"plain text":    []byte("definitely not a picture"),
		"truncated png": encodePNG(t, solidRGBA(20, 20, color.Black))[:30],
		"json":          []byte(`{"class":"Dog"}`),
	} {
		t.Run(name, func(t *testing.T) {
			tensor, err := n.Normalize(raw)
			require.Nil(t, tensor)
			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %T", err)
		})
	}
}

func TestParseResampler(t *testing.T) {
	for name, want := range map[string]Resampler{
		"":           Bilinear,
		"bilinear":   Bilinear,
		"Nearest":    Nearest,
		"bicubic":    CatmullRom,
		"catmullrom": CatmullRom,
		"lanczos3":   Lanczos3,
	} {
		got, err := ParseResampler(name)
		require.NoError(t, err)
		require.Equal(t, want.Name(), got.Name())
	}

	_, err := ParseResampler("area")
	require.Error(t, err)
}

func TestSniff(t *testing.T) {
	mediaType, ok := Sniff(encodePNG(t, solidRGBA(2, 2, color.Black)))
	require.True(t, ok)
	require.Equal(t, "image/png", mediaType)

	mediaType, ok = Sniff(encodeJPEG(t, solidRGBA(2, 2, color.Black)))
	require.True(t, ok)
	require.Equal(t, "image/jpeg", mediaType)

	mediaType, ok = Sniff([]byte("hello there, this is text"))
	require.False(t, ok)
	require.Equal(t, "text/plain", mediaType)
}
