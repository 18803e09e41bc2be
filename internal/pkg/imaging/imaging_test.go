package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniform(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestMeanLuma_UsesCentralCrop(t *testing.T) {
	img := uniform(100, 100, color.Black)
	// bright square in the middle, dark border
	for y := 40; y < 60; y++ {
		for x := 40; x < 60; x++ {
			img.Set(x, y, color.White)
		}
	}
	assert.InDelta(t, 255, MeanLuma(img, 0.2), 0.5)
	assert.Less(t, MeanLuma(img, 1), 20.0)
}

func TestMeanLuma_Rec709Weights(t *testing.T) {
	img := uniform(10, 10, color.RGBA{R: 0, G: 255, B: 0, A: 255})
	assert.InDelta(t, 0.7152*255, MeanLuma(img, 1), 0.01)
}

func TestCenterCrop(t *testing.T) {
	r := CenterCrop(image.Rect(0, 0, 200, 100), 0.5)
	assert.Equal(t, image.Rect(50, 25, 150, 75), r)
}

func TestLaplacianVariance_FlatVsEdges(t *testing.T) {
	flat := uniform(20, 20, color.Gray{Y: 128})
	assert.Equal(t, 0.0, LaplacianVariance(flat))

	stripes := image.NewGray(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			if x%2 == 0 {
				stripes.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	assert.Greater(t, LaplacianVariance(stripes), 1000.0)
}

func TestPrepareForOCR_UpscalesAndBinarizes(t *testing.T) {
	img := uniform(700, 100, color.Gray{Y: 200})
	for x := 0; x < 700; x++ {
		img.Set(x, 50, color.Gray{Y: 20})
	}
	out := PrepareForOCR(img)
	assert.Equal(t, MinOCRWidth, out.Bounds().Dx())
	assert.Equal(t, 200, out.Bounds().Dy())
	for _, v := range out.Pix {
		require.True(t, v == 0 || v == 255)
	}
	assert.Equal(t, uint8(255), out.GrayAt(10, 10).Y)
}

func TestPrepareForOCR_KeepsWideImages(t *testing.T) {
	out := PrepareForOCR(uniform(1600, 50, color.White))
	assert.Equal(t, 1600, out.Bounds().Dx())
}

func TestCrop(t *testing.T) {
	img := uniform(50, 50, color.White)
	c := Crop(img, image.Rect(10, 10, 80, 30))
	assert.Equal(t, image.Rect(0, 0, 40, 20), c.Bounds())
}

func TestDecodeAndEncodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, uniform(4, 4, color.White)))
	img, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	_, err = Decode([]byte("not an image"))
	assert.Error(t, err)
}

func TestDecodeDataURL(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("abc"))
	b, mime, err := DecodeDataURL("data:image/png;base64," + payload)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), b)
	assert.Equal(t, "image/png", mime)

	for _, bad := range []string{"image/png;base64,abc", "data:image/png,abc", "data:image/png;base64,@@"} {
		_, _, err := DecodeDataURL(bad)
		assert.ErrorIs(t, err, ErrInvalidDataURL, bad)
	}
}
