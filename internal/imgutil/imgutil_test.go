package imgutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			img.Set(x, y, c)
		}
	}
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestCompressToJPEG(t *testing.T) {
	got, err := CompressToJPEG(solidPNG(t, color.RGBA{255, 0, 0, 255}), 75)
	require.NoError(t, err)

	_, format, err := image.Decode(bytes.NewReader(got))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	_, err = CompressToJPEG([]byte("this is not an image"), 75)
	assert.Error(t, err)
}

func TestDominantColor(t *testing.T) {
	assert.Equal(t, "#ff0000", DominantColor(solidPNG(t, color.RGBA{255, 0, 0, 255})))
	assert.Equal(t, "transparent", DominantColor(solidPNG(t, color.RGBA{0, 0, 0, 0})))
	assert.Equal(t, "transparent", DominantColor([]byte("garbage")))
}

func TestDetectMime(t *testing.T) {
	jpg := new(bytes.Buffer)
	require.NoError(t, jpeg.Encode(jpg, image.NewRGBA(image.Rect(0, 0, 2, 2)), nil))

	assert.Equal(t, "image/webp", DetectMime("image/webp; q=1", nil))
	assert.Equal(t, "image/png", DetectMime("", solidPNG(t, color.White)))
	assert.Equal(t, "image/jpeg", DetectMime("application/octet-stream", jpg.Bytes()))
	assert.Equal(t, "image/jpeg", DetectMime("", []byte("plain words")))
}
