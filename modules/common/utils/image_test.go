package utils

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDataURL(t *testing.T) {
	assert.Equal(t, "data:image/png;base64,AQID", ToDataURL("image/png", []byte{1, 2, 3}))
	assert.Equal(t, "data:application/octet-stream;base64,", ToDataURL("", nil))
}

func TestFromDataURL(t *testing.T) {
	mediaType, data, err := FromDataURL(ToDataURL("image/png", []byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, "image/png", mediaType)
	assert.Equal(t, []byte{1, 2, 3}, data)

	for _, bad := range []string{"https://cdn/a.png", "data:image/png;base64", "data:image/png,AQID", "data:image/png;base64,!!"} {
		_, _, err := FromDataURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestFitImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1024, 512))

	t.Run("downscales keeping aspect ratio", func(t *testing.T) {
		out := FitImage(src, 256, 256)
		assert.Equal(t, 256, out.Bounds().Dx())
		assert.Equal(t, 128, out.Bounds().Dy())
	})

	t.Run("small images are returned as is", func(t *testing.T) {
		small := image.NewRGBA(image.Rect(0, 0, 10, 10))
		assert.Same(t, small, FitImage(small, 256, 256))
	})
}

func TestWebPThumbnail(t *testing.T) {
	t.Run("png becomes webp data url", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 400, 300))
		for x := 0; x < 400; x++ {
			img.Set(x, x%300, color.RGBA{R: 255, A: 255})
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))

		out, err := WebPThumbnail(buf.Bytes())
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "data:image/webp;base64,"))
	})

	t.Run("garbage input fails", func(t *testing.T) {
		_, err := WebPThumbnail([]byte("not an image"))
		assert.Error(t, err)
	})
}
