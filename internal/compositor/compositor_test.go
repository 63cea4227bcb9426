package compositor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearcut-studio/studio-server/internal/client"
)

func solid(width, height int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestPlaceOnTemplateOutputDimensions(t *testing.T) {
	subject := solid(100, 50, color.RGBA{R: 255, A: 255})

	out, err := PlaceOnTemplate(subject, nil, 800, 600)
	require.NoError(t, err)

	img := decodePNG(t, out)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Equal(t, 600, img.Bounds().Dy())
}

func TestPlaceOnTemplateDefaultCanvas(t *testing.T) {
	subject := solid(10, 10, color.RGBA{B: 255, A: 255})

	out, err := PlaceOnTemplate(subject, nil, 0, 0)
	require.NoError(t, err)

	img := decodePNG(t, out)
	assert.Equal(t, DefaultCanvas, img.Bounds().Dx())
	assert.Equal(t, DefaultCanvas, img.Bounds().Dy())
}

func TestPlaceOnTemplateWhiteBackdropAndCenteredSubject(t *testing.T) {
	subject := solid(100, 100, color.RGBA{R: 255, A: 255})

	out, err := PlaceOnTemplate(subject, nil, 1000, 1000)
	require.NoError(t, err)
	img := decodePNG(t, out)

	// Corners stay on the white backdrop: the subject occupies at most
	// 80% of the canvas.
	r, g, b, _ := img.At(5, 5).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), b)

	// The center lands on the subject.
	r, g, b, _ = img.At(500, 500).RGBA()
	assert.Greater(t, r, uint32(0xf000))
	assert.Less(t, g, uint32(0x1000))
	assert.Less(t, b, uint32(0x1000))

	// Just outside the 80% margin on the horizontal axis is backdrop again.
	_, g, _, _ = img.At(95, 500).RGBA()
	assert.Equal(t, uint32(0xffff), g, "subject must not reach past the fit margin")
}

func TestPlaceOnTemplateUsesTemplateImage(t *testing.T) {
	subject := solid(10, 10, color.RGBA{R: 255, A: 255})
	template := solid(50, 50, color.RGBA{G: 255, A: 255})

	out, err := PlaceOnTemplate(subject, template, 400, 400)
	require.NoError(t, err)
	img := decodePNG(t, out)

	// Corners show the resized template instead of the white backdrop.
	_, g, _, _ := img.At(5, 5).RGBA()
	assert.Greater(t, g, uint32(0x8000))
}

func TestPlaceOnTemplateNeverUpscalesPastFit(t *testing.T) {
	// A subject larger than the canvas must be scaled down to fit.
	subject := solid(4000, 2000, color.RGBA{R: 255, A: 255})

	out, err := PlaceOnTemplate(subject, nil, 500, 500)
	require.NoError(t, err)
	img := decodePNG(t, out)

	// Top edge is backdrop: the wide subject is letterboxed vertically.
	_, g, _, _ := img.At(250, 5).RGBA()
	assert.Equal(t, uint32(0xffff), g)
}

func TestDecodeRejectsNonImage(t *testing.T) {
	_, err := Decode([]byte("not an image at all"))

	var verr *client.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(20, 30, color.RGBA{A: 255})))

	img, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())
	assert.Equal(t, 30, img.Bounds().Dy())
}
