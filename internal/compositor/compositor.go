// Package compositor places processed cutouts onto template canvases.
package compositor

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/anthonynsimon/bild/transform"

	"github.com/clearcut-studio/studio-server/internal/client"
)

const (
	// DefaultCanvas is the square canvas edge used when no explicit
	// dimensions are given.
	DefaultCanvas = 1200

	// fitRatio is the fraction of the canvas the subject may occupy.
	fitRatio = 0.8
)

// PlaceOnTemplate scales the template to width x height, fits the subject
// into 80% of the canvas preserving aspect ratio, and draws it centered
// with alpha blending. The result is always PNG.
func PlaceOnTemplate(subject, template image.Image, width, height int) ([]byte, error) {
	if width <= 0 {
		width = DefaultCanvas
	}
	if height <= 0 {
		height = DefaultCanvas
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	if template != nil {
		scaled := transform.Resize(template, width, height, transform.Lanczos)
		draw.Draw(canvas, canvas.Bounds(), scaled, image.Point{}, draw.Src)
	} else {
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	}

	if subject != nil {
		fitted := fitSubject(subject, width, height)
		offset := image.Pt(
			(width-fitted.Bounds().Dx())/2,
			(height-fitted.Bounds().Dy())/2,
		)
		draw.Draw(canvas, fitted.Bounds().Add(offset), fitted, image.Point{}, draw.Over)
	}

	var out bytes.Buffer
	if err := png.Encode(&out, canvas); err != nil {
		return nil, &client.TemplateError{Message: err.Error()}
	}

	return out.Bytes(), nil
}

// fitSubject scales the subject so its longer relative edge fills fitRatio
// of the canvas, never upscaling past that bound in either dimension.
func fitSubject(subject image.Image, width, height int) image.Image {
	bounds := subject.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return subject
	}

	maxW := float64(width) * fitRatio
	maxH := float64(height) * fitRatio

	scale := maxW / float64(srcW)
	if s := maxH / float64(srcH); s < scale {
		scale = s
	}

	dstW := int(float64(srcW) * scale)
	dstH := int(float64(srcH) * scale)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	return transform.Resize(subject, dstW, dstH, transform.Lanczos)
}

// Decode parses raw image bytes via the registered stdlib decoders.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &client.ValidationError{Message: "unsupported or corrupt image data"}
	}
	return img, nil
}
