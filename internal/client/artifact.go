package client

import (
	"bytes"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gabriel-vasile/mimetype"
)

// Artifact is an opaque image blob plus its declared MIME type and natural
// pixel dimensions. Each pipeline step owns the artifact it produced until
// the next step consumes it.
type Artifact struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// NewArtifact detects the MIME type when none is declared and decodes the
// natural pixel dimensions. Dimensions stay zero when the bytes are not a
// decodable image.
func NewArtifact(data []byte, mime string) Artifact {
	if mime == "" {
		mime = mimetype.Detect(data).String()
	}

	a := Artifact{Data: data, MIME: mime}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		a.Width = cfg.Width
		a.Height = cfg.Height
	}

	return a
}

func (a Artifact) Empty() bool {
	return len(a.Data) == 0
}
