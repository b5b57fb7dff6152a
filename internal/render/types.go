package render

import (
	"context"
	"errors"
)

type Operation string

const (
	OpRender         Operation = "render"
	OpRegenerate     Operation = "regenerate"
	OpVariations     Operation = "variations"
	OpFromSource     Operation = "from_source"
	OpDifferentAngle Operation = "different_angle"
	OpUpscale        Operation = "upscale"
	OpCorrection     Operation = "correction"
	OpNavigate       Operation = "navigate"
	OpGallery        Operation = "gallery"
)

func (op Operation) Valid() bool {
	switch op {
	case OpRender, OpRegenerate, OpVariations, OpFromSource, OpDifferentAngle, OpUpscale, OpCorrection, OpNavigate:
		return true
	}
	return false
}

type Image struct {
	Data     []byte
	MimeType string
}

func (img Image) Empty() bool {
	return len(img.Data) == 0
}

// Request is what a backend receives. Images are ordered: the image being
// edited comes first, references follow.
type Request struct {
	Operation   Operation
	Prompt      string
	Images      []Image
	Resolution  string
	AspectRatio string
}

type Result struct {
	Image Image
	Text  string
}

type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

var ErrNoImage = errors.New("model returned no image")
