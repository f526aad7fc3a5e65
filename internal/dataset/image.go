package dataset

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/transform"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// ImageRenderer loads already-rasterized doodles from image files and
// normalizes them to model input tensors. It implements Renderer for
// file paths carried in Sample.KeyID rather than stroke data, so
// Render on stroke drawings is unsupported.
type ImageRenderer struct {
	size int
}

func NewImageRenderer(size int) *ImageRenderer {
	return &ImageRenderer{size: size}
}

func (r *ImageRenderer) Size() int { return r.size }

func (r *ImageRenderer) Render(d Drawing, flip bool) ([]float32, error) {
	return nil, fmt.Errorf("image renderer cannot rasterize stroke drawings")
}

// LoadTensor reads an image file, converts it to grayscale, scales it
// to the model input size and normalizes it. flip mirrors the image
// horizontally before tensorizing.
func (r *ImageRenderer) LoadTensor(path string, flip bool) ([]float32, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	return r.Tensorize(img, flip), nil
}

// Tensorize normalizes a decoded image into a model input tensor.
func (r *ImageRenderer) Tensorize(img image.Image, flip bool) []float32 {
	gray := imaging.Grayscale(img)
	var scaled image.Image = resize.Resize(uint(r.size), uint(r.size), gray, resize.Bicubic)
	if flip {
		scaled = transform.FlipH(scaled)
	}
	return TensorizeImage(scaled, r.size, 0, 1)
}
