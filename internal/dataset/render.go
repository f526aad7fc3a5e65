package dataset

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

const (
	canvasSize = 256
	lineWidth  = 7
	padding    = 3
)

// Renderer turns a drawing into a normalized float32 tensor of
// Size*Size pixels. flip requests a horizontally mirrored rendering
// (used for test-time augmentation).
type Renderer interface {
	Render(d Drawing, flip bool) ([]float32, error)
	Size() int
}

// StrokeRenderer rasterizes strokes on a 256x256 white canvas with
// cycling gray levels per stroke, then downscales with area
// interpolation to the model input size. Mean and Stdev normalize the
// [0,1] pixel intensities; they must match between training and
// inference for the same checkpoint.
type StrokeRenderer struct {
	size  int
	Mean  float32
	Stdev float32
}

// NewStrokeRenderer returns a renderer with identity normalization
// (mean 0, stdev 1).
func NewStrokeRenderer(size int) *StrokeRenderer {
	return &StrokeRenderer{size: size, Stdev: 1}
}

func (r *StrokeRenderer) Size() int { return r.size }

func (r *StrokeRenderer) Render(d Drawing, flip bool) ([]float32, error) {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 255), canvasSize, canvasSize, gocv.MatTypeCV8UC1)
	defer mat.Close()

	scale := float64(canvasSize-2*padding) / float64(canvasSize)
	for s, stroke := range d {
		gray := uint8(40 * (s % 6))
		c := color.RGBA{R: gray, G: gray, B: gray, A: 255}
		for i := 0; i+1 < len(stroke.X); i++ {
			p0 := canvasPoint(stroke.X[i], stroke.Y[i], scale, flip)
			p1 := canvasPoint(stroke.X[i+1], stroke.Y[i+1], scale, flip)
			gocv.Line(&mat, p0, p1, c, lineWidth)
		}
	}

	out := mat
	if r.size != canvasSize {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(mat, &resized, image.Pt(r.size, r.size), 0, 0, gocv.InterpolationArea)
		out = resized
	}

	img, err := out.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert rendered drawing: %w", err)
	}
	return TensorizeImage(img, r.size, r.Mean, r.Stdev), nil
}

func canvasPoint(x, y int, scale float64, flip bool) image.Point {
	px := int(scale*float64(x)) + padding
	py := int(scale*float64(y)) + padding
	if flip {
		px = canvasSize - px
	}
	return image.Pt(px, py)
}

// TensorizeImage converts an image to a size*size float32 tensor:
// pixel intensity scaled to [0,1], then (v-mean)/stdev. The image is
// assumed to already have size*size dimensions; callers resize first.
func TensorizeImage(img image.Image, size int, mean, stdev float32) []float32 {
	bounds := img.Bounds()
	tensor := make([]float32, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			var v float32
			if x < bounds.Dx() && y < bounds.Dy() {
				r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				v = float32(r>>8) / 255.0
			}
			tensor[y*size+x] = (v - mean) / stdev
		}
	}
	return tensor
}
