package dataset_test

import (
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"doodleclass/internal/dataset"
)

// halfTone returns an image whose left half is black and right half
// white.
func halfTone(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= w/2 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func TestImageRenderer_Tensorize(t *testing.T) {
	r := dataset.NewImageRenderer(4)

	tensor := r.Tensorize(halfTone(4, 4), false)
	if len(tensor) != 16 {
		t.Fatalf("tensor has %d values, want 16", len(tensor))
	}
	// Leftmost column stays dark, rightmost bright.
	if tensor[0] > 0.2 {
		t.Errorf("left pixel = %g, want near 0", tensor[0])
	}
	if tensor[3] < 0.8 {
		t.Errorf("right pixel = %g, want near 1", tensor[3])
	}
}

func TestImageRenderer_FlipMirrors(t *testing.T) {
	r := dataset.NewImageRenderer(4)

	plain := r.Tensorize(halfTone(4, 4), false)
	flipped := r.Tensorize(halfTone(4, 4), true)

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			a := plain[y*4+x]
			b := flipped[y*4+(3-x)]
			if math.Abs(float64(a-b)) > 1e-6 {
				t.Fatalf("pixel (%d,%d): plain %g vs mirrored %g", x, y, a, b)
			}
		}
	}
}

func TestImageRenderer_Resizes(t *testing.T) {
	r := dataset.NewImageRenderer(8)
	tensor := r.Tensorize(halfTone(32, 32), false)
	if len(tensor) != 64 {
		t.Fatalf("tensor has %d values, want 64", len(tensor))
	}
}

func TestImageRenderer_LoadTensor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doodle.png")
	if err := imaging.Save(imaging.New(10, 10, color.White), path); err != nil {
		t.Fatalf("failed to save test image: %v", err)
	}

	r := dataset.NewImageRenderer(4)
	tensor, err := r.LoadTensor(path, false)
	if err != nil {
		t.Fatalf("LoadTensor failed: %v", err)
	}
	if len(tensor) != 16 {
		t.Fatalf("tensor has %d values, want 16", len(tensor))
	}
	for i, v := range tensor {
		if v < 0.99 {
			t.Fatalf("white image pixel %d = %g, want 1", i, v)
		}
	}
}

func TestTensorizeImage_Normalization(t *testing.T) {
	white := imaging.New(2, 2, color.White)

	plain := dataset.TensorizeImage(white, 2, 0, 1)
	if plain[0] != 1 {
		t.Fatalf("identity normalization = %g, want 1", plain[0])
	}

	shifted := dataset.TensorizeImage(white, 2, 0.5, 2)
	if math.Abs(float64(shifted[0]-0.25)) > 1e-6 {
		t.Errorf("normalized pixel = %g, want (1-0.5)/2 = 0.25", shifted[0])
	}
}

func TestStrokeRenderer_NormalizationFields(t *testing.T) {
	r := dataset.NewStrokeRenderer(4)
	if r.Mean != 0 || r.Stdev != 1 {
		t.Fatalf("default normalization = (%g, %g), want (0, 1)", r.Mean, r.Stdev)
	}
}

func TestImageRenderer_RejectsStrokes(t *testing.T) {
	r := dataset.NewImageRenderer(4)
	if _, err := r.Render(dataset.Drawing{{X: []int{0}, Y: []int{0}}}, false); err == nil {
		t.Fatal("expected an error for stroke input")
	}
}

func TestImageRenderer_LoadMissing(t *testing.T) {
	r := dataset.NewImageRenderer(4)
	if _, err := r.LoadTensor(filepath.Join(t.TempDir(), "nope.png"), false); err == nil {
		t.Fatal("expected an error for a missing image")
	}
}
