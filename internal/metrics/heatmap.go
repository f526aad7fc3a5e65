package metrics

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/lucasb-eyer/go-colorful"
)

const heatmapCell = 4

// WriteHeatmap renders the row-normalized confusion matrix as a PNG:
// one cell per (true, predicted) pair, cold-to-warm gradient over the
// confusion rate.
func WriteHeatmap(rates [][]float64, path string) error {
	k := len(rates)
	if k == 0 {
		return fmt.Errorf("empty confusion matrix")
	}

	cold := colorful.Color{R: 0.05, G: 0.05, B: 0.25}
	warm := colorful.Color{R: 1.0, G: 0.85, B: 0.1}

	img := image.NewRGBA(image.Rect(0, 0, k*heatmapCell, k*heatmapCell))
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			v := rates[i][j]
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			c := cold.BlendLuv(warm, v).Clamped()
			r, g, b := c.RGB255()
			for dy := 0; dy < heatmapCell; dy++ {
				for dx := 0; dx < heatmapCell; dx++ {
					off := img.PixOffset(j*heatmapCell+dx, i*heatmapCell+dy)
					img.Pix[off] = r
					img.Pix[off+1] = g
					img.Pix[off+2] = b
					img.Pix[off+3] = 255
				}
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create heatmap file: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode heatmap: %w", err)
	}
	return nil
}
