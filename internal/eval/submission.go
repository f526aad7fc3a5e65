package eval

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"doodleclass/internal/classifier"
)

// WriteSubmission writes predictions as a two-column CSV: the sample
// key and its top ranked category words, space separated, with spaces
// inside a word replaced by underscores.
func WriteSubmission(path string, preds []classifier.Prediction, categories []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create submission file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"key_id", "word"}); err != nil {
		return err
	}
	for _, p := range preds {
		words := make([]string, 0, len(p.TopK))
		for _, c := range p.TopK {
			if c < 0 || c >= len(categories) {
				return fmt.Errorf("prediction for %q references unknown category %d", p.KeyID, c)
			}
			words = append(words, strings.ReplaceAll(categories[c], " ", "_"))
		}
		if err := w.Write([]string{p.KeyID, strings.Join(words, " ")}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
