package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
)

// Stroke is one pen-down segment of a drawing: parallel x/y coordinate
// slices in the 0-255 canvas space of the simplified QuickDraw format.
type Stroke struct {
	X []int
	Y []int
}

type Drawing []Stroke

// Sample is one labeled (or unlabeled) drawing. Samples are immutable
// after load.
type Sample struct {
	KeyID      string
	Drawing    Drawing
	Category   int // index into the category list, -1 when unlabeled
	Recognized bool
}

type LoadOptions struct {
	// MaxPerCategory caps the number of samples kept per category.
	// 0 means unlimited.
	MaxPerCategory int
}

// rawRecord mirrors one line of a simplified QuickDraw NDJSON file.
type rawRecord struct {
	KeyID      string     `json:"key_id"`
	Word       string     `json:"word"`
	Recognized bool       `json:"recognized"`
	Drawing    [][2][]int `json:"drawing"`
}

const maxLineBytes = 4 << 20

// ReadCategories loads the category list, one name per line, skipping
// blanks and any name present in exclude. The resulting order defines
// the label indices for the whole pipeline.
func ReadCategories(path string, exclude []string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open categories file: %w", err)
	}
	defer f.Close()

	var categories []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" || slices.Contains(exclude, name) {
			continue
		}
		categories = append(categories, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read categories file: %w", err)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("no categories found in %s", path)
	}
	return categories, nil
}

// LoadLabeled reads labeled samples from the given NDJSON files. Every
// record's word must resolve to a known category; an unknown word is an
// error, not a skip. Records whose word was excluded from the category
// list are dropped silently.
func LoadLabeled(paths []string, categories []string, excluded []string, opts LoadOptions) ([]Sample, error) {
	index := make(map[string]int, len(categories))
	for i, c := range categories {
		index[c] = i
	}

	perCategory := make([]int, len(categories))
	var samples []Sample

	for _, path := range paths {
		err := scanNDJSON(path, func(rec rawRecord) error {
			cat, ok := index[rec.Word]
			if !ok {
				if slices.Contains(excluded, rec.Word) {
					return nil
				}
				return fmt.Errorf("unknown category %q in %s", rec.Word, path)
			}
			if opts.MaxPerCategory > 0 && perCategory[cat] >= opts.MaxPerCategory {
				return nil
			}
			perCategory[cat]++
			samples = append(samples, Sample{
				KeyID:      rec.KeyID,
				Drawing:    toDrawing(rec.Drawing),
				Category:   cat,
				Recognized: rec.Recognized,
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return samples, nil
}

// LoadUnlabeled reads test samples (key_id + drawing, no word).
func LoadUnlabeled(paths []string) ([]Sample, error) {
	var samples []Sample
	for _, path := range paths {
		err := scanNDJSON(path, func(rec rawRecord) error {
			samples = append(samples, Sample{
				KeyID:    rec.KeyID,
				Drawing:  toDrawing(rec.Drawing),
				Category: -1,
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return samples, nil
}

// FilterRecognized keeps only samples whose label quality flag is set.
// Applied to the training split only; validation keeps all samples.
func FilterRecognized(samples []Sample) []Sample {
	var kept []Sample
	for _, s := range samples {
		if s.Recognized {
			kept = append(kept, s)
		}
	}
	return kept
}

func scanNDJSON(path string, fn func(rawRecord) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec rawRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return fmt.Errorf("%s:%d: failed to decode drawing record: %w", path, line, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

func toDrawing(raw [][2][]int) Drawing {
	d := make(Drawing, 0, len(raw))
	for _, s := range raw {
		d = append(d, Stroke{X: s[0], Y: s[1]})
	}
	return d
}
