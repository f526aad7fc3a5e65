package eval

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"doodleclass/internal/metrics"
)

// Analysis is the confusion breakdown derived from a Report.
type Analysis struct {
	// PrecisionPercentiles holds the 0..100 percentiles of per-category
	// precision in steps of 10.
	PrecisionPercentiles []float64
	// WeakestCategories lists category indices by ascending precision.
	WeakestCategories []int
	Precision         []float64
	Recall            []float64
	ConfusionSets     []metrics.ConfusionSet
}

// Analyze derives the per-category precision spread and the groups of
// mutually confused categories from an evaluation report.
func Analyze(r *Report, minConfusionRate float64, maxSetSize int) *Analysis {
	precision := r.Confusion.Precision()
	return &Analysis{
		PrecisionPercentiles: metrics.Percentiles(precision, 10),
		WeakestCategories:    metrics.SortedByValue(precision),
		Precision:            precision,
		Recall:               r.Confusion.Recall(),
		ConfusionSets:        metrics.ConfusionSets(r.Confusion.Rates(), minConfusionRate, maxSetSize),
	}
}

// WriteArtifacts writes the confusion heatmap PNG and the per-category
// breakdown CSV into dir.
func WriteArtifacts(r *Report, a *Analysis, categories []string, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}
	if err := metrics.WriteHeatmap(r.Confusion.Rates(), filepath.Join(dir, "confusion.png")); err != nil {
		return err
	}
	return writeCategoryCSV(filepath.Join(dir, "categories.csv"), a, categories)
}

func writeCategoryCSV(path string, a *Analysis, categories []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create category report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"category", "precision", "recall"}); err != nil {
		return err
	}
	for i, name := range categories {
		record := []string{
			name,
			strconv.FormatFloat(a.Precision[i], 'f', 4, 64),
			strconv.FormatFloat(a.Recall[i], 'f', 4, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
