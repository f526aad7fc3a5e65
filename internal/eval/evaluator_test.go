package eval_test

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"

	"doodleclass/internal/classifier"
	"doodleclass/internal/dataset"
	"doodleclass/internal/eval"
)

// keyRenderer encodes the stroke count into the tensor; negated when
// mirrored so TTA behavior is observable.
type keyRenderer struct{}

func (keyRenderer) Size() int { return 1 }

func (keyRenderer) Render(d dataset.Drawing, flip bool) ([]float32, error) {
	v := float32(len(d))
	if flip {
		v = -v
	}
	return []float32{v}, nil
}

// lookupClassifier returns the distribution registered for the tensor's
// first value.
type lookupClassifier struct {
	k     int
	table map[float32][]float32
}

func (c *lookupClassifier) NumCategories() int { return c.k }

func (c *lookupClassifier) Predict(batch [][]float32) ([][]float32, error) {
	out := make([][]float32, len(batch))
	for i, sample := range batch {
		probs, ok := c.table[sample[0]]
		if !ok {
			probs = make([]float32, c.k)
			probs[0] = 1
		}
		out[i] = append([]float32(nil), probs...)
	}
	return out, nil
}

func evalSamples(categories []int) []dataset.Sample {
	samples := make([]dataset.Sample, len(categories))
	for i, c := range categories {
		samples[i] = dataset.Sample{
			KeyID:    string(rune('a' + i)),
			Drawing:  make(dataset.Drawing, c+1),
			Category: c,
		}
	}
	return samples
}

func TestEvaluator_Evaluate(t *testing.T) {
	// Stroke counts 1..3 map back to their category, except category 2
	// which the model mistakes for 0.
	model := &lookupClassifier{k: 3, table: map[float32][]float32{
		1: {0.9, 0.05, 0.05},
		2: {0.1, 0.8, 0.1},
		3: {0.7, 0.1, 0.2},
	}}
	samples := evalSamples([]int{0, 1, 2})

	report, err := eval.New(model, keyRenderer{}, eval.Options{
		BatchSize: 2, Parallelism: 2, TopK: 3, Closeness: 0.05,
	}).Evaluate(context.Background(), samples)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if report.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", report.Samples)
	}
	if math.Abs(report.Acc1-2.0/3) > 1e-9 {
		t.Errorf("Acc1 = %g, want 2/3", report.Acc1)
	}
	if math.Abs(report.Acc3-1) > 1e-9 {
		t.Errorf("Acc3 = %g, want 1", report.Acc3)
	}
	// Ranks 1, 1, 2 -> (1 + 1 + 0.5) / 3.
	if want := 2.5 / 3; math.Abs(report.MAP3-want) > 1e-9 {
		t.Errorf("MAP3 = %g, want %g", report.MAP3, want)
	}

	if got := report.Confusion.Counts[2][0]; got != 1 {
		t.Errorf("confusion[2][0] = %d, want 1", got)
	}
	if len(report.Predictions) != 3 {
		t.Errorf("got %d predictions, want 3", len(report.Predictions))
	}
	// Predictions stay aligned with the input order despite the
	// parallel batches.
	if report.Predictions[1].KeyID != "b" {
		t.Errorf("Predictions[1].KeyID = %q, want \"b\"", report.Predictions[1].KeyID)
	}
}

func TestEvaluator_AmbiguousDetection(t *testing.T) {
	model := &lookupClassifier{k: 3, table: map[float32][]float32{
		1: {0.34, 0.33, 0.33}, // too close to call
		2: {0.05, 0.9, 0.05},
	}}
	samples := evalSamples([]int{0, 1})

	report, err := eval.New(model, keyRenderer{}, eval.Options{
		TopK: 3, Closeness: 0.1,
	}).Evaluate(context.Background(), samples)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(report.Ambiguous) != 1 {
		t.Fatalf("got %d ambiguous predictions, want 1", len(report.Ambiguous))
	}
	if report.Ambiguous[0].KeyID != "a" {
		t.Errorf("ambiguous sample = %q, want \"a\"", report.Ambiguous[0].KeyID)
	}
}

func TestEvaluator_TTAAverages(t *testing.T) {
	// The plain rendering says category 0, the mirrored one category 1;
	// the average must sit exactly between.
	model := &lookupClassifier{k: 2, table: map[float32][]float32{
		1:  {1, 0},
		-1: {0, 1},
	}}
	samples := evalSamples([]int{0})

	preds, err := eval.New(model, keyRenderer{}, eval.Options{
		TTA: true, TopK: 2,
	}).Predict(context.Background(), samples)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if math.Abs(float64(preds[0].Probs[0]-0.5)) > 1e-6 {
		t.Errorf("TTA probs = %v, want [0.5 0.5]", preds[0].Probs)
	}
}

func TestEvaluator_EmptyInput(t *testing.T) {
	model := &lookupClassifier{k: 2, table: nil}
	preds, err := eval.New(model, keyRenderer{}, eval.Options{}).Predict(context.Background(), nil)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(preds) != 0 {
		t.Errorf("got %d predictions for empty input", len(preds))
	}
}

func TestWriteSubmission(t *testing.T) {
	preds := []classifier.Prediction{
		{KeyID: "101", TopK: []int{2, 0, 1}},
		{KeyID: "102", TopK: []int{1}},
	}
	categories := []string{"hot dog", "cat", "house"}

	path := filepath.Join(t.TempDir(), "submission.csv")
	if err := eval.WriteSubmission(path, preds, categories); err != nil {
		t.Fatalf("WriteSubmission failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("submission missing: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse submission: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[0][0] != "key_id" || rows[0][1] != "word" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[1][1] != "house hot_dog cat" {
		t.Errorf("row 1 words = %q, want \"house hot_dog cat\"", rows[1][1])
	}
	if rows[2][1] != "cat" {
		t.Errorf("row 2 words = %q, want \"cat\"", rows[2][1])
	}
}

func TestWriteSubmission_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "submission.csv")
	if err := eval.WriteSubmission(path, nil, nil); err != nil {
		t.Fatalf("WriteSubmission failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("submission missing: %v", err)
	}
	if string(data) != "key_id,word\n" {
		t.Errorf("empty submission = %q, want header only", string(data))
	}
}

func TestWriteSubmission_UnknownCategory(t *testing.T) {
	preds := []classifier.Prediction{{KeyID: "1", TopK: []int{5}}}
	path := filepath.Join(t.TempDir(), "submission.csv")
	if err := eval.WriteSubmission(path, preds, []string{"cat"}); err == nil {
		t.Fatal("expected an error for an out-of-range category index")
	}
}
