package eval_test

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"doodleclass/internal/classifier/native"
	"doodleclass/internal/eval"
	"doodleclass/internal/metrics"
)

func analysisReport(t *testing.T) *eval.Report {
	t.Helper()
	confusion := metrics.NewConfusion(3)
	pairs := [][2]int{
		{0, 0}, {0, 0}, {0, 1},
		{1, 0}, {1, 1}, {1, 1},
		{2, 2}, {2, 2}, {2, 2},
	}
	for _, p := range pairs {
		if err := confusion.Add(p[0], p[1]); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	return &eval.Report{Samples: 9, Confusion: confusion}
}

func TestAnalyze(t *testing.T) {
	a := eval.Analyze(analysisReport(t), 0.2, 4)

	if len(a.Precision) != 3 || len(a.Recall) != 3 {
		t.Fatalf("unexpected breakdown sizes: %d, %d", len(a.Precision), len(a.Recall))
	}
	if len(a.PrecisionPercentiles) != 11 {
		t.Errorf("got %d percentiles, want 11", len(a.PrecisionPercentiles))
	}
	if a.Precision[2] != 1 {
		t.Errorf("precision[2] = %g, want 1", a.Precision[2])
	}

	// Categories 0 and 1 swap samples; 2 is clean.
	if len(a.ConfusionSets) != 1 {
		t.Fatalf("got %d confusion sets, want 1", len(a.ConfusionSets))
	}
	set := a.ConfusionSets[0].Categories
	if len(set) != 2 || set[0] != 0 || set[1] != 1 {
		t.Errorf("confusion set = %v, want [0 1]", set)
	}

	// The weakest category comes first.
	if a.WeakestCategories[2] != 2 {
		t.Errorf("weakest order = %v, expected category 2 last", a.WeakestCategories)
	}
}

func TestWriteArtifacts(t *testing.T) {
	report := analysisReport(t)
	a := eval.Analyze(report, 0.2, 4)
	dir := filepath.Join(t.TempDir(), "artifacts")

	if err := eval.WriteArtifacts(report, a, []string{"cat", "dog", "fish"}, dir); err != nil {
		t.Fatalf("WriteArtifacts failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "confusion.png")); err != nil {
		t.Errorf("heatmap missing: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "categories.csv"))
	if err != nil {
		t.Fatalf("category CSV missing: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse category CSV: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}
	if rows[3][0] != "fish" || rows[3][1] != "1.0000" {
		t.Errorf("unexpected fish row: %v", rows[3])
	}
}

func TestSelectEnsemble(t *testing.T) {
	dir := t.TempDir()
	members, categories, err := seedCheckpoints(t, dir)
	if err != nil {
		t.Fatalf("seeding checkpoints failed: %v", err)
	}
	if len(categories) != 2 {
		t.Fatalf("got %d categories, want 2", len(categories))
	}

	model, err := eval.SelectEnsemble(context.Background(), members, keyRenderer{}, nil, eval.Options{TopK: 3}, 0)
	if err != nil {
		t.Fatalf("SelectEnsemble failed: %v", err)
	}
	if model.NumCategories() != 2 {
		t.Errorf("ensemble has %d categories, want 2", model.NumCategories())
	}

	single, err := eval.SelectEnsemble(context.Background(), members, keyRenderer{}, nil, eval.Options{TopK: 3}, 1)
	if err != nil {
		t.Fatalf("SelectEnsemble size 1 failed: %v", err)
	}
	probs, err := single.Predict([][]float32{{1}})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(probs) != 1 || len(probs[0]) != 2 {
		t.Errorf("unexpected prediction shape: %v", probs)
	}
}

// biasedNetwork builds a 1-pixel network whose output bias forces
// category target regardless of the input.
func biasedNetwork(t *testing.T, target int) *native.Network {
	t.Helper()
	net, err := native.New(native.Config{ImageSize: 1, NumCategories: 2})
	if err != nil {
		t.Fatalf("native.New failed: %v", err)
	}
	params := net.Parameters()
	for i := range params[0].Data {
		params[0].Data[i] = 0
	}
	params[1].Data[target] = 10
	return net
}

func TestSelectEnsemble_RankedByMAPK(t *testing.T) {
	// The strongest member comes first, so the latest-cycle fallback
	// would pick a weak one; only MAP@k ranking finds it.
	members := []*native.Network{
		biasedNetwork(t, 0),
		biasedNetwork(t, 1),
		biasedNetwork(t, 1),
	}
	ranking := evalSamples([]int{0, 0, 0, 0})

	model, err := eval.SelectEnsemble(context.Background(), members, keyRenderer{}, ranking, eval.Options{TopK: 3}, 1)
	if err != nil {
		t.Fatalf("SelectEnsemble failed: %v", err)
	}
	probs, err := model.Predict([][]float32{{1}})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if probs[0][0] <= probs[0][1] {
		t.Errorf("ranked selection kept a weak member: probs = %v", probs[0])
	}
}
