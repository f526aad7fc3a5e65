package ensemble_test

import (
	"errors"
	"math"
	"testing"

	"doodleclass/internal/classifier"
	"doodleclass/internal/classifier/ensemble"
)

type fixedClassifier struct {
	probs []float32
	k     int
	err   error
}

func (f *fixedClassifier) NumCategories() int { return f.k }

func (f *fixedClassifier) Predict(batch [][]float32) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(batch))
	for i := range out {
		out[i] = append([]float32(nil), f.probs...)
	}
	return out, nil
}

var _ classifier.Classifier = (*fixedClassifier)(nil)

func TestEnsemble_AveragesMembers(t *testing.T) {
	e, err := ensemble.New(
		&fixedClassifier{probs: []float32{0.8, 0.2}, k: 2},
		&fixedClassifier{probs: []float32{0.4, 0.6}, k: 2},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if e.Size() != 2 {
		t.Fatalf("Size = %d, want 2", e.Size())
	}

	probs, err := e.Predict([][]float32{{0}, {0}})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(probs) != 2 {
		t.Fatalf("got %d rows, want 2", len(probs))
	}
	want := []float32{0.6, 0.4}
	for j := range want {
		if math.Abs(float64(probs[0][j]-want[j])) > 1e-6 {
			t.Errorf("probs[0][%d] = %g, want %g", j, probs[0][j], want[j])
		}
	}
}

func TestEnsemble_RejectsMismatchedMembers(t *testing.T) {
	_, err := ensemble.New(
		&fixedClassifier{probs: []float32{1}, k: 1},
		&fixedClassifier{probs: []float32{0.5, 0.5}, k: 2},
	)
	if err == nil {
		t.Fatal("expected an error for mismatched category counts")
	}
}

func TestEnsemble_RejectsEmpty(t *testing.T) {
	if _, err := ensemble.New(); err == nil {
		t.Fatal("expected an error for an empty ensemble")
	}
}

func TestEnsemble_PropagatesMemberError(t *testing.T) {
	e, err := ensemble.New(
		&fixedClassifier{probs: []float32{0.5, 0.5}, k: 2},
		&fixedClassifier{k: 2, err: errors.New("member broke")},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := e.Predict([][]float32{{0}}); err == nil {
		t.Fatal("expected the member error to propagate")
	}
}
