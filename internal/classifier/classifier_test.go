package classifier_test

import (
	"math"
	"testing"

	"doodleclass/internal/classifier"
)

func TestSoftmax(t *testing.T) {
	probs := classifier.Softmax([]float32{1, 2, 3})

	var sum float64
	for _, p := range probs {
		sum += float64(p)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("probabilities sum to %f, want 1", sum)
	}
	if !(probs[2] > probs[1] && probs[1] > probs[0]) {
		t.Errorf("softmax did not preserve ordering: %v", probs)
	}
}

func TestSoftmax_LargeLogits(t *testing.T) {
	probs := classifier.Softmax([]float32{1000, 1000, 0})
	for i, p := range probs {
		if math.IsNaN(float64(p)) || math.IsInf(float64(p), 0) {
			t.Fatalf("probs[%d] is not finite: %v", i, p)
		}
	}
	if math.Abs(float64(probs[0]-probs[1])) > 1e-6 {
		t.Errorf("equal logits got unequal probabilities: %v", probs)
	}
}

func TestTopK(t *testing.T) {
	probs := []float32{0.1, 0.5, 0.2, 0.15, 0.05}

	top := classifier.TopK(probs, 3)
	want := []int{1, 2, 3}
	for i := range want {
		if top[i] != want[i] {
			t.Fatalf("TopK = %v, want %v", top, want)
		}
	}
}

func TestTopK_Truncates(t *testing.T) {
	if got := classifier.TopK([]float32{0.6, 0.4}, 5); len(got) != 2 {
		t.Errorf("TopK returned %d indices, want 2", len(got))
	}
}
