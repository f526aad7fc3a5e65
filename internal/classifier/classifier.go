package classifier

import (
	"math"
	"sort"
)

// Classifier maps a batch of input tensors to one probability
// distribution over categories per sample. Implementations must be
// safe for concurrent Predict calls unless documented otherwise.
type Classifier interface {
	Predict(batch [][]float32) ([][]float32, error)
	NumCategories() int
}

// Prediction pairs a sample with its softmax output and the derived
// top-k ranking.
type Prediction struct {
	KeyID    string
	Category int // true category, -1 when unlabeled
	Probs    []float32
	TopK     []int
}

// Softmax returns the numerically stable softmax of logits.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	probs := make([]float32, len(logits))
	for i, v := range logits {
		e := math.Exp(float64(v - max))
		probs[i] = float32(e)
		sum += e
	}
	for i := range probs {
		probs[i] = float32(float64(probs[i]) / sum)
	}
	return probs
}

// TopK returns the indices of the k largest probabilities in
// descending order, truncated to the number of categories.
func TopK(probs []float32, k int) []int {
	if k > len(probs) {
		k = len(probs)
	}
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return probs[idx[i]] > probs[idx[j]]
	})
	return idx[:k]
}
