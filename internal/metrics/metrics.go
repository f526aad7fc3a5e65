// Package metrics provides the evaluator diagnostics: top-k accuracy,
// MAP@k, the confusion matrix with per-category precision/recall,
// ambiguity detection and confusion-set clustering.
package metrics

import (
	"fmt"
	"sort"

	"doodleclass/internal/classifier"
)

// AccuracyTopK is the fraction of samples whose true label appears in
// the k highest scores. Scores may be logits or probabilities; only
// the ranking matters.
func AccuracyTopK(scores [][]float32, labels []int, k int) float64 {
	if len(scores) == 0 {
		return 0
	}
	hits := 0
	for i, s := range scores {
		for _, c := range classifier.TopK(s, k) {
			if c == labels[i] {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(scores))
}

// MAPK is the mean average precision at k for single-label data: each
// sample contributes 1/rank when its true label ranks within the top
// k, and 0 otherwise.
func MAPK(scores [][]float32, labels []int, k int) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for i, s := range scores {
		for rank, c := range classifier.TopK(s, k) {
			if c == labels[i] {
				sum += 1 / float64(rank+1)
				break
			}
		}
	}
	return sum / float64(len(scores))
}

// Confusion is a K x K count table: Counts[i][j] is the number of
// samples of true category i predicted as category j. Row sums equal
// the per-category true sample counts.
type Confusion struct {
	K      int
	Counts [][]int64
}

func NewConfusion(k int) *Confusion {
	counts := make([][]int64, k)
	for i := range counts {
		counts[i] = make([]int64, k)
	}
	return &Confusion{K: k, Counts: counts}
}

func (c *Confusion) Add(trueCat, predCat int) error {
	if trueCat < 0 || trueCat >= c.K || predCat < 0 || predCat >= c.K {
		return fmt.Errorf("category out of range: true=%d pred=%d k=%d", trueCat, predCat, c.K)
	}
	c.Counts[trueCat][predCat]++
	return nil
}

// Rates returns the row-normalized matrix: Rates[i][j] is the fraction
// of true-i samples predicted as j. Rows with no samples stay zero.
func (c *Confusion) Rates() [][]float64 {
	rates := make([][]float64, c.K)
	for i := range rates {
		rates[i] = make([]float64, c.K)
		var total int64
		for _, v := range c.Counts[i] {
			total += v
		}
		if total == 0 {
			continue
		}
		for j, v := range c.Counts[i] {
			rates[i][j] = float64(v) / float64(total)
		}
	}
	return rates
}

// Precision returns per-category precision: of all samples predicted
// as category j, the fraction that were truly j. Categories never
// predicted get NaN-free 0.
func (c *Confusion) Precision() []float64 {
	precision := make([]float64, c.K)
	for j := 0; j < c.K; j++ {
		var predicted int64
		for i := 0; i < c.K; i++ {
			predicted += c.Counts[i][j]
		}
		if predicted > 0 {
			precision[j] = float64(c.Counts[j][j]) / float64(predicted)
		}
	}
	return precision
}

// Recall returns per-category recall: of all truly-j samples, the
// fraction predicted as j.
func (c *Confusion) Recall() []float64 {
	recall := make([]float64, c.K)
	for i := 0; i < c.K; i++ {
		var total int64
		for _, v := range c.Counts[i] {
			total += v
		}
		if total > 0 {
			recall[i] = float64(c.Counts[i][i]) / float64(total)
		}
	}
	return recall
}

// Percentiles evaluates the q-quantiles (0..steps inclusive) of the
// given values, used for the per-category precision breakdown.
func Percentiles(values []float64, steps int) []float64 {
	if len(values) == 0 || steps < 1 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	out := make([]float64, steps+1)
	for i := 0; i <= steps; i++ {
		pos := float64(i) / float64(steps) * float64(len(sorted)-1)
		lo := int(pos)
		hi := lo
		if lo+1 < len(sorted) {
			hi = lo + 1
		}
		frac := pos - float64(lo)
		out[i] = sorted[lo]*(1-frac) + sorted[hi]*frac
	}
	return out
}

// SortedByValue returns category indices ordered by ascending value,
// used to list the weakest categories first.
func SortedByValue(values []float64) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return values[idx[i]] < values[idx[j]]
	})
	return idx
}
