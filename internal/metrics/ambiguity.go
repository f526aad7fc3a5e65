package metrics

import (
	"doodleclass/internal/classifier"
)

// Ambiguous reports whether a prediction is too close to call: the gap
// between the highest and the third-highest softmax score is strictly
// below closeness. Distributions with fewer than 3 categories are
// never ambiguous.
func Ambiguous(probs []float32, closeness float64) bool {
	if len(probs) < 3 {
		return false
	}
	top := classifier.TopK(probs, 3)
	gap := float64(probs[top[0]] - probs[top[2]])
	return gap < closeness
}

// ConfusionSet is a group of categories the model mutually mistakes
// for each other.
type ConfusionSet struct {
	Categories []int
	// MeanOffDiagonal is the average off-diagonal confusion rate of
	// the member categories.
	MeanOffDiagonal float64
}

// ConfusionSets greedily clusters categories from the row-normalized
// confusion matrix. The symmetric confusability of (i, j) is
// rates[i][j]+rates[j][i]; sets grow from the most-confused unassigned
// pair, adding the category with the highest total confusability to
// the current set, until no candidate reaches minRate or the set hits
// maxSize.
func ConfusionSets(rates [][]float64, minRate float64, maxSize int) []ConfusionSet {
	k := len(rates)
	if maxSize < 2 {
		maxSize = 2
	}
	assigned := make([]bool, k)
	pairScore := func(i, j int) float64 {
		return rates[i][j] + rates[j][i]
	}

	var sets []ConfusionSet
	for {
		// Seed: best unassigned pair.
		bi, bj, best := -1, -1, 0.0
		for i := 0; i < k; i++ {
			if assigned[i] {
				continue
			}
			for j := i + 1; j < k; j++ {
				if assigned[j] {
					continue
				}
				if s := pairScore(i, j); s > best {
					bi, bj, best = i, j, s
				}
			}
		}
		if bi < 0 || best < minRate {
			break
		}

		members := []int{bi, bj}
		assigned[bi], assigned[bj] = true, true
		for len(members) < maxSize {
			cand, candScore := -1, 0.0
			for c := 0; c < k; c++ {
				if assigned[c] {
					continue
				}
				var total float64
				for _, m := range members {
					total += pairScore(c, m)
				}
				if total > candScore {
					cand, candScore = c, total
				}
			}
			if cand < 0 || candScore < minRate {
				break
			}
			members = append(members, cand)
			assigned[cand] = true
		}

		sets = append(sets, ConfusionSet{
			Categories:      members,
			MeanOffDiagonal: meanOffDiagonal(rates, members),
		})
	}
	return sets
}

func meanOffDiagonal(rates [][]float64, members []int) float64 {
	if len(members) == 0 {
		return 0
	}
	var sum float64
	for _, c := range members {
		for j, v := range rates[c] {
			if j != c {
				sum += v
			}
		}
	}
	return sum / float64(len(members))
}
