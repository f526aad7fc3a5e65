package dataset

import (
	"math"
	"math/rand"
)

// StratifiedSplit partitions samples into train and validation sets,
// preserving the per-category proportions. The shuffle is seeded so a
// given (samples, seed) pair always produces the same split. A category
// with at least two samples always keeps at least one in train.
func StratifiedSplit(samples []Sample, valFraction float64, seed int64) (train, val []Sample) {
	if valFraction <= 0 {
		return samples, nil
	}
	if valFraction >= 1 {
		return nil, samples
	}

	byCategory := make(map[int][]int)
	for i, s := range samples {
		byCategory[s.Category] = append(byCategory[s.Category], i)
	}

	// Deterministic order over categories, then shuffle within each.
	maxCat := -1
	for c := range byCategory {
		if c > maxCat {
			maxCat = c
		}
	}
	rng := rand.New(rand.NewSource(seed))

	for c := 0; c <= maxCat; c++ {
		group, ok := byCategory[c]
		if !ok {
			continue
		}
		rng.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})

		nVal := int(math.Round(valFraction * float64(len(group))))
		if nVal >= len(group) && len(group) >= 2 {
			nVal = len(group) - 1
		}
		for i, idx := range group {
			if i < nVal {
				val = append(val, samples[idx])
			} else {
				train = append(train, samples[idx])
			}
		}
	}
	return train, val
}
