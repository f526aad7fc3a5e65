// Package ensemble averages the softmax outputs of several
// classifiers, typically the best checkpoints of one training run.
package ensemble

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"doodleclass/internal/classifier"
)

type Ensemble struct {
	members []classifier.Classifier
}

func New(members ...classifier.Classifier) (*Ensemble, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("ensemble needs at least one member")
	}
	k := members[0].NumCategories()
	for i, m := range members[1:] {
		if m.NumCategories() != k {
			return nil, fmt.Errorf("member %d has %d categories, expected %d", i+1, m.NumCategories(), k)
		}
	}
	return &Ensemble{members: members}, nil
}

func (e *Ensemble) NumCategories() int { return e.members[0].NumCategories() }

func (e *Ensemble) Size() int { return len(e.members) }

// Predict fans the batch out to every member and averages the
// resulting distributions. Each member runs in its own goroutine; a
// member itself is only ever called from one goroutine at a time.
func (e *Ensemble) Predict(batch [][]float32) ([][]float32, error) {
	k := e.NumCategories()
	sums := make([][]float32, len(batch))
	for i := range sums {
		sums[i] = make([]float32, k)
	}
	var mu sync.Mutex

	var g errgroup.Group
	for _, m := range e.members {
		member := m
		g.Go(func() error {
			probs, err := member.Predict(batch)
			if err != nil {
				return err
			}
			mu.Lock()
			for i, p := range probs {
				for j, v := range p {
					sums[i][j] += v
				}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scale := float32(1) / float32(len(e.members))
	for i := range sums {
		for j := range sums[i] {
			sums[i][j] *= scale
		}
	}
	return sums, nil
}
