package dataset

import (
	"fmt"
	"math/rand"
)

// Batch is one minibatch of rendered samples. Indices point back into
// the batcher's sample slice.
type Batch struct {
	Images  [][]float32
	Labels  []int
	Indices []int
}

// Batcher iterates minibatches over a sample slice, rendering drawings
// lazily per batch. The usual loop is:
//
//	b.Reset()
//	for b.Scan() {
//	    batch, err := b.Batch()
//	    ...
//	}
type Batcher struct {
	samples   []Sample
	renderer  Renderer
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	order     []int
	pos       int
	end       int
}

// NewBatcher builds a batcher over samples. A batch size below 1 is
// clamped to 1 so Scan always makes progress.
func NewBatcher(samples []Sample, renderer Renderer, batchSize int, shuffle bool, seed int64) *Batcher {
	if batchSize < 1 {
		batchSize = 1
	}
	b := &Batcher{
		samples:   samples,
		renderer:  renderer,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
		order:     make([]int, len(samples)),
	}
	for i := range b.order {
		b.order[i] = i
	}
	b.Reset()
	return b
}

// Reset rewinds the batcher and reshuffles the sample order when
// shuffling is enabled.
func (b *Batcher) Reset() {
	if b.shuffle {
		b.rng.Shuffle(len(b.order), func(i, j int) {
			b.order[i], b.order[j] = b.order[j], b.order[i]
		})
	}
	b.pos = 0
	b.end = 0
}

// Scan advances to the next minibatch window. It returns false when
// all samples have been consumed.
func (b *Batcher) Scan() bool {
	b.pos = b.end
	if b.pos >= len(b.order) {
		return false
	}
	b.end = b.pos + b.batchSize
	if b.end > len(b.order) {
		b.end = len(b.order)
	}
	return true
}

// Batch renders and returns the current minibatch.
func (b *Batcher) Batch() (*Batch, error) {
	n := b.end - b.pos
	batch := &Batch{
		Images:  make([][]float32, 0, n),
		Labels:  make([]int, 0, n),
		Indices: make([]int, 0, n),
	}
	for _, idx := range b.order[b.pos:b.end] {
		s := b.samples[idx]
		img, err := b.renderer.Render(s.Drawing, false)
		if err != nil {
			return nil, fmt.Errorf("failed to render sample %q: %w", s.KeyID, err)
		}
		batch.Images = append(batch.Images, img)
		batch.Labels = append(batch.Labels, s.Category)
		batch.Indices = append(batch.Indices, idx)
	}
	return batch, nil
}

// NumBatches reports how many minibatches one full pass produces.
func (b *Batcher) NumBatches() int {
	if b.batchSize <= 0 {
		return 0
	}
	return (len(b.samples) + b.batchSize - 1) / b.batchSize
}
