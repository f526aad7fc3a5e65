// Package eval runs a trained classifier over labeled or unlabeled
// samples and derives the quality report: ranking metrics, confusion
// matrix, ambiguous predictions and confusion sets.
package eval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"doodleclass/internal/classifier"
	"doodleclass/internal/dataset"
	"doodleclass/internal/metrics"
)

type Options struct {
	BatchSize   int
	Parallelism int
	// TTA averages predictions over the plain and the mirrored
	// rendering of each drawing.
	TTA       bool
	TopK      int
	Closeness float64
}

type Evaluator struct {
	model    classifier.Classifier
	renderer dataset.Renderer
	opts     Options
}

// Report is the outcome of evaluating labeled samples.
type Report struct {
	Samples     int
	MAP3        float64
	Acc1        float64
	Acc3        float64
	Acc5        float64
	Acc10       float64
	Confusion   *metrics.Confusion
	Predictions []classifier.Prediction
	Ambiguous   []classifier.Prediction
}

func New(model classifier.Classifier, renderer dataset.Renderer, opts Options) *Evaluator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 128
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	return &Evaluator{model: model, renderer: renderer, opts: opts}
}

// Evaluate scores labeled samples. Samples with a category outside the
// model's range fail the confusion bookkeeping and abort the run.
func (e *Evaluator) Evaluate(ctx context.Context, samples []dataset.Sample) (*Report, error) {
	preds, err := e.predict(ctx, samples)
	if err != nil {
		return nil, err
	}

	k := e.model.NumCategories()
	confusion := metrics.NewConfusion(k)
	probs := make([][]float32, len(preds))
	labels := make([]int, len(preds))
	var ambiguous []classifier.Prediction
	for i, p := range preds {
		probs[i] = p.Probs
		labels[i] = p.Category
		if err := confusion.Add(p.Category, p.TopK[0]); err != nil {
			return nil, err
		}
		if metrics.Ambiguous(p.Probs, e.opts.Closeness) {
			ambiguous = append(ambiguous, p)
		}
	}

	return &Report{
		Samples:     len(preds),
		MAP3:        metrics.MAPK(probs, labels, e.opts.TopK),
		Acc1:        metrics.AccuracyTopK(probs, labels, 1),
		Acc3:        metrics.AccuracyTopK(probs, labels, 3),
		Acc5:        metrics.AccuracyTopK(probs, labels, 5),
		Acc10:       metrics.AccuracyTopK(probs, labels, 10),
		Confusion:   confusion,
		Predictions: preds,
		Ambiguous:   ambiguous,
	}, nil
}

// Predict scores samples without assuming labels; Prediction.Category
// carries whatever the sample had (-1 when unlabeled).
func (e *Evaluator) Predict(ctx context.Context, samples []dataset.Sample) ([]classifier.Prediction, error) {
	return e.predict(ctx, samples)
}

func (e *Evaluator) predict(ctx context.Context, samples []dataset.Sample) ([]classifier.Prediction, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	preds := make([]classifier.Prediction, len(samples))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)

	for start := 0; start < len(samples); start += e.opts.BatchSize {
		end := start + e.opts.BatchSize
		if end > len(samples) {
			end = len(samples)
		}
		start, end := start, end
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return e.predictChunk(samples[start:end], preds[start:end])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return preds, nil
}

func (e *Evaluator) predictChunk(samples []dataset.Sample, out []classifier.Prediction) error {
	images := make([][]float32, len(samples))
	for i, s := range samples {
		img, err := e.renderer.Render(s.Drawing, false)
		if err != nil {
			return fmt.Errorf("failed to render sample %q: %w", s.KeyID, err)
		}
		images[i] = img
	}
	probs, err := e.model.Predict(images)
	if err != nil {
		return err
	}

	if e.opts.TTA {
		flipped := make([][]float32, len(samples))
		for i, s := range samples {
			img, err := e.renderer.Render(s.Drawing, true)
			if err != nil {
				return fmt.Errorf("failed to render sample %q: %w", s.KeyID, err)
			}
			flipped[i] = img
		}
		flippedProbs, err := e.model.Predict(flipped)
		if err != nil {
			return err
		}
		for i := range probs {
			for j := range probs[i] {
				probs[i][j] = (probs[i][j] + flippedProbs[i][j]) / 2
			}
		}
	}

	for i, s := range samples {
		out[i] = classifier.Prediction{
			KeyID:    s.KeyID,
			Category: s.Category,
			Probs:    probs[i],
			TopK:     classifier.TopK(probs[i], e.opts.TopK),
		}
	}
	return nil
}
