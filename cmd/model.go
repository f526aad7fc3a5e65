package cmd

import (
	"context"
	"fmt"
	"strings"

	"doodleclass/internal/classifier"
	"doodleclass/internal/classifier/native"
	"doodleclass/internal/classifier/onnx"
	"doodleclass/internal/dataset"
	"doodleclass/internal/eval"
)

type modelFlags struct {
	model        string // checkpoint file or directory of cycle checkpoints
	onnxModel    string
	onnxMeta     string
	ensembleSize int
}

// loadedModel bundles a classifier with everything the commands need
// to drive it.
type loadedModel struct {
	classifier classifier.Classifier
	categories []string
	imageSize  int
	// serial classifiers reuse internal buffers and must not be
	// called from multiple goroutines.
	serial bool
	close  func()
}

// loadClassifier resolves the model flags into a ready classifier.
// rankingFor supplies labeled samples for a given category list; it is
// only called when an ensemble subset has to be picked from a
// checkpoint directory.
func loadClassifier(ctx context.Context, f modelFlags, opts eval.Options, rankingFor func(categories []string) ([]dataset.Sample, error)) (*loadedModel, error) {
	if f.onnxModel != "" {
		if f.onnxMeta == "" {
			return nil, fmt.Errorf("--onnx-meta is required with --onnx")
		}
		m, err := onnx.New(f.onnxModel, f.onnxMeta)
		if err != nil {
			return nil, err
		}
		return &loadedModel{
			classifier: m,
			categories: m.Categories(),
			imageSize:  m.ImageSize(),
			serial:     true,
			close:      m.Close,
		}, nil
	}

	if f.model == "" {
		return nil, fmt.Errorf("a model is required (--model or --onnx)")
	}

	if strings.HasSuffix(f.model, ".gob") {
		net, categories, err := native.Load(f.model)
		if err != nil {
			return nil, err
		}
		return &loadedModel{
			classifier: net,
			categories: categories,
			imageSize:  net.Config().ImageSize,
		}, nil
	}

	// Directory of per-cycle checkpoints.
	members, categories, err := eval.LoadCheckpoints(f.model)
	if err != nil {
		return nil, err
	}
	imageSize := members[0].Config().ImageSize
	renderer := dataset.NewStrokeRenderer(imageSize)
	var ranking []dataset.Sample
	if rankingFor != nil && f.ensembleSize > 0 && f.ensembleSize < len(members) {
		ranking, err = rankingFor(categories)
		if err != nil {
			return nil, err
		}
	}
	model, err := eval.SelectEnsemble(ctx, members, renderer, ranking, opts, f.ensembleSize)
	if err != nil {
		return nil, err
	}
	return &loadedModel{classifier: model, categories: categories, imageSize: imageSize}, nil
}
