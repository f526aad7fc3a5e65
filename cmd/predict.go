package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"doodleclass/internal/classifier"
	"doodleclass/internal/dataset"
	"doodleclass/internal/eval"
	"doodleclass/internal/logger"
)

func NewPredictCmd() *cobra.Command {
	var flags modelFlags
	var outputPath string
	var batchSize int
	var parallelism int
	var topK int
	var tta bool

	cmd := &cobra.Command{
		Use:   "predict [flags] <input>...",
		Short: "Predict categories for unlabeled drawings or image files",
		Long: `Predict categories for new inputs. NDJSON files are read as
simplified drawing records; anything else is decoded as an image file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := eval.Options{
				BatchSize:   batchSize,
				Parallelism: parallelism,
				TTA:         tta,
				TopK:        topK,
			}

			// No labels here, so checkpoint directories fall back to the
			// latest-cycle ensemble members.
			model, err := loadClassifier(ctx, flags, opts, nil)
			if err != nil {
				return err
			}
			if model.close != nil {
				defer model.close()
			}
			if model.serial {
				opts.Parallelism = 1
			}

			var preds []classifier.Prediction
			if strings.HasSuffix(args[0], ".ndjson") {
				samples, err := dataset.LoadUnlabeled(args)
				if err != nil {
					return err
				}
				logger.Info("predicting %d drawings", len(samples))
				renderer := dataset.NewStrokeRenderer(model.imageSize)
				preds, err = eval.New(model.classifier, renderer, opts).Predict(ctx, samples)
				if err != nil {
					return err
				}
			} else {
				preds, err = predictImages(args, model, topK, tta)
				if err != nil {
					return err
				}
			}

			if outputPath != "" {
				if err := eval.WriteSubmission(outputPath, preds, model.categories); err != nil {
					return err
				}
				fmt.Printf("Wrote %d predictions to %s\n", len(preds), outputPath)
				return nil
			}

			for _, p := range preds {
				fmt.Printf("%s:\n", p.KeyID)
				for rank, c := range p.TopK {
					fmt.Printf("  [%d] %-30s %.2f%%\n", rank+1, model.categories[c], p.Probs[c]*100)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "checkpoint file (.gob) or directory of cycle checkpoints")
	cmd.Flags().StringVar(&flags.onnxModel, "onnx", "", "ONNX model file")
	cmd.Flags().StringVar(&flags.onnxMeta, "onnx-meta", "", "JSON metadata sidecar for the ONNX model")
	cmd.Flags().IntVar(&flags.ensembleSize, "ensemble-size", 0, "limit ensemble to the best N cycle checkpoints")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write predictions as a submission CSV instead of printing")
	cmd.Flags().IntVar(&batchSize, "batch-size", 256, "prediction batch size")
	cmd.Flags().IntVar(&parallelism, "parallelism", 4, "concurrent prediction batches")
	cmd.Flags().IntVar(&topK, "top-k", 3, "number of ranked categories per sample")
	cmd.Flags().BoolVar(&tta, "tta", true, "average predictions over mirrored inputs")

	return cmd
}

func predictImages(paths []string, model *loadedModel, topK int, tta bool) ([]classifier.Prediction, error) {
	renderer := dataset.NewImageRenderer(model.imageSize)

	images := make([][]float32, len(paths))
	for i, path := range paths {
		img, err := renderer.LoadTensor(path, false)
		if err != nil {
			return nil, err
		}
		images[i] = img
	}
	probs, err := model.classifier.Predict(images)
	if err != nil {
		return nil, err
	}

	if tta {
		flipped := make([][]float32, len(paths))
		for i, path := range paths {
			img, err := renderer.LoadTensor(path, true)
			if err != nil {
				return nil, err
			}
			flipped[i] = img
		}
		flippedProbs, err := model.classifier.Predict(flipped)
		if err != nil {
			return nil, err
		}
		for i := range probs {
			for j := range probs[i] {
				probs[i][j] = (probs[i][j] + flippedProbs[i][j]) / 2
			}
		}
	}

	preds := make([]classifier.Prediction, len(paths))
	for i, path := range paths {
		preds[i] = classifier.Prediction{
			KeyID:    path,
			Category: -1,
			Probs:    probs[i],
			TopK:     classifier.TopK(probs[i], topK),
		}
	}
	return preds, nil
}
