package cmd

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"doodleclass/internal/dataset"
	"doodleclass/internal/eval"
	"doodleclass/internal/logger"
	"doodleclass/internal/store"
)

// rankingCap bounds the per-category samples used to score ensemble
// members against each other before the real evaluation pass.
const rankingCap = 64

func NewEvalCmd(db *sql.DB) *cobra.Command {
	var flags modelFlags
	var categoriesFile string
	var outputDir string
	var batchSize int
	var parallelism int
	var topK int
	var closeness float64
	var tta bool
	var showWeakest int
	var confusionMinRate float64

	cmd := &cobra.Command{
		Use:   "eval [flags] <data.ndjson>...",
		Short: "Evaluate a trained model on labeled drawings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := eval.Options{
				BatchSize:   batchSize,
				Parallelism: parallelism,
				TTA:         tta,
				TopK:        topK,
				Closeness:   closeness,
			}

			// Rank cycle checkpoints on a capped slice of the eval data
			// when only the best N of them should form the ensemble.
			rankingFor := func(categories []string) ([]dataset.Sample, error) {
				return dataset.LoadLabeled(args, categories, nil,
					dataset.LoadOptions{MaxPerCategory: rankingCap})
			}
			model, err := loadClassifier(ctx, flags, opts, rankingFor)
			if err != nil {
				return err
			}
			if model.close != nil {
				defer model.close()
			}
			if model.serial {
				opts.Parallelism = 1
			}

			categories := model.categories
			if categoriesFile != "" {
				categories, err = dataset.ReadCategories(categoriesFile, nil)
				if err != nil {
					return err
				}
			}
			if len(categories) != model.classifier.NumCategories() {
				return fmt.Errorf("category list has %d entries, model expects %d",
					len(categories), model.classifier.NumCategories())
			}

			samples, err := dataset.LoadLabeled(args, categories, nil, dataset.LoadOptions{})
			if err != nil {
				return err
			}
			if len(samples) == 0 {
				return fmt.Errorf("no samples found in the given files")
			}
			logger.Info("evaluating %d samples", len(samples))

			renderer := dataset.NewStrokeRenderer(model.imageSize)
			report, err := eval.New(model.classifier, renderer, opts).Evaluate(ctx, samples)
			if err != nil {
				return err
			}
			analysis := eval.Analyze(report, confusionMinRate, 8)

			fmt.Printf("🔎 Evaluation result (%d samples)\n", report.Samples)
			fmt.Printf("MAP@%d:  %.4f\n", topK, report.MAP3)
			fmt.Printf("Top1  Accuracy: %.2f%%\n", report.Acc1*100)
			fmt.Printf("Top3  Accuracy: %.2f%%\n", report.Acc3*100)
			fmt.Printf("Top5  Accuracy: %.2f%%\n", report.Acc5*100)
			fmt.Printf("Top10 Accuracy: %.2f%%\n", report.Acc10*100)
			fmt.Printf("🟡 Ambiguous predictions: %d (gap < %.2f)\n", len(report.Ambiguous), closeness)

			fmt.Println("Precision percentiles (0..100):")
			for i, v := range analysis.PrecisionPercentiles {
				fmt.Printf("  p%-3d %.4f\n", i*10, v)
			}

			if showWeakest > 0 {
				fmt.Printf("🔴 Weakest categories (by precision):\n")
				n := showWeakest
				if n > len(analysis.WeakestCategories) {
					n = len(analysis.WeakestCategories)
				}
				for _, c := range analysis.WeakestCategories[:n] {
					fmt.Printf("  %-30s precision=%.4f recall=%.4f\n",
						categories[c], analysis.Precision[c], analysis.Recall[c])
				}
			}

			if len(analysis.ConfusionSets) > 0 {
				fmt.Println("Confusion sets:")
				for _, set := range analysis.ConfusionSets {
					names := make([]string, 0, len(set.Categories))
					for _, c := range set.Categories {
						names = append(names, categories[c])
					}
					fmt.Printf("  %v (mean off-diagonal %.4f)\n", names, set.MeanOffDiagonal)
				}
			}

			if outputDir != "" {
				if err := eval.WriteArtifacts(report, analysis, categories, outputDir); err != nil {
					return err
				}
				fmt.Printf("Artifacts written to %s\n", outputDir)
			}

			modelName := flags.model
			if flags.onnxModel != "" {
				modelName = flags.onnxModel
			}
			err = store.NewSQLRunStore(db).SaveEvalReport(store.EvalReport{
				Model:     modelName,
				Dataset:   args[0],
				Samples:   report.Samples,
				MAP3:      report.MAP3,
				Acc1:      report.Acc1,
				Acc3:      report.Acc3,
				Acc5:      report.Acc5,
				Acc10:     report.Acc10,
				Ambiguous: len(report.Ambiguous),
			})
			if err != nil {
				logger.Warn("failed to record eval report: %v", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "checkpoint file (.gob) or directory of cycle checkpoints")
	cmd.Flags().StringVar(&flags.onnxModel, "onnx", "", "ONNX model file")
	cmd.Flags().StringVar(&flags.onnxMeta, "onnx-meta", "", "JSON metadata sidecar for the ONNX model")
	cmd.Flags().IntVar(&flags.ensembleSize, "ensemble-size", 0, "limit ensemble to the best N cycle checkpoints")
	cmd.Flags().StringVar(&categoriesFile, "categories", "", "category list overriding the checkpoint's")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory for the heatmap and category CSV")
	cmd.Flags().IntVar(&batchSize, "batch-size", 128, "prediction batch size")
	cmd.Flags().IntVar(&parallelism, "parallelism", 4, "concurrent prediction batches")
	cmd.Flags().IntVar(&topK, "top-k", 3, "ranking depth for MAP@k")
	cmd.Flags().Float64Var(&closeness, "closeness", 0.1, "top1-top3 probability gap below which a prediction is ambiguous")
	cmd.Flags().BoolVar(&tta, "tta", true, "average predictions over mirrored renderings")
	cmd.Flags().IntVar(&showWeakest, "weakest", 10, "number of weakest categories to list")
	cmd.Flags().Float64Var(&confusionMinRate, "confusion-min-rate", 0.1, "minimum mutual confusion rate for confusion sets")

	return cmd
}
