package cmd

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"doodleclass/internal/classifier/native"
	"doodleclass/internal/config"
	"doodleclass/internal/dataset"
	"doodleclass/internal/logger"
	"doodleclass/internal/store"
	"doodleclass/internal/train"
)

func NewTrainCmd(db *sql.DB) *cobra.Command {
	var configPath string
	var categoriesFile string
	var outputDir string
	var epochs int
	var maxPerCategory int
	var imageSize int
	var batchSize int
	var valFraction float64
	var recognizedOnly bool
	var lrMin, lrMax float64
	var loss2 string
	var loss2StartCycle int

	cmd := &cobra.Command{
		Use:   "train [flags] <data.ndjson>...",
		Short: "Train a classifier on simplified drawing files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if categoriesFile != "" {
				cfg.Data.CategoriesFile = categoriesFile
			}
			if outputDir != "" {
				cfg.Training.OutputDir = outputDir
			}
			if epochs > 0 {
				cfg.Training.Epochs = epochs
			}
			if maxPerCategory > 0 {
				cfg.Data.MaxPerCategory = maxPerCategory
			}
			if imageSize > 0 {
				cfg.Model.ImageSize = imageSize
			}
			if batchSize > 0 {
				cfg.Training.BatchSize = batchSize
			}
			if valFraction > 0 {
				cfg.Data.ValFraction = valFraction
			}
			if recognizedOnly {
				cfg.Data.TrainOnUnrecognized = false
			}
			if lrMin > 0 {
				cfg.Training.LRMin = lrMin
			}
			if lrMax > 0 {
				cfg.Training.LRMax = lrMax
			}
			if loss2 != "" {
				cfg.Training.Loss2 = loss2
			}
			if loss2StartCycle > 0 {
				cfg.Training.Loss2StartCycle = loss2StartCycle
			}
			if cfg.Data.CategoriesFile == "" {
				return fmt.Errorf("a categories file is required (--categories or config)")
			}

			categories, err := dataset.ReadCategories(cfg.Data.CategoriesFile, cfg.Data.ExcludedCategories)
			if err != nil {
				return err
			}
			samples, err := dataset.LoadLabeled(args, categories, cfg.Data.ExcludedCategories,
				dataset.LoadOptions{MaxPerCategory: cfg.Data.MaxPerCategory})
			if err != nil {
				return err
			}
			logger.Info("loaded %d samples across %d categories", len(samples), len(categories))

			trainSamples, valSamples := dataset.StratifiedSplit(samples, cfg.Data.ValFraction, cfg.Data.Seed)
			if !cfg.Data.TrainOnUnrecognized {
				trainSamples = dataset.FilterRecognized(trainSamples)
			}

			net, err := native.New(native.Config{
				ImageSize:     cfg.Model.ImageSize,
				Hidden:        cfg.Model.Hidden,
				NumCategories: len(categories),
				Seed:          cfg.Data.Seed,
			})
			if err != nil {
				return err
			}

			trainer := train.New(train.Config{
				Epochs:           cfg.Training.Epochs,
				BatchSize:        cfg.Training.BatchSize,
				ImageSize:        cfg.Model.ImageSize,
				Hidden:           cfg.Model.Hidden,
				Optimizer:        cfg.Training.Optimizer,
				Scheduler:        cfg.Training.Scheduler,
				LRMin:            cfg.Training.LRMin,
				LRMax:            cfg.Training.LRMax,
				LRMinDecay:       cfg.Training.LRMinDecay,
				LRMaxDecay:       cfg.Training.LRMaxDecay,
				CycleEpochs:      cfg.Training.CycleEpochs,
				CycleMult:        cfg.Training.CycleMult,
				CycleEndPatience: cfg.Training.CycleEndPatience,
				MaxCycles:        cfg.Training.MaxCycles,
				Loss:             cfg.Training.Loss,
				Loss2:            cfg.Training.Loss2,
				Loss2StartCycle:  cfg.Training.Loss2StartCycle,
				TopK:             cfg.Eval.TopK,
				Patience:         cfg.Training.Patience,
				EvalTrainMAPK:    cfg.Training.EvalTrainMAPK,
				Seed:             cfg.Data.Seed,
				OutputDir:        cfg.Training.OutputDir,
			}, net, dataset.NewStrokeRenderer(cfg.Model.ImageSize), categories, store.NewSQLRunStore(db))

			result, err := trainer.Run(trainSamples, valSamples)
			if err != nil {
				return err
			}

			fmt.Printf("🏁 Training finished (run %d)\n", result.RunID)
			fmt.Printf("Epochs: %d\n", result.EpochsTrained)
			fmt.Printf("Best val MAP@%d: %.4f\n", cfg.Eval.TopK, result.BestMAP3)
			fmt.Printf("Checkpoint: %s\n", result.BestCheckpoint)
			for _, p := range result.CycleCheckpoints {
				fmt.Printf("  cycle checkpoint: %s\n", p)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&categoriesFile, "categories", "", "path to the category list, one name per line")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory for checkpoints (overrides config)")
	cmd.Flags().IntVar(&epochs, "epochs", 0, "override the number of epochs")
	cmd.Flags().IntVar(&maxPerCategory, "max-per-category", 0, "cap samples loaded per category")
	cmd.Flags().IntVar(&imageSize, "image-size", 0, "override the model input size")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "override the minibatch size")
	cmd.Flags().Float64Var(&valFraction, "val-fraction", 0, "override the validation split fraction")
	cmd.Flags().BoolVar(&recognizedOnly, "recognized-only", false, "train only on samples with the recognized flag set")
	cmd.Flags().Float64Var(&lrMin, "lr-min", 0, "override the minimum learning rate")
	cmd.Flags().Float64Var(&lrMax, "lr-max", 0, "override the maximum learning rate")
	cmd.Flags().StringVar(&loss2, "loss2", "", "second-phase loss type (e.g. topk)")
	cmd.Flags().IntVar(&loss2StartCycle, "loss2-start-cycle", 0, "cycle at which the second-phase loss takes over")

	return cmd
}
