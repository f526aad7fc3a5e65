// Package config loads the pipeline configuration from a YAML file
// layered over the built-in training defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Data     Data     `yaml:"data"`
	Model    Model    `yaml:"model"`
	Training Training `yaml:"training"`
	Eval     Eval     `yaml:"eval"`
}

type Data struct {
	CategoriesFile      string   `yaml:"categories_file"`
	ExcludedCategories  []string `yaml:"excluded_categories"`
	ValFraction         float64  `yaml:"val_fraction"`
	MaxPerCategory      int      `yaml:"max_per_category"`
	TrainOnUnrecognized bool     `yaml:"train_on_unrecognized"`
	Seed                int64    `yaml:"seed"`
}

type Model struct {
	ImageSize int   `yaml:"image_size"`
	Hidden    []int `yaml:"hidden"`
}

type Training struct {
	Epochs           int     `yaml:"epochs"`
	BatchSize        int     `yaml:"batch_size"`
	Optimizer        string  `yaml:"optimizer"`
	Scheduler        string  `yaml:"scheduler"`
	LRMin            float64 `yaml:"lr_min"`
	LRMax            float64 `yaml:"lr_max"`
	LRMinDecay       float64 `yaml:"lr_min_decay"`
	LRMaxDecay       float64 `yaml:"lr_max_decay"`
	CycleEpochs      int     `yaml:"cycle_epochs"`
	CycleMult        float64 `yaml:"cycle_mult"`
	CycleEndPatience int     `yaml:"cycle_end_patience"`
	MaxCycles        int     `yaml:"max_cycles"`
	Loss             string  `yaml:"loss"`
	Loss2            string  `yaml:"loss2"`
	Loss2StartCycle  int     `yaml:"loss2_start_cycle"`
	Patience         int     `yaml:"patience"`
	EvalTrainMAPK    bool    `yaml:"eval_train_mapk"`
	OutputDir        string  `yaml:"output_dir"`
}

type Eval struct {
	TopK         int     `yaml:"top_k"`
	TTA          bool    `yaml:"tta"`
	Closeness    float64 `yaml:"closeness"`
	EnsembleSize int     `yaml:"ensemble_size"`
	Parallelism  int     `yaml:"parallelism"`
}

func Default() Config {
	return Config{
		Data: Data{
			ValFraction:         0.1,
			TrainOnUnrecognized: true,
			Seed:                42,
		},
		Model: Model{
			ImageSize: 64,
			Hidden:    []int{512, 256},
		},
		Training: Training{
			Epochs:           500,
			BatchSize:        128,
			Optimizer:        "sgd",
			Scheduler:        "cosine",
			LRMin:            0.01,
			LRMax:            0.1,
			LRMinDecay:       1.0,
			LRMaxDecay:       1.0,
			CycleEpochs:      5,
			CycleMult:        1.0,
			CycleEndPatience: 1,
			Loss:             "cce",
			Patience:         5,
			EvalTrainMAPK:    true,
			OutputDir:        "artifacts",
		},
		Eval: Eval{
			TopK:         3,
			TTA:          true,
			Closeness:    0.1,
			EnsembleSize: 3,
			Parallelism:  4,
		},
	}
}

// Load reads path into a Config on top of the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Data.ValFraction <= 0 || c.Data.ValFraction >= 1 {
		return fmt.Errorf("val_fraction must be in (0, 1), got %g", c.Data.ValFraction)
	}
	if c.Model.ImageSize <= 0 {
		return fmt.Errorf("image_size must be positive, got %d", c.Model.ImageSize)
	}
	if c.Training.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.Training.BatchSize)
	}
	if c.Training.LRMin > c.Training.LRMax {
		return fmt.Errorf("lr_min %g exceeds lr_max %g", c.Training.LRMin, c.Training.LRMax)
	}
	switch c.Training.Scheduler {
	case "cosine", "plateau":
	default:
		return fmt.Errorf("unsupported scheduler %q", c.Training.Scheduler)
	}
	return nil
}
