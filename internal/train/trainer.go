// Package train drives the optimization loop: SGDR cycles of
// cosine-annealed SGD, two-phase loss switching, checkpointing of the
// best weights and early stopping on validation MAP@3.
package train

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"doodleclass/internal/classifier/native"
	"doodleclass/internal/dataset"
	"doodleclass/internal/logger"
	"doodleclass/internal/metrics"
	"doodleclass/internal/store"
)

type Config struct {
	Epochs    int
	BatchSize int
	ImageSize int
	Hidden    []int

	Optimizer string // sgd|adam
	Scheduler string // cosine|plateau
	LRMin     float64
	LRMax     float64
	// Per-cycle decay of the LR window (1.0 = none).
	LRMinDecay float64
	LRMaxDecay float64

	CycleEpochs      int
	CycleMult        float64
	CycleEndPatience int
	MaxCycles        int

	Loss            string // cce|topk
	Loss2           string // optional second-phase loss
	Loss2StartCycle int
	TopK            int

	Patience      int
	EvalTrainMAPK bool
	Seed          int64
	OutputDir     string
}

type Result struct {
	RunID          int64
	BestMAP3       float64
	BestCheckpoint string
	// Per-cycle best checkpoints, ensemble candidates.
	CycleCheckpoints []string
	EpochsTrained    int
}

type Trainer struct {
	cfg        Config
	net        *native.Network
	renderer   dataset.Renderer
	categories []string
	runs       store.RunStore // nil disables run recording
}

func New(cfg Config, net *native.Network, renderer dataset.Renderer, categories []string, runs store.RunStore) *Trainer {
	return &Trainer{cfg: cfg, net: net, renderer: renderer, categories: categories, runs: runs}
}

func (t *Trainer) Run(trainSamples, valSamples []dataset.Sample) (*Result, error) {
	cfg := t.cfg
	if len(trainSamples) == 0 {
		return nil, fmt.Errorf("no training samples")
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	criterion, err := NewCriterion(cfg.Loss, cfg.TopK)
	if err != nil {
		return nil, err
	}
	opt, err := NewOptimizer(cfg.Optimizer, cfg.LRMax)
	if err != nil {
		return nil, err
	}

	// Validation drawings are rendered once up front; weights change,
	// inputs do not.
	valImages, valLabels, err := t.renderAll(valSamples)
	if err != nil {
		return nil, err
	}

	var runID int64
	if t.runs != nil {
		params, _ := json.Marshal(cfg)
		runID, err = t.runs.CreateRun("native", string(params))
		if err != nil {
			return nil, err
		}
	}

	logger.Info("training on %d samples, validating on %d, %d categories",
		len(trainSamples), len(valSamples), len(t.categories))

	result := &Result{RunID: runID, BestMAP3: math.Inf(-1)}
	batcher := dataset.NewBatcher(trainSamples, t.renderer, cfg.BatchSize, true, cfg.Seed)
	epochIters := batcher.NumBatches()

	sched := CosineAnnealing{LRMin: cfg.LRMin, LRMax: cfg.LRMax, CycleEpochs: float64(cfg.CycleEpochs)}
	plateau := NewPlateau(cfg.LRMin)

	cycleEpochs := cfg.CycleEpochs
	nextCycleEnd := cycleEpochs
	cycleIterations := 0
	cycle := 0
	cycleIdx := 0
	cycleBest := math.Inf(-1)
	lastImprove := 0
	lr := cfg.LRMax

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		epochStart := time.Now()

		batcher.Reset()
		var trainLossSum float64
		var trainMAPKSum float64
		batches := 0
		for batcher.Scan() {
			batch, err := batcher.Batch()
			if err != nil {
				return nil, err
			}

			if cfg.Scheduler == "cosine" {
				pos := math.Min(float64(cycleEpochs), float64(cycleIterations)/float64(epochIters))
				lr = sched.LR(pos)
			}
			opt.SetLR(lr)

			logits, caches, err := t.net.ForwardTrain(batch.Images)
			if err != nil {
				return nil, err
			}
			loss, dlogits := criterion.Loss(logits, batch.Labels)
			t.net.Backward(caches, dlogits)
			opt.Step(t.net.Parameters())
			t.net.ZeroGrad()

			trainLossSum += float64(loss)
			if cfg.EvalTrainMAPK {
				trainMAPKSum += metrics.MAPK(logits, batch.Labels, cfg.TopK)
			}
			cycleIterations++
			batches++
		}
		trainLoss := trainLossSum / float64(batches)
		trainMAPK := trainMAPKSum / float64(batches)

		val, err := t.validate(valImages, valLabels, criterion)
		if err != nil {
			return nil, err
		}

		if cfg.Scheduler == "plateau" {
			lr = plateau.Step(val.map3, lr)
		}

		// Best within the current SGDR cycle becomes an ensemble
		// candidate; global best is the final model.
		ckptSaved := false
		if val.map3 > cycleBest {
			cycleBest = val.map3
			path := filepath.Join(cfg.OutputDir, fmt.Sprintf("model-%d.gob", cycleIdx))
			if err := native.Save(path, t.net, t.categories); err != nil {
				return nil, err
			}
			if len(result.CycleCheckpoints) == cycleIdx {
				result.CycleCheckpoints = append(result.CycleCheckpoints, path)
			}
		}
		if val.map3 > result.BestMAP3 {
			result.BestMAP3 = val.map3
			result.BestCheckpoint = filepath.Join(cfg.OutputDir, "model.gob")
			if err := native.Save(result.BestCheckpoint, t.net, t.categories); err != nil {
				return nil, err
			}
			lastImprove = epoch
			ckptSaved = true
		}

		cycleReset := false
		if cfg.Scheduler == "cosine" && epoch+1 >= nextCycleEnd && epoch-lastImprove >= cfg.CycleEndPatience {
			cycle++
			cycleIdx++
			cycleIterations = 0
			cycleEpochs = int(float64(cycleEpochs) * cfg.CycleMult)
			if cycleEpochs < 1 {
				cycleEpochs = 1
			}
			nextCycleEnd = epoch + 1 + cycleEpochs
			cycleBest = math.Inf(-1)
			cycleReset = true

			lrMin := cfg.LRMin * math.Pow(cfg.LRMinDecay, float64(cycle))
			lrMax := cfg.LRMax * math.Pow(cfg.LRMaxDecay, float64(cycle))
			sched = CosineAnnealing{LRMin: lrMin, LRMax: lrMax, CycleEpochs: float64(cycleEpochs)}
			opt, err = NewOptimizer(cfg.Optimizer, lrMax)
			if err != nil {
				return nil, err
			}

			if cfg.Loss2 != "" && cycle >= cfg.Loss2StartCycle && criterion.Name() != cfg.Loss2 {
				logger.Info("switching to loss type %q", cfg.Loss2)
				criterion, err = NewCriterion(cfg.Loss2, cfg.TopK)
				if err != nil {
					return nil, err
				}
			}
		}

		duration := time.Since(epochStart)
		logger.Info("[%03d/%03d] %s, lr: %.6f, loss: %.4f, val_loss: %.4f, mapk: %.4f, val_mapk: %.4f, ckpt: %d, rst: %d",
			epoch+1, cfg.Epochs, duration.Round(time.Millisecond), opt.LR(),
			trainLoss, val.loss, trainMAPK, val.map3, boolToInt(ckptSaved), boolToInt(cycleReset))

		if t.runs != nil {
			err := t.runs.SaveEpoch(store.EpochMetrics{
				RunID:           runID,
				Epoch:           epoch + 1,
				Cycle:           cycle,
				TrainLoss:       trainLoss,
				ValLoss:         val.loss,
				ValMAP3:         val.map3,
				ValAcc1:         val.acc1,
				ValAcc3:         val.acc3,
				ValAcc5:         val.acc5,
				ValAcc10:        val.acc10,
				LR:              opt.LR(),
				Duration:        duration,
				CheckpointSaved: ckptSaved,
			})
			if err != nil {
				logger.Warn("failed to record epoch metrics: %v", err)
			}
		}

		result.EpochsTrained = epoch + 1

		if (cycleReset || cfg.Scheduler == "plateau") && epoch-lastImprove >= cfg.Patience {
			logger.Info("early stop: no improvement for %d epochs", epoch-lastImprove)
			break
		}
		if cfg.MaxCycles > 0 && cycle >= cfg.MaxCycles {
			logger.Info("early stop: reached %d cycles", cycle)
			break
		}
	}

	if t.runs != nil {
		if err := t.runs.CompleteRun(runID, "done", result.BestMAP3, result.BestCheckpoint); err != nil {
			logger.Warn("failed to complete run record: %v", err)
		}
	}
	return result, nil
}

type valMetrics struct {
	loss  float64
	map3  float64
	acc1  float64
	acc3  float64
	acc5  float64
	acc10 float64
}

func (t *Trainer) validate(images [][]float32, labels []int, criterion Criterion) (valMetrics, error) {
	if len(images) == 0 {
		return valMetrics{}, nil
	}
	var v valMetrics
	var lossSum float64
	batches := 0
	allLogits := make([][]float32, 0, len(images))
	for start := 0; start < len(images); start += t.cfg.BatchSize {
		end := start + t.cfg.BatchSize
		if end > len(images) {
			end = len(images)
		}
		logits, err := t.net.Forward(images[start:end])
		if err != nil {
			return v, fmt.Errorf("validation forward failed: %w", err)
		}
		loss, _ := criterion.Loss(logits, labels[start:end])
		lossSum += float64(loss)
		batches++
		allLogits = append(allLogits, logits...)
	}
	v.loss = lossSum / float64(batches)
	v.map3 = metrics.MAPK(allLogits, labels, t.cfg.TopK)
	v.acc1 = metrics.AccuracyTopK(allLogits, labels, 1)
	v.acc3 = metrics.AccuracyTopK(allLogits, labels, 3)
	v.acc5 = metrics.AccuracyTopK(allLogits, labels, 5)
	v.acc10 = metrics.AccuracyTopK(allLogits, labels, 10)
	return v, nil
}

func (t *Trainer) renderAll(samples []dataset.Sample) ([][]float32, []int, error) {
	images := make([][]float32, 0, len(samples))
	labels := make([]int, 0, len(samples))
	for _, s := range samples {
		img, err := t.renderer.Render(s.Drawing, false)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to render sample %q: %w", s.KeyID, err)
		}
		images = append(images, img)
		labels = append(labels, s.Category)
	}
	return images, labels, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
