// Package onnx runs inference over classifiers exported to ONNX, for
// backbones trained outside this pipeline. The graph file is paired
// with a JSON metadata sidecar describing classes and input shape.
package onnx

import (
	"encoding/json"
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"

	"doodleclass/internal/classifier"
)

type Metadata struct {
	InputShape  []int64  `json:"input_shape"` // per-sample shape, e.g. [1, 64, 64]
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
	RawSoftmax  bool     `json:"outputs_probabilities,omitempty"`
}

type Model struct {
	session      *ort.AdvancedSession
	meta         Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// New loads an ONNX graph and its metadata sidecar. The session is
// built with batch-of-one tensors; Predict iterates the batch.
func New(modelPath, metadataPath string) (*Model, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(metaFile, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse model metadata: %w", err)
	}
	if len(meta.Classes) == 0 {
		return nil, fmt.Errorf("model metadata lists no classes")
	}
	if meta.InputName == "" {
		meta.InputName = "input"
	}
	if meta.OutputName == "" {
		meta.OutputName = "output"
	}

	inputShape := ort.NewShape(append([]int64{1}, meta.InputShape...)...)
	outputShape := ort.NewShape(1, int64(len(meta.Classes)))

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Model{
		session:      session,
		meta:         meta,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (m *Model) Categories() []string { return m.meta.Classes }

func (m *Model) NumCategories() int { return len(m.meta.Classes) }

func (m *Model) ImageSize() int { return m.meta.ImageSize }

// Predict runs each sample through the session. The session tensors
// are reused, so Predict is not safe for concurrent use.
func (m *Model) Predict(batch [][]float32) ([][]float32, error) {
	expected := len(m.inputTensor.GetData())
	probs := make([][]float32, len(batch))
	for i, sample := range batch {
		if len(sample) != expected {
			return nil, fmt.Errorf("sample %d: expected %d values, got %d", i, expected, len(sample))
		}
		copy(m.inputTensor.GetData(), sample)
		if err := m.session.Run(); err != nil {
			return nil, fmt.Errorf("inference failed: %w", err)
		}
		out := make([]float32, len(m.meta.Classes))
		copy(out, m.outputTensor.GetData())
		if m.meta.RawSoftmax {
			probs[i] = out
		} else {
			probs[i] = classifier.Softmax(out)
		}
	}
	return probs, nil
}

func (m *Model) Close() {
	if m.inputTensor != nil {
		m.inputTensor.Destroy()
	}
	if m.outputTensor != nil {
		m.outputTensor.Destroy()
	}
	if m.session != nil {
		m.session.Destroy()
	}
	ort.DestroyEnvironment()
}
