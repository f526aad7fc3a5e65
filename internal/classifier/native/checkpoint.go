package native

import (
	"encoding/gob"
	"fmt"
	"os"

	"doodleclass/internal/logger"
)

type checkpointLayer struct {
	In, Out int
	W, B    []float32
	// Batch-norm state, nil on the output layer.
	Gamma, Beta, RunMean, RunVar []float32
}

type checkpointState struct {
	Config     Config
	Categories []string
	Layers     []checkpointLayer
}

// Save writes the network weights, batch-norm statistics and category
// list to a gob checkpoint file.
func Save(path string, n *Network, categories []string) error {
	logger.Debug("saving checkpoint to %s", path)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer f.Close()

	state := checkpointState{Config: n.cfg, Categories: categories}
	for _, l := range n.layers {
		cl := checkpointLayer{In: l.in, Out: l.out, W: l.w, B: l.b}
		if l.bn != nil {
			cl.Gamma = l.bn.gamma
			cl.Beta = l.bn.beta
			cl.RunMean = l.bn.runMean
			cl.RunVar = l.bn.runVar
		}
		state.Layers = append(state.Layers, cl)
	}
	if err := gob.NewEncoder(f).Encode(state); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return nil
}

// Load reconstructs a network and its category list from a checkpoint.
func Load(path string) (*Network, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer f.Close()

	var state checkpointState
	if err := gob.NewDecoder(f).Decode(&state); err != nil {
		return nil, nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if state.Config.NumCategories != len(state.Categories) {
		return nil, nil, fmt.Errorf("checkpoint lists %d categories but config expects %d",
			len(state.Categories), state.Config.NumCategories)
	}

	n, err := New(state.Config)
	if err != nil {
		return nil, nil, err
	}
	if len(state.Layers) != len(n.layers) {
		return nil, nil, fmt.Errorf("checkpoint has %d layers, network expects %d",
			len(state.Layers), len(n.layers))
	}
	for i, cl := range state.Layers {
		l := n.layers[i]
		if cl.In != l.in || cl.Out != l.out {
			return nil, nil, fmt.Errorf("layer %d shape mismatch: checkpoint %dx%d, network %dx%d",
				i, cl.Out, cl.In, l.out, l.in)
		}
		copy(l.w, cl.W)
		copy(l.b, cl.B)
		if l.bn != nil {
			copy(l.bn.gamma, cl.Gamma)
			copy(l.bn.beta, cl.Beta)
			copy(l.bn.runMean, cl.RunMean)
			copy(l.bn.runVar, cl.RunVar)
		}
	}
	return n, state.Categories, nil
}
