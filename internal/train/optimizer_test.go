package train_test

import (
	"testing"

	"doodleclass/internal/classifier/native"
	"doodleclass/internal/train"
)

// minimizeQuadratic runs steps of f(x) = x^2 (gradient 2x) and returns
// the final value.
func minimizeQuadratic(opt train.Optimizer, start float32, steps int) float32 {
	p := native.Param{Data: []float32{start}, Grad: []float32{0}}
	params := []native.Param{p}
	for i := 0; i < steps; i++ {
		p.Grad[0] = 2 * p.Data[0]
		opt.Step(params)
	}
	return p.Data[0]
}

func TestSGD_MinimizesQuadratic(t *testing.T) {
	opt, err := train.NewOptimizer("sgd", 0.05)
	if err != nil {
		t.Fatalf("NewOptimizer failed: %v", err)
	}
	final := minimizeQuadratic(opt, 5, 100)
	if final > 0.1 || final < -0.1 {
		t.Errorf("SGD ended at %g, want near 0", final)
	}
}

func TestAdam_MinimizesQuadratic(t *testing.T) {
	opt, err := train.NewOptimizer("adam", 0.1)
	if err != nil {
		t.Fatalf("NewOptimizer failed: %v", err)
	}
	final := minimizeQuadratic(opt, 5, 300)
	if final > 0.1 || final < -0.1 {
		t.Errorf("Adam ended at %g, want near 0", final)
	}
}

func TestOptimizer_SetLR(t *testing.T) {
	opt, _ := train.NewOptimizer("sgd", 0.1)
	opt.SetLR(0.02)
	if opt.LR() != 0.02 {
		t.Errorf("LR = %g, want 0.02", opt.LR())
	}
}

func TestNewOptimizer_Unknown(t *testing.T) {
	if _, err := train.NewOptimizer("lbfgs", 0.1); err == nil {
		t.Fatal("expected an error for an unknown optimizer")
	}
}

func TestSGD_ZeroGradientNoMotionFromRest(t *testing.T) {
	opt, _ := train.NewOptimizer("sgd", 0.1)
	p := native.Param{Data: []float32{0}, Grad: []float32{0}}
	opt.Step([]native.Param{p})
	if p.Data[0] != 0 {
		t.Errorf("parameter moved to %g with zero gradient", p.Data[0])
	}
}
