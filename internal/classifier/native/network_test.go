package native_test

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"doodleclass/internal/classifier/native"
)

// crossEntropy computes the mean loss and dlogits for the gradient
// checks below.
func crossEntropy(logits [][]float32, labels []int) (float64, [][]float32) {
	B := len(logits)
	grads := make([][]float32, B)
	var total float64
	for b, s := range logits {
		max := s[0]
		for _, v := range s[1:] {
			if v > max {
				max = v
			}
		}
		var sumExp float64
		for _, v := range s {
			sumExp += math.Exp(float64(v - max))
		}
		total += float64(max) + math.Log(sumExp) - float64(s[labels[b]])

		g := make([]float32, len(s))
		for j, v := range s {
			g[j] = float32(math.Exp(float64(v-max))/sumExp) / float32(B)
		}
		g[labels[b]] -= 1 / float32(B)
		grads[b] = g
	}
	return total / float64(B), grads
}

func randomBatch(rng *rand.Rand, n, dim, classes int) ([][]float32, []int) {
	batch := make([][]float32, n)
	labels := make([]int, n)
	for i := range batch {
		batch[i] = make([]float32, dim)
		for j := range batch[i] {
			batch[i][j] = float32(rng.NormFloat64())
		}
		labels[i] = rng.Intn(classes)
	}
	return batch, labels
}

func TestNetwork_GradientCheck(t *testing.T) {
	net, err := native.New(native.Config{ImageSize: 2, Hidden: []int{5}, NumCategories: 3, Seed: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rng := rand.New(rand.NewSource(2))
	batch, labels := randomBatch(rng, 8, 4, 3)

	lossAt := func() float64 {
		logits, _, err := net.ForwardTrain(batch)
		if err != nil {
			t.Fatalf("ForwardTrain failed: %v", err)
		}
		loss, _ := crossEntropy(logits, labels)
		return loss
	}

	net.ZeroGrad()
	logits, caches, err := net.ForwardTrain(batch)
	if err != nil {
		t.Fatalf("ForwardTrain failed: %v", err)
	}
	_, dlogits := crossEntropy(logits, labels)
	net.Backward(caches, dlogits)

	const eps = 1e-3
	const tolerance = 2e-2
	checked := 0
	for pi, p := range net.Parameters() {
		// Spot-check a few entries per tensor.
		for _, j := range []int{0, len(p.Data) / 2, len(p.Data) - 1} {
			orig := p.Data[j]
			p.Data[j] = orig + eps
			plus := lossAt()
			p.Data[j] = orig - eps
			minus := lossAt()
			p.Data[j] = orig

			numeric := (plus - minus) / (2 * eps)
			analytic := float64(p.Grad[j])
			if diff := math.Abs(numeric - analytic); diff > tolerance && diff > tolerance*math.Abs(numeric) {
				t.Errorf("param %d[%d]: analytic %g vs numeric %g", pi, j, analytic, numeric)
			}
			checked++
		}
	}
	if checked == 0 {
		t.Fatal("no parameters checked")
	}
}

func TestNetwork_LearnsTinyDataset(t *testing.T) {
	net, err := native.New(native.Config{ImageSize: 2, Hidden: []int{8}, NumCategories: 2, Seed: 3})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Linearly separable: class 0 has positive inputs, class 1 negative.
	batch := [][]float32{
		{1, 1, 1, 1}, {0.8, 1.2, 0.9, 1.1},
		{-1, -1, -1, -1}, {-0.9, -1.1, -1.2, -0.8},
	}
	labels := []int{0, 0, 1, 1}

	var first, last float64
	for step := 0; step < 200; step++ {
		net.ZeroGrad()
		logits, caches, err := net.ForwardTrain(batch)
		if err != nil {
			t.Fatalf("ForwardTrain failed: %v", err)
		}
		loss, dlogits := crossEntropy(logits, labels)
		if step == 0 {
			first = loss
		}
		last = loss
		net.Backward(caches, dlogits)
		for _, p := range net.Parameters() {
			for i := range p.Data {
				p.Data[i] -= 0.1 * p.Grad[i]
			}
		}
	}
	if last >= first {
		t.Fatalf("loss did not decrease: first %g, last %g", first, last)
	}
	if last > 0.1 {
		t.Errorf("loss %g still high after training", last)
	}

	probs, err := net.Predict(batch)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	for i, p := range probs {
		best := 0
		if p[1] > p[0] {
			best = 1
		}
		if best != labels[i] {
			t.Errorf("sample %d predicted %d, want %d (probs %v)", i, best, labels[i], p)
		}
	}
}

func TestNetwork_BatchSizeMismatch(t *testing.T) {
	net, err := native.New(native.Config{ImageSize: 2, NumCategories: 2, Seed: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := net.Forward([][]float32{{1, 2, 3}}); err == nil {
		t.Fatal("expected an error for a wrong-sized sample")
	}
}

func TestCheckpoint_Roundtrip(t *testing.T) {
	net, err := native.New(native.Config{ImageSize: 2, Hidden: []int{4}, NumCategories: 3, Seed: 5})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	categories := []string{"cat", "dog", "fish"}

	rng := rand.New(rand.NewSource(6))
	batch, _ := randomBatch(rng, 3, 4, 3)
	want, err := net.Predict(batch)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.gob")
	if err := native.Save(path, net, categories); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, loadedCats, err := native.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loadedCats) != 3 || loadedCats[1] != "dog" {
		t.Errorf("unexpected categories: %v", loadedCats)
	}

	got, err := loaded.Predict(batch)
	if err != nil {
		t.Fatalf("Predict on loaded network failed: %v", err)
	}
	for i := range want {
		for j := range want[i] {
			if math.Abs(float64(want[i][j]-got[i][j])) > 1e-6 {
				t.Fatalf("prediction %d[%d] differs: %g vs %g", i, j, want[i][j], got[i][j])
			}
		}
	}
}

func TestCheckpoint_LoadMissing(t *testing.T) {
	if _, _, err := native.Load(filepath.Join(t.TempDir(), "nope.gob")); err == nil {
		t.Fatal("expected an error for a missing checkpoint")
	}
}
