// Package native implements the trainable feed-forward classifier:
// fully-connected layers with batch normalization and ReLU, a softmax
// head, and manual forward/backward passes driven by the trainer.
package native

import (
	"fmt"
	"math"
	"math/rand"

	"doodleclass/internal/classifier"
)

type Config struct {
	ImageSize     int
	Hidden        []int
	NumCategories int
	Seed          int64
}

// Param is one trainable tensor and its accumulated gradient. The
// optimizer mutates Data in place.
type Param struct {
	Data []float32
	Grad []float32
}

type Network struct {
	cfg    Config
	layers []*dense
	params []Param
}

type dense struct {
	in, out int
	w, b    []float32 // w is row-major [out][in]
	gw, gb  []float32
	bn      *batchNorm // nil on the output layer
}

type batchNorm struct {
	gamma, beta     []float32
	gGamma, gBeta   []float32
	runMean, runVar []float32
	momentum        float32
	eps             float32
}

func New(cfg Config) (*Network, error) {
	if cfg.ImageSize <= 0 {
		return nil, fmt.Errorf("invalid image size %d", cfg.ImageSize)
	}
	if cfg.NumCategories < 2 {
		return nil, fmt.Errorf("need at least 2 categories, got %d", cfg.NumCategories)
	}

	dims := []int{cfg.ImageSize * cfg.ImageSize}
	dims = append(dims, cfg.Hidden...)
	dims = append(dims, cfg.NumCategories)

	rng := rand.New(rand.NewSource(cfg.Seed))
	n := &Network{cfg: cfg}
	for l := 0; l+1 < len(dims); l++ {
		d := newDense(dims[l], dims[l+1], rng)
		if l+2 < len(dims) {
			d.bn = newBatchNorm(dims[l+1])
		}
		n.layers = append(n.layers, d)
	}
	n.collectParams()
	return n, nil
}

func newDense(in, out int, rng *rand.Rand) *dense {
	d := &dense{
		in:  in,
		out: out,
		w:   make([]float32, out*in),
		b:   make([]float32, out),
		gw:  make([]float32, out*in),
		gb:  make([]float32, out),
	}
	// He-normal initialization, fan-in mode.
	std := math.Sqrt(2.0 / float64(in))
	for i := range d.w {
		d.w[i] = float32(rng.NormFloat64() * std)
	}
	return d
}

func newBatchNorm(size int) *batchNorm {
	bn := &batchNorm{
		gamma:    make([]float32, size),
		beta:     make([]float32, size),
		gGamma:   make([]float32, size),
		gBeta:    make([]float32, size),
		runMean:  make([]float32, size),
		runVar:   make([]float32, size),
		momentum: 0.1,
		eps:      1e-5,
	}
	for i := range bn.gamma {
		bn.gamma[i] = 1
		bn.runVar[i] = 1
	}
	return bn
}

func (n *Network) collectParams() {
	n.params = n.params[:0]
	for _, l := range n.layers {
		n.params = append(n.params,
			Param{Data: l.w, Grad: l.gw},
			Param{Data: l.b, Grad: l.gb},
		)
		if l.bn != nil {
			n.params = append(n.params,
				Param{Data: l.bn.gamma, Grad: l.bn.gGamma},
				Param{Data: l.bn.beta, Grad: l.bn.gBeta},
			)
		}
	}
}

func (n *Network) Config() Config { return n.cfg }

func (n *Network) NumCategories() int { return n.cfg.NumCategories }

// Parameters returns the stable parameter list. The slice identity is
// preserved across calls so optimizer state stays aligned.
func (n *Network) Parameters() []Param { return n.params }

func (n *Network) ZeroGrad() {
	for _, p := range n.params {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}

// Predict implements classifier.Classifier: inference-mode forward
// pass followed by softmax.
func (n *Network) Predict(batch [][]float32) ([][]float32, error) {
	logits, err := n.Forward(batch)
	if err != nil {
		return nil, err
	}
	probs := make([][]float32, len(logits))
	for i, l := range logits {
		probs[i] = classifier.Softmax(l)
	}
	return probs, nil
}

// Forward runs an inference-mode pass (batch norm uses running
// statistics) and returns raw logits.
func (n *Network) Forward(batch [][]float32) ([][]float32, error) {
	if err := n.checkBatch(batch); err != nil {
		return nil, err
	}
	act := batch
	for _, l := range n.layers {
		z := l.linear(act)
		if l.bn != nil {
			for b := range z {
				for j := 0; j < l.out; j++ {
					bn := l.bn
					xhat := (z[b][j] - bn.runMean[j]) / float32(math.Sqrt(float64(bn.runVar[j]+bn.eps)))
					v := bn.gamma[j]*xhat + bn.beta[j]
					if v < 0 {
						v = 0
					}
					z[b][j] = v
				}
			}
		}
		act = z
	}
	return act, nil
}

// Caches holds the per-layer activations of a training-mode forward
// pass, consumed by Backward.
type Caches struct {
	layers []layerCache
}

type layerCache struct {
	x      [][]float32 // layer input
	z      [][]float32 // linear output, pre-BN
	xhat   [][]float32 // normalized, pre-scale (BN layers only)
	bnOut  [][]float32 // post-BN pre-ReLU (BN layers only)
	invStd []float32
}

// ForwardTrain runs a training-mode pass: batch norm normalizes with
// batch statistics and updates the running estimates.
func (n *Network) ForwardTrain(batch [][]float32) ([][]float32, *Caches, error) {
	if err := n.checkBatch(batch); err != nil {
		return nil, nil, err
	}
	caches := &Caches{layers: make([]layerCache, len(n.layers))}
	act := batch
	for li, l := range n.layers {
		c := layerCache{x: act}
		z := l.linear(act)
		c.z = z

		if l.bn == nil {
			caches.layers[li] = c
			act = z
			continue
		}

		bn := l.bn
		B := float32(len(z))
		mean := make([]float32, l.out)
		variance := make([]float32, l.out)
		for j := 0; j < l.out; j++ {
			var sum float32
			for b := range z {
				sum += z[b][j]
			}
			mean[j] = sum / B
		}
		for j := 0; j < l.out; j++ {
			var sum float32
			for b := range z {
				d := z[b][j] - mean[j]
				sum += d * d
			}
			variance[j] = sum / B
		}

		c.invStd = make([]float32, l.out)
		for j := 0; j < l.out; j++ {
			c.invStd[j] = 1 / float32(math.Sqrt(float64(variance[j]+bn.eps)))
			bn.runMean[j] = (1-bn.momentum)*bn.runMean[j] + bn.momentum*mean[j]
			bn.runVar[j] = (1-bn.momentum)*bn.runVar[j] + bn.momentum*variance[j]
		}

		c.xhat = make([][]float32, len(z))
		c.bnOut = make([][]float32, len(z))
		out := make([][]float32, len(z))
		for b := range z {
			c.xhat[b] = make([]float32, l.out)
			c.bnOut[b] = make([]float32, l.out)
			out[b] = make([]float32, l.out)
			for j := 0; j < l.out; j++ {
				xhat := (z[b][j] - mean[j]) * c.invStd[j]
				v := bn.gamma[j]*xhat + bn.beta[j]
				c.xhat[b][j] = xhat
				c.bnOut[b][j] = v
				if v < 0 {
					v = 0
				}
				out[b][j] = v
			}
		}
		caches.layers[li] = c
		act = out
	}
	return act, caches, nil
}

// Backward accumulates parameter gradients from the loss gradient with
// respect to the logits. Gradients add up until ZeroGrad.
func (n *Network) Backward(caches *Caches, dlogits [][]float32) {
	grad := dlogits
	for li := len(n.layers) - 1; li >= 0; li-- {
		l := n.layers[li]
		c := caches.layers[li]

		dz := grad
		if l.bn != nil {
			dz = l.bn.backward(c, grad, l.out)
		}

		// Linear backward: accumulate gw/gb, propagate dx.
		var dx [][]float32
		if li > 0 {
			dx = make([][]float32, len(dz))
			for b := range dx {
				dx[b] = make([]float32, l.in)
			}
		}
		for b := range dz {
			x := c.x[b]
			for o := 0; o < l.out; o++ {
				g := dz[b][o]
				if g == 0 {
					continue
				}
				l.gb[o] += g
				row := l.w[o*l.in : (o+1)*l.in]
				grow := l.gw[o*l.in : (o+1)*l.in]
				for i := 0; i < l.in; i++ {
					grow[i] += g * x[i]
					if dx != nil {
						dx[b][i] += g * row[i]
					}
				}
			}
		}
		grad = dx
	}
}

func (bn *batchNorm) backward(c layerCache, dact [][]float32, width int) [][]float32 {
	B := float32(len(dact))
	dz := make([][]float32, len(dact))
	for b := range dz {
		dz[b] = make([]float32, width)
	}
	for j := 0; j < width; j++ {
		var s1, s2 float32
		for b := range dact {
			d := dact[b][j]
			if c.bnOut[b][j] <= 0 { // ReLU gate
				continue
			}
			dxhat := d * bn.gamma[j]
			s1 += dxhat
			s2 += dxhat * c.xhat[b][j]
			bn.gGamma[j] += d * c.xhat[b][j]
			bn.gBeta[j] += d
		}
		for b := range dact {
			var dxhat float32
			if c.bnOut[b][j] > 0 {
				dxhat = dact[b][j] * bn.gamma[j]
			}
			dz[b][j] = c.invStd[j] / B * (B*dxhat - s1 - c.xhat[b][j]*s2)
		}
	}
	return dz
}

func (l *dense) linear(x [][]float32) [][]float32 {
	z := make([][]float32, len(x))
	for b := range x {
		z[b] = make([]float32, l.out)
		xb := x[b]
		for o := 0; o < l.out; o++ {
			row := l.w[o*l.in : (o+1)*l.in]
			sum := l.b[o]
			for i, v := range xb {
				sum += row[i] * v
			}
			z[b][o] = sum
		}
	}
	return z
}

func (n *Network) checkBatch(batch [][]float32) error {
	want := n.cfg.ImageSize * n.cfg.ImageSize
	for i, img := range batch {
		if len(img) != want {
			return fmt.Errorf("sample %d: expected %d values, got %d", i, want, len(img))
		}
	}
	return nil
}
