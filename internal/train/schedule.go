package train

import "math"

// CosineAnnealing interpolates the learning rate from LRMax down to
// LRMin over one SGDR cycle of CycleEpochs epochs. t is the position
// within the cycle in (fractional) epochs.
type CosineAnnealing struct {
	LRMin, LRMax float64
	CycleEpochs  float64
}

func (c CosineAnnealing) LR(t float64) float64 {
	if t < 0 {
		t = 0
	}
	if t > c.CycleEpochs {
		t = c.CycleEpochs
	}
	return c.LRMin + 0.5*(c.LRMax-c.LRMin)*(1+math.Cos(math.Pi*t/c.CycleEpochs))
}

// Plateau reduces the learning rate by factor after patience epochs
// without improvement of the monitored score (mode: max).
type Plateau struct {
	Factor   float64
	Patience int
	MinLR    float64

	best float64
	bad  int
	init bool
}

func NewPlateau(minLR float64) *Plateau {
	return &Plateau{Factor: 0.8, Patience: 3, MinLR: minLR}
}

// Step records the epoch score and returns the learning rate to use
// next, possibly reduced.
func (p *Plateau) Step(score, lr float64) float64 {
	if !p.init || score > p.best {
		p.best = score
		p.bad = 0
		p.init = true
		return lr
	}
	p.bad++
	if p.bad > p.Patience {
		p.bad = 0
		lr *= p.Factor
		if lr < p.MinLR {
			lr = p.MinLR
		}
	}
	return lr
}
