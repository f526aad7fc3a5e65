package train

import (
	"fmt"
	"math"

	"doodleclass/internal/classifier/native"
)

type Optimizer interface {
	Step(params []native.Param)
	SetLR(lr float64)
	LR() float64
}

func NewOptimizer(name string, lr float64) (Optimizer, error) {
	switch name {
	case "sgd":
		return NewSGD(lr), nil
	case "adam":
		return NewAdam(lr), nil
	default:
		return nil, fmt.Errorf("unsupported optimizer type %q", name)
	}
}

// SGD with Nesterov momentum and weight decay.
type SGD struct {
	lr          float64
	momentum    float32
	weightDecay float32
	nesterov    bool
	velocity    [][]float32
}

func NewSGD(lr float64) *SGD {
	return &SGD{lr: lr, momentum: 0.9, weightDecay: 1e-4, nesterov: true}
}

func (o *SGD) SetLR(lr float64) { o.lr = lr }
func (o *SGD) LR() float64      { return o.lr }

func (o *SGD) Step(params []native.Param) {
	if o.velocity == nil {
		o.velocity = make([][]float32, len(params))
		for i, p := range params {
			o.velocity[i] = make([]float32, len(p.Data))
		}
	}
	lr := float32(o.lr)
	for i, p := range params {
		v := o.velocity[i]
		for j := range p.Data {
			g := p.Grad[j] + o.weightDecay*p.Data[j]
			v[j] = o.momentum*v[j] + g
			d := v[j]
			if o.nesterov {
				d = g + o.momentum*v[j]
			}
			p.Data[j] -= lr * d
		}
	}
}

// Adam with the usual bias correction.
type Adam struct {
	lr           float64
	beta1, beta2 float64
	eps          float64
	t            int
	m, v         [][]float32
}

func NewAdam(lr float64) *Adam {
	return &Adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}
}

func (o *Adam) SetLR(lr float64) { o.lr = lr }
func (o *Adam) LR() float64      { return o.lr }

func (o *Adam) Step(params []native.Param) {
	if o.m == nil {
		o.m = make([][]float32, len(params))
		o.v = make([][]float32, len(params))
		for i, p := range params {
			o.m[i] = make([]float32, len(p.Data))
			o.v[i] = make([]float32, len(p.Data))
		}
	}
	o.t++
	c1 := 1 - math.Pow(o.beta1, float64(o.t))
	c2 := 1 - math.Pow(o.beta2, float64(o.t))
	for i, p := range params {
		m, v := o.m[i], o.v[i]
		for j := range p.Data {
			g := float64(p.Grad[j])
			mj := o.beta1*float64(m[j]) + (1-o.beta1)*g
			vj := o.beta2*float64(v[j]) + (1-o.beta2)*g*g
			m[j] = float32(mj)
			v[j] = float32(vj)
			p.Data[j] -= float32(o.lr * (mj / c1) / (math.Sqrt(vj/c2) + o.eps))
		}
	}
}
