package train

import (
	"fmt"
	"math"
	"sort"
)

// Criterion computes the mean loss of a batch and the gradient of that
// loss with respect to the logits.
type Criterion interface {
	Name() string
	Loss(logits [][]float32, labels []int) (float32, [][]float32)
}

func NewCriterion(name string, topK int) (Criterion, error) {
	switch name {
	case "cce":
		return CrossEntropy{}, nil
	case "topk":
		return SmoothTopK{K: topK, Tau: 1, Alpha: 1}, nil
	default:
		return nil, fmt.Errorf("unsupported loss type %q", name)
	}
}

type CrossEntropy struct{}

func (CrossEntropy) Name() string { return "cce" }

func (CrossEntropy) Loss(logits [][]float32, labels []int) (float32, [][]float32) {
	B := len(logits)
	grads := make([][]float32, B)
	var total float64
	for b, s := range logits {
		y := labels[b]

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
		lse := float64(max) + math.Log(sumExp)
		total += lse - float64(s[y])

		g := make([]float32, len(s))
		for j, v := range s {
			p := math.Exp(float64(v-max)) / sumExp
			g[j] = float32(p) / float32(B)
		}
		g[y] -= 1 / float32(B)
		grads[b] = g
	}
	return float32(total / float64(B)), grads
}

// SmoothTopK is a temperature-smoothed top-k hinge: for each sample,
// the K largest non-target margins u_j = (Alpha + s_j - s_y)/Tau enter
// a log-sum-exp against a unit slack term,
//
//	L = Tau * log(1 + sum_{j in A} exp(u_j))
//
// which pushes the target score above the competing top-k scores by
// the Alpha margin. The loss is zero-ish when the target dominates.
type SmoothTopK struct {
	K     int
	Tau   float32
	Alpha float32
}

func (l SmoothTopK) Name() string { return "topk" }

func (l SmoothTopK) Loss(logits [][]float32, labels []int) (float32, [][]float32) {
	B := len(logits)
	grads := make([][]float32, B)
	var total float64
	for b, s := range logits {
		y := labels[b]
		g := make([]float32, len(s))

		// Margins of all non-target classes, keep the K largest.
		type margin struct {
			j int
			u float64
		}
		margins := make([]margin, 0, len(s)-1)
		for j, v := range s {
			if j == y {
				continue
			}
			margins = append(margins, margin{j, float64(l.Alpha+v-s[y]) / float64(l.Tau)})
		}
		sort.Slice(margins, func(i, j int) bool { return margins[i].u > margins[j].u })
		k := l.K
		if k > len(margins) {
			k = len(margins)
		}
		active := margins[:k]

		// Stable log-sum-exp over {0, u_1..u_k}.
		m := 0.0
		for _, a := range active {
			if a.u > m {
				m = a.u
			}
		}
		z := math.Exp(-m)
		for _, a := range active {
			z += math.Exp(a.u - m)
		}
		total += float64(l.Tau) * (m + math.Log(z))

		var sumP float64
		for _, a := range active {
			p := math.Exp(a.u-m) / z
			g[a.j] = float32(p) / float32(B)
			sumP += p
		}
		g[y] = -float32(sumP) / float32(B)
		grads[b] = g
	}
	return float32(total / float64(B)), grads
}
