// Package optim implements the AdamW optimizer and the one-cycle learning
// rate schedule.
package optim

import (
	"math"

	"github.com/QimingZheng/tensor-compiler/tc-golib/nn"
	"gonum.org/v1/gonum/mat"
)

// AdamW is Adam with decoupled weight decay.
type AdamW struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64

	params nn.Params
	state  []adamState
}

type adamState struct {
	step int
	m, v *mat.Dense
}

// NewAdamW returns an optimizer over params with the usual defaults for the
// betas and epsilon.
func NewAdamW(params nn.Params, lr, weightDecay float64) *AdamW {
	return &AdamW{
		LR:          lr,
		Beta1:       0.9,
		Beta2:       0.999,
		Eps:         1e-8,
		WeightDecay: weightDecay,
		params:      params,
		state:       make([]adamState, len(params)),
	}
}

// Params are the parameters being optimized.
func (o *AdamW) Params() nn.Params {
	return o.params
}

// ZeroGrad clears the gradients of every parameter.
func (o *AdamW) ZeroGrad() {
	o.params.ZeroGrad()
}

// Step updates every parameter that has a gradient.
func (o *AdamW) Step() {
	for i, p := range o.params {
		if p.Grad == nil {
			continue
		}
		st := &o.state[i]
		if st.m == nil {
			r, c := p.Dims()
			st.m = mat.NewDense(r, c, nil)
			st.v = mat.NewDense(r, c, nil)
		}
		st.step++

		p.Value.Scale(1-o.LR*o.WeightDecay, p.Value)

		b1, b2 := o.Beta1, o.Beta2
		st.m.Apply(func(i, j int, m float64) float64 {
			return b1*m + (1-b1)*p.Grad.At(i, j)
		}, st.m)
		st.v.Apply(func(i, j int, v float64) float64 {
			g := p.Grad.At(i, j)
			return b2*v + (1-b2)*g*g
		}, st.v)

		correction1 := 1 - math.Pow(b1, float64(st.step))
		correction2 := 1 - math.Pow(b2, float64(st.step))
		stepSize := o.LR / correction1
		sqrt2 := math.Sqrt(correction2)

		m, v := st.m, st.v
		p.Value.Apply(func(i, j int, x float64) float64 {
			denom := math.Sqrt(v.At(i, j))/sqrt2 + o.Eps
			return x - stepSize*m.At(i, j)/denom
		}, p.Value)
	}
}
