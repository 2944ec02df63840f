package nn

import (
	"math"
	"math/rand"

	"github.com/QimingZheng/tensor-compiler/tc-golib/autograd"
	"gonum.org/v1/gonum/mat"
)

// Linear computes x·W + b for a batch of row vectors x.
type Linear struct {
	In, Out int
	Weight  *autograd.Var // In x Out
	Bias    *autograd.Var // 1 x Out
}

// NewLinear initializes the weights with xavier-uniform values and the bias
// uniformly in ±1/sqrt(in).
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	return &Linear{
		In:     in,
		Out:    out,
		Weight: autograd.NewParam(Uniform(in, out, XavierBound(in, out), rng)),
		Bias:   autograd.NewParam(Uniform(1, out, 1/math.Sqrt(float64(in)), rng)),
	}
}

// Forward applies the layer.
func (l *Linear) Forward(p *Pass, x *autograd.Var) *autograd.Var {
	return p.Tape.AddRow(p.Tape.MatMul(x, l.Weight), l.Bias)
}

// Params ...
func (l *Linear) Params() Params {
	return Params{
		{Name: "weight", Var: l.Weight},
		{Name: "bias", Var: l.Bias},
	}
}

// XavierBound is the xavier-uniform bound for a layer mapping fanIn to fanOut.
func XavierBound(fanIn, fanOut int) float64 {
	return math.Sqrt(6 / float64(fanIn+fanOut))
}

// Uniform returns an r x c matrix with entries drawn uniformly from
// [-bound, bound).
func Uniform(r, c int, bound float64, rng *rand.Rand) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * bound
	}
	return mat.NewDense(r, c, data)
}
