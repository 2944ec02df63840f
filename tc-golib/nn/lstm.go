package nn

import (
	"math"
	"math/rand"

	"github.com/QimingZheng/tensor-compiler/tc-golib/autograd"
	"gonum.org/v1/gonum/mat"
)

// LSTM is a single layer long short-term memory recurrence. Gates are laid
// out in the order input, forget, cell, output along the columns of the
// weight matrices.
type LSTM struct {
	In, Hidden   int
	InputWeight  *autograd.Var // In x 4*Hidden
	HiddenWeight *autograd.Var // Hidden x 4*Hidden
	Bias         *autograd.Var // 1 x 4*Hidden
}

// NewLSTM initializes every weight uniformly in ±1/sqrt(hidden).
func NewLSTM(in, hidden int, rng *rand.Rand) *LSTM {
	bound := 1 / math.Sqrt(float64(hidden))
	return &LSTM{
		In:           in,
		Hidden:       hidden,
		InputWeight:  autograd.NewParam(Uniform(in, 4*hidden, bound, rng)),
		HiddenWeight: autograd.NewParam(Uniform(hidden, 4*hidden, bound, rng)),
		Bias:         autograd.NewParam(Uniform(1, 4*hidden, bound, rng)),
	}
}

// Forward runs the recurrence over seq, starting from a zero state, and
// returns the final hidden state. The zero initial state takes part in the
// first step, so HiddenWeight receives a (zero) gradient even for single step
// sequences. Every element of seq is a batch x In value; seq must not be
// empty.
func (l *LSTM) Forward(p *Pass, seq []*autograd.Var) *autograd.Var {
	tp := p.Tape
	n := l.Hidden

	batch, _ := seq[0].Dims()
	h := autograd.NewConst(mat.NewDense(batch, n, nil))
	c := autograd.NewConst(mat.NewDense(batch, n, nil))
	for _, x := range seq {
		gates := tp.Add(tp.AddRow(tp.MatMul(x, l.InputWeight), l.Bias), tp.MatMul(h, l.HiddenWeight))

		in := tp.Sigmoid(tp.SliceCols(gates, 0, n))
		forget := tp.Sigmoid(tp.SliceCols(gates, n, 2*n))
		cell := tp.Tanh(tp.SliceCols(gates, 2*n, 3*n))
		out := tp.Sigmoid(tp.SliceCols(gates, 3*n, 4*n))

		c = tp.Add(tp.MulElem(forget, c), tp.MulElem(in, cell))
		h = tp.MulElem(out, tp.Tanh(c))
	}
	return h
}

// Params ...
func (l *LSTM) Params() Params {
	return Params{
		{Name: "weight_ih", Var: l.InputWeight},
		{Name: "weight_hh", Var: l.HiddenWeight},
		{Name: "bias", Var: l.Bias},
	}
}

// Aggregator reduces an ordered sequence of embeddings to a single hidden
// vector with an LSTM. An empty sequence yields the learned placeholder.
type Aggregator struct {
	LSTM        *LSTM
	Placeholder *autograd.Var // 1 x dim
}

// NewAggregator returns an aggregator over dim wide embeddings producing dim
// wide hidden vectors.
func NewAggregator(dim int, rng *rand.Rand) *Aggregator {
	return &Aggregator{
		LSTM:        NewLSTM(dim, dim, rng),
		Placeholder: autograd.NewParam(Uniform(1, dim, XavierBound(dim, dim), rng)),
	}
}

// Forward aggregates seq. When seq is empty the placeholder is repeated batch
// times.
func (a *Aggregator) Forward(p *Pass, seq []*autograd.Var, batch int) *autograd.Var {
	if len(seq) == 0 {
		return p.Tape.RepeatRows(a.Placeholder, batch)
	}
	return a.LSTM.Forward(p, seq)
}

// Params ...
func (a *Aggregator) Params() Params {
	ps := Params{{Name: "placeholder", Var: a.Placeholder}}
	return append(ps, a.LSTM.Params().Prefixed("lstm")...)
}
