package nn

import (
	"fmt"
	"math/rand"

	"github.com/QimingZheng/tensor-compiler/tc-golib/autograd"
)

// Layer is one record of a Stack: a linear map followed by ELU and dropout.
type Layer struct {
	*Linear
	DropRate float64
}

// Stack is a feed forward network built from a list of widths.
type Stack struct {
	Layers []Layer
}

// NewStack builds len(widths)-1 layers, layer i mapping widths[i] to
// widths[i+1]. widths must contain at least an input and an output width.
func NewStack(widths []int, dropRate float64, rng *rand.Rand) *Stack {
	if len(widths) < 2 {
		panic(fmt.Sprintf("stack needs at least two widths, got %v", widths))
	}
	s := &Stack{}
	for i := 0; i+1 < len(widths); i++ {
		s.Layers = append(s.Layers, Layer{
			Linear:   NewLinear(widths[i], widths[i+1], rng),
			DropRate: dropRate,
		})
	}
	return s
}

// Widths builds the width list of a stack from its input width, hidden sizes
// and output width.
func Widths(in int, hidden []int, out int) []int {
	widths := make([]int, 0, len(hidden)+2)
	widths = append(widths, in)
	widths = append(widths, hidden...)
	return append(widths, out)
}

// In is the input width.
func (s *Stack) In() int {
	return s.Layers[0].In
}

// Out is the output width.
func (s *Stack) Out() int {
	return s.Layers[len(s.Layers)-1].Out
}

// Forward runs x through every layer.
func (s *Stack) Forward(p *Pass, x *autograd.Var) *autograd.Var {
	for _, l := range s.Layers {
		x = p.Dropout(p.Tape.ELU(l.Forward(p, x)), l.DropRate)
	}
	return x
}

// Params ...
func (s *Stack) Params() Params {
	var ps Params
	for i, l := range s.Layers {
		ps = append(ps, l.Params().Prefixed(fmt.Sprintf("%d", i))...)
	}
	return ps
}
