// Package nn contains the layers used by the cost model: linear maps, feed
// forward stacks, an LSTM and an LSTM based sequence aggregator with a learned
// fallback for empty sequences. Layers compute on an autograd.Tape carried by
// a Pass.
package nn

import (
	"math/rand"

	"github.com/QimingZheng/tensor-compiler/tc-golib/autograd"
)

// Pass carries the state of a single forward pass.
type Pass struct {
	Tape  *autograd.Tape
	Train bool
	Rng   *rand.Rand
}

// NewTrainPass returns a pass that records gradients and applies dropout.
func NewTrainPass(rng *rand.Rand) *Pass {
	return &Pass{
		Tape:  autograd.NewTape(),
		Train: true,
		Rng:   rng,
	}
}

// NewEvalPass returns a pass with gradient tracking and dropout disabled.
func NewEvalPass() *Pass {
	return &Pass{Tape: autograd.NewInferenceTape()}
}

// Dropout applies dropout when training and is the identity otherwise.
func (p *Pass) Dropout(x *autograd.Var, rate float64) *autograd.Var {
	if !p.Train {
		return x
	}
	return p.Tape.Dropout(x, rate, p.Rng)
}
