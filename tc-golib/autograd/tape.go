package autograd

import (
	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
	"gonum.org/v1/gonum/mat"
)

// Tape records differentiable operations in execution order so that
// Backward can replay them in reverse.
type Tape struct {
	recording bool
	nodes     []*Var
}

// NewTape returns a tape that records operations for differentiation.
func NewTape() *Tape {
	return &Tape{recording: true}
}

// NewInferenceTape returns a tape with gradient tracking disabled: operations
// only compute values.
func NewInferenceTape() *Tape {
	return &Tape{}
}

// Recording reports whether the tape tracks gradients.
func (t *Tape) Recording() bool {
	return t.recording
}

// Len is the number of recorded operations.
func (t *Tape) Len() int {
	return len(t.nodes)
}

// track registers out as the result of an operation over inputs. Nothing is
// recorded unless the tape records and some input requires a gradient.
func (t *Tape) track(out *Var, backward func(), inputs ...*Var) *Var {
	if !t.recording {
		return out
	}
	for _, in := range inputs {
		if in.trainable {
			out.trainable = true
			out.backward = backward
			t.nodes = append(t.nodes, out)
			break
		}
	}
	return out
}

// Backward propagates gradients from the scalar loss back to every trainable
// value it depends on, then resets the tape. Gradients accumulate: callers
// zero parameter gradients between steps.
func (t *Tape) Backward(loss *Var) error {
	if !t.recording {
		return errors.New("backward on a tape that does not record")
	}
	if r, c := loss.Dims(); r != 1 || c != 1 {
		return errors.Errorf("backward needs a 1x1 loss, got %dx%d", r, c)
	}
	if !loss.trainable {
		return errors.New("loss does not depend on any trainable value")
	}

	loss.Grad = mat.NewDense(1, 1, []float64{1})
	for i := len(t.nodes) - 1; i >= 0; i-- {
		if n := t.nodes[i]; n.Grad != nil {
			n.backward()
		}
	}
	t.nodes = nil
	return nil
}
