// Package autograd is a small reverse-mode differentiation tape over gonum
// dense matrices. Every value is a 2-d matrix; row vectors are 1xN.
package autograd

import (
	"gonum.org/v1/gonum/mat"
)

// Var is a value taking part in a computation. Vars that depend on a
// trainable parameter accumulate their gradient into Grad during
// Tape.Backward.
type Var struct {
	Value *mat.Dense
	Grad  *mat.Dense

	trainable bool
	backward  func()
}

// NewConst wraps a value that never receives a gradient.
func NewConst(value *mat.Dense) *Var {
	return &Var{Value: value}
}

// NewParam wraps a trainable value.
func NewParam(value *mat.Dense) *Var {
	return &Var{Value: value, trainable: true}
}

// NewRow wraps a constant 1xN row.
func NewRow(values ...float64) *Var {
	return NewConst(mat.NewDense(1, len(values), values))
}

// RequiresGrad reports whether gradients flow into v.
func (v *Var) RequiresGrad() bool {
	return v.trainable
}

// Dims returns the shape of the value.
func (v *Var) Dims() (int, int) {
	return v.Value.Dims()
}

// Scalar returns the single element of a 1x1 value.
func (v *Var) Scalar() float64 {
	return v.Value.At(0, 0)
}

// ZeroGrad drops the accumulated gradient.
func (v *Var) ZeroGrad() {
	v.Grad = nil
}

func (v *Var) accumulate(g mat.Matrix) {
	if !v.trainable {
		return
	}
	if v.Grad == nil {
		r, c := v.Value.Dims()
		v.Grad = mat.NewDense(r, c, nil)
	}
	v.Grad.Add(v.Grad, g)
}
