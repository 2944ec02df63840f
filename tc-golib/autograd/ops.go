package autograd

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MatMul returns a·b.
func (t *Tape) MatMul(a, b *Var) *Var {
	var out mat.Dense
	out.Mul(a.Value, b.Value)
	v := &Var{Value: &out}
	return t.track(v, func() {
		if a.trainable {
			var g mat.Dense
			g.Mul(v.Grad, b.Value.T())
			a.accumulate(&g)
		}
		if b.trainable {
			var g mat.Dense
			g.Mul(a.Value.T(), v.Grad)
			b.accumulate(&g)
		}
	}, a, b)
}

// Add returns a+b for equally shaped values.
func (t *Tape) Add(a, b *Var) *Var {
	var out mat.Dense
	out.Add(a.Value, b.Value)
	v := &Var{Value: &out}
	return t.track(v, func() {
		a.accumulate(v.Grad)
		b.accumulate(v.Grad)
	}, a, b)
}

// Sub returns a-b for equally shaped values.
func (t *Tape) Sub(a, b *Var) *Var {
	var out mat.Dense
	out.Sub(a.Value, b.Value)
	v := &Var{Value: &out}
	return t.track(v, func() {
		a.accumulate(v.Grad)
		if b.trainable {
			var g mat.Dense
			g.Scale(-1, v.Grad)
			b.accumulate(&g)
		}
	}, a, b)
}

// MulElem returns the element-wise product of a and b.
func (t *Tape) MulElem(a, b *Var) *Var {
	var out mat.Dense
	out.MulElem(a.Value, b.Value)
	v := &Var{Value: &out}
	return t.track(v, func() {
		if a.trainable {
			var g mat.Dense
			g.MulElem(v.Grad, b.Value)
			a.accumulate(&g)
		}
		if b.trainable {
			var g mat.Dense
			g.MulElem(v.Grad, a.Value)
			b.accumulate(&g)
		}
	}, a, b)
}

// DivElem returns the element-wise quotient a/b.
func (t *Tape) DivElem(a, b *Var) *Var {
	var out mat.Dense
	out.DivElem(a.Value, b.Value)
	v := &Var{Value: &out}
	return t.track(v, func() {
		if a.trainable {
			var g mat.Dense
			g.DivElem(v.Grad, b.Value)
			a.accumulate(&g)
		}
		if b.trainable {
			// d(a/b)/db = -(a/b)/b
			var g mat.Dense
			g.MulElem(v.Grad, &out)
			g.DivElem(&g, b.Value)
			g.Scale(-1, &g)
			b.accumulate(&g)
		}
	}, a, b)
}

// Scale returns s*a.
func (t *Tape) Scale(s float64, a *Var) *Var {
	var out mat.Dense
	out.Scale(s, a.Value)
	v := &Var{Value: &out}
	return t.track(v, func() {
		var g mat.Dense
		g.Scale(s, v.Grad)
		a.accumulate(&g)
	}, a)
}

// AddScalar returns a+s element-wise.
func (t *Tape) AddScalar(a *Var, s float64) *Var {
	var out mat.Dense
	out.Apply(func(_, _ int, x float64) float64 { return x + s }, a.Value)
	v := &Var{Value: &out}
	return t.track(v, func() {
		a.accumulate(v.Grad)
	}, a)
}

// AddRow adds the 1xC row to every row of the RxC value a.
func (t *Tape) AddRow(a, row *Var) *Var {
	_, c := a.Dims()
	if rr, rc := row.Dims(); rr != 1 || rc != c {
		panic(mat.ErrShape)
	}
	data := row.Value.RawRowView(0)
	var out mat.Dense
	out.Apply(func(_, j int, x float64) float64 { return x + data[j] }, a.Value)
	v := &Var{Value: &out}
	return t.track(v, func() {
		a.accumulate(v.Grad)
		row.accumulate(colSums(v.Grad))
	}, a, row)
}

// RepeatRows stacks n copies of the 1xC row a into an nxC value.
func (t *Tape) RepeatRows(a *Var, n int) *Var {
	if r, _ := a.Dims(); r != 1 {
		panic(mat.ErrShape)
	}
	_, c := a.Dims()
	out := mat.NewDense(n, c, nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, a.Value.RawRowView(0))
	}
	v := &Var{Value: out}
	return t.track(v, func() {
		a.accumulate(colSums(v.Grad))
	}, a)
}

// ConcatCols joins values with the same number of rows side by side.
func (t *Tape) ConcatCols(vs ...*Var) *Var {
	r, _ := vs[0].Dims()
	var total int
	for _, x := range vs {
		xr, xc := x.Dims()
		if xr != r {
			panic(mat.ErrShape)
		}
		total += xc
	}

	out := mat.NewDense(r, total, nil)
	var off int
	for _, x := range vs {
		_, xc := x.Dims()
		out.Slice(0, r, off, off+xc).(*mat.Dense).Copy(x.Value)
		off += xc
	}

	v := &Var{Value: out}
	return t.track(v, func() {
		var off int
		for _, x := range vs {
			_, xc := x.Dims()
			x.accumulate(v.Grad.Slice(0, r, off, off+xc))
			off += xc
		}
	}, vs...)
}

// SliceCols returns columns [from, to) of a.
func (t *Tape) SliceCols(a *Var, from, to int) *Var {
	r, c := a.Dims()
	out := mat.DenseCopyOf(a.Value.Slice(0, r, from, to))
	v := &Var{Value: out}
	return t.track(v, func() {
		g := mat.NewDense(r, c, nil)
		g.Slice(0, r, from, to).(*mat.Dense).Copy(v.Grad)
		a.accumulate(g)
	}, a)
}

// Mean reduces a to the 1x1 mean of its elements.
func (t *Tape) Mean(a *Var) *Var {
	r, c := a.Dims()
	n := float64(r * c)
	out := mat.NewDense(1, 1, []float64{mat.Sum(a.Value) / n})
	v := &Var{Value: out}
	return t.track(v, func() {
		s := v.Grad.At(0, 0) / n
		g := mat.NewDense(r, c, nil)
		g.Apply(func(_, _ int, _ float64) float64 { return s }, g)
		a.accumulate(g)
	}, a)
}

// Sigmoid applies the logistic function element-wise.
func (t *Tape) Sigmoid(a *Var) *Var {
	return t.unary(a, sigmoid, func(_, y float64) float64 { return y * (1 - y) })
}

// Tanh applies the hyperbolic tangent element-wise.
func (t *Tape) Tanh(a *Var) *Var {
	return t.unary(a, math.Tanh, func(_, y float64) float64 { return 1 - y*y })
}

// ELU applies the exponential linear unit (alpha = 1) element-wise.
func (t *Tape) ELU(a *Var) *Var {
	return t.unary(a, func(x float64) float64 {
		if x > 0 {
			return x
		}
		return math.Expm1(x)
	}, func(x, y float64) float64 {
		if x > 0 {
			return 1
		}
		return y + 1
	})
}

// Abs applies the absolute value element-wise.
func (t *Tape) Abs(a *Var) *Var {
	return t.unary(a, math.Abs, func(x, _ float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		}
		return 0
	})
}

// Square squares a element-wise.
func (t *Tape) Square(a *Var) *Var {
	return t.unary(a, func(x float64) float64 { return x * x }, func(x, _ float64) float64 { return 2 * x })
}

// Dropout zeroes each element with probability rate and scales the survivors
// by 1/(1-rate). A non-positive rate returns a unchanged.
func (t *Tape) Dropout(a *Var, rate float64, rng *rand.Rand) *Var {
	if rate <= 0 {
		return a
	}
	keep := 1 - rate
	r, c := a.Dims()
	mask := mat.NewDense(r, c, nil)
	mask.Apply(func(_, _ int, _ float64) float64 {
		if rng.Float64() < keep {
			return 1 / keep
		}
		return 0
	}, mask)
	return t.MulElem(a, NewConst(mask))
}

// unary applies f element-wise; df receives the input and output element.
func (t *Tape) unary(a *Var, f func(x float64) float64, df func(x, y float64) float64) *Var {
	var out mat.Dense
	out.Apply(func(_, _ int, x float64) float64 { return f(x) }, a.Value)
	v := &Var{Value: &out}
	return t.track(v, func() {
		var g mat.Dense
		g.Apply(func(i, j int, gv float64) float64 {
			return gv * df(a.Value.At(i, j), out.At(i, j))
		}, v.Grad)
		a.accumulate(&g)
	}, a)
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func colSums(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	sums := make([]float64, c)
	for i := 0; i < r; i++ {
		floats.Add(sums, m.RawRowView(i))
	}
	return mat.NewDense(1, c, sums)
}
