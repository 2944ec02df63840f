package autograd

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// randomDense fills an r x c matrix with values whose magnitude lies in
// [0.2, 1.2) so that kinks at zero (abs, elu) are never crossed.
func randomDense(rng *rand.Rand, r, c int) *mat.Dense {
	m := mat.NewDense(r, c, nil)
	m.Apply(func(_, _ int, _ float64) float64 {
		x := 0.2 + rng.Float64()
		if rng.Intn(2) == 0 {
			return -x
		}
		return x
	}, m)
	return m
}

// checkGrad compares the analytic gradient of loss with respect to every
// param against central finite differences.
func checkGrad(t *testing.T, params []*Var, loss func(tp *Tape) *Var) {
	tp := NewTape()
	require.NoError(t, tp.Backward(loss(tp)))

	const h = 1e-6
	for pi, p := range params {
		require.NotNil(t, p.Grad, "param %d received no gradient", pi)
		r, c := p.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				orig := p.Value.At(i, j)
				p.Value.Set(i, j, orig+h)
				up := loss(NewInferenceTape()).Scalar()
				p.Value.Set(i, j, orig-h)
				down := loss(NewInferenceTape()).Scalar()
				p.Value.Set(i, j, orig)

				numeric := (up - down) / (2 * h)
				assert.InDelta(t, numeric, p.Grad.At(i, j), 1e-5, "param %d at (%d,%d)", pi, i, j)
			}
		}
	}
}

// weighted turns any value into a scalar with a non-uniform gradient.
func weighted(tp *Tape, v *Var, w *mat.Dense) *Var {
	return tp.Mean(tp.MulElem(v, NewConst(w)))
}

func TestMatMulAddGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := NewParam(randomDense(rng, 3, 4))
	b := NewParam(randomDense(rng, 4, 2))
	c := NewParam(randomDense(rng, 3, 2))
	w := randomDense(rng, 3, 2)

	checkGrad(t, []*Var{a, b, c}, func(tp *Tape) *Var {
		return weighted(tp, tp.Add(tp.MatMul(a, b), c), w)
	})
}

func TestElementwiseGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	a := NewParam(randomDense(rng, 2, 3))
	b := NewParam(randomDense(rng, 2, 3))
	w := randomDense(rng, 2, 3)

	checkGrad(t, []*Var{a, b}, func(tp *Tape) *Var {
		x := tp.Sub(tp.MulElem(a, b), tp.Scale(0.5, a))
		x = tp.DivElem(x, tp.AddScalar(tp.Square(b), 1))
		return weighted(tp, x, w)
	})
}

func TestActivationGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := NewParam(randomDense(rng, 2, 5))
	w := randomDense(rng, 2, 5)

	checkGrad(t, []*Var{a}, func(tp *Tape) *Var {
		x := tp.Add(tp.Sigmoid(a), tp.Tanh(a))
		return weighted(tp, tp.Add(x, tp.Sub(tp.ELU(a), tp.Abs(a))), w)
	})
}

func TestBroadcastGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	a := NewParam(randomDense(rng, 3, 4))
	row := NewParam(randomDense(rng, 1, 4))
	placeholder := NewParam(randomDense(rng, 1, 2))
	w := randomDense(rng, 3, 6)

	checkGrad(t, []*Var{a, row, placeholder}, func(tp *Tape) *Var {
		x := tp.ConcatCols(tp.AddRow(a, row), tp.RepeatRows(placeholder, 3))
		return weighted(tp, x, w)
	})
}

func TestSliceColsGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := NewParam(randomDense(rng, 2, 8))
	w := randomDense(rng, 2, 2)

	checkGrad(t, []*Var{a}, func(tp *Tape) *Var {
		x := tp.MulElem(tp.Sigmoid(tp.SliceCols(a, 0, 2)), tp.Tanh(tp.SliceCols(a, 4, 6)))
		return weighted(tp, x, w)
	})
}

func TestConcatValues(t *testing.T) {
	tp := NewInferenceTape()
	x := tp.ConcatCols(NewRow(1, 2), NewRow(3), NewRow(4, 5))
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, x.Value.RawRowView(0))

	y := tp.RepeatRows(NewRow(7, 8), 3)
	r, c := y.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, []float64{7, 8}, y.Value.RawRowView(2))
}

func TestInferenceTapeRecordsNothing(t *testing.T) {
	p := NewParam(mat.NewDense(1, 2, []float64{1, 2}))
	tp := NewInferenceTape()
	loss := tp.Mean(tp.Square(p))
	assert.Equal(t, 0, tp.Len())
	assert.False(t, loss.RequiresGrad())
	assert.InDelta(t, 2.5, loss.Scalar(), 1e-12)
	assert.Error(t, tp.Backward(loss))
}

func TestConstantsReceiveNoGradient(t *testing.T) {
	p := NewParam(mat.NewDense(1, 2, []float64{1, 2}))
	c := NewRow(3, 4)
	tp := NewTape()
	require.NoError(t, tp.Backward(tp.Mean(tp.MulElem(p, c))))
	assert.Nil(t, c.Grad)
	assert.Equal(t, []float64{1.5, 2}, p.Grad.RawRowView(0))
	assert.Equal(t, 0, tp.Len())
}

func TestGradientsAccumulate(t *testing.T) {
	p := NewParam(mat.NewDense(1, 1, []float64{3}))
	for i := 0; i < 2; i++ {
		tp := NewTape()
		require.NoError(t, tp.Backward(tp.Square(p)))
	}
	assert.InDelta(t, 12, p.Grad.At(0, 0), 1e-12)

	p.ZeroGrad()
	assert.Nil(t, p.Grad)
}

func TestBackwardNeedsScalar(t *testing.T) {
	p := NewParam(mat.NewDense(1, 2, []float64{1, 2}))
	tp := NewTape()
	assert.Error(t, tp.Backward(tp.Square(p)))

	tp = NewTape()
	assert.Error(t, tp.Backward(tp.Mean(NewRow(1, 2))))
}

func TestDropout(t *testing.T) {
	tp := NewInferenceTape()
	x := NewConst(mat.NewDense(50, 40, nil))
	x.Value.Apply(func(_, _ int, _ float64) float64 { return 1 }, x.Value)

	assert.Equal(t, x, tp.Dropout(x, 0, nil))

	out := tp.Dropout(x, 0.25, rand.New(rand.NewSource(6)))
	var zeros int
	r, c := out.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			switch v := out.Value.At(i, j); {
			case v == 0:
				zeros++
			default:
				assert.InDelta(t, 1/0.75, v, 1e-12)
			}
		}
	}
	frac := float64(zeros) / float64(r*c)
	assert.InDelta(t, 0.25, frac, 0.05)
}
