package train

import (
	"github.com/QimingZheng/tensor-compiler/tc-golib/autograd"
	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
)

// mapeEps keeps MAPE finite for zero labels.
const mapeEps = 1e-5

var (
	// ErrShapeMismatch is the kind of errors for predictions whose shape differs
	// from the labels.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrNumericDivergence is the kind of errors for losses that are NaN or
	// infinite.
	ErrNumericDivergence = errors.New("numeric divergence")
)

// Criterion reduces predictions and labels of equal shape to a scalar loss.
type Criterion func(tp *autograd.Tape, pred, target *autograd.Var) (*autograd.Var, error)

// CriterionByName returns mse, mae or mape.
func CriterionByName(name string) (Criterion, error) {
	switch name {
	case "mse":
		return MSE, nil
	case "mae":
		return MAE, nil
	case "mape":
		return MAPE, nil
	}
	return nil, errors.Errorf("unknown criterion %q, expected mse, mae or mape", name)
}

// MSE is the mean squared error.
func MSE(tp *autograd.Tape, pred, target *autograd.Var) (*autograd.Var, error) {
	if err := sameShape(pred, target); err != nil {
		return nil, err
	}
	return tp.Mean(tp.Square(tp.Sub(target, pred))), nil
}

// MAE is the mean absolute error.
func MAE(tp *autograd.Tape, pred, target *autograd.Var) (*autograd.Var, error) {
	if err := sameShape(pred, target); err != nil {
		return nil, err
	}
	return tp.Mean(tp.Abs(tp.Sub(target, pred))), nil
}

// MAPE is the mean absolute percentage error, in percent.
func MAPE(tp *autograd.Tape, pred, target *autograd.Var) (*autograd.Var, error) {
	if err := sameShape(pred, target); err != nil {
		return nil, err
	}
	ape := tp.DivElem(tp.Abs(tp.Sub(target, pred)), tp.AddScalar(target, mapeEps))
	return tp.Scale(100, tp.Mean(ape)), nil
}

func sameShape(pred, target *autograd.Var) error {
	pr, pc := pred.Dims()
	tr, tc := target.Dims()
	if pr != tr || pc != tc {
		return errors.Wrapf(ErrShapeMismatch, "predictions are %dx%d, labels are %dx%d", pr, pc, tr, tc)
	}
	return nil
}
