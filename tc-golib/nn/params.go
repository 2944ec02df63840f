package nn

import (
	"sort"

	"github.com/QimingZheng/tensor-compiler/tc-golib/autograd"
	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
	"gonum.org/v1/gonum/mat"
)

// Param is a named trainable value.
type Param struct {
	Name string
	*autograd.Var
}

// Params is an ordered collection of parameters.
type Params []Param

// Prefixed returns the params with names qualified by prefix.
func (ps Params) Prefixed(prefix string) Params {
	out := make(Params, 0, len(ps))
	for _, p := range ps {
		out = append(out, Param{Name: prefix + "." + p.Name, Var: p.Var})
	}
	return out
}

// ZeroGrad drops the accumulated gradients of every parameter.
func (ps Params) ZeroGrad() {
	for _, p := range ps {
		p.ZeroGrad()
	}
}

// Count is the total number of scalar weights.
func (ps Params) Count() int {
	var n int
	for _, p := range ps {
		r, c := p.Dims()
		n += r * c
	}
	return n
}

// Tensor is the serializable form of a parameter value.
type Tensor struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// State maps parameter names to copies of their values.
type State map[string]Tensor

// Names returns the parameter names in sorted order.
func (s State) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// State copies the parameter values.
func (ps Params) State() State {
	state := make(State, len(ps))
	for _, p := range ps {
		r, c := p.Dims()
		data := make([]float64, r*c)
		for i := 0; i < r; i++ {
			copy(data[i*c:(i+1)*c], p.Value.RawRowView(i))
		}
		state[p.Name] = Tensor{Rows: r, Cols: c, Data: data}
	}
	return state
}

// SetState overwrites the parameter values with the values in state. The
// state must hold exactly the parameters in ps with matching shapes.
func (ps Params) SetState(state State) error {
	if len(state) != len(ps) {
		return errors.Errorf("state has %d parameters, expected %d", len(state), len(ps))
	}
	for _, p := range ps {
		t, ok := state[p.Name]
		if !ok {
			return errors.Errorf("state is missing parameter %s", p.Name)
		}
		r, c := p.Dims()
		if t.Rows != r || t.Cols != c || len(t.Data) != r*c {
			return errors.Errorf("parameter %s: state shape %dx%d (%d values), expected %dx%d",
				p.Name, t.Rows, t.Cols, len(t.Data), r, c)
		}
	}
	for _, p := range ps {
		t := state[p.Name]
		p.Value.Copy(mat.NewDense(t.Rows, t.Cols, t.Data))
		p.ZeroGrad()
	}
	return nil
}
