// Package model implements the recursive tree LSTM cost model. Every loop of
// a nest is encoded from the hidden vectors of its child loops, the
// embeddings of its own computations and its own loop features; a regression
// head maps the encoding of the root to the logarithm of the program cost.
package model

import (
	"math/rand"

	"github.com/QimingZheng/tensor-compiler/tc-go/costmodel/feature"
	"github.com/QimingZheng/tensor-compiler/tc-golib/autograd"
	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
	"github.com/QimingZheng/tensor-compiler/tc-golib/nn"
)

// Model ...
type Model struct {
	Config Config

	CompEmbed  *nn.Stack
	LoopEmbed  *nn.Stack
	CompAgg    *nn.Aggregator
	NodeAgg    *nn.Aggregator
	Concat     *nn.Stack
	Regression *nn.Stack
	Predict    *nn.Linear
}

// New initializes a model from cfg, drawing the initial weights from a source
// seeded with cfg.Seed.
func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return build(cfg, rand.New(rand.NewSource(cfg.Seed))), nil
}

func build(cfg Config, rng *rand.Rand) *Model {
	e := cfg.EmbeddingDim
	return &Model{
		Config:     cfg,
		CompEmbed:  nn.NewStack(nn.Widths(cfg.ComputationFeatureDim, cfg.CompEmbedLayerSizes, e), cfg.DropRate, rng),
		LoopEmbed:  nn.NewStack(nn.Widths(cfg.LoopFeatureDim, cfg.LoopEmbedLayerSizes, e), cfg.DropRate, rng),
		CompAgg:    nn.NewAggregator(e, rng),
		NodeAgg:    nn.NewAggregator(e, rng),
		Concat:     nn.NewStack(nn.Widths(3*e, cfg.ConcatLayerSizes, e), cfg.DropRate, rng),
		Regression: nn.NewStack(nn.Widths(e, cfg.RegressionLayerSizes, e), cfg.DropRate, rng),
		Predict:    nn.NewLinear(e, 1, rng),
	}
}

// Params lists every trainable parameter under a stable name.
func (m *Model) Params() nn.Params {
	var ps nn.Params
	ps = append(ps, m.CompEmbed.Params().Prefixed("comp_embedding")...)
	ps = append(ps, m.LoopEmbed.Params().Prefixed("loop_embedding")...)
	ps = append(ps, m.CompAgg.Params().Prefixed("comps")...)
	ps = append(ps, m.NodeAgg.Params().Prefixed("nodes")...)
	ps = append(ps, m.Concat.Params().Prefixed("concat")...)
	ps = append(ps, m.Regression.Params().Prefixed("regression")...)
	ps = append(ps, m.Predict.Params().Prefixed("predict")...)
	return ps
}

// Forward predicts the log cost of every sample of the batch, as a Size x 1
// value.
func (m *Model) Forward(p *nn.Pass, b *feature.Batch) (*autograd.Var, error) {
	h, err := m.Encode(p, b)
	if err != nil {
		return nil, err
	}
	return m.Head(p, h), nil
}

// Encode computes the hidden vector of the root of the batch's tree. Nodes
// are visited in post-order so every child is encoded before its parent.
func (m *Model) Encode(p *nn.Pass, b *feature.Batch) (*autograd.Var, error) {
	if err := m.check(b); err != nil {
		return nil, err
	}
	tp := p.Tape
	size := b.Size()

	comps := make([]*autograd.Var, len(b.Comps))
	for i, x := range b.Comps {
		comps[i] = m.CompEmbed.Forward(p, autograd.NewConst(x))
	}

	tree := b.Tree
	hidden := make([]*autograd.Var, tree.Len())
	for _, i := range tree.PostOrder() {
		n := tree.Nodes[i]

		children := make([]*autograd.Var, 0, len(n.Children))
		for _, c := range n.Children {
			children = append(children, hidden[c])
		}
		nodesHidden := m.NodeAgg.Forward(p, children, size)

		var selected []*autograd.Var
		if n.HasComps {
			for _, c := range n.CompIndices {
				selected = append(selected, comps[c])
			}
		}
		compsHidden := m.CompAgg.Forward(p, selected, size)

		loop := m.LoopEmbed.Forward(p, autograd.NewConst(b.Loops[n.LoopIndex]))

		x := tp.ConcatCols(nodesHidden, compsHidden, loop)
		hidden[i] = m.Concat.Forward(p, x)
	}
	return hidden[0], nil
}

// Head maps root hidden vectors to log costs.
func (m *Model) Head(p *nn.Pass, h *autograd.Var) *autograd.Var {
	x := m.Regression.Forward(p, h)
	return p.Tape.ELU(m.Predict.Forward(p, x))
}

// check rejects batches the model cannot encode before any numeric work.
func (m *Model) check(b *feature.Batch) error {
	if b.Size() == 0 {
		return errors.New("empty batch")
	}
	if err := b.Tree.Validate(); err != nil {
		return err
	}
	for i, x := range b.Comps {
		if _, c := x.Dims(); c != m.Config.ComputationFeatureDim {
			return errors.Errorf("computation %d has %d features, model expects %d", i, c, m.Config.ComputationFeatureDim)
		}
	}
	for i, x := range b.Loops {
		if _, c := x.Dims(); c != m.Config.LoopFeatureDim {
			return errors.Errorf("loop %d has %d features, model expects %d", i, c, m.Config.LoopFeatureDim)
		}
	}
	for i, n := range b.Tree.Nodes {
		if n.LoopIndex < 0 || n.LoopIndex >= len(b.Loops) {
			return errors.Wrapf(feature.ErrIndexOutOfRange, "node %d: loop_index %d with %d loop rows", i, n.LoopIndex, len(b.Loops))
		}
		if !n.HasComps {
			continue
		}
		if len(n.CompIndices) == 0 {
			return errors.Wrapf(feature.ErrMalformedRecord, "node %d has computations but no indices", i)
		}
		for _, c := range n.CompIndices {
			if c < 0 || c >= len(b.Comps) {
				return errors.Wrapf(feature.ErrIndexOutOfRange, "node %d: computation index %d with %d computation rows", i, c, len(b.Comps))
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the model that shares no parameters with m.
func (m *Model) Clone() *Model {
	c := build(m.Config.clone(), rand.New(rand.NewSource(m.Config.Seed)))
	if err := c.Params().SetState(m.Params().State()); err != nil {
		panic(err)
	}
	return c
}
