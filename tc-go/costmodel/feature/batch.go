package feature

import (
	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
	"gonum.org/v1/gonum/mat"
)

// Batch is a group of samples sharing the same tree. Comps[i] stacks row i of
// every sample's computation features, Loops[i] row i of the loop features.
type Batch struct {
	Tree    *Tree
	Samples []*Sample
	Comps   []*mat.Dense // one Size x compDim matrix per computation
	Loops   []*mat.Dense // one Size x loopDim matrix per loop
	Labels  *mat.Dense   // Size x 1, log space
}

// Size is the number of samples in the batch.
func (b *Batch) Size() int {
	return len(b.Samples)
}

// NewBatch stacks the features of samples, which must share their tree
// structure and feature dimensions.
func NewBatch(samples []*Sample) (*Batch, error) {
	if len(samples) == 0 {
		return nil, errors.New("cannot build an empty batch")
	}
	first := samples[0]
	sig := first.Signature()
	for _, s := range samples[1:] {
		if s.Signature() != sig || s.CompDim() != first.CompDim() || s.LoopDim() != first.LoopDim() {
			return nil, errors.New("samples in a batch must share their tree and feature dimensions")
		}
	}

	b := &Batch{
		Tree:    first.Tree,
		Samples: samples,
		Labels:  mat.NewDense(len(samples), 1, nil),
	}
	for i := range first.CompFeatures {
		b.Comps = append(b.Comps, stackRow(samples, i, func(s *Sample) [][]float64 { return s.CompFeatures }))
	}
	for i := range first.LoopFeatures {
		b.Loops = append(b.Loops, stackRow(samples, i, func(s *Sample) [][]float64 { return s.LoopFeatures }))
	}
	for i, s := range samples {
		b.Labels.Set(i, 0, s.LogLabel)
	}
	return b, nil
}

func stackRow(samples []*Sample, row int, rows func(*Sample) [][]float64) *mat.Dense {
	width := len(rows(samples[0])[row])
	m := mat.NewDense(len(samples), width, nil)
	for i, s := range samples {
		m.SetRow(i, rows(s)[row])
	}
	return m
}

// Batches groups samples with equal signatures, in order of first
// appearance, into batches of at most size samples.
func Batches(samples []*Sample, size int) ([]*Batch, error) {
	if size <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", size)
	}

	var order []uint64
	groups := make(map[uint64][]*Sample)
	for _, s := range samples {
		sig := s.Signature()
		if _, ok := groups[sig]; !ok {
			order = append(order, sig)
		}
		groups[sig] = append(groups[sig], s)
	}

	var batches []*Batch
	for _, sig := range order {
		group := groups[sig]
		for start := 0; start < len(group); start += size {
			end := start + size
			if end > len(group) {
				end = len(group)
			}
			b, err := NewBatch(group[start:end])
			if err != nil {
				return nil, err
			}
			batches = append(batches, b)
		}
	}
	return batches, nil
}
