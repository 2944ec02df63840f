package model

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/QimingZheng/tensor-compiler/tc-go/costmodel/feature"
	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
	"github.com/QimingZheng/tensor-compiler/tc-golib/nn"
	spooky "github.com/dgryski/go-spooky"
	lru "github.com/hashicorp/golang-lru"
)

const predictBatchSize = 64

// Predictor evaluates a trained model on candidate programs, for instance to
// let a scheduler rank transformations. Predictions are cached by the content
// of the sample. A Predictor is safe for concurrent use.
type Predictor struct {
	model *Model
	cache *lru.Cache
}

// NewPredictor caches up to cacheSize predictions.
func NewPredictor(m *Model, cacheSize int) (*Predictor, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.Wrapf(err, "error creating prediction cache")
	}
	return &Predictor{model: m, cache: cache}, nil
}

// Predict returns the predicted cost of the sample, in the same units as the
// labels it was trained on.
func (p *Predictor) Predict(s *feature.Sample) (float64, error) {
	costs, err := p.PredictAll([]*feature.Sample{s})
	if err != nil {
		return 0, err
	}
	return costs[0], nil
}

// PredictAll returns the predicted costs of the samples, in order.
func (p *Predictor) PredictAll(samples []*feature.Sample) ([]float64, error) {
	costs := make([]float64, len(samples))
	keys := make([]uint64, len(samples))
	index := make(map[*feature.Sample][]int)

	var missing []*feature.Sample
	for i, s := range samples {
		keys[i] = contentKey(s)
		if v, ok := p.cache.Get(keys[i]); ok {
			costs[i] = v.(float64)
			continue
		}
		if _, ok := index[s]; !ok {
			missing = append(missing, s)
		}
		index[s] = append(index[s], i)
	}
	if len(missing) == 0 {
		return costs, nil
	}

	batches, err := feature.Batches(missing, predictBatchSize)
	if err != nil {
		return nil, err
	}
	for _, b := range batches {
		out, err := p.model.Forward(nn.NewEvalPass(), b)
		if err != nil {
			return nil, err
		}
		for j, s := range b.Samples {
			cost := math.Exp(out.Value.At(j, 0))
			for _, i := range index[s] {
				costs[i] = cost
				p.cache.Add(keys[i], cost)
			}
		}
	}
	return costs, nil
}

// Ranked is a candidate with its predicted cost.
type Ranked struct {
	Index  int
	Sample *feature.Sample
	Cost   float64
}

// Rank orders candidates from cheapest to most expensive predicted cost. Ties
// keep the order of the input.
func (p *Predictor) Rank(candidates []*feature.Sample) ([]Ranked, error) {
	costs, err := p.PredictAll(candidates)
	if err != nil {
		return nil, err
	}
	ranked := make([]Ranked, len(candidates))
	for i, s := range candidates {
		ranked[i] = Ranked{Index: i, Sample: s, Cost: costs[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Cost < ranked[j].Cost
	})
	return ranked, nil
}

// contentKey hashes the tree and every feature value of the sample.
func contentKey(s *feature.Sample) uint64 {
	buf := make([]byte, 8, 8*(1+len(s.CompFeatures)*s.CompDim()+len(s.LoopFeatures)*s.LoopDim()))
	binary.LittleEndian.PutUint64(buf, s.Signature())
	var b [8]byte
	for _, rows := range [][][]float64{s.CompFeatures, s.LoopFeatures} {
		for _, row := range rows {
			for _, v := range row {
				binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
				buf = append(buf, b[:]...)
			}
		}
	}
	return spooky.Hash64(buf)
}
