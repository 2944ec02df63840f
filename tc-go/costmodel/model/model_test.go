package model

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/QimingZheng/tensor-compiler/tc-go/costmodel/feature"
	"github.com/QimingZheng/tensor-compiler/tc-golib/nn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testConfig() Config {
	return Config{
		ComputationFeatureDim: 2,
		LoopFeatureDim:        3,
		EmbeddingDim:          4,
		CompEmbedLayerSizes:   []int{5},
		LoopEmbedLayerSizes:   []int{5, 5},
		ConcatLayerSizes:      []int{6},
		RegressionLayerSizes:  []int{5},
		DropRate:              0.1,
		Seed:                  1,
	}
}

func newModel(t *testing.T) *Model {
	m, err := New(testConfig())
	require.NoError(t, err)
	return m
}

// sample builds a sample from the JSON of its root node.
func sample(t *testing.T, root string, comps, loops [][]float64, label float64) *feature.Sample {
	var r feature.Record
	require.NoError(t, json.Unmarshal([]byte(root), &r.NodeRecord))
	r.ComputationFeatures = comps
	r.LoopFeatures = loops
	r.Label = &label
	s, err := feature.NewSample(&r)
	require.NoError(t, err)
	return s
}

func batch(t *testing.T, samples ...*feature.Sample) *feature.Batch {
	b, err := feature.NewBatch(samples)
	require.NoError(t, err)
	return b
}

var (
	comps = [][]float64{{1, 2}, {0.5, -1}, {3, 0}}
	loops = [][]float64{{0, 0, 1}, {1, 0, 16}, {0, 1, 8}, {1, 1, 4}}
)

// a three level nest with one computation per leaf
const threeLevels = `{"loop_index": 0, "has_comps": false, "child_list": [
	{"loop_index": 1, "has_comps": false, "child_list": [
		{"loop_index": 2, "has_comps": true, "computations_indices": [0], "child_list": []},
		{"loop_index": 3, "has_comps": true, "computations_indices": [1], "child_list": []}
	]}
]}`

const swappedLevels = `{"loop_index": 0, "has_comps": false, "child_list": [
	{"loop_index": 1, "has_comps": false, "child_list": [
		{"loop_index": 3, "has_comps": true, "computations_indices": [1], "child_list": []},
		{"loop_index": 2, "has_comps": true, "computations_indices": [0], "child_list": []}
	]}
]}`

func TestSingleNode(t *testing.T) {
	m, err := New(Config{ComputationFeatureDim: 2, LoopFeatureDim: 3, EmbeddingDim: 4, DropRate: 0.1})
	require.NoError(t, err)

	s := sample(t, `{"loop_index": 0, "has_comps": false, "child_list": []}`, [][]float64{}, [][]float64{{0, 1, 32}}, 7)
	out, err := m.Forward(nn.NewEvalPass(), batch(t, s))
	require.NoError(t, err)

	r, c := out.Dims()
	assert.Equal(t, 1, r)
	assert.Equal(t, 1, c)
	v := out.Scalar()
	assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	// elu output
	assert.True(t, v > -1)
}

func TestEmptyNodeUsesPlaceholders(t *testing.T) {
	m := newModel(t)
	s := sample(t, `{"loop_index": 0, "has_comps": false, "child_list": []}`, comps, loops, 2)

	b := batch(t, s, s, s)
	h, err := m.Encode(nn.NewEvalPass(), b)
	require.NoError(t, err)
	r, c := h.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 4, c)

	p := nn.NewTrainPass(rand.New(rand.NewSource(1)))
	out, err := m.Forward(p, b)
	require.NoError(t, err)
	require.NoError(t, p.Tape.Backward(p.Tape.Mean(out)))
	assert.NotNil(t, m.CompAgg.Placeholder.Grad)
	assert.NotNil(t, m.NodeAgg.Placeholder.Grad)
	assert.Nil(t, m.CompAgg.LSTM.InputWeight.Grad)
	assert.Nil(t, m.CompEmbed.Layers[0].Weight.Grad)
}

func TestAbsentComputationIndicesAreIgnored(t *testing.T) {
	m := newModel(t)
	a := sample(t, `{"loop_index": 0, "has_comps": false, "child_list": []}`, comps, loops, 2)
	b := sample(t, `{"loop_index": 0, "has_comps": false, "computations_indices": [2, 0], "child_list": []}`, comps, loops, 2)

	outA, err := m.Forward(nn.NewEvalPass(), batch(t, a))
	require.NoError(t, err)
	outB, err := m.Forward(nn.NewEvalPass(), batch(t, b))
	require.NoError(t, err)
	assert.Equal(t, outA.Scalar(), outB.Scalar())
}

func TestChildOrderMatters(t *testing.T) {
	m := newModel(t)
	a := sample(t, threeLevels, comps, loops, 2)
	b := sample(t, swappedLevels, comps, loops, 2)

	ha, err := m.Encode(nn.NewEvalPass(), batch(t, a))
	require.NoError(t, err)
	hb, err := m.Encode(nn.NewEvalPass(), batch(t, b))
	require.NoError(t, err)
	assert.False(t, mat.EqualApprox(ha.Value, hb.Value, 1e-12))
}

func TestHeadIsDeterministicInEval(t *testing.T) {
	m := newModel(t)
	h, err := m.Encode(nn.NewEvalPass(), batch(t, sample(t, threeLevels, comps, loops, 2)))
	require.NoError(t, err)

	a := m.Head(nn.NewEvalPass(), h)
	b := m.Head(nn.NewEvalPass(), h)
	assert.Equal(t, a.Scalar(), b.Scalar())
}

func TestBatchMatchesSingles(t *testing.T) {
	m := newModel(t)
	other := [][]float64{{2, 2}, {1, 1}, {0, 3}}
	a := sample(t, threeLevels, comps, loops, 2)
	b := sample(t, threeLevels, other, loops, 3)

	both, err := m.Forward(nn.NewEvalPass(), batch(t, a, b))
	require.NoError(t, err)
	for i, s := range []*feature.Sample{a, b} {
		single, err := m.Forward(nn.NewEvalPass(), batch(t, s))
		require.NoError(t, err)
		assert.InDelta(t, single.Scalar(), both.Value.At(i, 0), 1e-12)
	}
}

// every aggregator sees a sequence longer than one and both placeholders are
// used: the root has two children and no computations, the leaves have no
// children and one of them has two computations
const branching = `{"loop_index": 0, "has_comps": false, "child_list": [
	{"loop_index": 1, "has_comps": true, "computations_indices": [0, 2], "child_list": []},
	{"loop_index": 2, "has_comps": true, "computations_indices": [1], "child_list": []}
]}`

func TestGradientsReachEveryParameter(t *testing.T) {
	m := newModel(t)
	b := batch(t, sample(t, branching, comps, loops, 2))

	p := nn.NewTrainPass(rand.New(rand.NewSource(2)))
	p.Train = false
	out, err := m.Forward(p, b)
	require.NoError(t, err)
	require.NoError(t, p.Tape.Backward(p.Tape.Mean(out)))

	for _, param := range m.Params() {
		if assert.NotNil(t, param.Grad, param.Name) {
			assert.True(t, mat.Norm(param.Grad, 2) > 0, param.Name)
		}
	}
}

func TestRejectsInvalidBatches(t *testing.T) {
	m := newModel(t)

	wide := sample(t, `{"loop_index": 0, "has_comps": false, "child_list": []}`, comps, [][]float64{{1, 2, 3, 4}}, 2)
	_, err := m.Forward(nn.NewEvalPass(), batch(t, wide))
	assert.Error(t, err)

	s := sample(t, threeLevels, comps, loops, 2)
	b := batch(t, s)
	b.Tree = &feature.Tree{Nodes: append([]feature.Node{}, s.Tree.Nodes...)}
	b.Tree.Nodes[2].CompIndices = []int{5}
	_, err = m.Forward(nn.NewEvalPass(), b)
	assert.True(t, errors.Is(err, feature.ErrIndexOutOfRange))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := testConfig()
	cfg.EmbeddingDim = 0
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.DropRate = 1
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.ConcatLayerSizes = []int{4, -1}
	assert.Error(t, cfg.Validate())

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestDefaultShapes(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, m.CompEmbed.In())
	assert.Equal(t, 512, m.CompEmbed.Out())
	assert.Len(t, m.CompEmbed.Layers, 5)
	assert.Equal(t, 3, m.LoopEmbed.In())
	assert.Len(t, m.LoopEmbed.Layers, 5)
	assert.Equal(t, 3*512, m.Concat.In())
	assert.Len(t, m.Concat.Layers, 4)
	assert.Equal(t, 512, m.Regression.Out())
	assert.Len(t, m.Regression.Layers, 3)
	assert.Equal(t, 1, m.Predict.Out)
}

func TestClone(t *testing.T) {
	m := newModel(t)
	b := batch(t, sample(t, threeLevels, comps, loops, 2))

	c := m.Clone()
	before, err := c.Forward(nn.NewEvalPass(), b)
	require.NoError(t, err)
	orig, err := m.Forward(nn.NewEvalPass(), b)
	require.NoError(t, err)
	assert.Equal(t, orig.Scalar(), before.Scalar())

	m.Predict.Bias.Value.Set(0, 0, 10)
	after, err := c.Forward(nn.NewEvalPass(), b)
	require.NoError(t, err)
	assert.Equal(t, before.Scalar(), after.Scalar())
}

func TestSaveLoad(t *testing.T) {
	dir, err := ioutil.TempDir("", "model")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	m := newModel(t)
	b := batch(t, sample(t, threeLevels, comps, loops, 2))
	want, err := m.Forward(nn.NewEvalPass(), b)
	require.NoError(t, err)

	for _, name := range []string{"best.gob", "best.gob.gz", "best.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, m.Save(path), name)

		loaded, err := Load(path)
		require.NoError(t, err, name)
		assert.Equal(t, m.Config, loaded.Config, name)

		got, err := loaded.Forward(nn.NewEvalPass(), b)
		require.NoError(t, err)
		assert.InDelta(t, want.Scalar(), got.Scalar(), 1e-12, name)
	}

	_, err = Load(filepath.Join(dir, "missing.gob"))
	assert.Error(t, err)
}

func TestFromCheckpointMismatch(t *testing.T) {
	c := newModel(t).Checkpoint()
	c.Config.EmbeddingDim = 8
	_, err := FromCheckpoint(c)
	assert.Error(t, err)
}
