package train

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/QimingZheng/tensor-compiler/tc-go/costmodel/feature"
	"github.com/QimingZheng/tensor-compiler/tc-go/costmodel/model"
	"github.com/QimingZheng/tensor-compiler/tc-golib/autograd"
	"github.com/QimingZheng/tensor-compiler/tc-golib/nn"
	"github.com/QimingZheng/tensor-compiler/tc-golib/tclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// three levels with one computation per leaf
const nest = `{"loop_index": 0, "has_comps": false, "child_list": [
	{"loop_index": 1, "has_comps": false, "child_list": [
		{"loop_index": 2, "has_comps": true, "computations_indices": [0], "child_list": []},
		{"loop_index": 3, "has_comps": true, "computations_indices": [1], "child_list": []}
	]}
]}`

func makeSample(t *testing.T, scale, label float64) *feature.Sample {
	var r feature.Record
	require.NoError(t, json.Unmarshal([]byte(nest), &r.NodeRecord))
	r.ComputationFeatures = [][]float64{{scale, 1}, {2, scale}}
	r.LoopFeatures = [][]float64{{0, 0, 1}, {1, 0, scale}, {0, 1, 8}, {0, 0, 4}}
	r.Label = &label
	s, err := feature.NewSample(&r)
	require.NoError(t, err)
	return s
}

func datasets(t *testing.T) ([]*feature.Sample, []*feature.Sample) {
	var trainSet, valSet []*feature.Sample
	for i := 0; i < 6; i++ {
		x := float64(i + 1)
		trainSet = append(trainSet, makeSample(t, x, 1+x))
	}
	for i := 0; i < 3; i++ {
		x := float64(i) + 1.5
		valSet = append(valSet, makeSample(t, x, 1+x))
	}
	return trainSet, valSet
}

func smallModel(t *testing.T) *model.Model {
	m, err := model.New(model.Config{
		ComputationFeatureDim: 2,
		LoopFeatureDim:        3,
		EmbeddingDim:          4,
		CompEmbedLayerSizes:   []int{6},
		LoopEmbedLayerSizes:   []int{6},
		ConcatLayerSizes:      []int{6},
		RegressionLayerSizes:  []int{6},
		DropRate:              0.1,
		Seed:                  3,
	})
	require.NoError(t, err)
	return m
}

func testConfig(dir string) Config {
	cfg := DefaultConfig()
	cfg.Epochs = 7
	cfg.LogEvery = 3
	cfg.BatchSize = 2
	cfg.MaxLR = 1e-2
	cfg.LogFile = filepath.Join(dir, "log.txt")
	return cfg
}

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "train")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// evaluate computes the mean loss of m over samples without updating it.
func evaluate(t *testing.T, m *model.Model, samples []*feature.Sample, batchSize int) float64 {
	batches, err := feature.Batches(samples, batchSize)
	require.NoError(t, err)
	var sum float64
	for _, b := range batches {
		p := nn.NewEvalPass()
		out, err := m.Forward(p, b)
		require.NoError(t, err)
		loss, err := MSE(p.Tape, out, autograd.NewConst(b.Labels))
		require.NoError(t, err)
		sum += loss.Scalar() * float64(b.Size())
	}
	return sum / float64(len(samples))
}

func TestTrain(t *testing.T) {
	dir := tempDir(t)
	trainSet, valSet := datasets(t)
	cfg := testConfig(dir)
	cfg.Checkpoint = filepath.Join(dir, "best.gob")

	m := smallModel(t)
	trainer, err := NewTrainer(m, cfg, tclog.Nop())
	require.NoError(t, err)
	res, err := trainer.Train(trainSet, valSet)
	require.NoError(t, err)

	require.Len(t, res.Losses, cfg.Epochs)
	best := math.Inf(1)
	var bests []float64
	for _, l := range res.Losses {
		assert.False(t, math.IsNaN(l.Train) || math.IsNaN(l.Val))
		if l.Val <= best {
			best = l.Val
			bests = append(bests, best)
		}
	}
	for i := 1; i < len(bests); i++ {
		assert.True(t, bests[i] <= bests[i-1], "best validation loss regressed")
	}
	assert.Equal(t, best, res.BestLoss)

	// the best model is a snapshot, not the live model
	require.NotNil(t, res.Best)
	assert.NotSame(t, m, res.Best)
	assert.InDelta(t, res.BestLoss, evaluate(t, res.Best, valSet, cfg.BatchSize), 1e-9)

	saved, err := model.Load(cfg.Checkpoint)
	require.NoError(t, err)
	assert.InDelta(t, res.BestLoss, evaluate(t, saved, valSet, cfg.BatchSize), 1e-9)
}

func TestTrainingReducesLoss(t *testing.T) {
	dir := tempDir(t)
	trainSet, valSet := datasets(t)
	cfg := testConfig(dir)
	cfg.Epochs = 40
	cfg.LogFile = ""

	m := smallModel(t)
	m.Config.DropRate = 0
	for _, s := range []*nn.Stack{m.CompEmbed, m.LoopEmbed, m.Concat, m.Regression} {
		for i := range s.Layers {
			s.Layers[i].DropRate = 0
		}
	}
	before := evaluate(t, m, trainSet, 1)

	trainer, err := NewTrainer(m, cfg, nil)
	require.NoError(t, err)
	res, err := trainer.Train(trainSet, valSet)
	require.NoError(t, err)

	assert.True(t, res.Losses[len(res.Losses)-1].Train < before)
}

var epochLine = regexp.MustCompile(`^Epoch (\d+)/7:  train Loss: \d+\.\d{4}   val Loss: \d+\.\d{4}   time: \d+\.\d{2}s   best: \d+\.\d{4}$`)

func TestLogFile(t *testing.T) {
	dir := tempDir(t)
	trainSet, valSet := datasets(t)
	cfg := testConfig(dir)

	trainer, err := NewTrainer(smallModel(t), cfg, nil)
	require.NoError(t, err)
	res, err := trainer.Train(trainSet, valSet)
	require.NoError(t, err)

	buf, err := ioutil.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(buf), "\n"), "\n")
	require.Len(t, lines, 4)

	var epochs []string
	for _, line := range lines[:3] {
		m := epochLine.FindStringSubmatch(line)
		require.NotNil(t, m, line)
		epochs = append(epochs, m[1])
	}
	assert.Equal(t, []string{"1", "4", "7"}, epochs)
	assert.Contains(t, lines[0], "train Loss: "+formatLoss(res.Losses[0].Train))

	assert.Regexp(t, `^-----> Training complete in \d+m \d+s   best validation loss: \d+\.\d{4}$`, lines[3])
	assert.True(t, strings.HasSuffix(lines[3], formatLoss(res.BestLoss)))

	// the log is appended to
	trainer, err = NewTrainer(smallModel(t), cfg, nil)
	require.NoError(t, err)
	_, err = trainer.Train(trainSet, valSet)
	require.NoError(t, err)
	buf, err = ioutil.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSuffix(string(buf), "\n"), "\n"), 8)
}

func formatLoss(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

func TestLossChart(t *testing.T) {
	dir := tempDir(t)
	trainSet, valSet := datasets(t)
	cfg := testConfig(dir)
	cfg.LossChart = filepath.Join(dir, "loss.png")

	trainer, err := NewTrainer(smallModel(t), cfg, nil)
	require.NoError(t, err)
	_, err = trainer.Train(trainSet, valSet)
	require.NoError(t, err)

	info, err := os.Stat(cfg.LossChart)
	require.NoError(t, err)
	assert.True(t, info.Size() > 0)

	assert.Error(t, RenderLossChart(filepath.Join(dir, "one.png"), []EpochLoss{{Train: 1, Val: 1}}))
}

func TestNumericDivergence(t *testing.T) {
	dir := tempDir(t)
	trainSet, valSet := datasets(t)
	trainSet[0].LogLabel = math.Inf(1)
	cfg := testConfig(dir)
	cfg.Checkpoint = filepath.Join(dir, "best.gob")

	trainer, err := NewTrainer(smallModel(t), cfg, nil)
	require.NoError(t, err)
	_, err = trainer.Train(trainSet, valSet)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNumericDivergence))

	var ee *EpochError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 1, ee.Epoch)
	assert.Equal(t, PhaseTrain, ee.Phase)

	_, err = os.Stat(cfg.Checkpoint)
	assert.True(t, os.IsNotExist(err))
}

func TestEmptyDatasets(t *testing.T) {
	trainSet, _ := datasets(t)
	trainer, err := NewTrainer(smallModel(t), testConfig(tempDir(t)), nil)
	require.NoError(t, err)
	_, err = trainer.Train(trainSet, nil)
	assert.Error(t, err)
}

func TestCriteria(t *testing.T) {
	tp := autograd.NewInferenceTape()
	pred := autograd.NewConst(mat.NewDense(2, 1, []float64{1, 4}))
	target := autograd.NewConst(mat.NewDense(2, 1, []float64{2, 2}))

	mse, err := MSE(tp, pred, target)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, mse.Scalar(), 1e-12)

	mae, err := MAE(tp, pred, target)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, mae.Scalar(), 1e-12)

	mape, err := MAPE(tp, pred, target)
	require.NoError(t, err)
	assert.InDelta(t, 100*(0.5+1)/2, mape.Scalar(), 1e-3)

	zero := autograd.NewConst(mat.NewDense(1, 1, []float64{0}))
	mape, err = MAPE(tp, autograd.NewRow(1), zero)
	require.NoError(t, err)
	assert.False(t, math.IsInf(mape.Scalar(), 0))
}

func TestCriterionShapeMismatch(t *testing.T) {
	tp := autograd.NewInferenceTape()
	pred := autograd.NewConst(mat.NewDense(3, 1, nil))
	target := autograd.NewConst(mat.NewDense(1, 3, nil))
	for _, name := range []string{"mse", "mae", "mape"} {
		c, err := CriterionByName(name)
		require.NoError(t, err)
		_, err = c(tp, pred, target)
		assert.True(t, errors.Is(err, ErrShapeMismatch), name)
	}

	_, err := CriterionByName("huber")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	for name, mutate := range map[string]func(*Config){
		"lr":        func(c *Config) { c.MaxLR = 0 },
		"decay":     func(c *Config) { c.WeightDecay = -1 },
		"epochs":    func(c *Config) { c.Epochs = 0 },
		"log every": func(c *Config) { c.LogEvery = 0 },
		"batch":     func(c *Config) { c.BatchSize = 0 },
		"device":    func(c *Config) { c.Device = "cuda:0" },
		"criterion": func(c *Config) { c.Criterion = "huber" },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}

	_, err := NewTrainer(smallModel(t), Config{}, nil)
	assert.Error(t, err)
}
