// Package train fits the cost model: alternating train and validation
// phases per epoch, AdamW with a one-cycle schedule, and a deep copy of the
// model whenever the validation loss does not get worse.
package train

import (
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"math/rand"
	"time"

	"github.com/QimingZheng/tensor-compiler/tc-go/costmodel/feature"
	"github.com/QimingZheng/tensor-compiler/tc-go/costmodel/model"
	"github.com/QimingZheng/tensor-compiler/tc-golib/autograd"
	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
	"github.com/QimingZheng/tensor-compiler/tc-golib/fileutil"
	"github.com/QimingZheng/tensor-compiler/tc-golib/nn"
	"github.com/QimingZheng/tensor-compiler/tc-golib/optim"
	"github.com/QimingZheng/tensor-compiler/tc-golib/tclog"
	humanize "github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Phase is either the train or the val part of an epoch.
type Phase string

// Phases of an epoch, in order.
const (
	PhaseTrain Phase = "train"
	PhaseVal   Phase = "val"
)

// EpochError reports a failure during an epoch. Err wraps ErrShapeMismatch,
// ErrNumericDivergence or a model error.
type EpochError struct {
	Epoch int // 1-based
	Phase Phase
	Err   error
}

func (e *EpochError) Error() string {
	return fmt.Sprintf("epoch %d, %s phase: %v", e.Epoch, e.Phase, e.Err)
}

// Unwrap ...
func (e *EpochError) Unwrap() error {
	return e.Err
}

// EpochLoss holds the mean losses of one epoch.
type EpochLoss struct {
	Train float64
	Val   float64
}

// Result is the outcome of a training run.
type Result struct {
	Losses   []EpochLoss
	Best     *model.Model
	BestLoss float64
	Elapsed  time.Duration
}

// Trainer trains a model in place.
type Trainer struct {
	Model  *model.Model
	Config Config
	Logger *zap.Logger

	criterion Criterion
	opt       *optim.AdamW
	rng       *rand.Rand
}

// NewTrainer validates cfg and prepares the optimizer. A nil logger discards
// process logs; the epoch log file is still written.
func NewTrainer(m *model.Model, cfg Config, logger *zap.Logger) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	criterion, err := CriterionByName(cfg.Criterion)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = tclog.Nop()
	}
	return &Trainer{
		Model:     m,
		Config:    cfg,
		Logger:    logger,
		criterion: criterion,
		opt:       optim.NewAdamW(m.Params(), cfg.MaxLR, cfg.WeightDecay),
		rng:       rand.New(rand.NewSource(m.Config.Seed + 1)),
	}, nil
}

// Train runs Config.Epochs epochs over the training and validation samples.
// The returned Best model is an independent copy of the model as it was after
// the epoch with the lowest validation loss (the latest such epoch on ties).
func (t *Trainer) Train(trainSet, valSet []*feature.Sample) (res *Result, err error) {
	start := time.Now()
	cfg := t.Config

	trainBatches, err := feature.Batches(trainSet, cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	valBatches, err := feature.Batches(valSet, cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	if len(trainBatches) == 0 || len(valBatches) == 0 {
		return nil, errors.Errorf("need training and validation samples, got %d and %d", len(trainSet), len(valSet))
	}

	sched, err := optim.NewOneCycle(t.opt, cfg.MaxLR, cfg.Epochs*len(trainBatches))
	if err != nil {
		return nil, err
	}

	logFile := ioutil.Discard
	if cfg.LogFile != "" {
		f, ferr := fileutil.NewAppendWriter(cfg.LogFile)
		if ferr != nil {
			return nil, errors.Wrapf(ferr, "error opening log file")
		}
		defer errors.Defer(&err, f.Close)
		logFile = f
	}

	t.Logger.Info("starting training",
		zap.String("train_samples", humanize.Comma(int64(len(trainSet)))),
		zap.String("val_samples", humanize.Comma(int64(len(valSet)))),
		zap.Int("train_batches", len(trainBatches)),
		zap.Int("val_batches", len(valBatches)),
		zap.String("params", humanize.Comma(int64(t.opt.Params().Count()))),
		zap.Int("epochs", cfg.Epochs))

	res = &Result{BestLoss: math.Inf(1)}
	var durations tclog.Durations
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		epochStart := time.Now()

		trainLoss, err := t.runPhase(epoch, PhaseTrain, trainBatches, sched)
		if err != nil {
			return nil, err
		}
		durations.Record(string(PhaseTrain), time.Since(epochStart))

		valStart := time.Now()
		valLoss, err := t.runPhase(epoch, PhaseVal, valBatches, nil)
		if err != nil {
			return nil, err
		}
		durations.Record(string(PhaseVal), time.Since(valStart))
		elapsed := time.Since(epochStart)

		res.Losses = append(res.Losses, EpochLoss{Train: trainLoss, Val: valLoss})
		if valLoss <= res.BestLoss {
			res.BestLoss = valLoss
			res.Best = t.Model.Clone()
			if cfg.Checkpoint != "" {
				if err := res.Best.Save(cfg.Checkpoint); err != nil {
					return nil, errors.Wrapf(err, "error saving checkpoint")
				}
			}
		}

		t.Logger.Info("epoch done",
			zap.Int("epoch", epoch+1),
			zap.Float64("train_loss", trainLoss),
			zap.Float64("val_loss", valLoss),
			zap.Float64("best_loss", res.BestLoss),
			zap.Float64("lr", sched.LR()),
			zap.Duration("elapsed", elapsed))
		durations.Flush(t.Logger, "epoch durations")

		if epoch%cfg.LogEvery == 0 {
			if err := writeEpochLine(logFile, epoch+1, cfg.Epochs, trainLoss, valLoss, elapsed, res.BestLoss); err != nil {
				return nil, errors.Wrapf(err, "error writing log file")
			}
		}
	}

	res.Elapsed = time.Since(start)
	if err := writeSummaryLine(logFile, res.Elapsed, res.BestLoss); err != nil {
		return nil, errors.Wrapf(err, "error writing log file")
	}
	t.Logger.Info("training complete",
		zap.Duration("elapsed", res.Elapsed),
		zap.Float64("best_loss", res.BestLoss))

	if cfg.LossChart != "" {
		if err := RenderLossChart(cfg.LossChart, res.Losses); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// runPhase returns the mean loss per sample over the batches. Only the train
// phase updates the model.
func (t *Trainer) runPhase(epoch int, phase Phase, batches []*feature.Batch, sched *optim.OneCycle) (float64, error) {
	fail := func(err error) (float64, error) {
		return 0, &EpochError{Epoch: epoch + 1, Phase: phase, Err: err}
	}

	var running float64
	var count int
	for _, b := range batches {
		var p *nn.Pass
		if phase == PhaseTrain {
			t.opt.ZeroGrad()
			p = nn.NewTrainPass(t.rng)
		} else {
			p = nn.NewEvalPass()
		}

		out, err := t.Model.Forward(p, b)
		if err != nil {
			return fail(err)
		}
		loss, err := t.criterion(p.Tape, out, autograd.NewConst(b.Labels))
		if err != nil {
			return fail(err)
		}
		v := loss.Scalar()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fail(errors.Wrapf(ErrNumericDivergence, "loss is %v", v))
		}

		if phase == PhaseTrain {
			if err := p.Tape.Backward(loss); err != nil {
				return fail(err)
			}
			t.opt.Step()
			if err := sched.Step(); err != nil {
				return fail(err)
			}
		}

		running += v * float64(b.Size())
		count += b.Size()
	}
	return running / float64(count), nil
}

func writeEpochLine(w io.Writer, epoch, epochs int, trainLoss, valLoss float64, elapsed time.Duration, best float64) error {
	_, err := fmt.Fprintf(w, "Epoch %d/%d:  train Loss: %.4f   val Loss: %.4f   time: %.2fs   best: %.4f\n",
		epoch, epochs, trainLoss, valLoss, elapsed.Seconds(), best)
	return err
}

func writeSummaryLine(w io.Writer, elapsed time.Duration, best float64) error {
	secs := elapsed.Seconds()
	_, err := fmt.Fprintf(w, "-----> Training complete in %.0fm %.0fs   best validation loss: %.4f\n",
		math.Floor(secs/60), math.Mod(secs, 60), best)
	return err
}
