package main

import (
	"fmt"
	"log"
	"math"

	"github.com/QimingZheng/tensor-compiler/tc-go/costmodel/feature"
	"github.com/QimingZheng/tensor-compiler/tc-go/costmodel/model"
	"github.com/QimingZheng/tensor-compiler/tc-go/costmodel/train"
	"github.com/QimingZheng/tensor-compiler/tc-golib/tclog"
	arg "github.com/alexflint/go-arg"
	humanize "github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

func fail(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

type args struct {
	Train  string `arg:"positional,required,help:training set (jsonl; may be gzipped and on s3)"`
	Val    string `arg:"positional,required,help:validation set"`
	Config string `arg:"help:yaml config file with model and training sections"`
	Out    string `arg:"help:write the best model here after training (.gob or .json; optionally .gz or .sz)"`

	ComputationFeatureDim *int     `arg:"--computation-feature-dim"`
	LoopFeatureDim        *int     `arg:"--loop-feature-dim"`
	EmbeddingDim          *int     `arg:"--embedding-dim"`
	MaxLR                 *float64 `arg:"--max-lr"`
	WeightDecay           *float64 `arg:"--weight-decay"`
	Epochs                *int     `arg:"--epochs"`
	LogEvery              *int     `arg:"--log-every"`
	LogFile               *string  `arg:"--log-file"`
	Criterion             *string  `arg:"--criterion,help:mse mae or mape"`
	BatchSize             *int     `arg:"--batch-size"`
	Checkpoint            *string  `arg:"--checkpoint,help:save the best model here whenever it improves"`
	LossChart             *string  `arg:"--loss-chart,help:png plot of the loss curves"`
	MaxSamples            int      `arg:"--max-samples,help:read at most this many samples per dataset (0 for all)"`

	Debug   bool
	Console bool
}

// apply overrides the settings with the flags that were given.
func (a args) apply(s *train.Settings) {
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setFloat := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt(&s.Model.ComputationFeatureDim, a.ComputationFeatureDim)
	setInt(&s.Model.LoopFeatureDim, a.LoopFeatureDim)
	setInt(&s.Model.EmbeddingDim, a.EmbeddingDim)
	setFloat(&s.Training.MaxLR, a.MaxLR)
	setFloat(&s.Training.WeightDecay, a.WeightDecay)
	setInt(&s.Training.Epochs, a.Epochs)
	setInt(&s.Training.LogEvery, a.LogEvery)
	setString(&s.Training.LogFile, a.LogFile)
	setString(&s.Training.Criterion, a.Criterion)
	setInt(&s.Training.BatchSize, a.BatchSize)
	setString(&s.Training.Checkpoint, a.Checkpoint)
	setString(&s.Training.LossChart, a.LossChart)
}

func main() {
	var a args
	arg.MustParse(&a)

	logger := tclog.New(tclog.Options{Debug: a.Debug, Console: a.Console})
	defer logger.Sync()

	settings := train.DefaultSettings()
	if a.Config != "" {
		var err error
		settings, err = train.LoadSettings(a.Config)
		fail(err)
	}
	a.apply(&settings)
	fail(settings.Validate())

	trainSet, err := feature.PrepareN(a.Train, a.MaxSamples)
	fail(err)
	valSet, err := feature.PrepareN(a.Val, a.MaxSamples)
	fail(err)
	logger.Info("loaded datasets",
		zap.String("train", a.Train), zap.String("train_samples", humanize.Comma(int64(len(trainSet)))),
		zap.String("val", a.Val), zap.String("val_samples", humanize.Comma(int64(len(valSet)))))

	cfg := settings.Model
	fail(feature.CheckDims(trainSet, cfg.ComputationFeatureDim, cfg.LoopFeatureDim))
	fail(feature.CheckDims(valSet, cfg.ComputationFeatureDim, cfg.LoopFeatureDim))

	m, err := model.New(cfg)
	fail(err)
	trainer, err := train.NewTrainer(m, settings.Training, logger)
	fail(err)
	res, err := trainer.Train(trainSet, valSet)
	fail(err)

	secs := res.Elapsed.Seconds()
	fmt.Printf("Training complete in %.0fm %.0fs   best validation loss: %.4f\n",
		math.Floor(secs/60), math.Mod(secs, 60), res.BestLoss)

	if a.Out != "" {
		fail(res.Best.Save(a.Out))
		logger.Info("saved best model", zap.String("path", a.Out))
	}
}
