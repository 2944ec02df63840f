package train

import (
	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
)

// Config holds the training hyperparameters.
type Config struct {
	MaxLR       float64 `yaml:"max_lr"`
	WeightDecay float64 `yaml:"weight_decay"`
	Epochs      int     `yaml:"epochs"`
	// LogEvery controls how often a line is appended to LogFile: after epochs
	// 1, 1+LogEvery, 1+2*LogEvery, ...
	LogEvery  int    `yaml:"log_every"`
	LogFile   string `yaml:"log_file"`
	Criterion string `yaml:"criterion"`
	BatchSize int    `yaml:"batch_size"`
	// Checkpoint, if set, receives the best model every time it improves.
	Checkpoint string `yaml:"checkpoint"`
	// LossChart, if set, receives a png plot of the loss curves.
	LossChart string `yaml:"loss_chart"`
	Device    string `yaml:"device"`
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		MaxLR:       1e-3,
		WeightDecay: 1e-2,
		Epochs:      1000,
		LogEvery:    5,
		LogFile:     "log.txt",
		Criterion:   "mse",
		BatchSize:   1,
		Device:      "cpu",
	}
}

// Validate ...
func (c Config) Validate() error {
	switch {
	case c.MaxLR <= 0:
		return errors.Errorf("max_lr must be positive, got %v", c.MaxLR)
	case c.WeightDecay < 0:
		return errors.Errorf("weight_decay must not be negative, got %v", c.WeightDecay)
	case c.Epochs <= 0:
		return errors.Errorf("epochs must be positive, got %d", c.Epochs)
	case c.LogEvery <= 0:
		return errors.Errorf("log_every must be positive, got %d", c.LogEvery)
	case c.BatchSize <= 0:
		return errors.Errorf("batch_size must be positive, got %d", c.BatchSize)
	case c.Device != "cpu":
		return errors.Errorf("unsupported device %q, only cpu is available", c.Device)
	}
	if _, err := CriterionByName(c.Criterion); err != nil {
		return err
	}
	return nil
}
