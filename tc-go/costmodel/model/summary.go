package model

import (
	"fmt"
	"math"

	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
	"github.com/montanaflynn/stats"
)

// Summary describes the absolute percentage errors of predicted costs.
type Summary struct {
	Count     int
	MeanAPE   float64
	MedianAPE float64
	P90APE    float64
	MaxAPE    float64
}

func (s Summary) String() string {
	return fmt.Sprintf("n=%d mean APE=%.2f%% median APE=%.2f%% p90 APE=%.2f%% max APE=%.2f%%",
		s.Count, s.MeanAPE, s.MedianAPE, s.P90APE, s.MaxAPE)
}

// Summarize compares predicted against measured costs, both in linear space.
func Summarize(predicted, measured []float64) (Summary, error) {
	if len(predicted) != len(measured) {
		return Summary{}, errors.Errorf("%d predictions for %d measurements", len(predicted), len(measured))
	}
	if len(predicted) == 0 {
		return Summary{}, errors.New("nothing to summarize")
	}

	ape := make(stats.Float64Data, len(predicted))
	for i := range predicted {
		ape[i] = 100 * math.Abs(measured[i]-predicted[i]) / measured[i]
	}

	s := Summary{Count: len(ape)}
	var err error
	if s.MeanAPE, err = ape.Mean(); err != nil {
		return Summary{}, err
	}
	if s.MedianAPE, err = ape.Median(); err != nil {
		return Summary{}, err
	}
	if s.P90APE, err = ape.Percentile(90); err != nil {
		return Summary{}, err
	}
	if s.MaxAPE, err = ape.Max(); err != nil {
		return Summary{}, err
	}
	return s, nil
}
