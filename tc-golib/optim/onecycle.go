package optim

import (
	"math"

	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
)

// OneCycle ramps the learning rate from MaxLR/DivFactor up to MaxLR over the
// first PctStart of the run and then anneals it down to
// MaxLR/(DivFactor*FinalDivFactor), both with cosine annealing. The first
// moment coefficient of the optimizer cycles inversely between MaxMomentum
// and BaseMomentum.
type OneCycle struct {
	MaxLR          float64
	TotalSteps     int
	PctStart       float64
	DivFactor      float64
	FinalDivFactor float64
	BaseMomentum   float64
	MaxMomentum    float64

	opt  *AdamW
	step int
}

// NewOneCycle attaches a schedule to opt and sets its initial learning rate
// and momentum.
func NewOneCycle(opt *AdamW, maxLR float64, totalSteps int) (*OneCycle, error) {
	if totalSteps <= 0 {
		return nil, errors.Errorf("one cycle schedule needs a positive number of steps, got %d", totalSteps)
	}
	if maxLR <= 0 {
		return nil, errors.Errorf("max learning rate must be positive, got %v", maxLR)
	}
	s := &OneCycle{
		MaxLR:          maxLR,
		TotalSteps:     totalSteps,
		PctStart:       0.3,
		DivFactor:      25,
		FinalDivFactor: 1e4,
		BaseMomentum:   0.85,
		MaxMomentum:    0.95,
		opt:            opt,
	}
	s.apply()
	return s, nil
}

// Step advances the schedule by one optimizer step.
func (s *OneCycle) Step() error {
	if s.step+1 > s.TotalSteps {
		return errors.Errorf("one cycle schedule stepped %d times, only %d steps were planned", s.step+1, s.TotalSteps)
	}
	s.step++
	s.apply()
	return nil
}

// LR is the current learning rate.
func (s *OneCycle) LR() float64 {
	return s.opt.LR
}

func (s *OneCycle) apply() {
	s.opt.LR, s.opt.Beta1 = s.at(s.step)
}

// at computes the learning rate and momentum after step steps.
func (s *OneCycle) at(step int) (float64, float64) {
	initial := s.MaxLR / s.DivFactor
	min := initial / s.FinalDivFactor

	warmupEnd := s.PctStart*float64(s.TotalSteps) - 1
	end := float64(s.TotalSteps - 1)
	x := float64(step)

	if x <= warmupEnd {
		pct := x / warmupEnd
		return cosAnneal(initial, s.MaxLR, pct), cosAnneal(s.MaxMomentum, s.BaseMomentum, pct)
	}
	pct := (x - warmupEnd) / (end - warmupEnd)
	return cosAnneal(s.MaxLR, min, pct), cosAnneal(s.BaseMomentum, s.MaxMomentum, pct)
}

func cosAnneal(start, end, pct float64) float64 {
	return end + (start-end)/2*(math.Cos(math.Pi*pct)+1)
}
