package feature

import (
	"math"

	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
	"github.com/QimingZheng/tensor-compiler/tc-golib/serialization"
)

// Sample is one program: its loop-nest tree, one feature row per computation
// and per loop, and its measured cost.
type Sample struct {
	Tree         *Tree
	CompFeatures [][]float64
	LoopFeatures [][]float64
	// Label is the measured cost, LogLabel its natural logarithm. The model
	// predicts in log space.
	Label    float64
	LogLabel float64

	// Source and Line locate the record the sample was read from, if any.
	Source string
	Line   int
}

// NewSample validates a record and converts it into a sample.
func NewSample(r *Record) (*Sample, error) {
	t, err := r.validate()
	if err != nil {
		return nil, err
	}
	return &Sample{
		Tree:         t,
		CompFeatures: r.ComputationFeatures,
		LoopFeatures: r.LoopFeatures,
		Label:        *r.Label,
		LogLabel:     math.Log(*r.Label),
	}, nil
}

// Record converts the sample back into its serialized form.
func (s *Sample) Record() *Record {
	label := s.Label
	return &Record{
		NodeRecord:          *s.Tree.Record(),
		ComputationFeatures: s.CompFeatures,
		LoopFeatures:        s.LoopFeatures,
		Label:               &label,
	}
}

// CompDim is the width of the computation feature rows, 0 if there are none.
func (s *Sample) CompDim() int {
	if len(s.CompFeatures) == 0 {
		return 0
	}
	return len(s.CompFeatures[0])
}

// LoopDim is the width of the loop feature rows.
func (s *Sample) LoopDim() int {
	if len(s.LoopFeatures) == 0 {
		return 0
	}
	return len(s.LoopFeatures[0])
}

// Signature identifies samples that can be batched together.
func (s *Sample) Signature() uint64 {
	return s.Tree.Signature(len(s.CompFeatures), len(s.LoopFeatures))
}

// Prepare reads every record of a dataset file. See PrepareN.
func Prepare(path string) ([]*Sample, error) {
	return PrepareN(path, 0)
}

// PrepareN reads up to max records (all of them if max <= 0) from a local,
// http or s3 path, optionally compressed, with one JSON record per line.
// Every record is validated before it is returned: records that do not parse
// or lack fields fail with ErrMalformedRecord, trees referencing missing
// feature rows fail with ErrIndexOutOfRange. The feature widths must agree
// across the whole file.
func PrepareN(path string, max int) ([]*Sample, error) {
	var samples []*Sample
	var compDim, loopDim int
	err := serialization.Decode(path, func(r *Record, line int) error {
		s, err := NewSample(r)
		if err != nil {
			return err
		}
		if len(samples) == 0 {
			loopDim = s.LoopDim()
		}
		if compDim == 0 {
			compDim = s.CompDim()
		}
		if err := checkDims(s, compDim, loopDim); err != nil {
			return err
		}
		s.Source, s.Line = path, line
		samples = append(samples, s)
		if max > 0 && len(samples) >= max {
			return serialization.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, recordError(path, err)
	}
	return samples, nil
}

// recordError attaches the file position to validation errors and turns
// decoding failures into ErrMalformedRecord.
func recordError(path string, err error) error {
	var de *serialization.DecodeError
	if !errors.As(err, &de) {
		return err
	}
	var re *RecordError
	if errors.As(de.Err, &re) {
		out := *re
		out.Path, out.Line = path, de.Line
		return &out
	}
	return &RecordError{Path: path, Line: de.Line, Kind: ErrMalformedRecord, Msg: de.Err.Error()}
}

// CheckDims requires every sample to have compDim wide computation rows and
// loopDim wide loop rows.
func CheckDims(samples []*Sample, compDim, loopDim int) error {
	for _, s := range samples {
		if err := checkDims(s, compDim, loopDim); err != nil {
			err.Path, err.Line = s.Source, s.Line
			return err
		}
	}
	return nil
}

func checkDims(s *Sample, compDim, loopDim int) *RecordError {
	if d := s.CompDim(); d != 0 && d != compDim {
		return malformed("computation features have width %d, expected %d", d, compDim)
	}
	if d := s.LoopDim(); d != loopDim {
		return malformed("loop features have width %d, expected %d", d, loopDim)
	}
	return nil
}
