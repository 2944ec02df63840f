package model

import (
	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
	"github.com/QimingZheng/tensor-compiler/tc-golib/nn"
	"github.com/QimingZheng/tensor-compiler/tc-golib/serialization"
)

// Checkpoint is the serialized form of a model: its configuration and a copy
// of every parameter.
type Checkpoint struct {
	Config Config   `json:"config"`
	Params nn.State `json:"params"`
}

// Checkpoint copies the state of the model.
func (m *Model) Checkpoint() *Checkpoint {
	return &Checkpoint{
		Config: m.Config.clone(),
		Params: m.Params().State(),
	}
}

// FromCheckpoint rebuilds a model.
func FromCheckpoint(c *Checkpoint) (*Model, error) {
	m, err := New(c.Config)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid checkpoint config")
	}
	if err := m.Params().SetState(c.Params); err != nil {
		return nil, errors.Wrapf(err, "invalid checkpoint params")
	}
	return m, nil
}

// Save writes the model to a local or s3 path. The extension selects the
// encoding, e.g. best.gob, best.gob.gz or best.json.
func (m *Model) Save(path string) error {
	return serialization.Encode(path, m.Checkpoint())
}

// Load reads a model written by Save.
func Load(path string) (*Model, error) {
	var c Checkpoint
	if err := serialization.Decode(path, &c); err != nil {
		return nil, err
	}
	m, err := FromCheckpoint(&c)
	if err != nil {
		return nil, errors.Wrapf(err, "error loading %s", path)
	}
	return m, nil
}
