package train

import (
	"io"

	"github.com/QimingZheng/tensor-compiler/tc-go/costmodel/model"
	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
	"github.com/QimingZheng/tensor-compiler/tc-golib/fileutil"
	yaml "gopkg.in/yaml.v2"
)

// Settings is the content of a training config file:
//
//   model:
//     embedding_dim: 256
//     concat_layer_sizes: [128, 256]
//   training:
//     epochs: 200
//     criterion: mape
//
// Keys that are left out keep their default value.
type Settings struct {
	Model    model.Config `yaml:"model"`
	Training Config       `yaml:"training"`
}

// DefaultSettings ...
func DefaultSettings() Settings {
	return Settings{
		Model:    model.DefaultConfig(),
		Training: DefaultConfig(),
	}
}

// LoadSettings reads a yaml config file from a local, http or s3 path on top
// of the defaults.
func LoadSettings(path string) (s Settings, err error) {
	r, err := fileutil.NewReader(path)
	if err != nil {
		return Settings{}, errors.Wrapf(err, "error opening config")
	}
	defer errors.Defer(&err, r.Close)

	s = DefaultSettings()
	dec := yaml.NewDecoder(r)
	dec.SetStrict(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return Settings{}, errors.Wrapf(err, "error parsing config %s", path)
	}
	return s, nil
}

// Validate checks both sections.
func (s Settings) Validate() error {
	if err := s.Model.Validate(); err != nil {
		return errors.Wrapf(err, "model")
	}
	if err := s.Training.Validate(); err != nil {
		return errors.Wrapf(err, "training")
	}
	return nil
}
