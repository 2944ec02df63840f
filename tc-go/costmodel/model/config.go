package model

import (
	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
)

// Config describes the shape of the model. Hidden layer sizes of each stack
// are configured separately; the input and output widths follow from the
// feature and embedding dimensions.
type Config struct {
	ComputationFeatureDim int     `yaml:"computation_feature_dim" json:"computation_feature_dim"`
	LoopFeatureDim        int     `yaml:"loop_feature_dim" json:"loop_feature_dim"`
	EmbeddingDim          int     `yaml:"embedding_dim" json:"embedding_dim"`
	CompEmbedLayerSizes   []int   `yaml:"comp_embed_layer_sizes" json:"comp_embed_layer_sizes"`
	LoopEmbedLayerSizes   []int   `yaml:"loop_embed_layer_sizes" json:"loop_embed_layer_sizes"`
	ConcatLayerSizes      []int   `yaml:"concat_layer_sizes" json:"concat_layer_sizes"`
	RegressionLayerSizes  []int   `yaml:"regression_layer_sizes" json:"regression_layer_sizes"`
	DropRate              float64 `yaml:"drop_rate" json:"drop_rate"`
	Seed                  int64   `yaml:"seed" json:"seed"`
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		ComputationFeatureDim: 2,
		LoopFeatureDim:        3,
		EmbeddingDim:          512,
		CompEmbedLayerSizes:   []int{128, 256, 256, 256},
		LoopEmbedLayerSizes:   []int{128, 256, 256, 256},
		ConcatLayerSizes:      []int{128, 256, 256},
		RegressionLayerSizes:  []int{128, 256},
		DropRate:              0.1,
	}
}

// Validate checks that every width is positive and the drop rate is in [0, 1).
func (c Config) Validate() error {
	dims := []struct {
		name string
		v    int
	}{
		{"computation_feature_dim", c.ComputationFeatureDim},
		{"loop_feature_dim", c.LoopFeatureDim},
		{"embedding_dim", c.EmbeddingDim},
	}
	for _, d := range dims {
		if d.v <= 0 {
			return errors.Errorf("%s must be positive, got %d", d.name, d.v)
		}
	}

	sizes := map[string][]int{
		"comp_embed_layer_sizes": c.CompEmbedLayerSizes,
		"loop_embed_layer_sizes": c.LoopEmbedLayerSizes,
		"concat_layer_sizes":     c.ConcatLayerSizes,
		"regression_layer_sizes": c.RegressionLayerSizes,
	}
	for name, list := range sizes {
		for _, s := range list {
			if s <= 0 {
				return errors.Errorf("%s must only hold positive sizes, got %v", name, list)
			}
		}
	}

	if c.DropRate < 0 || c.DropRate >= 1 {
		return errors.Errorf("drop_rate must be in [0, 1), got %v", c.DropRate)
	}
	return nil
}

func (c Config) clone() Config {
	copyInts := func(xs []int) []int {
		if xs == nil {
			return nil
		}
		return append([]int{}, xs...)
	}
	c.CompEmbedLayerSizes = copyInts(c.CompEmbedLayerSizes)
	c.LoopEmbedLayerSizes = copyInts(c.LoopEmbedLayerSizes)
	c.ConcatLayerSizes = copyInts(c.ConcatLayerSizes)
	c.RegressionLayerSizes = copyInts(c.RegressionLayerSizes)
	return c
}
