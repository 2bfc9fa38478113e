package servingcfg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"modelconv/internal/shape"
)

// TensorConfig is one tensor record in a serving configuration: name,
// datatype token, and declared shape. A -1 in the leading position is the
// serving engine's batch wildcard and the only legal wildcard for this
// model family.
type TensorConfig struct {
	// example: input_ids
	Name string `json:"name" yaml:"name"`
	// Datatype token, e.g. INT64, FP32.
	DataType string `json:"datatype" yaml:"datatype"`
	// Declared dims, batch position first.
	// example: [-1,100]
	Dims []int `json:"shape" yaml:"shape"`
}

// ModelConfig is the serving engine's per-model configuration, reduced to
// the fields this workflow reads and writes.
type ModelConfig struct {
	Name         string         `json:"name" yaml:"name"`
	Platform     string         `json:"platform,omitempty" yaml:"platform,omitempty"`
	Backend      string         `json:"backend,omitempty" yaml:"backend,omitempty"`
	MaxBatchSize int            `json:"max_batch_size" yaml:"max_batch_size"`
	Inputs       []TensorConfig `json:"input" yaml:"input"`
	Outputs      []TensorConfig `json:"output" yaml:"output"`
}

// Input returns the input tensor with the given name, if declared.
func (c ModelConfig) Input(name string) (TensorConfig, bool) {
	for _, t := range c.Inputs {
		if t.Name == name {
			return t, true
		}
	}
	return TensorConfig{}, false
}

// Load reads a serving configuration based on its extension.
// Supports: .pbtxt/.txt (serving engine native), .yaml/.yml, .json
func Load(path string) (ModelConfig, error) {
	var cfg ModelConfig
	if path == "" {
		return cfg, fmt.Errorf("empty serving config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pbtxt", ".txt":
		return ParsePBTxt(b)
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported serving config extension: %s", ext)
	}
	return cfg, nil
}

// FromSpec builds a serving config from conversion-time shape specs. When
// wildcardBatch is set the batch position is declared -1 so the engine
// accepts any batch up to its limit; every other dim stays concrete.
func FromSpec(modelName, platform string, inputs shape.Spec, outputs shape.Spec, wildcardBatch bool) ModelConfig {
	cfg := ModelConfig{
		Name:     modelName,
		Platform: platform,
		Inputs:   tensorsFromSpec(inputs, wildcardBatch),
		Outputs:  tensorsFromSpec(outputs, wildcardBatch),
	}
	return cfg
}

func tensorsFromSpec(spec shape.Spec, wildcardBatch bool) []TensorConfig {
	out := make([]TensorConfig, 0, len(spec.Tensors))
	for _, t := range spec.Tensors {
		dims := append([]int(nil), t.Dims...)
		if wildcardBatch && len(dims) > 0 {
			dims[0] = -1
		}
		dt := t.DType
		if dt == "" {
			dt = "FP32"
		}
		out = append(out, TensorConfig{Name: t.Name, DataType: dt, Dims: dims})
	}
	return out
}
