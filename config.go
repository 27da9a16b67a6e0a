package emfit

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config selects an estimator and carries its settings. It is read
// from a YAML file by the emfit command; the library API takes plain
// Options structs instead.
type Config struct {
	Model string `yaml:"model" json:"model"`

	GMM GMMConfig `yaml:"gmm,omitempty" json:"gmm,omitempty"`

	PPCA PPCAConfig `yaml:"ppca,omitempty" json:"ppca,omitempty"`
}

// GMMConfig holds the Gaussian mixture settings.
type GMMConfig struct {
	Clusters      int     `yaml:"clusters,omitempty" json:"clusters,omitempty"`
	Tolerance     float64 `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
	MaxIterations int     `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
}

// PPCAConfig holds the probabilistic PCA settings.
type PPCAConfig struct {
	Components          int     `yaml:"components,omitempty" json:"components,omitempty"`
	Tolerance           float64 `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
	MaxIterations       int     `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	Missing             bool    `yaml:"missing,omitempty" json:"missing,omitempty"`
	RefreshSecondMoment bool    `yaml:"refresh_second_moment,omitempty" json:"refresh_second_moment,omitempty"`
}

// ReadConfig reads a Config from a YAML file.
func ReadConfig(fn string) (*Config, error) {
	data, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	config := &Config{}
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", fn, err)
	}
	return config, nil
}
