// Package config loads contrast pipeline settings through viper.
package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/KyungWonPark/Grayordinate/internal/bids"
	"github.com/KyungWonPark/Grayordinate/internal/calc"
	"github.com/KyungWonPark/Grayordinate/internal/events"
	"github.com/KyungWonPark/Grayordinate/internal/glm"
)

// EnvPrefix prefixes environment overrides, e.g. GRAYORDINATE_TASK
const EnvPrefix = "GRAYORDINATE"

// GLM configures the first-level fitting program
type GLM struct {
	glm.Model `mapstructure:",squash" yaml:",inline"`
	Command   string   `mapstructure:"command" yaml:"command"`
	Args      []string `mapstructure:"args" yaml:"args"`
}

// FixedEffects configures session and study level pooling
type FixedEffects struct {
	calc.Options `mapstructure:",squash" yaml:",inline"`
	Workers      int `mapstructure:"workers" yaml:"workers"`
}

// Config is the contrast pipeline configuration
type Config struct {
	InputDir      string       `mapstructure:"input_dir" yaml:"input_dir"`
	OutputDir     string       `mapstructure:"output_dir" yaml:"output_dir"`
	Task          string       `mapstructure:"task" yaml:"task"`
	SubjectPrefix string       `mapstructure:"subject_prefix" yaml:"subject_prefix"`
	Subjects      []string     `mapstructure:"subjects" yaml:"subjects"`
	Sessions      []string     `mapstructure:"sessions" yaml:"sessions"`
	Baseline      string       `mapstructure:"baseline" yaml:"baseline"`
	GLM           GLM          `mapstructure:"glm" yaml:"glm"`
	FixedEffects  FixedEffects `mapstructure:"fixed_effects" yaml:"fixed_effects"`
}

// SetDefaults registers a default for every key so env overrides apply
func SetDefaults(v *viper.Viper) {
	model := glm.DefaultModel()

	v.SetDefault("input_dir", ".")
	v.SetDefault("output_dir", ".")
	v.SetDefault("task", "motor")
	v.SetDefault("subject_prefix", "MSC")
	v.SetDefault("subjects", []string{})
	v.SetDefault("sessions", []string{})
	v.SetDefault("baseline", events.DefaultBaseline)
	v.SetDefault("glm.tr", model.TR)
	v.SetDefault("glm.slice_time_ref", model.SliceTimeRef)
	v.SetDefault("glm.noise_model", model.NoiseModel)
	v.SetDefault("glm.drift_model", model.DriftModel)
	v.SetDefault("glm.standardize", model.Standardize)
	v.SetDefault("glm.command", "")
	v.SetDefault("glm.args", []string{})
	v.SetDefault("fixed_effects.precision_weighted", false)
	v.SetDefault("fixed_effects.dof", float64(calc.DefaultDOF))
	v.SetDefault("fixed_effects.workers", 0)
}

// Load unmarshals and validates the configuration held by v
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return c, errors.Wrap(err, "decoding configuration")
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks settings every pipeline level needs
func (c Config) Validate() error {
	if c.OutputDir == "" {
		return errors.New("output_dir is empty")
	}
	if c.Task == "" {
		return errors.New("task is empty")
	}
	if c.FixedEffects.DOF < 0 {
		return errors.Errorf("fixed_effects.dof must not be negative, got %g", c.FixedEffects.DOF)
	}
	return errors.Wrap(c.GLM.Model.Validate(), "glm")
}

// Query returns the discovery query for the configured study
func (c Config) Query() bids.Query {
	return bids.Query{
		Task:          c.Task,
		SubjectPrefix: c.SubjectPrefix,
		Subjects:      c.Subjects,
		Sessions:      c.Sessions,
	}
}
