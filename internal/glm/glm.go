// Package glm hands first-level model fits to an external statistics program.
package glm

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/KyungWonPark/Grayordinate/internal/bids"
	"github.com/KyungWonPark/Grayordinate/internal/events"
	"github.com/KyungWonPark/Grayordinate/internal/handoff"
)

// Model holds first-level model settings
type Model struct {
	TR           float64 `mapstructure:"tr" yaml:"tr"`
	SliceTimeRef float64 `mapstructure:"slice_time_ref" yaml:"slice_time_ref"`
	NoiseModel   string  `mapstructure:"noise_model" yaml:"noise_model"`
	DriftModel   string  `mapstructure:"drift_model" yaml:"drift_model"`
	Standardize  bool    `mapstructure:"standardize" yaml:"standardize"`
}

// DefaultModel matches the study protocol: TR 2.2 s, AR(1) noise, cosine drift
func DefaultModel() Model {
	return Model{
		TR:           2.2,
		SliceTimeRef: 0.5,
		NoiseModel:   "ar1",
		DriftModel:   "cosine",
	}
}

// Validate checks the model settings
func (m Model) Validate() error {
	if m.TR <= 0 {
		return errors.Errorf("repetition time must be positive, got %g", m.TR)
	}
	if m.SliceTimeRef < 0 || m.SliceTimeRef > 1 {
		return errors.Errorf("slice_time_ref must be within [0, 1], got %g", m.SliceTimeRef)
	}
	switch m.NoiseModel {
	case "ar1", "ols":
	default:
		return errors.Errorf("unknown noise model %q", m.NoiseModel)
	}
	switch m.DriftModel {
	case "cosine", "polynomial", "none":
	default:
		return errors.Errorf("unknown drift model %q", m.DriftModel)
	}
	return nil
}

// Output names the files one contrast is written to
type Output struct {
	Contrast       events.Contrast
	EffectSize     string
	EffectVariance string
}

// Request is a single run fit
type Request struct {
	Run        bids.Run
	Events     []events.Event
	Conditions []string
	Outputs    []Output
	Model      Model
}

// Fitter fits a first-level model and writes one effect size and effect
// variance map per requested output.
type Fitter interface {
	Fit(ctx context.Context, req Request) error
}

// ExecFunc runs a program and returns its combined output
type ExecFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CommandFitter runs an external fitting program per run. Events are handed
// over as an N by 3 matrix (onset, duration, condition index) in shared memory.
type CommandFitter struct {
	Command   string
	Args      []string
	Publisher handoff.Publisher
	Exec      ExecFunc
	Log       logrus.FieldLogger
}

// NewCommandFitter returns a fitter using System V shared memory and os/exec
func NewCommandFitter(command string, args []string, log logrus.FieldLogger) *CommandFitter {
	return &CommandFitter{
		Command:   command,
		Args:      args,
		Publisher: handoff.SharedMemory{},
		Exec:      runCommand,
		Log:       log,
	}
}

// Fit publishes the events, runs the program and releases the segment
func (f *CommandFitter) Fit(ctx context.Context, req Request) error {
	if f.Command == "" {
		return errors.New("no fitting command configured")
	}
	if err := req.Model.Validate(); err != nil {
		return err
	}
	if len(req.Outputs) == 0 {
		return nil
	}

	m := events.Matrix(req.Events, req.Conditions)
	if m == nil {
		return errors.Errorf("run %s has no events", req.Run.BoldPath)
	}
	seg, err := f.Publisher.Publish(m)
	if err != nil {
		return err
	}
	defer func() {
		if err := seg.Release(); err != nil {
			f.Log.WithError(err).WithField("segment", seg.ID()).Warn("failed to release events segment")
		}
	}()

	args := append(append([]string{}, f.Args...), Arguments(req, seg)...)
	f.Log.WithFields(req.Run.Fields()).WithField("contrasts", len(req.Outputs)).Debug("fitting first-level model")

	out, err := f.Exec(ctx, f.Command, args...)
	if err != nil {
		return errors.Wrapf(err, "%s failed: %s", f.Command, strings.TrimSpace(string(out)))
	}
	return nil
}

// Arguments renders the command line for a request
func Arguments(req Request, seg handoff.Segment) []string {
	args := []string{
		"--bold", req.Run.BoldPath,
		"--events-shm", seg.ID(),
		"--events-rows", strconv.Itoa(seg.Rows()),
		"--conditions", strings.Join(req.Conditions, ","),
		"--subject", req.Run.Subject,
		"--tr", formatFloat(req.Model.TR),
		"--slice-time-ref", formatFloat(req.Model.SliceTimeRef),
		"--noise-model", req.Model.NoiseModel,
		"--drift-model", req.Model.DriftModel,
		"--standardize=" + strconv.FormatBool(req.Model.Standardize),
	}
	for _, o := range req.Outputs {
		args = append(args,
			"--contrast", o.Contrast.Condition,
			"--effect-size", o.EffectSize,
			"--effect-variance", o.EffectVariance,
		)
	}
	return args
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
