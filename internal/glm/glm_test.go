package glm

import (
	"context"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KyungWonPark/Grayordinate/internal/bids"
	"github.com/KyungWonPark/Grayordinate/internal/events"
	"github.com/KyungWonPark/Grayordinate/internal/handoff"
)

type fakeSegment struct {
	rows, cols int
	released   bool
}

func (s *fakeSegment) ID() string     { return "4242" }
func (s *fakeSegment) Rows() int      { return s.rows }
func (s *fakeSegment) Cols() int      { return s.cols }
func (s *fakeSegment) Release() error { s.released = true; return nil }

type fakePublisher struct {
	published *mat64.Dense
	segment   *fakeSegment
}

func (p *fakePublisher) Publish(m *mat64.Dense) (handoff.Segment, error) {
	p.published = m
	r, c := m.Dims()
	p.segment = &fakeSegment{rows: r, cols: c}
	return p.segment, nil
}

func request() Request {
	evs := []events.Event{
		{Onset: 0, Duration: 15.4, TrialType: "rest"},
		{Onset: 15.4, Duration: 15.4, TrialType: "RHand"},
	}
	return Request{
		Run:        bids.Run{Subject: "MSC01", Session: "func01", Task: "motor", Run: "01", BoldPath: "/data/bold.nii.gz"},
		Events:     evs,
		Conditions: events.Conditions(evs),
		Outputs: []Output{{
			Contrast:       events.Contrast{Name: "RHand vs baseline", Condition: "RHand"},
			EffectSize:     "/out/es.nii.gz",
			EffectVariance: "/out/ev.nii.gz",
		}},
		Model: DefaultModel(),
	}
}

func TestCommandFitter(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pub := &fakePublisher{}

	var gotName string
	var gotArgs []string
	f := &CommandFitter{
		Command:   "fit-first-level",
		Args:      []string{"--verbose"},
		Publisher: pub,
		Log:       logger,
		Exec: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			gotName, gotArgs = name, args
			return nil, nil
		},
	}

	require.NoError(t, f.Fit(context.Background(), request()))
	assert.Equal(t, "fit-first-level", gotName)
	assert.Equal(t, []string{
		"--verbose",
		"--bold", "/data/bold.nii.gz",
		"--events-shm", "4242",
		"--events-rows", "2",
		"--conditions", "RHand,rest",
		"--subject", "MSC01",
		"--tr", "2.2",
		"--slice-time-ref", "0.5",
		"--noise-model", "ar1",
		"--drift-model", "cosine",
		"--standardize=false",
		"--contrast", "RHand",
		"--effect-size", "/out/es.nii.gz",
		"--effect-variance", "/out/ev.nii.gz",
	}, gotArgs)

	assert.Equal(t, []float64{15.4, 15.4, 0}, pub.published.RawRowView(1))
	assert.True(t, pub.segment.released)
}

func TestCommandFitterFailureReleasesSegment(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pub := &fakePublisher{}
	f := &CommandFitter{
		Command:   "fit-first-level",
		Publisher: pub,
		Log:       logger,
		Exec: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte("design matrix is singular\n"), errors.New("exit status 1")
		},
	}

	err := f.Fit(context.Background(), request())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "design matrix is singular")
	assert.True(t, pub.segment.released)
}

func TestCommandFitterPreconditions(t *testing.T) {
	logger, _ := test.NewNullLogger()
	f := &CommandFitter{Publisher: &fakePublisher{}, Log: logger}
	assert.Error(t, f.Fit(context.Background(), request()), "no command")

	f.Command = "fit"
	req := request()
	req.Model.TR = 0
	assert.Error(t, f.Fit(context.Background(), req))

	req = request()
	req.Events = nil
	assert.Error(t, f.Fit(context.Background(), req))

	req = request()
	req.Outputs = nil
	assert.NoError(t, f.Fit(context.Background(), req))
}

func TestModelValidate(t *testing.T) {
	require.NoError(t, DefaultModel().Validate())

	for name, mutate := range map[string]func(*Model){
		"SliceRef": func(m *Model) { m.SliceTimeRef = 1.5 },
		"Noise":    func(m *Model) { m.NoiseModel = "ar2" },
		"Drift":    func(m *Model) { m.DriftModel = "spline" },
	} {
		m := DefaultModel()
		mutate(&m)
		assert.Error(t, m.Validate(), name)
	}
}
