// Package pipeline runs the contrast batch: run level model fits followed by
// session and study level fixed effects pooling.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/KyungWonPark/Grayordinate/internal/bids"
	"github.com/KyungWonPark/Grayordinate/internal/calc"
	"github.com/KyungWonPark/Grayordinate/internal/config"
	"github.com/KyungWonPark/Grayordinate/internal/events"
	"github.com/KyungWonPark/Grayordinate/internal/glm"
	"github.com/KyungWonPark/Grayordinate/internal/volume"
)

// BatchError collects the failures of items a level skipped
type BatchError struct {
	Level    string
	Total    int
	Failures []error
}

func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, err := range e.Failures {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%s level: %d of %d failed: %s", e.Level, len(e.Failures), e.Total, strings.Join(msgs, "; "))
}

func batchError(level string, total int, failures []error) error {
	if len(failures) == 0 {
		return nil
	}
	return &BatchError{Level: level, Total: total, Failures: failures}
}

// Pipeline is the contrast batch over one study
type Pipeline struct {
	Config config.Config
	Store  volume.Store
	Fitter glm.Fitter
	Engine *calc.PipeLine
	Log    logrus.FieldLogger
}

// New wires a pipeline with a pooling engine sized by the configuration
func New(cfg config.Config, store volume.Store, fitter glm.Fitter, log logrus.FieldLogger) *Pipeline {
	return &Pipeline{
		Config: cfg,
		Store:  store,
		Fitter: fitter,
		Engine: calc.Init(cfg.FixedEffects.Workers),
		Log:    log,
	}
}

// Discover lists the runs of the configured task that have an events table,
// one per output name
func (p *Pipeline) Discover() (bids.Manifest, error) {
	m, err := bids.Discover(p.Config.InputDir, p.Config.Query())
	if err != nil {
		return nil, err
	}
	return m.WithEvents(p.Log).Unique(p.Log), nil
}

// Run discovers the runs and executes all three levels. Pooling still runs
// when some run fits failed, over the contrasts the other runs produced.
// When no run produced a contrast, pooling is skipped so maps left over from
// earlier batches are not pooled again.
func (p *Pipeline) Run(ctx context.Context) error {
	m, err := p.Discover()
	if err != nil {
		return err
	}
	p.Log.WithField("runs", len(m)).Info("discovered runs")

	contrasts, runErr := p.RunLevel(ctx, m)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(contrasts) == 0 {
		p.Log.WithField("runs", len(m)).Warn("no run produced a contrast, skipping pooling")
		return runErr
	}
	if err := p.SessionLevel(ctx, contrasts); err != nil {
		return err
	}
	if err := p.StudyLevel(ctx, contrasts); err != nil {
		return err
	}
	return runErr
}

// RunLevel fits every run and returns the sorted contrast names produced.
// A failing run is logged and skipped; the failures are returned at the end.
func (p *Pipeline) RunLevel(ctx context.Context, m bids.Manifest) ([]string, error) {
	if err := os.MkdirAll(filepath.Join(p.Config.OutputDir, RunDir), 0755); err != nil {
		return nil, errors.Wrap(err, "creating run level directory")
	}

	seen := map[string]bool{}
	var failures []error
	for _, r := range m {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log := p.Log.WithFields(r.Fields())
		log.Info("running contrast effects")

		names, err := p.fitRun(ctx, r)
		if err != nil {
			log.WithError(err).Error("run failed")
			failures = append(failures, errors.Wrapf(err, "sub %s ses %s run %s", r.Subject, r.Session, r.RunLabel()))
			continue
		}
		for _, n := range names {
			seen[n] = true
		}
	}

	contrasts := make([]string, 0, len(seen))
	for n := range seen {
		contrasts = append(contrasts, n)
	}
	sort.Strings(contrasts)
	return contrasts, batchError("run", len(m), failures)
}

func (p *Pipeline) fitRun(ctx context.Context, r bids.Run) ([]string, error) {
	evs, err := events.Read(r.EventsPath)
	if err != nil {
		return nil, err
	}
	cons := events.Contrasts(evs, p.Config.Baseline)
	if len(cons) == 0 {
		p.Log.WithFields(r.Fields()).Warn("no condition besides baseline")
		return nil, nil
	}

	req := glm.Request{
		Run:        r,
		Events:     evs,
		Conditions: events.Conditions(evs),
		Model:      p.Config.GLM.Model,
	}
	names := make([]string, 0, len(cons))
	for _, c := range cons {
		rm := RunMap{Contrast: c.Name, Subject: r.Subject, Session: r.Session, Task: r.Task, Run: r.RunLabel()}
		req.Outputs = append(req.Outputs, glm.Output{
			Contrast:       c,
			EffectSize:     rm.EffectSize(p.Config.OutputDir),
			EffectVariance: rm.EffectVariance(p.Config.OutputDir),
		})
		names = append(names, c.Name)
	}

	if err := p.Fitter.Fit(ctx, req); err != nil {
		return nil, err
	}
	return names, nil
}

// group is one set of maps pooled into a single output set
type group struct {
	contrast  string
	session   string
	effects   []string
	variances []string
}

// RunMaps lists the run level maps of the configured task and subjects
// whose effect size and variance both exist.
func (p *Pipeline) RunMaps() ([]RunMap, error) {
	root := p.Config.OutputDir
	paths, err := p.Store.Glob(filepath.Join(root, RunDir, "*"+EffectSizeSuffix))
	if err != nil {
		return nil, errors.Wrap(err, "listing run level maps")
	}

	subjects := labelSet(p.Config.Subjects)
	sessions := labelSet(p.Config.Sessions)
	var out []RunMap
	for _, path := range paths {
		rm, ok := ParseRunMap(filepath.Base(path))
		if !ok || rm.Task != p.Config.Task {
			continue
		}
		if (len(subjects) > 0 && !subjects[rm.Subject]) || (len(sessions) > 0 && !sessions[rm.Session]) {
			continue
		}
		if !p.Store.Exists(rm.EffectVariance(root)) {
			p.Log.WithFields(logrus.Fields{"subject": rm.Subject, "session": rm.Session, "run": rm.Run, "contrast": rm.Contrast}).
				Warn("skipping effect size without variance")
			continue
		}
		out = append(out, rm)
	}
	return out, nil
}

// SessionLevel pools the run level maps of every (contrast, session) pair
// across runs and subjects. Nil contrasts pools every contrast found.
func (p *Pipeline) SessionLevel(ctx context.Context, contrasts []string) error {
	maps, err := p.RunMaps()
	if err != nil {
		return err
	}

	wanted := labelSet(contrasts)
	groups := map[[2]string]*group{}
	for _, rm := range maps {
		if len(wanted) > 0 && !wanted[rm.Contrast] {
			continue
		}
		key := [2]string{rm.Contrast, rm.Session}
		g, ok := groups[key]
		if !ok {
			g = &group{contrast: rm.Contrast, session: rm.Session}
			groups[key] = g
		}
		g.effects = append(g.effects, rm.EffectSize(p.Config.OutputDir))
		g.variances = append(g.variances, rm.EffectVariance(p.Config.OutputDir))
	}

	return p.poolAll(ctx, "session", contrasts, sortedGroups(groups), func(g *group) string {
		return SessionBase(p.Config.OutputDir, g.session, g.contrast)
	})
}

// StudyLevel pools the session level maps of every contrast.
// Nil contrasts pools every contrast found.
func (p *Pipeline) StudyLevel(ctx context.Context, contrasts []string) error {
	root := p.Config.OutputDir
	paths, err := p.Store.Glob(filepath.Join(root, SessionDir, "ses_*"+PooledEffectSuffix))
	if err != nil {
		return errors.Wrap(err, "listing session level maps")
	}

	wanted := labelSet(contrasts)
	sessions := labelSet(p.Config.Sessions)
	groups := map[[2]string]*group{}
	for _, path := range paths {
		name := filepath.Base(path)
		if strings.HasSuffix(name, PooledZSuffix) {
			continue
		}
		session, contrast, ok := ParseSessionMap(name)
		if !ok {
			continue
		}
		if (len(wanted) > 0 && !wanted[contrast]) || (len(sessions) > 0 && !sessions[session]) {
			continue
		}
		variance := SessionBase(root, session, contrast) + PooledVarianceSuffix
		if !p.Store.Exists(variance) {
			p.Log.WithFields(logrus.Fields{"session": session, "contrast": contrast}).Warn("skipping effect size without variance")
			continue
		}

		key := [2]string{contrast, ""}
		g, ok := groups[key]
		if !ok {
			g = &group{contrast: contrast}
			groups[key] = g
		}
		g.effects = append(g.effects, path)
		g.variances = append(g.variances, variance)
	}

	return p.poolAll(ctx, "study", contrasts, sortedGroups(groups), func(g *group) string {
		return StudyBase(root, g.contrast)
	})
}

func (p *Pipeline) poolAll(ctx context.Context, level string, contrasts []string, groups []*group, base func(*group) string) error {
	pooled := map[string]bool{}
	var failures []error
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := p.Log.WithFields(logrus.Fields{"level": level, "contrast": g.contrast, "maps": len(g.effects)})
		if g.session != "" {
			log = log.WithField("session", g.session)
		}
		log.Info("running contrast average effects")

		if err := p.pool(g.effects, g.variances, base(g)); err != nil {
			log.WithError(err).Error("pooling failed")
			failures = append(failures, errors.Wrapf(err, "contrast %s", g.contrast))
			continue
		}
		pooled[g.contrast] = true
	}

	for _, c := range contrasts {
		if !pooled[c] {
			p.Log.WithFields(logrus.Fields{"level": level, "contrast": c}).Warn("no contrast images")
		}
	}
	if len(groups) == 0 && len(contrasts) == 0 {
		p.Log.WithField("level", level).Warn("no contrast images")
	}
	return batchError(level, len(groups), failures)
}

// pool loads the maps, computes fixed effects and saves the four outputs
func (p *Pipeline) pool(effectPaths, variancePaths []string, base string) error {
	var first *volume.Volume
	effects := make([]*mat64.Dense, len(effectPaths))
	variances := make([]*mat64.Dense, len(variancePaths))
	for i := range effectPaths {
		e, err := p.load(effectPaths[i], first)
		if err != nil {
			return err
		}
		if first == nil {
			first = e
		}
		v, err := p.load(variancePaths[i], first)
		if err != nil {
			return err
		}
		effects[i], variances[i] = e.Data, v.Data
	}

	res, err := p.Engine.FixedEffects(effects, variances, p.Config.FixedEffects.Options)
	if err != nil {
		return err
	}

	outputs := []struct {
		suffix string
		data   *mat64.Dense
	}{
		{PooledEffectSuffix, res.Effect},
		{PooledVarianceSuffix, res.Variance},
		{PooledStatSuffix, res.Stat},
		{PooledZSuffix, res.Z},
	}
	for _, o := range outputs {
		v, err := first.Derive(o.data)
		if err != nil {
			return err
		}
		if err := p.Store.Save(base+o.suffix, v); err != nil {
			return errors.Wrapf(err, "saving %s", base+o.suffix)
		}
	}
	return nil
}

func (p *Pipeline) load(path string, ref *volume.Volume) (*volume.Volume, error) {
	v, err := p.Store.Load(path)
	if err != nil {
		return nil, err
	}
	if ref != nil && (!volume.SameGrid(ref, v) || ref.Dims[3] != v.Dims[3]) {
		return nil, errors.Wrapf(volume.ErrShape, "%s is %v, expected %v", path, v.Dims, ref.Dims)
	}
	return v, nil
}

func sortedGroups(groups map[[2]string]*group) []*group {
	out := make([]*group, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].contrast != out[j].contrast {
			return out[i].contrast < out[j].contrast
		}
		return out[i].session < out[j].session
	})
	return out
}

func labelSet(labels []string) map[string]bool {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		set[l] = true
	}
	return set
}
