package pipeline

import (
	"fmt"
	"path/filepath"
	"regexp"
)

// Output directories under the configured output root
const (
	RunDir     = "run_effect_size"
	SessionDir = "session_contrast_maps"
	StudyDir   = "average_contrast_maps"
)

// Suffixes of run level maps
const (
	EffectSizeSuffix     = "_effect_size.nii.gz"
	EffectVarianceSuffix = "_effect_variance.nii.gz"
)

// Suffixes of pooled maps
const (
	PooledEffectSuffix   = "_effect_size.nii.gz"
	PooledVarianceSuffix = "_variance.nii.gz"
	PooledStatSuffix     = "_effect_stat.nii.gz"
	PooledZSuffix        = "_z_effect_size.nii.gz"
)

// contrast names may hold spaces and underscores, entity labels may not
var (
	runMapPattern     = regexp.MustCompile(`^contrast-(.+)_sub_([^_]+)_session_([^_]+)_task_([^_]+)_run_([^_]+)_effect_size\.nii\.gz$`)
	sessionMapPattern = regexp.MustCompile(`^ses_([^_]+)_contrast_(.+)_effect_size\.nii\.gz$`)
)

// RunMap identifies the run level maps of one contrast
type RunMap struct {
	Contrast string
	Subject  string
	Session  string
	Task     string
	Run      string
}

func (m RunMap) base(root string) string {
	name := fmt.Sprintf("contrast-%s_sub_%s_session_%s_task_%s_run_%s", m.Contrast, m.Subject, m.Session, m.Task, m.Run)
	return filepath.Join(root, RunDir, name)
}

// EffectSize returns the effect size path under root
func (m RunMap) EffectSize(root string) string {
	return m.base(root) + EffectSizeSuffix
}

// EffectVariance returns the effect variance path under root
func (m RunMap) EffectVariance(root string) string {
	return m.base(root) + EffectVarianceSuffix
}

// ParseRunMap parses the base name of a run level effect size map
func ParseRunMap(name string) (RunMap, bool) {
	g := runMapPattern.FindStringSubmatch(name)
	if g == nil {
		return RunMap{}, false
	}
	return RunMap{Contrast: g[1], Subject: g[2], Session: g[3], Task: g[4], Run: g[5]}, true
}

// SessionBase returns the path prefix of a session level map set
func SessionBase(root, session, contrast string) string {
	return filepath.Join(root, SessionDir, fmt.Sprintf("ses_%s_contrast_%s", session, contrast))
}

// ParseSessionMap parses the base name of a session level effect size map
func ParseSessionMap(name string) (session, contrast string, ok bool) {
	g := sessionMapPattern.FindStringSubmatch(name)
	if g == nil {
		return "", "", false
	}
	return g[1], g[2], true
}

// StudyBase returns the path prefix of a study level map set
func StudyBase(root, contrast string) string {
	return filepath.Join(root, StudyDir, "contrast_"+contrast)
}
