package bids

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// NoRun is the run label used in output names when a run has no run entity
const NoRun = "00"

// Query selects runs of one task
type Query struct {
	Task          string
	SubjectPrefix string
	// Subjects and Sessions restrict discovery to these labels when non-empty.
	Subjects []string
	Sessions []string
}

// Run is one task fMRI run and its events table
type Run struct {
	Subject    string
	Session    string
	Task       string
	Run        string
	BoldPath   string
	EventsPath string
}

// RunLabel returns the run entity or NoRun
func (r Run) RunLabel() string {
	if r.Run == "" {
		return NoRun
	}
	return r.Run
}

// Fields returns structured log fields for the run
func (r Run) Fields() logrus.Fields {
	return logrus.Fields{"subject": r.Subject, "session": r.Session, "task": r.Task, "run": r.RunLabel()}
}

// Manifest is a sorted list of discovered runs
type Manifest []Run

// Discover globs root for BOLD runs of the queried task
func Discover(root string, q Query) (Manifest, error) {
	if q.Task == "" || strings.ContainsAny(q.Task, `*?[]{}\/_-`) {
		return nil, errors.Errorf("invalid task label %q", q.Task)
	}
	if strings.ContainsAny(q.SubjectPrefix, `*?[]{}\/_-`) {
		return nil, errors.Errorf("invalid subject prefix %q", q.SubjectPrefix)
	}

	pattern := "sub-" + q.SubjectPrefix + "*/ses-*/func/sub-*_ses-*_task-" + q.Task + "_*.nii.gz"
	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "globbing %s under %s", pattern, root)
	}

	subjects := toSet(q.Subjects)
	sessions := toSet(q.Sessions)

	var m Manifest
	for _, match := range matches {
		e, err := ParseName(path.Base(match))
		if err != nil || e.Suffix != "bold" || e.Task != q.Task {
			continue
		}
		// the directory entities must agree with the file name
		dirs := strings.Split(match, "/")
		if dirs[0] != "sub-"+e.Subject || dirs[1] != "ses-"+e.Session {
			continue
		}
		if !strings.HasPrefix(e.Subject, q.SubjectPrefix) {
			continue
		}
		if len(subjects) > 0 && !subjects[e.Subject] {
			continue
		}
		if len(sessions) > 0 && !sessions[e.Session] {
			continue
		}

		dir := filepath.Join(root, filepath.FromSlash(path.Dir(match)))
		m = append(m, Run{
			Subject:    e.Subject,
			Session:    e.Session,
			Task:       e.Task,
			Run:        e.Run,
			BoldPath:   filepath.Join(root, filepath.FromSlash(match)),
			EventsPath: filepath.Join(dir, e.Prefix()+"_events.tsv"),
		})
	}

	m.sort()
	return m, nil
}

func toSet(labels []string) map[string]bool {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		set[l] = true
	}
	return set
}

func (m Manifest) sort() {
	sort.SliceStable(m, func(i, j int) bool {
		a, b := m[i], m[j]
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Session != b.Session {
			return a.Session < b.Session
		}
		if a.Run != b.Run {
			return a.Run < b.Run
		}
		return a.BoldPath < b.BoldPath
	})
}

// Filter returns the runs keep accepts
func (m Manifest) Filter(keep func(Run) bool) Manifest {
	var out Manifest
	for _, r := range m {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// WithEvents drops runs whose events table is missing, logging each one.
func (m Manifest) WithEvents(log logrus.FieldLogger) Manifest {
	return m.Filter(func(r Run) bool {
		if _, err := os.Stat(r.EventsPath); err != nil {
			log.WithFields(r.Fields()).WithField("events", r.EventsPath).Warn("skipping run without events table")
			return false
		}
		return true
	})
}

// Unique drops runs whose subject, session, task and run label repeat an
// earlier run. Outputs are named by those labels only, so runs that differ
// in other entities (acq, echo, dir) would overwrite each other's maps.
func (m Manifest) Unique(log logrus.FieldLogger) Manifest {
	kept := map[string]string{}
	return m.Filter(func(r Run) bool {
		key := strings.Join([]string{r.Subject, r.Session, r.Task, r.RunLabel()}, "\x00")
		if first, ok := kept[key]; ok {
			log.WithFields(r.Fields()).WithFields(logrus.Fields{
				"bold": r.BoldPath,
				"kept": first,
			}).Warn("skipping run with the same output name as another run")
			return false
		}
		kept[key] = r.BoldPath
		return true
	})
}

// Subjects lists the distinct subject labels in order
func (m Manifest) Subjects() []string {
	return m.distinct(func(r Run) string { return r.Subject })
}

// Sessions lists the distinct session labels in order
func (m Manifest) Sessions() []string {
	return m.distinct(func(r Run) string { return r.Session })
}

func (m Manifest) distinct(key func(Run) string) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range m {
		k := key(r)
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
