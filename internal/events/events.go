// Package events reads task event tables and derives per-condition contrasts.
package events

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
)

// DefaultBaseline is the trial type contrasted against
const DefaultBaseline = "rest"

// Event is one row of an events table
type Event struct {
	Onset     float64
	Duration  float64
	TrialType string
}

// Contrast is a condition-versus-baseline contrast
type Contrast struct {
	Name      string
	Condition string
}

// Read parses a tab separated events file
func Read(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening events table")
	}
	defer f.Close()

	evs, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return evs, nil
}

// Parse reads onset, duration and trial_type columns from a TSV stream
func Parse(r io.Reader) ([]Event, error) {
	tsv := csv.NewReader(r)
	tsv.Comma = '\t'
	tsv.FieldsPerRecord = -1
	tsv.LazyQuotes = true

	header, err := tsv.Read()
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, name := range []string{"onset", "duration", "trial_type"} {
		if _, ok := cols[name]; !ok {
			return nil, errors.Errorf("missing column %q", name)
		}
	}

	var evs []Event
	for line := 2; ; line++ {
		record, err := tsv.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if len(record) < len(header) {
			return nil, errors.Errorf("line %d has %d fields, header has %d", line, len(record), len(header))
		}

		onset, err := strconv.ParseFloat(strings.TrimSpace(record[cols["onset"]]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d onset", line)
		}
		duration, err := strconv.ParseFloat(strings.TrimSpace(record[cols["duration"]]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d duration", line)
		}
		evs = append(evs, Event{
			Onset:     onset,
			Duration:  duration,
			TrialType: strings.TrimSpace(record[cols["trial_type"]]),
		})
	}
	return evs, nil
}

// Conditions returns the sorted unique trial types
func Conditions(evs []Event) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range evs {
		if !seen[e.TrialType] {
			seen[e.TrialType] = true
			out = append(out, e.TrialType)
		}
	}
	sort.Strings(out)
	return out
}

// Contrasts builds "<condition> vs baseline" for every condition but baseline
func Contrasts(evs []Event, baseline string) []Contrast {
	var out []Contrast
	for _, c := range Conditions(evs) {
		if c == baseline {
			continue
		}
		out = append(out, Contrast{Name: c + " vs baseline", Condition: c})
	}
	return out
}

// Matrix packs events as rows of (onset, duration, index into conditions).
// It returns nil for an empty table.
func Matrix(evs []Event, conditions []string) *mat64.Dense {
	if len(evs) == 0 {
		return nil
	}
	index := make(map[string]int, len(conditions))
	for i, c := range conditions {
		index[c] = i
	}

	m := mat64.NewDense(len(evs), 3, nil)
	for i, e := range evs {
		m.SetRow(i, []float64{e.Onset, e.Duration, float64(index[e.TrialType])})
	}
	return m
}
