// Package bids discovers task fMRI runs laid out as
// <root>/sub-<label>/ses-<label>/func/ and parses their file names.
package bids

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrBadName is returned for file names outside the sub/ses/task grammar
var ErrBadName = errors.New("file name does not follow sub-<label>_ses-<label>_task-<label>")

// Entities are the key-value parts of a BIDS file name
type Entities struct {
	Subject string
	Session string
	Task    string
	// Run is empty when the name carries no run entity.
	Run string
	// Extra holds any other key-value pairs in name order.
	Extra     [][2]string
	Suffix    string
	Extension string
}

// ParseName splits a file name such as
// sub-MSC01_ses-func01_task-motor_run-02_bold.nii.gz into its entities.
func ParseName(name string) (Entities, error) {
	var e Entities

	stem := name
	if i := strings.Index(name, "."); i >= 0 {
		stem, e.Extension = name[:i], name[i:]
	}

	parts := strings.Split(stem, "_")
	if len(parts) < 4 {
		return e, errors.Wrap(ErrBadName, name)
	}
	e.Suffix = parts[len(parts)-1]
	if e.Suffix == "" || strings.Contains(e.Suffix, "-") {
		return e, errors.Wrapf(ErrBadName, "%s: missing suffix", name)
	}

	for i, part := range parts[:len(parts)-1] {
		kv := strings.SplitN(part, "-", 2)
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			return e, errors.Wrapf(ErrBadName, "%s: entity %q", name, part)
		}
		key, value := kv[0], kv[1]

		switch {
		case i == 0 && key == "sub":
			e.Subject = value
		case i == 1 && key == "ses":
			e.Session = value
		case i == 2 && key == "task":
			e.Task = value
		case i < 3:
			return e, errors.Wrapf(ErrBadName, "%s: expected sub, ses, task first", name)
		case key == "run" && e.Run == "":
			e.Run = value
		default:
			e.Extra = append(e.Extra, [2]string{key, value})
		}
	}
	return e, nil
}

// Prefix renders the sub/ses/task/run part of the name
func (e Entities) Prefix() string {
	prefix := "sub-" + e.Subject + "_ses-" + e.Session + "_task-" + e.Task
	if e.Run != "" {
		prefix += "_run-" + e.Run
	}
	return prefix
}
