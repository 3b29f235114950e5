package volume

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
)

// MemStore keeps volumes in memory, keyed by cleaned path
type MemStore struct {
	mu      sync.RWMutex
	volumes map[string]*Volume
}

// NewMemStore returns an empty store
func NewMemStore() *MemStore {
	return &MemStore{volumes: map[string]*Volume{}}
}

// Load returns a copy of the stored volume
func (m *MemStore) Load(path string) (*Volume, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.volumes[filepath.Clean(path)]
	if !ok {
		return nil, errors.Wrapf(os.ErrNotExist, "loading volume %s", path)
	}
	return clone(v), nil
}

// Save stores a copy of v
func (m *MemStore) Save(path string, v *Volume) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.volumes[filepath.Clean(path)] = clone(v)
	return nil
}

// Exists reports whether path was saved
func (m *MemStore) Exists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.volumes[filepath.Clean(path)]
	return ok
}

// Glob matches stored paths, sorted
func (m *MemStore) Glob(pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for path := range m.volumes {
		ok, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return nil, errors.Wrapf(err, "matching %s", pattern)
		}
		if ok {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Paths lists every stored path, sorted
func (m *MemStore) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.volumes))
	for path := range m.volumes {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func clone(v *Volume) *Volume {
	return &Volume{Dims: v.Dims, Data: mat64.DenseCopyOf(v.Data), Header: v.Header}
}
