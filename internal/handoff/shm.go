// Package handoff publishes matrices to external programs through System V
// shared memory segments.
package handoff

import (
	"strconv"
	"unsafe"

	"github.com/ghetzel/shmtool/shm"
	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
)

// Segment is a published matrix an external program can attach to
type Segment interface {
	// ID is the shared memory identifier passed on the command line.
	ID() string
	Rows() int
	Cols() int
	// Release detaches and destroys the segment.
	Release() error
}

// Publisher copies matrices into shareable memory
type Publisher interface {
	Publish(m *mat64.Dense) (Segment, error)
}

// SharedMemory publishes row-major float64 matrices in System V segments
type SharedMemory struct{}

type shmSegment struct {
	mem  *shm.Segment
	base unsafe.Pointer
	rows int
	cols int
}

// Publish allocates a segment of rows*cols*8 bytes and copies m into it
func (SharedMemory) Publish(m *mat64.Dense) (Segment, error) {
	rows, cols := m.Dims()
	n := rows * cols

	mem, err := shm.Create(n * 8)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate shared memory region")
	}
	base, err := mem.Attach()
	if err != nil {
		mem.Destroy()
		return nil, errors.Wrap(err, "failed to attach shared memory region")
	}

	backingArr := (*[1 << 30]float64)(base)[:n:n]
	for i := 0; i < rows; i++ {
		copy(backingArr[i*cols:(i+1)*cols], m.RawRowView(i))
	}

	return &shmSegment{
		mem:  mem,
		base: base,
		rows: rows,
		cols: cols,
	}, nil
}

func (s *shmSegment) ID() string { return strconv.Itoa(s.mem.Id) }
func (s *shmSegment) Rows() int  { return s.rows }
func (s *shmSegment) Cols() int  { return s.cols }

func (s *shmSegment) Release() error {
	if err := s.mem.Detach(s.base); err != nil {
		s.mem.Destroy()
		return errors.Wrap(err, "failed to detach shared memory region")
	}
	return errors.Wrap(s.mem.Destroy(), "failed to destroy shared memory region")
}
