// Package volume loads and saves 3D/4D NIfTI-1 maps.
package volume

import (
	"github.com/KyungWonPark/nifti"
	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
)

// ErrShape is returned when volumes do not share a grid
var ErrShape = errors.New("volume shapes differ")

// Volume is a NIfTI image flattened to voxels by frames.
// Voxel (x, y, z) is row x + y*nx + z*nx*ny.
type Volume struct {
	Dims [4]int
	Data *mat64.Dense
	// Header is the source header, reused when derived maps are saved.
	Header *nifti.Nifti1Header
}

// New allocates a zero volume
func New(nx, ny, nz, nt int) *Volume {
	return &Volume{
		Dims: [4]int{nx, ny, nz, nt},
		Data: mat64.NewDense(nx*ny*nz, nt, nil),
	}
}

// Voxels returns the number of spatial voxels
func (v *Volume) Voxels() int {
	return v.Dims[0] * v.Dims[1] * v.Dims[2]
}

// Index returns the row of voxel (x, y, z)
func (v *Volume) Index(x, y, z int) int {
	return x + y*v.Dims[0] + z*v.Dims[0]*v.Dims[1]
}

// Derive returns a volume on the same grid holding data, keeping the header
func (v *Volume) Derive(data *mat64.Dense) (*Volume, error) {
	rows, cols := data.Dims()
	if rows != v.Voxels() {
		return nil, errors.Wrapf(ErrShape, "%d rows for %d voxels", rows, v.Voxels())
	}
	return &Volume{
		Dims:   [4]int{v.Dims[0], v.Dims[1], v.Dims[2], cols},
		Data:   data,
		Header: v.Header,
	}, nil
}

// SameGrid reports whether two volumes share spatial dimensions
func SameGrid(a, b *Volume) bool {
	return a.Dims[0] == b.Dims[0] && a.Dims[1] == b.Dims[1] && a.Dims[2] == b.Dims[2]
}

// Store loads and saves volumes by path
type Store interface {
	Load(path string) (*Volume, error)
	Save(path string, v *Volume) error
	Exists(path string) bool
	// Glob returns the stored paths matching a doublestar pattern.
	Glob(pattern string) ([]string, error)
}
