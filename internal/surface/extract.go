// Package surface projects grayordinate data onto dense per-vertex surface arrays.
package surface

import (
	"fmt"
	"strings"

	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"

	"github.com/KyungWonPark/Grayordinate/internal/cifti"
)

// Layout says which data axis holds the grayordinates
type Layout int

const (
	// GrayordinatesLast means grayordinates are the columns (container convention)
	GrayordinatesLast Layout = iota
	// GrayordinatesFirst means grayordinates are the rows
	GrayordinatesFirst
)

func (l Layout) String() string {
	if l == GrayordinatesFirst {
		return "grayordinates-first"
	}
	return "grayordinates-last"
}

// LayoutOf returns the layout matching a container's brain model dimension
func LayoutOf(c *cifti.Container) Layout {
	if c.BrainModelDim == 0 {
		return GrayordinatesFirst
	}
	return GrayordinatesLast
}

var (
	// ErrStructureNotFound matches every *StructureNotFoundError
	ErrStructureNotFound = errors.New("structure not found")
	// ErrAxisMismatch is returned when the data does not have the axis' grayordinate count
	ErrAxisMismatch = errors.New("grayordinate axis does not match data")
	// ErrNotSurface is returned when the requested structure is volumetric
	ErrNotSurface = errors.New("structure is not a surface")
	// ErrEmptyStructure is returned for a surface structure without vertices
	ErrEmptyStructure = errors.New("surface structure has no vertices")
)

// StructureNotFoundError reports a structure name absent from the structure map
type StructureNotFoundError struct {
	Name      string
	Available []string
}

func (e *StructureNotFoundError) Error() string {
	return fmt.Sprintf("no structure named %s (have: %s)", e.Name, strings.Join(e.Available, ", "))
}

// Is lets errors.Is(err, ErrStructureNotFound) match
func (e *StructureNotFoundError) Is(target error) bool {
	return target == ErrStructureNotFound
}

// Extract projects the grayordinates of structure name onto a zero-filled
// (max(vertex)+1) by samples matrix. Row vertices[k] of the output holds the
// k-th grayordinate of the structure.
func Extract(data *mat64.Dense, axis *cifti.BrainModelAxis, name string, layout Layout) (*mat64.Dense, error) {
	if err := axis.Validate(); err != nil {
		return nil, err
	}

	rows, cols := data.Dims()
	grayordinates, samples := cols, rows
	if layout == GrayordinatesFirst {
		grayordinates, samples = rows, cols
	}
	if grayordinates != axis.Size() {
		return nil, errors.Wrapf(ErrAxisMismatch, "%s data is %d by %d, structure map covers %d grayordinates", layout, rows, cols, axis.Size())
	}

	model, ok := axis.Lookup(name)
	if !ok {
		return nil, &StructureNotFoundError{Name: name, Available: axis.Names()}
	}
	if !model.IsSurface() {
		return nil, errors.Wrapf(ErrNotSurface, "%s is %s", name, model.Type)
	}
	if len(model.Vertices) == 0 {
		return nil, errors.Wrap(ErrEmptyStructure, name)
	}

	maxVertex := 0
	for _, v := range model.Vertices {
		if v > maxVertex {
			maxVertex = v
		}
	}

	out := mat64.NewDense(maxVertex+1, samples, nil)
	for k, vertex := range model.Vertices {
		g := model.Offset + k
		for s := 0; s < samples; s++ {
			if layout == GrayordinatesFirst {
				out.Set(vertex, s, data.At(g, s))
			} else {
				out.Set(vertex, s, data.At(s, g))
			}
		}
	}
	return out, nil
}

// Decompose extracts the left and right cortex of a container
func Decompose(c *cifti.Container) (*mat64.Dense, *mat64.Dense, error) {
	layout := LayoutOf(c)

	left, err := Extract(c.Data, c.Axis, cifti.StructureCortexLeft, layout)
	if err != nil {
		return nil, nil, err
	}
	right, err := Extract(c.Data, c.Axis, cifti.StructureCortexRight, layout)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

// HasBilateralCortex reports whether the map holds exactly one left and one
// right cortex structure, along with every structure name in map order.
func HasBilateralCortex(axis *cifti.BrainModelAxis) (bool, []string) {
	left, right := 0, 0
	names := axis.Names()
	for _, name := range names {
		switch cifti.CanonicalStructure(name) {
		case "CORTEX_LEFT":
			left++
		case "CORTEX_RIGHT":
			right++
		}
	}
	return left == 1 && right == 1, names
}
