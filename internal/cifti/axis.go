package cifti

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ModelType tells surface structures from volumetric ones
type ModelType string

const (
	// ModelSurface is a surface (vertex) brain model
	ModelSurface ModelType = "CIFTI_MODEL_TYPE_SURFACE"
	// ModelVoxels is a volumetric (voxel) brain model
	ModelVoxels ModelType = "CIFTI_MODEL_TYPE_VOXELS"
)

// Well known structure names
const (
	StructureCortexLeft  = "CIFTI_STRUCTURE_CORTEX_LEFT"
	StructureCortexRight = "CIFTI_STRUCTURE_CORTEX_RIGHT"
)

// ErrInvalidAxis is returned when a brain model axis does not partition the grayordinates
var ErrInvalidAxis = errors.New("invalid brain model axis")

// Voxel is an IJK voxel index
type Voxel [3]int

// BrainModel is one anatomical structure on the grayordinate axis
type BrainModel struct {
	Name            string
	Type            ModelType
	Offset          int
	Count           int
	SurfaceVertices int
	// Vertices holds, per grayordinate, its position in the full surface mesh.
	Vertices []int
	Voxels   []Voxel
}

// End returns the grayordinate index one past the last element of the model
func (m BrainModel) End() int {
	return m.Offset + m.Count
}

// IsSurface reports whether the model indexes surface vertices
func (m BrainModel) IsSurface() bool {
	return m.Type == ModelSurface
}

// BrainModelAxis is the ordered structure map of a grayordinate axis
type BrainModelAxis struct {
	Models []BrainModel
}

// Size returns the number of grayordinates the axis describes
func (a *BrainModelAxis) Size() int {
	size := 0
	for _, m := range a.Models {
		size += m.Count
	}
	return size
}

// Names lists structure names in axis order
func (a *BrainModelAxis) Names() []string {
	names := make([]string, 0, len(a.Models))
	for _, m := range a.Models {
		names = append(names, m.Name)
	}
	return names
}

// Lookup returns the first model named name
func (a *BrainModelAxis) Lookup(name string) (BrainModel, bool) {
	for _, m := range a.Models {
		if m.Name == name {
			return m, true
		}
	}
	return BrainModel{}, false
}

// Validate checks that models are contiguous, disjoint and cover the axis exactly once.
func (a *BrainModelAxis) Validate() error {
	next := 0
	for i, m := range a.Models {
		if m.Offset != next {
			return errors.Wrapf(ErrInvalidAxis, "model %d (%s) starts at %d, expected %d", i, m.Name, m.Offset, next)
		}
		if m.Count < 0 {
			return errors.Wrapf(ErrInvalidAxis, "model %d (%s) has negative count %d", i, m.Name, m.Count)
		}
		switch m.Type {
		case ModelSurface:
			if len(m.Vertices) != m.Count {
				return errors.Wrapf(ErrInvalidAxis, "model %s: %d vertex indices for %d grayordinates", m.Name, len(m.Vertices), m.Count)
			}
			for _, v := range m.Vertices {
				if v < 0 {
					return errors.Wrapf(ErrInvalidAxis, "model %s: negative vertex index %d", m.Name, v)
				}
			}
		case ModelVoxels:
			if m.Voxels != nil && len(m.Voxels) != m.Count {
				return errors.Wrapf(ErrInvalidAxis, "model %s: %d voxel indices for %d grayordinates", m.Name, len(m.Voxels), m.Count)
			}
		default:
			return errors.Wrapf(ErrInvalidAxis, "model %s: unknown model type %q", m.Name, m.Type)
		}
		next = m.End()
	}
	return nil
}

func (a *BrainModelAxis) String() string {
	var b strings.Builder
	for _, m := range a.Models {
		fmt.Fprintf(&b, "%-40s %-26s [%d, %d)", m.Name, m.Type, m.Offset, m.End())
		if m.IsSurface() {
			fmt.Fprintf(&b, " mesh=%d", m.SurfaceVertices)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// CanonicalStructure strips the CIFTI prefix and normalises CamelCase names,
// so "CIFTI_STRUCTURE_CORTEX_LEFT", "CORTEX_LEFT" and "CortexLeft" compare equal.
func CanonicalStructure(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "CIFTI_STRUCTURE_")
	if strings.ToUpper(name) == name {
		return name
	}

	var b strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}
