package surface

import (
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KyungWonPark/Grayordinate/internal/cifti"
)

// 3 samples by 5 grayordinates: CORTEX_LEFT owns 0-1, CORTEX_RIGHT owns 2-4.
func example() (*mat64.Dense, *cifti.BrainModelAxis) {
	data := mat64.NewDense(3, 5, []float64{
		1, 2, 3, 4, 5,
		6, 7, 8, 9, 10,
		11, 12, 13, 14, 15,
	})
	axis := &cifti.BrainModelAxis{Models: []cifti.BrainModel{
		{Name: "CORTEX_LEFT", Type: cifti.ModelSurface, Offset: 0, Count: 2, Vertices: []int{2, 0}},
		{Name: "CORTEX_RIGHT", Type: cifti.ModelSurface, Offset: 2, Count: 3, Vertices: []int{0, 3, 1}},
	}}
	return data, axis
}

func TestExtractLeft(t *testing.T) {
	data, axis := example()

	out, err := Extract(data, axis, "CORTEX_LEFT", GrayordinatesLast)
	require.NoError(t, err)

	rows, cols := out.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, []float64{1, 6, 11}, out.RawRowView(2))
	assert.Equal(t, []float64{2, 7, 12}, out.RawRowView(0))
	assert.Equal(t, []float64{0, 0, 0}, out.RawRowView(1))
}

func TestExtractRight(t *testing.T) {
	data, axis := example()

	out, err := Extract(data, axis, "CORTEX_RIGHT", GrayordinatesLast)
	require.NoError(t, err)

	rows, _ := out.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, []float64{3, 8, 13}, out.RawRowView(0))
	assert.Equal(t, []float64{5, 10, 15}, out.RawRowView(1))
	assert.Equal(t, []float64{0, 0, 0}, out.RawRowView(2))
	assert.Equal(t, []float64{4, 9, 14}, out.RawRowView(3))
}

func TestExtractGrayordinatesFirst(t *testing.T) {
	data, axis := example()
	transposed := mat64.DenseCopyOf(data.T())

	first, err := Extract(transposed, axis, "CORTEX_RIGHT", GrayordinatesFirst)
	require.NoError(t, err)
	last, err := Extract(data, axis, "CORTEX_RIGHT", GrayordinatesLast)
	require.NoError(t, err)
	assert.True(t, mat64.Equal(first, last))
}

func TestExtractIdempotent(t *testing.T) {
	data, axis := example()
	before := mat64.DenseCopyOf(data)

	a, err := Extract(data, axis, "CORTEX_LEFT", GrayordinatesLast)
	require.NoError(t, err)
	b, err := Extract(data, axis, "CORTEX_LEFT", GrayordinatesLast)
	require.NoError(t, err)

	assert.Equal(t, a.RawMatrix().Data, b.RawMatrix().Data)
	assert.True(t, mat64.Equal(before, data), "input must not change")
}

func TestExtractMissingStructure(t *testing.T) {
	data, axis := example()

	out, err := Extract(data, axis, "CIFTI_STRUCTURE_CORTEX_LEFT", GrayordinatesLast)
	assert.Nil(t, out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructureNotFound))

	var notFound *StructureNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "CIFTI_STRUCTURE_CORTEX_LEFT", notFound.Name)
	assert.Equal(t, []string{"CORTEX_LEFT", "CORTEX_RIGHT"}, notFound.Available)
}

func TestExtractAxisMismatch(t *testing.T) {
	_, axis := example()

	_, err := Extract(mat64.NewDense(3, 4, nil), axis, "CORTEX_LEFT", GrayordinatesLast)
	assert.True(t, errors.Is(err, ErrAxisMismatch))

	// right shape, wrong declared layout
	_, err = Extract(mat64.NewDense(5, 3, nil), axis, "CORTEX_LEFT", GrayordinatesLast)
	assert.True(t, errors.Is(err, ErrAxisMismatch))
}

func TestExtractRejectsVolumesAndEmptySurfaces(t *testing.T) {
	axis := &cifti.BrainModelAxis{Models: []cifti.BrainModel{
		{Name: "THALAMUS_LEFT", Type: cifti.ModelVoxels, Offset: 0, Count: 1, Voxels: []cifti.Voxel{{1, 2, 3}}},
		{Name: "CORTEX_LEFT", Type: cifti.ModelSurface, Offset: 1, Count: 0},
	}}
	data := mat64.NewDense(1, 1, []float64{7})

	_, err := Extract(data, axis, "THALAMUS_LEFT", GrayordinatesLast)
	assert.True(t, errors.Is(err, ErrNotSurface))

	_, err = Extract(data, axis, "CORTEX_LEFT", GrayordinatesLast)
	assert.True(t, errors.Is(err, ErrEmptyStructure))
}

func TestExtractDuplicateVertexLastWriteWins(t *testing.T) {
	axis := &cifti.BrainModelAxis{Models: []cifti.BrainModel{
		{Name: "CORTEX_LEFT", Type: cifti.ModelSurface, Offset: 0, Count: 2, Vertices: []int{1, 1}},
	}}
	out, err := Extract(mat64.NewDense(1, 2, []float64{3, 4}), axis, "CORTEX_LEFT", GrayordinatesLast)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 4}, out.RawMatrix().Data)
}

func TestDecompose(t *testing.T) {
	data, axis := example()
	axis.Models[0].Name = cifti.StructureCortexLeft
	axis.Models[1].Name = cifti.StructureCortexRight

	left, right, err := Decompose(&cifti.Container{Data: data, Axis: axis, BrainModelDim: 1})
	require.NoError(t, err)
	r, _ := left.Dims()
	assert.Equal(t, 3, r)
	r, _ = right.Dims()
	assert.Equal(t, 4, r)

	_, _, err = Decompose(&cifti.Container{Data: data, Axis: &cifti.BrainModelAxis{Models: axis.Models[:1]}, BrainModelDim: 1})
	assert.Error(t, err)
}

func TestHasBilateralCortex(t *testing.T) {
	model := func(name string) cifti.BrainModel {
		return cifti.BrainModel{Name: name, Type: cifti.ModelSurface}
	}
	tests := []struct {
		name   string
		models []string
		want   bool
	}{
		{"CiftiNames", []string{cifti.StructureCortexLeft, cifti.StructureCortexRight}, true},
		{"ShortNames", []string{"CORTEX_LEFT", "CORTEX_RIGHT", "ACCUMBENS_LEFT"}, true},
		{"LeftOnly", []string{cifti.StructureCortexLeft}, false},
		{"LeftTwice", []string{cifti.StructureCortexLeft, cifti.StructureCortexLeft}, false},
		{"BothWithDuplicateRight", []string{"CORTEX_LEFT", "CORTEX_RIGHT", "CORTEX_RIGHT"}, false},
		{"Empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			axis := &cifti.BrainModelAxis{}
			for _, n := range tt.models {
				axis.Models = append(axis.Models, model(n))
			}
			got, names := HasBilateralCortex(axis)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.models), len(names))
		})
	}
}
