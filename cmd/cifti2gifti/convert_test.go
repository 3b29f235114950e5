package main

import (
	"path/filepath"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KyungWonPark/Grayordinate/internal/cifti"
	"github.com/KyungWonPark/Grayordinate/internal/gifti"
	"github.com/KyungWonPark/Grayordinate/internal/io"
)

func container() *cifti.Container {
	data := mat64.NewDense(3, 5, []float64{
		1, 2, 3, 4, 5,
		6, 7, 8, 9, 10,
		11, 12, 13, 14, 15,
	})
	axis := &cifti.BrainModelAxis{Models: []cifti.BrainModel{
		{Name: cifti.StructureCortexLeft, Type: cifti.ModelSurface, Offset: 0, Count: 2, Vertices: []int{2, 0}},
		{Name: cifti.StructureCortexRight, Type: cifti.ModelSurface, Offset: 2, Count: 3, Vertices: []int{0, 3, 1}},
	}}
	return &cifti.Container{Data: data, Axis: axis, BrainModelDim: 1}
}

func TestOutputBase(t *testing.T) {
	assert.Equal(t, "sub-MSC01_networks", outputBase("data/sub-MSC01_networks.dscalar.nii"))
	assert.Equal(t, "plain", outputBase("plain"))
}

func TestAnatomicalName(t *testing.T) {
	assert.Equal(t, "CortexLeft", anatomicalName(cifti.StructureCortexLeft))
	assert.Equal(t, "CortexRight", anatomicalName("CORTEX_RIGHT"))
}

func TestConvertGifti(t *testing.T) {
	base := filepath.Join(t.TempDir(), "sub-MSC01_networks")

	paths, err := convert(container(), base, "gifti", "")
	require.NoError(t, err)
	assert.Equal(t, []string{base + ".L.gii", base + ".R.gii"}, paths)

	left, err := gifti.Read(paths[0])
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 7, 12, 0, 0, 0, 1, 6, 11}, left.Data.RawMatrix().Data)
	assert.Equal(t, "CortexLeft", left.MetaData["AnatomicalStructurePrimary"])

	right, err := gifti.Read(paths[1])
	require.NoError(t, err)
	rows, _ := right.Data.Dims()
	assert.Equal(t, 4, rows)
}

func TestConvertNpy(t *testing.T) {
	base := filepath.Join(t.TempDir(), "out")

	paths, err := convert(container(), base, "npy", "")
	require.NoError(t, err)
	assert.Equal(t, base+".R.npy", paths[1])

	right, err := io.NpytoMat64(paths[1])
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 9, 14}, right.RawRowView(3))
}

func TestConvertUnknownFormat(t *testing.T) {
	_, err := convert(container(), filepath.Join(t.TempDir(), "out"), "vtk", "")
	assert.Error(t, err)
}
