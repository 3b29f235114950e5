package cifti

import (
	"encoding/binary"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAxis() *BrainModelAxis {
	return &BrainModelAxis{Models: []BrainModel{
		{Name: StructureCortexLeft, Type: ModelSurface, Offset: 0, Count: 2, SurfaceVertices: 4, Vertices: []int{2, 0}},
		{Name: StructureCortexRight, Type: ModelSurface, Offset: 2, Count: 3, SurfaceVertices: 4, Vertices: []int{0, 3, 1}},
		{Name: "CIFTI_STRUCTURE_THALAMUS_LEFT", Type: ModelVoxels, Offset: 5, Count: 1, Voxels: []Voxel{{10, 20, 30}}},
	}}
}

func sampleData() *mat64.Dense {
	return mat64.NewDense(2, 6, []float64{
		1, 2, 3, 4, 5, 6,
		-1, -2, -3, -4, -5, 0.5,
	})
}

func TestAxisValidate(t *testing.T) {
	require.NoError(t, sampleAxis().Validate())
	assert.Equal(t, 6, sampleAxis().Size())
	assert.Equal(t, []string{StructureCortexLeft, StructureCortexRight, "CIFTI_STRUCTURE_THALAMUS_LEFT"}, sampleAxis().Names())

	tests := []struct {
		name   string
		mutate func(a *BrainModelAxis)
	}{
		{"Gap", func(a *BrainModelAxis) { a.Models[1].Offset = 3 }},
		{"Overlap", func(a *BrainModelAxis) { a.Models[1].Offset = 1 }},
		{"VertexCount", func(a *BrainModelAxis) { a.Models[0].Vertices = []int{1} }},
		{"NegativeVertex", func(a *BrainModelAxis) { a.Models[0].Vertices = []int{-1, 0} }},
		{"UnknownType", func(a *BrainModelAxis) { a.Models[2].Type = "CIFTI_MODEL_TYPE_OTHER" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := sampleAxis()
			tt.mutate(a)
			assert.True(t, errors.Is(a.Validate(), ErrInvalidAxis))
		})
	}
}

func TestLookup(t *testing.T) {
	m, ok := sampleAxis().Lookup(StructureCortexRight)
	require.True(t, ok)
	assert.Equal(t, 2, m.Offset)
	assert.Equal(t, 5, m.End())

	_, ok = sampleAxis().Lookup("CORTEX_RIGHT")
	assert.False(t, ok)
}

func TestCanonicalStructure(t *testing.T) {
	for _, name := range []string{"CIFTI_STRUCTURE_CORTEX_LEFT", "CORTEX_LEFT", "CortexLeft", " CORTEX_LEFT "} {
		assert.Equal(t, "CORTEX_LEFT", CanonicalStructure(name), name)
	}
	assert.Equal(t, "CORTEX_RIGHT", CanonicalStructure("CortexRight"))
}

func TestWriteLoad(t *testing.T) {
	for _, name := range []string{"sample.dscalar.nii", "sample.dscalar.nii.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, Write(path, sampleData(), sampleAxis(), 1))

			c, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, 1, c.BrainModelDim)
			assert.True(t, mat64.Equal(sampleData(), c.Data))
			assert.Equal(t, sampleAxis(), c.Axis)

			rows, cols, err := c.Header.Shape()
			require.NoError(t, err)
			assert.Equal(t, 2, rows)
			assert.Equal(t, 6, cols)
		})
	}
}

func TestWriteLoadBrainModelsFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.dscalar.nii")
	data := mat64.NewDense(6, 1, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, Write(path, data, sampleAxis(), 0))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, c.BrainModelDim)
	assert.True(t, mat64.Equal(data, c.Data))
}

func TestWriteRejectsMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.dscalar.nii")
	err := Write(path, mat64.NewDense(2, 5, nil), sampleAxis(), 1)
	assert.True(t, errors.Is(err, ErrInvalidAxis))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(make([]byte, 600))
	assert.True(t, errors.Is(err, ErrNotCifti))

	_, err = Decode([]byte("short"))
	assert.True(t, errors.Is(err, ErrNotCifti))
}

func TestDecodeRejectsBadDims(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.dscalar.nii")
	require.NoError(t, Write(path, sampleData(), sampleAxis(), 1))
	valid, err := ioutil.ReadFile(path)
	require.NoError(t, err)

	patched := func(offset int, v int64) []byte {
		raw := append([]byte(nil), valid...)
		binary.LittleEndian.PutUint64(raw[offset:], uint64(v))
		return raw
	}

	tests := []struct {
		name     string
		raw      []byte
		notCifti bool
	}{
		{"rank above seven", patched(16, 9), true},
		{"negative rank", patched(16, -1), true},
		{"rows beyond the data block", patched(56, 1<<20), false},
		{"cols beyond the data block", patched(64, 1<<31-1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { _, err = Decode(tt.raw) })
			require.Error(t, err)
			if tt.notCifti {
				assert.True(t, errors.Is(err, ErrNotCifti))
			}
		})
	}

	// rows*cols*width overflows int64 for these
	for _, n := range []int64{1<<31 - 1, 1 << 40} {
		huge := patched(56, n)
		binary.LittleEndian.PutUint64(huge[64:], uint64(n))
		require.NotPanics(t, func() { _, err = Decode(huge) })
		assert.Error(t, err)
	}
}

func TestParseAxisWithoutBrainModels(t *testing.T) {
	doc := []byte(`<CIFTI Version="2"><Matrix>
<MatrixIndicesMap AppliesToMatrixDimension="0,1" IndicesMapToDataType="CIFTI_INDEX_TYPE_PARCELS"></MatrixIndicesMap>
</Matrix></CIFTI>`)
	_, _, err := parseAxis(doc)
	assert.Equal(t, ErrNoBrainModels, err)
}

func TestParseAxisDenseConnectivity(t *testing.T) {
	doc := []byte(`<CIFTI Version="2"><Matrix>
<MatrixIndicesMap AppliesToMatrixDimension="0,1" IndicesMapToDataType="CIFTI_INDEX_TYPE_BRAIN_MODELS">
<BrainModel IndexOffset="0" IndexCount="3" ModelType="CIFTI_MODEL_TYPE_SURFACE" BrainStructure="CIFTI_STRUCTURE_CORTEX_LEFT" SurfaceNumberOfVertices="5">
<VertexIndices>4 1 0</VertexIndices>
</BrainModel>
</MatrixIndicesMap>
</Matrix></CIFTI>`)
	axis, dim, err := parseAxis(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, dim)
	require.Len(t, axis.Models, 1)
	assert.Equal(t, []int{4, 1, 0}, axis.Models[0].Vertices)
	assert.Equal(t, 5, axis.Models[0].SurfaceVertices)
}
