package volume

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/KyungWonPark/nifti"
	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeIndexing(t *testing.T) {
	v := New(2, 3, 4, 1)
	assert.Equal(t, 24, v.Voxels())
	assert.Equal(t, 0, v.Index(0, 0, 0))
	assert.Equal(t, 1, v.Index(1, 0, 0))
	assert.Equal(t, 2, v.Index(0, 1, 0))
	assert.Equal(t, 6, v.Index(0, 0, 1))
	assert.Equal(t, 23, v.Index(1, 2, 3))
}

func TestDerive(t *testing.T) {
	v := New(2, 2, 1, 3)

	d, err := v.Derive(mat64.NewDense(4, 1, nil))
	require.NoError(t, err)
	assert.Equal(t, [4]int{2, 2, 1, 1}, d.Dims)
	assert.True(t, SameGrid(v, d))

	_, err = v.Derive(mat64.NewDense(3, 1, nil))
	assert.True(t, errors.Is(err, ErrShape))
}

func TestMemStore(t *testing.T) {
	s := NewMemStore()
	v := New(1, 1, 2, 1)
	v.Data.Set(1, 0, 3.5)

	require.NoError(t, s.Save("/out/run_effect_size/a_effect_size.nii.gz", v))
	require.NoError(t, s.Save("/out/run_effect_size/a_effect_variance.nii.gz", v))
	require.NoError(t, s.Save("/out/session_contrast_maps/b.nii.gz", v))

	// stored copies are independent of the caller's volume
	v.Data.Set(1, 0, -1)
	got, err := s.Load("/out/run_effect_size/a_effect_size.nii.gz")
	require.NoError(t, err)
	assert.Equal(t, 3.5, got.Data.At(1, 0))

	assert.True(t, s.Exists("/out/run_effect_size/../run_effect_size/a_effect_size.nii.gz"))
	assert.False(t, s.Exists("/out/missing.nii.gz"))

	matches, err := s.Glob("/out/run_effect_size/*_effect_size.nii.gz")
	require.NoError(t, err)
	assert.Equal(t, []string{"/out/run_effect_size/a_effect_size.nii.gz"}, matches)
	assert.Len(t, s.Paths(), 3)

	_, err = s.Load("/out/missing.nii.gz")
	assert.True(t, os.IsNotExist(errors.Cause(err)))
}

func TestNiftiStoreGlobAndExists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "a_effect_size.nii.gz"), nil, 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "b_effect_size.nii.gz"), nil, 0644))

	s := NiftiStore{TempDir: dir}
	matches, err := s.Glob(filepath.Join(dir, "*_effect_size.nii.gz"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	assert.True(t, s.Exists(filepath.Join(dir, "a_effect_size.nii.gz")))
	assert.False(t, s.Exists(filepath.Join(dir, "sub")))

	_, err = s.Load(filepath.Join(dir, "missing.nii.gz"))
	assert.Error(t, err)
}

func sourceHeader() *nifti.Nifti1Header {
	var h nifti.Nifti1Header
	h.SizeofHdr = 348
	h.Dim = [8]int16{4, 9, 9, 9, 40, 1, 1, 1}
	h.Datatype = 64
	h.Bitpix = 64
	h.VoxOffset = 1024
	h.Pixdim = [8]float32{-1, 3, 3, 3.5, 2.2, 1, 1, 1}
	h.QformCode, h.SformCode = 1, 4
	h.QuaternC = 1
	h.SrowX = [4]float32{-3, 0, 0, 100}
	h.SrowY = [4]float32{0, 3, 0, -120}
	h.SrowZ = [4]float32{0, 0, 3.5, -60}
	h.Magic = [4]byte{'n', '+', '1', 0}
	return &h
}

func TestNiftiStoreRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		dims   [4]int
		header *nifti.Nifti1Header
	}{
		{"compressed 4D", "contrast_effect_size.nii.gz", [4]int{2, 3, 2, 2}, sourceHeader()},
		{"plain 3D", "contrast_effect_size.nii", [4]int{3, 2, 2, 1}, sourceHeader()},
		{"no source header", "fresh.nii.gz", [4]int{2, 2, 1, 1}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "out", tt.file)

			v := New(tt.dims[0], tt.dims[1], tt.dims[2], tt.dims[3])
			v.Header = tt.header
			rows, cols := v.Data.Dims()
			for i := 0; i < rows; i++ {
				for j := 0; j < cols; j++ {
					v.Data.Set(i, j, float64(i)*0.5-float64(j)*1.25)
				}
			}

			s := NiftiStore{TempDir: dir}
			require.NoError(t, s.Save(path, v))

			entries, err := ioutil.ReadDir(filepath.Dir(path))
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, tt.file, entries[0].Name())

			got, err := s.Load(path)
			require.NoError(t, err)
			assert.Equal(t, tt.dims, got.Dims)
			assert.True(t, mat64.Equal(v.Data, got.Data))

			h := got.Header
			require.NotNil(t, h)
			assert.Equal(t, int16(16), h.Datatype)
			assert.Equal(t, int16(32), h.Bitpix)
			assert.Equal(t, int16(tt.dims[3]), h.Dim[4])
			assert.Equal(t, float32(352), h.VoxOffset)
			if tt.dims[3] > 1 {
				assert.Equal(t, int16(4), h.Dim[0])
			} else {
				assert.Equal(t, int16(3), h.Dim[0])
			}
			if tt.header != nil {
				assert.Equal(t, tt.header.SrowX, h.SrowX)
				assert.Equal(t, tt.header.SrowZ, h.SrowZ)
				assert.Equal(t, tt.header.Pixdim, h.Pixdim)
				assert.Equal(t, tt.header.SformCode, h.SformCode)
			}

			// payload is header, extension flag, then float32 voxels
			local, cleanup, err := s.uncompressed(path)
			require.NoError(t, err)
			defer cleanup()
			info, err := os.Stat(local)
			require.NoError(t, err)
			assert.Equal(t, int64(352+rows*cols*4), info.Size())
		})
	}
}

func TestNiftiStoreRejectsTruncatedImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.nii")
	s := NiftiStore{TempDir: dir}
	require.NoError(t, s.Save(path, New(4, 4, 4, 1)))

	require.NoError(t, os.Truncate(path, 360))
	_, err := s.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated")

	require.NoError(t, ioutil.WriteFile(path, []byte("not an image"), 0644))
	_, err = s.Load(path)
	assert.Error(t, err)
}

func TestGunzipRejectsPlainInput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plain.nii.gz")
	require.NoError(t, ioutil.WriteFile(src, []byte("voxels"), 0644))

	_, err := NiftiStore{TempDir: dir}.Load(src)
	assert.Error(t, err)

	entries, err := ioutil.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
