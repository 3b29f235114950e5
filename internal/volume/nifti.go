package volume

import (
	"io"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/KyungWonPark/nifti"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"
)

const (
	headerSize = 348
	// header plus the empty extension flag
	dataOffset = 352

	dtFloat32 = 16
)

// NiftiStore reads and writes .nii and .nii.gz files on disk
type NiftiStore struct {
	// TempDir holds the uncompressed copies of .nii.gz files, os.TempDir when empty.
	TempDir string
}

// Load reads a NIfTI-1 image
func (s NiftiStore) Load(path string) (*Volume, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "loading volume")
	}

	// the reader panics on broken gzip streams, so decompress here first
	local, cleanup, err := s.uncompressed(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var header nifti.Nifti1Header
	header.LoadHeader(local)
	nx, ny, nz, nt := headerDims(header)
	if err := checkHeader(local, header, nx*ny*nz*nt); err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}

	var img nifti.Nifti1Image
	img.LoadImage(local, true)

	v := New(nx, ny, nz, nt)
	v.Header = &header
	for t := 0; t < nt; t++ {
		for z := 0; z < nz; z++ {
			for y := 0; y < ny; y++ {
				for x := 0; x < nx; x++ {
					val := img.GetAt(uint32(x), uint32(y), uint32(z), uint32(t))
					v.Data.Set(v.Index(x, y, z), t, float64(val))
				}
			}
		}
	}
	return v, nil
}

func headerDims(h nifti.Nifti1Header) (int, int, int, int) {
	rank := int(h.Dim[0])
	dim := func(i int) int {
		if i > rank || h.Dim[i] < 1 {
			return 1
		}
		return int(h.Dim[i])
	}
	if rank < 1 || rank > 7 {
		return 0, 0, 0, 0
	}
	return dim(1), dim(2), dim(3), dim(4)
}

// checkHeader rejects headers the image reader cannot decode
func checkHeader(local string, h nifti.Nifti1Header, voxels int) error {
	if h.SizeofHdr != headerSize {
		return errors.Errorf("not a little-endian NIfTI-1 header (sizeof_hdr %d)", h.SizeofHdr)
	}
	if voxels <= 0 {
		return errors.Errorf("unsupported dims %v", h.Dim)
	}
	switch h.Bitpix {
	case 8, 16, 32, 64:
	default:
		return errors.Errorf("unsupported bitpix %d", h.Bitpix)
	}
	if h.VoxOffset < headerSize {
		return errors.Errorf("vox_offset %v inside the header", h.VoxOffset)
	}

	info, err := os.Stat(local)
	if err != nil {
		return err
	}
	need := int64(h.VoxOffset) + int64(voxels)*int64(h.Bitpix/8)
	if info.Size() < need {
		return errors.Errorf("truncated image: %d bytes, want %d", info.Size(), need)
	}
	return nil
}

// outputHeader describes a float32 image of v's dims. The spatial transform
// of v.Header is kept when there is one.
func outputHeader(v *Volume, h nifti.Nifti1Header) nifti.Nifti1Header {
	if v.Header != nil {
		h = *v.Header
	} else {
		h.Pixdim = [8]float32{1, 1, 1, 1, 1, 1, 1, 1}
		h.QformCode, h.SformCode = 0, 0
		h.QuaternB, h.QuaternC, h.QuaternD = 0, 0, 0
		h.QoffsetX, h.QoffsetY, h.QoffsetZ = 0, 0, 0
		h.SrowX = [4]float32{1, 0, 0, 0}
		h.SrowY = [4]float32{0, 1, 0, 0}
		h.SrowZ = [4]float32{0, 0, 1, 0}
		h.CalMax, h.CalMin = 0, 0
	}

	h.Dim = [8]int16{3, int16(v.Dims[0]), int16(v.Dims[1]), int16(v.Dims[2]), int16(v.Dims[3]), 1, 1, 1}
	if v.Dims[3] > 1 {
		h.Dim[0] = 4
	}
	h.SizeofHdr = headerSize
	h.Datatype = dtFloat32
	h.Bitpix = 32
	h.VoxOffset = dataOffset
	h.SclSlope, h.SclInter = 1, 0
	h.Magic = [4]byte{'n', '+', '1', 0}
	return h
}

// Save writes v as float32 at path, gzip compressed when path ends in .gz.
// The header of v is reused for the spatial transform.
func (s NiftiStore) Save(path string, v *Volume) error {
	nx, ny, nz, nt := v.Dims[0], v.Dims[1], v.Dims[2], v.Dims[3]
	for _, d := range v.Dims {
		if d < 1 || d > math.MaxInt16 {
			return errors.Errorf("cannot save %s: dims %v out of NIfTI-1 range", path, v.Dims)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating output directory")
	}

	newImg := nifti.NewImg(nx, ny, nz, nt)
	for t := 0; t < nt; t++ {
		for z := 0; z < nz; z++ {
			for y := 0; y < ny; y++ {
				for x := 0; x < nx; x++ {
					val := v.Data.At(v.Index(x, y, z), t)
					newImg.SetAt(uint32(x), uint32(y), uint32(z), uint32(t), float32(val))
				}
			}
		}
	}
	newImg.SetNewHeader(outputHeader(v, newImg.GetHeader()))

	// the image writer always appends .gz to the name it is given
	if strings.HasSuffix(path, ".gz") {
		newImg.Save(strings.TrimSuffix(path, ".gz"))
		return checkWritten(path)
	}

	tmp, err := ioutil.TempFile(filepath.Dir(path), ".volume-*.nii")
	if err != nil {
		return errors.Wrap(err, "creating temporary volume")
	}
	tmp.Close()
	os.Remove(tmp.Name())
	compressed := tmp.Name() + ".gz"
	defer os.Remove(compressed)

	newImg.Save(tmp.Name())
	if err := checkWritten(compressed); err != nil {
		return err
	}
	return gunzip(compressed, path)
}

func checkWritten(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	if info.Size() == 0 {
		return errors.Errorf("writing %s: empty file", path)
	}
	return nil
}

// Exists reports whether path is a regular file
func (s NiftiStore) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Glob matches files on disk
func (s NiftiStore) Glob(pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	return matches, errors.Wrapf(err, "globbing %s", pattern)
}

func (s NiftiStore) uncompressed(path string) (string, func(), error) {
	if !strings.HasSuffix(path, ".gz") {
		return path, func() {}, nil
	}

	tmp, err := ioutil.TempFile(s.TempDir, "volume-*.nii")
	if err != nil {
		return "", nil, errors.Wrap(err, "creating temporary volume")
	}
	tmp.Close()
	cleanup := func() { os.Remove(tmp.Name()) }
	if err := gunzip(path, tmp.Name()); err != nil {
		cleanup()
		return "", nil, err
	}
	return tmp.Name(), cleanup, nil
}

func gunzip(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "opening volume")
	}
	defer in.Close()
	zr, err := pgzip.NewReader(in)
	if err != nil {
		return errors.Wrapf(err, "opening gzip stream of %s", src)
	}
	defer zr.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "creating %s", dst)
	}
	if _, err := io.Copy(out, zr); err != nil {
		out.Close()
		return errors.Wrapf(err, "decompressing %s", src)
	}
	return errors.Wrapf(out.Close(), "writing %s", dst)
}
