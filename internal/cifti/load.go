package cifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io/ioutil"
	"math"
	"os"
	"strings"

	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
)

// Container is a loaded CIFTI-2 file
type Container struct {
	Header *Nifti2Header
	// Data is indexed (CIFTI dimension 0, CIFTI dimension 1).
	Data *mat64.Dense
	Axis *BrainModelAxis
	// BrainModelDim is the Data axis (0 = rows, 1 = cols) the brain models apply to.
	BrainModelDim int
}

// Load reads a CIFTI-2 file, gzip compressed or not
func Load(path string) (*Container, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Decode(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return c, nil
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening CIFTI file")
	}
	defer f.Close()

	if !strings.HasSuffix(path, ".gz") {
		return ioutil.ReadAll(f)
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "opening gzip stream of %s", path)
	}
	defer zr.Close()
	return ioutil.ReadAll(zr)
}

// Decode parses an in-memory CIFTI-2 file
func Decode(raw []byte) (*Container, error) {
	h, order, err := readHeader(raw)
	if err != nil {
		return nil, err
	}
	rows, cols, err := h.Shape()
	if err != nil {
		return nil, err
	}

	payload, err := readExtensions(raw, order, h.VoxOffset)
	if err != nil {
		return nil, err
	}
	axis, dim, err := parseAxis(payload)
	if err != nil {
		return nil, err
	}

	data, err := decodeData(raw, h, order, rows, cols)
	if err != nil {
		return nil, err
	}

	c := &Container{Header: h, Data: data, Axis: axis, BrainModelDim: dim}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the axis partition and that it matches the data shape.
func (c *Container) Validate() error {
	if err := c.Axis.Validate(); err != nil {
		return err
	}
	rows, cols := c.Data.Dims()
	n := cols
	if c.BrainModelDim == 0 {
		n = rows
	}
	if n != c.Axis.Size() {
		return errors.Wrapf(ErrInvalidAxis, "brain models cover %d grayordinates but data dimension %d has %d", c.Axis.Size(), c.BrainModelDim, n)
	}
	return nil
}

// decodeData reads the column-major data block into a row-major mat64.Dense.
func decodeData(raw []byte, h *Nifti2Header, order binary.ByteOrder, rows, cols int) (*mat64.Dense, error) {
	width, err := bytesPerValue(h.DataType)
	if err != nil {
		return nil, err
	}

	start := h.VoxOffset
	if start < headerSize || start > int64(len(raw)) {
		return nil, errors.Errorf("vox_offset %d outside file of %d bytes", start, len(raw))
	}
	// compare by division so huge dims cannot overflow
	fits := (int64(len(raw)) - start) / int64(width)
	if int64(rows) > fits/int64(cols) {
		return nil, errors.Errorf("%d by %d data block does not fit in %d bytes after offset %d", rows, cols, int64(len(raw))-start, start)
	}
	end := start + int64(rows)*int64(cols)*int64(width)
	block := raw[start:end]

	slope, inter := h.SclSlope, h.SclInter
	scaled := slope != 0 && !math.IsNaN(slope) && !(slope == 1 && inter == 0)

	data := make([]float64, rows*cols)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			offset := (r + c*rows) * width
			v := decodeValue(block[offset:offset+width], h.DataType, order)
			if scaled {
				v = v*slope + inter
			}
			data[r*cols+c] = v
		}
	}
	return mat64.NewDense(rows, cols, data), nil
}

func decodeValue(b []byte, dataType int16, order binary.ByteOrder) float64 {
	switch dataType {
	case DTUint8:
		return float64(b[0])
	case DTInt16:
		return float64(int16(order.Uint16(b)))
	case DTInt32:
		return float64(int32(order.Uint32(b)))
	case DTFloat32:
		return float64(math.Float32frombits(order.Uint32(b)))
	default:
		return math.Float64frombits(order.Uint64(b))
	}
}

// Write stores data and axis as a little endian float32 CIFTI-2 file.
// brainModelDim selects which data axis carries the grayordinates.
func Write(path string, data *mat64.Dense, axis *BrainModelAxis, brainModelDim int) error {
	c := &Container{Data: data, Axis: axis, BrainModelDim: brainModelDim}
	if err := c.Validate(); err != nil {
		return err
	}
	rows, cols := data.Dims()
	nScalars := rows
	if brainModelDim == 0 {
		nScalars = cols
	}

	payload, err := encodeAxis(axis, brainModelDim, nScalars)
	if err != nil {
		return err
	}
	// extension blocks are padded to a multiple of 16 bytes
	esize := 8 + len(payload)
	if pad := esize % 16; pad != 0 {
		esize += 16 - pad
	}

	h := Nifti2Header{
		SizeOfHdr:  headerSize,
		DataType:   DTFloat32,
		BitPix:     32,
		VoxOffset:  int64(headerSize + 4 + esize),
		SclSlope:   1,
		IntentCode: 3006,
	}
	copy(h.Magic[:], "n+2\x00\r\n\x1a\n")
	h.Dim = [8]int64{6, 1, 1, 1, 1, int64(rows), int64(cols), 1}
	for i := range h.PixDim {
		h.PixDim[i] = 1
	}
	copy(h.IntentName[:], "ConnDenseScalar")

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &h); err != nil {
		return errors.Wrap(err, "encoding NIfTI-2 header")
	}
	buf.Write([]byte{1, 0, 0, 0})
	binary.Write(&buf, binary.LittleEndian, int32(esize))
	binary.Write(&buf, binary.LittleEndian, int32(extensionCifti))
	buf.Write(payload)
	buf.Write(make([]byte, esize-8-len(payload)))

	values := make([]float32, rows*cols)
	for j := 0; j < cols; j++ {
		for r := 0; r < rows; r++ {
			values[r+j*rows] = float32(data.At(r, j))
		}
	}
	if err := binary.Write(&buf, binary.LittleEndian, values); err != nil {
		return errors.Wrap(err, "encoding CIFTI data")
	}

	out := buf.Bytes()
	if strings.HasSuffix(path, ".gz") {
		var zbuf bytes.Buffer
		zw := gzip.NewWriter(&zbuf)
		zw.Write(out)
		if err := zw.Close(); err != nil {
			return errors.Wrap(err, "compressing CIFTI file")
		}
		out = zbuf.Bytes()
	}
	return errors.Wrapf(ioutil.WriteFile(path, out, 0644), "writing %s", path)
}
