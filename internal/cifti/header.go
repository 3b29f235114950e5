package cifti

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

const (
	headerSize     = 540
	extensionCifti = 32
)

// NIfTI datatype codes understood by the reader
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
)

// ErrNotCifti is returned for files without a NIfTI-2 header
var ErrNotCifti = errors.New("not a CIFTI-2 (NIfTI-2) file")

// Nifti2Header mirrors the 540 byte NIfTI-2 header, field for field.
type Nifti2Header struct {
	SizeOfHdr     int32
	Magic         [8]byte
	DataType      int16
	BitPix        int16
	Dim           [8]int64
	IntentP1      float64
	IntentP2      float64
	IntentP3      float64
	PixDim        [8]float64
	VoxOffset     int64
	SclSlope      float64
	SclInter      float64
	CalMax        float64
	CalMin        float64
	SliceDuration float64
	TOffset       float64
	SliceStart    int64
	SliceEnd      int64
	Descrip       [80]byte
	AuxFile       [24]byte
	QFormCode     int32
	SFormCode     int32
	QuaternB      float64
	QuaternC      float64
	QuaternD      float64
	QOffsetX      float64
	QOffsetY      float64
	QOffsetZ      float64
	SRowX         [4]float64
	SRowY         [4]float64
	SRowZ         [4]float64
	SliceCode     int32
	XYZTUnits     int32
	IntentCode    int32
	IntentName    [16]byte
	DimInfo       byte
	UnusedStr     [15]byte
}

// Shape returns the CIFTI matrix shape: dimension 0 (rows) and dimension 1 (cols).
func (h *Nifti2Header) Shape() (int, int, error) {
	if h.Dim[0] < 6 || h.Dim[0] > 7 {
		return 0, 0, errors.Wrapf(ErrNotCifti, "dim[0] is %d, CIFTI matrices need 6 or 7", h.Dim[0])
	}
	for i := 1; i <= 4; i++ {
		if h.Dim[i] != 1 {
			return 0, 0, errors.Wrapf(ErrNotCifti, "dim[%d] is %d, expected 1", i, h.Dim[i])
		}
	}
	if h.Dim[0] == 7 && h.Dim[7] > 1 {
		return 0, 0, errors.Errorf("CIFTI matrices with more than two dimensions are not supported (dim[7]=%d)", h.Dim[7])
	}
	if h.Dim[5] <= 0 || h.Dim[6] <= 0 {
		return 0, 0, errors.Errorf("empty CIFTI matrix %d by %d", h.Dim[5], h.Dim[6])
	}
	if h.Dim[5] > math.MaxInt32 || h.Dim[6] > math.MaxInt32 {
		return 0, 0, errors.Errorf("CIFTI matrix %d by %d is too large", h.Dim[5], h.Dim[6])
	}
	return int(h.Dim[5]), int(h.Dim[6]), nil
}

func bytesPerValue(dataType int16) (int, error) {
	switch dataType {
	case DTUint8:
		return 1, nil
	case DTInt16:
		return 2, nil
	case DTInt32, DTFloat32:
		return 4, nil
	case DTFloat64:
		return 8, nil
	}
	return 0, errors.Errorf("unsupported NIfTI datatype %d", dataType)
}

// byteOrder sniffs the header size field in both byte orders.
func byteOrder(raw []byte) (binary.ByteOrder, error) {
	if len(raw) < headerSize {
		return nil, errors.Wrapf(ErrNotCifti, "file holds %d bytes, header needs %d", len(raw), headerSize)
	}
	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(raw) == headerSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(raw) == headerSize:
		order = binary.BigEndian
	default:
		return nil, errors.Wrap(ErrNotCifti, "header size field is not 540")
	}
	magic := raw[4:7]
	if !bytes.Equal(magic, []byte("n+2")) && !bytes.Equal(magic, []byte("ni2")) {
		return nil, errors.Wrapf(ErrNotCifti, "bad magic %q", magic)
	}
	return order, nil
}

func readHeader(raw []byte) (*Nifti2Header, binary.ByteOrder, error) {
	order, err := byteOrder(raw)
	if err != nil {
		return nil, nil, err
	}
	var h Nifti2Header
	if err := binary.Read(bytes.NewReader(raw[:headerSize]), order, &h); err != nil {
		return nil, nil, errors.Wrap(err, "decoding NIfTI-2 header")
	}
	return &h, order, nil
}

// readExtensions returns the payload of the CIFTI extension block.
func readExtensions(raw []byte, order binary.ByteOrder, voxOffset int64) ([]byte, error) {
	pos := int64(headerSize)
	if int64(len(raw)) < pos+4 || raw[pos] == 0 {
		return nil, errors.Wrap(ErrNotCifti, "no header extensions")
	}
	pos += 4

	for pos+8 <= voxOffset && pos+8 <= int64(len(raw)) {
		esize := int64(int32(order.Uint32(raw[pos:])))
		ecode := int32(order.Uint32(raw[pos+4:]))
		if esize < 8 || pos+esize > int64(len(raw)) {
			break
		}
		if ecode == extensionCifti {
			return bytes.TrimRight(raw[pos+8:pos+esize], "\x00"), nil
		}
		pos += esize
	}
	return nil, errors.Wrap(ErrNotCifti, "no CIFTI extension (code 32)")
}
