// Package gifti writes and reads GIFTI surface data files holding dense
// per-vertex arrays.
package gifti

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"io/ioutil"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
)

// Encoding is a GIFTI data array encoding
type Encoding string

// Supported encodings
const (
	ASCII            Encoding = "ASCII"
	Base64Binary     Encoding = "Base64Binary"
	GZipBase64Binary Encoding = "GZipBase64Binary"
)

const doctype = `<!DOCTYPE GIFTI SYSTEM "http://www.nitrc.org/frs/download.php/115/gifti.dtd">`

// ErrUnsupported is returned when reading arrays this package cannot decode
var ErrUnsupported = errors.New("unsupported GIFTI data array")

// Options control how Write encodes the array
type Options struct {
	Encoding Encoding
	// MetaData is attached to the data array.
	MetaData map[string]string
}

type document struct {
	XMLName            xml.Name    `xml:"GIFTI"`
	Version            string      `xml:"Version,attr"`
	NumberOfDataArrays int         `xml:"NumberOfDataArrays,attr"`
	MetaData           metaData    `xml:"MetaData"`
	LabelTable         struct{}    `xml:"LabelTable"`
	DataArrays         []dataArray `xml:"DataArray"`
}

type metaData struct {
	Entries []metaEntry `xml:"MD"`
}

type metaEntry struct {
	Name  string `xml:"Name"`
	Value string `xml:"Value"`
}

type dataArray struct {
	Intent             string   `xml:"Intent,attr"`
	DataType           string   `xml:"DataType,attr"`
	ArrayIndexingOrder string   `xml:"ArrayIndexingOrder,attr"`
	Dimensionality     int      `xml:"Dimensionality,attr"`
	Dim0               int      `xml:"Dim0,attr"`
	Dim1               int      `xml:"Dim1,attr,omitempty"`
	Encoding           Encoding `xml:"Encoding,attr"`
	Endian             string   `xml:"Endian,attr"`
	ExternalFileName   string   `xml:"ExternalFileName,attr"`
	ExternalFileOffset string   `xml:"ExternalFileOffset,attr"`
	MetaData           metaData `xml:"MetaData"`
	Data               string   `xml:"Data"`
}

// Write stores a vertices by samples matrix as a single float32 data array.
// A single sample column is written as a one dimensional array.
func Write(path string, data *mat64.Dense, opts Options) error {
	out, err := Encode(data, opts)
	if err != nil {
		return err
	}
	return errors.Wrapf(ioutil.WriteFile(path, out, 0644), "writing %s", path)
}

// Encode renders the GIFTI document for data
func Encode(data *mat64.Dense, opts Options) ([]byte, error) {
	if opts.Encoding == "" {
		opts.Encoding = GZipBase64Binary
	}
	rows, cols := data.Dims()

	values := make([]float32, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			values = append(values, float32(data.At(r, c)))
		}
	}
	payload, err := encodeValues(values, opts.Encoding)
	if err != nil {
		return nil, err
	}

	da := dataArray{
		Intent:             "NIFTI_INTENT_NONE",
		DataType:           "NIFTI_TYPE_FLOAT32",
		ArrayIndexingOrder: "RowMajorOrder",
		Dimensionality:     1,
		Dim0:               rows,
		Encoding:           opts.Encoding,
		Endian:             "LittleEndian",
		MetaData:           newMetaData(opts.MetaData),
		Data:               payload,
	}
	if cols > 1 {
		da.Dimensionality = 2
		da.Dim1 = cols
	}

	doc := document{Version: "1.0", NumberOfDataArrays: 1, DataArrays: []dataArray{da}}
	body, err := xml.MarshalIndent(doc, "", " ")
	if err != nil {
		return nil, errors.Wrap(err, "encoding GIFTI XML")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(doctype + "\n")
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func newMetaData(m map[string]string) metaData {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	md := metaData{}
	for _, k := range keys {
		md.Entries = append(md.Entries, metaEntry{Name: k, Value: m[k]})
	}
	return md
}

func encodeValues(values []float32, enc Encoding) (string, error) {
	if enc == ASCII {
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
		}
		return strings.Join(parts, " "), nil
	}

	var raw bytes.Buffer
	if err := binary.Write(&raw, binary.LittleEndian, values); err != nil {
		return "", errors.Wrap(err, "packing GIFTI values")
	}

	switch enc {
	case Base64Binary:
		return base64.StdEncoding.EncodeToString(raw.Bytes()), nil
	case GZipBase64Binary:
		var z bytes.Buffer
		zw := zlib.NewWriter(&z)
		zw.Write(raw.Bytes())
		if err := zw.Close(); err != nil {
			return "", errors.Wrap(err, "compressing GIFTI values")
		}
		return base64.StdEncoding.EncodeToString(z.Bytes()), nil
	}
	return "", errors.Wrapf(ErrUnsupported, "encoding %q", enc)
}

// Image is a decoded single data array file
type Image struct {
	Data     *mat64.Dense
	MetaData map[string]string
}

// Read decodes the first data array of a float32 GIFTI file
func Read(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening GIFTI file")
	}
	defer f.Close()

	var doc document
	if err := xml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	if len(doc.DataArrays) == 0 {
		return nil, errors.Wrapf(ErrUnsupported, "%s has no data arrays", path)
	}

	da := doc.DataArrays[0]
	if da.DataType != "NIFTI_TYPE_FLOAT32" || da.ArrayIndexingOrder != "RowMajorOrder" {
		return nil, errors.Wrapf(ErrUnsupported, "%s %s", da.DataType, da.ArrayIndexingOrder)
	}
	rows, cols := da.Dim0, 1
	if da.Dimensionality == 2 {
		cols = da.Dim1
	}
	if rows <= 0 || cols <= 0 {
		return nil, errors.Wrapf(ErrUnsupported, "dims %d by %d", rows, cols)
	}

	values, err := decodeValues(strings.TrimSpace(da.Data), da.Encoding, da.Endian)
	if err != nil {
		return nil, err
	}
	if len(values) != rows*cols {
		return nil, errors.Errorf("%s holds %d values, dims say %d by %d", path, len(values), rows, cols)
	}

	img := &Image{Data: mat64.NewDense(rows, cols, values), MetaData: map[string]string{}}
	for _, md := range da.MetaData.Entries {
		img.MetaData[md.Name] = md.Value
	}
	return img, nil
}

func decodeValues(text string, enc Encoding, endian string) ([]float64, error) {
	if enc == ASCII {
		fields := strings.Fields(text)
		out := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, errors.Wrap(err, "parsing ASCII value")
			}
			out[i] = v
		}
		return out, nil
	}

	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, errors.Wrap(err, "decoding base64 payload")
	}
	switch enc {
	case Base64Binary:
	case GZipBase64Binary:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, errors.Wrap(err, "opening zlib payload")
		}
		raw, err = ioutil.ReadAll(zr)
		if err != nil {
			return nil, errors.Wrap(err, "inflating payload")
		}
	default:
		return nil, errors.Wrapf(ErrUnsupported, "encoding %q", enc)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if endian == "BigEndian" {
		order = binary.BigEndian
	}
	out := make([]float64, len(raw)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(order.Uint32(raw[4*i:])))
	}
	return out, nil
}
