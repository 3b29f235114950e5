package io

import (
	"strings"

	"github.com/gonum/matrix/mat64"
	"github.com/kshedden/gonpy"
	"github.com/pkg/errors"
)

// Mat64toNpy writes mat64 matrix to Python numpy npy binary file
func Mat64toNpy(path string, matrix *mat64.Dense) error {
	rows, cols := matrix.Dims()
	rawMat := mat64.DenseCopyOf(matrix).RawMatrix()

	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return errors.Wrapf(err, "[Mat64toNpy] failed to open %s", path)
	}
	w.Shape = []int{rows, cols}
	w.Version = 2
	if err := w.WriteFloat64(rawMat.Data); err != nil {
		return errors.Wrapf(err, "[Mat64toNpy] failed to write %s", path)
	}

	return nil
}

// NpytoMat64 reads a two dimensional float32 or float64 npy file as mat64 matrix
func NpytoMat64(path string) (*mat64.Dense, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "[NpytoMat64] failed to open %s", path)
	}

	var rows, cols int
	switch len(r.Shape) {
	case 1:
		rows, cols = 1, r.Shape[0]
	case 2:
		rows, cols = r.Shape[0], r.Shape[1]
	default:
		return nil, errors.Errorf("[NpytoMat64] %s has shape %v, expected 1 or 2 dimensions", path, r.Shape)
	}

	var data []float64
	if strings.TrimLeft(r.Dtype, "<>|=") == "f4" {
		var f32 []float32
		f32, err = r.GetFloat32()
		data = make([]float64, len(f32))
		for i, v := range f32 {
			data[i] = float64(v)
		}
	} else {
		data, err = r.GetFloat64()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[NpytoMat64] failed to read %s", path)
	}

	if r.ColumnMajor && rows > 1 {
		matrix := mat64.NewDense(cols, rows, data)
		return mat64.DenseCopyOf(matrix.T()), nil
	}
	return mat64.NewDense(rows, cols, data), nil
}
