package io

import (
	"bufio"
	"encoding/binary"
	"os"

	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
)

// Mat64toBin writes the matrix row by row as little endian float32 values
func Mat64toBin(path string, matrix *mat64.Dense) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "[Mat64toBin] failed to create %s", path)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	rows, cols := matrix.Dims()
	row := make([]float32, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			row[j] = float32(matrix.At(i, j))
		}
		if err := binary.Write(w, binary.LittleEndian, row); err != nil {
			return errors.Wrapf(err, "[Mat64toBin] failed to write %s", path)
		}
	}

	return errors.Wrapf(w.Flush(), "[Mat64toBin] failed to flush %s", path)
}
