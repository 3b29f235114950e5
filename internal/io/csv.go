package io

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
)

// Mat64toCSV saves Mat64 as a csv file
func Mat64toCSV(path string, matrix *mat64.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "[Mat64toCSV] failed to open %s", path)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	rows, _ := matrix.Dims()

	stride := runtime.NumCPU()
	parsed := make([]string, stride)

	for row := 0; row < rows; row += stride {
		var wg sync.WaitGroup
		jobMark := stride

		if row+stride >= rows {
			jobMark = rows - row
		}

		wg.Add(jobMark)
		for offset := 0; offset < jobMark; offset++ {
			go formatLine(matrix, parsed, offset, row, &wg)
		}
		wg.Wait()

		for i := 0; i < jobMark; i++ {
			fmt.Fprintf(w, "%s\n", parsed[i])
		}
	}

	return errors.Wrapf(w.Flush(), "[Mat64toCSV] failed to write %s", path)
}

func formatLine(matrix *mat64.Dense, parsed []string, offset int, row int, wg *sync.WaitGroup) {
	defer wg.Done()
	_, cols := matrix.Dims()

	fields := make([]string, cols)
	for i := 0; i < cols; i++ {
		fields[i] = strconv.FormatFloat(matrix.At(row+offset, i), 'g', -1, 64)
	}
	parsed[offset] = strings.Join(fields, ", ")
}

// CSVtoMat64 reads a rectangular csv file of numbers into a new mat64
func CSVtoMat64(path string) (*mat64.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "[CSVtoMat64] failed to open %s", path)
	}
	defer f.Close()

	csvReader := csv.NewReader(f)
	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "[CSVtoMat64] failed to parse %s", path)
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, errors.Errorf("[CSVtoMat64] %s is empty", path)
	}

	rows, cols := len(records), len(records[0])
	matrix := mat64.NewDense(rows, cols, nil)

	workers := runtime.NumCPU()
	order := make(chan int, workers)
	failures := make(chan error, rows)
	var wg sync.WaitGroup

	wg.Add(rows)

	for i := 0; i < workers; i++ {
		go parseLine(records, matrix, order, failures, &wg)
	}

	for i := 0; i < rows; i++ {
		order <- i
	}

	wg.Wait()
	close(order)
	close(failures)

	if err := <-failures; err != nil {
		return nil, errors.Wrapf(err, "[CSVtoMat64] %s", path)
	}
	return matrix, nil
}

func parseLine(records [][]string, matrix *mat64.Dense, order <-chan int, failures chan<- error, wg *sync.WaitGroup) {
	_, cols := matrix.Dims()

	for index := range order {
		if len(records[index]) != cols {
			failures <- errors.Errorf("line %d has %d fields, expected %d", index+1, len(records[index]), cols)
			wg.Done()
			continue
		}
		for i := 0; i < cols; i++ {
			str := strings.TrimSpace(records[index][i])
			value, err := strconv.ParseFloat(str, 64)
			if err != nil {
				failures <- errors.Wrapf(err, "line %d field %d", index+1, i+1)
				break
			}

			matrix.Set(index, i, value)
		}

		wg.Done()
	}
}
