package calc

import (
	"sync"

	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
)

func avg(inputMat *mat64.Dense, outputMat *mat64.Dense, div float64, order <-chan int, wg *sync.WaitGroup) {
	_, inputCols := inputMat.Dims()

	for index := range order {
		for t := 0; t < inputCols; t++ {
			value := inputMat.At(index, t) / div
			outputMat.Set(index, t, value)
		}

		wg.Done()
	}
}

// Avg does averaging: outputMat = inputMat / div
func (p *PipeLine) Avg(inputMat *mat64.Dense, outputMat *mat64.Dense, div float64) error {
	if err := sameDims("Avg", inputMat, outputMat); err != nil {
		return err
	}
	if div == 0 {
		return errors.New("Avg: division by zero")
	}
	inputRows, _ := inputMat.Dims()

	p.run(inputRows, func(order <-chan int, wg *sync.WaitGroup) {
		avg(inputMat, outputMat, div, order, wg)
	})
	return nil
}
