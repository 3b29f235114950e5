package calc

import (
	"sync"

	"github.com/gonum/matrix/mat64"
)

func acc(inputMat *mat64.Dense, outputMat *mat64.Dense, order <-chan int, wg *sync.WaitGroup) {
	_, inputCols := inputMat.Dims()

	for index := range order {
		for t := 0; t < inputCols; t++ {
			value := outputMat.At(index, t) + inputMat.At(index, t)
			outputMat.Set(index, t, value)
		}

		wg.Done()
	}
}

// Acc does accumulation: outputMat += inputMat
func (p *PipeLine) Acc(inputMat *mat64.Dense, outputMat *mat64.Dense) error {
	if err := sameDims("Acc", inputMat, outputMat); err != nil {
		return err
	}
	inputRows, _ := inputMat.Dims()

	p.run(inputRows, func(order <-chan int, wg *sync.WaitGroup) {
		acc(inputMat, outputMat, order, wg)
	})
	return nil
}
