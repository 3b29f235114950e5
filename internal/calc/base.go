package calc

import (
	"runtime"
	"sync"

	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
)

// ErrShape is returned when operand dimensions disagree
var ErrShape = errors.New("matrix dimensions differ")

// PipeLine runs row-parallel matrix operations on a fixed number of workers
type PipeLine struct {
	numPoper int
}

// Init returns a compute PipeLine; numWorkers <= 0 uses every CPU
func Init(numWorkers int) *PipeLine {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	return &PipeLine{numPoper: numWorkers}
}

// Workers returns the number of goroutines each operation uses
func (p *PipeLine) Workers() int {
	return p.numPoper
}

// run feeds every row index to numPoper copies of worker and waits for them
func (p *PipeLine) run(rows int, worker func(order <-chan int, wg *sync.WaitGroup)) {
	order := make(chan int, p.numPoper)
	var wg sync.WaitGroup

	wg.Add(rows)

	for i := 0; i < p.numPoper; i++ {
		go worker(order, &wg)
	}

	for i := 0; i < rows; i++ {
		order <- i
	}

	wg.Wait()
	close(order)
}

func sameDims(op string, a, b *mat64.Dense) error {
	aRows, aCols := a.Dims()
	bRows, bCols := b.Dims()
	if aRows != bRows || aCols != bCols {
		return errors.Wrapf(ErrShape, "%s: input dims: %d by %d when output dims: %d by %d", op, aRows, aCols, bRows, bCols)
	}
	return nil
}
