package calc

import (
	"math"
	"sync"

	"github.com/gonum/matrix/mat64"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	minPValue = 1e-300
	maxPValue = 1 - 1e-16
)

func clipP(p float64) float64 {
	return math.Min(math.Max(p, minPValue), maxPValue)
}

// TScoreToZ converts a t statistic with dof degrees of freedom to the z score
// of equal tail probability.
func TScoreToZ(t, dof float64) float64 {
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}
	p := clipP(dist.Survival(t))

	z := -distuv.UnitNormal.Quantile(p)
	if z < 0 {
		// upper tail is too coarse here, use the lower one
		z = distuv.UnitNormal.Quantile(clipP(dist.CDF(t)))
	}
	return z
}

func zScoring(statMat *mat64.Dense, outputMat *mat64.Dense, dof float64, order <-chan int, wg *sync.WaitGroup) {
	_, inputCols := statMat.Dims()

	for index := range order {
		for t := 0; t < inputCols; t++ {
			outputMat.Set(index, t, TScoreToZ(statMat.At(index, t), dof))
		}

		wg.Done()
	}
}

// ZScoring converts every t statistic of statMat to a z score
func (p *PipeLine) ZScoring(statMat *mat64.Dense, outputMat *mat64.Dense, dof float64) error {
	if err := sameDims("ZScoring", statMat, outputMat); err != nil {
		return err
	}
	inputRows, _ := statMat.Dims()

	p.run(inputRows, func(order <-chan int, wg *sync.WaitGroup) {
		zScoring(statMat, outputMat, dof, order, wg)
	})
	return nil
}
