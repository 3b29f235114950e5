package calc

import (
	"math"
	"sync"

	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
)

// VarianceFloor is the smallest variance the fixed effects model uses
const VarianceFloor = 1e-16

// DefaultDOF is the degrees of freedom assumed per input map
const DefaultDOF = 100

// ErrNoInputs is returned when FixedEffects gets nothing to pool
var ErrNoInputs = errors.New("no maps to pool")

// Options tune FixedEffects
type Options struct {
	// PrecisionWeighted weighs each map by its inverse variance instead of
	// averaging.
	PrecisionWeighted bool `mapstructure:"precision_weighted" yaml:"precision_weighted"`
	// DOF is the degrees of freedom of a single input map.
	DOF float64 `mapstructure:"dof" yaml:"dof"`
}

// Result holds the pooled maps, each voxels by frames
type Result struct {
	Effect   *mat64.Dense
	Variance *mat64.Dense
	Stat     *mat64.Dense
	Z        *mat64.Dense
	// DOF is the total degrees of freedom used for Z.
	DOF float64
}

func floorVariance(inputMat *mat64.Dense, outputMat *mat64.Dense, order <-chan int, wg *sync.WaitGroup) {
	_, inputCols := inputMat.Dims()

	for index := range order {
		for t := 0; t < inputCols; t++ {
			outputMat.Set(index, t, math.Max(inputMat.At(index, t), VarianceFloor))
		}

		wg.Done()
	}
}

func weigh(conMat, varMat *mat64.Dense, sumWeighted, sumPrecision *mat64.Dense, order <-chan int, wg *sync.WaitGroup) {
	_, inputCols := conMat.Dims()

	for index := range order {
		for t := 0; t < inputCols; t++ {
			v := math.Max(varMat.At(index, t), VarianceFloor)
			sumWeighted.Set(index, t, sumWeighted.At(index, t)+conMat.At(index, t)/v)
			sumPrecision.Set(index, t, sumPrecision.At(index, t)+1/v)
		}

		wg.Done()
	}
}

func unweigh(sumWeighted, sumPrecision *mat64.Dense, effect, variance *mat64.Dense, order <-chan int, wg *sync.WaitGroup) {
	_, inputCols := sumWeighted.Dims()

	for index := range order {
		for t := 0; t < inputCols; t++ {
			v := 1 / sumPrecision.At(index, t)
			variance.Set(index, t, v)
			effect.Set(index, t, sumWeighted.At(index, t)*v)
		}

		wg.Done()
	}
}

func tStat(effect, variance, stat *mat64.Dense, order <-chan int, wg *sync.WaitGroup) {
	_, inputCols := effect.Dims()

	for index := range order {
		for t := 0; t < inputCols; t++ {
			stat.Set(index, t, effect.At(index, t)/math.Sqrt(variance.At(index, t)))
		}

		wg.Done()
	}
}

// FixedEffects pools same-shaped contrast maps and their variances.
// Without precision weighting the effect is the mean of contrasts and the
// variance the mean variance over n; with it every map is weighted by its
// inverse variance. Variances below VarianceFloor are raised to it.
func (p *PipeLine) FixedEffects(contrasts, variances []*mat64.Dense, opts Options) (*Result, error) {
	if len(contrasts) == 0 {
		return nil, ErrNoInputs
	}
	if len(contrasts) != len(variances) {
		return nil, errors.Wrapf(ErrShape, "%d contrast maps but %d variance maps", len(contrasts), len(variances))
	}
	for i := range contrasts {
		if err := sameDims("FixedEffects", contrasts[i], contrasts[0]); err != nil {
			return nil, errors.Wrapf(err, "contrast map %d", i)
		}
		if err := sameDims("FixedEffects", variances[i], contrasts[0]); err != nil {
			return nil, errors.Wrapf(err, "variance map %d", i)
		}
	}

	n := float64(len(contrasts))
	dof := opts.DOF
	if dof <= 0 {
		dof = DefaultDOF
	}
	rows, cols := contrasts[0].Dims()
	res := &Result{
		Effect:   mat64.NewDense(rows, cols, nil),
		Variance: mat64.NewDense(rows, cols, nil),
		Stat:     mat64.NewDense(rows, cols, nil),
		Z:        mat64.NewDense(rows, cols, nil),
		DOF:      dof * n,
	}

	if opts.PrecisionWeighted {
		sumWeighted := mat64.NewDense(rows, cols, nil)
		sumPrecision := mat64.NewDense(rows, cols, nil)
		for i := range contrasts {
			con, vr := contrasts[i], variances[i]
			p.run(rows, func(order <-chan int, wg *sync.WaitGroup) {
				weigh(con, vr, sumWeighted, sumPrecision, order, wg)
			})
		}
		p.run(rows, func(order <-chan int, wg *sync.WaitGroup) {
			unweigh(sumWeighted, sumPrecision, res.Effect, res.Variance, order, wg)
		})
	} else {
		sumCon := mat64.NewDense(rows, cols, nil)
		sumVar := mat64.NewDense(rows, cols, nil)
		floored := mat64.NewDense(rows, cols, nil)
		for i := range contrasts {
			if err := p.Acc(contrasts[i], sumCon); err != nil {
				return nil, err
			}
			vr := variances[i]
			p.run(rows, func(order <-chan int, wg *sync.WaitGroup) {
				floorVariance(vr, floored, order, wg)
			})
			if err := p.Acc(floored, sumVar); err != nil {
				return nil, err
			}
		}
		if err := p.Avg(sumCon, res.Effect, n); err != nil {
			return nil, err
		}
		// mean variance over n
		if err := p.Avg(sumVar, res.Variance, n*n); err != nil {
			return nil, err
		}
	}

	p.run(rows, func(order <-chan int, wg *sync.WaitGroup) {
		tStat(res.Effect, res.Variance, res.Stat, order, wg)
	})
	if err := p.ZScoring(res.Stat, res.Z, res.DOF); err != nil {
		return nil, err
	}
	return res, nil
}
