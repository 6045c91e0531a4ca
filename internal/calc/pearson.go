package calc

import (
	"fmt"
	"sync"

	"github.com/gonum/matrix/mat64"
)

func pearson(timeSeriesMat *mat64.Dense, pearsonMat *mat64.Dense, stats []statistic, order <-chan int, wg *sync.WaitGroup) {
	inputRows, inputCols := timeSeriesMat.Dims()

	for {
		from, ok := <-order
		if ok {
			for to := from; to < inputRows; to++ {
				var accProd float64
				for t := 0; t < inputCols; t++ {
					accProd += timeSeriesMat.At(from, t) * timeSeriesMat.At(to, t)
				}

				cov := (accProd / float64(inputCols)) - (stats[from].avg * stats[to].avg)
				pearson := cov / (stats[from].std * stats[to].std)

				pearsonMat.Set(from, to, pearson)
				pearsonMat.Set(to, from, pearson)
			}

			wg.Done()
		} else {
			break
		}
	}
}

// Pearson fills outputMat with the row-by-row correlation of timeSeriesMat.
// For a z-scored input this is the slice correlation map M·Mᵀ/T.
func (p *PipeLine) Pearson(timeSeriesMat *mat64.Dense, outputMat *mat64.Dense) error {
	inputRows, inputCols := timeSeriesMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if outputRows != inputRows || outputCols != inputRows {
		return fmt.Errorf("%w: Pearson: input is %d by %d but output is %d by %d",
			ErrDims, inputRows, inputCols, outputRows, outputCols)
	}

	stats := p.stats(timeSeriesMat)

	// cell (a, b) is only ever written by row min(a, b)
	p.dispatch(inputRows, func(order <-chan int, wg *sync.WaitGroup) {
		pearson(timeSeriesMat, outputMat, stats, order, wg)
	})

	return nil
}
