package calc

import (
	"math"
	"sync"

	"github.com/gonum/matrix/mat64"
)

// getStat fills the population mean and standard deviation of each row.
func getStat(inputMat *mat64.Dense, stats []statistic, order <-chan int, wg *sync.WaitGroup) {
	_, numCols := inputMat.Dims()
	for {
		index, ok := <-order
		if ok {
			var accVal float64
			var accSqrVal float64

			for t := 0; t < numCols; t++ {
				value := inputMat.At(index, t)
				accVal += value
			}
			avgVal := accVal / float64(numCols)

			for t := 0; t < numCols; t++ {
				d := inputMat.At(index, t) - avgVal
				accSqrVal += d * d
			}

			stats[index].avg = avgVal
			stats[index].std = math.Sqrt(accSqrVal / float64(numCols))

			wg.Done()
		} else {
			break
		}
	}
}

func zScoring(inputMat *mat64.Dense, outputMat *mat64.Dense, stats []statistic, order <-chan int, wg *sync.WaitGroup) {
	_, inputCols := inputMat.Dims()

	for {
		index, ok := <-order
		if ok {
			for t := 0; t < inputCols; t++ {
				value := inputMat.At(index, t)
				// a flat row yields NaN, which the lag estimator skips
				newValue := (value - stats[index].avg) / stats[index].std
				outputMat.Set(index, t, newValue)
			}

			wg.Done()
		} else {
			break
		}
	}
}

// stats computes per-row statistics.
func (p *PipeLine) stats(inputMat *mat64.Dense) []statistic {
	inputRows, _ := inputMat.Dims()
	stats := make([]statistic, inputRows)

	p.dispatch(inputRows, func(order <-chan int, wg *sync.WaitGroup) {
		getStat(inputMat, stats, order, wg)
	})

	return stats
}

// ZScoring standardises each row to zero mean and unit population variance.
// inputMat and outputMat may be the same matrix.
func (p *PipeLine) ZScoring(inputMat *mat64.Dense, outputMat *mat64.Dense) error {
	if err := checkSameDims("ZScoring", inputMat, outputMat); err != nil {
		return err
	}

	inputRows, _ := inputMat.Dims()
	stats := p.stats(inputMat)

	p.dispatch(inputRows, func(order <-chan int, wg *sync.WaitGroup) {
		zScoring(inputMat, outputMat, stats, order, wg)
	})

	return nil
}
