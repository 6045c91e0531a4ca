package calc

import (
	"sync"

	"github.com/gonum/matrix/mat64"
	"gonum.org/v1/gonum/stat"
)

func detrend(inputMat *mat64.Dense, outputMat *mat64.Dense, frames []float64, order <-chan int, wg *sync.WaitGroup) {
	_, inputCols := inputMat.Dims()
	row := make([]float64, inputCols)

	for {
		index, ok := <-order
		if ok {
			for t := 0; t < inputCols; t++ {
				row[t] = inputMat.At(index, t)
			}

			alpha, beta := stat.LinearRegression(frames, row, nil, false)
			for t := 0; t < inputCols; t++ {
				outputMat.Set(index, t, row[t]-(alpha+beta*frames[t]))
			}

			wg.Done()
		} else {
			break
		}
	}
}

// Detrend removes the least-squares line from each row.
func (p *PipeLine) Detrend(inputMat *mat64.Dense, outputMat *mat64.Dense) error {
	if err := checkSameDims("Detrend", inputMat, outputMat); err != nil {
		return err
	}

	inputRows, inputCols := inputMat.Dims()
	frames := make([]float64, inputCols)
	for t := range frames {
		frames[t] = float64(t)
	}

	p.dispatch(inputRows, func(order <-chan int, wg *sync.WaitGroup) {
		detrend(inputMat, outputMat, frames, order, wg)
	})

	return nil
}
