package calc

import (
	"fmt"
	"sync"

	"github.com/gonum/matrix/mat64"
)

func acc(inputMat *mat64.Dense, outputMat *mat64.Dense, order <-chan int, wg *sync.WaitGroup) {
	_, inputCols := inputMat.Dims()

	for {
		index, ok := <-order
		if ok {
			for t := 0; t < inputCols; t++ {
				value := outputMat.At(index, t) + inputMat.At(index, t)
				outputMat.Set(index, t, value)
			}

			wg.Done()
		} else {
			break
		}
	}
}

func scale(inputMat *mat64.Dense, outputMat *mat64.Dense, factor float64, order <-chan int, wg *sync.WaitGroup) {
	_, inputCols := inputMat.Dims()

	for {
		index, ok := <-order
		if ok {
			for t := 0; t < inputCols; t++ {
				outputMat.Set(index, t, inputMat.At(index, t)*factor)
			}

			wg.Done()
		} else {
			break
		}
	}
}

// Acc adds inputMat into outputMat.
func (p *PipeLine) Acc(inputMat *mat64.Dense, outputMat *mat64.Dense) error {
	if err := checkSameDims("Acc", inputMat, outputMat); err != nil {
		return err
	}

	inputRows, _ := inputMat.Dims()
	p.dispatch(inputRows, func(order <-chan int, wg *sync.WaitGroup) {
		acc(inputMat, outputMat, order, wg)
	})

	return nil
}

// Avg divides an accumulated matrix by the number of terms.
func (p *PipeLine) Avg(accMat *mat64.Dense, outputMat *mat64.Dense, n int) error {
	if n < 1 {
		return fmt.Errorf("Avg: %d terms", n)
	}
	if err := checkSameDims("Avg", accMat, outputMat); err != nil {
		return err
	}

	rows, _ := accMat.Dims()
	p.dispatch(rows, func(order <-chan int, wg *sync.WaitGroup) {
		scale(accMat, outputMat, 1/float64(n), order, wg)
	})

	return nil
}
