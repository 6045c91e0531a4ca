// Package calc builds and transforms slice-signal matrices: one row per slice,
// one column per frame.
package calc

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/gonum/matrix/mat64"
)

// ErrDims is returned when input and output matrices disagree.
var ErrDims = errors.New("calc: dimension mismatch")

// PipeLine runs row-wise matrix jobs on a fixed number of workers.
type PipeLine struct {
	numWorker int
}

// Init returns a PipeLine. numWorker <= 0 means one worker per CPU.
func Init(numWorker int) *PipeLine {
	if numWorker <= 0 {
		numWorker = runtime.NumCPU()
	}

	return &PipeLine{numWorker: numWorker}
}

// Workers returns the worker count.
func (p *PipeLine) Workers() int {
	return p.numWorker
}

// dispatch feeds row indices to numWorker goroutines running work and waits.
func (p *PipeLine) dispatch(rows int, work func(order <-chan int, wg *sync.WaitGroup)) {
	order := make(chan int, p.numWorker)
	var wg sync.WaitGroup

	wg.Add(rows)

	for i := 0; i < p.numWorker; i++ {
		go work(order, &wg)
	}

	for i := 0; i < rows; i++ {
		order <- i
	}

	wg.Wait()
	close(order)
}

func checkSameDims(op string, inputMat, outputMat *mat64.Dense) error {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if inputRows != outputRows || inputCols != outputCols {
		return fmt.Errorf("%w: %s: input is %d by %d but output is %d by %d",
			ErrDims, op, inputRows, inputCols, outputRows, outputCols)
	}

	return nil
}

type statistic struct {
	avg float64
	std float64
}
