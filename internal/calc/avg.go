package calc

import (
	"sync"

	"github.com/gonum/matrix/mat64"

	"github.com/KyungWonPark/MementoQC/internal/volume"
)

func sliceAvg(vol *volume.Volume, outputMat *mat64.Dense, order <-chan int, wg *sync.WaitGroup) {
	planeSize := float64(vol.PlaneSize())

	for {
		z, ok := <-order
		if ok {
			for t := 0; t < vol.T; t++ {
				var acc float64
				for _, value := range vol.Plane(z, t) {
					acc += value
				}
				outputMat.Set(z, t, acc/planeSize)
			}

			wg.Done()
		} else {
			break
		}
	}
}

// SliceSignals averages every slice over x and y at every frame, giving a
// Z by T matrix.
func (p *PipeLine) SliceSignals(vol *volume.Volume) (*mat64.Dense, error) {
	if err := vol.Validate(); err != nil {
		return nil, err
	}

	signals := mat64.NewDense(vol.Z, vol.T, nil)
	p.dispatch(vol.Z, func(order <-chan int, wg *sync.WaitGroup) {
		sliceAvg(vol, signals, order, wg)
	})

	return signals, nil
}

// StandardSignals returns the slice signals detrended and z-scored row by row.
func (p *PipeLine) StandardSignals(vol *volume.Volume) (*mat64.Dense, error) {
	signals, err := p.SliceSignals(vol)
	if err != nil {
		return nil, err
	}

	if err := p.Detrend(signals, signals); err != nil {
		return nil, err
	}
	if err := p.ZScoring(signals, signals); err != nil {
		return nil, err
	}

	return signals, nil
}

// SliceMatrix returns the standard slice signals and their correlation map.
func (p *PipeLine) SliceMatrix(vol *volume.Volume) (*mat64.Dense, *mat64.Dense, error) {
	signals, err := p.StandardSignals(vol)
	if err != nil {
		return nil, nil, err
	}

	rows, _ := signals.Dims()
	corrMap := mat64.NewDense(rows, rows, nil)
	if err := p.Pearson(signals, corrMap); err != nil {
		return nil, nil, err
	}

	return signals, corrMap, nil
}
