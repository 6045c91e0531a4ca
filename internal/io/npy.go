package io

import (
	"fmt"

	"github.com/gonum/matrix/mat64"
	"github.com/kshedden/gonpy"
)

// Mat64toNpy writes a mat64 matrix to a numpy .npy file
func Mat64toNpy(path string, matrix *mat64.Dense) error {
	rows, cols := matrix.Dims()
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data = append(data, matrix.At(i, j))
		}
	}

	return WriteAtomic(path, func(tmp string) error {
		w, err := gonpy.NewFileWriter(tmp)
		if err != nil {
			return fmt.Errorf("open npy %s: %w", path, err)
		}
		w.Shape = []int{rows, cols}
		w.Version = 2
		if err := w.WriteFloat64(data); err != nil {
			return fmt.Errorf("write npy %s: %w", path, err)
		}
		return nil
	})
}

// NpytoMat64 reads a 2D numpy .npy file as a mat64 matrix
func NpytoMat64(path string) (*mat64.Dense, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open npy %s: %w", path, err)
	}
	if len(r.Shape) != 2 {
		return nil, fmt.Errorf("npy %s: want 2 dimensions, got shape %v", path, r.Shape)
	}

	data, err := r.GetFloat64()
	if err != nil {
		return nil, fmt.Errorf("read npy %s: %w", path, err)
	}

	return mat64.NewDense(r.Shape[0], r.Shape[1], data), nil
}
