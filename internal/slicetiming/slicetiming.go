// Package slicetiming decides which scans were acquired interleaved and
// writes the matching SliceTiming field into their sidecars.
package slicetiming

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/KyungWonPark/MementoQC/internal/bids"
	qcio "github.com/KyungWonPark/MementoQC/internal/io"
)

const (
	// DefaultThreshold is the |median lag| in TR above which a centre and
	// machine pair is taken as interleaved.
	DefaultThreshold = 0.1

	// MaxLag discards lags that only reflect a failed estimate.
	MaxLag = 1.5

	// MinGroupSize is the smallest group whose median is trusted; smaller
	// groups are decided scan by scan.
	MinGroupSize = 4
)

// Interleaved returns the slice timing of n slices acquired even slices
// first within one TR: 0, tr/2, 0, tr/2, ... with a trailing 0 for odd n.
func Interleaved(n int, tr float64) []float64 {
	timing := make([]float64, n)
	for i := 1; i < n; i += 2 {
		timing[i] = tr / 2
	}
	return timing
}

// Decide reports whether a single lag marks an interleaved scan.
func Decide(lag, threshold float64) bool {
	a := math.Abs(lag)
	return a >= threshold && a < MaxLag
}

// GroupKey identifies the centre and machine a scan comes from.
func GroupKey(row qcio.LagRow) string {
	machine := row.Machine
	if machine == "" {
		machine = "Unspecified"
	}
	return row.Centre + " / " + machine
}

// Group summarises the usable lags of one centre and machine pair.
type Group struct {
	Key    string
	Count  int
	Median float64
}

// Groups returns the median lag of each centre and machine pair, ignoring
// lags at or beyond MaxLag. Groups are sorted by key.
func Groups(rows []qcio.LagRow) []Group {
	lags := make(map[string][]float64)
	for _, row := range rows {
		if math.IsNaN(row.Lag) || math.Abs(row.Lag) >= MaxLag {
			continue
		}
		key := GroupKey(row)
		lags[key] = append(lags[key], row.Lag)
	}

	groups := make([]Group, 0, len(lags))
	for key, values := range lags {
		sort.Float64s(values)
		groups = append(groups, Group{
			Key:    key,
			Count:  len(values),
			Median: median(values),
		})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })

	return groups
}

// median of sorted values.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return stat.Mean(sorted[n/2-1:n/2+1], nil)
}

// Decision is the verdict for one scan.
type Decision struct {
	Row         qcio.LagRow
	Interleaved bool
}

// Classify marks every scan of a group whose median lag reaches threshold.
// Scans from groups smaller than MinGroupSize are judged on their own lag.
func Classify(rows []qcio.LagRow, threshold float64) []Decision {
	byKey := make(map[string]Group)
	for _, g := range Groups(rows) {
		byKey[g.Key] = g
	}

	decisions := make([]Decision, len(rows))
	for i, row := range rows {
		decisions[i].Row = row
		g, ok := byKey[GroupKey(row)]
		if ok && g.Count >= MinGroupSize {
			decisions[i].Interleaved = math.Abs(g.Median) >= threshold
			continue
		}
		decisions[i].Interleaved = Decide(row.Lag, threshold)
	}

	return decisions
}

// ApplyToSidecar stores the interleaved timing of a scan with nSlices slices
// in the sidecar at path. The TR comes from the sidecar when it has one.
func ApplyToSidecar(path string, nSlices int, tr float64, backup bool) ([]float64, error) {
	sidecar, err := bids.LoadSidecar(path)
	if err != nil {
		return nil, err
	}

	if sidecarTR, ok := sidecar.RepetitionTime(); ok && sidecarTR > 0 {
		tr = sidecarTR
	}
	if tr <= 0 {
		return nil, fmt.Errorf("%s: no repetition time", path)
	}
	if nSlices < 1 {
		return nil, fmt.Errorf("%s: %d slices", path, nSlices)
	}

	timing := Interleaved(nSlices, tr)
	sidecar.Set("SliceTiming", timing)

	if err := sidecar.Save(backup); err != nil {
		return nil, err
	}

	return timing, nil
}
