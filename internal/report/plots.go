// Package report draws the optional diagnostics of the QC tools: PNG plots
// for single scans and an HTML chart of lags across centres.
package report

import (
	"fmt"
	"path/filepath"

	"github.com/gonum/matrix/mat64"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	qcio "github.com/KyungWonPark/MementoQC/internal/io"
	"github.com/KyungWonPark/MementoQC/internal/lag"
	"github.com/KyungWonPark/MementoQC/internal/volume"
)

const (
	plotWidth  = 10 * vg.Inch
	plotHeight = 5 * vg.Inch
)

func newPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Legend.Top = true
	p.Legend.Left = false
	return p
}

// series turns y into points with x taken from xs, or from the index when
// xs is nil.
func series(xs, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(y))
	for i, v := range y {
		pts[i].X = float64(i)
		if xs != nil {
			pts[i].X = xs[i]
		}
		pts[i].Y = v
	}
	return pts
}

func addLine(p *plot.Plot, label string, i int, pts plotter.XYs) error {
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = plotutil.Color(i)
	line.Width = vg.Points(1)
	p.Add(line)
	if label != "" {
		p.Legend.Add(label, line)
	}
	return nil
}

// save writes p to dir/name atomically and returns the path.
func save(p *plot.Plot, dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	err := qcio.WriteAtomic(path, func(tmp string) error {
		return p.Save(plotWidth, plotHeight, tmp)
	})
	if err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}

// LagDiagnostics draws the slice signals, the oversampled even and odd means
// and their cross-correlation. It returns the written files.
func LagDiagnostics(dir, name string, signals *mat64.Dense, res *lag.Result) ([]string, error) {
	var written []string

	rows, _ := signals.Dims()
	pSignals := newPlot(fmt.Sprintf("Standardized slice signals, %s", name), "TR", "z-score")
	for i := 0; i < rows; i++ {
		if err := addLine(pSignals, "", i, series(nil, mat64.Row(nil, i, signals))); err != nil {
			return written, err
		}
	}
	path, err := save(pSignals, dir, name+"_signals.png")
	if err != nil {
		return written, err
	}
	written = append(written, path)

	k := float64(res.Oversampling)
	frames := make([]float64, len(res.Even))
	for i := range frames {
		frames[i] = float64(i) / k
	}
	pMeans := newPlot(fmt.Sprintf("Oversampled slice means, %s", name), "TR", "mean signal")
	if err := addLine(pMeans, "even slices", 0, series(frames, res.Even)); err != nil {
		return written, err
	}
	if err := addLine(pMeans, "odd slices", 1, series(frames, res.Odd)); err != nil {
		return written, err
	}
	path, err = save(pMeans, dir, name+"_means.png")
	if err != nil {
		return written, err
	}
	written = append(written, path)

	pCorr := newPlot(fmt.Sprintf("Odd-even cross-correlation, lag %.2f TR", res.Lag), "lag (TR)", "correlation")
	if err := addLine(pCorr, "", 0, series(res.Lags, res.Corr)); err != nil {
		return written, err
	}
	marker, err := plotter.NewScatter(plotter.XYs{{X: res.Lag, Y: maxOf(res.Corr)}})
	if err != nil {
		return written, err
	}
	marker.Color = plotutil.Color(1)
	pCorr.Add(marker)
	path, err = save(pCorr, dir, name+"_xcorr.png")
	if err != nil {
		return written, err
	}
	written = append(written, path)

	return written, nil
}

func maxOf(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	m := x[0]
	for _, v := range x[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// RepairQC draws the global signal and its periodogram for a repaired scan.
// tr is the repetition time in seconds.
func RepairQC(dir, name string, vol *volume.Volume, tr float64) ([]string, error) {
	if err := vol.Validate(); err != nil {
		return nil, err
	}
	if tr <= 0 {
		return nil, fmt.Errorf("report: repetition time %g must be positive", tr)
	}

	ts := vol.GlobalSignal()
	var written []string

	times := make([]float64, len(ts))
	for i := range times {
		times[i] = float64(i) * tr
	}
	pGlobal := newPlot("Global signal", "Time (s)", "mean intensity")
	if err := addLine(pGlobal, "", 0, series(times, ts)); err != nil {
		return written, err
	}
	path, err := save(pGlobal, dir, name+"_global.png")
	if err != nil {
		return written, err
	}
	written = append(written, path)

	freqs, power := lag.Periodogram(ts, 1/tr)
	pPSD := newPlot("Periodogram", "frequency [Hz]", "PSD [V**2/Hz]")
	if err := addLine(pPSD, "", 0, series(freqs, power)); err != nil {
		return written, err
	}
	path, err = save(pPSD, dir, name+"_periodogram.png")
	if err != nil {
		return written, err
	}
	written = append(written, path)

	return written, nil
}
