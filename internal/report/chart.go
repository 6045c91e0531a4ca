package report

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	qcio "github.com/KyungWonPark/MementoQC/internal/io"
	"github.com/KyungWonPark/MementoQC/internal/slicetiming"
)

// centreCounts returns the centres ordered by decreasing scan count.
func centreCounts(rows []qcio.LagRow) ([]string, map[string]int) {
	counts := make(map[string]int)
	for _, row := range rows {
		counts[row.Centre]++
	}

	centres := make([]string, 0, len(counts))
	for c := range counts {
		centres = append(centres, c)
	}
	sort.Slice(centres, func(i, j int) bool {
		if counts[centres[i]] != counts[centres[j]] {
			return counts[centres[i]] > counts[centres[j]]
		}
		return centres[i] < centres[j]
	})

	return centres, counts
}

// LagPage builds the lag study page: lags per centre, scan counts per
// centre and the median lag of every centre and machine pair. Lags at or
// beyond slicetiming.MaxLag are left out of the scatter.
func LagPage(rows []qcio.LagRow) *components.Page {
	centres, counts := centreCounts(rows)
	index := make(map[string]int, len(centres))
	for i, c := range centres {
		index[c] = i
	}

	points := make([]opts.ScatterData, 0, len(rows))
	for _, row := range rows {
		if math.IsNaN(row.Lag) || math.Abs(row.Lag) >= slicetiming.MaxLag {
			continue
		}
		points = append(points, opts.ScatterData{
			Name:  fmt.Sprintf("sub-%s ses-%s", row.Subject, row.Session),
			Value: []interface{}{index[row.Centre], row.Lag},
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Slice Timing Study", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Odd-Even Slices Lag", Subtitle: fmt.Sprintf("scans=%d", len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "centre", Type: "category", Data: centres}),
		charts.WithYAxisOpts(opts.YAxis{Name: "lag (TR)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("lag", points, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	countData := make([]opts.BarData, len(centres))
	for i, c := range centres {
		countData[i] = opts.BarData{Value: counts[c]}
	}
	countBar := charts.NewBar()
	countBar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Number of Scans"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	countBar.SetXAxis(centres).
		AddSeries("scans", countData,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	groups := slicetiming.Groups(rows)
	keys := make([]string, len(groups))
	medians := make([]opts.BarData, len(groups))
	for i, g := range groups {
		keys[i] = g.Key
		medians[i] = opts.BarData{Value: g.Median}
	}
	medianBar := charts.NewBar()
	medianBar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Median lag per centre / machine"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	medianBar.SetXAxis(keys).AddSeries("median lag", medians)

	page := components.NewPage()
	page.PageTitle = "Slice Timing Study"
	page.AddCharts(scatter, countBar, medianBar)

	return page
}

// WriteLagChart renders LagPage to an HTML file at path.
func WriteLagChart(path string, rows []qcio.LagRow) error {
	var buf bytes.Buffer
	if err := LagPage(rows).Render(&buf); err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}

	return qcio.WriteAtomic(path, func(tmp string) error {
		return os.WriteFile(tmp, buf.Bytes(), 0644)
	})
}
