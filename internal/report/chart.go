// Package report renders benchmark results as HTML charts.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/smac-tools/stagebench/internal/db"
	"github.com/smac-tools/stagebench/internal/security"
)

// ChartFilename derives a safe default output filename from a stage name.
func ChartFilename(stage string) string {
	return security.SanitizeFilename(stage) + "-runs.html"
}

// RenderRunsChart writes an HTML line chart of average travel speed against
// commanded velocity, with one series per acceleration setting. Aborted runs
// are excluded.
func RenderRunsChart(w io.Writer, runs []db.BenchRun) error {
	completed := make([]db.BenchRun, 0, len(runs))
	for _, run := range runs {
		if !run.Aborted {
			completed = append(completed, run)
		}
	}
	if len(completed) == 0 {
		return fmt.Errorf("no completed runs to chart")
	}

	// collect the velocity axis and the per-acceleration series
	velocitySet := map[float64]bool{}
	accelSet := map[float64]bool{}
	for _, run := range completed {
		velocitySet[run.VelocityMMS] = true
		accelSet[run.AccelerationMMSS] = true
	}
	velocities := sortedKeys(velocitySet)
	accelerations := sortedKeys(accelSet)

	// index runs by (velocity, acceleration); later runs win
	type cell struct{ v, a float64 }
	byCell := map[cell]db.BenchRun{}
	for _, run := range completed {
		byCell[cell{run.VelocityMMS, run.AccelerationMMSS}] = run
	}

	x := make([]string, len(velocities))
	for i, v := range velocities {
		x[i] = fmt.Sprintf("%g", v)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Stage travel speed",
			Subtitle: fmt.Sprintf("runs=%d stage=%s", len(completed), completed[0].Stage),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "commanded velocity (mm/s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "avg speed (mm/s)", NameLocation: "middle", NameGap: 40}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	line.SetXAxis(x)
	for _, a := range accelerations {
		data := make([]opts.LineData, len(velocities))
		for i, v := range velocities {
			if run, ok := byCell[cell{v, a}]; ok {
				data[i] = opts.LineData{Value: run.AvgSpeedMMS}
			} else {
				data[i] = opts.LineData{Value: nil}
			}
		}
		line.AddSeries(fmt.Sprintf("a=%g mm/s/s", a), data)
	}

	return line.Render(w)
}

func sortedKeys(set map[float64]bool) []float64 {
	out := make([]float64, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Float64s(out)
	return out
}
