// report renders a training run, or a sweep of runs, as a single html page of charts: the
// convergence of episode returns, the learned values over the track, and the greedy path.
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	. "racetrack/models"
	"racetrack/reinforcement"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// MOVING_AVERAGE_WINDOW is the number of episodes averaged per point of a convergence curve.
const MOVING_AVERAGE_WINDOW = 100

// RunReport is everything needed to chart a single run.
type RunReport struct {
	Title string
	Grid  [][]CellKind
	// Values is the value table projected into position space, indexed [row][col].
	Values   [][]float64
	Sentinel float64
	Returns  []float64
	// Floor replaces sentinel returns in the convergence chart, which would otherwise
	// flatten every finished episode against the axis.
	Floor float64
	Path  Trajectory
}

// NewRunReport collects a trained controller's reporting surfaces.
func NewRunReport(title string, c *reinforcement.Controller, path Trajectory) RunReport {
	track := c.Track()
	cfg := c.Config()
	return RunReport{
		Title:    title,
		Grid:     track.Grid(),
		Values:   c.Table().Project(track.Rows(), track.Cols(), reinforcement.PROJECT_MAX),
		Sentinel: cfg.Training.Sentinel,
		Returns:  c.Returns(),
		Floor:    cfg.Floor(),
		Path:     path,
	}
}

// MovingAverage returns the mean of each full window over @vals, so the result has
// len(vals)-window+1 points, or none if there are fewer values than the window.
func MovingAverage(vals []float64, window int) []float64 {
	if window < 1 || len(vals) < window {
		return nil
	}
	avgs := make([]float64, 0, len(vals)-window+1)
	sum := 0.0
	for i, v := range vals {
		sum += v
		if i >= window {
			sum -= vals[i-window]
		}
		if i >= window-1 {
			avgs = append(avgs, sum/float64(window))
		}
	}
	return avgs
}

// clamp replaces sentinel returns by the floor.
func clamp(returns []float64, sentinel, floor float64) []float64 {
	clamped := make([]float64, len(returns))
	for i, g := range returns {
		clamped[i] = g
		if g <= sentinel {
			clamped[i] = floor
		}
	}
	return clamped
}

// window shrinks the moving average window for short runs, so that they still chart.
func window(n int) int {
	return max(min(MOVING_AVERAGE_WINDOW, n), 1)
}

// convergenceChart plots the moving average of each named return series.
func convergenceChart(title string, names []string, series [][]float64) *charts.Line {
	longest := 0
	for _, s := range series {
		longest = max(longest, len(s))
	}
	win := window(longest)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("Episode returns, moving average over %d episodes", win),
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme: "shine",
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "episode"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "return"}),
	)

	var episodes []string
	for i := win; i <= longest; i++ {
		episodes = append(episodes, fmt.Sprintf("%d", i))
	}
	line = line.SetXAxis(episodes)

	for i, s := range series {
		items := make([]opts.LineData, 0, len(s))
		for _, avg := range MovingAverage(s, win) {
			items = append(items, opts.LineData{Value: avg})
		}
		line.AddSeries(names[i], items)
	}
	return line
}

// valuesChart is a heatmap of the projected values over the road. The rows are labeled
// top-down to match the grid's orientation.
func valuesChart(rep RunReport) *charts.HeatMap {
	rows := len(rep.Values)
	cols := 0
	if rows > 0 {
		cols = len(rep.Values[0])
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	var items []opts.HeatMapData
	for y, row := range rep.Values {
		for x, v := range row {
			if v <= rep.Sentinel {
				continue
			}
			lo, hi = math.Min(lo, v), math.Max(hi, v)
			// echarts puts the first y category at the bottom.
			items = append(items, opts.HeatMapData{Value: [3]interface{}{x, rows - 1 - y, v}})
		}
	}
	if len(items) == 0 {
		lo, hi = rep.Sentinel, 0
	}

	xs := make([]string, cols)
	for x := range xs {
		xs[x] = fmt.Sprintf("%d", x)
	}
	ys := make([]string, rows)
	for y := range ys {
		ys[y] = fmt.Sprintf("%d", rows-1-y)
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "State values",
			Subtitle: "Max over velocities; unvisited cells are blank",
		}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: xs}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ys}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Min: float32(lo),
			Max: float32(hi),
			InRange: &opts.VisualMapInRange{
				Color: []string{"#313695", "#74add1", "#ffffbf", "#f46d43", "#a50026"},
			},
		}),
	)
	hm.SetXAxis(xs).AddSeries("values", items)
	return hm
}

// pathChart scatters the road cells and overlays the replayed greedy path.
func pathChart(rep RunReport) *charts.Scatter {
	rows := len(rep.Grid)

	road := map[CellKind][]opts.ScatterData{}
	for y, row := range rep.Grid {
		for x, cell := range row {
			if cell.IsRoad() {
				road[cell] = append(road[cell], opts.ScatterData{Value: []int{x, rows - 1 - y}})
			}
		}
	}

	var path []opts.ScatterData
	for _, step := range rep.Path {
		path = append(path, opts.ScatterData{
			Value:      []int{step.Position.X, rows - 1 - step.Position.Y},
			SymbolSize: 14,
		})
	}

	sc := charts.NewScatter()
	sc.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Greedy path",
			Subtitle: fmt.Sprintf("%d steps", max(len(rep.Path)-1, 0)),
		}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value"}),
	)
	for _, kind := range []CellKind{START, INSIDE, FINISH} {
		sc.AddSeries(kind.String(), road[kind])
	}
	sc.AddSeries("path", path)
	return sc
}

// Render writes the run's report page.
func Render(w io.Writer, rep RunReport) error {
	page := components.NewPage()
	page.PageTitle = rep.Title
	page.AddCharts(
		convergenceChart(rep.Title, []string{"returns"}, [][]float64{clamp(rep.Returns, rep.Sentinel, rep.Floor)}),
		valuesChart(rep),
		pathChart(rep),
	)
	return page.Render(w)
}

// RenderSweep writes a page comparing the convergence of every sweep run.
func RenderSweep(w io.Writer, results []reinforcement.SweepResult) error {
	names := make([]string, len(results))
	series := make([][]float64, len(results))
	for i, res := range results {
		cfg := res.Run.Config
		names[i] = res.Run.Name
		series[i] = clamp(res.Returns, cfg.Training.Sentinel, cfg.Floor())
	}

	page := components.NewPage()
	page.PageTitle = "Sweep"
	page.AddCharts(convergenceChart("Episode returns by execution", names, series))
	return page.Render(w)
}

// Save renders the page produced by @render to @path.
func Save(path string, render func(io.Writer) error) (err error) {
	var f *os.File
	if f, err = os.Create(path); err != nil {
		return
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return render(f)
}

// WriteSweepSummary prints each run's episode count, average return, average return over
// the last hundred episodes, and runtime.
func WriteSweepSummary(w io.Writer, results []reinforcement.SweepResult) {
	for _, res := range results {
		last := "N/A"
		if avg, ok := res.LastAverage(MOVING_AVERAGE_WINDOW); ok {
			last = fmt.Sprintf("%.2f", avg)
		}
		fmt.Fprintf(w, "\nExecution: %s\n", res.Run.Name)
		fmt.Fprintf(w, "    Number of episodes: %d\n", len(res.Returns))
		fmt.Fprintf(w, "    Average return: %.2f\n", res.AverageReturn())
		fmt.Fprintf(w, "    Last %d average return: %s\n", MOVING_AVERAGE_WINDOW, last)
		fmt.Fprintf(w, "    Runtime: %v\n", res.Runtime.Round(time.Millisecond))
	}
}
