package diagnostics

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/lapsync/internal/units"
)

// maxChartPoints caps the points per HTML series.
const maxChartPoints = 4000

// stride returns the sample step that keeps n samples under maxChartPoints.
func stride(n int) int {
	s := (n + maxChartPoints - 1) / maxChartPoints
	if s < 1 {
		s = 1
	}
	return s
}

func (r *Report) lineChart(title, subtitle, name, yname string, v []float64) *charts.Line {
	step := stride(len(v))
	x := make([]string, 0, len(v)/step+1)
	data := make([]opts.LineData, 0, len(v)/step+1)
	for i := 0; i < len(v); i += step {
		x = append(x, fmt.Sprintf("%.2f", r.seconds(i)))
		y := v[i]
		if math.IsNaN(y) || math.IsInf(y, 0) {
			data = append(data, opts.LineData{Value: "-"})
			continue
		}
		data = append(data, opts.LineData{Value: y})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: r.Title, Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: yname}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	line.SetXAxis(x).AddSeries(name, data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

// WriteHTML renders the report as an interactive page.
func (r *Report) WriteHTML(w io.Writer) error {
	sum := r.Summary()
	subtitle := fmt.Sprintf("window %s at %.3f fps, %s", r.Window, r.FPS, sum)

	page := components.NewPage()
	page.AddCharts(r.lineChart("Time delta", subtitle, "delta", "s", r.TimeDelta))
	if r.SpeedDiff != nil {
		page.AddCharts(r.lineChart("Speed difference", "matched by lap distance", "speed diff", units.Label(r.Unit), r.SpeedDiff))
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render html: %w", err)
	}
	return nil
}
