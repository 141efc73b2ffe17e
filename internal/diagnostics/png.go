package diagnostics

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/lapsync/internal/units"
)

var (
	deltaColor  = color.RGBA{R: 36, G: 0, B: 250, A: 255}
	speedColor  = color.RGBA{R: 234, G: 0, B: 0, A: 255}
	windowColor = color.RGBA{R: 128, G: 128, B: 128, A: 255}
)

// xys converts a per-frame channel to plot points in seconds, dropping
// non-finite samples.
func (r *Report) xys(v []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(v))
	for i, y := range v {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: r.seconds(i), Y: y})
	}
	return pts
}

// windowMarks returns dashed vertical lines at the common window edges.
func (r *Report) windowMarks(lo, hi float64) ([]*plotter.Line, error) {
	var out []*plotter.Line
	for _, f := range []int{r.Window.Start, r.Window.End} {
		x := r.seconds(f)
		l, err := plotter.NewLine(plotter.XYs{{X: x, Y: lo}, {X: x, Y: hi}})
		if err != nil {
			return nil, err
		}
		l.Color = windowColor
		l.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		out = append(out, l)
	}
	return out, nil
}

func (r *Report) linePlot(title, ylabel string, v []float64, c color.Color) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Reference time (s)"
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	pts := r.xys(v)
	if len(pts) == 0 {
		return p, nil
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to create line: %w", err)
	}
	line.Color = c
	line.Width = vg.Points(1)
	p.Add(line)

	_, _, ymin, ymax := plotter.XYRange(pts)
	if ymax <= ymin {
		ymax = ymin + 1
	}
	marks, err := r.windowMarks(ymin, ymax)
	if err != nil {
		return nil, fmt.Errorf("failed to create window marks: %w", err)
	}
	for _, m := range marks {
		p.Add(m)
	}
	return p, nil
}

// WritePNG renders the time delta plot, with the speed difference plot
// below it when available, as one PNG image.
func (r *Report) WritePNG(w io.Writer) error {
	plots := [][]*plot.Plot{}

	delta, err := r.linePlot(r.Title+" - time delta", "Delta (s)", r.TimeDelta, deltaColor)
	if err != nil {
		return err
	}
	plots = append(plots, []*plot.Plot{delta})

	if r.SpeedDiff != nil {
		speed, err := r.linePlot(r.Title+" - speed difference", "|Speed diff| ("+units.Label(r.Unit)+")", r.SpeedDiff, speedColor)
		if err != nil {
			return err
		}
		plots = append(plots, []*plot.Plot{speed})
	}

	width, rowHeight := 14*vg.Inch, 4*vg.Inch
	img := vgimg.New(width, rowHeight*vg.Length(len(plots)))
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: len(plots), Cols: 1, PadY: vg.Points(8)}
	canvases := plot.Align(plots, tiles, dc)
	for row := range plots {
		plots[row][0].Draw(canvases[row][0])
	}

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}
