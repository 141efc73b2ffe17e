package hud

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	vgdraw "gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// gridSpec describes the gridlines of a scrolling widget's plot area in
// data coordinates: x spans frames relative to the playhead, y the value
// range of the widget.
type gridSpec struct {
	xMin, xMax float64
	yMin, yMax float64
	xTicks     []float64
	yTicks     []float64
}

// renderGrid rasterises gridlines into a transparent w x h image using
// gonum/plot. One vg point maps to one pixel.
func renderGrid(w, h int, g gridSpec) (*image.RGBA, error) {
	out := newLayer(w, h)
	if w <= 0 || h <= 0 || g.xMax <= g.xMin || g.yMax <= g.yMin {
		return out, nil
	}

	p := plot.New()
	p.HideAxes()
	p.BackgroundColor = color.Transparent
	p.X.Min, p.X.Max = g.xMin, g.xMax
	p.Y.Min, p.Y.Max = g.yMin, g.yMax
	p.X.Padding = 0
	p.Y.Padding = 0
	p.X.Tick.Marker = constantTicks(g.xTicks)
	p.Y.Tick.Marker = constantTicks(g.yTicks)

	grid := plotter.NewGrid()
	grid.Vertical.Color = colGrid
	grid.Vertical.Width = vg.Points(1)
	grid.Horizontal.Color = colGrid
	grid.Horizontal.Width = vg.Points(1)
	p.Add(grid)

	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(w), vg.Length(h)),
		vgimg.UseDPI(72),
		vgimg.UseBackgroundColor(color.Transparent),
	)
	p.Draw(vgdraw.New(c))

	img := c.Image()
	if img.Bounds().Dx() != w || img.Bounds().Dy() != h {
		return nil, fmt.Errorf("grid raster is %v, want %dx%d", img.Bounds(), w, h)
	}
	draw.Draw(out, out.Rect, img, img.Bounds().Min, draw.Src)
	return out, nil
}

func constantTicks(vals []float64) plot.ConstantTicks {
	ticks := make(plot.ConstantTicks, 0, len(vals))
	for _, v := range vals {
		// Grid only draws labelled (major) ticks.
		ticks = append(ticks, plot.Tick{Value: v, Label: fmt.Sprintf("%g", v)})
	}
	return ticks
}

// symmetricTicks returns gridline positions for a range centred on zero.
func symmetricTicks(lim float64) []float64 {
	return []float64{-lim, -lim / 2, 0, lim / 2, lim}
}

// secondTicks returns one gridline per whole second across a window of
// +/- win frames.
func secondTicks(win int, fps float64) []float64 {
	if fps <= 0 || win <= 0 {
		return nil
	}
	var out []float64
	step := fps
	for x := 0.0; x <= float64(win)+1e-9; x += step {
		out = append(out, x)
		if x > 0 {
			out = append(out, -x)
		}
	}
	return out
}
