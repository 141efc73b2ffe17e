package hud

import (
	"image/color"

	"github.com/banshee-data/lapsync/internal/config"
)

// widget is one entry of the fixed HUD set. Implementations hold only
// layout constants and per-export auxiliary tracks; sampling reads the
// engine context passed in.
type widget interface {
	title() string
	// prepare rebuilds auxiliary state derived from the whole export.
	prepare(ctx *Context)
	// axis describes the value axis of a scrolling widget. Tables return
	// false.
	axis(ctx *Context) (axisSpec, bool)
	tracks() []track
	// values returns the current value lines for reference frame i.
	values(ctx *Context, i int) []valueLine
}

// axisSpec is the value range and decoration of a scrolling plot.
type axisSpec struct {
	lo, hi float64
	ticks  []float64
	zero   bool
	// Optional labels drawn at the top and bottom of the plot.
	topLabel    string
	bottomLabel string
}

func symmetricAxis(lim float64) axisSpec {
	if !(lim > 0) || !finite(lim) {
		lim = 1
	}
	return axisSpec{lo: -lim, hi: lim, ticks: symmetricTicks(lim), zero: true}
}

type trackStyle int

const (
	// styleLine joins consecutive samples with vertical runs.
	styleLine trackStyle = iota
	// styleBand fills a fixed strip of rows wherever the value is on.
	styleBand
)

// track is one plotted signal of a scrolling widget.
type track struct {
	col   color.RGBA
	width int
	style trackStyle
	// band rows as fractions of the plot height, measured from the top.
	bandTop, bandBottom float64
	// sample returns the value at fractional reference frame g.
	sample func(ctx *Context, g float64) (float64, bool)
}

// valueLine is one line of the current value overlay.
type valueLine struct {
	text string
	col  color.Color
}

// newWidget builds the widget registered under name, or nil.
func newWidget(name string) widget {
	switch name {
	case config.WidgetThrottleBrake:
		return &pedalsWidget{}
	case config.WidgetSteering:
		return &steeringWidget{}
	case config.WidgetDelta:
		return &deltaWidget{}
	case config.WidgetLineDelta:
		return &lineDeltaWidget{}
	case config.WidgetUnderOversteer:
		return &understeerWidget{}
	case config.WidgetSpeed:
		return &speedTable{}
	case config.WidgetGearRPM:
		return &gearTable{}
	}
	return nil
}

// headed is implemented by tables that draw a fixed column header.
type headed interface {
	header(ctx *Context) string
}
