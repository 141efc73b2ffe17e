// Package hud renders the telemetry overlay column of a comparison video.
//
// A Compositor owns one state per widget. Scrolling widgets keep a cached
// static layer (background, grid, labels) and a dynamic layer holding the
// plotted curves, which is shifted left frame by frame and only has its newly
// exposed right-hand columns rendered. Table widgets only have a static
// layer. Current values are drawn straight onto the composited canvas.
package hud

import (
	"math"

	"github.com/banshee-data/lapsync/internal/resample"
	"github.com/banshee-data/lapsync/internal/syncmap"
)

// Stream holds the per-frame signals of one lap on its own frame grid. Any
// series may be empty when the telemetry lacks the column.
type Stream struct {
	// Speed, MinSpeed and MaxSpeed are in display units. MinSpeed and
	// MaxSpeed hold the most recent confirmed extreme.
	Speed    resample.Series
	MinSpeed resample.Series
	MaxSpeed resample.Series

	Gear resample.Series
	RPM  resample.Series

	// Throttle and Brake are fractions of full travel, ABS is raw 0/1.
	Throttle resample.Series
	Brake    resample.Series
	ABS      resample.Series

	// Steering wheel angle in degrees.
	Steering resample.Series
	// LapDist is the lap distance fraction.
	LapDist resample.Series

	// UnderOversteer is the heading error in radians.
	UnderOversteer resample.Series
}

// Signals are the read-only inputs of one export. Slow series live on the
// reference grid, Fast series on the comparison grid. TimeDelta and
// LineDelta are per reference frame.
type Signals struct {
	Slow Stream
	Fast Stream

	TimeDelta      resample.Series
	TimeDeltaScale float64

	LineDelta      resample.Series
	LineDeltaScale float64

	UnderOversteerScale float64
	SteeringScale       float64
}

// Settings are the render options that do not change geometry.
type Settings struct {
	SpeedUnit string
	// SpeedHold and GearRPMHold are refresh strides in frames.
	SpeedHold   int
	GearRPMHold int

	ABSDebounceFrames   int
	PedalHeadroom       float64
	MaxBrakeDelay       float64
	MaxBrakeOverridePct float64
}

// Context is the immutable engine context shared by every widget of one
// Compositor. Widgets never mutate it.
type Context struct {
	FPS      float64
	Corr     *syncmap.Correspondence
	Signals  Signals
	Settings Settings
}

// Frames returns the number of reference frames.
func (c *Context) Frames() int {
	if c.Corr == nil {
		return 0
	}
	return c.Corr.Len()
}

// inRange reports whether fractional reference frame g has data.
func (c *Context) inRange(g float64) bool {
	return g >= 0 && g <= float64(c.Frames()-1)
}

// comparisonFrame maps fractional reference frame g to a fractional frame
// position on the comparison grid.
func (c *Context) comparisonFrame(g float64) float64 {
	times := c.Corr.Times
	n := len(times)
	if n == 0 {
		return 0
	}
	var t float64
	switch {
	case g <= 0 || n == 1:
		t = times[0]
	case g >= float64(n-1):
		t = times[n-1]
	default:
		k := int(g)
		a := g - float64(k)
		t = times[k] + (times[k+1]-times[k])*a
	}
	return t * c.FPS
}

// slowAt samples a reference grid series at fractional frame g.
func (c *Context) slowAt(s resample.Series, g float64) (float64, bool) {
	if s.Empty() || !c.inRange(g) {
		return 0, false
	}
	v := s.Sample(g)
	return v, finite(v)
}

// fastAt samples a comparison grid series at the comparison position of
// fractional reference frame g.
func (c *Context) fastAt(s resample.Series, g float64) (float64, bool) {
	if s.Empty() || !c.inRange(g) {
		return 0, false
	}
	v := s.Sample(c.comparisonFrame(g))
	return v, finite(v)
}

// fastFrame is the comparison frame shown in readouts of reference frame i.
func (c *Context) fastFrame(i int) int {
	if c.Frames() == 0 {
		return 0
	}
	i = max(0, min(i, c.Frames()-1))
	return c.Corr.Frames[i]
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
