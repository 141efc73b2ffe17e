package hud

import (
	"fmt"
	"image/color"
	"math"

	"github.com/banshee-data/lapsync/internal/derived"
	"github.com/banshee-data/lapsync/internal/resample"
)

func slowTrack(col color.RGBA, width int, pick func(*Stream) resample.Series) track {
	return track{col: col, width: width, sample: func(ctx *Context, g float64) (float64, bool) {
		return ctx.slowAt(pick(&ctx.Signals.Slow), g)
	}}
}

func fastTrack(col color.RGBA, width int, pick func(*Stream) resample.Series) track {
	return track{col: col, width: width, sample: func(ctx *Context, g float64) (float64, bool) {
		return ctx.fastAt(pick(&ctx.Signals.Fast), g)
	}}
}

// boolAt looks up a per-frame flag, false outside the track.
func boolAt(v []bool, f float64) bool {
	k := int(math.Round(f))
	return k >= 0 && k < len(v) && v[k]
}

func fmtValue(format string, v float64) string {
	if !finite(v) {
		return "--"
	}
	return fmt.Sprintf(format, v)
}

// pedalsWidget plots throttle and brake of both laps with an ABS strip and
// reads out the committed peak of the last braking phase.
type pedalsWidget struct {
	slowABS, fastABS []bool
	slowMax, fastMax []float64
	trk              []track
}

func (w *pedalsWidget) title() string { return "Throttle / Brake" }

func (w *pedalsWidget) prepare(ctx *Context) {
	s := ctx.Settings
	sl, fa := &ctx.Signals.Slow, &ctx.Signals.Fast
	w.slowABS = derived.DebounceTrack(sl.ABS.Values, s.ABSDebounceFrames)
	w.fastABS = derived.DebounceTrack(fa.ABS.Values, s.ABSDebounceFrames)
	w.slowMax = derived.MaxBrakeTrack(sl.Brake.Values, sl.LapDist.Values, sl.Throttle.Values,
		sl.Steering.Values, ctx.FPS, s.MaxBrakeDelay, s.MaxBrakeOverridePct)
	w.fastMax = derived.MaxBrakeTrack(fa.Brake.Values, fa.LapDist.Values, fa.Throttle.Values,
		fa.Steering.Values, ctx.FPS, s.MaxBrakeDelay, s.MaxBrakeOverridePct)

	w.trk = []track{
		slowTrack(colSlowDark, 2, func(s *Stream) resample.Series { return s.Brake }),
		slowTrack(colSlowBright, 2, func(s *Stream) resample.Series { return s.Throttle }),
		fastTrack(colFastDark, 2, func(s *Stream) resample.Series { return s.Brake }),
		fastTrack(colFastBright, 2, func(s *Stream) resample.Series { return s.Throttle }),
		{
			col: colSlowDark, style: styleBand, bandTop: 0, bandBottom: 0.04,
			sample: func(ctx *Context, g float64) (float64, bool) {
				if len(w.slowABS) == 0 || !ctx.inRange(g) {
					return 0, false
				}
				return b2f(boolAt(w.slowABS, g)), true
			},
		},
		{
			col: colFastDark, style: styleBand, bandTop: 0.05, bandBottom: 0.09,
			sample: func(ctx *Context, g float64) (float64, bool) {
				if len(w.fastABS) == 0 || !ctx.inRange(g) {
					return 0, false
				}
				return b2f(boolAt(w.fastABS, ctx.comparisonFrame(g))), true
			},
		},
	}
}

func (w *pedalsWidget) axis(ctx *Context) (axisSpec, bool) {
	hi := ctx.Settings.PedalHeadroom
	if !(hi >= 1) {
		hi = 1
	}
	return axisSpec{lo: 0, hi: hi, ticks: []float64{0, 0.25, 0.5, 0.75, 1}}, true
}

func (w *pedalsWidget) tracks() []track { return w.trk }

func (w *pedalsWidget) values(ctx *Context, i int) []valueLine {
	line := func(st *Stream, abs []bool, peak []float64, k int, col color.RGBA) valueLine {
		txt := "T" + fmtValue("%4.0f%%", st.Throttle.At(k)*100) +
			" B" + fmtValue("%4.0f%%", st.Brake.At(k)*100)
		if k >= 0 && k < len(peak) {
			txt += " max" + fmtValue("%4.0f%%", peak[k])
		}
		if k >= 0 && k < len(abs) && abs[k] {
			txt += " ABS"
		}
		return valueLine{text: txt, col: col}
	}
	j := ctx.fastFrame(i)
	return []valueLine{
		line(&ctx.Signals.Slow, w.slowABS, w.slowMax, i, colSlowBright),
		line(&ctx.Signals.Fast, w.fastABS, w.fastMax, j, colFastBright),
	}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// steeringWidget plots the steering wheel angle of both laps.
type steeringWidget struct {
	trk []track
}

func (w *steeringWidget) title() string { return "Steering" }

func (w *steeringWidget) prepare(*Context) {
	w.trk = []track{
		slowTrack(colSlowBright, 2, func(s *Stream) resample.Series { return s.Steering }),
		fastTrack(colFastBright, 2, func(s *Stream) resample.Series { return s.Steering }),
	}
}

func (w *steeringWidget) axis(ctx *Context) (axisSpec, bool) {
	return symmetricAxis(ctx.Signals.SteeringScale), true
}

func (w *steeringWidget) tracks() []track { return w.trk }

func (w *steeringWidget) values(ctx *Context, i int) []valueLine {
	return []valueLine{
		{text: fmtValue("%+5.0f°", ctx.Signals.Slow.Steering.At(i)), col: colSlowBright},
		{text: fmtValue("%+5.0f°", ctx.Signals.Fast.Steering.At(ctx.fastFrame(i))), col: colFastBright},
	}
}

// deltaWidget plots how far the reference lap trails the comparison lap in
// seconds.
type deltaWidget struct {
	trk []track
}

func (w *deltaWidget) title() string { return "Delta" }

func (w *deltaWidget) prepare(*Context) {
	w.trk = []track{{col: colWhite, width: 2, sample: func(ctx *Context, g float64) (float64, bool) {
		return ctx.slowAt(ctx.Signals.TimeDelta, g)
	}}}
}

func (w *deltaWidget) axis(ctx *Context) (axisSpec, bool) {
	return symmetricAxis(ctx.Signals.TimeDeltaScale), true
}

func (w *deltaWidget) tracks() []track { return w.trk }

func (w *deltaWidget) values(ctx *Context, i int) []valueLine {
	v := ctx.Signals.TimeDelta.At(i)
	col := colFastBright
	if v > 0 {
		col = colSlowBright
	}
	return []valueLine{{text: fmtValue("%+.3f s", v), col: col}}
}

// lineDeltaWidget plots the lateral offset of the comparison car from the
// reference car's path.
type lineDeltaWidget struct {
	trk []track
}

func (w *lineDeltaWidget) title() string { return "Line Delta" }

func (w *lineDeltaWidget) prepare(*Context) {
	w.trk = []track{{col: colFastBright, width: 2, sample: func(ctx *Context, g float64) (float64, bool) {
		return ctx.slowAt(ctx.Signals.LineDelta, g)
	}}}
}

func (w *lineDeltaWidget) axis(ctx *Context) (axisSpec, bool) {
	a := symmetricAxis(ctx.Signals.LineDeltaScale)
	a.topLabel, a.bottomLabel = "L", "R"
	return a, true
}

func (w *lineDeltaWidget) tracks() []track { return w.trk }

func (w *lineDeltaWidget) values(ctx *Context, i int) []valueLine {
	return []valueLine{{text: formatLineDelta(ctx.Signals.LineDelta.At(i)), col: colFastBright}}
}

// formatLineDelta renders an offset as "L 1.23 m" or "R 0.40 m". Offsets
// that round to zero print without a side.
func formatLineDelta(v float64) string {
	switch {
	case !finite(v):
		return "--"
	case math.Abs(v) < 0.005:
		return "0.00 m"
	case v > 0:
		return fmt.Sprintf("L %.2f m", v)
	default:
		return fmt.Sprintf("R %.2f m", -v)
	}
}

// understeerWidget plots the bias-corrected heading error of both laps.
type understeerWidget struct {
	trk []track
}

func (w *understeerWidget) title() string { return "Under-/Oversteer" }

func (w *understeerWidget) prepare(*Context) {
	w.trk = []track{
		slowTrack(colSlowBright, 2, func(s *Stream) resample.Series { return s.UnderOversteer }),
		fastTrack(colFastBright, 2, func(s *Stream) resample.Series { return s.UnderOversteer }),
	}
}

func (w *understeerWidget) axis(ctx *Context) (axisSpec, bool) {
	a := symmetricAxis(ctx.Signals.UnderOversteerScale)
	a.topLabel, a.bottomLabel = "Oversteer", "Understeer"
	return a, true
}

func (w *understeerWidget) tracks() []track { return w.trk }

func (w *understeerWidget) values(ctx *Context, i int) []valueLine {
	deg := func(v float64) float64 { return v * 180 / math.Pi }
	return []valueLine{
		{text: fmtValue("%+5.1f°", deg(ctx.Signals.Slow.UnderOversteer.At(i))), col: colSlowBright},
		{text: fmtValue("%+5.1f°", deg(ctx.Signals.Fast.UnderOversteer.At(ctx.fastFrame(i)))), col: colFastBright},
	}
}
