package hud

import (
	"fmt"
	"math"

	"github.com/banshee-data/lapsync/internal/derived"
	"github.com/banshee-data/lapsync/internal/units"
)

// heldPerOutput samples a stream once per output frame and holds every n-th
// value, so both laps refresh on the same output frames.
func heldPerOutput(ctx *Context, fast bool, pick func(*Stream) []float64, n int) []float64 {
	frames := ctx.Frames()
	vals := make([]float64, frames)
	for i := range vals {
		if fast {
			vals[i] = at(pick(&ctx.Signals.Fast), ctx.fastFrame(i))
		} else {
			vals[i] = at(pick(&ctx.Signals.Slow), i)
		}
	}
	return derived.HoldEvery(vals, n)
}

func at(v []float64, k int) float64 {
	if k < 0 || k >= len(v) {
		return math.NaN()
	}
	return v[k]
}

// speedTable shows current speed at a capped refresh rate with the last
// confirmed minimum and maximum of each lap.
type speedTable struct {
	slow, fast []float64
}

func (w *speedTable) title() string { return "Speed" }

func (w *speedTable) prepare(ctx *Context) {
	n := ctx.Settings.SpeedHold
	speed := func(s *Stream) []float64 { return s.Speed.Values }
	w.slow = heldPerOutput(ctx, false, speed, n)
	w.fast = heldPerOutput(ctx, true, speed, n)
}

func (w *speedTable) axis(*Context) (axisSpec, bool) { return axisSpec{}, false }

func (w *speedTable) tracks() []track { return nil }

func (w *speedTable) header(ctx *Context) string {
	return fmt.Sprintf("%-4s %5s %5s %5s", units.Label(ctx.Settings.SpeedUnit), "now", "min", "max")
}

func (w *speedTable) values(ctx *Context, i int) []valueLine {
	j := ctx.fastFrame(i)
	row := func(tag string, now float64, st *Stream, k int) string {
		return fmt.Sprintf("%-4s %5s %5s %5s", tag,
			fmtValue("%.0f", now), fmtValue("%.0f", st.MinSpeed.At(k)), fmtValue("%.0f", st.MaxSpeed.At(k)))
	}
	return []valueLine{
		{text: row("S", at(w.slow, i), &ctx.Signals.Slow, i), col: colSlowBright},
		{text: row("F", at(w.fast, i), &ctx.Signals.Fast, j), col: colFastBright},
	}
}

// gearTable shows gear and engine speed at a capped refresh rate.
type gearTable struct {
	slowGear, fastGear []float64
	slowRPM, fastRPM   []float64
}

func (w *gearTable) title() string { return "Gear & RPM" }

func (w *gearTable) prepare(ctx *Context) {
	n := ctx.Settings.GearRPMHold
	gear := func(s *Stream) []float64 { return s.Gear.Values }
	rpm := func(s *Stream) []float64 { return s.RPM.Values }
	w.slowGear = heldPerOutput(ctx, false, gear, n)
	w.fastGear = heldPerOutput(ctx, true, gear, n)
	w.slowRPM = heldPerOutput(ctx, false, rpm, n)
	w.fastRPM = heldPerOutput(ctx, true, rpm, n)
}

func (w *gearTable) axis(*Context) (axisSpec, bool) { return axisSpec{}, false }

func (w *gearTable) tracks() []track { return nil }

func (w *gearTable) header(*Context) string {
	return fmt.Sprintf("%-3s %4s %6s", "", "gear", "rpm")
}

func (w *gearTable) values(_ *Context, i int) []valueLine {
	row := func(tag string, gear, rpm float64) string {
		return fmt.Sprintf("%-3s %4s %6s", tag, formatGear(gear), fmtValue("%.0f", rpm))
	}
	return []valueLine{
		{text: row("S", at(w.slowGear, i), at(w.slowRPM, i)), col: colSlowBright},
		{text: row("F", at(w.fastGear, i), at(w.fastRPM, i)), col: colFastBright},
	}
}

func formatGear(g float64) string {
	if !finite(g) {
		return "--"
	}
	switch n := int(math.Round(g)); {
	case n < 0:
		return "R"
	case n == 0:
		return "N"
	default:
		return fmt.Sprintf("%d", n)
	}
}
