// Package diagnostics writes the sync report of an export: how far the
// reference lap is behind the comparison lap at every reference frame, and
// how much their speeds differ once matched by distance. A large speed
// difference away from braking zones usually means the lap distance signals
// disagree.
package diagnostics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lapsync/internal/syncmap"
	"github.com/banshee-data/lapsync/internal/telemetry"
	"github.com/banshee-data/lapsync/internal/units"
)

// Report holds the per reference frame sync channels of one export.
type Report struct {
	Title  string
	FPS    float64
	Window syncmap.Window
	Unit   string

	// TimeDelta is i/fps minus the matched comparison time, in seconds.
	TimeDelta []float64
	// SpeedDiff is |speed_slow - speed_fast| in Unit, nil without speed.
	SpeedDiff []float64
}

// NewReport builds the report for a finished correlation. The speed channel
// is resampled from the raw Speed columns through the distance lookup.
func NewReport(title string, c *syncmap.Correlator, cr *syncmap.Correspondence, win syncmap.Window,
	slow, fast telemetry.Provider, unit string) *Report {
	r := &Report{
		Title:     title,
		FPS:       cr.FPS,
		Window:    win,
		Unit:      units.Normalize(unit),
		TimeDelta: make([]float64, cr.Len()),
	}
	if r.Unit == "" {
		r.Unit = units.KMH
	}
	for i, t := range cr.Times {
		r.TimeDelta[i] = float64(i)/cr.FPS - t
	}

	ss, ok1 := slow.Column(telemetry.ColSpeed)
	fs, ok2 := fast.Column(telemetry.ColSpeed)
	if ok1 && ok2 {
		diff := c.SignalDiff(cr, ss, fs)
		for i, d := range diff {
			diff[i] = units.ConvertSpeed(d, r.Unit)
		}
		r.SpeedDiff = diff
	}
	return r
}

// Summary condenses the report to the figures logged after an export.
type Summary struct {
	Frames        int
	FinalDelta    float64
	MaxAbsDelta   float64
	MeanSpeedDiff float64
	MaxSpeedDiff  float64
	HasSpeed      bool
}

// Summary computes the figures over the common window only.
func (r *Report) Summary() Summary {
	s := Summary{}
	lo, hi := r.Window.Start, r.Window.End+1
	if lo < 0 || hi > len(r.TimeDelta) || lo >= hi {
		return s
	}
	delta := r.TimeDelta[lo:hi]
	s.Frames = len(delta)
	s.FinalDelta = delta[len(delta)-1]
	s.MaxAbsDelta = math.Max(math.Abs(floats.Max(delta)), math.Abs(floats.Min(delta)))

	if len(r.SpeedDiff) >= hi {
		diff := r.SpeedDiff[lo:hi]
		s.HasSpeed = true
		s.MeanSpeedDiff = stat.Mean(diff, nil)
		s.MaxSpeedDiff = floats.Max(diff)
	}
	return s
}

func (s Summary) String() string {
	out := fmt.Sprintf("%d frames, final delta %+.3f s, max |delta| %.3f s", s.Frames, s.FinalDelta, s.MaxAbsDelta)
	if s.HasSpeed {
		out += fmt.Sprintf(", speed diff mean %.2f max %.2f", s.MeanSpeedDiff, s.MaxSpeedDiff)
	}
	return out
}

// seconds returns the reference time of frame i.
func (r *Report) seconds(i int) float64 { return float64(i) / r.FPS }
