// Package syncmap aligns two lap recordings frame by frame using only their
// lap-distance signal.
//
// A Trace turns raw (time, lap-distance-fraction) samples into a strictly
// increasing unwrapped distance over a strictly increasing time axis. A Correlator maps
// each reference frame to a comparison time by matching unwrapped distance,
// and CommonWindow clips the result to the frames where both streams have
// valid footage.
package syncmap

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/lapsync/internal/telemetry"
)

var (
	// ErrInsufficientSamples is returned when fewer than two usable samples remain.
	ErrInsufficientSamples = errors.New("insufficient telemetry samples")
	// ErrMissingDistance is returned when the lap distance column is absent.
	ErrMissingDistance = errors.New("lap distance column missing")
)

const (
	// wrapJump is the backward step in distance fraction treated as a lap crossing.
	wrapJump = 0.5
	// nudge is added to any non-increasing time or distance sample.
	nudge = 1e-9
)

// Trace is the per-stream distance/time index.
type Trace struct {
	// Time is strictly increasing, in seconds.
	Time []float64
	// Dist is the unwrapped lap distance, strictly increasing. Backward
	// jitter smaller than a lap crossing is flattened to the previous value.
	Dist []float64
	// Index maps each kept sample back to its raw telemetry row.
	Index []int
	// Duration is the nominal media duration in seconds.
	Duration float64
}

// Len returns the number of samples in the trace.
func (tr *Trace) Len() int { return len(tr.Time) }

// Unwrap converts lap-distance fractions into a continuous distance. A drop of
// more than half a lap between consecutive samples counts as one crossing of
// the start/finish line. Unwrapping an already unwrapped slice is a no-op.
func Unwrap(frac []float64) []float64 {
	out := make([]float64, len(frac))
	offset := 0.0
	prev := math.NaN()
	for i, x := range frac {
		if !math.IsNaN(prev) && x < prev-wrapJump {
			offset += 1.0
		}
		out[i] = x + offset
		prev = x
	}
	return out
}

// strictlyIncreasing nudges every non-increasing successor just past its
// predecessor, in place.
func strictlyIncreasing(v []float64) {
	for i := 1; i < len(v); i++ {
		if v[i] <= v[i-1] {
			v[i] = v[i-1] + nudge
		}
	}
}

// BuildTrace reads the lap distance (and time, when present) columns of p.
// Without a time column a uniform axis spanning duration is synthesised over
// the raw sample count. Rows with a non-finite distance or time are skipped.
func BuildTrace(p telemetry.Provider, duration float64) (*Trace, error) {
	dist, ok := p.Column(telemetry.ColLapDist)
	if !ok {
		return nil, ErrMissingDistance
	}
	n := p.Len()

	times, hasTime := p.Column(telemetry.ColTime)
	if !hasTime {
		times = make([]float64, n)
		if n > 1 {
			step := duration / float64(n-1)
			for i := range times {
				times[i] = float64(i) * step
			}
		}
	}

	keptT := make([]float64, 0, n)
	keptD := make([]float64, 0, n)
	keptI := make([]int, 0, n)
	for i := 0; i < n; i++ {
		d, t := dist[i], times[i]
		if math.IsNaN(d) || math.IsInf(d, 0) || math.IsNaN(t) || math.IsInf(t, 0) {
			continue
		}
		keptT = append(keptT, t)
		keptD = append(keptD, d)
		keptI = append(keptI, i)
	}
	if len(keptT) < 2 {
		return nil, fmt.Errorf("%w: %d usable of %d", ErrInsufficientSamples, len(keptT), n)
	}

	strictlyIncreasing(keptT)
	unwrapped := Unwrap(keptD)
	strictlyIncreasing(unwrapped)
	if duration <= 0 {
		duration = keptT[len(keptT)-1]
	}

	return &Trace{
		Time:     keptT,
		Dist:     unwrapped,
		Index:    keptI,
		Duration: duration,
	}, nil
}

// SampleAt returns the raw column value interpolated at time t along the
// trace, for a column aligned to the raw telemetry rows.
func (tr *Trace) SampleAt(col []float64, t float64) float64 {
	k := segmentFor(tr.Time, t)
	a, b := col[tr.Index[k]], col[tr.Index[k+1]]
	if math.IsNaN(a) {
		return b
	}
	if math.IsNaN(b) {
		return a
	}
	return lerp(tr.Time, k, t, a, b)
}

// DistAt returns the unwrapped distance at time t, clamped at the ends.
func (tr *Trace) DistAt(t float64) float64 {
	return interp(tr.Time, tr.Dist, segmentFor(tr.Time, t), t)
}
