package derived

import (
	"math"

	"github.com/banshee-data/lapsync/internal/resample"
	"github.com/banshee-data/lapsync/internal/syncmap"
)

// maxSteeringDeg caps the steering plot range.
const maxSteeringDeg = 720.0

// SteeringScale returns the steering plot half range in degrees: the larger
// observed |angle| of both streams times headroom, capped at 720 degrees.
// Angles are given in degrees.
func SteeringScale(slow, fast []float64, headroom float64) float64 {
	if !finite(headroom) || headroom < 1 {
		headroom = 1
	}
	m := math.Max(maxAbs(slow), maxAbs(fast)) * headroom
	return clamp(m, 1e-6, maxSteeringDeg)
}

// Degrees converts a radian series to degrees.
func Degrees(s resample.Series) resample.Series {
	if s.Empty() {
		return s
	}
	out := make([]float64, s.Len())
	for i, v := range s.Values {
		out[i] = v * 180 / math.Pi
	}
	return resample.Series{Name: s.Name, Values: out}
}

// TimeDelta returns, per reference frame, how many seconds the reference car
// is behind the comparison car at the same lap distance, and the symmetric
// plot range (at least 0.1 s).
func TimeDelta(cr *syncmap.Correspondence) (resample.Series, float64) {
	out := make([]float64, cr.Len())
	for i, t := range cr.Times {
		out[i] = float64(i)/cr.FPS - t
	}
	scale := math.Max(0.1, maxAbs(out)*1.1)
	return resample.Series{Name: "time_delta", Values: out}, scale
}
