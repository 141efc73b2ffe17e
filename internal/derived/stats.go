// Package derived computes the per-frame signals the HUD plots on top of the
// raw telemetry: lateral line delta, the under/oversteer heading error, the
// confirmed speed extremes, pedal/ABS tracks and auto-scaling ranges.
package derived

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// absQuantile returns the p-quantile of |v| over all finite values of all
// slices, or 0 when there are none.
func absQuantile(p float64, sets ...[]float64) float64 {
	var all []float64
	for _, set := range sets {
		for _, v := range set {
			if finite(v) {
				all = append(all, math.Abs(v))
			}
		}
	}
	if len(all) == 0 {
		return 0
	}
	sort.Float64s(all)
	return stat.Quantile(p, stat.LinInterp, all, nil)
}

// median returns the median of the finite values of v, or 0.
func median(v []float64) float64 {
	s := make([]float64, 0, len(v))
	for _, x := range v {
		if finite(x) {
			s = append(s, x)
		}
	}
	if len(s) == 0 {
		return 0
	}
	sort.Float64s(s)
	return stat.Quantile(0.5, stat.LinInterp, s, nil)
}

// maxAbs returns the largest |v|, or 0 for an empty slice.
func maxAbs(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	m := floats.Norm(v, math.Inf(1))
	if !finite(m) {
		return 0
	}
	return m
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// wrapPi maps an angle onto [-pi, pi].
func wrapPi(a float64) float64 {
	return math.Atan2(math.Sin(a), math.Cos(a))
}
