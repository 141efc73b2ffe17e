package derived

import "math"

// UpdateEvery returns the frame stride that refreshes a readout at hz on a
// fps grid. hz is clamped to [1, 60] and to fps.
func UpdateEvery(fps, hz float64) int {
	if !(fps > 0) {
		return 1
	}
	hz = clamp(hz, 1, 60)
	if hz > fps {
		hz = fps
	}
	n := int(math.Round(fps / hz))
	if n < 1 {
		n = 1
	}
	return n
}

// HoldEvery keeps every n-th value and repeats it until the next refresh.
func HoldEvery(v []float64, n int) []float64 {
	if len(v) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	out := make([]float64, len(v))
	last := v[0]
	for i, x := range v {
		if i%n == 0 && finite(x) {
			last = x
		}
		out[i] = last
	}
	return out
}

// ConfirmedMin marks strict local minima of v that are preceded and followed,
// within lookahead seconds, by a value at least threshold higher. The result
// shows, at every frame, the most recent confirmed minimum, starting from
// v[0] until the first one.
func ConfirmedMin(v []float64, fps, threshold, lookahead float64) []float64 {
	return confirmedExtreme(v, fps, threshold, lookahead, 1)
}

// ConfirmedMax is ConfirmedMin for peaks: strict local maxima with a drop of
// at least threshold on both sides within the lookahead.
func ConfirmedMax(v []float64, fps, threshold, lookahead float64) []float64 {
	return confirmedExtreme(v, fps, threshold, lookahead, -1)
}

// confirmedExtreme works on sign*v so minima and maxima share one scan.
func confirmedExtreme(v []float64, fps, threshold, lookahead float64, sign float64) []float64 {
	n := len(v)
	if n == 0 {
		return nil
	}
	r := math.Max(1, fps)
	look := int(math.Max(1, math.Round(math.Max(0.5, lookahead)*r)))

	out := make([]float64, n)
	cur := v[0]
	for i := 0; i < n; i++ {
		if i > 0 && i < n-1 {
			x := sign * v[i]
			if x < sign*v[i-1] && x < sign*v[i+1] {
				before := math.Inf(-1)
				for k := max(0, i-look); k < i; k++ {
					before = math.Max(before, sign*v[k])
				}
				after := math.Inf(-1)
				for k := i + 1; k <= min(n-1, i+look); k++ {
					after = math.Max(after, sign*v[k])
				}
				if before >= x+threshold && after >= x+threshold {
					cur = v[i]
				}
			}
		}
		out[i] = cur
	}
	return out
}
