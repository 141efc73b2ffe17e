package syncmap

import "sort"

// segmentFor returns the smallest k such that xs[k+1] >= x, clamped to
// [0, len(xs)-2]. xs must be non-decreasing with at least two entries.
func segmentFor(xs []float64, x float64) int {
	last := len(xs) - 2
	k := sort.Search(last, func(j int) bool { return xs[j+1] >= x })
	if k > last {
		k = last
	}
	return k
}

// lerp interpolates between a and b over segment k of xs at x. The blend
// factor is clamped to [0,1], so values outside the axis clamp to its ends.
func lerp(xs []float64, k int, x, a, b float64) float64 {
	den := xs[k+1] - xs[k]
	alpha := 0.0
	if den > 1e-12 {
		alpha = (x - xs[k]) / den
	}
	if alpha < 0 {
		alpha = 0
	} else if alpha > 1 {
		alpha = 1
	}
	return a + (b-a)*alpha
}

// cursor is a forward-only segment finder for non-decreasing queries.
// It returns the same segment as segmentFor.
type cursor struct {
	xs []float64
	k  int
}

func (c *cursor) seek(x float64) int {
	last := len(c.xs) - 2
	for c.k < last && c.xs[c.k+1] < x {
		c.k++
	}
	return c.k
}

// interp evaluates ys(x) over axis xs with segment k.
func interp(xs, ys []float64, k int, x float64) float64 {
	return lerp(xs, k, x, ys[k], ys[k+1])
}
