package derived

import (
	"math"

	"github.com/banshee-data/lapsync/internal/resample"
)

const (
	// headingMinDisplacement is the displacement in metres below which the
	// heading from motion is held at its last value.
	headingMinDisplacement = 0.05
	// glitchStep rejects single-step heading error jumps larger than this.
	glitchStep = 1.2
	// steerScaleFloor replaces a degenerate 99th percentile.
	steerScaleFloor = 0.05
	// steerScaleHeadroom widens the percentile range.
	steerScaleHeadroom = 1.15
)

// Motion is the per-frame position and yaw of one stream.
type Motion struct {
	Positions
	// Yaw in radians, interpolated as an angle.
	Yaw resample.Series
}

func (m Motion) ok() bool { return m.Positions.ok() && !m.Yaw.Empty() }

// UnderOversteer returns the bias-corrected heading error (yaw minus the
// direction of motion) of both streams on their own frame grids, and the
// shared symmetric plot range. curveCenterPct shifts both curves by that
// percentage of the full range, clamped to [-50, 50].
//
// If either stream lacks GPS or yaw both series are empty and the range is 1.
func UnderOversteer(slow, fast Motion, fps, curveCenterPct float64) (resample.Series, resample.Series, float64) {
	const slowName, fastName = "understeer_slow", "understeer_fast"
	if !slow.ok() || !fast.ok() {
		return resample.Series{Name: slowName}, resample.Series{Name: fastName}, 1
	}
	es, ok1 := headingError(slow, fps)
	ef, ok2 := headingError(fast, fps)
	if !ok1 || !ok2 {
		return resample.Series{Name: slowName}, resample.Series{Name: fastName}, 1
	}

	base := absQuantile(0.99, es, ef)
	if base < 1e-6 {
		base = steerScaleFloor
	}

	pct := clamp(curveCenterPct, -50, 50)
	if !finite(pct) {
		pct = 0
	}
	if off := pct / 100 * (2 * base); off != 0 {
		for i := range es {
			es[i] += off
		}
		for i := range ef {
			ef[i] += off
		}
	}

	yAbs := math.Max(base*steerScaleHeadroom, math.Min(maxAbs(es), maxAbs(ef)))
	for i := range es {
		es[i] = clamp(es[i], -yAbs, yAbs)
	}
	for i := range ef {
		ef[i] = clamp(ef[i], -yAbs, yAbs)
	}
	return resample.Series{Name: slowName, Values: es}, resample.Series{Name: fastName, Values: ef}, yAbs
}

// headingError computes the unwrapped, median-corrected yaw minus heading
// from motion of one stream.
func headingError(m Motion, fps float64) ([]float64, bool) {
	lat0, lon0, ok := m.origin()
	if !ok {
		return nil, false
	}
	pr := newProjection(lat0, lon0)
	n := m.Lat.Len()
	if m.Yaw.Len() < n {
		n = m.Yaw.Len()
	}
	if n == 0 {
		return nil, false
	}

	d := math.Max(1, math.Round(tangentWindow*fps))
	last := float64(n - 1)
	hdg := make([]float64, n)
	seeded := false
	prev := 0.0
	for i := 0; i < n; i++ {
		fi := float64(i)
		x0, y0 := m.at(pr, math.Max(0, fi-d))
		x1, y1 := m.at(pr, math.Min(last, fi+d))
		dx, dy := x1-x0, y1-y0
		if nrm := math.Hypot(dx, dy); finite(nrm) && nrm >= headingMinDisplacement {
			prev = math.Atan2(dy, dx)
			if !seeded {
				// Leading frames take the first valid heading.
				for j := 0; j < i; j++ {
					hdg[j] = prev
				}
				seeded = true
			}
		}
		hdg[i] = prev
	}
	if !seeded {
		return nil, false
	}

	out := make([]float64, n)
	var raw0 float64
	for i := 0; i < n; i++ {
		raw := wrapPi(m.Yaw.Values[i] - hdg[i])
		if !finite(raw) {
			raw = raw0
		}
		if i == 0 {
			out[0] = raw
		} else {
			step := wrapPi(raw - raw0)
			if math.Abs(step) > glitchStep {
				step = 0
			}
			out[i] = out[i-1] + step
		}
		raw0 = raw
	}

	med := median(out)
	for i := range out {
		out[i] -= med
	}
	return out, true
}
