package derived

import (
	"math"

	"github.com/banshee-data/lapsync/internal/resample"
)

// tangentWindow is the half width of the finite difference used for path
// tangents and headings, in seconds.
const tangentWindow = 0.150

// LineDelta returns, for every reference frame, the signed perpendicular
// offset in metres of the comparison car from the reference car's path.
// Positive values are to the left of the direction of travel. cmpTimes holds
// the comparison time of each reference frame. The second result is the plot
// range, twice the largest observed |offset|.
//
// Without GPS on either stream the series is empty and the range is 1.
func LineDelta(ref, cmp Positions, cmpTimes []float64, fps float64) (resample.Series, float64) {
	const name = "line_delta"
	if !ref.ok() || !cmp.ok() || len(cmpTimes) == 0 {
		return resample.Series{Name: name}, 1
	}
	lat0, lon0, ok := ref.origin()
	if !ok {
		return resample.Series{Name: name}, 1
	}
	pr := newProjection(lat0, lon0)

	n := len(cmpTimes)
	last := float64(ref.Lat.Len() - 1)
	d := tangentWindow * fps
	out := make([]float64, n)
	nx, ny := 0.0, 1.0
	for i := 0; i < n; i++ {
		fi := float64(i)
		f0, f1 := math.Max(0, fi-d), math.Min(last, fi+d)
		if f1 <= f0 {
			f0, f1 = math.Max(0, fi-2*d), math.Min(last, fi+2*d)
		}
		x0, y0 := ref.at(pr, f0)
		x1, y1 := ref.at(pr, f1)
		tx, ty := x1-x0, y1-y0
		if nrm := math.Hypot(tx, ty); nrm > 1e-6 {
			nx, ny = -ty/nrm, tx/nrm
		}

		sx, sy := ref.at(pr, fi)
		cx, cy := cmp.at(pr, cmpTimes[i]*fps)
		v := (cx-sx)*nx + (cy-sy)*ny
		if !finite(v) {
			v = 0
		}
		out[i] = v
	}

	scale := 2 * maxAbs(out)
	if scale <= 0 {
		scale = 1
	}
	return resample.Series{Name: name, Values: out}, scale
}
