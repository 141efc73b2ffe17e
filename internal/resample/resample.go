// Package resample puts raw telemetry columns onto a stream's own video
// frame grid.
package resample

import (
	"math"

	"github.com/banshee-data/lapsync/internal/telemetry"
)

// Series is one scalar signal sampled once per frame of its own stream.
// An empty Series means the signal is unavailable.
type Series struct {
	Name   string
	Values []float64
}

// Len returns the number of frames in the series.
func (s Series) Len() int { return len(s.Values) }

// Empty reports whether the signal is unavailable.
func (s Series) Empty() bool { return len(s.Values) == 0 }

// At returns the value at frame i, clamped to the series range. It returns
// NaN for an empty series.
func (s Series) At(i int) float64 {
	if len(s.Values) == 0 {
		return math.NaN()
	}
	if i < 0 {
		i = 0
	}
	if i >= len(s.Values) {
		i = len(s.Values) - 1
	}
	return s.Values[i]
}

// Sample returns the value at fractional frame position f by linear
// interpolation between neighbouring frames, clamped to the series range.
func (s Series) Sample(f float64) float64 {
	n := len(s.Values)
	if n == 0 {
		return math.NaN()
	}
	if f <= 0 || n == 1 {
		return s.Values[0]
	}
	if f >= float64(n-1) {
		return s.Values[n-1]
	}
	k := int(f)
	a := f - float64(k)
	return s.Values[k] + (s.Values[k+1]-s.Values[k])*a
}

// Frames returns floor(duration*fps), the frame count of a stream.
func Frames(duration, fps float64) int {
	n := int(math.Floor(duration * fps))
	if n < 0 {
		n = 0
	}
	return n
}

// Resampler samples columns of one recording at its frame times i/fps.
type Resampler struct {
	p      telemetry.Provider
	fps    float64
	frames int
	rows   []int
	time   []float64
}

// New builds a resampler for p. The time axis is the Time_s column with
// non-increasing steps nudged forward, or a uniform axis over duration when
// the column is absent.
func New(p telemetry.Provider, duration, fps float64) *Resampler {
	r := &Resampler{p: p, fps: fps, frames: Frames(duration, fps)}
	n := p.Len()
	raw, ok := p.Column(telemetry.ColTime)
	for i := 0; i < n; i++ {
		var t float64
		switch {
		case ok:
			t = raw[i]
		case n > 1:
			t = float64(i) * duration / float64(n-1)
		}
		if math.IsNaN(t) || math.IsInf(t, 0) {
			continue
		}
		if k := len(r.time); k > 0 && t <= r.time[k-1] {
			t = r.time[k-1] + 1e-9
		}
		r.rows = append(r.rows, i)
		r.time = append(r.time, t)
	}
	return r
}

// Frames returns the number of frames on this stream's grid.
func (r *Resampler) Frames() int { return r.frames }

// FPS returns the frame rate of the grid.
func (r *Resampler) FPS() float64 { return r.fps }

// column returns the named column restricted to rows with a usable time,
// with non-finite values replaced by the previous finite one. Leading gaps
// take the first finite value. ok is false when the column is absent or has
// no finite value at all.
func (r *Resampler) column(name string) ([]float64, bool) {
	raw, ok := r.p.Column(name)
	if !ok || len(r.rows) == 0 {
		return nil, false
	}
	out := make([]float64, len(r.rows))
	first := -1
	for k, row := range r.rows {
		v := raw[row]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			if first < 0 {
				continue
			}
			v = out[k-1]
		} else if first < 0 {
			first = k
			for j := 0; j < k; j++ {
				out[j] = v
			}
		}
		out[k] = v
	}
	if first < 0 {
		return nil, false
	}
	return out, true
}

// Linear samples the named column by linear interpolation in time. Frames
// before the first or after the last sample take the end values. A missing
// column yields an empty Series.
func (r *Resampler) Linear(name string) Series {
	vals, ok := r.column(name)
	if !ok {
		return Series{Name: name}
	}
	return Series{Name: name, Values: r.interpolate(vals)}
}

// Nearest samples the named column at the sample closest in time to each
// frame and rounds it to an integer value. Used for gear-like columns.
func (r *Resampler) Nearest(name string) Series {
	vals, ok := r.column(name)
	if !ok {
		return Series{Name: name}
	}
	out := make([]float64, r.frames)
	k := 0
	last := len(r.time) - 1
	for i := range out {
		t := float64(i) / r.fps
		for k < last && math.Abs(r.time[k+1]-t) <= math.Abs(r.time[k]-t) {
			k++
		}
		out[i] = math.Round(vals[k])
	}
	return Series{Name: name, Values: out}
}

// Index samples the named column by frame index instead of time: frame i
// reads raw row round(i * rows/frames). Used by the legacy pedal sampling
// mode, which stretches the log over the video length.
func (r *Resampler) Index(name string) Series {
	vals, ok := r.column(name)
	if !ok {
		return Series{Name: name}
	}
	out := make([]float64, r.frames)
	if r.frames == 0 {
		return Series{Name: name, Values: out}
	}
	scale := float64(len(vals)) / float64(r.frames)
	for i := range out {
		j := int(math.Round(float64(i) * scale))
		if j >= len(vals) {
			j = len(vals) - 1
		}
		out[i] = vals[j]
	}
	return Series{Name: name, Values: out}
}

// Angle samples an angle column in radians. Cosine and sine are interpolated
// separately and recombined, so a wrap between -pi and pi is crossed along
// the short way.
func (r *Resampler) Angle(name string) Series {
	vals, ok := r.column(name)
	if !ok {
		return Series{Name: name}
	}
	cs := make([]float64, len(vals))
	sn := make([]float64, len(vals))
	for k, v := range vals {
		cs[k] = math.Cos(v)
		sn[k] = math.Sin(v)
	}
	c := r.interpolate(cs)
	si := r.interpolate(sn)
	out := make([]float64, r.frames)
	for i := range out {
		out[i] = math.Atan2(si[i], c[i])
	}
	return Series{Name: name, Values: out}
}

// Majority reports, per frame, whether more than half of the raw samples in
// the window [t-window/2, t+window/2] centred on the frame are on (>= 0.5).
// A frame whose window holds no sample, or a zero window, uses the sample
// closest in time. The result is 1 or 0.
func (r *Resampler) Majority(name string, window float64) Series {
	vals, ok := r.column(name)
	if !ok {
		return Series{Name: name}
	}
	// prefix[k] counts on samples in vals[:k].
	prefix := make([]int, len(vals)+1)
	for k, v := range vals {
		prefix[k+1] = prefix[k]
		if v >= 0.5 {
			prefix[k+1]++
		}
	}
	half := 0.0
	if window > 1e-9 {
		half = window / 2
	}
	out := make([]float64, r.frames)
	lo, hi, near := 0, 0, 0
	last := len(r.time) - 1
	for i := range out {
		t := float64(i) / r.fps
		for hi < len(r.time) && r.time[hi] <= t+half {
			hi++
		}
		for lo < hi && r.time[lo] < t-half {
			lo++
		}
		for near < last && math.Abs(r.time[near+1]-t) <= math.Abs(r.time[near]-t) {
			near++
		}
		total := hi - lo
		if half == 0 || total == 0 {
			if vals[near] >= 0.5 {
				out[i] = 1
			}
			continue
		}
		if on := prefix[hi] - prefix[lo]; on*2 > total {
			out[i] = 1
		}
	}
	return Series{Name: name, Values: out}
}

// interpolate evaluates vals, aligned to r.time, at every frame time.
func (r *Resampler) interpolate(vals []float64) []float64 {
	out := make([]float64, r.frames)
	if len(vals) == 1 {
		for i := range out {
			out[i] = vals[0]
		}
		return out
	}
	k := 0
	last := len(r.time) - 2
	for i := range out {
		t := float64(i) / r.fps
		for k < last && r.time[k+1] < t {
			k++
		}
		t0, t1 := r.time[k], r.time[k+1]
		alpha := (t - t0) / (t1 - t0)
		if alpha < 0 {
			alpha = 0
		} else if alpha > 1 {
			alpha = 1
		}
		out[i] = vals[k] + (vals[k+1]-vals[k])*alpha
	}
	return out
}
