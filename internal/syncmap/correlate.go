package syncmap

import (
	"fmt"
	"math"
)

// FrameCount returns the number of whole frames in duration seconds at fps,
// never less than one.
func FrameCount(duration, fps float64) int {
	n := int(math.Floor(duration * fps))
	if n < 1 {
		n = 1
	}
	return n
}

// Correlator maps reference frames onto the comparison stream.
type Correlator struct {
	ref, comp *Trace
	fps       float64
	refFrames int
	cmpFrames int
}

// NewCorrelator prepares a correlator for two traces sharing fps.
func NewCorrelator(ref, comp *Trace, fps float64) (*Correlator, error) {
	if ref == nil || comp == nil {
		return nil, fmt.Errorf("correlator needs two traces")
	}
	if ref.Len() < 2 || comp.Len() < 2 {
		return nil, ErrInsufficientSamples
	}
	if !(fps > 0) {
		return nil, fmt.Errorf("invalid frame rate %v", fps)
	}
	return &Correlator{
		ref:       ref,
		comp:      comp,
		fps:       fps,
		refFrames: FrameCount(ref.Duration, fps),
		cmpFrames: FrameCount(comp.Duration, fps),
	}, nil
}

// ReferenceFrames is the number of output frames on the reference grid.
func (c *Correlator) ReferenceFrames() int { return c.refFrames }

// ComparisonFrames is the number of frames in the comparison video.
func (c *Correlator) ComparisonFrames() int { return c.cmpFrames }

func (c *Correlator) frameFor(t float64) int {
	f := int(math.Round(t * c.fps))
	if f < 0 {
		f = 0
	}
	if f > c.cmpFrames-1 {
		f = c.cmpFrames - 1
	}
	return f
}

// At derives the correspondence of reference frame i directly, without a
// sequential pass. It returns the same values as Run for the same i.
func (c *Correlator) At(i int) (frame int, t float64) {
	ti := float64(i) / c.fps
	x := interp(c.ref.Time, c.ref.Dist, segmentFor(c.ref.Time, ti), ti)
	t = interp(c.comp.Dist, c.comp.Time, segmentFor(c.comp.Dist, x), x)
	return c.frameFor(t), t
}

// Correspondence is the per reference frame mapping produced by Run.
type Correspondence struct {
	FPS float64
	// Frames holds the comparison frame index for each reference frame.
	Frames []int
	// Times holds the comparison time in seconds for each reference frame.
	Times []float64
	// Dist holds the unwrapped reference distance at each reference frame.
	Dist []float64
	// ComparisonDuration is the nominal comparison media duration.
	ComparisonDuration float64
	// ComparisonFrames is the frame count of the comparison media.
	ComparisonFrames int
}

// Len returns the number of reference frames.
func (cr *Correspondence) Len() int { return len(cr.Frames) }

// Run maps every reference frame in one pass. Both traces are walked with
// forward-only cursors, so the whole pass is linear in frames plus samples.
func (c *Correlator) Run() *Correspondence {
	out := &Correspondence{
		FPS:                c.fps,
		Frames:             make([]int, c.refFrames),
		Times:              make([]float64, c.refFrames),
		Dist:               make([]float64, c.refFrames),
		ComparisonDuration: c.comp.Duration,
		ComparisonFrames:   c.cmpFrames,
	}
	refCur := cursor{xs: c.ref.Time}
	cmpCur := cursor{xs: c.comp.Dist}
	for i := 0; i < c.refFrames; i++ {
		ti := float64(i) / c.fps
		x := interp(c.ref.Time, c.ref.Dist, refCur.seek(ti), ti)
		t := interp(c.comp.Dist, c.comp.Time, cmpCur.seek(x), x)
		out.Dist[i] = x
		out.Times[i] = t
		out.Frames[i] = c.frameFor(t)
	}
	return out
}

// SignalDiff resamples a raw column from each stream through the distance
// lookup and returns |ref - comp| per reference frame. refCol and compCol are
// aligned to the raw telemetry rows of their streams. A NaN sample is held at
// the previous frame's difference.
func (c *Correlator) SignalDiff(cr *Correspondence, refCol, compCol []float64) []float64 {
	out := make([]float64, cr.Len())
	prev := 0.0
	for i := range out {
		a := c.ref.SampleAt(refCol, float64(i)/c.fps)
		b := c.comp.SampleAt(compCol, cr.Times[i])
		d := math.Abs(a - b)
		if math.IsNaN(d) || math.IsInf(d, 0) {
			d = prev
		}
		out[i] = d
		prev = d
	}
	return out
}
