package syncmap

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoCommonWindow is returned when fewer than two consecutive reference
// frames map inside the comparison recording.
var ErrNoCommonWindow = errors.New("no common window between streams")

// Window is an inclusive reference frame range.
type Window struct {
	Start int
	End   int
}

// Len returns the number of frames in the window.
func (w Window) Len() int { return w.End - w.Start + 1 }

// Contains reports whether frame i lies inside the window.
func (w Window) Contains(i int) bool { return i >= w.Start && i <= w.End }

func (w Window) String() string { return fmt.Sprintf("[%d,%d]", w.Start, w.End) }

// CommonWindow returns the longest run of reference frames whose comparison
// time lies in [0, duration-1/fps]. A run shorter than two frames is not a
// window.
func CommonWindow(cr *Correspondence) (Window, error) {
	hi := math.Max(0, cr.ComparisonDuration-1/cr.FPS)
	best := Window{Start: 0, End: -1}
	start := -1
	for i, t := range cr.Times {
		ok := t >= 0 && t <= hi
		if ok && start < 0 {
			start = i
		}
		if !ok && start >= 0 {
			if i-start > best.Len() {
				best = Window{Start: start, End: i - 1}
			}
			start = -1
		}
	}
	if start >= 0 && cr.Len()-start > best.Len() {
		best = Window{Start: start, End: cr.Len() - 1}
	}
	if best.Len() < 2 {
		return Window{}, ErrNoCommonWindow
	}
	return best, nil
}
