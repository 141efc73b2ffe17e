// Package sink streams finished HUD rasters to the encoder as raw RGBA.
package sink

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/banshee-data/lapsync/internal/monitoring"
	"github.com/banshee-data/lapsync/internal/timeutil"
)

// ErrBrokenPipe reports that the encoder stopped reading. It is not
// retried.
var ErrBrokenPipe = errors.New("encoder input closed")

// Progress is called after every frame with the frames written so far and
// the total expected.
type Progress func(written, total int)

// FrameSink writes fixed-size frames, one after another with no header.
type FrameSink struct {
	w        io.Writer
	width    int
	height   int
	total    int
	written  int
	progress Progress
	buf      []byte
}

// New returns a sink for total frames of width x height pixels. progress
// may be nil.
func New(w io.Writer, width, height, total int, progress Progress) *FrameSink {
	return &FrameSink{w: w, width: width, height: height, total: total, progress: progress}
}

// FrameSize is the byte size of one frame.
func (s *FrameSink) FrameSize() int { return s.width * s.height * 4 }

// Written returns the number of frames delivered.
func (s *FrameSink) Written() int { return s.written }

// WriteFrame delivers one raster. It must match the sink geometry.
func (s *FrameSink) WriteFrame(img *image.RGBA) error {
	b := img.Bounds()
	if b.Dx() != s.width || b.Dy() != s.height {
		return fmt.Errorf("frame %d is %dx%d, sink expects %dx%d", s.written, b.Dx(), b.Dy(), s.width, s.height)
	}
	n := s.FrameSize()
	var data []byte
	if img.Stride == s.width*4 {
		off := img.PixOffset(b.Min.X, b.Min.Y)
		data = img.Pix[off : off+n]
	} else {
		// Sub-images carry a wider stride; pack rows into one reused buffer.
		if len(s.buf) != n {
			s.buf = make([]byte, n)
		}
		row := s.width * 4
		for y := 0; y < s.height; y++ {
			off := img.PixOffset(b.Min.X, b.Min.Y+y)
			copy(s.buf[y*row:(y+1)*row], img.Pix[off:off+row])
		}
		data = s.buf
	}

	m, err := s.w.Write(data)
	if err != nil {
		if isBrokenPipe(err) {
			return fmt.Errorf("%w after %d frames: %v", ErrBrokenPipe, s.written, err)
		}
		return fmt.Errorf("write frame %d: %w", s.written, err)
	}
	if m != n {
		return fmt.Errorf("write frame %d: %w", s.written, io.ErrShortWrite)
	}
	s.written++
	if s.progress != nil {
		s.progress(s.written, s.total)
	}
	return nil
}

func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed)
}

// LogProgress returns a Progress that logs throughput and an estimate of
// the remaining time every interval frames and on the last frame.
func LogProgress(clock timeutil.Clock, interval int) Progress {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval < 1 {
		interval = 1
	}
	logf := monitoring.Tagged("sink")
	start := clock.Now()
	return func(written, total int) {
		if written%interval != 0 && written != total {
			return
		}
		elapsed := clock.Since(start)
		rate := 0.0
		if elapsed > 0 {
			rate = float64(written) / elapsed.Seconds()
		}
		pct := 0.0
		if total > 0 {
			pct = 100 * float64(written) / float64(total)
		}
		eta := "?"
		if rate > 0 && total >= written {
			eta = (time.Duration(float64(total-written)/rate*float64(time.Second))).Round(time.Second).String()
		}
		logf("%d/%d frames (%.1f%%), %.1f fps, eta %s", written, total, pct, rate, eta)
	}
}
