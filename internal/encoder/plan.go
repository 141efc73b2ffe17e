package encoder

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/lapsync/internal/syncmap"
)

// maxSegments caps the number of warped comparison segments in one graph.
const maxSegments = 400

// PlanInput collects everything needed to build the ffmpeg invocation.
type PlanInput struct {
	SlowVideo string
	FastVideo string
	Output    string

	Geometry Geometry
	FPS      float64
	Window   syncmap.Window
	Corr     *syncmap.Correspondence

	// SegmentFrames is the reference frame distance between warp keyframes.
	SegmentFrames int
	Codec         string
	PixelFormat   string
	ExtraArgs     []string
}

// Segment is one time-warped piece of the comparison video.
type Segment struct {
	// RefStart and RefEnd are reference frames, end exclusive.
	RefStart, RefEnd int
	// Start and End are comparison times in seconds.
	Start, End float64
	// Factor stretches comparison time onto reference time.
	Factor float64
}

// Plan is a complete ffmpeg invocation. The HUD stream is read from stdin.
type Plan struct {
	Binary   string
	Args     []string
	Filter   string
	Segments []Segment
	Frames   int
}

// BuildPlan builds the argv and filter graph for one export.
func BuildPlan(in PlanInput) (*Plan, error) {
	if in.Corr == nil || in.Corr.Len() == 0 {
		return nil, errors.New("plan: empty correspondence")
	}
	if !(in.FPS > 0) {
		return nil, fmt.Errorf("plan: invalid frame rate %v", in.FPS)
	}
	if in.Window.Start < 0 || in.Window.End >= in.Corr.Len() || in.Window.Len() < 1 {
		return nil, fmt.Errorf("plan: window %s outside %d frames", in.Window, in.Corr.Len())
	}
	if in.SlowVideo == "" || in.FastVideo == "" || in.Output == "" {
		return nil, errors.New("plan: input and output paths are required")
	}
	codec := in.Codec
	if codec == "" {
		codec = "libx264"
	}
	pixfmt := in.PixelFormat
	if pixfmt == "" {
		pixfmt = "yuv420p"
	}

	segs := Segments(in.Corr, in.Window, in.SegmentFrames, in.FPS)
	filter := buildFilter(in, segs)
	g := in.Geometry
	fps := formatNum(in.FPS)

	args := []string{
		"-hide_banner", "-y",
		"-loglevel", "warning",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", g.HUD, g.Height),
		"-r", fps,
		"-i", "-",
		"-i", in.SlowVideo,
		"-i", in.FastVideo,
		"-filter_complex", filter,
		"-map", "[vout]",
		"-c:v", codec,
		"-pix_fmt", pixfmt,
	}
	args = append(args, in.ExtraArgs...)
	args = append(args,
		"-r", fps,
		"-frames:v", strconv.Itoa(in.Window.Len()),
		in.Output,
	)
	return &Plan{
		Binary:   "ffmpeg",
		Args:     args,
		Filter:   filter,
		Segments: segs,
		Frames:   in.Window.Len(),
	}, nil
}

// Segments cuts the window into pieces of every frames reference frames
// (fewer when that would exceed the segment cap) and derives the comparison
// time span and stretch factor of each.
func Segments(cr *syncmap.Correspondence, w syncmap.Window, every int, fps float64) []Segment {
	n := w.Len()
	if every < 1 {
		every = 30
	}
	if (n+every-1)/every > maxSegments {
		every = (n + maxSegments - 1) / maxSegments
	}
	var out []Segment
	for a := w.Start; a <= w.End; a += every {
		b := min(a+every, w.End+1)
		t0 := comparisonTime(cr, a)
		t1 := math.Max(comparisonTime(cr, b), t0+1e-6)
		out = append(out, Segment{
			RefStart: a,
			RefEnd:   b,
			Start:    t0,
			End:      t1,
			Factor:   (float64(b-a) / fps) / (t1 - t0),
		})
	}
	return out
}

// comparisonTime returns the comparison time of reference frame i,
// extrapolating one frame past the end of the correspondence.
func comparisonTime(cr *syncmap.Correspondence, i int) float64 {
	n := cr.Len()
	if i < n {
		return cr.Times[max(i, 0)]
	}
	last := cr.Times[n-1]
	step := 1 / cr.FPS
	if n > 1 {
		step = last - cr.Times[n-2]
	}
	return last + step*float64(i-n+1)
}

func buildFilter(in PlanInput, segs []Segment) string {
	g := in.Geometry
	fps := formatNum(in.FPS)
	ts0 := float64(in.Window.Start) / in.FPS
	ts1 := float64(in.Window.End+1) / in.FPS

	var parts []string
	parts = append(parts, fmt.Sprintf("[1:v]trim=start=%s:end=%s,setpts=PTS-STARTPTS[slowcut]",
		formatNum(ts0), formatNum(ts1)))

	var labels strings.Builder
	for k, s := range segs {
		parts = append(parts, fmt.Sprintf("[2:v]trim=start=%s:end=%s,setpts=PTS-STARTPTS,setpts=PTS*%s[fseg%d]",
			formatNum(s.Start), formatNum(s.End), formatNum(s.Factor), k))
		fmt.Fprintf(&labels, "[fseg%d]", k)
	}
	parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[fastsync]", labels.String(), len(segs)))

	side := func(src string, w int, dst string) string {
		return fmt.Sprintf("[%s]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,fps=%s[%s]",
			src, w, g.Height, w, g.Height, fps, dst)
	}
	parts = append(parts,
		side("slowcut", g.LeftW, "vslow"),
		side("fastsync", g.RightW, "vfast"),
		fmt.Sprintf("color=c=black:s=%dx%d:r=%s[base]", g.Width, g.Height, fps),
		"[base][vslow]overlay=0:0:shortest=1[tmp0]",
		"[0:v]format=rgba[hudrgba]",
		fmt.Sprintf("[tmp0][hudrgba]overlay=%d:0:shortest=1[tmp]", g.HUDX()),
		fmt.Sprintf("[tmp][vfast]overlay=%d:0:shortest=1[vpre]", g.FastX()),
		fmt.Sprintf("[vpre]fps=%s[vout]", fps),
	)
	return strings.Join(parts, ";")
}

// formatNum prints a float with at most six decimals and no trailing zeros.
func formatNum(v float64) string {
	s := strconv.FormatFloat(v, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

// String renders the plan as a shell command line.
func (p *Plan) String() string {
	var b strings.Builder
	b.WriteString(p.Binary)
	for _, a := range p.Args {
		b.WriteByte(' ')
		b.WriteString(shellQuote(a))
	}
	return b.String()
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			strings.ContainsRune("-_./:=,+", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
