// Package media discovers resolution, frame rate and duration of input
// videos with ffprobe.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// ErrFrameRateMismatch is returned when the two inputs differ in frame rate.
var ErrFrameRateMismatch = errors.New("frame rates differ")

// frameRateTolerance is the largest frame rate difference still treated as
// equal.
const frameRateTolerance = 0.01

// Info describes one input video.
type Info struct {
	Path     string  `json:"path"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	Duration float64 `json:"duration_s"`
}

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// Prober runs ffprobe.
type Prober struct {
	Binary string
	Run    Runner
}

// NewProber returns a Prober using the ffprobe found on PATH.
func NewProber() *Prober {
	return &Prober{Binary: "ffprobe", Run: ExecRunner}
}

// Probe reads the first video stream of path.
func (p *Prober) Probe(ctx context.Context, path string) (Info, error) {
	out, err := p.Run(ctx, p.Binary,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate,r_frame_rate:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	info, err := ParseProbe(out)
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	info.Path = path
	return info, nil
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ParseProbe decodes ffprobe JSON output. The average frame rate is
// preferred over the container rate.
func ParseProbe(data []byte) (Info, error) {
	var po probeOutput
	if err := json.Unmarshal(data, &po); err != nil {
		return Info{}, fmt.Errorf("failed to parse probe output: %w", err)
	}
	if len(po.Streams) == 0 {
		return Info{}, errors.New("no video stream")
	}
	s := po.Streams[0]
	fps, err := ParseRate(s.AvgFrameRate)
	if err != nil || fps <= 0 {
		fps, err = ParseRate(s.RFrameRate)
	}
	if err != nil {
		return Info{}, err
	}
	dur, _ := strconv.ParseFloat(strings.TrimSpace(po.Format.Duration), 64)

	info := Info{Width: s.Width, Height: s.Height, FPS: fps, Duration: dur}
	if info.Width <= 0 || info.Height <= 0 || info.FPS <= 0.1 {
		return Info{}, fmt.Errorf("invalid stream %dx%d at %v fps", info.Width, info.Height, info.FPS)
	}
	if !(info.Duration > 0.01) {
		return Info{}, fmt.Errorf("invalid duration %q", po.Format.Duration)
	}
	return info, nil
}

// ParseRate parses "num/den" or a plain number. "0/0" parses as zero.
func ParseRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty frame rate")
	}
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	if !ok {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	if d == 0 {
		return 0, nil
	}
	return n / d, nil
}

// ValidateFrameRates checks that both inputs share a frame rate.
func ValidateFrameRates(slow, fast Info) error {
	if math.Abs(slow.FPS-fast.FPS) > frameRateTolerance {
		return fmt.Errorf("%w: %s at %.3f fps, %s at %.3f fps",
			ErrFrameRateMismatch, slow.Path, slow.FPS, fast.Path, fast.FPS)
	}
	return nil
}
