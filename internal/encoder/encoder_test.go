package encoder

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lapsync/internal/syncmap"
)

func TestNewGeometry(t *testing.T) {
	tests := []struct {
		name      string
		w, h, hud int
		want      Geometry
		wantErr   bool
	}{
		{"full hd", 1920, 1080, 320, Geometry{1920, 1080, 320, 800, 800}, false},
		{"odd split", 1281, 720, 300, Geometry{1281, 720, 300, 490, 491}, false},
		{"hud too wide", 100, 100, 98, Geometry{}, true},
		{"sides too narrow", 30, 10, 10, Geometry{}, true},
		{"zero hud", 640, 360, 0, Geometry{}, true},
		{"zero height", 640, 0, 100, Geometry{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewGeometry(tt.w, tt.h, tt.hud)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got.LeftW+got.HUD, got.FastX())
		})
	}
}

// halfTime maps reference frame i to comparison time i/fps/2: the
// comparison lap covers the same distance twice as fast.
func halfTime(n int, fps float64) *syncmap.Correspondence {
	cr := &syncmap.Correspondence{FPS: fps, Frames: make([]int, n), Times: make([]float64, n), Dist: make([]float64, n)}
	for i := 0; i < n; i++ {
		cr.Times[i] = float64(i) / fps * 0.5
		cr.Frames[i] = i / 2
	}
	return cr
}

func TestSegmentsWarpComparison(t *testing.T) {
	cr := halfTime(10, 10)
	segs := Segments(cr, syncmap.Window{Start: 0, End: 9}, 5, 10)
	require.Len(t, segs, 2)
	assert.Equal(t, 0, segs[0].RefStart)
	assert.Equal(t, 5, segs[0].RefEnd)
	assert.InDelta(t, 0.25, segs[0].End, 1e-12)
	assert.InDelta(t, 2, segs[0].Factor, 1e-9)
	assert.Equal(t, 10, segs[1].RefEnd)
	assert.InDelta(t, 0.5, segs[1].End, 1e-9)
	assert.InDelta(t, 2, segs[1].Factor, 1e-9)
}

func TestSegmentsCapped(t *testing.T) {
	cr := halfTime(1000, 30)
	segs := Segments(cr, syncmap.Window{Start: 0, End: 999}, 1, 30)
	assert.LessOrEqual(t, len(segs), maxSegments)
	assert.Equal(t, 1000, segs[len(segs)-1].RefEnd)
}

func TestSegmentsStationaryComparison(t *testing.T) {
	cr := halfTime(4, 10)
	for i := range cr.Times {
		cr.Times[i] = 1
	}
	segs := Segments(cr, syncmap.Window{Start: 0, End: 3}, 2, 10)
	for _, s := range segs {
		assert.Greater(t, s.End, s.Start)
	}
}

func TestBuildPlan(t *testing.T) {
	g, err := NewGeometry(1920, 1080, 320)
	require.NoError(t, err)
	plan, err := BuildPlan(PlanInput{
		SlowVideo:     "slow.mp4",
		FastVideo:     "fast.mp4",
		Output:        "out.mp4",
		Geometry:      g,
		FPS:           10,
		Window:        syncmap.Window{Start: 0, End: 9},
		Corr:          halfTime(10, 10),
		SegmentFrames: 5,
		ExtraArgs:     []string{"-crf", "18"},
	})
	require.NoError(t, err)

	wantFilter := strings.Join([]string{
		"[1:v]trim=start=0:end=1,setpts=PTS-STARTPTS[slowcut]",
		"[2:v]trim=start=0:end=0.25,setpts=PTS-STARTPTS,setpts=PTS*2[fseg0]",
		"[2:v]trim=start=0.25:end=0.5,setpts=PTS-STARTPTS,setpts=PTS*2[fseg1]",
		"[fseg0][fseg1]concat=n=2:v=1:a=0[fastsync]",
		"[slowcut]scale=800:1080:force_original_aspect_ratio=increase,crop=800:1080,fps=10[vslow]",
		"[fastsync]scale=800:1080:force_original_aspect_ratio=increase,crop=800:1080,fps=10[vfast]",
		"color=c=black:s=1920x1080:r=10[base]",
		"[base][vslow]overlay=0:0:shortest=1[tmp0]",
		"[0:v]format=rgba[hudrgba]",
		"[tmp0][hudrgba]overlay=800:0:shortest=1[tmp]",
		"[tmp][vfast]overlay=1120:0:shortest=1[vpre]",
		"[vpre]fps=10[vout]",
	}, ";")
	if diff := cmp.Diff(wantFilter, plan.Filter); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}

	wantArgs := []string{
		"-hide_banner", "-y", "-loglevel", "warning",
		"-f", "rawvideo", "-pix_fmt", "rgba", "-s", "320x1080", "-r", "10", "-i", "-",
		"-i", "slow.mp4", "-i", "fast.mp4",
		"-filter_complex", wantFilter,
		"-map", "[vout]", "-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-crf", "18",
		"-r", "10", "-frames:v", "10", "out.mp4",
	}
	if diff := cmp.Diff(wantArgs, plan.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 10, plan.Frames)
	assert.True(t, strings.HasPrefix(plan.String(), "ffmpeg -hide_banner -y "))
	assert.Contains(t, plan.String(), "'[vout]'")
}

func TestBuildPlanRejectsBadInput(t *testing.T) {
	g, _ := NewGeometry(1920, 1080, 320)
	base := PlanInput{SlowVideo: "a", FastVideo: "b", Output: "c", Geometry: g, FPS: 30,
		Window: syncmap.Window{Start: 0, End: 9}, Corr: halfTime(10, 30)}

	bad := []func(*PlanInput){
		func(p *PlanInput) { p.Corr = nil },
		func(p *PlanInput) { p.FPS = 0 },
		func(p *PlanInput) { p.Window.End = 10 },
		func(p *PlanInput) { p.Output = "" },
	}
	for i, mutate := range bad {
		in := base
		mutate(&in)
		_, err := BuildPlan(in)
		assert.Error(t, err, "case %d", i)
	}
}

func TestFormatNum(t *testing.T) {
	tests := map[float64]string{
		0:           "0",
		29.97:       "29.97",
		1.0 / 3:     "0.333333",
		-0.0000001:  "0",
		60:          "60",
		12.50000049: "12.5",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatNum(in), "%v", in)
	}
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "out.mp4", shellQuote("out.mp4"))
	assert.Equal(t, "''", shellQuote(""))
	assert.Equal(t, "'my lap.mp4'", shellQuote("my lap.mp4"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestProcessConsumesStdin(t *testing.T) {
	requireShell(t)
	p, err := Start(context.Background(), &Plan{Binary: "sh", Args: []string{"-c", "cat > /dev/null"}})
	require.NoError(t, err)
	_, err = p.Stdin().Write(make([]byte, 1<<16))
	require.NoError(t, err)
	assert.NoError(t, p.Wait())
}

func TestProcessFailureIncludesStderr(t *testing.T) {
	requireShell(t)
	p, err := Start(context.Background(), &Plan{Binary: "sh", Args: []string{"-c", "echo unknown encoder >&2; exit 3"}})
	require.NoError(t, err)
	err = p.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown encoder")
}

func TestStartMissingBinary(t *testing.T) {
	_, err := Start(context.Background(), &Plan{Binary: "lapsync-no-such-encoder"})
	assert.Error(t, err)
}
