package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lapsync/internal/config"
	"github.com/banshee-data/lapsync/internal/encoder"
	"github.com/banshee-data/lapsync/internal/fsutil"
	"github.com/banshee-data/lapsync/internal/media"
	"github.com/banshee-data/lapsync/internal/monitoring"
	"github.com/banshee-data/lapsync/internal/sessioncache"
	"github.com/banshee-data/lapsync/internal/sink"
	"github.com/banshee-data/lapsync/internal/syncmap"
	"github.com/banshee-data/lapsync/internal/telemetry"
	"github.com/banshee-data/lapsync/internal/testutil"
	"github.com/banshee-data/lapsync/internal/timeutil"
)

const (
	testFPS    = 30.0
	testWidth  = 640
	testHeight = 360
	testHUD    = 200
)

var (
	shortLap = testutil.Lap{Samples: 301, Duration: 5, LapTime: 40, Radius: 200}
	testIn   = Inputs{
		SlowVideo:     "/data/slow.mp4",
		FastVideo:     "/data/fast.mp4",
		SlowTelemetry: "/data/slow.csv",
		FastTelemetry: "/data/fast.csv",
		Output:        "/out/compare.mp4",
	}
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

// csvOf serialises a telemetry table.
func csvOf(t *testing.T, tbl *telemetry.Table) []byte {
	t.Helper()
	cols := tbl.Columns()
	sort.Strings(cols)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	require.NoError(t, w.Write(cols))
	data := make([][]float64, len(cols))
	for k, c := range cols {
		data[k], _ = tbl.Column(c)
	}
	for i := 0; i < tbl.Len(); i++ {
		row := make([]string, len(cols))
		for k := range cols {
			row[k] = strconv.FormatFloat(data[k][i], 'g', -1, 64)
		}
		require.NoError(t, w.Write(row))
	}
	w.Flush()
	require.NoError(t, w.Error())
	return buf.Bytes()
}

type fakeProber struct {
	infos map[string]media.Info
	calls int
}

func (p *fakeProber) Probe(_ context.Context, path string) (media.Info, error) {
	p.calls++
	info, ok := p.infos[path]
	if !ok {
		return media.Info{}, fmt.Errorf("no such video %s", path)
	}
	return info, nil
}

type fakeEncoder struct {
	buf       bytes.Buffer
	writes    int
	failAfter int // fail writes after this many; 0 never fails
	waitErr   error
	waited    bool
	aborted   bool
}

func (e *fakeEncoder) Write(p []byte) (int, error) {
	if e.failAfter > 0 && e.writes >= e.failAfter {
		return 0, syscall.EPIPE
	}
	e.writes++
	return e.buf.Write(p)
}

func (e *fakeEncoder) Stdin() io.Writer { return e }
func (e *fakeEncoder) Wait() error      { e.waited = true; return e.waitErr }
func (e *fakeEncoder) Abort()           { e.aborted = true }

type fixture struct {
	fs      *fsutil.MemoryFileSystem
	prober  *fakeProber
	enc     *fakeEncoder
	started []*encoder.Plan
	cfg     *config.ExportConfig
	stdout  bytes.Buffer
}

func newFixture(t *testing.T, fastLap testutil.Lap) *fixture {
	t.Helper()
	epoch := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	f := &fixture{
		fs:  fsutil.NewMemoryFileSystem(),
		enc: &fakeEncoder{},
		cfg: config.EmptyExportConfig(),
	}
	f.fs.WriteFile(testIn.SlowVideo, []byte("slow video"), epoch)
	f.fs.WriteFile(testIn.FastVideo, []byte("fast video"), epoch)
	f.fs.WriteFile(testIn.SlowTelemetry, csvOf(t, shortLap.Table()), epoch)
	f.fs.WriteFile(testIn.FastTelemetry, csvOf(t, fastLap.Table()), epoch)
	f.prober = &fakeProber{infos: map[string]media.Info{
		testIn.SlowVideo: {Path: testIn.SlowVideo, Width: 1280, Height: 720, FPS: testFPS, Duration: shortLap.Duration},
		testIn.FastVideo: {Path: testIn.FastVideo, Width: 1280, Height: 720, FPS: testFPS, Duration: fastLap.Duration},
	}}

	preset := fmt.Sprintf("%dx%d", testWidth, testHeight)
	hudW := testHUD
	f.cfg.OutputPreset = &preset
	f.cfg.HUDWidth = &hudW
	return f
}

func (f *fixture) options() Options {
	return Options{
		Config: f.cfg,
		Prober: f.prober,
		Start: func(_ context.Context, p *encoder.Plan) (Encoder, error) {
			f.started = append(f.started, p)
			return f.enc, nil
		},
		FS:     f.fs,
		Clock:  timeutil.NewMockClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)),
		Stdout: &f.stdout,
	}
}

func (f *fixture) run(t *testing.T, opts Options) (*Result, error) {
	t.Helper()
	e, err := New(opts)
	require.NoError(t, err)
	return e.Run(context.Background(), testIn)
}

func TestRun_StreamsEveryWindowFrame(t *testing.T) {
	f := newFixture(t, shortLap)

	res, err := f.run(t, f.options())
	require.NoError(t, err)

	frames := syncmap.FrameCount(shortLap.Duration, testFPS)
	assert.Equal(t, syncmap.Window{Start: 0, End: frames - 1}, res.Window)
	assert.Equal(t, frames, res.Written)
	assert.NotEmpty(t, res.RunID)
	require.Len(t, f.started, 1)
	assert.Equal(t, frames, f.started[0].Frames)
	assert.Equal(t, frames*testHUD*testHeight*4, f.enc.buf.Len())
	assert.True(t, f.enc.waited)
	assert.False(t, f.enc.aborted)

	// Self-sync: no time delta anywhere.
	assert.InDelta(t, 0, res.Sync.MaxAbsDelta, 1e-6)
	assert.Empty(t, res.Diagnostics)
}

func TestRun_HUDIsNotBlank(t *testing.T) {
	f := newFixture(t, shortLap)
	_, err := f.run(t, f.options())
	require.NoError(t, err)

	frame := f.enc.buf.Bytes()[:testHUD*testHeight*4]
	opaque := 0
	for k := 3; k < len(frame); k += 4 {
		if frame[k] != 0 {
			opaque++
		}
	}
	assert.Greater(t, opaque, testHUD*testHeight/4, "widget backgrounds cover the column")
}

func TestRun_Deterministic(t *testing.T) {
	a := newFixture(t, shortLap)
	_, err := a.run(t, a.options())
	require.NoError(t, err)

	b := newFixture(t, shortLap)
	_, err = b.run(t, b.options())
	require.NoError(t, err)

	assert.True(t, bytes.Equal(a.enc.buf.Bytes(), b.enc.buf.Bytes()))
}

func TestRun_FasterComparison(t *testing.T) {
	fast := shortLap
	fast.LapTime = 36
	f := newFixture(t, fast)

	res, err := f.run(t, f.options())
	require.NoError(t, err)
	assert.Greater(t, res.Sync.FinalDelta, 0.3)
	assert.Equal(t, res.Window.Len(), res.Written)
}

func TestRun_DryRun(t *testing.T) {
	f := newFixture(t, shortLap)
	opts := f.options()
	opts.DryRun = true

	res, err := f.run(t, opts)
	require.NoError(t, err)
	assert.Empty(t, f.started)
	assert.Zero(t, res.Written)
	require.NotNil(t, res.Plan)

	out := f.stdout.String()
	assert.True(t, strings.HasPrefix(out, "ffmpeg "))
	assert.Contains(t, out, "-filter_complex")
	assert.Contains(t, out, testIn.Output)
}

func TestRun_Diagnostics(t *testing.T) {
	f := newFixture(t, shortLap)
	opts := f.options()
	opts.DryRun = true
	opts.DiagnosticsDir = "/diag"

	res, err := f.run(t, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"/diag/compare-sync.png", "/diag/compare-sync.html"}, res.Diagnostics)
	for _, p := range res.Diagnostics {
		data, err := f.fs.ReadFile(p)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	}
}

func TestRun_FrameRateMismatch(t *testing.T) {
	f := newFixture(t, shortLap)
	info := f.prober.infos[testIn.FastVideo]
	info.FPS = 60
	f.prober.infos[testIn.FastVideo] = info

	_, err := f.run(t, f.options())
	assert.ErrorIs(t, err, media.ErrFrameRateMismatch)
	assert.Empty(t, f.started)
}

func TestRun_MissingLapDistance(t *testing.T) {
	f := newFixture(t, shortLap)
	tbl := shortLap.Table()
	bare := telemetry.NewTable(tbl.Len())
	for _, c := range tbl.Columns() {
		if c == telemetry.ColLapDist {
			continue
		}
		v, _ := tbl.Column(c)
		bare.Set(c, v)
	}
	f.fs.WriteFile(testIn.FastTelemetry, csvOf(t, bare), time.Now())

	_, err := f.run(t, f.options())
	assert.ErrorIs(t, err, syncmap.ErrMissingDistance)
	assert.Empty(t, f.started)
}

func TestRun_NoCommonWindow(t *testing.T) {
	// The reference lap starts half a lap further on, a distance the
	// comparison lap never reaches.
	f := newFixture(t, shortLap)
	ahead := shortLap
	ahead.StartFrac = 0.5
	f.fs.WriteFile(testIn.SlowTelemetry, csvOf(t, ahead.Table()), time.Now())

	_, err := f.run(t, f.options())
	assert.ErrorIs(t, err, syncmap.ErrNoCommonWindow)
	assert.Empty(t, f.started)
}

func TestRun_OutputOverwritesInput(t *testing.T) {
	f := newFixture(t, shortLap)
	e, err := New(f.options())
	require.NoError(t, err)

	in := testIn
	in.Output = in.SlowVideo
	_, err = e.Run(context.Background(), in)
	assert.Error(t, err)
	assert.Zero(t, f.prober.calls)
}

func TestRun_MissingInput(t *testing.T) {
	f := newFixture(t, shortLap)
	e, err := New(f.options())
	require.NoError(t, err)

	in := testIn
	in.FastTelemetry = ""
	_, err = e.Run(context.Background(), in)
	assert.ErrorContains(t, err, "fast telemetry")
}

func TestRun_BrokenPipe(t *testing.T) {
	f := newFixture(t, shortLap)
	f.enc.failAfter = 3
	f.enc.waitErr = errors.New("exit status 1")

	res, err := f.run(t, f.options())
	require.Error(t, err)
	assert.ErrorIs(t, err, sink.ErrBrokenPipe)
	assert.Contains(t, err.Error(), "exit status 1")
	assert.Equal(t, 3, res.Written)
	assert.True(t, f.enc.waited)
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t, shortLap)
	e, err := New(f.options())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Run(ctx, testIn)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Written)
	assert.True(t, f.enc.aborted)
}

func TestRun_WithCache(t *testing.T) {
	f := newFixture(t, shortLap)
	cache, err := sessioncache.Open(filepath.Join(t.TempDir(), "cache.db"), sessioncache.Options{FS: f.fs})
	require.NoError(t, err)
	defer cache.Close()

	opts := f.options()
	opts.Cache = cache

	first, err := f.run(t, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, f.prober.calls)

	f.enc.buf.Reset()
	second, err := f.run(t, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, f.prober.calls, "probes come from the cache")
	assert.Equal(t, first.Window, second.Window)

	runs, err := cache.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	ids := []string{runs[0].ID, runs[1].ID}
	assert.ElementsMatch(t, []string{first.RunID, second.RunID}, ids)
	for _, r := range runs {
		assert.Equal(t, sessioncache.RunFinished, r.Status)
		assert.Equal(t, first.Written, r.FramesWritten)
	}
}

func TestRun_StaleCachedCorrespondenceIsRecomputed(t *testing.T) {
	f := newFixture(t, shortLap)
	cache, err := sessioncache.Open(filepath.Join(t.TempDir(), "cache.db"), sessioncache.Options{FS: f.fs})
	require.NoError(t, err)
	defer cache.Close()

	opts := f.options()
	opts.Cache = cache
	first, err := f.run(t, opts)
	require.NoError(t, err)

	slowSig, err := cache.Signature(testIn.SlowTelemetry)
	require.NoError(t, err)
	fastSig, err := cache.Signature(testIn.FastTelemetry)
	require.NoError(t, err)
	cr, ok, err := cache.GetCorrespondence(slowSig, fastSig, testFPS)
	require.NoError(t, err)
	require.True(t, ok)
	want := cr.ComparisonFrames

	// A cached mapping for a comparison video of a different length.
	cr.ComparisonFrames = 1
	for i := range cr.Frames {
		cr.Frames[i] = 0
	}
	require.NoError(t, cache.PutCorrespondence(slowSig, fastSig, testFPS, cr))

	f.enc.buf.Reset()
	second, err := f.run(t, opts)
	require.NoError(t, err)
	assert.Equal(t, first.Window, second.Window)

	cr, ok, err = cache.GetCorrespondence(slowSig, fastSig, testFPS)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, cr.ComparisonFrames)
	assert.NotZero(t, cr.Frames[cr.Len()-1])
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestWidgetLayout(t *testing.T) {
	cfg := config.EmptyExportConfig()
	layout := widgetLayout(cfg, testHUD, testHeight)
	require.Len(t, layout, len(config.KnownWidgets))
	for k, l := range layout {
		assert.Equal(t, config.KnownWidgets[k], l.Name)
	}

	on, off := true, false
	x, y, w, h := 10, 20, 100, 50
	cfg.Widgets = map[string]config.WidgetConfig{
		config.WidgetSteering: {Enabled: &on, X: &x, Y: &y, W: &w, H: &h},
		config.WidgetDelta:    {Enabled: &on},
		config.WidgetSpeed:    {Enabled: &off},
	}
	layout = widgetLayout(cfg, testHUD, testHeight)
	require.Len(t, layout, 2)
	assert.Equal(t, config.WidgetSteering, layout[0].Name)
	assert.Equal(t, 10, layout[0].Rect.Min.X)
	assert.Equal(t, 70, layout[0].Rect.Max.Y)
	assert.Equal(t, config.WidgetDelta, layout[1].Name)
	assert.Equal(t, testHeight, layout[1].Rect.Dy())
}

func TestBuildSettings(t *testing.T) {
	cfg := config.EmptyExportConfig()
	s := buildSettings(cfg, 60)
	assert.Equal(t, 1, s.SpeedHold)
	assert.Equal(t, 4, s.ABSDebounceFrames)
	assert.Equal(t, "kmh", s.SpeedUnit)

	hz := 10.0
	cfg.SpeedUpdateHz = &hz
	assert.Equal(t, 6, buildSettings(cfg, 60).SpeedHold)
}

func TestBuildSignals_LegacyPedals(t *testing.T) {
	f := newFixture(t, shortLap)
	mode := config.PedalModeLegacy
	f.cfg.PedalSampleMode = &mode
	e, err := New(f.options())
	require.NoError(t, err)
	sess, err := e.prepare(context.Background(), testIn)
	require.NoError(t, err)

	sig := buildSignals(f.cfg, sess)
	frames := syncmap.FrameCount(shortLap.Duration, testFPS)
	assert.Len(t, sig.Slow.Throttle.Values, frames)
	assert.Len(t, sig.Fast.Brake.Values, frames)
	assert.Len(t, sig.TimeDelta.Values, frames)
	assert.Greater(t, sig.SteeringScale, 0.0)
	for _, v := range sig.Slow.LapDist.Values {
		assert.True(t, v >= 0 && v < 1)
	}
}

func TestBuildStream_ABSVotesOverDebounceWindow(t *testing.T) {
	tbl := shortLap.Table()
	abs := make([]float64, tbl.Len())
	for i := 60; i <= 120; i++ {
		abs[i] = 1
	}
	abs[150] = 1
	tbl.Set(telemetry.ColABS, abs)
	tr, err := syncmap.BuildTrace(tbl, shortLap.Duration)
	require.NoError(t, err)

	cfg := config.EmptyExportConfig()
	st, _ := buildStream(cfg, streamInput{tel: tbl, trace: tr, duration: shortLap.Duration}, testFPS)
	require.Len(t, st.ABS.Values, syncmap.FrameCount(shortLap.Duration, testFPS))
	// A single 60 Hz sample is outvoted inside the 60 ms window.
	assert.Equal(t, 0.0, st.ABS.Values[75])
	assert.Equal(t, 1.0, st.ABS.Values[45])
	assert.Equal(t, 0.0, st.ABS.Values[10])
}

func TestLapDistanceFoldsAcrossTheLine(t *testing.T) {
	tr := &syncmap.Trace{
		Time:  []float64{0, 1},
		Dist:  []float64{0.75, 1.25},
		Index: []int{0, 1},
	}
	s := lapDistance(tr, 3, 2)
	testutil.AssertFloatNear(t, s.Values[0], 0.75, 1e-9)
	testutil.AssertFloatNear(t, s.Values[1], 0.0, 1e-9)
	testutil.AssertFloatNear(t, s.Values[2], 0.25, 1e-9)
}
