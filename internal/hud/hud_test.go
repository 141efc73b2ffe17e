package hud

import (
	"bytes"
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lapsync/internal/config"
	"github.com/banshee-data/lapsync/internal/resample"
	"github.com/banshee-data/lapsync/internal/syncmap"
)

const testFPS = 30.0

func wave(n int, period, amp, offset float64) resample.Series {
	v := make([]float64, n)
	for i := range v {
		v[i] = offset + amp*math.Sin(2*math.Pi*float64(i)/period)
	}
	return resample.Series{Values: v}
}

func square(n, period int) resample.Series {
	v := make([]float64, n)
	for i := range v {
		if (i/period)%2 == 1 {
			v[i] = 1
		}
	}
	return resample.Series{Values: v}
}

func testStream(n int, phase float64) Stream {
	return Stream{
		Speed:          wave(n, 90+phase, 40, 120),
		MinSpeed:       wave(n, 200, 5, 80),
		MaxSpeed:       wave(n, 200, 5, 160),
		Gear:           wave(n, 150, 2, 3),
		RPM:            wave(n, 60, 1500, 6000),
		Throttle:       wave(n, 70+phase, 0.5, 0.5),
		Brake:          wave(n, 55+phase, 0.4, 0.3),
		ABS:            square(n, 9),
		Steering:       wave(n, 80+phase, 90, 0),
		LapDist:        wave(n, 1000, 0.1, 0.5),
		UnderOversteer: wave(n, 45+phase, 0.05, 0),
	}
}

// testContext builds a context where the comparison lap runs slightly ahead
// of the reference lap.
func testContext(n int) *Context {
	cr := &syncmap.Correspondence{
		FPS:              testFPS,
		Frames:           make([]int, n),
		Times:            make([]float64, n),
		Dist:             make([]float64, n),
		ComparisonFrames: n,
	}
	for i := 0; i < n; i++ {
		t := float64(i) / testFPS * 0.97
		cr.Times[i] = t
		cr.Frames[i] = int(math.Round(t * testFPS))
		cr.Dist[i] = float64(i) / float64(n)
	}
	cr.ComparisonDuration = float64(n) / testFPS
	return &Context{
		FPS:  testFPS,
		Corr: cr,
		Signals: Signals{
			Slow:                testStream(n, 0),
			Fast:                testStream(n, 7),
			TimeDelta:           wave(n, 120, 0.3, 0.1),
			TimeDeltaScale:      0.5,
			LineDelta:           wave(n, 100, 2, 0),
			LineDeltaScale:      4,
			UnderOversteerScale: 0.08,
			SteeringScale:       110,
		},
		Settings: Settings{
			SpeedUnit:           "kmh",
			SpeedHold:           2,
			GearRPMHold:         3,
			ABSDebounceFrames:   2,
			PedalHeadroom:       1.12,
			MaxBrakeDelay:       0.003,
			MaxBrakeOverridePct: 35,
		},
	}
}

func newTestCompositor(t *testing.T, ctx *Context, w, h int, before, after float64) *Compositor {
	t.Helper()
	layout := StackLayout(config.KnownWidgets, nil, w, h)
	c, err := New(ctx, w, h, layout, before, after)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func stateOf(c *Compositor, name string) *widgetState {
	for _, ws := range c.widgets {
		if ws.name == name {
			return ws
		}
	}
	return nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func renderCopy(t *testing.T, c *Compositor, i int) []byte {
	t.Helper()
	img, err := c.Render(i)
	require.NoError(t, err)
	return bytes.Clone(img.Pix)
}

func TestRenderIsIdempotent(t *testing.T) {
	ctx := testContext(120)
	a := newTestCompositor(t, ctx, 320, 700, 2, 2)
	b := newTestCompositor(t, ctx, 320, 700, 2, 2)

	var first [][]byte
	for i := 0; i < 40; i++ {
		pa := renderCopy(t, a, i)
		pb := renderCopy(t, b, i)
		require.True(t, bytes.Equal(pa, pb), "frame %d differs between instances", i)
		first = append(first, pa)
	}
	// Restarting the same instance from frame 0 reproduces the first run.
	for i := 0; i < 40; i++ {
		require.True(t, bytes.Equal(first[i], renderCopy(t, a, i)), "frame %d differs on second run", i)
	}
}

func TestIncrementalMatchesFullRedraw(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		before float64
		after  float64
		last   int
	}{
		{"several columns per frame", 320, 2, 2, 150},
		{"sub pixel scroll", 40, 2, 2, 97},
		{"asymmetric window", 200, 1, 3, 131},
		{"window wider than data", 120, 10, 10, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(240)
			inc := newTestCompositor(t, ctx, tt.width, 700, tt.before, tt.after)
			var got []byte
			for i := 0; i <= tt.last; i++ {
				got = renderCopy(t, inc, i)
			}
			full := newTestCompositor(t, ctx, tt.width, 700, tt.before, tt.after)
			want := renderCopy(t, full, tt.last)

			for _, name := range []string{config.WidgetThrottleBrake, config.WidgetSteering, config.WidgetDelta} {
				a, b := stateOf(inc, name), stateOf(full, name)
				require.NotNil(t, a)
				assert.True(t, bytes.Equal(a.ring[a.cur].Pix, b.ring[b.cur].Pix), "%s dynamic layer differs", name)
			}
			assert.True(t, bytes.Equal(want, got), "canvas differs")
		})
	}
}

func TestPingPongBuffersAreReused(t *testing.T) {
	c := newTestCompositor(t, testContext(120), 320, 700, 2, 2)
	_, err := c.Render(0)
	require.NoError(t, err)

	ws := stateOf(c, config.WidgetSteering)
	require.NotNil(t, ws)
	r0, r1 := ws.ring[0], ws.ring[1]
	require.NotNil(t, r0)
	require.NotNil(t, r1)
	assert.NotSame(t, r0, r1)
	static := ws.static

	for i := 1; i < 60; i++ {
		_, err := c.Render(i)
		require.NoError(t, err)
		assert.Same(t, r0, ws.ring[0])
		assert.Same(t, r1, ws.ring[1])
		assert.Equal(t, i%2, ws.cur)
	}
	assert.Same(t, static, ws.static)
	assert.Equal(t, 1, ws.reinits)
}

func TestStateTransitions(t *testing.T) {
	w, h := 320, 700
	c := newTestCompositor(t, testContext(120), w, h, 2, 2)
	name := config.WidgetSteering
	assert.Equal(t, StateUninitialized, c.State(name))

	steps := []struct {
		desc    string
		apply   func()
		frame   int
		reinits int
	}{
		{"first frame", nil, 0, 1},
		{"next frame", nil, 1, 1},
		{"seek forward", nil, 5, 2},
		{"continue", nil, 6, 2},
		{"seek back", nil, 3, 3},
		{"window change", func() { c.SetWindow(3, 3) }, 4, 4},
		{"same window", func() { c.SetWindow(3, 1) }, 5, 4},
		{"geometry change", func() {
			layout := StackLayout(config.KnownWidgets, map[string]image.Rectangle{name: image.Rect(0, 0, 200, 100)}, w, h)
			require.NoError(t, c.SetLayout(layout))
		}, 6, 5},
	}
	for _, s := range steps {
		if s.apply != nil {
			s.apply()
		}
		_, err := c.Render(s.frame)
		require.NoError(t, err, s.desc)
		assert.Equal(t, StateSteady, c.State(name), s.desc)
		assert.Equal(t, s.reinits, stateOf(c, name).reinits, s.desc)
	}
}

func TestMissingSignalsKeepAxes(t *testing.T) {
	ctx := testContext(90)
	ctx.Signals = Signals{}

	c := newTestCompositor(t, ctx, 320, 700, 1, 1)
	for i := 0; i < 10; i++ {
		_, err := c.Render(i)
		require.NoError(t, err)
	}
	for _, ws := range c.widgets {
		if !ws.scrolls {
			continue
		}
		assert.True(t, allZero(ws.ring[ws.cur].Pix), "%s draws a curve without data", ws.name)
		assert.NotZero(t, ws.static.Pix[3], "%s has no background", ws.name)
	}
}

func TestWidgetWithoutDataIsolated(t *testing.T) {
	ctx := testContext(90)
	ctx.Signals.LineDelta = resample.Series{}

	c := newTestCompositor(t, ctx, 320, 700, 1, 1)
	_, err := c.Render(30)
	require.NoError(t, err)

	empty := func(name string) bool {
		ws := stateOf(c, name)
		return allZero(ws.ring[ws.cur].Pix)
	}
	assert.True(t, empty(config.WidgetLineDelta))
	assert.False(t, empty(config.WidgetSteering))
}

func TestWindowFramesUseLargerHalf(t *testing.T) {
	c := newTestCompositor(t, testContext(30), 320, 700, 2, 5)
	assert.Equal(t, 150, c.windowFrames())
	c.SetWindow(0, 0)
	assert.Equal(t, 1, c.windowFrames())
}

func TestComparisonSampling(t *testing.T) {
	ctx := testContext(60)
	for i := range ctx.Corr.Times {
		ctx.Corr.Times[i] = float64(i) / testFPS * 0.5
	}
	assert.InDelta(t, 5, ctx.comparisonFrame(10), 1e-9)
	assert.InDelta(t, 5.25, ctx.comparisonFrame(10.5), 1e-9)

	_, ok := ctx.fastAt(ctx.Signals.Fast.Speed, -0.5)
	assert.False(t, ok)
	_, ok = ctx.slowAt(resample.Series{}, 3)
	assert.False(t, ok)
	v, ok := ctx.slowAt(ctx.Signals.Slow.Speed, 3)
	assert.True(t, ok)
	assert.InDelta(t, ctx.Signals.Slow.Speed.Values[3], v, 1e-12)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(&Context{FPS: 30}, 10, 10, nil, 1, 1)
	assert.Error(t, err)

	ctx := testContext(10)
	_, err = New(ctx, 0, 10, nil, 1, 1)
	assert.Error(t, err)

	_, err = New(ctx, 100, 100, []Layout{{Name: "radar", Rect: image.Rect(0, 0, 50, 50)}}, 1, 1)
	assert.Error(t, err)

	_, err = New(ctx, 100, 100, []Layout{
		{Name: config.WidgetSpeed, Rect: image.Rect(0, 0, 50, 50)},
		{Name: config.WidgetSpeed, Rect: image.Rect(0, 50, 50, 100)},
	}, 1, 1)
	assert.Error(t, err)
}

func TestStackLayout(t *testing.T) {
	names := []string{config.WidgetSpeed, config.WidgetSteering, config.WidgetDelta}
	got := StackLayout(names, nil, 320, 364)
	want := []Layout{
		{Name: config.WidgetSpeed, Rect: image.Rect(0, 0, 320, 64)},
		{Name: config.WidgetSteering, Rect: image.Rect(0, 64, 320, 214)},
		{Name: config.WidgetDelta, Rect: image.Rect(0, 214, 320, 364)},
	}
	assert.Equal(t, want, got)

	placed := map[string]image.Rectangle{config.WidgetSteering: image.Rect(10, 10, 100, 100)}
	got = StackLayout(names, placed, 320, 364)
	assert.Equal(t, image.Rect(10, 10, 100, 100), got[1].Rect)
	assert.Equal(t, image.Rect(0, 64, 320, 364), got[2].Rect)
}

func TestFormatLineDelta(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.00 m"},
		{0.004, "0.00 m"},
		{-0.0049, "0.00 m"},
		{1.234, "L 1.23 m"},
		{-0.5, "R 0.50 m"},
		{math.NaN(), "--"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatLineDelta(tt.in))
	}
}

func TestFormatGear(t *testing.T) {
	assert.Equal(t, "R", formatGear(-1))
	assert.Equal(t, "N", formatGear(0))
	assert.Equal(t, "4", formatGear(3.6))
	assert.Equal(t, "--", formatGear(math.NaN()))
}
