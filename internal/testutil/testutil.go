// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers and synthetic lap recordings
// so that the sync, resampling, derived-signal and HUD tests all exercise the
// same data shapes.
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/lapsync/internal/telemetry"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertFloatNear fails the test if got and want differ by more than tol.
func AssertFloatNear(t testing.TB, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("got %v, want %v (tol %v)", got, want, tol)
	}
}

// Lap describes a synthetic recording on a circular track.
type Lap struct {
	// Samples is the number of telemetry rows.
	Samples int
	// Duration is the recording length in seconds.
	Duration float64
	// LapTime is the time for one full lap in seconds.
	LapTime float64
	// StartFrac is the lap distance fraction at t=0.
	StartFrac float64
	// Radius of the circular track in metres.
	Radius float64
}

// DefaultLap is a 20 s recording of a 40 s lap sampled at 60 Hz.
var DefaultLap = Lap{Samples: 1201, Duration: 20, LapTime: 40, StartFrac: 0, Radius: 200}

// Table builds the telemetry table: time, wrapped lap distance, speed,
// throttle/brake, steering, gear/RPM, GPS position on a circle around
// (48.0, 11.0) and yaw matching the direction of travel.
func (l Lap) Table() *telemetry.Table {
	n := l.Samples
	tm := make([]float64, n)
	dist := make([]float64, n)
	speed := make([]float64, n)
	thr := make([]float64, n)
	brk := make([]float64, n)
	steer := make([]float64, n)
	gear := make([]float64, n)
	rpm := make([]float64, n)
	lat := make([]float64, n)
	lon := make([]float64, n)
	yaw := make([]float64, n)

	const lat0, lon0, earth = 48.0, 11.0, 6378137.0
	circ := 2 * math.Pi * l.Radius
	for i := 0; i < n; i++ {
		t := float64(i) * l.Duration / float64(n-1)
		frac := l.StartFrac + t/l.LapTime
		tm[i] = t
		dist[i] = frac - math.Floor(frac)
		speed[i] = circ / l.LapTime
		thr[i] = 0.5 + 0.5*math.Sin(t)
		brk[i] = math.Max(0, -math.Sin(t))
		steer[i] = 0.3 * math.Sin(t/2)
		gear[i] = float64(3 + int(t)%2)
		rpm[i] = 6000 + 1000*math.Sin(t)

		ang := 2 * math.Pi * frac
		x := l.Radius * math.Cos(ang)
		y := l.Radius * math.Sin(ang)
		lat[i] = lat0 + (y/earth)*180/math.Pi
		lon[i] = lon0 + (x/(earth*math.Cos(lat0*math.Pi/180)))*180/math.Pi
		// Counter-clockwise travel: heading is the tangent angle.
		yaw[i] = math.Atan2(math.Cos(ang), -math.Sin(ang))
	}

	tbl := telemetry.NewTable(n)
	tbl.Set(telemetry.ColTime, tm)
	tbl.Set(telemetry.ColLapDist, dist)
	tbl.Set(telemetry.ColSpeed, speed)
	tbl.Set(telemetry.ColThrottle, thr)
	tbl.Set(telemetry.ColBrake, brk)
	tbl.Set(telemetry.ColABS, make([]float64, n))
	tbl.Set(telemetry.ColSteering, steer)
	tbl.Set(telemetry.ColGear, gear)
	tbl.Set(telemetry.ColRPM, rpm)
	tbl.Set(telemetry.ColLat, lat)
	tbl.Set(telemetry.ColLon, lon)
	tbl.Set(telemetry.ColYaw, yaw)
	return tbl
}
