package export

import (
	"math"

	"github.com/banshee-data/lapsync/internal/config"
	"github.com/banshee-data/lapsync/internal/derived"
	"github.com/banshee-data/lapsync/internal/hud"
	"github.com/banshee-data/lapsync/internal/resample"
	"github.com/banshee-data/lapsync/internal/syncmap"
	"github.com/banshee-data/lapsync/internal/telemetry"
	"github.com/banshee-data/lapsync/internal/units"
)

// streamInput is one lap as seen by the signal builder.
type streamInput struct {
	tel      telemetry.Provider
	trace    *syncmap.Trace
	duration float64
}

// buildStream resamples one lap onto its own frame grid.
func buildStream(cfg *config.ExportConfig, in streamInput, fps float64) (hud.Stream, derived.Motion) {
	r := resample.New(in.tel, in.duration, fps)
	unit := cfg.GetSpeedUnit()

	var st hud.Stream
	st.Speed = convertSpeed(r.Linear(telemetry.ColSpeed), unit)
	if !st.Speed.Empty() {
		threshold, lookahead := cfg.GetMinSpeedThreshold(), cfg.GetMinSpeedLookaheadS()
		st.MinSpeed = resample.Series{Name: "speed_min",
			Values: derived.ConfirmedMin(st.Speed.Values, fps, threshold, lookahead)}
		st.MaxSpeed = resample.Series{Name: "speed_max",
			Values: derived.ConfirmedMax(st.Speed.Values, fps, threshold, lookahead)}
	}
	st.Gear = r.Nearest(telemetry.ColGear)
	st.RPM = r.Linear(telemetry.ColRPM)

	if cfg.GetPedalSampleMode() == config.PedalModeLegacy {
		st.Throttle = r.Index(telemetry.ColThrottle)
		st.Brake = r.Index(telemetry.ColBrake)
		st.ABS = r.Index(telemetry.ColABS)
	} else {
		st.Throttle = r.Linear(telemetry.ColThrottle)
		st.Brake = r.Linear(telemetry.ColBrake)
		// Vote over the debounce window; the widget debounces across frames.
		st.ABS = r.Majority(telemetry.ColABS, cfg.GetABSDebounceMS()/1000)
	}

	st.Steering = derived.Degrees(r.Linear(telemetry.ColSteering))
	st.LapDist = lapDistance(in.trace, r.Frames(), fps)

	m := derived.Motion{
		Positions: derived.Positions{
			Lat: r.Linear(telemetry.ColLat),
			Lon: r.Linear(telemetry.ColLon),
		},
		Yaw: r.Angle(telemetry.ColYaw),
	}
	return st, m
}

// lapDistance samples the unwrapped trace at every frame and folds it back
// into a lap fraction, so a start/finish crossing never interpolates
// through the middle of the lap.
func lapDistance(tr *syncmap.Trace, frames int, fps float64) resample.Series {
	out := make([]float64, frames)
	for i := range out {
		d := tr.DistAt(float64(i) / fps)
		out[i] = d - math.Floor(d)
	}
	return resample.Series{Name: telemetry.ColLapDist, Values: out}
}

func convertSpeed(s resample.Series, unit string) resample.Series {
	if s.Empty() {
		return s
	}
	out := make([]float64, s.Len())
	for i, v := range s.Values {
		out[i] = units.ConvertSpeed(v, unit)
	}
	return resample.Series{Name: s.Name, Values: out}
}

// buildSignals derives every HUD input of a prepared session.
func buildSignals(cfg *config.ExportConfig, s *session) hud.Signals {
	fps := s.slowInfo.FPS
	slow, slowMotion := buildStream(cfg, streamInput{tel: s.slowTel, trace: s.slowTrace, duration: s.slowInfo.Duration}, fps)
	fast, fastMotion := buildStream(cfg, streamInput{tel: s.fastTel, trace: s.fastTrace, duration: s.fastInfo.Duration}, fps)

	sig := hud.Signals{Slow: slow, Fast: fast}
	sig.TimeDelta, sig.TimeDeltaScale = derived.TimeDelta(s.corr)
	sig.LineDelta, sig.LineDeltaScale = derived.LineDelta(slowMotion.Positions, fastMotion.Positions, s.corr.Times, fps)
	sig.Slow.UnderOversteer, sig.Fast.UnderOversteer, sig.UnderOversteerScale =
		derived.UnderOversteer(slowMotion, fastMotion, fps, cfg.GetUndersteerCurveCenterPct())
	sig.SteeringScale = derived.SteeringScale(slow.Steering.Values, fast.Steering.Values, cfg.GetSteeringHeadroom())
	return sig
}

// buildSettings converts the config into render settings at fps.
func buildSettings(cfg *config.ExportConfig, fps float64) hud.Settings {
	return hud.Settings{
		SpeedUnit:           cfg.GetSpeedUnit(),
		SpeedHold:           derived.UpdateEvery(fps, cfg.GetSpeedUpdateHz()),
		GearRPMHold:         derived.UpdateEvery(fps, cfg.GetGearRPMUpdateHz()),
		ABSDebounceFrames:   derived.DebounceCount(cfg.GetABSDebounceMS(), fps),
		PedalHeadroom:       cfg.GetPedalHeadroom(),
		MaxBrakeDelay:       cfg.GetMaxBrakeDelayDist(),
		MaxBrakeOverridePct: cfg.GetMaxBrakeOverridePct(),
	}
}
