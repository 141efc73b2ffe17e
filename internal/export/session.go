package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/banshee-data/lapsync/internal/media"
	"github.com/banshee-data/lapsync/internal/syncmap"
	"github.com/banshee-data/lapsync/internal/telemetry"
)

// session is everything derived from the inputs before rendering.
type session struct {
	slowInfo, fastInfo media.Info
	slowTel, fastTel   telemetry.Provider
	slowTrace          *syncmap.Trace
	fastTrace          *syncmap.Trace
	correlator         *syncmap.Correlator
	corr               *syncmap.Correspondence
	window             syncmap.Window
}

func (e *Exporter) prepare(ctx context.Context, in Inputs) (*session, error) {
	s := &session{}
	var err error
	if s.slowInfo, err = e.probe(ctx, in.SlowVideo); err != nil {
		return nil, err
	}
	if s.fastInfo, err = e.probe(ctx, in.FastVideo); err != nil {
		return nil, err
	}
	if err := media.ValidateFrameRates(s.slowInfo, s.fastInfo); err != nil {
		return nil, err
	}
	fps := s.slowInfo.FPS

	if s.slowTel, err = e.loadTelemetry(in.SlowTelemetry); err != nil {
		return nil, err
	}
	if s.fastTel, err = e.loadTelemetry(in.FastTelemetry); err != nil {
		return nil, err
	}

	if s.slowTrace, err = syncmap.BuildTrace(s.slowTel, s.slowInfo.Duration); err != nil {
		return nil, fmt.Errorf("slow telemetry %s: %w", in.SlowTelemetry, err)
	}
	if s.fastTrace, err = syncmap.BuildTrace(s.fastTel, s.fastInfo.Duration); err != nil {
		return nil, fmt.Errorf("fast telemetry %s: %w", in.FastTelemetry, err)
	}
	if s.correlator, err = syncmap.NewCorrelator(s.slowTrace, s.fastTrace, fps); err != nil {
		return nil, err
	}
	if s.corr, err = e.correlate(s.correlator, s.fastTrace, in, fps); err != nil {
		return nil, err
	}
	if s.window, err = syncmap.CommonWindow(s.corr); err != nil {
		return nil, err
	}
	return s, nil
}

// probe returns the stream info of a video, from the cache when the file is
// unchanged.
func (e *Exporter) probe(ctx context.Context, path string) (media.Info, error) {
	if e.cache == nil {
		return e.prober.Probe(ctx, path)
	}
	sig, err := e.cache.Signature(path)
	if err != nil {
		return media.Info{}, err
	}
	if info, ok, err := e.cache.GetProbe(sig); err != nil {
		e.logf("probe cache: %v", err)
	} else if ok {
		return info, nil
	}
	info, err := e.prober.Probe(ctx, path)
	if err != nil {
		return media.Info{}, err
	}
	if err := e.cache.PutProbe(sig, info); err != nil {
		e.logf("probe cache: %v", err)
	}
	return info, nil
}

func (e *Exporter) loadTelemetry(path string) (telemetry.Provider, error) {
	data, err := e.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read telemetry: %w", err)
	}
	tbl, err := telemetry.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("telemetry %s: %w", path, err)
	}
	return tbl, nil
}

// correlate runs the correlator unless the cache holds a correspondence for
// the same telemetry files, frame rate and media lengths.
func (e *Exporter) correlate(c *syncmap.Correlator, fast *syncmap.Trace, in Inputs, fps float64) (*syncmap.Correspondence, error) {
	if e.cache == nil {
		return c.Run(), nil
	}
	slowSig, err := e.cache.Signature(in.SlowTelemetry)
	if err != nil {
		return nil, err
	}
	fastSig, err := e.cache.Signature(in.FastTelemetry)
	if err != nil {
		return nil, err
	}
	cr, ok, err := e.cache.GetCorrespondence(slowSig, fastSig, fps)
	if err != nil {
		e.logf("correspondence cache: %v", err)
	}
	if ok && cr.Len() == c.ReferenceFrames() && cr.ComparisonFrames == c.ComparisonFrames() &&
		cr.ComparisonDuration == fast.Duration {
		e.logf("using cached correspondence (%d frames)", cr.Len())
		return cr, nil
	}
	cr = c.Run()
	if err := e.cache.PutCorrespondence(slowSig, fastSig, fps, cr); err != nil {
		e.logf("correspondence cache: %v", err)
	}
	return cr, nil
}
