// Package export runs one comparison export end to end: it validates and
// probes the inputs, aligns the two laps by lap distance, derives the HUD
// signals, and streams rendered HUD frames into an ffmpeg process that
// composes them with both source videos.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/banshee-data/lapsync/internal/config"
	"github.com/banshee-data/lapsync/internal/diagnostics"
	"github.com/banshee-data/lapsync/internal/encoder"
	"github.com/banshee-data/lapsync/internal/fsutil"
	"github.com/banshee-data/lapsync/internal/hud"
	"github.com/banshee-data/lapsync/internal/media"
	"github.com/banshee-data/lapsync/internal/monitoring"
	"github.com/banshee-data/lapsync/internal/security"
	"github.com/banshee-data/lapsync/internal/sessioncache"
	"github.com/banshee-data/lapsync/internal/sink"
	"github.com/banshee-data/lapsync/internal/syncmap"
	"github.com/banshee-data/lapsync/internal/timeutil"
)

// Inputs names the files of one export. Slow is the reference lap.
type Inputs struct {
	SlowVideo     string
	FastVideo     string
	SlowTelemetry string
	FastTelemetry string
	Output        string
}

// Prober discovers the stream properties of a video file.
type Prober interface {
	Probe(ctx context.Context, path string) (media.Info, error)
}

// Encoder is a running encoder accepting raw RGBA frames.
type Encoder interface {
	Stdin() io.Writer
	Wait() error
	Abort()
}

// StartFunc launches an encoder for a plan.
type StartFunc func(ctx context.Context, p *encoder.Plan) (Encoder, error)

// StartProcess starts the plan as an ffmpeg child process.
func StartProcess(ctx context.Context, p *encoder.Plan) (Encoder, error) {
	proc, err := encoder.Start(ctx, p)
	if err != nil {
		return nil, err
	}
	return proc, nil
}

// Options configures an Exporter. Config is required; other zero values
// select the real filesystem, clock, ffprobe and ffmpeg.
type Options struct {
	Config *config.ExportConfig
	Prober Prober
	Start  StartFunc
	// Cache is optional. The Exporter never closes it.
	Cache *sessioncache.Cache
	FS    fsutil.FileSystem
	Clock timeutil.Clock

	// DryRun builds and prints the plan without rendering.
	DryRun bool
	// DiagnosticsDir overrides the configured sync report directory.
	DiagnosticsDir string
	// Stdout receives the dry-run plan.
	Stdout io.Writer
}

// Result describes a finished export.
type Result struct {
	RunID       string
	Plan        *encoder.Plan
	Window      syncmap.Window
	Written     int
	Diagnostics []string
	Sync        diagnostics.Summary
}

// Exporter runs exports. It holds no per-export state, so one Exporter may
// run several exports one after another.
type Exporter struct {
	cfg            *config.ExportConfig
	prober         Prober
	start          StartFunc
	cache          *sessioncache.Cache
	fs             fsutil.FileSystem
	clock          timeutil.Clock
	dryRun         bool
	diagnosticsDir string
	stdout         io.Writer
	logf           func(string, ...interface{})
}

// New creates an Exporter.
func New(opts Options) (*Exporter, error) {
	if opts.Config == nil {
		return nil, errors.New("export: config is required")
	}
	e := &Exporter{
		cfg:            opts.Config,
		prober:         opts.Prober,
		start:          opts.Start,
		cache:          opts.Cache,
		fs:             opts.FS,
		clock:          opts.Clock,
		dryRun:         opts.DryRun,
		diagnosticsDir: opts.DiagnosticsDir,
		stdout:         opts.Stdout,
		logf:           monitoring.Tagged("export"),
	}
	if e.prober == nil {
		e.prober = media.NewProber()
	}
	if e.start == nil {
		e.start = StartProcess
	}
	if e.fs == nil {
		e.fs = fsutil.OSFileSystem{}
	}
	if e.clock == nil {
		e.clock = timeutil.RealClock{}
	}
	if e.stdout == nil {
		e.stdout = os.Stdout
	}
	if e.diagnosticsDir == "" {
		e.diagnosticsDir = e.cfg.GetDiagnosticsDir()
	}
	return e, nil
}

// Run performs one export. Fatal input problems (mismatched frame rates,
// missing lap distance, no common window) fail before the encoder starts.
func (e *Exporter) Run(ctx context.Context, in Inputs) (*Result, error) {
	if err := validateInputs(in); err != nil {
		return nil, err
	}

	sess, err := e.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	fps := sess.slowInfo.FPS
	e.logf("common window %s of %d reference frames at %.3f fps", sess.window, sess.corr.Len(), fps)

	res := &Result{Window: sess.window}
	report := diagnostics.NewReport(reportName(in.Output), sess.correlator, sess.corr, sess.window,
		sess.slowTel, sess.fastTel, e.cfg.GetSpeedUnit())
	res.Sync = report.Summary()
	e.logf("sync: %s", res.Sync)
	if e.diagnosticsDir != "" {
		paths, err := report.Write(e.fs, e.diagnosticsDir, reportName(in.Output))
		if err != nil {
			return nil, fmt.Errorf("failed to write diagnostics: %w", err)
		}
		res.Diagnostics = paths
	}

	w, h, err := config.ParsePreset(e.cfg.GetOutputPreset())
	if err != nil {
		return nil, err
	}
	geom, err := encoder.NewGeometry(w, h, e.cfg.GetHUDWidth())
	if err != nil {
		return nil, err
	}
	plan, err := encoder.BuildPlan(encoder.PlanInput{
		SlowVideo:     in.SlowVideo,
		FastVideo:     in.FastVideo,
		Output:        in.Output,
		Geometry:      geom,
		FPS:           fps,
		Window:        sess.window,
		Corr:          sess.corr,
		SegmentFrames: e.cfg.GetSyncSegmentFrames(),
		Codec:         e.cfg.GetVideoCodec(),
		PixelFormat:   e.cfg.GetPixelFormat(),
		ExtraArgs:     e.cfg.EncoderArgs,
	})
	if err != nil {
		return nil, err
	}
	res.Plan = plan

	if e.dryRun {
		fmt.Fprintln(e.stdout, plan.String())
		return res, nil
	}

	ctxHUD := &hud.Context{
		FPS:      fps,
		Corr:     sess.corr,
		Signals:  buildSignals(e.cfg, sess),
		Settings: buildSettings(e.cfg, fps),
	}
	comp, err := hud.New(ctxHUD, geom.HUD, geom.Height, widgetLayout(e.cfg, geom.HUD, geom.Height),
		e.cfg.GetBeforeSeconds(), e.cfg.GetAfterSeconds())
	if err != nil {
		return nil, err
	}
	defer comp.Close()

	res.RunID, err = e.startRun(in, plan.Frames)
	if err != nil {
		return nil, err
	}
	res.Written, err = e.render(ctx, plan, comp, geom, sess.window, res.RunID)
	if ferr := e.finishRun(res.RunID, res.Written, err); ferr != nil {
		e.logf("run %s: %v", res.RunID, ferr)
	}
	if err != nil {
		return res, err
	}
	e.logf("run %s: wrote %d frames to %s", res.RunID, res.Written, in.Output)
	return res, nil
}

// render streams every window frame into a freshly started encoder and
// returns the number of frames written.
func (e *Exporter) render(ctx context.Context, plan *encoder.Plan, comp *hud.Compositor, geom encoder.Geometry,
	win syncmap.Window, runID string) (int, error) {
	enc, err := e.start(ctx, plan)
	if err != nil {
		return 0, err
	}
	e.logf("run %s: rendering %d frames", runID, win.Len())
	out := sink.New(enc.Stdin(), geom.HUD, geom.Height, win.Len(),
		sink.LogProgress(e.clock, e.cfg.GetProgressInterval()))

	for i := win.Start; i <= win.End; i++ {
		if err := ctx.Err(); err != nil {
			enc.Abort()
			return out.Written(), fmt.Errorf("export cancelled at frame %d: %w", i, err)
		}
		img, err := comp.Render(i)
		if err != nil {
			enc.Abort()
			return out.Written(), fmt.Errorf("failed to render frame %d: %w", i, err)
		}
		if err := out.WriteFrame(img); err != nil {
			if errors.Is(err, sink.ErrBrokenPipe) {
				// The encoder exited early; its status says why.
				if werr := enc.Wait(); werr != nil {
					return out.Written(), fmt.Errorf("frame %d: %w (%v)", i, err, werr)
				}
				return out.Written(), fmt.Errorf("frame %d: %w", i, err)
			}
			enc.Abort()
			return out.Written(), fmt.Errorf("frame %d: %w", i, err)
		}
	}
	if err := enc.Wait(); err != nil {
		return out.Written(), err
	}
	return out.Written(), nil
}

func validateInputs(in Inputs) error {
	for name, p := range map[string]string{
		"slow video":     in.SlowVideo,
		"fast video":     in.FastVideo,
		"slow telemetry": in.SlowTelemetry,
		"fast telemetry": in.FastTelemetry,
	} {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%s path is required", name)
		}
	}
	return security.ValidateOutputPath(in.Output, in.SlowVideo, in.FastVideo, in.SlowTelemetry, in.FastTelemetry)
}

// reportName is the output file name without directory or extension.
func reportName(output string) string {
	base := filepath.Base(output)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// startRun records the run in the cache when one is configured.
func (e *Exporter) startRun(in Inputs, total int) (string, error) {
	if e.cache == nil {
		return uuid.NewString(), nil
	}
	return e.cache.StartRun(in.SlowVideo, in.FastVideo, in.Output, total)
}

func (e *Exporter) finishRun(id string, written int, runErr error) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.FinishRun(id, written, runErr)
}
