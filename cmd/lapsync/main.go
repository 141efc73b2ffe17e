// Command lapsync renders a side-by-side coaching video of two laps with a
// telemetry HUD between them. The laps are aligned frame by frame by lap
// distance, so the comparison video is time-warped to stay level with the
// reference.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/banshee-data/lapsync/internal/config"
	"github.com/banshee-data/lapsync/internal/export"
	"github.com/banshee-data/lapsync/internal/sessioncache"
	"github.com/banshee-data/lapsync/internal/version"
)

var (
	slowVideo     = flag.String("slow-video", "", "Reference lap video")
	fastVideo     = flag.String("fast-video", "", "Comparison lap video")
	slowTelemetry = flag.String("slow-telemetry", "", "Reference lap telemetry CSV")
	fastTelemetry = flag.String("fast-telemetry", "", "Comparison lap telemetry CSV")
	output        = flag.String("output", "compare.mp4", "Output video file")
	configFile    = flag.String("config", "", "Export config JSON (defaults when empty)")
	dryRun        = flag.Bool("dry-run", false, "Print the ffmpeg command and exit")
	diagDir       = flag.String("diagnostics", "", "Write sync diagnostics (PNG and HTML) to this directory")
	cachePath     = flag.String("cache", "", "Session cache database (overrides cache_path)")
	pruneCache    = flag.Bool("prune-cache", false, "Drop cache entries of files other than these inputs")
	listRuns      = flag.Int("runs", 0, "List the N most recent exports from the cache and exit")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func loadConfig(path string) (*config.ExportConfig, error) {
	if path == "" {
		return config.DefaultExportConfig(), nil
	}
	return config.LoadExportConfig(path)
}

// withCache opens the cache at path (none when empty), runs fn and closes
// the cache before returning fn's error.
func withCache(path string, fn func(*sessioncache.Cache) error) error {
	if path == "" {
		return fn(nil)
	}
	cache, err := sessioncache.Open(path, sessioncache.Options{})
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer cache.Close()
	return fn(cache)
}

func printRuns(cache *sessioncache.Cache, limit int) error {
	if cache == nil {
		return fmt.Errorf("-runs needs a cache (-cache or cache_path)")
	}
	runs, err := cache.Runs(limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %-8s %d/%d  %s\n", r.ID, r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Status, r.FramesWritten, r.FramesTotal, r.OutputPath)
	}
	return nil
}

func runExport(ctx context.Context, cfg *config.ExportConfig, cache *sessioncache.Cache) error {
	in := export.Inputs{
		SlowVideo:     *slowVideo,
		FastVideo:     *fastVideo,
		SlowTelemetry: *slowTelemetry,
		FastTelemetry: *fastTelemetry,
		Output:        *output,
	}

	if *pruneCache && cache != nil {
		n, err := cache.Prune([]string{in.SlowVideo, in.FastVideo, in.SlowTelemetry, in.FastTelemetry})
		if err != nil {
			return fmt.Errorf("failed to prune cache: %w", err)
		}
		log.Printf("pruned %d cache entries", n)
	}

	e, err := export.New(export.Options{
		Config:         cfg,
		Cache:          cache,
		DryRun:         *dryRun,
		DiagnosticsDir: *diagDir,
	})
	if err != nil {
		return fmt.Errorf("failed to create exporter: %w", err)
	}

	res, err := e.Run(ctx, in)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if !*dryRun {
		log.Printf("export %s complete: %d frames, %s", res.RunID, res.Written, res.Sync)
	}
	for _, p := range res.Diagnostics {
		log.Printf("diagnostics: %s", p)
	}
	return nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	path := cfg.GetCachePath()
	if *cachePath != "" {
		path = *cachePath
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = withCache(path, func(cache *sessioncache.Cache) error {
		if *listRuns > 0 {
			return printRuns(cache, *listRuns)
		}
		return runExport(ctx, cfg, cache)
	})
	stop()
	if err != nil {
		log.Fatal(err)
	}
}
