package sessioncache

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lapsync/internal/fsutil"
	"github.com/banshee-data/lapsync/internal/media"
	"github.com/banshee-data/lapsync/internal/syncmap"
	"github.com/banshee-data/lapsync/internal/timeutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestCache(t *testing.T) (*Cache, *fsutil.MemoryFileSystem, *timeutil.MockClock) {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	clock := timeutil.NewMockClock(epoch)
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), Options{FS: mfs, Clock: clock})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mfs, clock
}

func TestOpen_AppliesMigrations(t *testing.T) {
	c, _, _ := openTestCache(t)

	version, dirty, err := c.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	for _, table := range []string{"probes", "correspondences", "runs"} {
		var name string
		err := c.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	mfs := fsutil.NewMemoryFileSystem()
	mfs.WriteFile("/v/slow.mp4", []byte("abc"), epoch)

	c, err := Open(path, Options{FS: mfs})
	require.NoError(t, err)
	sig, err := c.Signature("/v/slow.mp4")
	require.NoError(t, err)
	require.NoError(t, c.PutProbe(sig, media.Info{Path: "/v/slow.mp4", Width: 640, Height: 360, FPS: 30, Duration: 10}))
	require.NoError(t, c.Close())

	c, err = Open(path, Options{FS: mfs})
	require.NoError(t, err)
	defer c.Close()
	_, ok, err := c.GetProbe(sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpen_DirtySchemaFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path, Options{FS: fsutil.NewMemoryFileSystem()})
	require.NoError(t, err)
	_, err = c.db.Exec(`UPDATE schema_migrations SET dirty = 1`)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = Open(path, Options{FS: fsutil.NewMemoryFileSystem()})
	assert.Error(t, err)
}

func TestSignature(t *testing.T) {
	c, mfs, _ := openTestCache(t)
	mfs.WriteFile("/v/slow.mp4", []byte("12345"), epoch)

	sig, err := c.Signature("/v/slow.mp4")
	require.NoError(t, err)
	assert.Equal(t, Signature{Path: "/v/slow.mp4", ModTime: epoch.UnixNano(), Size: 5}, sig)

	_, err = c.Signature("/v/missing.mp4")
	assert.Error(t, err)
}

func TestProbeRoundTrip(t *testing.T) {
	c, mfs, _ := openTestCache(t)
	mfs.WriteFile("/v/slow.mp4", []byte("abc"), epoch)
	sig, err := c.Signature("/v/slow.mp4")
	require.NoError(t, err)

	_, ok, err := c.GetProbe(sig)
	require.NoError(t, err)
	assert.False(t, ok)

	want := media.Info{Path: "/v/slow.mp4", Width: 1280, Height: 720, FPS: 59.94, Duration: 92.5}
	require.NoError(t, c.PutProbe(sig, want))

	got, ok, err := c.GetProbe(sig)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	// A modified file no longer matches.
	changed := sig
	changed.ModTime++
	_, ok, err = c.GetProbe(changed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCorrespondenceRoundTrip(t *testing.T) {
	c, mfs, _ := openTestCache(t)
	mfs.WriteFile("/t/slow.csv", []byte("slow"), epoch)
	mfs.WriteFile("/t/fast.csv", []byte("fast!"), epoch)
	slow, err := c.Signature("/t/slow.csv")
	require.NoError(t, err)
	fast, err := c.Signature("/t/fast.csv")
	require.NoError(t, err)

	want := &syncmap.Correspondence{
		FPS:                30,
		Frames:             []int{0, 1, 1, 2},
		Times:              []float64{0, 0.031, 0.062, 0.094},
		Dist:               []float64{0, 1.5, 3, 4.5},
		ComparisonDuration: 12.5,
		ComparisonFrames:   375,
	}
	require.NoError(t, c.PutCorrespondence(slow, fast, 30, want))

	got, ok, err := c.GetCorrespondence(slow, fast, 30)
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("correspondence mismatch (-want +got):\n%s", diff)
	}

	_, ok, err = c.GetCorrespondence(slow, fast, 60)
	require.NoError(t, err)
	assert.False(t, ok, "different fps is a different entry")

	_, ok, err = c.GetCorrespondence(fast, slow, 30)
	require.NoError(t, err)
	assert.False(t, ok, "pair order matters")
}

func TestPrune(t *testing.T) {
	c, mfs, _ := openTestCache(t)
	for _, p := range []string{"/v/a.mp4", "/v/b.mp4", "/v/c.mp4"} {
		mfs.WriteFile(p, []byte(p), epoch)
		sig, err := c.Signature(p)
		require.NoError(t, err)
		require.NoError(t, c.PutProbe(sig, media.Info{Path: p, Width: 2, Height: 2, FPS: 30, Duration: 1}))
	}
	a, _ := c.Signature("/v/a.mp4")
	b, _ := c.Signature("/v/b.mp4")
	require.NoError(t, c.PutCorrespondence(a, b, 30, &syncmap.Correspondence{FPS: 30}))

	// b changes on disk; c is no longer in use.
	mfs.WriteFile("/v/b.mp4", []byte("rewritten"), epoch.Add(time.Hour))

	n, err := c.Prune([]string{"/v/a.mp4", "/v/b.mp4"})
	require.NoError(t, err)
	assert.Equal(t, 3, n, "b probe, c probe and the a/b correspondence")

	_, ok, err := c.GetProbe(a)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err = c.Prune([]string{"/v/a.mp4"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRuns(t *testing.T) {
	c, _, clock := openTestCache(t)

	first, err := c.StartRun("/v/slow.mp4", "/v/fast.mp4", "/out/a.mp4", 300)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	require.NoError(t, c.FinishRun(first, 300, nil))

	clock.Advance(time.Minute)
	second, err := c.StartRun("/v/slow.mp4", "/v/fast.mp4", "/out/b.mp4", 300)
	require.NoError(t, err)
	clock.Advance(500 * time.Millisecond)
	require.NoError(t, c.FinishRun(second, 120, errors.New("broken pipe")))

	assert.NotEqual(t, first, second)

	runs, err := c.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, RunFailed, runs[0].Status)
	assert.Equal(t, "broken pipe", runs[0].Error)
	assert.Equal(t, 120, runs[0].FramesWritten)
	assert.True(t, runs[0].StartedAt.Equal(epoch.Add(3*time.Minute)))

	assert.Equal(t, first, runs[1].ID)
	assert.Equal(t, RunFinished, runs[1].Status)
	assert.Equal(t, 300, runs[1].FramesTotal)
	require.NotNil(t, runs[1].FinishedAt)
	assert.True(t, runs[1].FinishedAt.Equal(epoch.Add(2*time.Minute)))

	runs, err = c.Runs(1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestFinishRun_Unknown(t *testing.T) {
	c, _, _ := openTestCache(t)
	assert.Error(t, c.FinishRun("no-such-run", 0, nil))
}

func TestRuns_Unfinished(t *testing.T) {
	c, _, _ := openTestCache(t)
	id, err := c.StartRun("s", "f", "o", 10)
	require.NoError(t, err)

	runs, err := c.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, RunRunning, runs[0].Status)
	assert.Nil(t, runs[0].FinishedAt)
}
