// Package sessioncache is the exporter's on-disk cache of probe results and
// frame correspondences, keyed by the content signature (path, mtime, size)
// of the files they were derived from. It also records export runs.
package sessioncache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/lapsync/internal/fsutil"
	"github.com/banshee-data/lapsync/internal/media"
	"github.com/banshee-data/lapsync/internal/monitoring"
	"github.com/banshee-data/lapsync/internal/syncmap"
	"github.com/banshee-data/lapsync/internal/timeutil"
)

// Options configures a Cache. Zero values use the real filesystem and clock.
type Options struct {
	FS    fsutil.FileSystem
	Clock timeutil.Clock
}

// Cache is owned by one orchestrator. It is safe for sequential use.
type Cache struct {
	db    *sql.DB
	fs    fsutil.FileSystem
	clock timeutil.Clock
	logf  func(string, ...interface{})
}

// Signature identifies the content of a file by path, modification time and
// size.
type Signature struct {
	Path    string
	ModTime int64 // unix nanoseconds
	Size    int64
}

// Open opens or creates the cache database at path and migrates its schema.
func Open(path string, opts Options) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure cache: %w", err)
	}

	c := &Cache{db: db, fs: opts.FS, clock: opts.Clock, logf: monitoring.Tagged("cache")}
	if c.fs == nil {
		c.fs = fsutil.OSFileSystem{}
	}
	if c.clock == nil {
		c.clock = timeutil.RealClock{}
	}
	if err := c.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	version, dirty, err := c.schemaVersion()
	if err != nil {
		db.Close()
		return nil, err
	}
	c.logf("opened %s at schema version %d (dirty=%v)", path, version, dirty)
	return c, nil
}

// Close closes the database.
func (c *Cache) Close() error { return c.db.Close() }

// Signature stats path and returns its content signature. Paths are made
// absolute so the same file always maps to the same key.
func (c *Cache) Signature(path string) (Signature, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Signature{}, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	info, err := c.fs.Stat(abs)
	if err != nil {
		return Signature{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return Signature{Path: abs, ModTime: info.ModTime().UnixNano(), Size: info.Size()}, nil
}

// GetProbe returns the cached probe of the file with signature sig.
func (c *Cache) GetProbe(sig Signature) (media.Info, bool, error) {
	var raw string
	err := c.db.QueryRow(
		`SELECT info_json FROM probes WHERE path = ? AND mtime_ns = ? AND size = ?`,
		sig.Path, sig.ModTime, sig.Size,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return media.Info{}, false, nil
	}
	if err != nil {
		return media.Info{}, false, fmt.Errorf("failed to read probe: %w", err)
	}
	var info media.Info
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return media.Info{}, false, fmt.Errorf("failed to decode probe: %w", err)
	}
	return info, true, nil
}

// PutProbe stores a probe result, replacing any older entry for the path.
func (c *Cache) PutProbe(sig Signature, info media.Info) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode probe: %w", err)
	}
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO probes (path, mtime_ns, size, info_json, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		sig.Path, sig.ModTime, sig.Size, string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to store probe: %w", err)
	}
	return nil
}

// GetCorrespondence returns the cached correspondence for a telemetry pair
// at fps.
func (c *Cache) GetCorrespondence(slow, fast Signature, fps float64) (*syncmap.Correspondence, bool, error) {
	var raw string
	err := c.db.QueryRow(
		`SELECT data_json FROM correspondences
		 WHERE slow_path = ? AND slow_mtime_ns = ? AND slow_size = ?
		   AND fast_path = ? AND fast_mtime_ns = ? AND fast_size = ?
		   AND fps = ?`,
		slow.Path, slow.ModTime, slow.Size, fast.Path, fast.ModTime, fast.Size, fps,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read correspondence: %w", err)
	}
	var cr syncmap.Correspondence
	if err := json.Unmarshal([]byte(raw), &cr); err != nil {
		return nil, false, fmt.Errorf("failed to decode correspondence: %w", err)
	}
	return &cr, true, nil
}

// PutCorrespondence stores a correspondence for a telemetry pair at fps.
func (c *Cache) PutCorrespondence(slow, fast Signature, fps float64, cr *syncmap.Correspondence) error {
	raw, err := json.Marshal(cr)
	if err != nil {
		return fmt.Errorf("failed to encode correspondence: %w", err)
	}
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO correspondences
		 (slow_path, slow_mtime_ns, slow_size, fast_path, fast_mtime_ns, fast_size, fps, data_json, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		slow.Path, slow.ModTime, slow.Size, fast.Path, fast.ModTime, fast.Size, fps, string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to store correspondence: %w", err)
	}
	return nil
}

// Prune deletes entries whose files are not listed in present or whose
// signature no longer matches the file. It returns the rows removed.
func (c *Cache) Prune(present []string) (int, error) {
	keep := make(map[string]bool, len(present))
	for _, p := range present {
		if abs, err := filepath.Abs(p); err == nil {
			keep[abs] = true
		}
	}
	valid := func(path string, mtime, size int64) bool {
		if !keep[path] {
			return false
		}
		sig, err := c.Signature(path)
		return err == nil && sig.ModTime == mtime && sig.Size == size
	}

	type probeKey struct{ path string }
	var staleProbes []probeKey
	rows, err := c.db.Query(`SELECT path, mtime_ns, size FROM probes`)
	if err != nil {
		return 0, fmt.Errorf("failed to scan probes: %w", err)
	}
	for rows.Next() {
		var path string
		var mtime, size int64
		if err := rows.Scan(&path, &mtime, &size); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan probes: %w", err)
		}
		if !valid(path, mtime, size) {
			staleProbes = append(staleProbes, probeKey{path})
		}
	}
	rows.Close()

	type corrKey struct {
		slow, fast string
		fps        float64
	}
	var staleCorr []corrKey
	rows, err = c.db.Query(`SELECT slow_path, slow_mtime_ns, slow_size, fast_path, fast_mtime_ns, fast_size, fps FROM correspondences`)
	if err != nil {
		return 0, fmt.Errorf("failed to scan correspondences: %w", err)
	}
	for rows.Next() {
		var k corrKey
		var sm, ss, fm, fs int64
		if err := rows.Scan(&k.slow, &sm, &ss, &k.fast, &fm, &fs, &k.fps); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan correspondences: %w", err)
		}
		if !valid(k.slow, sm, ss) || !valid(k.fast, fm, fs) {
			staleCorr = append(staleCorr, k)
		}
	}
	rows.Close()

	tx, err := c.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	for _, k := range staleProbes {
		if _, err := tx.Exec(`DELETE FROM probes WHERE path = ?`, k.path); err != nil {
			return 0, fmt.Errorf("failed to prune probe: %w", err)
		}
	}
	for _, k := range staleCorr {
		if _, err := tx.Exec(`DELETE FROM correspondences WHERE slow_path = ? AND fast_path = ? AND fps = ?`,
			k.slow, k.fast, k.fps); err != nil {
			return 0, fmt.Errorf("failed to prune correspondence: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	n := len(staleProbes) + len(staleCorr)
	if n > 0 {
		c.logf("pruned %d stale entries", n)
	}
	return n, nil
}

// timeLayout sorts lexically, unlike time.RFC3339Nano.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run statuses.
const (
	RunRunning  = "running"
	RunFinished = "finished"
	RunFailed   = "failed"
)

// Run is one recorded export.
type Run struct {
	ID            string
	SlowPath      string
	FastPath      string
	OutputPath    string
	FramesTotal   int
	FramesWritten int
	Status        string
	Error         string
	StartedAt     time.Time
	FinishedAt    *time.Time
}

// StartRun records the start of an export and returns its id.
func (c *Cache) StartRun(slow, fast, output string, total int) (string, error) {
	id := uuid.NewString()
	_, err := c.db.Exec(
		`INSERT INTO runs (run_id, slow_path, fast_path, output_path, frames_total, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, slow, fast, output, total, RunRunning, c.clock.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}

// FinishRun records the outcome of an export.
func (c *Cache) FinishRun(id string, written int, runErr error) error {
	status, msg := RunFinished, ""
	if runErr != nil {
		status, msg = RunFailed, runErr.Error()
	}
	res, err := c.db.Exec(
		`UPDATE runs SET frames_written = ?, status = ?, error = ?, finished_at = ? WHERE run_id = ?`,
		written, status, msg, c.clock.Now().UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unknown run %s", id)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (c *Cache) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := c.db.Query(
		`SELECT run_id, slow_path, fast_path, output_path, frames_total, frames_written,
		        status, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started string
		var finished sql.NullString
		if err := rows.Scan(&r.ID, &r.SlowPath, &r.FastPath, &r.OutputPath, &r.FramesTotal,
			&r.FramesWritten, &r.Status, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("invalid start time for run %s: %w", r.ID, err)
		}
		if finished.Valid {
			t, err := time.Parse(timeLayout, finished.String)
			if err != nil {
				return nil, fmt.Errorf("invalid finish time for run %s: %w", r.ID, err)
			}
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
