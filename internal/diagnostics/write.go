package diagnostics

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/lapsync/internal/fsutil"
	"github.com/banshee-data/lapsync/internal/security"
)

// Write stores the report under dir as <name>-sync.png and
// <name>-sync.html and returns both paths.
func (r *Report) Write(fs fsutil.FileSystem, dir, name string) ([]string, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create diagnostics dir: %w", err)
	}
	base := security.SanitizeFilename(name) + "-sync"

	var paths []string
	for _, out := range []struct {
		ext    string
		render func(io.Writer) error
	}{
		{".png", r.WritePNG},
		{".html", r.WriteHTML},
	} {
		path := filepath.Join(dir, base+out.ext)
		if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
			return paths, err
		}
		if err := writeFile(fs, path, out.render); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(fs fsutil.FileSystem, path string, render func(io.Writer) error) error {
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

