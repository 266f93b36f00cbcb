package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/conneroisu/livepad/internal/bundle"
	"github.com/conneroisu/livepad/internal/errors"
)

// BundleHandler receives the workspace contents after every settled change.
type BundleHandler func(bundle.Bundle) error

// Workspace maps each fragment to a file. All files must live in one
// directory.
type Workspace struct {
	dir   string
	files map[bundle.Fragment]string
}

// NewWorkspace validates files and returns a workspace over them.
func NewWorkspace(files map[bundle.Fragment]string) (*Workspace, error) {
	if len(files) == 0 {
		return nil, errors.NewValidationError(errors.ErrCodeValidationFailed, "workspace has no files")
	}

	var dir string
	for f, path := range files {
		d := filepath.Dir(filepath.Clean(path))
		if dir == "" {
			dir = d
		} else if d != dir {
			return nil, errors.NewValidationError(errors.ErrCodeValidationFailed,
				"workspace files must share one directory").
				WithContext("fragment", f.String())
		}
	}

	return &Workspace{dir: dir, files: files}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Names returns the base names of the workspace files, sorted.
func (w *Workspace) Names() []string {
	names := make([]string, 0, len(w.files))
	for _, path := range w.files {
		names = append(names, filepath.Base(path))
	}
	sort.Strings(names)
	return names
}

// Load reads the bundle from disk. A missing file is an empty fragment.
func (w *Workspace) Load() (bundle.Bundle, error) {
	var b bundle.Bundle
	for f, path := range w.files {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return bundle.Bundle{}, errors.NewIOError(errors.ErrCodeIOFailed, "failed to read "+path, err)
		}
		b = b.With(f, string(data))
	}
	return b, nil
}

// Save writes every fragment of b to its file.
func (w *Workspace) Save(b bundle.Bundle) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return errors.NewIOError(errors.ErrCodeIOFailed, "failed to create "+w.dir, err)
	}
	for f, path := range w.files {
		if err := os.WriteFile(path, []byte(b.Get(f)), 0o644); err != nil {
			return errors.NewIOError(errors.ErrCodeIOFailed, "failed to write "+path, err)
		}
	}
	return nil
}

// Watch starts fw on the workspace directory and calls handler with the
// reloaded bundle after each settled burst of changes. It returns once the
// watcher is running; ctx stops it.
func (w *Workspace) Watch(ctx context.Context, fw *FileWatcher, handler BundleHandler) error {
	fw.AddFilter(NoBackupFilter)
	fw.AddFilter(NamesFilter(w.Names()...))
	fw.AddHandler(func(events []ChangeEvent) error {
		b, err := w.Load()
		if err != nil {
			return err
		}
		fw.logger.Info(ctx, "Workspace changed", "files", len(events))
		return handler(b)
	})

	if err := fw.AddPath(w.dir); err != nil {
		return errors.NewIOError(errors.ErrCodeFileNotFound, "cannot watch "+w.dir, err)
	}
	return fw.Start(ctx)
}
