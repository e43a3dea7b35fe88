package recording

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Saver hands a finished recording to persistent storage under name.
type Saver interface {
	Save(ctx context.Context, name string, a *Artifact) (string, error)
}

// FileSaver writes recordings into a directory.
type FileSaver struct {
	Dir string
}

// NewFileSaver returns a FileSaver rooted at dir.
func NewFileSaver(dir string) *FileSaver {
	return &FileSaver{Dir: dir}
}

// Save writes a to Dir/name through a temporary file so a partially written
// recording is never visible under its final name.
func (s *FileSaver) Save(ctx context.Context, name string, a *Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(a.Data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing recording: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing recording: %w", err)
	}

	path := filepath.Join(s.Dir, filepath.Base(name))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("renaming recording: %w", err)
	}
	return path, nil
}
