// Package local stores page bodies under a directory on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/uridolan77/WebScraping-sub002/internal/store"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory; it is created when missing.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes bodies beneath BaseDir. Object paths are confined to the
// directory through an os.Root, so "../" segments and symlinks cannot escape.
type BlobStore struct {
	baseDir string
	root    *os.Root
}

// New opens (and if needed creates) the base directory.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, errors.New("base directory is required")
	}
	abs, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("open base directory: %w", err)
	}
	return &BlobStore{baseDir: abs, root: root}, nil
}

// PutObject writes data to name and returns its file:// URI. Bodies are
// named by content hash, so an existing file is left untouched. New files
// are written to a temporary name and renamed into place.
func (s *BlobStore) PutObject(_ context.Context, name string, _ string, data io.Reader) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("path is required")
	}
	rel := path.Clean(filepath.ToSlash(name))
	if !fs.ValidPath(rel) {
		return "", fmt.Errorf("invalid object path %q", name)
	}
	uri := "file://" + filepath.Join(s.baseDir, filepath.FromSlash(rel))

	if _, err := s.root.Stat(rel); err == nil {
		if _, err := io.Copy(io.Discard, data); err != nil {
			return "", fmt.Errorf("drain body: %w", err)
		}
		return uri, nil
	}
	if dir := path.Dir(rel); dir != "." {
		if err := s.root.MkdirAll(dir, 0o750); err != nil {
			return "", fmt.Errorf("create parent directories: %w", err)
		}
	}

	tmp := rel + ".tmp-" + uuid.NewString()
	f, err := s.root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = s.root.Remove(tmp)
		return "", fmt.Errorf("write body: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.root.Remove(tmp)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := s.root.Rename(tmp, rel); err != nil {
		_ = s.root.Remove(tmp)
		return "", fmt.Errorf("rename into place: %w", err)
	}
	return uri, nil
}

// GetObject returns the stored body at name.
func (s *BlobStore) GetObject(_ context.Context, name string) ([]byte, error) {
	data, err := s.root.ReadFile(path.Clean(filepath.ToSlash(name)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read object %q: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", name, err)
	}
	return data, nil
}

// Close releases the directory handle.
func (s *BlobStore) Close() error {
	if err := s.root.Close(); err != nil {
		return fmt.Errorf("close base directory: %w", err)
	}
	return nil
}
