package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"assetrelay/internal/asset"
)

var validKey = regexp.MustCompile(`^[0-9A-Za-z_-]{1,64}$`)

// BundleFile keeps one <key>.json file per user under dir.
// Freshness comes from the file's modification time.
type BundleFile struct {
	dir string
}

// NewBundleFile creates dir if needed.
func NewBundleFile(dir string) (*BundleFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &BundleFile{dir: dir}, nil
}

func (s *BundleFile) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("invalid cache key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

func (s *BundleFile) Get(_ context.Context, key string) (asset.Entry, bool, error) {
	p, err := s.path(key)
	if err != nil {
		return asset.Entry{}, false, err
	}

	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return asset.Entry{}, false, nil
	}
	if err != nil {
		return asset.Entry{}, false, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return asset.Entry{}, false, err
	}
	return asset.Entry{Data: data, ModTime: info.ModTime()}, true, nil
}

// Put replaces the file atomically so readers never see a half-written bundle.
func (s *BundleFile) Put(_ context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	// CreateTemp uses 0600; bundles are as readable as any other cache file.
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (s *BundleFile) Ping(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}
