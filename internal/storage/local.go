package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Local stores objects as files under a root directory.
type Local struct {
	root           string
	baseURL        string
	rejectExisting bool
}

// NewLocal creates the root directory if needed. baseURL prefixes returned
// public URLs. With rejectExisting, Put fails with ErrExists instead of
// overwriting.
func NewLocal(root, baseURL string, rejectExisting bool) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &Local{root: root, baseURL: baseURL, rejectExisting: rejectExisting}, nil
}

// Root returns the root directory.
func (l *Local) Root() string { return l.root }

// List implements Store. Only the direct children of prefix are listed.
func (l *Local) List(ctx context.Context, prefix, search string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := l.root
	if prefix != "" {
		k, err := cleanKey(prefix)
		if err != nil {
			return nil, err
		}
		prefix = k
		dir = filepath.Join(l.root, filepath.FromSlash(k))
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", prefix, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), search) {
			continue
		}
		out = append(out, path.Join(prefix, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Put implements Store. Data is written to a temp file first and then
// renamed over the key, or hard-linked to it with rejectExisting, so readers
// never see a partial object.
func (l *Local) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(l.root, filepath.FromSlash(k))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("storage: create dir: %w", err)
	}

	tmp, err := writeTemp(filepath.Dir(dst), data)
	if err != nil {
		return "", fmt.Errorf("storage: write %s: %w", k, err)
	}
	defer os.Remove(tmp)

	if l.rejectExisting {
		// Link fails if dst exists, and the object appears complete or not
		// at all.
		if err := os.Link(tmp, dst); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return "", fmt.Errorf("%w: %s", ErrExists, k)
			}
			return "", fmt.Errorf("storage: publish %s: %w", k, err)
		}
		return publicURL(l.baseURL, k), nil
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", fmt.Errorf("storage: publish %s: %w", k, err)
	}
	return publicURL(l.baseURL, k), nil
}

// writeTemp writes data to a hidden temp file in dir and returns its path.
func writeTemp(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
