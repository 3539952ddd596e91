// Package storage is the object store the pipeline publishes artifacts to.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrExists is returned by Put when the store rejects writes to existing
// paths and the path is taken.
var ErrExists = errors.New("storage: object already exists")

// Store lists and writes named objects.
type Store interface {
	// List returns the object paths under prefix whose name contains search.
	List(ctx context.Context, prefix, search string) ([]string, error)
	// Put writes data at path and returns its public URL.
	Put(ctx context.Context, path string, data []byte) (string, error)
}

// cleanKey normalizes an object key and rejects keys escaping the root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, `\`, "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", fmt.Errorf("storage: empty object key %q", key)
	}
	return k, nil
}

// publicURL joins base and the path-escaped key.
func publicURL(base, key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segs, "/")
}
