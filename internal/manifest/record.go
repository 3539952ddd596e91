package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// Record is one flat row describing a published artifact.
type Record map[string]string

// Record keys written by the pipeline.
const (
	KeyRunID    = "run_id"
	KeyAsset    = "asset"
	KeyName     = "name"
	KeyPath     = "path"
	KeyURL      = "url"
	KeyFormat   = "format"
	KeyTier     = "tier"
	KeyOriginal = "original_bytes"
	KeyEncoded  = "encoded_bytes"
	KeyRatio    = "ratio_percent"
	KeyHash     = "hash"
	KeyDigest   = "digest"
	KeyEmbedded = "metadata_embedded"
	// KeyMetaPrefix prefixes resolved metadata fields ("meta.title").
	KeyMetaPrefix = "meta."
)

// RecordStore persists records.
type RecordStore interface {
	Save(ctx context.Context, r Record) error
}

// JSONL appends one JSON object per line to a file.
type JSONL struct {
	mu sync.Mutex
	f  *os.File
}

// OpenJSONL opens path for appending, creating it and its directory.
func OpenJSONL(path string) (*JSONL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}
	return &JSONL{f: f}, nil
}

// Save appends r. Keys are written in sorted order.
func (j *JSONL) Save(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.f.Write(line); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

// Collector keeps records in memory in save order.
type Collector struct {
	mu      sync.Mutex
	records []Record
}

// Save stores a copy of r.
func (c *Collector) Save(_ context.Context, r Record) error {
	c.mu.Lock()
	c.records = append(c.records, maps.Clone(r))
	c.mu.Unlock()
	return nil
}

// Records returns copies of the saved records.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	for i, r := range c.records {
		out[i] = maps.Clone(r)
	}
	return out
}

// Tee saves to every store in order and stops at the first error.
type Tee []RecordStore

func (t Tee) Save(ctx context.Context, r Record) error {
	for _, s := range t {
		if err := s.Save(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
