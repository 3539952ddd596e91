// Package pipeline runs one asset, or a batch of them, through metadata
// resolution, encoding, naming, upload and record keeping.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/AnyUserName/imgpress/internal/encoder"
	"github.com/AnyUserName/imgpress/internal/hasher"
	"github.com/AnyUserName/imgpress/internal/manifest"
	"github.com/AnyUserName/imgpress/internal/metadata"
	"github.com/AnyUserName/imgpress/internal/naming"
	"github.com/AnyUserName/imgpress/internal/profile"
	"github.com/AnyUserName/imgpress/internal/storage"
)

// Defaults.
const (
	DefaultUploadAttempts = 3
	DefaultUploadBackoff  = 200 * time.Millisecond
	// renameRounds bounds how often a rejected upload triggers a new name.
	renameRounds = 3
)

// Config holds all parameters for a pipeline.
type Config struct {
	RunID          string
	Profile        profile.Profile
	Template       string // default metadata template
	Workers        int
	UploadAttempts int
	UploadBackoff  time.Duration
	DigestAlgo     string
}

// Deps are the collaborators a pipeline drives.
type Deps struct {
	Encoder  encoder.Encoder
	Resolver *metadata.Resolver
	Namer    *naming.Service
	Store    storage.Store
	// Records is optional.
	Records manifest.RecordStore
	// Registry is only used to describe the run in the manifest.
	Registry *encoder.Registry
	Logger   *slog.Logger
}

// Pipeline orchestrates per-asset processing.
type Pipeline struct {
	cfg      Config
	enc      encoder.Encoder
	resolver *metadata.Resolver
	namer    *naming.Service
	store    storage.Store
	records  manifest.RecordStore
	registry *encoder.Registry
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a configured pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.UploadAttempts <= 0 {
		cfg.UploadAttempts = DefaultUploadAttempts
	}
	if cfg.UploadBackoff < 0 {
		cfg.UploadBackoff = DefaultUploadBackoff
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Profile.Name == "" {
		cfg.Profile = profile.Get(profile.Default)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = metadata.NewResolver(metadata.Environment{}, nil)
	}
	namer := deps.Namer
	if namer == nil {
		namer = naming.New(naming.Config{})
	}
	return &Pipeline{
		cfg:      cfg,
		enc:      deps.Encoder,
		resolver: resolver,
		namer:    namer,
		store:    deps.Store,
		records:  deps.Records,
		registry: deps.Registry,
		logger:   logger.With("run", cfg.RunID),
		sleep:    sleepCtx,
	}
}

// RunID identifies this pipeline's run in records and the manifest.
func (p *Pipeline) RunID() string { return p.cfg.RunID }

// Process encodes and publishes one asset.
func (p *Pipeline) Process(ctx context.Context, in Input) (*Published, error) {
	enc, err := p.Encode(ctx, in)
	if err != nil {
		return nil, err
	}
	return p.Publish(ctx, enc)
}

// UploadError is returned when storage rejected an artifact after all
// retries.
type UploadError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s failed after %d attempt(s): %v", e.Path, e.Attempts, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Publish reserves a name for an encoded asset, uploads it and saves its
// record. Naming and upload for one base name are serialized within this
// process; a store that rejects existing paths triggers a fresh name.
func (p *Pipeline) Publish(ctx context.Context, enc *Encoded) (*Published, error) {
	if p.store == nil {
		return nil, errors.New("pipeline: no storage configured")
	}
	base := naming.BaseName(enc.Filename)
	ext := enc.Result.Extension()
	log := p.logger.With("asset", enc.Filename, "tier", enc.Result.Label())

	unlock := p.namer.Lock(base)
	defer unlock()

	var (
		art naming.Artifact
		url string
		err error
	)
	for round := 1; round <= renameRounds; round++ {
		art, err = p.namer.Reserve(ctx, base, ext, p.store)
		if err != nil {
			return nil, fmt.Errorf("reserve name: %w", err)
		}
		url, err = p.upload(ctx, log, art.Path, enc.Result.Data)
		if !errors.Is(err, storage.ErrExists) {
			break
		}
		log.Warn("name taken at upload, renaming", "path", art.Path, "round", round)
	}
	if err != nil {
		return nil, err
	}

	pub := &Published{
		Encoded:  *enc,
		Artifact: art,
		URL:      url,
		Hash:     hasher.ContentHash(enc.Result.Data, 16),
	}
	if pub.Digest, err = hasher.Digest(enc.Result.Data, p.cfg.DigestAlgo); err != nil {
		return nil, err
	}
	log.Info("published", "path", art.Path, "bytes", len(enc.Result.Data), "ratio", enc.Stats.RatioString())

	if p.records != nil {
		if err := p.records.Save(ctx, pub.Record(p.cfg.RunID)); err != nil {
			return nil, fmt.Errorf("save record: %w", err)
		}
	}
	return pub, nil
}

// upload writes data, retrying transient failures with a fixed backoff.
// storage.ErrExists is returned as-is without retry.
func (p *Pipeline) upload(ctx context.Context, log *slog.Logger, key string, data []byte) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.UploadAttempts; attempt++ {
		url, err := p.store.Put(ctx, key, data)
		if err == nil {
			return url, nil
		}
		if errors.Is(err, storage.ErrExists) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		log.Warn("upload failed", "path", key, "attempt", attempt, "error", err)
		if attempt < p.cfg.UploadAttempts {
			if err := p.sleep(ctx, p.cfg.UploadBackoff); err != nil {
				return "", err
			}
		}
	}
	return "", &UploadError{Path: key, Attempts: p.cfg.UploadAttempts, Err: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
