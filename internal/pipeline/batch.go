package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/AnyUserName/imgpress/internal/encoder"
	"github.com/AnyUserName/imgpress/internal/manifest"
	"github.com/AnyUserName/imgpress/internal/metadata"
)

// encodeOutcome is the result of the concurrent half of one batch asset.
type encodeOutcome struct {
	enc       *Encoded
	source    manifest.SourceInfo
	err       error
	cancelled bool
}

// Run processes sources as a batch and returns the manifest. Encodes run on
// a bounded worker pool; naming and upload run one at a time in input order.
// ctx is checked before every encode and every publish. In-flight encodes
// finish, and assets not yet published are reported as cancelled.
//
// The manifest is returned even when err is non-nil.
func (p *Pipeline) Run(ctx context.Context, sources []Source) (*manifest.Manifest, error) {
	if p.registry != nil {
		p.logger.Debug(p.registry.String())
	}
	p.logger.Info("batch started", "assets", len(sources), "workers", p.cfg.Workers)

	outcomes := make([]encodeOutcome, len(sources))
	done := make([]chan struct{}, len(sources))
	for i := range done {
		done[i] = make(chan struct{})
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.cfg.Workers)
	for i, src := range sources {
		wg.Add(1)
		go func(idx int, s Source) {
			defer wg.Done()
			defer close(done[idx])
			sem <- struct{}{}        // acquire
			defer func() { <-sem }() // release

			if ctx.Err() != nil {
				outcomes[idx] = encodeOutcome{source: s.info(), cancelled: true}
				return
			}
			p.logger.Debug("processing", "asset", s.RelPath)
			outcomes[idx] = p.encodeSource(ctx, s)
		}(i, src)
	}

	m := manifest.New(p.cfg.RunID, p.resolver.Environment().Name, p.cfg.Profile.Name)
	m.BuildInfo = &manifest.BuildInfo{Workers: p.cfg.Workers}
	if p.registry != nil {
		m.BuildInfo.WebPBackend = p.registry.Backend()
		m.BuildInfo.Codecs = p.registry.Available()
	}

	var failed int
	for i, src := range sources {
		<-done[i]
		o := outcomes[i]
		switch {
		case o.cancelled || (o.err == nil && ctx.Err() != nil):
			m.Assets[src.RelPath] = manifest.Asset{Status: manifest.StatusCancelled, Source: o.source}
			continue
		case o.err != nil:
			failed++
			p.logger.Error("asset failed", "asset", src.RelPath, "error", o.err)
			m.Assets[src.RelPath] = manifest.Asset{Status: manifest.StatusFailed, Error: o.err.Error(), Source: o.source}
			continue
		}

		pub, err := p.Publish(ctx, o.enc)
		if err != nil {
			if isCancel(err) {
				m.Assets[src.RelPath] = manifest.Asset{Status: manifest.StatusCancelled, Source: o.source}
				continue
			}
			failed++
			p.logger.Error("publish failed", "asset", src.RelPath, "error", err)
			m.Assets[src.RelPath] = manifest.Asset{Status: manifest.StatusFailed, Error: err.Error(), Source: o.source}
			continue
		}
		m.Assets[src.RelPath] = pub.Asset(o.source)
	}
	wg.Wait()
	m.ComputeStats()

	p.logger.Info("batch finished",
		"published", m.Stats.Published, "failed", m.Stats.Failed, "cancelled", m.Stats.Cancelled)

	if err := ctx.Err(); err != nil {
		return m, fmt.Errorf("batch interrupted: %w", err)
	}
	if len(sources) > 0 && failed == len(sources) {
		return m, fmt.Errorf("all %d images failed to process", failed)
	}
	return m, nil
}

// ProcessFile encodes and publishes a single source file, applying its
// sidecar overrides.
func (p *Pipeline) ProcessFile(ctx context.Context, s Source) (*Published, error) {
	o := p.encodeSource(ctx, s)
	if o.err != nil {
		return nil, o.err
	}
	return p.Publish(ctx, o.enc)
}

// encodeSource reads one source file and its optional sidecar and encodes it.
func (p *Pipeline) encodeSource(ctx context.Context, s Source) encodeOutcome {
	out := encodeOutcome{source: s.info()}

	data, err := os.ReadFile(s.AbsPath)
	if err != nil {
		out.err = fmt.Errorf("read %s: %w", s.RelPath, err)
		return out
	}
	if probe, err := encoder.ProbeHeader(data); err == nil {
		out.source.Format = probe.Format
		out.source.Width, out.source.Height, out.source.HasAlpha = probe.Width, probe.Height, probe.Alpha
	}
	overrides, err := p.readSidecar(s)
	if err != nil {
		out.err = fmt.Errorf("sidecar for %s: %w", s.RelPath, err)
		return out
	}

	out.enc, out.err = p.Encode(ctx, Input{Data: data, Filename: s.RelPath, Overrides: overrides})
	if out.err != nil && isCancel(out.err) {
		out.cancelled = true
	}
	return out
}

// readSidecar parses the JSON metadata override file next to a source.
// Invalid entries are logged and dropped.
func (p *Pipeline) readSidecar(s Source) (*metadata.Fields, error) {
	if s.SidecarPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.SidecarPath)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	f, err := metadata.ParseOverrides(raw)
	if err != nil {
		p.logger.Warn("invalid sidecar entries dropped", "asset", s.RelPath, "error", err)
	}
	return f, nil
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
