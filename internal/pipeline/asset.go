package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/AnyUserName/imgpress/internal/accounting"
	"github.com/AnyUserName/imgpress/internal/encoder"
	"github.com/AnyUserName/imgpress/internal/manifest"
	"github.com/AnyUserName/imgpress/internal/metadata"
	"github.com/AnyUserName/imgpress/internal/naming"
	"github.com/AnyUserName/imgpress/internal/profile"
)

// ErrUnknownProfile is returned when an input names a profile that does not
// exist.
var ErrUnknownProfile = errors.New("unknown profile")

// Input is one image submitted for conversion.
type Input struct {
	Data     []byte
	Filename string
	// DeclaredSize is the size the client announced, if any.
	DeclaredSize int64
	Overrides    *metadata.Fields
	// Template and Profile default to the pipeline's when empty.
	Template     string
	Profile      string
	Quality      int
	PreserveSize bool
	Resize       *encoder.Resize
	Enhance      *encoder.Enhance
}

// Encoded is an encoded asset that has not been published yet.
type Encoded struct {
	Filename string
	Result   *encoder.Result
	Metadata metadata.Canonical
	Stats    accounting.Stats
}

// Published is a stored asset.
type Published struct {
	Encoded
	Artifact naming.Artifact
	URL      string
	Hash     string
	Digest   string
}

// Encode resolves metadata for in and runs the encoder. Invalid metadata is
// logged and dropped; it never fails the encode.
func (p *Pipeline) Encode(ctx context.Context, in Input) (*Encoded, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.enc == nil {
		return nil, errors.New("pipeline: no encoder configured")
	}

	prof := p.cfg.Profile
	if in.Profile != "" {
		var ok bool
		if prof, ok = profile.Lookup(in.Profile); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, in.Profile)
		}
	}

	template := in.Template
	if template == "" {
		template = p.cfg.Template
	}
	md, err := p.resolver.Resolve(template, in.Overrides)
	if err != nil {
		p.logger.Warn("invalid metadata dropped", "asset", in.Filename, "error", err)
	}

	req := encoder.Request{
		Data:                 in.Data,
		DeclaredSize:         in.DeclaredSize,
		Quality:              in.Quality,
		PreserveOriginalSize: in.PreserveSize,
		Resize:               in.Resize,
		Enhance:              in.Enhance,
		Metadata:             md,
	}
	prof.Apply(&req)

	res, err := p.enc.Encode(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", in.Filename, err)
	}
	stats, err := accounting.Compute(int64(len(in.Data)), int64(len(res.Data)))
	if err != nil {
		return nil, err
	}
	return &Encoded{Filename: in.Filename, Result: res, Metadata: md, Stats: stats}, nil
}

// Record flattens a published asset for the record store.
func (p *Published) Record(runID string) manifest.Record {
	r := manifest.Record{
		manifest.KeyRunID:    runID,
		manifest.KeyAsset:    p.Filename,
		manifest.KeyName:     p.Artifact.Name,
		manifest.KeyPath:     p.Artifact.Path,
		manifest.KeyURL:      p.URL,
		manifest.KeyFormat:   p.Result.Format,
		manifest.KeyTier:     p.Result.Label(),
		manifest.KeyOriginal: strconv.FormatInt(p.Stats.OriginalBytes, 10),
		manifest.KeyEncoded:  strconv.FormatInt(p.Stats.EncodedBytes, 10),
		manifest.KeyRatio:    p.Stats.RatioString(),
		manifest.KeyHash:     p.Hash,
		manifest.KeyDigest:   p.Digest,
		manifest.KeyEmbedded: strconv.FormatBool(p.Result.MetadataEmbedded),
	}
	for k, v := range p.Metadata.Record() {
		r[manifest.KeyMetaPrefix+k] = v
	}
	return r
}

// Asset describes a published asset in the batch manifest.
func (p *Published) Asset(src manifest.SourceInfo) manifest.Asset {
	return manifest.Asset{
		Status: manifest.StatusOK,
		Source: src,
		Output: &manifest.OutputInfo{
			Name:             p.Artifact.Name,
			Path:             p.Artifact.Path,
			URL:              p.URL,
			Format:           p.Result.Format,
			Width:            p.Result.Width,
			Height:           p.Result.Height,
			Size:             int64(len(p.Result.Data)),
			Hash:             p.Hash,
			Digest:           p.Digest,
			MetadataEmbedded: p.Result.MetadataEmbedded,
		},
		Tier:  p.Result.Label(),
		Ratio: p.Stats.RatioPercent,
		Meta:  p.Metadata.Record(),
	}
}
