package encoder

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/AnyUserName/imgpress/internal/container"
)

// Primary is the full-featured tier: geometry, enhancement, effort-aware
// WebP and metadata embedding.
type Primary struct {
	registry *Registry
	limits   Limits
	logger   *slog.Logger
}

// NewPrimary creates the primary tier. A nil logger discards.
func NewPrimary(registry *Registry, limits Limits, logger *slog.Logger) *Primary {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Primary{registry: registry, limits: limits, logger: logger}
}

// Encode implements Encoder.
func (p *Primary) Encode(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.limits.checkSize(req.Data, req.DeclaredSize); err != nil {
		return nil, err
	}
	img, format, err := p.limits.decode(req.Data)
	if err != nil {
		return nil, err
	}

	if !req.PreserveOriginalSize {
		if req.Resize != nil {
			img = req.Resize.Apply(img)
		}
		if req.Enhance != nil {
			img = req.Enhance.Apply(img)
		}
	}
	b := img.Bounds()

	codec, err := p.registry.WebP()
	if err != nil {
		return nil, &EncodeError{Stage: "select", Err: err}
	}
	opts := Options{Quality: req.quality(), Effort: req.effort()}
	data, err := codec.Encode(img, opts)
	if err != nil {
		return nil, &EncodeError{Codec: codec.Name(), Stage: "webp", Err: err}
	}

	embedded, err := embed(data, b, req)
	if err != nil {
		return nil, &EncodeError{Codec: codec.Name(), Stage: "metadata", Err: err}
	}

	p.logger.Debug("primary encode",
		"source_format", format,
		"codec", codec.Name(),
		"width", b.Dx(),
		"height", b.Dy(),
		"quality", opts.Quality,
		"effort", opts.Effort,
		"bytes", len(embedded))

	return &Result{
		Data:             embedded,
		Width:            b.Dx(),
		Height:           b.Dy(),
		Format:           "webp",
		Codec:            codec.Name(),
		Tier:             TierPrimary,
		MetadataEmbedded: !req.Metadata.IsZero(),
		Converted:        true,
	}, nil
}

// embed writes the partitioned record into the WebP container. An empty
// record leaves the bitstream as produced.
func embed(data []byte, b image.Rectangle, req Request) ([]byte, error) {
	if req.Metadata.IsZero() {
		return data, nil
	}
	native, ext := req.Metadata.Partition()
	exif, err := container.BuildEXIF(native)
	if err != nil {
		return nil, fmt.Errorf("build exif: %w", err)
	}
	xmp, err := container.BuildXMP(ext)
	if err != nil {
		return nil, fmt.Errorf("build xmp: %w", err)
	}
	return container.Embed(data, b.Dx(), b.Dy(), exif, xmp)
}
