package encoder

import (
	"bytes"
	"context"
	"image"
	"log/slog"
)

// Fallback is the degraded tier. It honours quality and resize only, never
// embeds metadata and never fails: when nothing can be produced it returns
// the source bytes unchanged with Converted false.
type Fallback struct {
	registry *Registry
	logger   *slog.Logger
}

// NewFallback creates the fallback tier. A nil logger discards.
func NewFallback(registry *Registry, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fallback{registry: registry, logger: logger}
}

// Encode implements Encoder. The returned error is always nil unless ctx is
// already done.
func (f *Fallback) Encode(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(req.Data))
	if err != nil {
		f.logger.Warn("fallback: source not decodable, passing through", "error", err)
		return passthrough(req.Data, ""), nil
	}
	src := img.Bounds()
	if req.Resize != nil && !req.PreserveOriginalSize {
		img = req.Resize.Apply(img)
	}
	b := img.Bounds()

	opts := Options{Quality: req.quality()}
	for _, codec := range f.registry.FallbackChain(HasAlpha(img)) {
		data, err := codec.Encode(img, opts)
		if err != nil {
			f.logger.Warn("fallback: codec failed", "codec", codec.Name(), "error", err)
			continue
		}
		return &Result{
			Data:      data,
			Width:     b.Dx(),
			Height:    b.Dy(),
			Format:    codec.Format(),
			Codec:     codec.Name(),
			Tier:      TierFallback,
			Converted: true,
		}, nil
	}

	f.logger.Warn("fallback: every codec failed, passing through", "source_format", format)
	res := passthrough(req.Data, format)
	res.Width, res.Height = src.Dx(), src.Dy()
	return res, nil
}

func passthrough(data []byte, format string) *Result {
	return &Result{
		Data:   data,
		Format: format,
		Codec:  "none",
		Tier:   TierFallback,
	}
}
