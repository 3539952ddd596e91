package encoder

import (
	"context"
	"errors"
	"log/slog"
)

// Chain runs the primary tier and degrades to the fallback tier exactly once
// when the primary fails with an *EncodeError. Rejections of the input
// (unsupported format, oversized payload) are returned unchanged.
type Chain struct {
	Primary  Encoder
	Fallback Encoder
	Logger   *slog.Logger
}

// NewChain wires the two tiers over one registry.
func NewChain(registry *Registry, limits Limits, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Chain{
		Primary:  NewPrimary(registry, limits, logger),
		Fallback: NewFallback(registry, logger),
		Logger:   logger,
	}
}

// Encode implements Encoder.
func (c *Chain) Encode(ctx context.Context, req Request) (*Result, error) {
	res, err := c.Primary.Encode(ctx, req)
	if err == nil {
		return res, nil
	}
	var encErr *EncodeError
	if !errors.As(err, &encErr) {
		return nil, err
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	attrs := []any{"error", err, "tier", TierFallback}
	if !req.Metadata.IsZero() {
		logger.Warn("primary encoder failed; metadata embedding skipped", attrs...)
	} else {
		logger.Warn("primary encoder failed", attrs...)
	}

	res, err = c.Fallback.Encode(ctx, req)
	if err != nil {
		return nil, err
	}
	res.Tier = TierFallback
	res.MetadataEmbedded = false
	return res, nil
}
