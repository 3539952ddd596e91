// Package encoder turns raw image bytes into WebP.
//
// Two tiers implement the same Encoder contract. Primary applies geometry and
// enhancement and embeds the canonical metadata record into the container.
// Fallback honours quality and resize only and never embeds anything. Chain
// runs Primary and degrades to Fallback once when Primary fails to encode.
package encoder

import (
	"context"

	"github.com/AnyUserName/imgpress/internal/metadata"
)

// DefaultQuality is used when a request carries no quality in 1-100.
const DefaultQuality = 82

// DefaultEffort is the WebP compression method used when none is given.
const DefaultEffort = 4

// Tier names which encoder produced a result.
type Tier string

const (
	TierPrimary  Tier = "primary"
	TierFallback Tier = "fallback"
)

// Encoder is the contract shared by both tiers.
type Encoder interface {
	Encode(ctx context.Context, req Request) (*Result, error)
}

// Request is one encode job.
type Request struct {
	// Data is the raw source image.
	Data []byte
	// DeclaredSize is the size the caller claims for Data, e.g. a multipart
	// header. The larger of the two is checked against the size ceiling.
	DeclaredSize int64
	// Quality is the lossy quality, 1-100. Other values select DefaultQuality.
	Quality int
	// Effort is the WebP compression method, 0 (fast) to 6 (slowest).
	Effort int
	// PreserveOriginalSize disables geometry and enhancement.
	PreserveOriginalSize bool
	Resize               *Resize
	Enhance              *Enhance
	Metadata             metadata.Canonical
}

func (r Request) quality() int {
	if r.Quality <= 0 || r.Quality > 100 {
		return DefaultQuality
	}
	return r.Quality
}

func (r Request) effort() int {
	if r.Effort < 0 || r.Effort > 6 {
		return DefaultEffort
	}
	return r.Effort
}

// Result is a successful encode.
type Result struct {
	Data   []byte
	Width  int
	Height int
	// Format is the container format of Data: "webp", "jpeg", "png", or the
	// source format when Converted is false.
	Format           string
	Codec            string
	Tier             Tier
	MetadataEmbedded bool
	// Converted is false when Fallback passed the source bytes through.
	Converted bool
}

// Extension returns the file extension for Format, without the dot.
func (r *Result) Extension() string {
	switch r.Format {
	case "jpeg":
		return "jpg"
	case "":
		return "bin"
	default:
		return r.Format
	}
}

// Label is the tier as reported to callers: "primary", "fallback", or
// "passthrough" when the source bytes were returned unchanged.
func (r *Result) Label() string {
	if !r.Converted {
		return "passthrough"
	}
	return string(r.Tier)
}
