// Package accounting computes compression statistics for one asset.
package accounting

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
)

// Response headers carrying the statistics.
const (
	HeaderOriginalSize     = "X-Original-Size"
	HeaderEncodedSize      = "X-Encoded-Size"
	HeaderWebPSize         = "X-WebP-Size"
	HeaderCompressionRatio = "X-Compression-Ratio"
)

// ErrNegativeSize is returned for a negative byte count.
var ErrNegativeSize = errors.New("accounting: negative size")

// Stats are the compression statistics of one asset.
type Stats struct {
	OriginalBytes int64   `json:"originalBytes"`
	EncodedBytes  int64   `json:"encodedBytes"`
	SavedBytes    int64   `json:"savedBytes"`
	RatioPercent  float64 `json:"ratioPercent"`
	// Defined is false when OriginalBytes is zero; RatioPercent is then 0.
	Defined bool `json:"defined"`
}

// Compute returns the statistics for an original and encoded size. The
// ratio is the share of the original removed by encoding, in percent. It is
// negative when the encoded output is larger.
func Compute(original, encoded int64) (Stats, error) {
	if original < 0 || encoded < 0 {
		return Stats{}, fmt.Errorf("%w: original=%d encoded=%d", ErrNegativeSize, original, encoded)
	}
	s := Stats{
		OriginalBytes: original,
		EncodedBytes:  encoded,
		SavedBytes:    original - encoded,
	}
	if original > 0 {
		s.RatioPercent = float64(s.SavedBytes) * 100 / float64(original)
		s.Defined = true
	}
	return s, nil
}

// RatioString formats the ratio with two decimals.
func (s Stats) RatioString() string {
	return strconv.FormatFloat(s.RatioPercent, 'f', 2, 64)
}

// SetHeaders writes the statistics headers.
func (s Stats) SetHeaders(h http.Header) {
	h.Set(HeaderOriginalSize, strconv.FormatInt(s.OriginalBytes, 10))
	h.Set(HeaderEncodedSize, strconv.FormatInt(s.EncodedBytes, 10))
	h.Set(HeaderWebPSize, strconv.FormatInt(s.EncodedBytes, 10))
	h.Set(HeaderCompressionRatio, s.RatioString())
}

// String renders a human-readable summary, e.g. "1.2 MB -> 340 kB (71.67% saved)".
func (s Stats) String() string {
	if !s.Defined {
		return fmt.Sprintf("%s -> %s", humanize.Bytes(uint64(s.OriginalBytes)), humanize.Bytes(uint64(s.EncodedBytes)))
	}
	return fmt.Sprintf("%s -> %s (%s%% saved)",
		humanize.Bytes(uint64(s.OriginalBytes)), humanize.Bytes(uint64(s.EncodedBytes)), s.RatioString())
}

// Totals accumulates statistics over a batch.
type Totals struct {
	Assets        int   `json:"assets"`
	OriginalBytes int64 `json:"originalBytes"`
	EncodedBytes  int64 `json:"encodedBytes"`
}

// Add folds one asset into the totals.
func (t *Totals) Add(s Stats) {
	t.Assets++
	t.OriginalBytes += s.OriginalBytes
	t.EncodedBytes += s.EncodedBytes
}

// Stats returns the aggregate statistics.
func (t Totals) Stats() Stats {
	s, _ := Compute(t.OriginalBytes, t.EncodedBytes)
	return s
}
