package encoder

import "image"

// Codec encodes a decoded image to a specific format.
type Codec interface {
	// Name identifies the implementation (e.g. "cwebp", "libwebp", "jpeg").
	Name() string

	// Format returns the output format name ("webp", "jpeg", "png").
	Format() string

	// Encode converts the image to bytes.
	Encode(img image.Image, opts Options) ([]byte, error)

	// Available returns true if the codec is ready to use.
	// External codecs (cwebp) may not be installed.
	Available() bool
}

// Options are the knobs a codec may honour.
type Options struct {
	Quality int // 1-100
	Effort  int // 0-6, WebP only
}
