package encoder

import (
	"bytes"
	"image"
	"image/jpeg"
)

// JPEGCodec encodes images to JPEG using Go's standard library.
// Fallback output for opaque sources when WebP cannot be produced.
type JPEGCodec struct{}

func (c *JPEGCodec) Name() string    { return "jpeg" }
func (c *JPEGCodec) Format() string  { return "jpeg" }
func (c *JPEGCodec) Available() bool { return true }

func (c *JPEGCodec) Encode(img image.Image, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(256 * 1024)

	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
