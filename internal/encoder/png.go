package encoder

import (
	"bytes"
	"image"
	"image/png"
)

// PNGCodec encodes images to PNG using Go's standard library.
// Fallback output for images with alpha transparency.
type PNGCodec struct{}

func (c *PNGCodec) Name() string    { return "png" }
func (c *PNGCodec) Format() string  { return "png" }
func (c *PNGCodec) Available() bool { return true }

func (c *PNGCodec) Encode(img image.Image, _ Options) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(512 * 1024)

	enc := &png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
