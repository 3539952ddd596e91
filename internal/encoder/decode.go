package encoder

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Limits bounds what the primary tier accepts.
type Limits struct {
	MaxBytes  int64
	MaxPixels int64
}

// Default ceilings.
const (
	DefaultMaxBytes  = 10 << 20
	DefaultMaxPixels = 100_000_000
)

// DefaultLimits returns the default ceilings.
func DefaultLimits() Limits {
	return Limits{MaxBytes: DefaultMaxBytes, MaxPixels: DefaultMaxPixels}
}

// checkSize rejects payloads over the byte ceiling.
func (l Limits) checkSize(data []byte, declared int64) error {
	size := max(int64(len(data)), declared)
	if l.MaxBytes > 0 && size > l.MaxBytes {
		return &PayloadTooLargeError{Bytes: size, MaxBytes: l.MaxBytes}
	}
	return nil
}

// decode reads the header first so oversized rasters are rejected before
// their pixels are allocated.
func (l Limits) decode(data []byte) (image.Image, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", &UnsupportedFormatError{Err: err}
	}
	if px := int64(cfg.Width) * int64(cfg.Height); l.MaxPixels > 0 && px > l.MaxPixels {
		return nil, format, &PayloadTooLargeError{Pixels: px, MaxPixels: l.MaxPixels}
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, &UnsupportedFormatError{Err: err}
	}
	return img, format, nil
}

// HasAlpha reports whether any pixel is not fully opaque.
func HasAlpha(img image.Image) bool {
	switch src := img.(type) {
	case *image.NRGBA:
		for i := 3; i < len(src.Pix); i += 4 {
			if src.Pix[i] < 255 {
				return true
			}
		}
		return false
	case *image.RGBA:
		for i := 3; i < len(src.Pix); i += 4 {
			if src.Pix[i] < 255 {
				return true
			}
		}
		return false
	case *image.YCbCr, *image.Gray, *image.Gray16, *image.CMYK:
		return false
	case interface{ Opaque() bool }:
		return !src.Opaque()
	default:
		return true
	}
}

// Probe is what an image header says about the image.
type Probe struct {
	Format string
	Width  int
	Height int
	// Alpha reports an alpha-capable color model, not actual transparency.
	Alpha bool
}

// ProbeHeader reads only the image header.
func ProbeHeader(data []byte) (Probe, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Probe{}, &UnsupportedFormatError{Err: err}
	}
	p := Probe{Format: format, Width: cfg.Width, Height: cfg.Height}
	switch m := cfg.ColorModel.(type) {
	case color.Palette:
		for _, c := range m {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				p.Alpha = true
				break
			}
		}
	default:
		switch cfg.ColorModel {
		// PNG reports RGBA for opaque truecolor, so only the non-premultiplied
		// models count.
		case color.NRGBAModel, color.NRGBA64Model, color.NYCbCrAModel, color.AlphaModel, color.Alpha16Model:
			p.Alpha = true
		}
	}
	return p, nil
}
