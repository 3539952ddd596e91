package container

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/AnyUserName/imgpress/internal/metadata"
)

// Info describes an encoded asset and the metadata it carries.
type Info struct {
	Format string   `json:"format"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Bytes  int      `json:"bytes"`
	Chunks []string `json:"chunks,omitempty"`

	HasVP8X  bool `json:"hasVp8x,omitempty"`
	Alpha    bool `json:"alpha,omitempty"`
	Lossless bool `json:"lossless,omitempty"`
	HasEXIF  bool `json:"hasExif"`
	HasXMP   bool `json:"hasXmp"`

	Native   metadata.Native   `json:"native"`
	Extended metadata.Extended `json:"extended"`
}

// Title returns the embedded title, if any.
func (i *Info) Title() string { return i.Native.Title }

// Inspect reports format, dimensions and any embedded metadata. Metadata is
// read from WebP EXIF/XMP chunks and from JPEG APP1 EXIF; other rasters
// report format and dimensions only.
func Inspect(data []byte) (*Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("container: inspect: %w", err)
	}
	info := &Info{Format: format, Width: cfg.Width, Height: cfg.Height, Bytes: len(data)}

	switch format {
	case "webp":
		if err := inspectWebP(data, info); err != nil {
			return nil, err
		}
	case "jpeg":
		if x, err := exif.Decode(bytes.NewReader(data)); err == nil {
			info.HasEXIF = true
			info.Native = nativeFromExif(x)
		}
	}
	return info, nil
}

func inspectWebP(data []byte, info *Info) error {
	chunks, err := ParseChunks(data)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		info.Chunks = append(info.Chunks, c.FourCC)
		switch c.FourCC {
		case FourCCVP8X:
			info.HasVP8X = true
			if len(c.Data) > 0 && c.Data[0]&flagAlpha != 0 {
				info.Alpha = true
			}
		case FourCCALPH:
			info.Alpha = true
		case FourCCVP8L:
			info.Lossless = true
			if losslessHasAlpha(c.Data) {
				info.Alpha = true
			}
		case FourCCEXIF:
			n, err := ReadEXIF(c.Data)
			if err != nil {
				return err
			}
			info.HasEXIF = true
			info.Native = n
		case FourCCXMP:
			e, err := ParseXMP(c.Data)
			if err != nil {
				return err
			}
			info.HasXMP = true
			info.Extended = e
		}
	}
	return nil
}
