// Package container rewrites WebP RIFF containers so they carry an EXIF
// native tag section and an XMP extended block, and reads both back.
package container

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Chunk FourCCs.
const (
	FourCCVP8X = "VP8X"
	FourCCVP8  = "VP8 "
	FourCCVP8L = "VP8L"
	FourCCALPH = "ALPH"
	FourCCICCP = "ICCP"
	FourCCANIM = "ANIM"
	FourCCEXIF = "EXIF"
	FourCCXMP  = "XMP "
)

// VP8X flag bits.
const (
	flagAnimation = 0x02
	flagXMP       = 0x04
	flagEXIF      = 0x08
	flagAlpha     = 0x10
	flagICC       = 0x20
)

const maxCanvas = 1 << 24

// ErrNotWebP is returned for input that is not a RIFF/WEBP stream.
var ErrNotWebP = errors.New("container: not a RIFF WEBP stream")

// Chunk is one RIFF chunk. Data excludes the header and padding byte.
type Chunk struct {
	FourCC string
	Data   []byte
}

// ParseChunks splits a WebP file into its chunks.
func ParseChunks(data []byte) ([]Chunk, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return nil, ErrNotWebP
	}
	end := 8 + int(binary.LittleEndian.Uint32(data[4:8]))
	if end > len(data) {
		return nil, fmt.Errorf("container: RIFF size %d exceeds buffer of %d bytes", end, len(data))
	}

	var chunks []Chunk
	offset := 12
	for offset+8 <= end {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		offset += 8
		if size < 0 || offset+size > end {
			return nil, fmt.Errorf("container: chunk %q truncated", id)
		}
		chunks = append(chunks, Chunk{FourCC: id, Data: data[offset : offset+size]})
		offset += size + size%2
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("container: no chunks: %w", ErrNotWebP)
	}
	return chunks, nil
}

// Assemble writes chunks back into a RIFF/WEBP file.
func Assemble(chunks []Chunk) []byte {
	size := 4
	for _, c := range chunks {
		size += 8 + len(c.Data) + len(c.Data)%2
	}
	out := make([]byte, 0, 8+size)
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(size))
	out = append(out, "WEBP"...)
	for _, c := range chunks {
		out = append(out, c.FourCC...)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(c.Data)))
		out = append(out, c.Data...)
		if len(c.Data)%2 == 1 {
			out = append(out, 0)
		}
	}
	return out
}

// Embed rewrites a WebP bitstream into the extended (VP8X) layout carrying
// the given EXIF and XMP payloads. Existing EXIF and XMP chunks are replaced.
// A nil payload omits that chunk. width and height are the canvas size.
func Embed(webp []byte, width, height int, exif, xmp []byte) ([]byte, error) {
	if width <= 0 || height <= 0 || width > maxCanvas || height > maxCanvas {
		return nil, fmt.Errorf("container: canvas %dx%d out of range", width, height)
	}
	chunks, err := ParseChunks(webp)
	if err != nil {
		return nil, err
	}

	var flags byte
	body := make([]Chunk, 0, len(chunks)+2)
	for _, c := range chunks {
		switch c.FourCC {
		case FourCCVP8X:
			if len(c.Data) > 0 {
				flags |= c.Data[0] & (flagAnimation | flagAlpha)
			}
			continue
		case FourCCEXIF, FourCCXMP:
			continue
		case FourCCALPH:
			flags |= flagAlpha
		case FourCCICCP:
			flags |= flagICC
		case FourCCANIM:
			flags |= flagAnimation
		case FourCCVP8L:
			if losslessHasAlpha(c.Data) {
				flags |= flagAlpha
			}
		}
		body = append(body, c)
	}
	if len(exif) > 0 {
		flags |= flagEXIF
		body = append(body, Chunk{FourCC: FourCCEXIF, Data: exif})
	}
	if len(xmp) > 0 {
		flags |= flagXMP
		body = append(body, Chunk{FourCC: FourCCXMP, Data: xmp})
	}

	out := make([]Chunk, 0, len(body)+1)
	out = append(out, Chunk{FourCC: FourCCVP8X, Data: vp8x(flags, width, height)})
	out = append(out, body...)
	return Assemble(out), nil
}

// Strip removes EXIF and XMP chunks and clears their VP8X flags.
func Strip(webp []byte) ([]byte, error) {
	chunks, err := ParseChunks(webp)
	if err != nil {
		return nil, err
	}
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		switch c.FourCC {
		case FourCCEXIF, FourCCXMP:
			continue
		case FourCCVP8X:
			d := append([]byte(nil), c.Data...)
			if len(d) > 0 {
				d[0] &^= flagEXIF | flagXMP
			}
			c.Data = d
		}
		out = append(out, c)
	}
	return Assemble(out), nil
}

// Find returns the first chunk with the given FourCC.
func Find(chunks []Chunk, fourCC string) (Chunk, bool) {
	for _, c := range chunks {
		if c.FourCC == fourCC {
			return c, true
		}
	}
	return Chunk{}, false
}

func vp8x(flags byte, width, height int) []byte {
	d := make([]byte, 10)
	d[0] = flags
	putUint24(d[4:7], uint32(width-1))
	putUint24(d[7:10], uint32(height-1))
	return d
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

// losslessHasAlpha reads the alpha_is_used bit of a VP8L header.
func losslessHasAlpha(d []byte) bool {
	if len(d) < 5 || d[0] != 0x2f {
		return false
	}
	return d[4]&0x10 != 0
}
