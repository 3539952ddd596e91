package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/AnyUserName/imgpress/internal/metadata"
)

// TIFF tag IDs written into the native section.
const (
	tagImageDescription = 0x010E
	tagOrientation      = 0x0112
	tagXResolution      = 0x011A
	tagYResolution      = 0x011B
	tagResolutionUnit   = 0x0128
	tagSoftware         = 0x0131
	tagArtist           = 0x013B
	tagCopyright        = 0x8298
	tagExifIFD          = 0x8769
	tagXPTitle          = 0x9C9B
	tagExifVersion      = 0x9000
	tagUserComment      = 0x9286
	tagColorSpace       = 0xA001
)

// TIFF field types.
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeUndefined = 7
)

const (
	resolutionUnitInch = 2
	colorSpaceSRGB     = 1
	colorSpaceUncal    = 0xFFFF
)

var (
	commentASCII   = []byte("ASCII\x00\x00\x00")
	commentUnicode = []byte("UNICODE\x00")
	exifVersion    = []byte("0232")
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// BuildEXIF renders the native record as a little-endian TIFF structure, the
// payload format of a WebP EXIF chunk. An empty record yields nil.
func BuildEXIF(n metadata.Native) ([]byte, error) {
	if n.IsZero() {
		return nil, nil
	}

	var ifd0, sub []ifdEntry
	addASCII := func(dst *[]ifdEntry, tag uint16, name, v string) error {
		if v == "" {
			return nil
		}
		if strings.IndexByte(v, 0) >= 0 {
			return fmt.Errorf("container: %s contains a NUL byte", name)
		}
		d := append([]byte(v), 0)
		*dst = append(*dst, ifdEntry{tag: tag, typ: typeASCII, count: uint32(len(d)), data: d})
		return nil
	}

	if err := addASCII(&ifd0, tagImageDescription, "description", n.Description); err != nil {
		return nil, err
	}
	if err := addASCII(&ifd0, tagSoftware, "software", n.Software); err != nil {
		return nil, err
	}
	if err := addASCII(&ifd0, tagArtist, "creator", n.Creator); err != nil {
		return nil, err
	}
	if err := addASCII(&ifd0, tagCopyright, "copyright", n.Copyright); err != nil {
		return nil, err
	}
	if n.Orientation > 0 {
		ifd0 = append(ifd0, shortEntry(tagOrientation, uint16(n.Orientation)))
	}
	if n.Density > 0 {
		ifd0 = append(ifd0,
			rationalEntry(tagXResolution, uint32(n.Density), 1),
			rationalEntry(tagYResolution, uint32(n.Density), 1),
			shortEntry(tagResolutionUnit, resolutionUnitInch),
		)
	}
	if n.Title != "" {
		d := append(encodeUTF16LE(n.Title), 0, 0)
		ifd0 = append(ifd0, ifdEntry{tag: tagXPTitle, typ: typeByte, count: uint32(len(d)), data: d})
	}

	if n.UserComment != "" {
		d := encodeUserComment(n.UserComment)
		sub = append(sub, ifdEntry{tag: tagUserComment, typ: typeUndefined, count: uint32(len(d)), data: d})
	}
	switch n.ColorSpace {
	case metadata.ColorSpaceSRGB:
		sub = append(sub, shortEntry(tagColorSpace, colorSpaceSRGB))
	case metadata.ColorSpaceOther:
		sub = append(sub, shortEntry(tagColorSpace, colorSpaceUncal))
	}
	if len(sub) > 0 {
		sub = append(sub, ifdEntry{tag: tagExifVersion, typ: typeUndefined, count: 4, data: exifVersion})
		ifd0 = append(ifd0, ifdEntry{tag: tagExifIFD, typ: typeLong, count: 1, data: make([]byte, 4)})
	}

	const ifd0Offset = 8
	first := layoutIFD(ifd0, ifd0Offset)
	var second []byte
	if len(sub) > 0 {
		subOffset := uint32(ifd0Offset + len(first))
		for i := range ifd0 {
			if ifd0[i].tag == tagExifIFD {
				binary.LittleEndian.PutUint32(ifd0[i].data, subOffset)
			}
		}
		first = layoutIFD(ifd0, ifd0Offset)
		second = layoutIFD(sub, subOffset)
	}

	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, binary.LittleEndian, uint16(42))
	binary.Write(&buf, binary.LittleEndian, uint32(ifd0Offset))
	buf.Write(first)
	buf.Write(second)
	return buf.Bytes(), nil
}

// layoutIFD serializes one IFD starting at absolute offset start, followed by
// its out-of-line value area. The result always has even length.
func layoutIFD(entries []ifdEntry, start uint32) []byte {
	slices.SortFunc(entries, func(a, b ifdEntry) int { return int(a.tag) - int(b.tag) })

	dirLen := 2 + 12*len(entries) + 4
	dir := make([]byte, 0, dirLen)
	var extra []byte

	dir = binary.LittleEndian.AppendUint16(dir, uint16(len(entries)))
	for _, e := range entries {
		dir = binary.LittleEndian.AppendUint16(dir, e.tag)
		dir = binary.LittleEndian.AppendUint16(dir, e.typ)
		dir = binary.LittleEndian.AppendUint32(dir, e.count)
		if len(e.data) <= 4 {
			var inline [4]byte
			copy(inline[:], e.data)
			dir = append(dir, inline[:]...)
			continue
		}
		dir = binary.LittleEndian.AppendUint32(dir, start+uint32(dirLen+len(extra)))
		extra = append(extra, e.data...)
		if len(extra)%2 == 1 {
			extra = append(extra, 0)
		}
	}
	dir = binary.LittleEndian.AppendUint32(dir, 0)
	return append(dir, extra...)
}

func shortEntry(tag, v uint16) ifdEntry {
	return ifdEntry{tag: tag, typ: typeShort, count: 1, data: binary.LittleEndian.AppendUint16(nil, v)}
}

func rationalEntry(tag uint16, num, den uint32) ifdEntry {
	d := binary.LittleEndian.AppendUint32(nil, num)
	d = binary.LittleEndian.AppendUint32(d, den)
	return ifdEntry{tag: tag, typ: typeRational, count: 1, data: d}
}

func encodeUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, 2*len(units))
	for _, u := range units {
		out = binary.LittleEndian.AppendUint16(out, u)
	}
	return out
}

func decodeUTF16LE(b []byte) string {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

func encodeUserComment(s string) []byte {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return append(slices.Clone(commentUnicode), encodeUTF16LE(s)...)
		}
	}
	return append(slices.Clone(commentASCII), s...)
}

func decodeUserComment(b []byte) string {
	switch {
	case bytes.HasPrefix(b, commentUnicode):
		return decodeUTF16LE(b[len(commentUnicode):])
	case len(b) >= 8:
		return strings.TrimRight(string(b[8:]), "\x00 ")
	default:
		return ""
	}
}

// ReadEXIF decodes a native tag section. It accepts a bare TIFF structure or
// one prefixed with the JPEG-style "Exif\0\0" marker.
func ReadEXIF(data []byte) (metadata.Native, error) {
	data = bytes.TrimPrefix(data, []byte("Exif\x00\x00"))
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return metadata.Native{}, fmt.Errorf("container: decode exif: %w", err)
	}
	return nativeFromExif(x), nil
}

func nativeFromExif(x *exif.Exif) metadata.Native {
	var n metadata.Native
	str := func(name exif.FieldName) string {
		tag, err := x.Get(name)
		if err != nil {
			return ""
		}
		s, err := tag.StringVal()
		if err != nil {
			return ""
		}
		return strings.TrimRight(s, "\x00")
	}
	n.Description = str(exif.ImageDescription)
	n.Software = str(exif.Software)
	n.Creator = str(exif.Artist)
	n.Copyright = str(exif.Copyright)

	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			n.Orientation = v
		}
	}
	if tag, err := x.Get(exif.XResolution); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			n.Density = int(num / den)
		}
	}
	if tag, err := x.Get(exif.UserComment); err == nil {
		n.UserComment = decodeUserComment(tag.Val)
	}
	if tag, err := x.Get(exif.ColorSpace); err == nil {
		if v, err := tag.Int(0); err == nil {
			if v == colorSpaceSRGB {
				n.ColorSpace = metadata.ColorSpaceSRGB
			} else {
				n.ColorSpace = metadata.ColorSpaceOther
			}
		}
	}

	// goexif has no field name for the Windows XP tags; read IFD0 directly.
	if x.Tiff != nil && len(x.Tiff.Dirs) > 0 {
		for _, tag := range x.Tiff.Dirs[0].Tags {
			if tag.Id == tagXPTitle && tag.Type == tiff.DTByte {
				n.Title = decodeUTF16LE(tag.Val)
			}
		}
	}
	return n
}
