package encoder

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks a codec that cannot run in this process, e.g. a
// missing external tool.
var ErrUnavailable = errors.New("encoder: codec unavailable")

// UnsupportedFormatError means the source bytes are not a decodable raster.
type UnsupportedFormatError struct {
	Err error
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported image format: %v", e.Err)
}

func (e *UnsupportedFormatError) Unwrap() error { return e.Err }

// PayloadTooLargeError means the input exceeds the byte or pixel ceiling.
type PayloadTooLargeError struct {
	Bytes     int64
	MaxBytes  int64
	Pixels    int64
	MaxPixels int64
}

func (e *PayloadTooLargeError) Error() string {
	if e.Pixels > 0 {
		return fmt.Sprintf("image of %d pixels exceeds limit of %d", e.Pixels, e.MaxPixels)
	}
	return fmt.Sprintf("payload of %d bytes exceeds limit of %d", e.Bytes, e.MaxBytes)
}

// EncodeError is any Primary failure other than the two rejections above.
// It is the trigger for the fallback tier.
type EncodeError struct {
	Codec string
	Stage string
	Err   error
}

func (e *EncodeError) Error() string {
	if e.Codec == "" {
		return fmt.Sprintf("encode %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("encode %s (%s): %v", e.Stage, e.Codec, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
