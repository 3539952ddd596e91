package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/chai2010/webp"
)

// Atomic counter for unique temp file names across goroutines.
var tempCounter atomic.Int64

// CWebPCodec encodes images to WebP by shelling out to cwebp.
// Install: brew install webp / apt install webp
type CWebPCodec struct {
	// Path overrides the cwebp lookup in PATH.
	Path string

	once      sync.Once
	available bool
	cwebpPath string
}

func (c *CWebPCodec) Name() string   { return "cwebp" }
func (c *CWebPCodec) Format() string { return "webp" }

func (c *CWebPCodec) Available() bool {
	c.once.Do(func() {
		bin := c.Path
		if bin == "" {
			bin = "cwebp"
		}
		path, err := exec.LookPath(bin)
		if err == nil {
			c.available = true
			c.cwebpPath = path
		}
	})
	return c.available
}

func (c *CWebPCodec) Encode(img image.Image, opts Options) ([]byte, error) {
	if !c.Available() {
		return nil, fmt.Errorf("cwebp not found in PATH: %w", ErrUnavailable)
	}

	// cwebp reads files; hand it a lossless PNG of the source.
	id := tempCounter.Add(1)
	srcFile, err := os.CreateTemp("", fmt.Sprintf("imgpress_src_%d_*.png", id))
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	srcPath := srcFile.Name()
	defer os.Remove(srcPath)

	dstFile, err := os.CreateTemp("", fmt.Sprintf("imgpress_dst_%d_*.webp", id))
	if err != nil {
		srcFile.Close()
		return nil, fmt.Errorf("create temp: %w", err)
	}
	dstPath := dstFile.Name()
	dstFile.Close()
	defer os.Remove(dstPath)

	if err := (&png.Encoder{CompressionLevel: png.BestSpeed}).Encode(srcFile, img); err != nil {
		srcFile.Close()
		return nil, fmt.Errorf("encode temp png: %w", err)
	}
	if err := srcFile.Close(); err != nil {
		return nil, fmt.Errorf("close temp png: %w", err)
	}

	// -metadata none: the container is rewritten afterwards.
	cmd := exec.Command(c.cwebpPath,
		"-q", strconv.Itoa(opts.Quality),
		"-m", strconv.Itoa(opts.Effort),
		"-mt",
		"-metadata", "none",
		"-quiet",
		srcPath,
		"-o", dstPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("cwebp: %w: %s", err, string(out))
	}

	return os.ReadFile(dstPath)
}

// LibWebPCodec encodes images to WebP in-process through libwebp (cgo).
// It has no method knob; at the highest effort it also tries a lossless
// encode and keeps whichever bitstream is smaller.
type LibWebPCodec struct{}

func (c *LibWebPCodec) Name() string    { return "libwebp" }
func (c *LibWebPCodec) Format() string  { return "webp" }
func (c *LibWebPCodec) Available() bool { return true }

func (c *LibWebPCodec) Encode(img image.Image, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(128 * 1024)
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(opts.Quality)}); err != nil {
		return nil, fmt.Errorf("libwebp: %w", err)
	}
	lossy := buf.Bytes()
	if opts.Effort < 6 {
		return lossy, nil
	}

	var ll bytes.Buffer
	if err := webp.Encode(&ll, img, &webp.Options{Lossless: true}); err != nil || ll.Len() >= len(lossy) {
		return lossy, nil
	}
	return ll.Bytes(), nil
}
