package encoder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnyUserName/imgpress/internal/container"
	"github.com/AnyUserName/imgpress/internal/metadata"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

func alphaGradient(w, h int) *image.NRGBA {
	img := gradient(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Pix[img.PixOffset(x, y)+3] = uint8(x * 255 / w)
		}
	}
	return img
}

func jpegBytes(t *testing.T, img image.Image, q int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}))
	return buf.Bytes()
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func canonical(t *testing.T, f metadata.Fields) metadata.Canonical {
	t.Helper()
	c, err := metadata.New(f)
	require.NoError(t, err)
	return c
}

// inProcess avoids depending on a cwebp install.
func inProcess() *Registry {
	return NewRegistryWith(BackendLibWebP, &LibWebPCodec{}, &JPEGCodec{}, &PNGCodec{})
}

type failingCodec struct{ name, format string }

func (c failingCodec) Name() string    { return c.name }
func (c failingCodec) Format() string  { return c.format }
func (c failingCodec) Available() bool { return true }
func (c failingCodec) Encode(image.Image, Options) ([]byte, error) {
	return nil, errors.New("boom")
}

type countingEncoder struct {
	calls int
	res   *Result
	err   error
}

func (e *countingEncoder) Encode(context.Context, Request) (*Result, error) {
	e.calls++
	return e.res, e.err
}

func TestChain_PreserveSizeEmbedsTitle(t *testing.T) {
	src := jpegBytes(t, gradient(1920, 1080), 95)

	chain := NewChain(inProcess(), DefaultLimits(), nil)
	res, err := chain.Encode(context.Background(), Request{
		Data:                 src,
		Quality:              85,
		PreserveOriginalSize: true,
		Resize:               &Resize{MaxWidth: 100, MaxHeight: 100, Fit: FitCover},
		Metadata:             canonical(t, metadata.Fields{Title: "Demo", Keywords: []string{"a"}}),
	})
	require.NoError(t, err)

	assert.Equal(t, TierPrimary, res.Tier)
	assert.True(t, res.Converted)
	assert.True(t, res.MetadataEmbedded)
	assert.Equal(t, "webp", res.Format)
	assert.Equal(t, 1920, res.Width)
	assert.Equal(t, 1080, res.Height)
	assert.Less(t, len(res.Data), len(src))

	info, err := container.Inspect(res.Data)
	require.NoError(t, err)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.Equal(t, "Demo", info.Title())
	assert.Equal(t, []string{"a"}, info.Extended.Keywords)
}

func TestPrimary_ResizeAndEnhance(t *testing.T) {
	p := NewPrimary(inProcess(), DefaultLimits(), nil)
	res, err := p.Encode(context.Background(), Request{
		Data:    pngBytes(t, gradient(400, 200)),
		Effort:  6,
		Resize:  &Resize{MaxWidth: 100, MaxHeight: 100, Fit: FitInside},
		Enhance: &Enhance{Sharpen: 0.5, Brightness: 5, Normalize: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Width)
	assert.Equal(t, 50, res.Height)
	assert.False(t, res.MetadataEmbedded)

	info, err := container.Inspect(res.Data)
	require.NoError(t, err)
	assert.Equal(t, 100, info.Width)
	assert.False(t, info.HasEXIF)
}

func TestPrimary_PayloadTooLarge(t *testing.T) {
	p := NewPrimary(inProcess(), Limits{MaxBytes: 1024}, nil)

	_, err := p.Encode(context.Background(), Request{Data: make([]byte, 10), DeclaredSize: 2048})
	var tooLarge *PayloadTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(2048), tooLarge.Bytes)
}

func TestPrimary_PixelCeiling(t *testing.T) {
	p := NewPrimary(inProcess(), Limits{MaxPixels: 100}, nil)

	_, err := p.Encode(context.Background(), Request{Data: pngBytes(t, gradient(20, 20))})
	var tooLarge *PayloadTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(400), tooLarge.Pixels)
}

func TestPrimary_UnsupportedFormat(t *testing.T) {
	p := NewPrimary(inProcess(), DefaultLimits(), nil)

	_, err := p.Encode(context.Background(), Request{Data: []byte("this is not an image")})
	var unsupported *UnsupportedFormatError
	assert.ErrorAs(t, err, &unsupported)
}

func TestPrimary_UnavailableCodec(t *testing.T) {
	reg := NewRegistryWith(BackendCWebP, &CWebPCodec{Path: "/nonexistent/cwebp"}, &JPEGCodec{})
	p := NewPrimary(reg, DefaultLimits(), nil)

	_, err := p.Encode(context.Background(), Request{Data: pngBytes(t, gradient(8, 8))})
	var encErr *EncodeError
	require.ErrorAs(t, err, &encErr)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestChain_FallsBackOnEncodeError(t *testing.T) {
	reg := NewRegistryWith(BackendCWebP, &CWebPCodec{Path: "/nonexistent/cwebp"}, &LibWebPCodec{}, &JPEGCodec{}, &PNGCodec{})
	chain := NewChain(reg, DefaultLimits(), nil)

	res, err := chain.Encode(context.Background(), Request{
		Data:     jpegBytes(t, gradient(64, 48), 90),
		Quality:  80,
		Metadata: canonical(t, metadata.Fields{Title: "Demo"}),
	})
	require.NoError(t, err)
	assert.Equal(t, TierFallback, res.Tier)
	assert.False(t, res.MetadataEmbedded)
	assert.True(t, res.Converted)
	assert.Equal(t, "webp", res.Format)
	assert.Equal(t, "fallback", res.Label())

	info, err := container.Inspect(res.Data)
	require.NoError(t, err)
	assert.False(t, info.HasEXIF)
	assert.Empty(t, info.Title())
}

func TestChain_DoesNotFallBackOnRejection(t *testing.T) {
	primary := &countingEncoder{err: &UnsupportedFormatError{Err: errors.New("nope")}}
	fallback := &countingEncoder{res: &Result{}}
	chain := &Chain{Primary: primary, Fallback: fallback}

	_, err := chain.Encode(context.Background(), Request{})
	var unsupported *UnsupportedFormatError
	assert.ErrorAs(t, err, &unsupported)
	assert.Equal(t, 1, primary.calls)
	assert.Zero(t, fallback.calls)
}

func TestChain_SingleFallbackAttempt(t *testing.T) {
	primary := &countingEncoder{err: &EncodeError{Stage: "webp", Err: errors.New("boom")}}
	fallback := &countingEncoder{res: &Result{Tier: TierPrimary, MetadataEmbedded: true, Converted: true}}
	chain := &Chain{Primary: primary, Fallback: fallback}

	res, err := chain.Encode(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, TierFallback, res.Tier)
	assert.False(t, res.MetadataEmbedded)
}

func TestFallback_DegradesToJPEGAndPNG(t *testing.T) {
	reg := NewRegistryWith(BackendLibWebP, failingCodec{"libwebp", "webp"}, &JPEGCodec{}, &PNGCodec{})
	fb := NewFallback(reg, nil)

	res, err := fb.Encode(context.Background(), Request{Data: pngBytes(t, gradient(32, 32))})
	require.NoError(t, err)
	assert.Equal(t, "jpeg", res.Format)
	assert.Equal(t, "jpg", res.Extension())

	res, err = fb.Encode(context.Background(), Request{Data: pngBytes(t, alphaGradient(32, 32))})
	require.NoError(t, err)
	assert.Equal(t, "png", res.Format)
}

func TestFallback_PassesThroughUndecodable(t *testing.T) {
	fb := NewFallback(inProcess(), nil)
	src := []byte("garbage bytes")

	res, err := fb.Encode(context.Background(), Request{Data: src})
	require.NoError(t, err)
	assert.False(t, res.Converted)
	assert.Equal(t, src, res.Data)
	assert.Equal(t, "passthrough", res.Label())
}

func TestFallback_PassesThroughWhenEveryCodecFails(t *testing.T) {
	reg := NewRegistryWith(BackendLibWebP, failingCodec{"libwebp", "webp"}, failingCodec{"jpeg", "jpeg"})
	fb := NewFallback(reg, nil)
	src := pngBytes(t, gradient(10, 6))

	res, err := fb.Encode(context.Background(), Request{Data: src})
	require.NoError(t, err)
	assert.False(t, res.Converted)
	assert.Equal(t, src, res.Data)
	assert.Equal(t, "png", res.Format)
	assert.Equal(t, 10, res.Width)
	assert.Equal(t, 6, res.Height)
}

func TestEncode_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewChain(inProcess(), DefaultLimits(), nil).Encode(ctx, Request{Data: pngBytes(t, gradient(4, 4))})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry_WebPSelection(t *testing.T) {
	reg := NewRegistryWith(BackendAuto, &CWebPCodec{Path: "/nonexistent/cwebp"}, &LibWebPCodec{})
	c, err := reg.WebP()
	require.NoError(t, err)
	assert.Equal(t, "libwebp", c.Name())
	assert.Equal(t, []string{"libwebp"}, reg.Available())

	_, err = NewRegistryWith("avif", &LibWebPCodec{}).WebP()
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHasAlpha(t *testing.T) {
	assert.False(t, HasAlpha(gradient(4, 4)))
	assert.True(t, HasAlpha(alphaGradient(4, 4)))
	assert.False(t, HasAlpha(image.NewGray(image.Rect(0, 0, 2, 2))))
}

func TestProbeHeader(t *testing.T) {
	p, err := ProbeHeader(jpegBytes(t, gradient(40, 30), 80))
	require.NoError(t, err)
	assert.Equal(t, Probe{Format: "jpeg", Width: 40, Height: 30}, p)

	p, err = ProbeHeader(pngBytes(t, alphaGradient(8, 6)))
	require.NoError(t, err)
	assert.Equal(t, "png", p.Format)
	assert.True(t, p.Alpha)

	p, err = ProbeHeader(pngBytes(t, gradient(8, 6)))
	require.NoError(t, err)
	assert.False(t, p.Alpha, "opaque png")

	_, err = ProbeHeader([]byte("not an image"))
	var unsupported *UnsupportedFormatError
	assert.ErrorAs(t, err, &unsupported)
}
