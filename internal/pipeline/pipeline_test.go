package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnyUserName/imgpress/internal/container"
	"github.com/AnyUserName/imgpress/internal/encoder"
	"github.com/AnyUserName/imgpress/internal/hasher"
	"github.com/AnyUserName/imgpress/internal/manifest"
	"github.com/AnyUserName/imgpress/internal/metadata"
	"github.com/AnyUserName/imgpress/internal/naming"
	"github.com/AnyUserName/imgpress/internal/profile"
	"github.com/AnyUserName/imgpress/internal/storage"
)

func jpegFixture(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

// halvingEncoder stands in for the encode chain: it rejects undecodable input
// and returns the first half of the payload as the "encoded" artifact.
type halvingEncoder struct {
	mu    sync.Mutex
	calls int
}

func (e *halvingEncoder) Encode(ctx context.Context, req encoder.Request) (*encoder.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	probe, err := encoder.ProbeHeader(req.Data)
	if err != nil {
		return nil, err
	}
	return &encoder.Result{
		Data:             req.Data[:len(req.Data)/2],
		Width:            probe.Width,
		Height:           probe.Height,
		Format:           "webp",
		Tier:             encoder.TierPrimary,
		MetadataEmbedded: !req.Metadata.IsZero(),
		Converted:        true,
	}, nil
}

// flakyStore fails the first n Puts and can hide listings once.
type flakyStore struct {
	*storage.Memory
	mu        sync.Mutex
	failPuts  int
	puts      int
	hideLists int
}

func (s *flakyStore) List(ctx context.Context, prefix, search string) ([]string, error) {
	s.mu.Lock()
	hide := s.hideLists > 0
	if hide {
		s.hideLists--
	}
	s.mu.Unlock()
	if hide {
		return nil, nil
	}
	return s.Memory.List(ctx, prefix, search)
}

func (s *flakyStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	s.puts++
	fail := s.puts <= s.failPuts
	s.mu.Unlock()
	if fail {
		return "", errors.New("connection reset")
	}
	return s.Memory.Put(ctx, key, data)
}

type fixture struct {
	p       *Pipeline
	store   *flakyStore
	records *manifest.Collector
	enc     *halvingEncoder
}

func newFixture(t *testing.T, reject bool) *fixture {
	t.Helper()
	f := &fixture{
		store:   &flakyStore{Memory: storage.NewMemory("https://cdn.example.com", reject)},
		records: &manifest.Collector{},
		enc:     &halvingEncoder{},
	}
	env := metadata.Environment{Name: "staging", Defaults: metadata.Fields{Copyright: "(c) Example", Software: "imgpress"}}
	f.p = New(Config{RunID: "run-1", Workers: 2, Profile: profile.Get("web")}, Deps{
		Encoder:  f.enc,
		Resolver: metadata.NewResolver(env, nil),
		Namer:    naming.New(naming.Config{Prefix: "uploads"}, naming.WithSeed(7)),
		Store:    f.store,
		Records:  f.records,
	})
	f.p.sleep = func(context.Context, time.Duration) error { return nil }
	return f
}

func TestProcess_DigestAlgorithmAndUnicodeName(t *testing.T) {
	f := newFixture(t, false)
	f.p.cfg.DigestAlgo = hasher.AlgoSHA256

	pub, err := f.p.Process(context.Background(), Input{Data: jpegFixture(t, 16, 16), Filename: "Café Menu.JPG"})
	require.NoError(t, err)

	assert.Equal(t, "uploads/cafe-menu.webp", pub.Artifact.Path)
	want, err := hasher.Digest(pub.Result.Data, hasher.AlgoSHA256)
	require.NoError(t, err)
	assert.Equal(t, want, pub.Digest)
	assert.Equal(t, want, f.records.Records()[0][manifest.KeyDigest])
}

func TestProcess_PublishesAndRecords(t *testing.T) {
	f := newFixture(t, false)
	data := jpegFixture(t, 64, 32)

	pub, err := f.p.Process(context.Background(), Input{
		Data:      data,
		Filename:  "My Photo.JPG",
		Overrides: &metadata.Fields{Title: "Demo", Keywords: []string{"a", "b"}},
	})
	require.NoError(t, err)

	assert.Equal(t, naming.Artifact{Name: "my-photo.webp", Path: "uploads/my-photo.webp"}, pub.Artifact)
	assert.Equal(t, "https://cdn.example.com/uploads/my-photo.webp", pub.URL)
	assert.Len(t, pub.Hash, 16)
	assert.Contains(t, pub.Digest, "blake3:")
	assert.InDelta(t, 50, pub.Stats.RatioPercent, 1)

	stored, ok := f.store.Get("uploads/my-photo.webp")
	require.True(t, ok)
	assert.Equal(t, pub.Result.Data, stored)

	recs := f.records.Records()
	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, "run-1", r[manifest.KeyRunID])
	assert.Equal(t, "primary", r[manifest.KeyTier])
	assert.Equal(t, "true", r[manifest.KeyEmbedded])
	assert.Equal(t, "Demo", r[manifest.KeyMetaPrefix+"title"])
	assert.Equal(t, "(c) Example", r[manifest.KeyMetaPrefix+"copyright"])
	assert.Equal(t, "a, b", r[manifest.KeyMetaPrefix+"keywords"])
}

func TestProcess_CollisionGetsSuffix(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.store.Put(context.Background(), "uploads/photo.webp", []byte("taken"))
	require.NoError(t, err)

	pub, err := f.p.Process(context.Background(), Input{Data: jpegFixture(t, 16, 16), Filename: "photo.png"})
	require.NoError(t, err)
	assert.Regexp(t, `^photo-[a-z0-9]{5}\.webp$`, pub.Artifact.Name)
}

func TestProcess_UploadRetried(t *testing.T) {
	f := newFixture(t, false)
	f.store.failPuts = 2

	_, err := f.p.Process(context.Background(), Input{Data: jpegFixture(t, 16, 16), Filename: "a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, 3, f.store.puts)
}

func TestProcess_UploadExhausted(t *testing.T) {
	f := newFixture(t, false)
	f.store.failPuts = 100

	_, err := f.p.Process(context.Background(), Input{Data: jpegFixture(t, 16, 16), Filename: "a.jpg"})
	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, DefaultUploadAttempts, ue.Attempts)
	assert.Equal(t, DefaultUploadAttempts, f.store.puts)
	assert.Empty(t, f.records.Records(), "no record for a failed upload")
}

func TestProcess_RejectedPutTriggersRename(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.store.Memory.Put(context.Background(), "uploads/photo.webp", []byte("taken"))
	require.NoError(t, err)
	// The first listing misses the object, as if another writer won the race.
	f.store.hideLists = 1

	pub, err := f.p.Process(context.Background(), Input{Data: jpegFixture(t, 16, 16), Filename: "photo.jpg"})
	require.NoError(t, err)
	assert.NotEqual(t, "photo.webp", pub.Artifact.Name)
	assert.Equal(t, 2, f.store.puts)
}

func TestEncode_UnknownProfile(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.p.Encode(context.Background(), Input{Data: jpegFixture(t, 8, 8), Filename: "a.jpg", Profile: "poster"})
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func TestEncode_UnsupportedFormatSurfaces(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.p.Encode(context.Background(), Input{Data: []byte("not an image"), Filename: "a.jpg"})
	var uf *encoder.UnsupportedFormatError
	assert.ErrorAs(t, err, &uf)
}

func writeSources(t *testing.T, dir string) {
	t.Helper()
	for _, name := range []string{"c.jpg", "a.jpg", "nested/b.jpg"} {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, jpegFixture(t, 40, 20), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("garbage"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg.json"), []byte(`{"title":"From sidecar","software":"x"}`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".cache"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".cache", "skip.jpg"), []byte("x"), 0o644))
}

func TestScanImages(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir)

	sources, err := ScanImages(dir)
	require.NoError(t, err)

	var rels []string
	for _, s := range sources {
		rels = append(rels, s.RelPath)
	}
	assert.Equal(t, []string{"a.jpg", "broken.png", "c.jpg", "nested/b.jpg"}, rels)
	assert.Equal(t, "jpeg", sources[0].Format)
	assert.Equal(t, filepath.Join(dir, "a.jpg.json"), sources[0].SidecarPath)
	assert.Empty(t, sources[2].SidecarPath)
	assert.Equal(t, "nested/b.jpg", sources[3].RelPath)
	assert.Equal(t, filepath.Join(dir, "nested", "b.jpg"), sources[3].AbsPath)
}

func TestRun_Batch(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir)
	sources, err := ScanImages(dir)
	require.NoError(t, err)

	f := newFixture(t, false)
	m, err := f.p.Run(context.Background(), sources)
	require.NoError(t, err)

	assert.Equal(t, "run-1", m.RunID)
	assert.Equal(t, "staging", m.Environment)
	assert.Equal(t, 4, m.Stats.TotalAssets)
	assert.Equal(t, 3, m.Stats.Published)
	assert.Equal(t, 1, m.Stats.Failed)
	assert.Equal(t, manifest.StatusFailed, m.Assets["broken.png"].Status)

	a := m.Assets["a.jpg"]
	require.NotNil(t, a.Output)
	assert.Equal(t, 40, a.Source.Width)
	assert.Equal(t, "From sidecar", a.Meta["title"])
	assert.Equal(t, "imgpress", a.Meta["software"], "sidecar cannot set software")

	// Publishing follows input order, so names are reserved in that order.
	var names []string
	for _, r := range f.records.Records() {
		names = append(names, r[manifest.KeyAsset])
	}
	assert.Equal(t, []string{"a.jpg", "c.jpg", "nested/b.jpg"}, names)
	assert.Equal(t, "uploads/b.webp", m.Assets["nested/b.jpg"].Output.Path)
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir)
	sources, err := ScanImages(dir)
	require.NoError(t, err)

	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := f.p.Run(ctx, sources)
	require.Error(t, err)
	require.NotNil(t, m)
	assert.Equal(t, len(sources), m.Stats.Cancelled)
	assert.Zero(t, f.enc.calls)
	assert.Zero(t, f.store.Len())
}

func TestProcess_RealEncoderEmbedsMetadata(t *testing.T) {
	reg := encoder.NewRegistryWith(encoder.BackendLibWebP,
		&encoder.LibWebPCodec{}, &encoder.JPEGCodec{}, &encoder.PNGCodec{})
	store := storage.NewMemory("", false)
	p := New(Config{Profile: profile.Get("web")}, Deps{
		Encoder:  encoder.NewChain(reg, encoder.DefaultLimits(), nil),
		Store:    store,
		Registry: reg,
	})

	pub, err := p.Process(context.Background(), Input{
		Data:      jpegFixture(t, 120, 80),
		Filename:  "scene.jpg",
		Overrides: &metadata.Fields{Title: "Scene", Credit: "Studio"},
	})
	require.NoError(t, err)
	assert.Equal(t, "primary", pub.Result.Label())
	assert.True(t, pub.Result.MetadataEmbedded)

	stored, ok := store.Get(pub.Artifact.Path)
	require.True(t, ok)
	info, err := container.Inspect(stored)
	require.NoError(t, err)
	assert.Equal(t, "Scene", info.Title())
	assert.Equal(t, "Studio", info.Extended.Credit)
	assert.Equal(t, 120, info.Width)
}
