package naming

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// takenFirst reports the first n listing calls as collisions.
func takenFirst(n int, calls *int) ListerFunc {
	return func(_ context.Context, _, search string) ([]string, error) {
		*calls++
		if *calls <= n {
			return []string{search}, nil
		}
		return nil, nil
	}
}

func TestReserve_FreeOnFirstAttempt(t *testing.T) {
	calls := 0
	s := New(Config{Prefix: "uploads"})

	a, err := s.Reserve(context.Background(), "photo", "webp", takenFirst(0, &calls))
	require.NoError(t, err)
	assert.Equal(t, "photo.webp", a.Name)
	assert.Equal(t, "uploads/photo.webp", a.Path)
	assert.Equal(t, 1, calls)
}

func TestReserve_ThirdCandidateWins(t *testing.T) {
	calls := 0
	s := New(Config{}, WithSeed(1))

	a, err := s.Reserve(context.Background(), "photo", ".WEBP", takenFirst(2, &calls))
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^photo-[a-z0-9]{5}\.webp$`), a.Name)
	assert.Equal(t, 3, calls)
}

func TestReserve_SubstringListingIsNotACollision(t *testing.T) {
	lister := ListerFunc(func(context.Context, string, string) ([]string, error) {
		return []string{"photo.webp.bak", "my-photo.webp", "uploads/photo-2.webp"}, nil
	})
	a, err := New(Config{}).Reserve(context.Background(), "photo", "webp", lister)
	require.NoError(t, err)
	assert.Equal(t, "photo.webp", a.Name)
}

func TestReserve_PrefixedListingCollides(t *testing.T) {
	calls := 0
	lister := ListerFunc(func(_ context.Context, prefix, search string) ([]string, error) {
		calls++
		if calls == 1 {
			return []string{prefix + "/" + search}, nil
		}
		return nil, nil
	})
	a, err := New(Config{Prefix: "u"}).Reserve(context.Background(), "photo", "webp", lister)
	require.NoError(t, err)
	assert.NotEqual(t, "photo.webp", a.Name)
	assert.Equal(t, 2, calls)
}

func TestReserve_TimestampFallback(t *testing.T) {
	calls := 0
	now := time.UnixMilli(1700000000123)
	s := New(Config{MaxAttempts: 10}, WithClock(func() time.Time { return now }))

	a, err := s.Reserve(context.Background(), "photo", "webp", takenFirst(10, &calls))
	require.NoError(t, err)
	assert.Equal(t, "photo-1700000000123.webp", a.Name)
	assert.Equal(t, 11, calls)
}

func TestReserve_Exhausted(t *testing.T) {
	calls := 0
	s := New(Config{MaxAttempts: 3})

	_, err := s.Reserve(context.Background(), "photo", "webp", takenFirst(100, &calls))
	var exhausted *NamingExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "photo", exhausted.Base)
	assert.Equal(t, 4, calls)
}

func TestReserve_ListerError(t *testing.T) {
	boom := errors.New("storage down")
	lister := ListerFunc(func(context.Context, string, string) ([]string, error) { return nil, boom })

	_, err := New(Config{}).Reserve(context.Background(), "photo", "webp", lister)
	assert.ErrorIs(t, err, boom)
}

func TestReserve_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	_, err := New(Config{}).Reserve(ctx, "photo", "webp", takenFirst(0, &calls))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

// Two concurrent reservations against a listing that only ever reports the
// plain name both terminate. Nothing stops them returning the same
// suffixed name; naming is not atomic with the upload.
func TestReserve_ConcurrentRace(t *testing.T) {
	var calls atomic.Int32
	lister := ListerFunc(func(context.Context, string, string) ([]string, error) {
		calls.Add(1)
		return []string{"photo.webp"}, nil
	})
	s := New(Config{})

	var wg sync.WaitGroup
	names := make([]string, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := s.Reserve(context.Background(), "photo", "webp", lister)
			names[i], errs[i] = a.Name, err
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reservations did not terminate")
	}

	for i := range 2 {
		require.NoError(t, errs[i])
		assert.True(t, strings.HasPrefix(names[i], "photo-"), names[i])
		assert.True(t, strings.HasSuffix(names[i], ".webp"), names[i])
	}
	assert.Equal(t, int32(4), calls.Load())
}

func TestLock_SerializesPerBase(t *testing.T) {
	s := New(Config{})
	var inside atomic.Int32
	var maxInside atomic.Int32

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("Photo")
			defer unlock()
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
	assert.Empty(t, s.locks.locks)

	// Different bases do not block each other.
	a := s.Lock("a")
	b := s.Lock("b")
	a()
	b()
}

func TestBaseName_FoldsDiacritics(t *testing.T) {
	tests := map[string]string{
		"Café Menu.JPG":    "cafe-menu",
		"Ảnh sản phẩm.jpg": "anh-san-pham",
		"đồng hồ.png":      "dong-ho",
		"Łódź Straße.webp": "lodz-strasse",
		"日本.png":           "日本",
		"写真 01.jpeg":       "写真-01",
	}
	for in, want := range tests {
		assert.Equal(t, want, BaseName(in), in)
	}
	assert.NotEqual(t, BaseName("日本.png"), BaseName("中国.png"), "distinct scripts do not collapse to one base")
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"Photo.JPG":               "photo",
		"My Holiday Pic.png":      "my-holiday-pic",
		`C:\Users\me\shot 1.jpeg`: "shot-1",
		"dir/sub/über_cool!.gif":  "uber_cool",
		".hidden":                 "image",
		"archive.tar.gz":          "archive.tar",
	}
	for in, want := range tests {
		assert.Equal(t, want, BaseName(in), in)
	}
}
