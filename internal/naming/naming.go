// Package naming picks collision-free artifact names in a shared store.
//
// Reserve is list-then-reserve and is NOT atomic with the upload that
// follows it: two callers asking for the same base at the same time can both
// see the name as free and both return it. Callers that need exclusivity
// either hold Lock(base) across naming and upload, or write through a store
// that rejects existing paths and call Reserve again on rejection.
package naming

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Defaults.
const (
	DefaultSuffixLength = 5
	DefaultMaxAttempts  = 10
)

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Lister is the storage listing capability Reserve needs.
type Lister interface {
	List(ctx context.Context, prefix, search string) ([]string, error)
}

// ListerFunc adapts a function to Lister.
type ListerFunc func(ctx context.Context, prefix, search string) ([]string, error)

func (f ListerFunc) List(ctx context.Context, prefix, search string) ([]string, error) {
	return f(ctx, prefix, search)
}

// NamingExhaustedError is returned when every candidate, including the
// timestamp candidate, collided.
type NamingExhaustedError struct {
	Base     string
	Attempts int
}

func (e *NamingExhaustedError) Error() string {
	return fmt.Sprintf("naming: no free name for %q after %d attempts", e.Base, e.Attempts)
}

// Config controls candidate generation.
type Config struct {
	// Prefix is the storage folder names are reserved under.
	Prefix       string
	SuffixLength int
	// MaxAttempts counts listing calls before the timestamp candidate,
	// including the first.
	MaxAttempts int
}

// Artifact is a reserved name and its storage path.
type Artifact struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Service reserves names.
type Service struct {
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand

	locks keyedMutex
}

// Option configures a Service.
type Option func(*Service)

// WithSeed makes suffixes deterministic. Used by tests.
func WithSeed(seed uint64) Option {
	return func(s *Service) { s.rng = rand.New(rand.NewPCG(seed, seed)) }
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger attaches a logger for collisions.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service.
func New(cfg Config, opts ...Option) *Service {
	if cfg.SuffixLength <= 0 {
		cfg.SuffixLength = DefaultSuffixLength
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	s := &Service{
		cfg:    cfg,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reserve returns a name for base.ext that the lister does not report.
//
// The first candidate is base.ext. Each collision produces base-xxxxx.ext
// with a fresh random suffix, for MaxAttempts listing calls in total. One
// final base-<unix millis>.ext candidate is then checked. A listing
// collision is an exact name match; listings that merely contain the
// candidate do not count.
func (s *Service) Reserve(ctx context.Context, base, ext string, lister Lister) (Artifact, error) {
	base = Slug(base)
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")

	candidate := base + "." + ext
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		taken, err := s.taken(ctx, candidate, lister)
		if err != nil {
			return Artifact{}, err
		}
		if !taken {
			return s.artifact(candidate), nil
		}
		s.logger.Debug("naming: collision", "candidate", candidate, "attempt", attempt)
		candidate = base + "-" + s.suffix() + "." + ext
	}

	candidate = base + "-" + strconv.FormatInt(s.now().UnixMilli(), 10) + "." + ext
	taken, err := s.taken(ctx, candidate, lister)
	if err != nil {
		return Artifact{}, err
	}
	if taken {
		return Artifact{}, &NamingExhaustedError{Base: base, Attempts: s.cfg.MaxAttempts + 1}
	}
	return s.artifact(candidate), nil
}

func (s *Service) taken(ctx context.Context, candidate string, lister Lister) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	names, err := lister.List(ctx, s.cfg.Prefix, candidate)
	if err != nil {
		return false, fmt.Errorf("naming: list %q: %w", candidate, err)
	}
	for _, n := range names {
		if path.Base(n) == candidate {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) artifact(name string) Artifact {
	return Artifact{Name: name, Path: path.Join(s.cfg.Prefix, name)}
}

func (s *Service) suffix() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := make([]byte, s.cfg.SuffixLength)
	for i := range b {
		b[i] = suffixAlphabet[s.rng.IntN(len(suffixAlphabet))]
	}
	return string(b)
}

// Lock serializes naming and upload for one base name. The returned func
// releases it.
func (s *Service) Lock(base string) (unlock func()) {
	return s.locks.lock(Slug(base))
}

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// Letters that do not decompose into a base letter plus a mark.
var foldLetters = strings.NewReplacer(
	"đ", "d", "ł", "l", "ø", "o", "ß", "ss", "æ", "ae", "œ", "oe", "þ", "th",
)

// Slug lower-cases s, folds Latin diacritics ("Café" becomes "cafe") and
// replaces runs of characters that are unsafe in object keys with a single
// hyphen. Letters and digits of other scripts are kept.
func Slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s); err == nil {
		s = folded
	}
	s = foldLetters.Replace(s)
	s = unsafeChars.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-.")
	if s == "" {
		return "image"
	}
	return s
}

// BaseName derives the desired base from an uploaded filename: directory
// and extension dropped, then slugged.
func BaseName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	name = strings.TrimSuffix(name, path.Ext(name))
	return Slug(name)
}

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
