package encoder

import (
	"fmt"
	"strings"
)

// WebP backends.
const (
	BackendAuto    = "auto"
	BackendCWebP   = "cwebp"
	BackendLibWebP = "libwebp"
)

// Registry holds all available codecs and selects one per role.
type Registry struct {
	backend string
	codecs  map[string]Codec
	order   []string
}

// NewRegistry creates a registry, probing all codecs for availability.
// backend picks the WebP implementation used by the primary tier; cwebpPath
// overrides the cwebp lookup.
func NewRegistry(backend, cwebpPath string) *Registry {
	return NewRegistryWith(backend,
		&CWebPCodec{Path: cwebpPath},
		&LibWebPCodec{},
		&JPEGCodec{},
		&PNGCodec{},
	)
}

// NewRegistryWith builds a registry from an explicit codec list. Only
// available codecs are registered; later codecs replace earlier ones with
// the same name.
func NewRegistryWith(backend string, codecs ...Codec) *Registry {
	if backend == "" {
		backend = BackendAuto
	}
	r := &Registry{backend: strings.ToLower(backend), codecs: make(map[string]Codec)}
	for _, c := range codecs {
		if !c.Available() {
			continue
		}
		if _, dup := r.codecs[c.Name()]; !dup {
			r.order = append(r.order, c.Name())
		}
		r.codecs[c.Name()] = c
	}
	return r
}

// Get returns a codec by name, or nil if unavailable.
func (r *Registry) Get(name string) Codec {
	return r.codecs[strings.ToLower(name)]
}

// WebP returns the WebP codec for the configured backend.
func (r *Registry) WebP() (Codec, error) {
	switch r.backend {
	case BackendAuto:
		if c := r.codecs[BackendCWebP]; c != nil {
			return c, nil
		}
		if c := r.codecs[BackendLibWebP]; c != nil {
			return c, nil
		}
		return nil, fmt.Errorf("no webp codec: %w", ErrUnavailable)
	case BackendCWebP, BackendLibWebP:
		if c := r.codecs[r.backend]; c != nil {
			return c, nil
		}
		return nil, fmt.Errorf("webp backend %s: %w", r.backend, ErrUnavailable)
	default:
		return nil, fmt.Errorf("unknown webp backend %q: %w", r.backend, ErrUnavailable)
	}
}

// FallbackChain lists the codecs the fallback tier tries, in order: the
// in-process WebP codec, then PNG for images with alpha or JPEG otherwise.
func (r *Registry) FallbackChain(hasAlpha bool) []Codec {
	var out []Codec
	names := []string{BackendLibWebP, "jpeg"}
	if hasAlpha {
		names[1] = "png"
	}
	for _, n := range names {
		if c := r.codecs[n]; c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Backend returns the configured WebP backend name.
func (r *Registry) Backend() string { return r.backend }

// Available returns all available codec names in registration order.
func (r *Registry) Available() []string {
	return append([]string(nil), r.order...)
}

// String returns a summary of available codecs.
func (r *Registry) String() string {
	avail := r.Available()
	if len(avail) == 0 {
		return "no codecs available"
	}
	return fmt.Sprintf("codecs: %s (webp backend %s)", strings.Join(avail, ", "), r.backend)
}
