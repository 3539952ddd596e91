// Package profile holds named encode presets.
package profile

import (
	"maps"
	"slices"

	"github.com/AnyUserName/imgpress/internal/encoder"
)

// Profile defines encode parameters for a delivery target.
type Profile struct {
	Name      string
	Quality   int  // encoding quality 1-100
	Effort    int  // compression effort 0-6
	MaxWidth  int  // 0 = unbounded
	MaxHeight int  // 0 = unbounded
	Fit       encoder.Fit
	Preserve  bool    // keep original dimensions, no geometry or enhancement
	Sharpen   float64 // unsharp sigma applied after resize
	Retina    bool    // double the bounding box
}

// Default is the profile used when none is named.
const Default = "web"

// Built-in profiles.
var profiles = map[string]Profile{
	"web": {
		Name:      "web",
		Quality:   encoder.DefaultQuality,
		Effort:    encoder.DefaultEffort,
		MaxWidth:  1920,
		MaxHeight: 1920,
		Fit:       encoder.FitInside,
	},
	"web-hq": {
		Name:      "web-hq",
		Quality:   90,
		Effort:    6,
		MaxWidth:  1280,
		MaxHeight: 1280,
		Fit:       encoder.FitInside,
		Retina:    true,
	},
	"archive": {
		Name:     "archive",
		Quality:  95,
		Effort:   6,
		Preserve: true,
	},
	"thumbnail": {
		Name:      "thumbnail",
		Quality:   75,
		Effort:    4,
		MaxWidth:  320,
		MaxHeight: 320,
		Fit:       encoder.FitCover,
		Sharpen:   0.5,
	},
}

// Get returns a profile by name. Falls back to web if unknown.
func Get(name string) Profile {
	if p, ok := profiles[name]; ok {
		return p
	}
	p := profiles[Default]
	if name != "" {
		p.Name = name // preserve requested name
	}
	return p
}

// Lookup reports whether name is a built-in profile.
func Lookup(name string) (Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// Names lists the built-in profiles, sorted.
func Names() []string {
	return slices.Sorted(maps.Keys(profiles))
}

// Box returns the effective bounding box, doubled for retina profiles.
func (p Profile) Box() (w, h int) {
	w, h = p.MaxWidth, p.MaxHeight
	if p.Retina {
		w, h = w*2, h*2
	}
	return w, h
}

// Apply fills the request fields the caller left unset. Caller values win.
func (p Profile) Apply(req *encoder.Request) {
	if req.Quality == 0 {
		req.Quality = p.Quality
	}
	if req.Effort == 0 {
		req.Effort = p.Effort
	}
	if p.Preserve {
		req.PreserveOriginalSize = true
	}
	if req.PreserveOriginalSize {
		return
	}
	if req.Resize == nil {
		if w, h := p.Box(); w > 0 || h > 0 {
			req.Resize = &encoder.Resize{MaxWidth: w, MaxHeight: h, Fit: p.Fit}
		}
	}
	if req.Enhance == nil && p.Sharpen > 0 {
		req.Enhance = &encoder.Enhance{Sharpen: p.Sharpen}
	}
}
