package encoder

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

// Fit is how an image is placed into the target box.
type Fit string

const (
	// FitCover scales to cover the box and crops the overflow at the anchor.
	FitCover Fit = "cover"
	// FitContain scales to fit inside the box and pads to the box, clamped
	// to the source size unless upscaling is allowed.
	FitContain Fit = "contain"
	// FitFill stretches to the exact box, ignoring aspect ratio.
	FitFill Fit = "fill"
	// FitInside scales so both sides are within the box.
	FitInside Fit = "inside"
	// FitOutside scales so both sides are at least the box.
	FitOutside Fit = "outside"
)

// ParseFit validates a fit name. Empty selects FitInside.
func ParseFit(s string) (Fit, error) {
	switch f := Fit(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FitInside, nil
	case FitCover, FitContain, FitFill, FitInside, FitOutside:
		return f, nil
	default:
		return "", fmt.Errorf("unknown fit %q", s)
	}
}

var anchors = map[string]imaging.Anchor{
	"":             imaging.Center,
	"center":       imaging.Center,
	"top":          imaging.Top,
	"bottom":       imaging.Bottom,
	"left":         imaging.Left,
	"right":        imaging.Right,
	"top-left":     imaging.TopLeft,
	"top-right":    imaging.TopRight,
	"bottom-left":  imaging.BottomLeft,
	"bottom-right": imaging.BottomRight,
}

// ValidAnchor reports whether s names an anchor.
func ValidAnchor(s string) bool {
	_, ok := anchors[strings.ToLower(s)]
	return ok
}

// Resize describes the target geometry. A zero side is unconstrained.
type Resize struct {
	MaxWidth     int
	MaxHeight    int
	Fit          Fit
	Anchor       string
	AllowUpscale bool
}

// IsZero reports whether no box was given.
func (r Resize) IsZero() bool { return r.MaxWidth <= 0 && r.MaxHeight <= 0 }

// Dimensions returns the output size for a w x h source.
func (r Resize) Dimensions(w, h int) (int, int) {
	if r.IsZero() || w <= 0 || h <= 0 {
		return w, h
	}
	bw, bh := r.MaxWidth, r.MaxHeight

	// One side only: proportional scale to that side.
	if bw <= 0 || bh <= 0 {
		var s float64
		if bw > 0 {
			s = float64(bw) / float64(w)
		} else {
			s = float64(bh) / float64(h)
		}
		if s > 1 && !r.AllowUpscale {
			return w, h
		}
		return scaled(w, h, s)
	}

	switch r.Fit {
	case FitCover, FitContain, FitFill:
		// Without upscaling no output side exceeds the source side, so a
		// contain canvas shrinks with the box.
		if !r.AllowUpscale {
			return min(bw, w), min(bh, h)
		}
		return bw, bh
	case FitOutside:
		s := math.Max(float64(bw)/float64(w), float64(bh)/float64(h))
		if s > 1 && !r.AllowUpscale {
			return w, h
		}
		return scaled(w, h, s)
	default: // FitInside
		s := math.Min(float64(bw)/float64(w), float64(bh)/float64(h))
		if s > 1 && !r.AllowUpscale {
			return w, h
		}
		return scaled(w, h, s)
	}
}

func scaled(w, h int, s float64) (int, int) {
	return max(1, int(math.Round(float64(w)*s))), max(1, int(math.Round(float64(h)*s)))
}

// Apply resizes img according to r.
func (r Resize) Apply(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	tw, th := r.Dimensions(w, h)
	if r.IsZero() {
		return img
	}
	anchor := anchors[strings.ToLower(r.Anchor)]

	bothSides := r.MaxWidth > 0 && r.MaxHeight > 0
	switch {
	case bothSides && r.Fit == FitCover:
		if tw == w && th == h {
			return img
		}
		return imaging.Fill(img, tw, th, anchor, imaging.Lanczos)
	case bothSides && r.Fit == FitContain:
		s := math.Min(float64(tw)/float64(w), float64(th)/float64(h))
		if s > 1 && !r.AllowUpscale {
			s = 1
		}
		iw, ih := scaled(w, h, s)
		inner := img
		if iw != w || ih != h {
			inner = imaging.Resize(img, iw, ih, imaging.Lanczos)
		}
		canvas := imaging.New(tw, th, color.NRGBA{})
		return imaging.Paste(canvas, inner, anchorPoint(anchor, tw, th, iw, ih))
	default:
		if tw == w && th == h {
			return img
		}
		return imaging.Resize(img, tw, th, imaging.Lanczos)
	}
}

// anchorPoint positions an iw x ih image inside a cw x ch canvas.
func anchorPoint(a imaging.Anchor, cw, ch, iw, ih int) image.Point {
	x, y := (cw-iw)/2, (ch-ih)/2
	switch a {
	case imaging.TopLeft, imaging.Left, imaging.BottomLeft:
		x = 0
	case imaging.TopRight, imaging.Right, imaging.BottomRight:
		x = cw - iw
	}
	switch a {
	case imaging.TopLeft, imaging.Top, imaging.TopRight:
		y = 0
	case imaging.BottomLeft, imaging.Bottom, imaging.BottomRight:
		y = ch - ih
	}
	return image.Pt(x, y)
}
