package encoder

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Enhance is optional perceptual post-processing. Zero values are no-ops.
type Enhance struct {
	Sharpen    float64 // gaussian sigma
	Brightness float64 // percent, -100..100
	Contrast   float64 // percent, -100..100
	Saturation float64 // percent, -100..500
	Hue        float64 // degrees
	Gamma      float64 // 1 is identity
	Normalize  bool    // stretch luminance to the full range
}

// IsZero reports whether no filter is requested.
func (e Enhance) IsZero() bool {
	return e == Enhance{} || e == Enhance{Gamma: 1}
}

// Apply runs the requested filters in a fixed order.
func (e Enhance) Apply(img image.Image) image.Image {
	if e.IsZero() {
		return img
	}
	out := img
	if e.Normalize {
		out = normalize(out)
	}
	if e.Gamma > 0 && e.Gamma != 1 {
		out = imaging.AdjustGamma(out, e.Gamma)
	}
	if e.Brightness != 0 {
		out = imaging.AdjustBrightness(out, e.Brightness)
	}
	if e.Contrast != 0 {
		out = imaging.AdjustContrast(out, e.Contrast)
	}
	if e.Saturation != 0 {
		out = imaging.AdjustSaturation(out, e.Saturation)
	}
	if h := math.Mod(e.Hue, 360); h != 0 {
		out = rotateHue(out, h)
	}
	if e.Sharpen > 0 {
		out = imaging.Sharpen(out, e.Sharpen)
	}
	return out
}

// normalize stretches the 1st..99th luminance percentile to 0..255.
func normalize(img image.Image) image.Image {
	hist := imaging.Histogram(img)
	lo, hi := percentile(hist, 0.01), percentile(hist, 0.99)
	if hi <= lo {
		return img
	}
	scale := 255 / float64(hi-lo)
	stretch := func(v uint8) uint8 {
		f := (float64(v) - float64(lo)) * scale
		return uint8(math.Max(0, math.Min(255, math.Round(f))))
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: stretch(c.R), G: stretch(c.G), B: stretch(c.B), A: c.A}
	})
}

func percentile(hist [256]float64, p float64) int {
	var acc float64
	for i, v := range hist {
		acc += v
		if acc >= p {
			return i
		}
	}
	return 255
}

// rotateHue shifts every pixel's hue by deg degrees in HSL space.
func rotateHue(img image.Image, deg float64) image.Image {
	shift := deg / 360
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		h, s, l := rgbToHSL(c.R, c.G, c.B)
		h = math.Mod(h+shift+1, 1)
		r, g, b := hslToRGB(h, s, l)
		return color.NRGBA{R: r, G: g, B: b, A: c.A}
	})
}

func rgbToHSL(r8, g8, b8 uint8) (h, s, l float64) {
	r, g, b := float64(r8)/255, float64(g8)/255, float64(b8)/255
	mx, mn := math.Max(r, math.Max(g, b)), math.Min(r, math.Min(g, b))
	l = (mx + mn) / 2
	if mx == mn {
		return 0, 0, l
	}
	d := mx - mn
	if l > 0.5 {
		s = d / (2 - mx - mn)
	} else {
		s = d / (mx + mn)
	}
	switch mx {
	case r:
		h = (g - b) / d
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	return h / 6, s, l
}

func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	if s == 0 {
		v := uint8(math.Round(l * 255))
		return v, v, v
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	conv := func(t float64) uint8 {
		t = math.Mod(t+1, 1)
		var v float64
		switch {
		case t < 1.0/6:
			v = p + (q-p)*6*t
		case t < 0.5:
			v = q
		case t < 2.0/3:
			v = p + (q-p)*(2.0/3-t)*6
		default:
			v = p
		}
		return uint8(math.Round(v * 255))
	}
	return conv(h + 1.0/3), conv(h), conv(h - 1.0/3)
}
