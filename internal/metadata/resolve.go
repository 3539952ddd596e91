package metadata

import (
	"encoding/json"
	"errors"
	"maps"
	"regexp"
	"strings"
	"unicode/utf8"
)

var extendedKeyRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,63}$`)

// Resolve merges the three layers into a canonical record.
//
// Precedence is overrides > template > defaults, field by field. A field that
// is empty in a higher layer falls through. Keywords are list-replaced: the
// highest layer with a non-empty list wins outright. Invalid values are
// dropped from their layer and reported as a joined *InvalidMetadataError;
// the returned record is always usable.
func Resolve(defaults Fields, template, overrides *Fields) (Canonical, error) {
	var errs []error

	out, e := sanitize("defaults", defaults)
	errs = append(errs, e...)
	if template != nil {
		t, e := sanitize("template", *template)
		errs = append(errs, e...)
		out = merge(out, t)
	}
	if overrides != nil {
		o, e := sanitize("overrides", *overrides)
		errs = append(errs, e...)
		out = merge(out, o)
	}
	return Canonical{fields: out}, errors.Join(errs...)
}

// New resolves a single layer. Useful when the caller already holds a
// finished record.
func New(f Fields) (Canonical, error) {
	return Resolve(f, nil, nil)
}

// MarshalJSON renders the resolved fields.
func (c Canonical) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.fields)
}

// merge overlays hi on top of lo. Both are already sanitized.
func merge(lo, hi Fields) Fields {
	out := lo.Clone()
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	str(&out.Title, hi.Title)
	str(&out.Description, hi.Description)
	str(&out.Copyright, hi.Copyright)
	str(&out.Creator, hi.Creator)
	str(&out.Credit, hi.Credit)
	str(&out.License, hi.License)
	str(&out.RightsStatement, hi.RightsStatement)
	str(&out.UsageTerms, hi.UsageTerms)
	str(&out.Software, hi.Software)
	str(&out.UserComment, hi.UserComment)
	if hi.ColorSpace != "" {
		out.ColorSpace = hi.ColorSpace
	}
	if hi.Density > 0 {
		out.Density = hi.Density
	}
	if hi.Orientation > 0 {
		out.Orientation = hi.Orientation
	}
	if len(hi.Keywords) > 0 {
		out.Keywords = append([]string(nil), hi.Keywords...)
	}
	if len(hi.Extended) > 0 {
		if out.Extended == nil {
			out.Extended = make(map[string]string, len(hi.Extended))
		}
		maps.Copy(out.Extended, hi.Extended)
	}
	return out
}

// sanitize normalizes one layer and drops invalid values.
func sanitize(layer string, f Fields) (Fields, []error) {
	var errs []error
	out := Fields{}

	text := func(name, v string, max int) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return ""
		}
		if !utf8.ValidString(v) {
			errs = append(errs, invalid(layer, name, "not valid UTF-8"))
			return ""
		}
		if strings.IndexByte(v, 0) >= 0 {
			errs = append(errs, invalid(layer, name, "contains a NUL byte"))
			return ""
		}
		if n := utf8.RuneCountInString(v); n > max {
			errs = append(errs, invalid(layer, name, "%d characters exceeds limit of %d", n, max))
			return ""
		}
		return v
	}

	out.Title = text("title", f.Title, MaxTextLen)
	out.Description = text("description", f.Description, MaxTextLen)
	out.Copyright = text("copyright", f.Copyright, MaxTextLen)
	out.Creator = text("creator", f.Creator, MaxTextLen)
	out.Credit = text("credit", f.Credit, MaxTextLen)
	out.License = text("license", f.License, MaxTextLen)
	out.RightsStatement = text("rightsStatement", f.RightsStatement, MaxTextLen)
	out.UsageTerms = text("usageTerms", f.UsageTerms, MaxTextLen)
	out.Software = text("software", f.Software, MaxTextLen)
	out.UserComment = text("userComment", f.UserComment, MaxTextLen)

	switch f.ColorSpace {
	case "", ColorSpaceSRGB, ColorSpaceOther:
		out.ColorSpace = f.ColorSpace
	default:
		if strings.EqualFold(string(f.ColorSpace), string(ColorSpaceSRGB)) {
			out.ColorSpace = ColorSpaceSRGB
		} else {
			errs = append(errs, invalid(layer, "colorSpace", "unknown color space %q", f.ColorSpace))
		}
	}

	switch {
	case f.Density == 0:
	case f.Density < 0:
		errs = append(errs, invalid(layer, "density", "must be positive, got %d", f.Density))
	default:
		out.Density = f.Density
	}

	switch {
	case f.Orientation == 0:
	case f.Orientation < 1 || f.Orientation > 8:
		errs = append(errs, invalid(layer, "orientation", "must be 1-8, got %d", f.Orientation))
	default:
		out.Orientation = f.Orientation
	}

	out.Keywords = NormalizeKeywords(f.Keywords)

	for k, v := range f.Extended {
		if !extendedKeyRe.MatchString(k) {
			errs = append(errs, invalid(layer, k, "extended key must match %s", extendedKeyRe))
			continue
		}
		v = text(k, v, MaxExtendedLen)
		if v == "" {
			continue
		}
		if out.Extended == nil {
			out.Extended = make(map[string]string)
		}
		out.Extended[k] = v
	}

	return out, errs
}

// NormalizeKeywords trims entries, drops empties and removes duplicates
// (case-sensitive), keeping the first occurrence. Returns nil for an empty
// result.
func NormalizeKeywords(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, k := range in {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
