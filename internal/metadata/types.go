// Package metadata resolves the descriptive, rights and technical record that
// gets embedded into every encoded asset.
//
// Three layers feed a resolution: environment defaults, a named template and
// per-asset caller overrides. Later layers win field by field, except for
// keywords, where the highest non-empty list replaces the lower ones.
package metadata

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// ColorSpace is the declared color space of the output.
type ColorSpace string

const (
	ColorSpaceSRGB  ColorSpace = "sRGB"
	ColorSpaceOther ColorSpace = "other"
)

// Limits for text fields.
const (
	MaxTextLen     = 512
	MaxExtendedLen = 4096
)

// Fields is one metadata layer. Zero values mean "not set" and fall through
// to the layer below.
type Fields struct {
	Title           string            `yaml:"title,omitempty" json:"title,omitempty"`
	Description     string            `yaml:"description,omitempty" json:"description,omitempty"`
	Copyright       string            `yaml:"copyright,omitempty" json:"copyright,omitempty"`
	Creator         string            `yaml:"creator,omitempty" json:"creator,omitempty"`
	Credit          string            `yaml:"credit,omitempty" json:"credit,omitempty"`
	Keywords        []string          `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	License         string            `yaml:"license,omitempty" json:"license,omitempty"`
	RightsStatement string            `yaml:"rights_statement,omitempty" json:"rightsStatement,omitempty"`
	UsageTerms      string            `yaml:"usage_terms,omitempty" json:"usageTerms,omitempty"`
	Software        string            `yaml:"software,omitempty" json:"software,omitempty"`
	UserComment     string            `yaml:"user_comment,omitempty" json:"userComment,omitempty"`
	ColorSpace      ColorSpace        `yaml:"color_space,omitempty" json:"colorSpace,omitempty"`
	Density         int               `yaml:"density,omitempty" json:"density,omitempty"`
	Orientation     int               `yaml:"orientation,omitempty" json:"orientation,omitempty"`
	Extended        map[string]string `yaml:"extended,omitempty" json:"extended,omitempty"`
}

// Clone returns a deep copy.
func (f Fields) Clone() Fields {
	f.Keywords = slices.Clone(f.Keywords)
	f.Extended = maps.Clone(f.Extended)
	return f
}

// Canonical is the resolved record handed to the encoder. It is built by
// Resolve and treated as immutable afterwards; accessors return copies.
type Canonical struct {
	fields Fields
}

// Fields returns a copy of the resolved values.
func (c Canonical) Fields() Fields { return c.fields.Clone() }

// Title returns the resolved title.
func (c Canonical) Title() string { return c.fields.Title }

// Keywords returns a copy of the resolved keyword list.
func (c Canonical) Keywords() []string { return slices.Clone(c.fields.Keywords) }

// IsZero reports whether nothing was resolved at all.
func (c Canonical) IsZero() bool {
	n, e := c.Partition()
	return n.IsZero() && e.IsZero()
}

// Native holds the fields that have a slot in the container's native tag
// section (EXIF).
type Native struct {
	Title       string
	Description string
	Copyright   string
	Creator     string
	Software    string
	UserComment string
	Orientation int
	Density     int
	ColorSpace  ColorSpace
}

// IsZero reports whether no native field is set.
func (n Native) IsZero() bool { return n == Native{} }

// Extended holds the fields with no native slot. They are demoted into the
// auxiliary XMP block.
type Extended struct {
	Credit          string
	License         string
	RightsStatement string
	UsageTerms      string
	Keywords        []string
	Custom          map[string]string
}

// IsZero reports whether no extended field is set.
func (e Extended) IsZero() bool {
	return e.Credit == "" && e.License == "" && e.RightsStatement == "" &&
		e.UsageTerms == "" && len(e.Keywords) == 0 && len(e.Custom) == 0
}

// JoinedKeywords renders the keyword list as a single display string.
func (e Extended) JoinedKeywords() string { return strings.Join(e.Keywords, ", ") }

// Pairs flattens the extended block into sorted key/value pairs, with
// keywords joined.
func (e Extended) Pairs() [][2]string {
	var out [][2]string
	add := func(k, v string) {
		if v != "" {
			out = append(out, [2]string{k, v})
		}
	}
	add("credit", e.Credit)
	add("license", e.License)
	add("rightsStatement", e.RightsStatement)
	add("usageTerms", e.UsageTerms)
	add("keywords", e.JoinedKeywords())
	for _, k := range slices.Sorted(maps.Keys(e.Custom)) {
		add(k, e.Custom[k])
	}
	return out
}

// Partition splits the record into native-tag-eligible and extended fields.
func (c Canonical) Partition() (Native, Extended) {
	f := c.fields
	n := Native{
		Title:       f.Title,
		Description: f.Description,
		Copyright:   f.Copyright,
		Creator:     f.Creator,
		Software:    f.Software,
		UserComment: f.UserComment,
		Orientation: f.Orientation,
		Density:     f.Density,
		ColorSpace:  f.ColorSpace,
	}
	e := Extended{
		Credit:          f.Credit,
		License:         f.License,
		RightsStatement: f.RightsStatement,
		UsageTerms:      f.UsageTerms,
		Keywords:        slices.Clone(f.Keywords),
		Custom:          maps.Clone(f.Extended),
	}
	return n, e
}

// Record flattens the canonical record into string pairs for the record
// store. Empty fields are omitted.
func (c Canonical) Record() map[string]string {
	n, e := c.Partition()
	out := make(map[string]string)
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("title", n.Title)
	set("description", n.Description)
	set("copyright", n.Copyright)
	set("creator", n.Creator)
	set("software", n.Software)
	set("userComment", n.UserComment)
	set("colorSpace", string(n.ColorSpace))
	if n.Orientation > 0 {
		out["orientation"] = strconv.Itoa(n.Orientation)
	}
	if n.Density > 0 {
		out["density"] = strconv.Itoa(n.Density)
	}
	for _, kv := range e.Pairs() {
		out[kv[0]] = kv[1]
	}
	return out
}
