package metadata

import (
	"maps"
	"slices"
)

// Template is a named preset layer.
type Template struct {
	Name   string
	Fields Fields
}

// Built-in templates. Config-supplied templates replace these by name.
var builtinTemplates = map[string]Fields{
	"default": {},
	"editorial": {
		UsageTerms: "Editorial use only. No commercial use without written permission.",
		Keywords:   []string{"editorial"},
	},
	"creative-commons": {
		License:    "https://creativecommons.org/licenses/by/4.0/",
		UsageTerms: "Licensed under CC BY 4.0. Attribution required.",
	},
	"stock": {
		RightsStatement: "All rights reserved.",
		UsageTerms:      "Licensed for use under the purchased stock license only.",
	},
}

// Catalog holds the named templates available to a resolver.
type Catalog struct {
	templates map[string]Fields
}

// NewCatalog builds a catalog from the built-ins overlaid with extra.
func NewCatalog(extra map[string]Fields) *Catalog {
	c := &Catalog{templates: make(map[string]Fields, len(builtinTemplates)+len(extra))}
	for name, f := range builtinTemplates {
		c.templates[name] = f.Clone()
	}
	for name, f := range extra {
		c.templates[name] = f.Clone()
	}
	return c
}

// Get returns the template by name.
func (c *Catalog) Get(name string) (Template, bool) {
	f, ok := c.templates[name]
	if !ok {
		return Template{}, false
	}
	return Template{Name: name, Fields: f.Clone()}, true
}

// Names lists template names in sorted order.
func (c *Catalog) Names() []string {
	return slices.Sorted(maps.Keys(c.templates))
}
