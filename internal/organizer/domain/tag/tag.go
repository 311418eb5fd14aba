// Package tag defines tag values and the case-insensitive set operations
// every layer shares. A tag's identity is its Unicode case-folded key; the
// display text preserves the casing it was first seen with.
package tag

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Source identifies how a tag came to be attached to its owner.
type Source string

const (
	// SourceManual marks tags set explicitly by the user. Propagation never
	// alters them.
	SourceManual Source = "manual"
	// SourceAutoPath marks tags derived from a category's canonical path
	// segments.
	SourceAutoPath Source = "auto-path"
	// SourceAutoInherit marks tags merged downward from ancestor categories.
	SourceAutoInherit Source = "auto-inherit"
)

// IsValid reports whether the source is one of the known values.
func (s Source) IsValid() bool {
	switch s {
	case SourceManual, SourceAutoPath, SourceAutoInherit:
		return true
	}
	return false
}

// Tag is one tag attached to an owner.
type Tag struct {
	// Text is the display form of the tag as the user entered it.
	Text string `json:"text"`
	// Source records how the tag was attached.
	Source Source `json:"source"`
}

var folder = cases.Fold()

// Key returns the case-folded identity of a tag text.
func Key(text string) string {
	return folder.String(strings.TrimSpace(text))
}

// Normalize trims tag text, drops empty entries, defaults missing sources to
// manual, and deduplicates case-insensitively keeping the first occurrence.
func Normalize(tags []Tag) []Tag {
	return Union(tags)
}

// Union merges tag sets case-insensitively. The first occurrence of a key
// wins both display text and source. The result is sorted by folded key so
// repeated computations are deterministic.
func Union(sets ...[]Tag) []Tag {
	seen := make(map[string]Tag)
	keys := make([]string, 0)
	for _, set := range sets {
		for _, t := range set {
			text := strings.TrimSpace(t.Text)
			if text == "" {
				continue
			}
			key := Key(text)
			if _, ok := seen[key]; ok {
				continue
			}
			source := t.Source
			if !source.IsValid() {
				source = SourceManual
			}
			seen[key] = Tag{Text: text, Source: source}
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	result := make([]Tag, 0, len(keys))
	for _, key := range keys {
		result = append(result, seen[key])
	}
	return result
}

// WithSource returns a copy of tags with every entry's source replaced.
func WithSource(tags []Tag, source Source) []Tag {
	result := make([]Tag, 0, len(tags))
	for _, t := range tags {
		result = append(result, Tag{Text: t.Text, Source: source})
	}
	return result
}

// FromTexts builds a tag set from plain strings with the given source.
func FromTexts(texts []string, source Source) []Tag {
	tags := make([]Tag, 0, len(texts))
	for _, text := range texts {
		tags = append(tags, Tag{Text: text, Source: source})
	}
	return Union(tags)
}

// Texts returns the display texts of tags in order.
func Texts(tags []Tag) []string {
	texts := make([]string, 0, len(tags))
	for _, t := range tags {
		texts = append(texts, t.Text)
	}
	return texts
}

// Equal reports whether two tag sets are identical after normalization,
// comparing keys and sources but not display casing.
func Equal(a, b []Tag) bool {
	na, nb := Union(a), Union(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if Key(na[i].Text) != Key(nb[i].Text) || na[i].Source != nb[i].Source {
			return false
		}
	}
	return true
}

// FilterSource returns the subset of tags carrying the given source.
func FilterSource(tags []Tag, source Source) []Tag {
	result := make([]Tag, 0, len(tags))
	for _, t := range tags {
		if t.Source == source {
			result = append(result, t)
		}
	}
	return result
}
