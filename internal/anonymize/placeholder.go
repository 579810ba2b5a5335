package anonymize

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderRe matches every placeholder this package can produce.
var placeholderRe = regexp.MustCompile(`«[A-Z]+_\d+»`)

func formatPlaceholder(c Category, n int) string {
	return fmt.Sprintf("«%s_%d»", c, n)
}

// IsPlaceholder reports whether s is exactly one placeholder token.
func IsPlaceholder(s string) bool {
	loc := placeholderRe.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// Entry is one placeholder and the text it replaced.
type Entry struct {
	Placeholder string   `json:"placeholder"`
	Category    Category `json:"category"`
	Original    string   `json:"original"`
}

// Map is the reversible record of one redaction call. Entries keep insertion
// order. A Map is not safe for concurrent mutation.
type Map struct {
	entries       []Entry
	byPlaceholder map[string]int
	byOriginal    map[originalKey]string
}

type originalKey struct {
	category Category
	text     string
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{
		byPlaceholder: make(map[string]int),
		byOriginal:    make(map[originalKey]string),
	}
}

func (m *Map) add(e Entry) {
	m.byPlaceholder[e.Placeholder] = len(m.entries)
	m.byOriginal[originalKey{category: e.Category, text: e.Original}] = e.Placeholder
	m.entries = append(m.entries, e)
}

func (m *Map) placeholderFor(c Category, original string) (string, bool) {
	p, ok := m.byOriginal[originalKey{category: c, text: original}]
	return p, ok
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Entries returns a copy of the entries in insertion order.
func (m *Map) Entries() []Entry {
	if m == nil {
		return nil
	}
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Lookup returns the original text behind a placeholder.
func (m *Map) Lookup(placeholder string) (string, bool) {
	if m == nil {
		return "", false
	}
	i, ok := m.byPlaceholder[placeholder]
	if !ok {
		return "", false
	}
	return m.entries[i].Original, true
}

// Restore replaces every placeholder of the map found in text with its
// original. Replacement is a single pass, so restored text is never
// re-scanned.
func (m *Map) Restore(text string) string {
	if m.Len() == 0 {
		return text
	}
	return replacer(m.entries).Replace(text)
}

func replacer(entries []Entry) *strings.Replacer {
	pairs := make([]string, 0, len(entries)*2)
	for _, e := range entries {
		pairs = append(pairs, e.Placeholder, e.Original)
	}
	return strings.NewReplacer(pairs...)
}

// ordinals hands out per-category placeholder numbers, skipping any
// placeholder that already occurs in the source text.
type ordinals struct {
	source string
	next   map[Category]int
}

func newOrdinals(source string) *ordinals {
	return &ordinals{source: source, next: make(map[Category]int)}
}

func (o *ordinals) take(c Category) string {
	for {
		o.next[c]++
		p := formatPlaceholder(c, o.next[c])
		if !strings.Contains(o.source, p) {
			return p
		}
	}
}
