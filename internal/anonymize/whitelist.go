package anonymize

import "strings"

// Whitelist is a read-only set of terms that must never stay redacted.
type Whitelist struct {
	terms map[string]struct{}
}

// NewWhitelist builds a whitelist from terms. Surrounding whitespace is
// trimmed; matching is otherwise exact and case-sensitive.
func NewWhitelist(terms ...string) *Whitelist {
	w := &Whitelist{terms: make(map[string]struct{}, len(terms))}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		w.terms[t] = struct{}{}
	}
	return w
}

// Contains reports whether s is an exact member.
func (w *Whitelist) Contains(s string) bool {
	if w == nil {
		return false
	}
	_, ok := w.terms[s]
	return ok
}

// Len returns the number of terms.
func (w *Whitelist) Len() int {
	if w == nil {
		return 0
	}
	return len(w.terms)
}

// Apply restores every placeholder whose original is whitelisted and returns
// the text together with a new map holding only the remaining entries. m is
// left untouched. Applying the result a second time is a no-op.
func (w *Whitelist) Apply(text string, m *Map) (string, *Map) {
	kept := NewMap()
	var restored []Entry
	for _, e := range m.Entries() {
		if w.Contains(e.Original) {
			restored = append(restored, e)
			continue
		}
		kept.add(e)
	}

	if len(restored) == 0 {
		return text, kept
	}

	return replacer(restored).Replace(text), kept
}
