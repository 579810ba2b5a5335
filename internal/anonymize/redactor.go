// Package anonymize removes personal data from CV text. Redactor replaces
// every recognized span with a placeholder and records the mapping; Whitelist
// restores the spans that turned out to be ordinary domain terms.
package anonymize

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/cv-intake/internal/logger"
)

// Redactor runs the configured recognizers over a text and substitutes the
// spans they report.
type Redactor struct {
	recognizers []Recognizer
	logger      *zap.Logger
}

// NewRedactor creates a Redactor. At least one recognizer is required.
func NewRedactor(log *zap.Logger, recognizers ...Recognizer) (*Redactor, error) {
	if len(recognizers) == 0 {
		return nil, errors.New("at least one recognizer is required")
	}
	for _, r := range recognizers {
		if r == nil {
			return nil, errors.New("recognizer must not be nil")
		}
	}

	return &Redactor{recognizers: recognizers, logger: logger.OrNop(log)}, nil
}

// Redact returns text with personal data replaced by placeholders and the map
// needed to restore it. Any recognizer failure aborts the call.
//
// Identical strings of the same category share one placeholder.
func (r *Redactor) Redact(ctx context.Context, text string) (string, *Map, error) {
	var spans []Span
	for _, rec := range r.recognizers {
		found, err := rec.Recognize(ctx, text)
		if err != nil {
			return "", nil, fmt.Errorf("recognizer %s: %w", rec.Name(), err)
		}
		r.logger.Debug("recognizer finished", zap.String("recognizer", rec.Name()), zap.Int("spans", len(found)))
		spans = append(spans, found...)
	}

	spans = mergeSpans(text, spans)

	m := NewMap()
	ords := newOrdinals(text)

	var builder strings.Builder
	builder.Grow(len(text))
	last := 0
	for _, sp := range spans {
		original := text[sp.Start:sp.End]
		placeholder, ok := m.placeholderFor(sp.Category, original)
		if !ok {
			placeholder = ords.take(sp.Category)
			m.add(Entry{Placeholder: placeholder, Category: sp.Category, Original: original})
		}

		builder.WriteString(text[last:sp.Start])
		builder.WriteString(placeholder)
		last = sp.End
	}
	builder.WriteString(text[last:])

	r.logger.Debug("text redacted", zap.Int("spans", len(spans)), zap.Int("placeholders", m.Len()))

	return builder.String(), m, nil
}

// mergeSpans drops invalid spans and those touching existing placeholders,
// then resolves overlaps in favour of the earlier and then the longer span.
// The result is sorted by Start and non-overlapping.
func mergeSpans(text string, spans []Span) []Span {
	reserved := placeholderRe.FindAllStringIndex(text, -1)

	valid := make([]Span, 0, len(spans))
	for _, sp := range spans {
		if sp.Start < 0 || sp.End > len(text) || sp.Start >= sp.End {
			continue
		}
		if !isRuneBoundary(text, sp.Start) || !isRuneBoundary(text, sp.End) {
			continue
		}
		if sp.Category == "" || overlapsAny(sp, reserved) {
			continue
		}
		if strings.TrimSpace(text[sp.Start:sp.End]) == "" {
			continue
		}
		sp.Text = text[sp.Start:sp.End]
		valid = append(valid, sp)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Start != valid[j].Start {
			return valid[i].Start < valid[j].Start
		}
		return valid[i].End > valid[j].End
	})

	out := valid[:0]
	end := -1
	for _, sp := range valid {
		if sp.Start < end {
			continue
		}
		out = append(out, sp)
		end = sp.End
	}
	return out
}

func overlapsAny(sp Span, ranges [][]int) bool {
	for _, r := range ranges {
		if sp.Start < r[1] && r[0] < sp.End {
			return true
		}
	}
	return false
}

func isRuneBoundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}
