package anonymize

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubRecognizer struct {
	spans []Span
	err   error
}

func (s stubRecognizer) Name() string { return "stub" }

func (s stubRecognizer) Recognize(context.Context, string) ([]Span, error) {
	return s.spans, s.err
}

// spansFor marks every occurrence of each term with the given category.
func spansFor(text string, terms map[string]Category) stubRecognizer {
	var spans []Span
	for term, c := range terms {
		offset := 0
		for {
			i := strings.Index(text[offset:], term)
			if i < 0 {
				break
			}
			start := offset + i
			spans = append(spans, Span{Start: start, End: start + len(term), Category: c})
			offset = start + len(term)
		}
	}
	return stubRecognizer{spans: spans}
}

func TestRedactSampleScenario(t *testing.T) {
	patterns, err := NewPatternRecognizer()
	if err != nil {
		t.Fatalf("new pattern recognizer: %v", err)
	}
	redactor, err := NewRedactor(nil, patterns)
	if err != nil {
		t.Fatalf("new redactor: %v", err)
	}

	input := "John Smith, email john@x.com, skilled in Python and AWS"
	redacted, m, err := redactor.Redact(context.Background(), input)
	if err != nil {
		t.Fatalf("redact: %v", err)
	}

	expected := "«PERSON_1», email «EMAIL_1», skilled in Python and AWS"
	if redacted != expected {
		t.Fatalf("expected %q, got %q", expected, redacted)
	}

	if original, ok := m.Lookup("«PERSON_1»"); !ok || original != "John Smith" {
		t.Fatalf("expected person placeholder to map to John Smith, got %q", original)
	}
	if original, ok := m.Lookup("«EMAIL_1»"); !ok || original != "john@x.com" {
		t.Fatalf("expected email placeholder to map to john@x.com, got %q", original)
	}

	wl := NewWhitelist("Python", "AWS", "FPT University")
	filtered, kept := wl.Apply(redacted, m)
	if filtered != redacted {
		t.Fatalf("whitelist should be a no-op, got %q", filtered)
	}
	if kept.Len() != 2 {
		t.Fatalf("expected both entries to remain, got %d", kept.Len())
	}
}

func TestRedactRoundTrip(t *testing.T) {
	t.Parallel()

	patterns, err := NewPatternRecognizer()
	if err != nil {
		t.Fatalf("new pattern recognizer: %v", err)
	}

	tests := []struct {
		name  string
		input string
	}{
		{name: "plain prose", input: "Nothing personal here, only Go and Kubernetes."},
		{name: "contacts", input: "Jane Doe\nPhone: +1 (555) 123-4567\nMail: jane.doe@example.org\nhttps://linkedin.com/in/janedoe."},
		{name: "repeated name", input: "Jane Doe led the team. Later Jane Doe moved to Berlin."},
		{name: "existing placeholder", input: "«PERSON_1» wrote to Anna Berg on 12.04.1990"},
		{name: "unicode", input: "Élodie Durand, développeuse, née le 03/05/1992, élodie@exemple.fr"},
		{name: "empty", input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			redactor, err := NewRedactor(nil, patterns)
			if err != nil {
				t.Fatalf("new redactor: %v", err)
			}

			redacted, m, err := redactor.Redact(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("redact: %v", err)
			}

			if restored := m.Restore(redacted); restored != tt.input {
				t.Fatalf("round trip mismatch:\nwant %q\ngot  %q", tt.input, restored)
			}

			for _, e := range m.Entries() {
				if strings.Contains(redacted, e.Original) && !strings.Contains(e.Original, "«") {
					t.Fatalf("original %q still present in redacted text %q", e.Original, redacted)
				}
			}
		})
	}
}

func TestRedactSharesPlaceholderForRepeatedText(t *testing.T) {
	input := "Anna Berg and Anna Berg and Olga Berg"
	redactor, err := NewRedactor(nil, spansFor(input, map[string]Category{
		"Anna Berg": CategoryPerson,
		"Olga Berg": CategoryPerson,
	}))
	if err != nil {
		t.Fatalf("new redactor: %v", err)
	}

	redacted, m, err := redactor.Redact(context.Background(), input)
	if err != nil {
		t.Fatalf("redact: %v", err)
	}

	if redacted != "«PERSON_1» and «PERSON_1» and «PERSON_2»" {
		t.Fatalf("unexpected redaction %q", redacted)
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", m.Len())
	}
}

func TestRedactSkipsExistingPlaceholderOrdinals(t *testing.T) {
	input := "«PERSON_1» met Anna Berg"
	redactor, err := NewRedactor(nil, spansFor(input, map[string]Category{
		"Anna Berg":  CategoryPerson,
		"«PERSON_1»": CategoryPerson,
	}))
	if err != nil {
		t.Fatalf("new redactor: %v", err)
	}

	redacted, m, err := redactor.Redact(context.Background(), input)
	if err != nil {
		t.Fatalf("redact: %v", err)
	}

	if redacted != "«PERSON_1» met «PERSON_2»" {
		t.Fatalf("unexpected redaction %q", redacted)
	}
	if _, ok := m.Lookup("«PERSON_1»"); ok {
		t.Fatalf("pre-existing placeholder must not be part of the map")
	}
	if m.Restore(redacted) != input {
		t.Fatalf("round trip failed")
	}
}

func TestRedactResolvesOverlaps(t *testing.T) {
	input := "Contact Anna Berg today"
	redactor, err := NewRedactor(nil, stubRecognizer{spans: []Span{
		{Start: 8, End: 12, Category: CategoryPerson},
		{Start: 8, End: 17, Category: CategoryPerson},
		{Start: 13, End: 23, Category: CategoryLocation},
		{Start: 30, End: 40, Category: CategoryPerson},
		{Start: 3, End: 3, Category: CategoryPerson},
	}})
	if err != nil {
		t.Fatalf("new redactor: %v", err)
	}

	redacted, _, err := redactor.Redact(context.Background(), input)
	if err != nil {
		t.Fatalf("redact: %v", err)
	}

	if redacted != "Contact «PERSON_1» today" {
		t.Fatalf("unexpected redaction %q", redacted)
	}
}

func TestRedactFailsWhenRecognizerFails(t *testing.T) {
	backendErr := errors.New("backend down")
	redactor, err := NewRedactor(nil, stubRecognizer{err: backendErr})
	if err != nil {
		t.Fatalf("new redactor: %v", err)
	}

	text, m, err := redactor.Redact(context.Background(), "John Smith")
	if !errors.Is(err, backendErr) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if text != "" || m != nil {
		t.Fatalf("no text or map may be returned on failure, got %q %+v", text, m)
	}
}

func TestNewRedactorValidation(t *testing.T) {
	if _, err := NewRedactor(nil); err == nil {
		t.Fatalf("expected error without recognizers")
	}
	if _, err := NewRedactor(nil, nil); err == nil {
		t.Fatalf("expected error for nil recognizer")
	}
}

func TestPlaceholdersAreNotRedetected(t *testing.T) {
	patterns, err := NewPatternRecognizer()
	if err != nil {
		t.Fatalf("new pattern recognizer: %v", err)
	}
	redactor, err := NewRedactor(nil, patterns)
	if err != nil {
		t.Fatalf("new redactor: %v", err)
	}

	first, _, err := redactor.Redact(context.Background(), "Anna Berg, anna@berg.io, +44 20 7946 0958")
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}

	second, m, err := redactor.Redact(context.Background(), first)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if second != first {
		t.Fatalf("second pass changed the text: %q -> %q", first, second)
	}
	if m.Len() != 0 {
		t.Fatalf("second pass must not record entries, got %d", m.Len())
	}
}

func TestIsPlaceholder(t *testing.T) {
	if !IsPlaceholder("«EMAIL_12»") {
		t.Fatalf("expected placeholder")
	}
	for _, s := range []string{"EMAIL_12", "«email_1»", "x«EMAIL_1»", "«EMAIL_»"} {
		if IsPlaceholder(s) {
			t.Fatalf("%q must not be a placeholder", s)
		}
	}
}

func TestRedactKeepsRunsOfAllowedSkills(t *testing.T) {
	allowed := []string{"Python", "Django", "Spring", "React", "Docker", "Kubernetes", "Ruby", "Google Cloud"}
	patterns, err := NewPatternRecognizer()
	if err != nil {
		t.Fatalf("new pattern recognizer: %v", err)
	}
	redactor, err := NewRedactor(nil, patterns.AllowTerms(allowed...))
	if err != nil {
		t.Fatalf("new redactor: %v", err)
	}

	input := "Skills: Python Django, Spring Boot, React Native, Machine Learning, Docker Kubernetes, Google Cloud\nReferee: Ruby Chen"
	redacted, m, err := redactor.Redact(context.Background(), input)
	if err != nil {
		t.Fatalf("redact: %v", err)
	}

	filtered, kept := NewWhitelist(allowed...).Apply(redacted, m)

	for _, skill := range []string{"Python Django", "Spring Boot", "React Native", "Machine Learning", "Docker Kubernetes", "Google Cloud"} {
		if !strings.Contains(filtered, skill) {
			t.Fatalf("expected %q to survive redaction, got %q", skill, filtered)
		}
	}

	// A name that starts with a skill word is still redacted whole.
	if !strings.HasSuffix(filtered, "Referee: «PERSON_1»") {
		t.Fatalf("expected the referee to be redacted, got %q", filtered)
	}
	if original, ok := kept.Lookup("«PERSON_1»"); !ok || original != "Ruby Chen" {
		t.Fatalf("expected «PERSON_1» to map to Ruby Chen, got %q", original)
	}
	if kept.Len() != 1 {
		t.Fatalf("expected a single placeholder, got %d", kept.Len())
	}
}
