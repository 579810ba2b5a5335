package anonymize

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Pattern names accepted by NewPatternRecognizer.
const (
	PatternEmail  = "email"
	PatternPhone  = "phone"
	PatternURL    = "url"
	PatternDate   = "date"
	PatternPerson = "person"
)

// DefaultPatterns lists every built-in pattern.
var DefaultPatterns = []string{PatternEmail, PatternPhone, PatternURL, PatternDate, PatternPerson}

type matcher func(text string) []Span

// PatternRecognizer detects structured personal data with regular
// expressions and person names with a capitalization heuristic.
type PatternRecognizer struct {
	names    []string
	matchers []matcher
	allowed  map[string]struct{}
}

var (
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	phoneRe = regexp.MustCompile(`\+?\d[\d \t().\-]{7,}\d`)
	urlRe   = regexp.MustCompile(`(?i)\b(?:https?://|www\.|(?:linkedin|github)\.com/)[^\s<>"'()]+`)
	dateRe  = regexp.MustCompile(`\b\d{1,2}[./\-]\d{1,2}[./\-](?:19|20)\d{2}\b|\b(?:19|20)\d{2}-\d{2}-\d{2}\b`)

	capitalizedRunRe = regexp.MustCompile(`\p{Lu}\p{Ll}+(?:[ \t]+\p{Lu}\p{Ll}+)+`)
	capitalizedRe    = regexp.MustCompile(`\p{Lu}\p{Ll}+`)
)

// NewPatternRecognizer enables the named patterns, or all of them when names
// is empty.
func NewPatternRecognizer(names ...string) (*PatternRecognizer, error) {
	if len(names) == 0 {
		names = DefaultPatterns
	}

	p := &PatternRecognizer{}
	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		var m matcher
		switch name {
		case PatternEmail:
			m = regexMatcher(emailRe, CategoryEmail, nil)
		case PatternPhone:
			m = regexMatcher(phoneRe, CategoryPhone, plausiblePhone)
		case PatternURL:
			m = urlMatcher
		case PatternDate:
			m = regexMatcher(dateRe, CategoryDate, nil)
		case PatternPerson:
			m = p.matchPersons
		default:
			return nil, fmt.Errorf("unknown pattern %q", name)
		}
		p.names = append(p.names, name)
		p.matchers = append(p.matchers, m)
	}

	return p, nil
}

// AllowTerms registers domain terms (skills, tools, schools) whose
// capitalized words must not be taken for names. A run made only of such
// words is skipped; a run that mixes them with other words is still reported
// whole. Call it before the recognizer is shared.
func (p *PatternRecognizer) AllowTerms(terms ...string) *PatternRecognizer {
	if p.allowed == nil {
		p.allowed = make(map[string]struct{})
	}
	for _, term := range terms {
		for _, word := range strings.Fields(term) {
			if loc := capitalizedRe.FindStringIndex(word); loc != nil && loc[0] == 0 && loc[1] == len(word) {
				p.allowed[word] = struct{}{}
			}
		}
	}
	return p
}

// Name implements Recognizer.
func (p *PatternRecognizer) Name() string { return "patterns" }

// Patterns returns the enabled pattern names.
func (p *PatternRecognizer) Patterns() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Recognize implements Recognizer.
func (p *PatternRecognizer) Recognize(ctx context.Context, text string) ([]Span, error) {
	var spans []Span
	for _, m := range p.matchers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spans = append(spans, m(text)...)
	}
	return spans, nil
}

func regexMatcher(re *regexp.Regexp, c Category, accept func(string) bool) matcher {
	return func(text string) []Span {
		var spans []Span
		for _, loc := range re.FindAllStringIndex(text, -1) {
			match := text[loc[0]:loc[1]]
			if accept != nil && !accept(match) {
				continue
			}
			spans = append(spans, Span{Start: loc[0], End: loc[1], Category: c, Text: match})
		}
		return spans
	}
}

func plausiblePhone(s string) bool {
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 9 && digits <= 15
}

func urlMatcher(text string) []Span {
	var spans []Span
	for _, loc := range urlRe.FindAllStringIndex(text, -1) {
		end := loc[1]
		for end > loc[0] && strings.ContainsRune(".,;:!?", rune(text[end-1])) {
			end--
		}
		if end == loc[0] {
			continue
		}
		spans = append(spans, Span{Start: loc[0], End: end, Category: CategoryURL, Text: text[loc[0]:end]})
	}
	return spans
}

// matchPersons reports runs of two or three capitalized words that contain
// no common CV vocabulary. Longer runs are treated as headings.
func (p *PatternRecognizer) matchPersons(text string) []Span {
	var spans []Span
	for _, run := range capitalizedRunRe.FindAllStringIndex(text, -1) {
		if !letterBoundary(text, run[0], run[1]) {
			continue
		}

		words := capitalizedRe.FindAllStringIndex(text[run[0]:run[1]], -1)
		var segment [][]int
		flush := func() {
			if len(segment) >= 2 && len(segment) <= 3 && !p.onlyAllowed(text[run[0]:], segment) {
				start := run[0] + segment[0][0]
				end := run[0] + segment[len(segment)-1][1]
				spans = append(spans, Span{Start: start, End: end, Category: CategoryPerson, Text: text[start:end]})
			}
			segment = segment[:0]
		}
		for _, w := range words {
			if _, stop := nameStopWords[text[run[0]+w[0]:run[0]+w[1]]]; stop {
				flush()
				continue
			}
			segment = append(segment, w)
		}
		flush()
	}
	return spans
}

func (p *PatternRecognizer) onlyAllowed(text string, words [][]int) bool {
	if len(p.allowed) == 0 {
		return false
	}
	for _, w := range words {
		if _, ok := p.allowed[text[w[0]:w[1]]]; !ok {
			return false
		}
	}
	return true
}

func letterBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

var nameStopWords = func() map[string]struct{} {
	words := []string{
		"About", "Academy", "Achievements", "And", "Bachelor", "Boot", "Certificate", "Certifications",
		"College", "Company", "Contact", "Corporation", "Course", "Courses", "Data", "Degree",
		"Department", "Designer", "Developer", "Development", "Education", "Email", "Engineer",
		"Engineering", "Experience", "Freelance", "Head", "Hobbies", "Information", "Institute",
		"Intern", "Internship", "Junior", "Languages", "Lead", "Learning", "Machine", "Manager",
		"Master", "Middle", "Native", "Objective", "Phone", "Present", "Profile", "Project",
		"Projects", "References", "Responsibilities", "Science", "School", "Senior", "Skills",
		"Software", "Summary", "Team", "Technical", "Technologies", "The", "University", "Work",
		"January", "February", "March", "April", "May", "June", "July", "August",
		"September", "October", "November", "December",
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}()
