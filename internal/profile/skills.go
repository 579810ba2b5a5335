package profile

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultSkillThreshold is the minimum token-set score for a match.
const DefaultSkillThreshold = 85

// SkillNormalizer maps free-form skill mentions onto a known vocabulary.
type SkillNormalizer struct {
	known     []string
	lowered   []string
	threshold int
}

// NewSkillNormalizer creates a normalizer. A threshold outside 1..100 falls
// back to DefaultSkillThreshold.
func NewSkillNormalizer(known []string, threshold int) *SkillNormalizer {
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultSkillThreshold
	}
	n := &SkillNormalizer{threshold: threshold}
	for _, k := range known {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		n.known = append(n.known, k)
		n.lowered = append(n.lowered, strings.ToLower(k))
	}
	return n
}

// Normalize collects candidates from known skills mentioned in text and from
// extra (typically the skills the model reported), maps each to its best
// scoring known skill and returns the canonical names, sorted and unique.
func (n *SkillNormalizer) Normalize(text string, extra []string) []string {
	candidates := append(n.mentioned(text), extra...)

	found := make(map[string]struct{})
	for _, c := range candidates {
		if skill, ok := n.Match(c); ok {
			found[skill] = struct{}{}
		}
	}

	out := make([]string, 0, len(found))
	for s := range found {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Match returns the known skill with the highest token-set score for term
// when it reaches the threshold. Ties go to the earlier vocabulary entry.
func (n *SkillNormalizer) Match(term string) (string, bool) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return "", false
	}

	best, bestScore := -1, -1.0
	for i, k := range n.lowered {
		if score := TokenSetRatio(term, k); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 || bestScore < float64(n.threshold) {
		return "", false
	}
	return n.known[best], true
}

// mentioned returns the known skills that occur in text as whole words,
// ignoring case. Skills of two characters or less ("Go", "C#") must match
// case exactly to avoid picking up ordinary words.
func (n *SkillNormalizer) mentioned(text string) []string {
	lowered := strings.ToLower(text)
	var out []string
	for i, k := range n.known {
		haystack, needle := lowered, n.lowered[i]
		if utf8.RuneCountInString(k) <= 2 {
			haystack, needle = text, k
		}
		if containsWord(haystack, needle) {
			out = append(out, k)
		}
	}
	return out
}

func containsWord(s, word string) bool {
	for offset := 0; offset < len(s); {
		i := strings.Index(s[offset:], word)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(word)
		if wordEdge(s, start, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		offset = start + size
	}
	return false
}

func wordEdge(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' {
			return false
		}
	}
	return true
}

// TokenSetRatio scores two strings 0..100 by comparing their whitespace
// token sets: the shared tokens against each side's full sorted token list.
// When one side's tokens are a subset of the other's the score is 100. The
// score is not rounded, so 84.6 stays below a threshold of 85.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	for t := range ta {
		if _, ok := tb[t]; ok {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range tb {
		if _, ok := ta[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}

	if len(common) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 100
	}

	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	sect := strings.Join(common, " ")
	withA := joinNonEmpty(sect, strings.Join(onlyA, " "))
	withB := joinNonEmpty(sect, strings.Join(onlyB, " "))

	best := ratio(withA, withB)
	if sect != "" {
		best = max(best, ratio(sect, withA), ratio(sect, withB))
	}
	return best
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.Fields(s) {
		out[f] = struct{}{}
	}
	return out
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

// ratio is the normalized insertion/deletion similarity of a and b, 0..100.
func ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}
	return 200 * float64(lcs(ra, rb)) / float64(total)
}

func lcs(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
