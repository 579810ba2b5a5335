// Package vocabulary holds the static term lists loaded at startup: the known
// skills used for normalization and the redaction allow-list.
package vocabulary

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultData []byte

// Vocabulary is read-only after Load returns.
type Vocabulary struct {
	Skills    []string `yaml:"skills"`
	Whitelist []string `yaml:"whitelist"`
}

// Default returns the built-in vocabulary.
func Default() (*Vocabulary, error) {
	return parse(defaultData)
}

// Load reads a vocabulary file. An empty path returns the built-in one.
func Load(path string) (*Vocabulary, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary file %q: %w", path, err)
	}

	v, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("vocabulary file %q: %w", path, err)
	}
	return v, nil
}

func parse(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}

	v.Skills = clean(v.Skills)
	v.Whitelist = clean(v.Whitelist)

	if len(v.Skills) == 0 {
		return nil, fmt.Errorf("vocabulary has no skills")
	}

	return &v, nil
}

// AllowList returns the whitelist terms together with every known skill.
func (v *Vocabulary) AllowList() []string {
	out := make([]string, 0, len(v.Whitelist)+len(v.Skills))
	out = append(out, v.Whitelist...)
	out = append(out, v.Skills...)
	return clean(out)
}

func clean(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}
