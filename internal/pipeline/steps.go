package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/cv-intake/internal/anonymize"
	"github.com/spigell/cv-intake/internal/logger"
	"github.com/spigell/cv-intake/internal/profile"
)

// Step names.
const (
	StepAnonymize = "anonymize"
	StepWhitelist = "whitelist"
	StepExtract   = "extract"
	StepSkills    = "skills"
	StepLeakCheck = "leak_check"
)

// ExtractionFailedMessage is the error sentinel placed in the profile when
// the LLM could not be reached.
const ExtractionFailedMessage = "failed to parse CV to JSON"

type redactor interface {
	Redact(ctx context.Context, text string) (string, *anonymize.Map, error)
}

type anonymizeStep struct {
	redactor redactor
}

// NewAnonymize replaces personal data in the text with placeholders.
func NewAnonymize(r redactor) Step {
	return &anonymizeStep{redactor: r}
}

func (s *anonymizeStep) Name() string { return StepAnonymize }

func (s *anonymizeStep) Disable(string) {}

func (s *anonymizeStep) IsEnabled() bool { return true }

func (s *anonymizeStep) Validate() error {
	if s.redactor == nil {
		return errors.New("redactor is required")
	}
	return nil
}

func (s *anonymizeStep) Apply(ctx context.Context, st *State) (Stats, error) {
	text, m, err := s.redactor.Redact(ctx, st.Text)
	if err != nil {
		return nil, err
	}
	st.Text = text
	st.Map = m
	return Stats{"placeholders": m.Len()}, nil
}

type whitelistStep struct {
	toggle
	whitelist *anonymize.Whitelist
}

// NewWhitelist restores placeholders whose original is an allow-listed term.
func NewWhitelist(w *anonymize.Whitelist) Step {
	return &whitelistStep{whitelist: w}
}

func (s *whitelistStep) Name() string { return StepWhitelist }

func (s *whitelistStep) Validate() error {
	if s.whitelist == nil {
		return errors.New("whitelist is required")
	}
	return nil
}

func (s *whitelistStep) Apply(_ context.Context, st *State) (Stats, error) {
	before := st.Map.Len()
	st.Text, st.Map = s.whitelist.Apply(st.Text, st.Map)
	return Stats{"restored": before - st.Map.Len(), "remaining": st.Map.Len()}, nil
}

type profileExtractor interface {
	Extract(ctx context.Context, sanitized string) (*profile.CandidateProfile, error)
}

type extractStep struct {
	extractor profileExtractor
}

// NewExtract asks the LLM for the structured profile. When the LLM cannot be
// reached the state carries the error sentinel profile and the step fails.
func NewExtract(e profileExtractor) Step {
	return &extractStep{extractor: e}
}

func (s *extractStep) Name() string { return StepExtract }

func (s *extractStep) Disable(string) {}

func (s *extractStep) IsEnabled() bool { return true }

func (s *extractStep) Validate() error {
	if s.extractor == nil {
		return errors.New("extractor is required")
	}
	return nil
}

func (s *extractStep) Apply(ctx context.Context, st *State) (Stats, error) {
	p, err := s.extractor.Extract(ctx, st.Text)
	if err != nil {
		st.Profile = profile.Failed(ExtractionFailedMessage)
		return nil, err
	}
	st.Profile = p
	return Stats{"skills": len(p.Skills), "experiences": len(p.Experiences)}, nil
}

type skillNormalizer interface {
	Normalize(text string, extra []string) []string
}

type skillsStep struct {
	toggle
	normalizer skillNormalizer
}

// NewSkills replaces the profile skills with the normalized vocabulary terms.
func NewSkills(n skillNormalizer) Step {
	return &skillsStep{normalizer: n}
}

func (s *skillsStep) Name() string { return StepSkills }

func (s *skillsStep) Validate() error {
	if s.normalizer == nil {
		return errors.New("skill normalizer is required")
	}
	return nil
}

func (s *skillsStep) Apply(_ context.Context, st *State) (Stats, error) {
	if st.Profile == nil || st.Profile.Error != "" {
		return Stats{"skipped": 1}, nil
	}
	before := len(st.Profile.Skills)
	st.Profile.Skills = s.normalizer.Normalize(st.Text, st.Profile.Skills)
	return Stats{"before": before, "after": len(st.Profile.Skills)}, nil
}

type leakCheckStep struct {
	toggle
	logger *zap.Logger
}

// NewLeakCheck warns when an original redacted value shows up in the
// profile. The LLM is only asked to keep placeholders, nothing enforces it,
// so the profile is reported as is.
func NewLeakCheck(log *zap.Logger) Step {
	return &leakCheckStep{logger: logger.OrNop(log)}
}

func (s *leakCheckStep) Name() string { return StepLeakCheck }

func (s *leakCheckStep) Validate() error { return nil }

func (s *leakCheckStep) Apply(_ context.Context, st *State) (Stats, error) {
	if st.Profile == nil || st.Map.Len() == 0 {
		return Stats{"leaks": 0}, nil
	}

	leaks, err := FindLeaks(st.Profile, st.Map)
	if err != nil {
		return nil, err
	}
	st.Leaks = leaks

	if len(leaks) > 0 {
		s.logger.Warn("possible pii leak in extracted profile", zap.Strings("placeholders", leaks))
	}
	return Stats{"leaks": len(leaks)}, nil
}

// FindLeaks returns the placeholders of m whose original text occurs in the
// serialized profile. Only placeholder names are returned, never originals.
func FindLeaks(p *profile.CandidateProfile, m *anonymize.Map) ([]string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}
	var flat strings.Builder
	if err := flatten(&flat, data); err != nil {
		return nil, err
	}
	haystack := flat.String()

	var leaks []string
	for _, e := range m.Entries() {
		if strings.Contains(haystack, e.Original) {
			leaks = append(leaks, e.Placeholder)
		}
	}
	return leaks, nil
}

// flatten writes every string value of a JSON document, one per line, so
// originals are compared against unescaped text.
func flatten(b *strings.Builder, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode profile: %w", err)
	}
	var walk func(any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			b.WriteString(val)
			b.WriteByte('\n')
		case []any:
			for _, item := range val {
				walk(item)
			}
		case map[string]any:
			for _, item := range val {
				walk(item)
			}
		}
	}
	walk(v)
	return nil
}
